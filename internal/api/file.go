package api

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gofinances/internal/core"
)

// FileSource reads a statement from a JSON file shaped like the
// GET /transactions body. It is read on every Fetch so edits show up on the
// next load.
type FileSource struct {
	path string
}

var _ Source = (*FileSource)(nil)

func NewFileSource(path string) *FileSource {
	return &FileSource{path: filepath.Clean(path)}
}

func (s *FileSource) Fetch(ctx context.Context) (core.Statement, error) {
	if err := ctx.Err(); err != nil {
		return core.Statement{}, err
	}
	body, err := os.ReadFile(s.path)
	if err != nil {
		return core.Statement{}, fmt.Errorf("read statement file %s: %w", s.path, err)
	}
	return DecodeStatement(body)
}

// Path returns the file the source reads from.
func (s *FileSource) Path() string {
	return s.path
}

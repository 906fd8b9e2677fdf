package memory

import (
	"context"
	"fmt"
	"sync"

	ports "gofinances/internal/sheets"
)

var _ ports.SnapshotExporter = (*Store)(nil)

// Store keeps exported rows in memory. Used when no spreadsheet is
// configured and in tests.
type Store struct {
	mu    sync.Mutex
	rows  []ports.SnapshotRow
	fails []error
}

func New() *Store {
	return &Store{}
}

// AppendSnapshot stores the row and returns a synthetic row reference.
func (s *Store) AppendSnapshot(_ context.Context, row ports.SnapshotRow) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.fails) > 0 {
		err := s.fails[0]
		s.fails = s.fails[1:]
		return "", err
	}
	s.rows = append(s.rows, row)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// FailNext makes the next AppendSnapshot calls return the given errors, in order.
func (s *Store) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fails = append(s.fails, errs...)
}

// Rows returns a copy of the exported rows.
func (s *Store) Rows() []ports.SnapshotRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ports.SnapshotRow, len(s.rows))
	copy(out, s.rows)
	return out
}

package backend

import (
	"context"
	"time"

	"gofinances/internal/api"
	"gofinances/internal/dashboard"
	"gofinances/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult is the wired data side of the dashboard: where statements
// come from and which hooks run after each load.
type BackendResult struct {
	Source    api.Source
	Observers []dashboard.Observer
	// Journal is nil when the snapshot journal is disabled.
	Journal *storage.SQLiteRepository
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// api
	APIBaseURL string
	APITimeout time.Duration
	CacheTTL   time.Duration

	// file
	DataFile string

	// Snapshot journal, optional
	SQLiteDBPath string
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	APIBackend  BackendType = "api"
	FileBackend BackendType = "file"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case APIBackend, FileBackend:
		return true
	default:
		return false
	}
}

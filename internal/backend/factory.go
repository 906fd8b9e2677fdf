package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"gofinances/internal/amqp"
	"gofinances/internal/api"
	"gofinances/internal/dashboard"
	applog "gofinances/internal/log"
	"gofinances/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(applog.ComponentApp),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var source api.Source
	switch config.Type {
	case APIBackend:
		source = f.createAPISource(config)
	case FileBackend:
		source = api.NewFileSource(config.DataFile)
		f.logger.Info("Initialized file backend", "path", config.DataFile)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	result := &BackendResult{
		Source:    source,
		Observers: []dashboard.Observer{dashboard.NewLogObserver(f.logger.WithComponent(applog.ComponentDashboard))},
	}

	if config.SQLiteDBPath == "" {
		result.Cleanup = func() error { return nil }
		return result, nil
	}

	journal, publisher, err := f.createJournal(config)
	if err != nil {
		return nil, err
	}
	result.Journal = journal
	var pub dashboard.SnapshotPublisher
	if publisher != nil {
		pub = publisher
	}
	result.Observers = append(result.Observers, dashboard.NewJournalObserver(journal, pub))
	result.Cleanup = func() error {
		var errs []error
		if publisher != nil {
			errs = append(errs, publisher.Close())
		}
		errs = append(errs, journal.Close())
		return errors.Join(errs...)
	}

	return result, nil
}

func (f *DefaultFactory) createAPISource(config Config) api.Source {
	client := api.NewClient(config.APIBaseURL, &http.Client{Timeout: config.APITimeout})
	f.logger.Info("Initialized API backend",
		"base_url", client.BaseURL(),
		"timeout", config.APITimeout,
		"cache_ttl", config.CacheTTL)

	if config.CacheTTL <= 0 {
		return client
	}
	return api.NewCachedSource(client, config.CacheTTL)
}

// createJournal opens the snapshot journal and, when configured, the AMQP
// publisher. A broker that cannot be reached only disables publishing.
func (f *DefaultFactory) createJournal(config Config) (*storage.SQLiteRepository, *amqp.Client, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize snapshot journal: %w", err)
	}

	var publisher *amqp.Client
	if config.AMQPURL != "" {
		publisher, err = amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
			publisher = nil
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	f.logger.Info("Initialized snapshot journal",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", publisher != nil)

	return repo, publisher, nil
}

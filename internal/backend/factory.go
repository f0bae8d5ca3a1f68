package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"finwatch/internal/amqp"
	"finwatch/internal/kafka"
	"finwatch/internal/services"
	"finwatch/internal/storage"
	"finwatch/internal/storage/memory"
	"finwatch/internal/storage/postgres"
	"finwatch/internal/storage/sqlite"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend. A broker that cannot be
// reached is logged and skipped; the store is mandatory.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	store, err := f.createStore(ctx, config)
	if err != nil {
		return nil, err
	}

	events, closeEvents := f.createEvents(config)

	return &BackendResult{
		Store:  store,
		Events: events,
		Cleanup: func() error {
			var errs []error
			if closeEvents != nil {
				errs = append(errs, closeEvents())
			}
			errs = append(errs, store.Close())
			return errors.Join(errs...)
		},
	}, nil
}

func (f *DefaultFactory) createStore(ctx context.Context, config Config) (storage.Store, error) {
	switch config.Type {
	case SQLiteBackend:
		store, err := sqlite.New(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return store, nil
	case PostgresBackend:
		store, err := postgres.New(ctx, config.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres store: %w", err)
		}
		f.logger.Info("Initialized Postgres backend")
		return store, nil
	case MemoryBackend:
		f.logger.Info("Initialized memory backend")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createEvents(config Config) (services.EventPublisher, CleanupFunc) {
	switch config.Events {
	case AMQPEvents:
		client, err := amqp.NewClient(amqp.Config{
			URL:         config.AMQPURL,
			Exchange:    config.AMQPExchange,
			NotifyQueue: config.NotifyQueue,
			SyncQueue:   config.SyncQueue,
		})
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
			return nil, nil
		}
		f.logger.Info("Initialized AMQP events",
			"exchange", config.AMQPExchange,
			"queue", config.NotifyQueue)
		return client, client.Close
	case KafkaEvents:
		pub := kafka.NewPublisher(config.KafkaBrokers, config.KafkaTopic)
		f.logger.Info("Initialized Kafka events", "brokers", config.KafkaBrokers, "topic", config.KafkaTopic)
		return pub, pub.Close
	default:
		return nil, nil
	}
}

package backend

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"finwatch/internal/config"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{name: "memory", config: Config{Type: MemoryBackend}},
		{name: "sqlite with path", config: Config{Type: SQLiteBackend, SQLiteDBPath: "x.db"}},
		{name: "sqlite without path", config: Config{Type: SQLiteBackend}, wantErr: "SQLite database path"},
		{name: "postgres without url", config: Config{Type: PostgresBackend}, wantErr: "database URL"},
		{name: "unknown type", config: Config{Type: "sheets"}, wantErr: "invalid backend type"},
		{name: "amqp without url", config: Config{Type: MemoryBackend, Events: AMQPEvents}, wantErr: "AMQP URL"},
		{name: "kafka without topic", config: Config{Type: MemoryBackend, Events: KafkaEvents, KafkaBrokers: []string{"k:9092"}}, wantErr: "kafka brokers and topic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}

	cfg, err := FromAppConfig(&config.Config{
		DataBackend:     "postgres",
		DatabaseURL:     "postgres://localhost/finwatch",
		EventsBackend:   "kafka",
		KafkaBrokers:    []string{"k1:9092"},
		KafkaTopic:      "finwatch.notifications",
		AMQPNotifyQueue: "notifications",
	})
	if err != nil {
		t.Fatalf("FromAppConfig() error = %v", err)
	}
	if cfg.Type != PostgresBackend || cfg.Events != KafkaEvents || cfg.NotifyQueue != "notifications" {
		t.Errorf("FromAppConfig() = %+v", cfg)
	}

	if _, err := FromAppConfig(&config.Config{DataBackend: "sheets"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestCreateBackend(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(nil)

	t.Run("memory without events", func(t *testing.T) {
		res, err := f.CreateBackend(ctx, Config{Type: MemoryBackend})
		if err != nil {
			t.Fatalf("CreateBackend() error = %v", err)
		}
		if res.Store == nil || res.Events != nil {
			t.Fatalf("CreateBackend() = %+v", res)
		}
		if err := res.Cleanup(); err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}
	})

	t.Run("sqlite with kafka events", func(t *testing.T) {
		res, err := f.CreateBackend(ctx, Config{
			Type:         SQLiteBackend,
			SQLiteDBPath: filepath.Join(t.TempDir(), "finwatch.db"),
			Events:       KafkaEvents,
			KafkaBrokers: []string{"localhost:9092"},
			KafkaTopic:   "finwatch.notifications",
		})
		if err != nil {
			t.Fatalf("CreateBackend() error = %v", err)
		}
		defer res.Cleanup()
		if res.Events == nil {
			t.Fatal("expected kafka publisher")
		}
		users, err := res.Store.ListUsers(ctx)
		if err != nil || len(users) != 0 {
			t.Fatalf("ListUsers() = %v, %v", users, err)
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		if _, err := f.CreateBackend(ctx, Config{Type: SQLiteBackend}); err == nil {
			t.Fatal("expected error")
		}
	})
}

package config

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"tender-admin/internal/domain"
	"tender-admin/internal/observability"
	"tender-admin/internal/repository/memory"
	"tender-admin/internal/repository/postgres"
	"tender-admin/internal/repository/redis"
	"tender-admin/internal/repository/sqlite"
)

// NewPostgresConnection creates a new PostgreSQL database connection
func NewPostgresConnection(dbURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// OpenStore connects the key-value backend chosen by STORE_DRIVER. The
// returned close func releases everything OpenStore opened.
func OpenStore(ctx context.Context, cfg *Config) (domain.KeyValueStore, func() error, error) {
	switch cfg.StoreDriver {
	case StoreMemory, "":
		store := memory.NewKVStore()
		return store, store.Close, nil

	case StoreSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return store, store.Close, nil

	case StoreRedis:
		client, err := redis.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		store := redis.NewKVStore(client, redis.DefaultPrefix, cfg.RedisTTL)
		return store, store.Close, nil

	case StorePostgres:
		db, err := NewPostgresConnection(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		store, err := postgres.NewKVStore(db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		go reportDBStats(ctx, db, 15*time.Second)
		closeFn := func() error {
			storeErr := store.Close()
			if err := db.Close(); err != nil {
				return err
			}
			return storeErr
		}
		return store, closeFn, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// reportDBStats copies the pool statistics into the connection gauges until
// ctx is done.
func reportDBStats(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		recordDBStats(db.Stats())
		select {
		case <-ctx.Done():
			slog.Debug("stopping db stats reporter")
			return
		case <-ticker.C:
		}
	}
}

func recordDBStats(stats sql.DBStats) {
	observability.DBConnectionsOpen.Set(float64(stats.OpenConnections))
	observability.DBConnectionsInUse.Set(float64(stats.InUse))
	observability.DBConnectionsIdle.Set(float64(stats.Idle))
}

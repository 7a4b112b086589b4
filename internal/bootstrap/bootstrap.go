// Package bootstrap builds the infrastructure shared by the binaries from configs.Config.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sf7293/tmanager/configs"
	db2 "github.com/sf7293/tmanager/db"
	"github.com/sf7293/tmanager/internal/domain"
	"github.com/sf7293/tmanager/internal/memory"
	"github.com/sf7293/tmanager/internal/postgres"
	"github.com/sf7293/tmanager/internal/redis"

	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
)

func newMigrate(migrationURI string) (*migrate.Migrate, error) {
	d, err := iofs.New(db2.Migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("prepare migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, migrationURI)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}

	return m, nil
}

// MigrateUp applies every pending migration; an up-to-date schema is not an error
func MigrateUp(migrationURI string) error {
	m, err := newMigrate(migrationURI)
	if err != nil {
		return err
	}
	defer closeMigrate(m)

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	slog.Info("Migrations ran successfully")

	return nil
}

// MigrateDown rolls back the given number of migrations
func MigrateDown(migrationURI string, steps int) error {
	m, err := newMigrate(migrationURI)
	if err != nil {
		return err
	}
	defer closeMigrate(m)

	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	slog.Info("Migrations rolled back successfully", "steps", steps)

	return nil
}

func closeMigrate(m *migrate.Migrate) {
	sourceErr, dbErr := m.Close()
	if sourceErr != nil {
		slog.Error("Error occurred while closing migration source", "error", sourceErr.Error())
	}
	if dbErr != nil {
		slog.Error("Error occurred while closing migration database", "error", dbErr.Error())
	}
}

// OpenStorage connects the backend named by STORAGE_BACKEND. The returned func releases it.
func OpenStorage(ctx context.Context, cfg *configs.Config) (domain.Storage, func(), error) {
	switch cfg.StorageBackend {
	case configs.StorageBackendPostgres:
		storage, err := postgres.NewStorage(ctx, cfg.Database.ToDbConnectionUri())
		if err != nil {
			return nil, nil, err
		}
		slog.Info("Postgres connection has been initialized successfully")
		return storage, storage.Close, nil
	case configs.StorageBackendMemory:
		slog.Warn("Using the in-memory storage, data is lost on exit")
		return memory.NewStorage(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unrecognized storage backend %q", cfg.StorageBackend)
	}
}

// OpenLock connects redis when it is configured. Without redis it returns a nil
// interface and a no-op release func.
func OpenLock(ctx context.Context, cfg *configs.Config) (domain.DistributedLock, func(), error) {
	if !cfg.RedisConfig.IsConfigured() {
		slog.Info("Redis is not configured, distributed locks are disabled")
		return nil, func() {}, nil
	}

	client, err := redis.NewClient(cfg.RedisConfig.ToRedisConnectionUri())
	if err != nil {
		return nil, nil, err
	}
	if err := client.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("Redis connection has been initialized successfully")

	return client, func() {
		if err := client.Close(); err != nil {
			slog.Error("An error occurred while closing Redis connection", "error", err.Error())
		}
	}, nil
}

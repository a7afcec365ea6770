// Package database opens the store.Store selected by configuration.
package database

import (
	"context"
	"fmt"
	"time"

	"docutalk-backend/internal/config"
	"docutalk-backend/internal/store"
	"docutalk-backend/internal/store/mongodb"
	"docutalk-backend/internal/store/postgres"
	"docutalk-backend/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const connectTimeout = 15 * time.Second

// Open connects the configured driver and prepares its schema or indexes.
// The returned func releases the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig) (store.Store, func(), error) {
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	switch cfg.Driver {
	case "mongo":
		return openMongo(connectCtx, cfg)
	case "postgres", "":
		return openPostgres(connectCtx, cfg)
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func openMongo(ctx context.Context, cfg config.DatabaseConfig) (store.Store, func(), error) {
	ms, err := mongodb.Connect(ctx, cfg.URL, cfg.MongoDatabase)
	if err != nil {
		return nil, nil, err
	}
	if err := ms.EnsureIndexes(ctx); err != nil {
		_ = ms.Close(context.Background())
		return nil, nil, fmt.Errorf("ensuring indexes: %w", err)
	}
	return ms, func() {
		if err := ms.Close(context.Background()); err != nil {
			logger.Warn("[database] mongo disconnect failed", zap.Error(err))
		}
	}, nil
}

func openPostgres(ctx context.Context, cfg config.DatabaseConfig) (store.Store, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("unable to ping database: %w", err)
	}
	ps := postgres.NewPostgresStore(pool)
	if cfg.AutoMigrate {
		if err := ps.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrating schema: %w", err)
		}
	}
	logger.Info("[database] postgres connection pool established")
	return ps, pool.Close, nil
}

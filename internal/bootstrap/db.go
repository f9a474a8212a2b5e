package bootstrap

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GoSim-25-26J-441/issue-tracker/config"
	"github.com/GoSim-25-26J-441/issue-tracker/internal/db"
	"github.com/GoSim-25-26J-441/issue-tracker/internal/issues/repository"
	"github.com/GoSim-25-26J-441/issue-tracker/internal/issues/service"
)

const migrateTimeout = 30 * time.Second

// OpenStore connects the configured backend and returns the store together
// with a function releasing its connections.
func OpenStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (service.Store, func(), error) {
	switch cfg.App.StoreBackend {
	case config.StoreBackendRedis:
		client, err := OpenRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		log.Info("store ready", zap.String("backend", "redis"), zap.String("addr", cfg.Redis.Addr))
		return repository.NewRedisStore(client, cfg.Redis.KeyPrefix), func() { _ = client.Close() }, nil

	case config.StoreBackendPostgres:
		database, err := db.Open(ctx, db.Options{
			Driver:   cfg.Database.Driver,
			DSN:      cfg.Database.ConnString(),
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
		if err != nil {
			return nil, nil, err
		}

		mctx, cancel := context.WithTimeout(ctx, migrateTimeout)
		defer cancel()
		if err := repository.Migrate(mctx, database.SQL); err != nil {
			database.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}

		log.Info("store ready", zap.String("backend", "postgres"), zap.String("driver", cfg.Database.Driver))
		return repository.NewPostgresStore(database.SQL), database.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported store backend %q", cfg.App.StoreBackend)
	}
}

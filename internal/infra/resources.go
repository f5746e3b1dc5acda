package infra

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/tontine/internal/config"
	"github.com/congo-pay/tontine/internal/kvstore"
)

// Resources holds the external connections and the user-state store built on them.
type Resources struct {
	DB    *pgxpool.Pool
	Cache *redis.Client
	Store kvstore.Store
}

// Connect opens whichever of PostgreSQL and Redis is configured and selects
// the user-state backend named by cfg.StoreBackend.
func Connect(ctx context.Context, cfg config.Config) (*Resources, error) {
	res := &Resources{}

	if cfg.DatabaseURL != "" {
		db, err := NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		res.DB = db
	}

	if cfg.RedisURL != "" {
		cache, err := NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			res.Close(nil)
			return nil, err
		}
		res.Cache = cache
	}

	switch cfg.StoreBackend {
	case config.BackendRedis:
		res.Store = kvstore.NewRedisStore(res.Cache, cfg.StoreKeyPrefix)
	case config.BackendPostgres:
		pg := kvstore.NewPostgresStore(res.DB)
		if err := pg.EnsureSchema(ctx); err != nil {
			res.Close(nil)
			return nil, err
		}
		res.Store = pg
	case config.BackendMemory:
		res.Store = kvstore.NewMemory()
	default:
		res.Close(nil)
		return nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}

	return res, nil
}

// Close releases every open connection.
func (r *Resources) Close(logger *slog.Logger) {
	if r.DB != nil {
		r.DB.Close()
	}
	if r.Cache != nil {
		if err := r.Cache.Close(); err != nil && logger != nil {
			logger.Warn("close redis", "error", err)
		}
	}
}

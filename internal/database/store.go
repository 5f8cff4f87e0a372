package database

import (
	"context"
	"fmt"

	"go-gin-lucky-draw/config"
	"go-gin-lucky-draw/internal/storage"
	"go-gin-lucky-draw/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Backend 啟動時選定的儲存後端，執行期間不會切換
type Backend struct {
	Name  string
	Store storage.Store
	// Redis 只有 redis 後端才有，pending queue 共用
	Redis *redis.Client

	closers []func()
}

func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func retryPolicy(cfg config.StorageConfig) storage.RetryPolicy {
	policy := storage.DefaultRetryPolicy()
	if cfg.MaxRetries > 0 {
		policy.MaxTries = uint(cfg.MaxRetries)
	}
	if cfg.MaxElapsed > 0 {
		policy.MaxElapsed = cfg.MaxElapsed
	}
	return policy
}

func OpenStore(ctx context.Context, cfg *config.Config) (*Backend, error) {
	log := logger.WithComponent("database").With(zap.String("backend", cfg.Storage.Backend))
	policy := retryPolicy(cfg.Storage)

	switch cfg.Storage.Backend {
	case config.StorageRedis:
		rdb, err := InitRedis(ctx, &cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		log.Info("storage ready")
		return &Backend{
			Name:    config.StorageRedis,
			Store:   storage.NewRedisStore(rdb, storage.DefaultRedisPrefix, policy),
			Redis:   rdb,
			closers: []func(){func() { rdb.Close() }},
		}, nil

	case config.StoragePostgres:
		pool, err := InitDatabase(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("init database: %w", err)
		}
		store := storage.NewPostgresStore(pool, policy)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info("storage ready")
		return &Backend{
			Name:    config.StoragePostgres,
			Store:   store,
			closers: []func(){func() { store.Close() }},
		}, nil

	case config.StorageMemory:
		log.Warn("using in-process memory store: receipts and inventory are not shared between instances and are lost on restart")
		return &Backend{
			Name:  config.StorageMemory,
			Store: storage.NewMemoryStore(),
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

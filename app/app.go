// Package app wires configuration into the storage, ingestion and API components shared by the
// server and the command-line tools.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"curio/api"
	"curio/common"
	"curio/config"
	"curio/extract"
	"curio/ingest"
	"curio/logger"
	"curio/orchestrator"
	"curio/storage"
)

// App holds the wired components.
type App struct {
	Config *config.Config
	Log    logger.Logger
	Pool   *storage.Pool
	Store  *storage.Store
	Ingest *ingest.Service
	Feeds  *orchestrator.Runner

	redis *redis.Client
}

// New builds every component from cfg. Redis is connected only when configured.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &App{Config: cfg, Log: log}
	a.Pool = storage.NewPool(newDialer(cfg.Storage), cfg.Storage.RefreshInterval, log)

	opts := []storage.Option{storage.WithLogger(log)}
	if cfg.Redis.Enabled() {
		client, err := connectRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.redis = client
		opts = append(opts,
			storage.WithIndex(storage.NewRedisIndex(client, cfg.Redis.IndexPrefix)),
			storage.WithLocker(storage.NewRedisLocker(client, "", cfg.Redis.LockTTL)),
		)
		log.Info("Hash index and upload locks enabled", logger.String("redis", cfg.Redis.Addr))
	}

	a.Store = storage.NewStore(a.Pool, opts...)
	a.Ingest = ingest.NewService(a.Store, extract.New(cfg.Fetch.Timeout), log)
	a.Feeds = orchestrator.New(nil, a.Ingest, log)
	return a, nil
}

// Router returns the HTTP API over the app's components.
func (a *App) Router() *gin.Engine {
	return api.NewRouter(api.Deps{
		Store:  a.Store,
		Ingest: a.Ingest,
		Feeds:  a.Feeds,
		Health: a.health,
		Log:    a.Log,
	})
}

func (a *App) health(ctx context.Context) error {
	if err := a.Pool.Check(ctx); err != nil {
		return err
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close releases the Redis connection.
func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}

func newDialer(cfg config.StorageConfig) storage.Dialer {
	if cfg.Backend == config.BackendMemory {
		backend := storage.NewMemoryBackend()
		return func(context.Context) (storage.Backend, error) { return backend, nil }
	}

	return func(ctx context.Context) (storage.Backend, error) {
		client, err := common.NewS3(ctx, common.S3Config{
			Region:       cfg.Region,
			Profile:      cfg.Profile,
			Endpoint:     cfg.Endpoint,
			UsePathStyle: cfg.UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("create s3 client: %w", err)
		}
		return storage.NewS3Backend(client, cfg.Bucket, cfg.Prefix), nil
	}
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

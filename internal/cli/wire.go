package cli

import (
	"context"
	"fmt"

	"github.com/Sternrassler/callrail-extractor/pkg/cache"
	"github.com/Sternrassler/callrail-extractor/pkg/catalog"
	"github.com/Sternrassler/callrail-extractor/pkg/client"
	"github.com/Sternrassler/callrail-extractor/pkg/config"
	"github.com/Sternrassler/callrail-extractor/pkg/extract"
	"github.com/Sternrassler/callrail-extractor/pkg/logging"
	"github.com/Sternrassler/callrail-extractor/pkg/pagination"
	"github.com/Sternrassler/callrail-extractor/pkg/ratelimit"
	"github.com/Sternrassler/callrail-extractor/pkg/retry"
	"github.com/Sternrassler/callrail-extractor/pkg/scope"
	"github.com/Sternrassler/callrail-extractor/pkg/sink"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// app holds the wired components of one run.
type app struct {
	coordinator *extract.Coordinator
	redis       *redis.Client
}

// Close releases the redis connection, if any.
func (a *app) Close() error {
	if a.redis == nil {
		return nil
	}
	return a.redis.Close()
}

// newApp wires the extractor from cfg. An unreachable redis is not fatal:
// the budget falls back to process memory and scope ids are not cached.
func newApp(ctx context.Context, cfg *config.Config, registry *catalog.Registry, runID string) (*app, error) {
	logger := logging.WithRunID("cli", runID)

	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unavailable, using in-memory budget")
			_ = rdb.Close()
			rdb = nil
		} else {
			logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
		}
	}

	tracker := ratelimit.NewTracker(rdb, ratelimit.Limits{
		PerHour: cfg.API.RateLimitPerHour,
		PerDay:  cfg.API.RateLimitPerDay,
	}, logging.NewLogger("ratelimit"))

	clientCfg := client.DefaultConfig(cfg.API.Key)
	clientCfg.BaseURL = cfg.API.BaseURL
	clientCfg.Timeout = cfg.API.Timeout()
	clientCfg.RequestsPerSecond = cfg.API.RequestsPerSecond
	clientCfg.Budget = tracker
	clientCfg.Breaker = client.BreakerConfig{
		Enabled:             cfg.Breaker.Enabled,
		ConsecutiveFailures: uint32(cfg.Breaker.ConsecutiveFailures),
		OpenTimeout:         cfg.Breaker.OpenTimeout,
	}
	c, err := client.New(clientCfg)
	if err != nil {
		closeRedis(rdb)
		return nil, fmt.Errorf("create client: %w", err)
	}

	policy := retry.NewPolicy(retry.Config{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialBackoff: cfg.Retry.BaseDelay,
		MaxBackoff:     cfg.Retry.MaxDelay,
		Multiplier:     cfg.Retry.Multiplier,
		Jitter:         cfg.Retry.Jitter,
	}, log.Logger)
	fetcher := pagination.NewBatchFetcher(c, policy, pagination.DefaultConfig())

	var store cache.Store
	if rdb != nil {
		store = cache.NewManager(rdb)
	}
	resolver := scope.NewResolver(fetcher, registry, store, scope.Config{
		AccountID: cfg.API.AccountID,
		Tenant:    cache.TenantFor(cfg.API.Key),
		TTL:       cfg.Redis.CacheTTL,
	})

	writer, err := sink.New(ctx, sink.Config{
		Dir:     cfg.Output.DataDir,
		Formats: cfg.Output.Formats,
		Upload: sink.UploadConfig{
			Endpoint:  cfg.Upload.Endpoint,
			Bucket:    cfg.Upload.Bucket,
			Region:    cfg.Upload.Region,
			AccessKey: cfg.Upload.AccessKey,
			SecretKey: cfg.Upload.SecretKey,
			Prefix:    cfg.Upload.Prefix,
			UseSSL:    cfg.Upload.UseSSL,
		},
	})
	if err != nil {
		closeRedis(rdb)
		return nil, fmt.Errorf("create output writer: %w", err)
	}

	coord := extract.NewCoordinator(registry, fetcher, resolver, writer, extract.Config{
		DefaultLimit: cfg.API.MaxRecords,
		BatchSize:    cfg.Batch.DefaultSize,
		MinBatch:     cfg.Batch.MinSize,
		MaxBatch:     cfg.Batch.MaxSize,
		RunID:        runID,
	})

	return &app{coordinator: coord, redis: rdb}, nil
}

func closeRedis(rdb *redis.Client) {
	if rdb != nil {
		_ = rdb.Close()
	}
}

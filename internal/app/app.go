package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/benvon/checkin-insights/internal/config"
	"github.com/benvon/checkin-insights/internal/metrics"
	"github.com/benvon/checkin-insights/internal/services/cache"
	"github.com/benvon/checkin-insights/internal/services/explain"
	"github.com/benvon/checkin-insights/internal/services/features"
	"github.com/benvon/checkin-insights/internal/services/heuristic"
	"github.com/benvon/checkin-insights/internal/services/prediction"
	"github.com/benvon/checkin-insights/internal/services/registry"
)

// maxL1TTL bounds how long a replica keeps a shared-cache hit locally
const maxL1TTL = 30 * time.Second

// Engine is the assembled prediction stack shared by the binaries
type Engine struct {
	Orchestrator *prediction.Orchestrator
	Registry     *registry.Registry
	Heuristics   *heuristic.Engine
	Memory       *cache.MemoryCache
	// Redis is nil when REDIS_URL is not set
	Redis *cache.RedisCache

	reloader *registry.Reloader
	sweeper  *cache.Sweeper
	logger   *zap.Logger
	closers  []func() error
}

// Build wires the orchestrator from configuration. source is the check-in
// reader; recorder may be nil.
func Build(ctx context.Context, cfg *config.Config, source prediction.CheckInSource, logger *zap.Logger, recorder *metrics.Recorder) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{logger: logger}

	hcfg, err := heuristic.LoadConfig(cfg.HeuristicConfigPath)
	if err != nil {
		return nil, &prediction.ConfigurationError{Component: "heuristic config", Err: err}
	}
	e.Heuristics, err = heuristic.NewEngine(hcfg)
	if err != nil {
		return nil, &prediction.ConfigurationError{Component: "heuristic engine", Err: err}
	}

	store, closeStore, err := OpenModelStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, closeStore)
	fe := features.NewEngineer()
	e.Registry = registry.New(store, fe.SchemaVersion(), logger)
	e.reloader = registry.NewReloader(e.Registry, cfg.ModelReloadInterval, logger)

	e.Memory = cache.NewMemoryCache(cfg.CacheMaxEntries)
	e.sweeper = cache.NewSweeper(e.Memory, cfg.CacheTTL, logger)
	var predictionCache cache.Cache = e.Memory
	if cfg.RedisURL != "" {
		e.Redis, err = cache.NewRedisCache(cfg.RedisURL, logger)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("failed to connect to prediction cache: %w", err)
		}
		e.closers = append(e.closers, e.Redis.Close)
		predictionCache = cache.NewTiered(e.Memory, e.Redis, min(cfg.CacheTTL, maxL1TTL))
	}

	e.Orchestrator, err = prediction.New(prediction.Dependencies{
		Source:     source,
		Features:   fe,
		Models:     e.Registry,
		Heuristics: e.Heuristics,
		Explainer:  explain.New(cfg.ExplanationTopK, cfg.ExplanationTimeout),
		Cache:      predictionCache,
		Metrics:    recorder,
		Logger:     logger,
	}, prediction.Config{
		InferenceTimeout: cfg.InferenceTimeout,
		CacheTTL:         cfg.CacheTTL,
	})
	if err != nil {
		e.Close()
		return nil, err
	}

	logger.Info("prediction_engine_ready",
		zap.String("schema_version", fe.SchemaVersion()),
		zap.String("heuristic_version", e.Heuristics.Version()),
		zap.String("model_store", cfg.ModelStore),
		zap.Bool("shared_cache", e.Redis != nil),
	)
	return e, nil
}

// OpenModelStore returns the artifact store selected by MODEL_STORE and a
// function releasing its resources
func OpenModelStore(ctx context.Context, cfg *config.Config) (registry.ArtifactStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.ModelStore {
	case config.ModelStoreFile:
		return registry.NewFileStore(cfg.ModelDir), noop, nil
	case config.ModelStoreGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, &prediction.ConfigurationError{Component: "gcs model store", Err: err}
		}
		return registry.NewGCSStore(client, cfg.ModelGCSBucket, cfg.ModelGCSPrefix), client.Close, nil
	case config.ModelStoreNone, "":
		return registry.NoopStore{}, noop, nil
	default:
		return nil, nil, &prediction.ConfigurationError{Component: fmt.Sprintf("unknown model store %q", cfg.ModelStore)}
	}
}

// RunBackground runs the model reloader and cache sweeper until ctx is cancelled
func (e *Engine) RunBackground(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.reloader.Start(ctx) })
	g.Go(func() error { return e.sweeper.Start(ctx) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// CacheHealthCheck pings the shared cache; nil when Redis is not configured
func (e *Engine) CacheHealthCheck() func(context.Context) error {
	if e.Redis == nil {
		return nil
	}
	return e.Redis.Ping
}

// Close releases cache and artifact store connections
func (e *Engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			e.logger.Warn("failed_to_close_prediction_engine_resource", zap.Error(err))
		}
	}
	e.closers = nil
}

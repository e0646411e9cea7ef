package registry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reloader periodically refreshes a registry so new artifact versions are picked up
type Reloader struct {
	registry *Registry
	interval time.Duration
	logger   *zap.Logger
}

// NewReloader creates a reloader. A non-positive interval disables it.
func NewReloader(registry *Registry, interval time.Duration, logger *zap.Logger) *Reloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reloader{registry: registry, interval: interval, logger: logger}
}

// Start runs the reload loop until ctx is cancelled
func (r *Reloader) Start(ctx context.Context) error {
	if r.interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.reload(ctx)
		}
	}
}

func (r *Reloader) reload(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if err := r.registry.Refresh(ctx); err != nil {
		r.logger.Warn("model_reload_partial_failure", zap.Error(err))
		return
	}
	r.logger.Debug("model_reload_complete")
}

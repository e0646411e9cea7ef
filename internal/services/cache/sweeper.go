package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Purger removes expired entries
type Purger interface {
	PurgeExpired(now time.Time) int
}

// Sweeper periodically purges expired entries so passive expiry does not hold memory
type Sweeper struct {
	purger   Purger
	interval time.Duration
	logger   *zap.Logger
}

// NewSweeper creates a sweeper running every interval
func NewSweeper(purger Purger, interval time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultTTL
	}
	return &Sweeper{purger: purger, interval: interval, logger: logger}
}

// Start runs the sweep loop until ctx is cancelled
func (s *Sweeper) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(time.Now())
		}
	}
}

// sweep purges entries expired at now
func (s *Sweeper) sweep(now time.Time) int {
	if s.purger == nil {
		return 0
	}
	n := s.purger.PurgeExpired(now)
	if n > 0 {
		s.logger.Debug("prediction_cache_swept", zap.Int("removed", n))
	}
	return n
}

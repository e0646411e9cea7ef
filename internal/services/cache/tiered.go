package cache

import (
	"context"
	"time"

	"github.com/benvon/checkin-insights/internal/models"
)

// Tiered layers a local L1 over a shared L2. L2 hits are copied into L1.
type Tiered struct {
	l1    *MemoryCache
	l2    Cache
	l1TTL time.Duration
}

// NewTiered creates a two-level cache. An L2 hit is kept locally for l1TTL or
// the L2 entry's remaining lifetime, whichever is shorter.
func NewTiered(l1 *MemoryCache, l2 Cache, l1TTL time.Duration) *Tiered {
	if l1TTL <= 0 {
		l1TTL = DefaultTTL
	}
	return &Tiered{l1: l1, l2: l2, l1TTL: l1TTL}
}

// Get implements Cache
func (t *Tiered) Get(ctx context.Context, key Key) (*models.PredictionResult, bool) {
	if r, ok := t.l1.Get(ctx, key); ok {
		return r, true
	}
	if t.l2 == nil {
		return nil, false
	}
	ttl := t.l1TTL
	var (
		r  *models.PredictionResult
		ok bool
	)
	if tr, isTTL := t.l2.(TTLReader); isTTL {
		var remaining time.Duration
		r, remaining, ok = tr.GetWithTTL(ctx, key)
		if remaining > 0 && remaining < ttl {
			ttl = remaining
		}
	} else {
		r, ok = t.l2.Get(ctx, key)
	}
	if !ok {
		return nil, false
	}
	_ = t.l1.Put(ctx, key, r, ttl)
	return r, true
}

// Put implements Cache. The L1 write always happens; an L2 failure is returned.
func (t *Tiered) Put(ctx context.Context, key Key, result *models.PredictionResult, ttl time.Duration) error {
	l1TTL := ttl
	if t.l1TTL < ttl || ttl <= 0 {
		l1TTL = t.l1TTL
	}
	_ = t.l1.Put(ctx, key, result, l1TTL)
	if t.l2 == nil {
		return nil
	}
	return t.l2.Put(ctx, key, result, ttl)
}

// L1 exposes the local tier so it can be swept
func (t *Tiered) L1() *MemoryCache {
	return t.l1
}

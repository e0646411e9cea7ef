package prediction

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/benvon/checkin-insights/internal/metrics"
	"github.com/benvon/checkin-insights/internal/models"
	"github.com/benvon/checkin-insights/internal/services/cache"
	"github.com/benvon/checkin-insights/internal/services/explain"
	"github.com/benvon/checkin-insights/internal/services/features"
	"github.com/benvon/checkin-insights/internal/services/heuristic"
	"github.com/benvon/checkin-insights/internal/services/registry"
)

var (
	testNow  = time.Date(2024, 3, 13, 12, 0, 0, 0, time.UTC)
	testUser = uuid.MustParse("11111111-1111-1111-1111-111111111111")
)

// fakeSource serves an in-memory history with call tracking
type fakeSource struct {
	mu           sync.Mutex
	checkIns     []models.CheckIn
	err          error
	latestCalls  atomic.Int32
	historyCalls atomic.Int32
}

func (s *fakeSource) add(c models.CheckIn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkIns = append(s.checkIns, c)
	sort.Slice(s.checkIns, func(i, j int) bool { return s.checkIns[i].Timestamp.Before(s.checkIns[j].Timestamp) })
}

func (s *fakeSource) LatestCheckIn(ctx context.Context, _ uuid.UUID, before time.Time) (*models.CheckIn, error) {
	s.latestCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	for i := len(s.checkIns) - 1; i >= 0; i-- {
		if s.checkIns[i].Timestamp.Before(before) {
			c := s.checkIns[i]
			return &c, nil
		}
	}
	return nil, nil
}

func (s *fakeSource) FetchHistory(ctx context.Context, _ uuid.UUID, before time.Time, maxDays int) ([]models.CheckIn, error) {
	s.historyCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	start := before.Add(-time.Duration(maxDays) * 24 * time.Hour)
	var out []models.CheckIn
	for _, c := range s.checkIns {
		if !c.Timestamp.Before(start) && c.Timestamp.Before(before) {
			out = append(out, c)
		}
	}
	return out, nil
}

// fakeModel returns a fixed output, or misbehaves on request
type fakeModel struct {
	typ     models.PredictionType
	version string
	out     registry.Output
	err     error
	block   bool
	panics  bool
}

func (m *fakeModel) Version() string                       { return m.version }
func (m *fakeModel) PredictionType() models.PredictionType { return m.typ }
func (m *fakeModel) SchemaVersion() string                 { return features.SchemaVersion }
func (m *fakeModel) Predict(ctx context.Context, _ *features.Vector) (registry.Output, error) {
	if m.panics {
		panic("corrupt weights")
	}
	if m.block {
		<-ctx.Done()
		return registry.Output{}, ctx.Err()
	}
	return m.out, m.err
}

// fakeResolver serves models from a map
type fakeResolver struct {
	models map[models.PredictionType]registry.Model
}

func (r *fakeResolver) Resolve(_ context.Context, t models.PredictionType) (registry.Model, bool) {
	m, ok := r.models[t]
	return m, ok
}

// spyCache counts writes on top of a memory cache
type spyCache struct {
	*cache.MemoryCache
	puts atomic.Int32
}

func (c *spyCache) Put(ctx context.Context, key cache.Key, r *models.PredictionResult, ttl time.Duration) error {
	c.puts.Add(1)
	return c.MemoryCache.Put(ctx, key, r, ttl)
}

type harness struct {
	orch     *Orchestrator
	source   *fakeSource
	resolver *fakeResolver
	cache    *spyCache
	registry *prometheus.Registry
	engine   *heuristic.Engine
}

func newHarness(t *testing.T, timeout time.Duration) *harness {
	t.Helper()

	cfg, err := heuristic.LoadConfig("")
	if err != nil {
		t.Fatalf("failed to load heuristics: %v", err)
	}
	engine, err := heuristic.NewEngine(cfg)
	if err != nil {
		t.Fatalf("failed to create heuristic engine: %v", err)
	}

	h := &harness{
		source:   &fakeSource{},
		resolver: &fakeResolver{models: make(map[models.PredictionType]registry.Model)},
		cache:    &spyCache{MemoryCache: cache.NewMemoryCache(100)},
		registry: prometheus.NewRegistry(),
		engine:   engine,
	}
	h.orch, err = New(Dependencies{
		Source:     h.source,
		Features:   features.NewEngineer(),
		Models:     h.resolver,
		Heuristics: engine,
		Explainer:  explain.New(5, time.Second),
		Cache:      h.cache,
		Metrics:    metrics.New(h.registry),
	}, Config{
		InferenceTimeout: timeout,
		CacheTTL:         time.Minute,
		Now:              func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return h
}

func checkInAt(at time.Time, mood float64) models.CheckIn {
	return models.CheckIn{
		ID:                  uuid.New(),
		UserID:              testUser,
		Timestamp:           at,
		Mood:                models.Float(mood),
		EnergyLevel:         models.Float(5),
		HoursSlept:          models.Float(6),
		Anxiety:             models.Float(6),
		Activation:          models.Float(5),
		Irritability:        models.Float(4),
		MedicationAdherence: models.Float(0.8),
		CaffeineDoses:       models.Float(2),
		ExerciseMinutes:     models.Float(15),
	}
}

// seedDays adds one check-in per day for the last n days, the newest an hour ago
func (h *harness) seedDays(n int) []models.CheckIn {
	var out []models.CheckIn
	for i := n - 1; i >= 0; i-- {
		c := checkInAt(testNow.Add(-time.Hour-time.Duration(i)*24*time.Hour), float64(4+i%3))
		h.source.add(c)
		out = append(out, c)
	}
	return out
}

var errBoom = errors.New("boom")

func nan() float64 {
	zero := 0.0
	return zero / zero
}

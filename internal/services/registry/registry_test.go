package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benvon/checkin-insights/internal/models"
	"github.com/benvon/checkin-insights/internal/services/features"
)

func TestRegistry_ResolveUnavailableIsNotAnError(t *testing.T) {
	t.Parallel()

	r := New(NoopStore{}, features.SchemaVersion, nil)
	for _, pt := range models.AllPredictionTypes() {
		m, ok := r.Resolve(context.Background(), pt)
		if ok || m != nil {
			t.Errorf("Resolve(%s) = %v, %v; want unavailable", pt, m, ok)
		}
	}
}

func TestRegistry_SingleFlight(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.release = make(chan struct{})
	store.set(models.PredictionTypeRelapseRisk, &stubModel{version: "r1", typ: models.PredictionTypeRelapseRisk, schema: features.SchemaVersion})
	r := New(store, features.SchemaVersion, nil)

	const callers = 20
	var wg sync.WaitGroup
	results := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := r.Resolve(context.Background(), models.PredictionTypeRelapseRisk)
			results <- ok
		}()
	}

	// Give the goroutines time to pile up on the in-flight load.
	time.Sleep(50 * time.Millisecond)
	close(store.release)
	wg.Wait()
	close(results)

	for ok := range results {
		if !ok {
			t.Error("expected every caller to resolve the model")
		}
	}
	if got := store.calls.Load(); got != 1 {
		t.Errorf("store loaded %d times, want 1", got)
	}

	// Memoised afterwards.
	r.Resolve(context.Background(), models.PredictionTypeRelapseRisk)
	if got := store.calls.Load(); got != 1 {
		t.Errorf("store loaded %d times after memoisation, want 1", got)
	}
}

func TestRegistry_NotFoundIsMemoised(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	r := New(store, features.SchemaVersion, nil)
	r.Resolve(context.Background(), models.PredictionTypeMoodState)
	r.Resolve(context.Background(), models.PredictionTypeMoodState)
	if got := store.calls.Load(); got != 1 {
		t.Errorf("store loaded %d times, want 1", got)
	}
}

func TestRegistry_TransientErrorIsRetried(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.fail(models.PredictionTypeRelapseRisk, errors.New("connection reset"))
	store.set(models.PredictionTypeRelapseRisk, &stubModel{version: "r1", typ: models.PredictionTypeRelapseRisk, schema: features.SchemaVersion})
	r := New(store, features.SchemaVersion, nil)
	now := time.Date(2024, 3, 13, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	if _, ok := r.Resolve(context.Background(), models.PredictionTypeRelapseRisk); ok {
		t.Fatal("expected unavailable while store is failing")
	}
	store.fail(models.PredictionTypeRelapseRisk, nil)

	// Still inside the backoff: the store is not asked again.
	if _, ok := r.Resolve(context.Background(), models.PredictionTypeRelapseRisk); ok {
		t.Fatal("expected unavailable during backoff")
	}
	if got := store.calls.Load(); got != 1 {
		t.Errorf("store loaded %d times during backoff, want 1", got)
	}

	now = now.Add(defaultErrorBackoff + time.Second)
	m, ok := r.Resolve(context.Background(), models.PredictionTypeRelapseRisk)
	if !ok || m.Version() != "r1" {
		t.Fatal("expected model after store recovered")
	}
	if got := store.calls.Load(); got != 2 {
		t.Errorf("store loaded %d times, want 2", got)
	}
}

func TestRegistry_ResolveReturnsWhenCallerGivesUp(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.release = make(chan struct{})
	store.set(models.PredictionTypeRelapseRisk, &stubModel{version: "r1", typ: models.PredictionTypeRelapseRisk, schema: features.SchemaVersion})
	r := New(store, features.SchemaVersion, nil)

	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		start := time.Now()
		m, ok := r.Resolve(ctx, models.PredictionTypeRelapseRisk)
		elapsed := time.Since(start)
		cancel()

		if ok || m != nil {
			t.Fatalf("call %d: expected unavailable while the store is blocked", i)
		}
		if elapsed > time.Second {
			t.Errorf("call %d: Resolve took %v, want it bounded by the caller deadline", i, elapsed)
		}
	}
	if got := store.calls.Load(); got != 1 {
		t.Errorf("store loaded %d times, want the second caller to join the in-flight load", got)
	}

	close(store.release)
	m, ok := r.Resolve(context.Background(), models.PredictionTypeRelapseRisk)
	if !ok || m.Version() != "r1" {
		t.Fatal("expected the shared load to finish and be memoised")
	}
	if got := store.calls.Load(); got != 1 {
		t.Errorf("store loaded %d times, want 1", got)
	}
}

func TestRegistry_ResolveCancelled(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.release = make(chan struct{})
	defer close(store.release)
	r := New(store, features.SchemaVersion, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := r.Resolve(ctx, models.PredictionTypeMoodState); ok {
		t.Error("expected unavailable for a cancelled caller")
	}
}

func TestRegistry_SchemaMismatchIsUnavailable(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.set(models.PredictionTypeSleepDisturbanceRisk, &stubModel{version: "s1", typ: models.PredictionTypeSleepDisturbanceRisk, schema: "fv0.40"})
	r := New(store, features.SchemaVersion, nil)

	if _, ok := r.Resolve(context.Background(), models.PredictionTypeSleepDisturbanceRisk); ok {
		t.Error("model for a different schema must not resolve")
	}
	for _, s := range r.Status(context.Background()) {
		if s.Type == models.PredictionTypeSleepDisturbanceRisk && s.Reason != ReasonSchemaMismatch {
			t.Errorf("status reason = %q, want %q", s.Reason, ReasonSchemaMismatch)
		}
	}
}

func TestRegistry_RefreshSwapsVersions(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.set(models.PredictionTypeRelapseRisk, &stubModel{version: "r1", typ: models.PredictionTypeRelapseRisk, schema: features.SchemaVersion})
	r := New(store, features.SchemaVersion, nil)

	m, _ := r.Resolve(context.Background(), models.PredictionTypeRelapseRisk)
	if m.Version() != "r1" {
		t.Fatalf("version = %s, want r1", m.Version())
	}

	store.set(models.PredictionTypeRelapseRisk, &stubModel{version: "r2", typ: models.PredictionTypeRelapseRisk, schema: features.SchemaVersion})
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	m, _ = r.Resolve(context.Background(), models.PredictionTypeRelapseRisk)
	if m.Version() != "r2" {
		t.Errorf("version after refresh = %s, want r2", m.Version())
	}
}

func TestRegistry_RefreshKeepsModelOnTransientError(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.set(models.PredictionTypeRelapseRisk, &stubModel{version: "r1", typ: models.PredictionTypeRelapseRisk, schema: features.SchemaVersion})
	r := New(store, features.SchemaVersion, nil)
	r.Resolve(context.Background(), models.PredictionTypeRelapseRisk)

	store.fail(models.PredictionTypeRelapseRisk, errors.New("timeout"))
	if err := r.Refresh(context.Background()); err == nil {
		t.Error("expected Refresh to report the failed type")
	}
	m, ok := r.Resolve(context.Background(), models.PredictionTypeRelapseRisk)
	if !ok || m.Version() != "r1" {
		t.Error("previous model should survive a failed refresh")
	}
}

func TestRegistry_Status(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.set(models.PredictionTypeMoodState, &stubModel{version: "m1", typ: models.PredictionTypeMoodState, schema: features.SchemaVersion})
	r := New(store, features.SchemaVersion, nil)

	status := r.Status(context.Background())
	if len(status) != len(models.AllPredictionTypes()) {
		t.Fatalf("status has %d entries", len(status))
	}
	for _, s := range status {
		if s.Type == models.PredictionTypeMoodState {
			if !s.Available || s.Version == nil || *s.Version != "m1" {
				t.Errorf("mood_state status = %+v", s)
			}
			continue
		}
		if s.Available || s.Reason != ReasonNotFound {
			t.Errorf("%s status = %+v, want not_found", s.Type, s)
		}
	}
}

func TestReloader_StartDisabled(t *testing.T) {
	t.Parallel()

	rl := NewReloader(New(NoopStore{}, features.SchemaVersion, nil), 0, nil)
	if err := rl.Start(context.Background()); err != nil {
		t.Errorf("disabled reloader returned %v", err)
	}
}

func TestReloader_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	rl := NewReloader(New(NoopStore{}, features.SchemaVersion, nil), time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rl.Start(ctx); err == nil {
		t.Error("expected context cancelled error")
	}
}

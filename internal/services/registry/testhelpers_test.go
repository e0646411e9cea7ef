package registry

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/benvon/checkin-insights/internal/models"
	"github.com/benvon/checkin-insights/internal/services/features"
)

type stubModel struct {
	version string
	typ     models.PredictionType
	schema  string
}

func (m *stubModel) Version() string                       { return m.version }
func (m *stubModel) PredictionType() models.PredictionType { return m.typ }
func (m *stubModel) SchemaVersion() string                 { return m.schema }
func (m *stubModel) Predict(context.Context, *features.Vector) (Output, error) {
	return Output{Probability: 0.5}, nil
}

// fakeStore counts loads and can block them until release is closed
type fakeStore struct {
	mu      sync.Mutex
	models  map[models.PredictionType]Model
	errs    map[models.PredictionType]error
	calls   atomic.Int32
	release chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		models: make(map[models.PredictionType]Model),
		errs:   make(map[models.PredictionType]error),
	}
}

func (s *fakeStore) set(t models.PredictionType, m Model) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models[t] = m
}

func (s *fakeStore) fail(t models.PredictionType, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.errs, t)
		return
	}
	s.errs[t] = err
}

func (s *fakeStore) Load(ctx context.Context, t models.PredictionType) (Model, error) {
	s.calls.Add(1)
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.errs[t]; ok {
		return nil, err
	}
	if m, ok := s.models[t]; ok {
		return m, nil
	}
	return nil, ErrArtifactNotFound
}

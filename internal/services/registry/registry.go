package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/benvon/checkin-insights/internal/models"
)

const (
	defaultLoadTimeout  = 30 * time.Second
	defaultErrorBackoff = 5 * time.Second
)

// ErrLoadBackoff is returned while a type is cooling down after a failed load
var ErrLoadBackoff = errors.New("model load backing off after failure")

// Availability reasons reported by Status
const (
	ReasonLoaded         = "loaded"
	ReasonNotFound       = "not_found"
	ReasonSchemaMismatch = "schema_mismatch"
	ReasonTypeMismatch   = "type_mismatch"
	ReasonLoadError      = "load_error"
)

type entry struct {
	model    Model
	reason   string
	loadedAt time.Time
}

// Registry resolves prediction types to loaded models. Each type is loaded at
// most once per refresh; concurrent resolves share a single load.
type Registry struct {
	store        ArtifactStore
	schema       string
	logger       *zap.Logger
	loadTimeout  time.Duration
	errorBackoff time.Duration
	now          func() time.Time

	group       singleflight.Group
	mu          sync.RWMutex
	entries     map[models.PredictionType]entry
	failedUntil map[models.PredictionType]time.Time
}

// New creates a registry that accepts models built for schemaVersion
func New(store ArtifactStore, schemaVersion string, logger *zap.Logger) *Registry {
	if store == nil {
		store = NoopStore{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		store:        store,
		schema:       schemaVersion,
		logger:       logger,
		loadTimeout:  defaultLoadTimeout,
		errorBackoff: defaultErrorBackoff,
		now:          time.Now,
		entries:      make(map[models.PredictionType]entry),
		failedUntil:  make(map[models.PredictionType]time.Time),
	}
}

// Resolve returns the model for t. The boolean is false when no usable model
// exists; that is a normal outcome, not an error. Resolve returns as soon as
// ctx is done even if a shared load is still running.
func (r *Registry) Resolve(ctx context.Context, t models.PredictionType) (Model, bool) {
	e, err := r.resolve(ctx, t)
	switch {
	case err == nil:
		return e.model, e.model != nil
	case errors.Is(err, ErrLoadBackoff), ctx.Err() != nil:
		r.logger.Debug("model_unavailable",
			zap.String("prediction_type", string(t)),
			zap.Error(err),
		)
	default:
		r.logger.Warn("model_load_failed",
			zap.String("prediction_type", string(t)),
			zap.Error(err),
		)
	}
	return nil, false
}

func (r *Registry) resolve(ctx context.Context, t models.PredictionType) (entry, error) {
	if e, ok := r.lookup(t); ok {
		return e, nil
	}
	if r.backingOff(t) {
		return entry{}, fmt.Errorf("%s: %w", t, ErrLoadBackoff)
	}

	ch := r.group.DoChan(string(t), func() (any, error) {
		if e, ok := r.lookup(t); ok {
			return e, nil
		}
		// Shared by every waiting caller, so it is not bound to ctx.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.loadTimeout)
		defer cancel()
		e, err := r.load(loadCtx, t)
		r.mu.Lock()
		defer r.mu.Unlock()
		if err != nil {
			r.failedUntil[t] = r.now().Add(r.errorBackoff)
			return entry{}, err
		}
		delete(r.failedUntil, t)
		r.entries[t] = e
		return e, nil
	})

	select {
	case <-ctx.Done():
		return entry{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return entry{}, res.Err
		}
		return res.Val.(entry), nil
	}
}

func (r *Registry) backingOff(t models.PredictionType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	until, ok := r.failedUntil[t]
	return ok && r.now().Before(until)
}

func (r *Registry) lookup(t models.PredictionType) (entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[t]
	return e, ok
}

// load fetches one artifact. Not-found and incompatible artifacts produce an
// unavailable entry; other failures are returned and not memoised.
func (r *Registry) load(ctx context.Context, t models.PredictionType) (entry, error) {
	now := time.Now()
	m, err := r.store.Load(ctx, t)
	if err != nil {
		if errors.Is(err, ErrArtifactNotFound) {
			r.logger.Debug("model_not_available", zap.String("prediction_type", string(t)))
			return entry{reason: ReasonNotFound, loadedAt: now}, nil
		}
		return entry{}, fmt.Errorf("load model for %s: %w", t, err)
	}
	if m.PredictionType() != t {
		r.logger.Warn("model_type_mismatch",
			zap.String("prediction_type", string(t)),
			zap.String("artifact_type", string(m.PredictionType())),
		)
		return entry{reason: ReasonTypeMismatch, loadedAt: now}, nil
	}
	if m.SchemaVersion() != r.schema {
		r.logger.Warn("model_schema_mismatch",
			zap.String("prediction_type", string(t)),
			zap.String("model_version", m.Version()),
			zap.String("model_schema", m.SchemaVersion()),
			zap.String("expected_schema", r.schema),
		)
		return entry{reason: ReasonSchemaMismatch, loadedAt: now}, nil
	}
	r.logger.Info("model_loaded",
		zap.String("prediction_type", string(t)),
		zap.String("model_version", m.Version()),
	)
	return entry{model: m, reason: ReasonLoaded, loadedAt: now}, nil
}

// Refresh reloads every type and replaces the table in one step. A type whose
// load fails keeps its previous entry.
func (r *Registry) Refresh(ctx context.Context) error {
	next := make(map[models.PredictionType]entry)
	var errs []error
	for _, t := range models.AllPredictionTypes() {
		e, err := r.load(ctx, t)
		if err != nil {
			errs = append(errs, err)
			if old, ok := r.lookup(t); ok {
				next[t] = old
			}
			continue
		}
		next[t] = e
	}

	r.mu.Lock()
	r.entries = next
	for t := range next {
		delete(r.failedUntil, t)
	}
	r.mu.Unlock()
	return errors.Join(errs...)
}

// ModelStatus describes the availability of one prediction type's model
type ModelStatus struct {
	Type      models.PredictionType `json:"type"`
	Available bool                  `json:"available"`
	Version   *string               `json:"modelVersion"`
	Reason    string                `json:"reason"`
	LoadedAt  *time.Time            `json:"loadedAt,omitempty"`
}

// Status resolves every type and reports its availability
func (r *Registry) Status(ctx context.Context) []ModelStatus {
	out := make([]ModelStatus, 0, len(models.AllPredictionTypes()))
	for _, t := range models.AllPredictionTypes() {
		s := ModelStatus{Type: t}
		e, err := r.resolve(ctx, t)
		if err != nil {
			s.Reason = ReasonLoadError
			out = append(out, s)
			continue
		}
		s.Reason = e.reason
		loaded := e.loadedAt
		s.LoadedAt = &loaded
		if e.model != nil {
			v := e.model.Version()
			s.Available = true
			s.Version = &v
		}
		out = append(out, s)
	}
	return out
}

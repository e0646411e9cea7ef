package prediction

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/benvon/checkin-insights/internal/logger"
	"github.com/benvon/checkin-insights/internal/metrics"
	"github.com/benvon/checkin-insights/internal/models"
	"github.com/benvon/checkin-insights/internal/services/cache"
	"github.com/benvon/checkin-insights/internal/services/features"
	"github.com/benvon/checkin-insights/internal/services/heuristic"
	"github.com/benvon/checkin-insights/internal/services/registry"
	"github.com/benvon/checkin-insights/internal/validation"
)

const (
	DefaultWindowDays       = 3
	DefaultInferenceTimeout = 15 * time.Second

	MaxWindowDays    = 30
	MaxLimitCheckIns = 10
)

const tracerName = "github.com/benvon/checkin-insights/internal/services/prediction"

// CheckInSource is the read-only check-in collaborator. Histories are ordered
// by timestamp ascending and exclude soft-deleted and future records.
type CheckInSource interface {
	// LatestCheckIn returns the newest check-in strictly before the given time, or nil
	LatestCheckIn(ctx context.Context, userID uuid.UUID, before time.Time) (*models.CheckIn, error)
	FetchHistory(ctx context.Context, userID uuid.UUID, before time.Time, maxDays int) ([]models.CheckIn, error)
}

// ProfileSource is optionally implemented by a CheckInSource to provide demographics
type ProfileSource interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error)
}

// ModelResolver resolves a type to a loaded model
type ModelResolver interface {
	Resolve(ctx context.Context, t models.PredictionType) (registry.Model, bool)
}

// FeatureExtractor builds feature vectors
type FeatureExtractor interface {
	SchemaVersion() string
	Extract(current models.CheckIn, history []models.CheckIn, profile *models.UserProfile) *features.Vector
}

// HeuristicEstimator is the fallback path
type HeuristicEstimator interface {
	Estimate(t models.PredictionType, v *features.Vector) (heuristic.Estimate, error)
	Label(t models.PredictionType, p float64) string
}

// AttributionExplainer computes explanations
type AttributionExplainer interface {
	Explain(ctx context.Context, m registry.Model, v *features.Vector) ([]models.Attribution, error)
	ExplainHeuristic(factors []heuristic.Factor) []models.Attribution
}

// Dependencies are the collaborators of an Orchestrator. Metrics may be nil.
type Dependencies struct {
	Source     CheckInSource
	Features   FeatureExtractor
	Models     ModelResolver
	Heuristics HeuristicEstimator
	Explainer  AttributionExplainer
	Cache      cache.Cache
	Metrics    *metrics.Recorder
	Logger     *zap.Logger
}

// Config tunes an Orchestrator
type Config struct {
	InferenceTimeout time.Duration
	CacheTTL         time.Duration
	// Now is the clock; defaults to time.Now
	Now func() time.Time
}

// Query is one prediction request. A nil WindowDays selects DefaultWindowDays;
// an explicit value must lie in [1, MaxWindowDays].
type Query struct {
	UserID        uuid.UUID
	Types         []models.PredictionType `validate:"dive,prediction_type"`
	WindowDays    *int                    `validate:"omitempty,gte=1,lte=30"`
	LimitCheckIns int                     `validate:"gte=0,lte=10"`
}

// Days returns a window length for Query.WindowDays
func Days(n int) *int {
	return &n
}

// request is a validated Query with defaults applied
type request struct {
	UserID        uuid.UUID
	Types         []models.PredictionType
	WindowDays    int
	LimitCheckIns int
}

// Orchestrator serves prediction queries: cache lookup, feature extraction,
// timeout-bounded inference with heuristic fallback, explanation, cache write.
type Orchestrator struct {
	deps   Dependencies
	cfg    Config
	logger *zap.Logger
	tracer trace.Tracer
}

// New validates deps and returns an orchestrator
func New(deps Dependencies, cfg Config) (*Orchestrator, error) {
	switch {
	case deps.Source == nil:
		return nil, &ConfigurationError{Component: "check-in source is required"}
	case deps.Features == nil:
		return nil, &ConfigurationError{Component: "feature extractor is required"}
	case deps.Models == nil:
		return nil, &ConfigurationError{Component: "model registry is required"}
	case deps.Heuristics == nil:
		return nil, &ConfigurationError{Component: "heuristic engine is required"}
	case deps.Explainer == nil:
		return nil, &ConfigurationError{Component: "explainer is required"}
	case deps.Cache == nil:
		return nil, &ConfigurationError{Component: "prediction cache is required"}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.InferenceTimeout <= 0 {
		cfg.InferenceTimeout = DefaultInferenceTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = cache.DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{
		deps:   deps,
		cfg:    cfg,
		logger: deps.Logger,
		tracer: otel.Tracer(tracerName),
	}, nil
}

// SchemaVersion reports the feature schema used for cache keys and models
func (o *Orchestrator) SchemaVersion() string {
	return o.deps.Features.SchemaVersion()
}

// normalize applies defaults and validates q
func normalize(q Query) (request, error) {
	if q.UserID == uuid.Nil {
		return request{}, &ValidationError{Message: "user id is required"}
	}
	if err := validation.Validate.Struct(q); err != nil {
		return request{}, &ValidationError{Message: validation.Describe(err)}
	}
	req := request{
		UserID:        q.UserID,
		WindowDays:    DefaultWindowDays,
		LimitCheckIns: q.LimitCheckIns,
	}
	if q.WindowDays != nil {
		req.WindowDays = *q.WindowDays
	}
	types := q.Types
	if len(types) == 0 {
		types = models.AllPredictionTypes()
	}
	seen := make(map[models.PredictionType]bool, len(types))
	req.Types = make([]models.PredictionType, 0, len(types))
	for _, t := range types {
		if seen[t] {
			continue
		}
		seen[t] = true
		req.Types = append(req.Types, t)
	}
	return req, nil
}

// Generate answers q. It fails only on malformed input, a check-in source
// outage, or cancellation; every other condition yields a degraded result.
func (o *Orchestrator) Generate(ctx context.Context, query Query) (*models.PredictionResponse, error) {
	q, err := normalize(query)
	if err != nil {
		return nil, err
	}

	ctx, span := o.tracer.Start(ctx, "prediction.generate", trace.WithAttributes(
		attribute.Int("window_days", q.WindowDays),
		attribute.Int("limit_checkins", q.LimitCheckIns),
		attribute.Int("type_count", len(q.Types)),
	))
	defer span.End()

	resp, err := o.generate(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return resp, nil
}

func (o *Orchestrator) generate(ctx context.Context, q request) (*models.PredictionResponse, error) {
	now := o.cfg.Now().UTC()
	windowStart := now.Add(-time.Duration(q.WindowDays) * 24 * time.Hour)
	resp := &models.PredictionResponse{
		UserID:      q.UserID,
		WindowDays:  q.WindowDays,
		GeneratedAt: now,
	}

	latest, err := o.deps.Source.LatestCheckIn(ctx, q.UserID, now)
	if err != nil {
		return nil, o.sourceError(ctx, "latest check-in", err)
	}
	if latest == nil || latest.Timestamp.Before(windowStart) {
		o.logger.Debug("prediction_insufficient_data",
			logger.UserID(q.UserID),
			zap.Int("window_days", q.WindowDays),
		)
		resp.Predictions = make([]models.PredictionResult, 0, len(q.Types))
		for _, t := range q.Types {
			r := models.InsufficientDataResult(t)
			o.deps.Metrics.RecordPrediction(string(t), string(r.Source))
			resp.Predictions = append(resp.Predictions, r)
		}
		return resp, nil
	}

	cached := o.lookup(ctx, q, latest.ID)
	if allHit(cached) && q.LimitCheckIns == 0 {
		resp.Predictions = collect(cached)
		return resp, nil
	}

	history, err := o.fetchHistory(ctx, q, now)
	if err != nil {
		return nil, err
	}
	profile := o.profile(ctx, q.UserID)

	current := *latest
	for i := range history {
		if history[i].ID == latest.ID {
			current = history[i]
			break
		}
	}

	results, err := o.predictCheckIn(ctx, q, current, history, profile, cached)
	if err != nil {
		return nil, err
	}
	resp.Predictions = results

	if q.LimitCheckIns > 0 {
		entries, err := o.perCheckIn(ctx, q, history, profile, windowStart)
		if err != nil {
			return nil, err
		}
		resp.PerCheckIn = entries
	}
	return resp, nil
}

// perCheckIn predicts for the newest LimitCheckIns check-ins in the window,
// each from its own strictly-prior history.
func (o *Orchestrator) perCheckIn(ctx context.Context, q request, history []models.CheckIn, profile *models.UserProfile, windowStart time.Time) ([]models.CheckInPredictions, error) {
	recent := make([]models.CheckIn, 0, q.LimitCheckIns)
	for i := len(history) - 1; i >= 0 && len(recent) < q.LimitCheckIns; i-- {
		if history[i].Timestamp.Before(windowStart) {
			break
		}
		recent = append(recent, history[i])
	}

	entries := make([]models.CheckInPredictions, len(recent))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range recent {
		g.Go(func() error {
			results, err := o.predictCheckIn(gctx, q, c, history, profile, o.lookup(gctx, q, c.ID))
			if err != nil {
				return err
			}
			entries[i] = models.CheckInPredictions{
				CheckInID:   c.ID,
				CheckInDate: c.Timestamp.UTC(),
				Predictions: results,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

// predictCheckIn resolves every requested type for current. cached holds
// lookup results in type order; nil entries are computed.
func (o *Orchestrator) predictCheckIn(ctx context.Context, q request, current models.CheckIn, history []models.CheckIn, profile *models.UserProfile, cached []*models.PredictionResult) ([]models.PredictionResult, error) {
	results := make([]models.PredictionResult, len(q.Types))
	var v *features.Vector
	if !allHit(cached) {
		_, span := o.tracer.Start(ctx, "prediction.extract_features")
		v = o.deps.Features.Extract(current, history, profile)
		span.SetAttributes(
			attribute.Int("history_points", v.HistoryPoints),
			attribute.Int("completeness", v.Completeness),
		)
		span.End()
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, t := range q.Types {
		if cached[i] != nil {
			results[i] = *cached[i]
			continue
		}
		key := o.key(q, t, current.ID)
		g.Go(func() error {
			r, err := o.compute(gctx, t, v, key)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// lookup consults the cache for every requested type of one check-in
func (o *Orchestrator) lookup(ctx context.Context, q request, checkInID uuid.UUID) []*models.PredictionResult {
	out := make([]*models.PredictionResult, len(q.Types))
	for i, t := range q.Types {
		r, ok := o.deps.Cache.Get(ctx, o.key(q, t, checkInID))
		if !ok || r == nil || r.Type != t {
			o.deps.Metrics.RecordCacheLookup(metrics.CacheMiss)
			continue
		}
		o.deps.Metrics.RecordCacheLookup(metrics.CacheHit)
		r.Normalize()
		o.deps.Metrics.RecordPrediction(string(t), string(r.Source))
		out[i] = r
	}
	return out
}

func (o *Orchestrator) key(q request, t models.PredictionType, checkInID uuid.UUID) cache.Key {
	return cache.Key{
		UserID:        q.UserID,
		Type:          t,
		WindowDays:    q.WindowDays,
		CheckInID:     checkInID,
		SchemaVersion: o.deps.Features.SchemaVersion(),
	}
}

func (o *Orchestrator) fetchHistory(ctx context.Context, q request, now time.Time) ([]models.CheckIn, error) {
	ctx, span := o.tracer.Start(ctx, "prediction.fetch_history")
	defer span.End()

	history, err := o.deps.Source.FetchHistory(ctx, q.UserID, now, q.WindowDays+features.BaselineDays)
	if err != nil {
		span.RecordError(err)
		return nil, o.sourceError(ctx, "fetch history", err)
	}
	span.SetAttributes(attribute.Int("records", len(history)))

	// The source promises ascending order; keep the guarantee local.
	sorted := make([]models.CheckIn, 0, len(history))
	for _, c := range history {
		if c.Timestamp.Before(now) {
			sorted = append(sorted, c)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted, nil
}

func (o *Orchestrator) profile(ctx context.Context, userID uuid.UUID) *models.UserProfile {
	ps, ok := o.deps.Source.(ProfileSource)
	if !ok {
		return nil
	}
	p, err := ps.GetProfile(ctx, userID)
	if err != nil {
		o.logger.Warn("prediction_profile_unavailable",
			logger.UserID(userID),
			zap.Error(err),
		)
		return nil
	}
	return p
}

func (o *Orchestrator) sourceError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	o.logger.Error("checkin_source_failed", zap.String("op", op), zap.Error(err))
	return &DataSourceError{Op: op, Err: err}
}

func allHit(cached []*models.PredictionResult) bool {
	for _, r := range cached {
		if r == nil {
			return false
		}
	}
	return true
}

func collect(cached []*models.PredictionResult) []models.PredictionResult {
	out := make([]models.PredictionResult, len(cached))
	for i, r := range cached {
		out[i] = *r
	}
	return out
}

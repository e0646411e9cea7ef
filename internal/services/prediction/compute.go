package prediction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/benvon/checkin-insights/internal/metrics"
	"github.com/benvon/checkin-insights/internal/models"
	"github.com/benvon/checkin-insights/internal/services/cache"
	"github.com/benvon/checkin-insights/internal/services/explain"
	"github.com/benvon/checkin-insights/internal/services/features"
	"github.com/benvon/checkin-insights/internal/services/registry"
)

// errModelPanicked marks an inference that panicked
var errModelPanicked = errors.New("model panicked")

// compute runs the model path with heuristic fallback for one type and
// writes the result to the cache unless the request was cancelled.
func (o *Orchestrator) compute(ctx context.Context, t models.PredictionType, v *features.Vector, key cache.Key) (models.PredictionResult, error) {
	ctx, span := o.tracer.Start(ctx, "prediction.compute", trace.WithAttributes(
		attribute.String("prediction_type", string(t)),
	))
	defer span.End()

	var (
		result models.PredictionResult
		ok     bool
	)
	if m, available := o.deps.Models.Resolve(ctx, t); available {
		result, ok = o.fromModel(ctx, t, m, v)
	} else {
		o.fallback(t, metrics.FallbackUnavailable, nil)
	}
	if err := ctx.Err(); err != nil {
		return models.PredictionResult{}, err
	}
	if !ok {
		var err error
		result, err = o.fromHeuristic(t, v)
		if err != nil {
			return models.PredictionResult{}, err
		}
	}

	result.FeatureSchema = v.SchemaVersion
	result.Normalize()
	span.SetAttributes(attribute.String("source", string(result.Source)))

	if ctx.Err() == nil {
		if err := o.deps.Cache.Put(ctx, key, &result, o.cfg.CacheTTL); err != nil {
			o.deps.Metrics.RecordCacheWriteFailure()
			o.logger.Warn("prediction_cache_write_failed",
				zap.String("prediction_type", string(t)),
				zap.Error(err),
			)
		}
	}
	o.deps.Metrics.RecordPrediction(string(t), string(result.Source))
	return result, nil
}

// fromModel runs bounded inference and explanation. ok is false when the
// caller must fall back to the heuristic.
func (o *Orchestrator) fromModel(ctx context.Context, t models.PredictionType, m registry.Model, v *features.Vector) (models.PredictionResult, bool) {
	out, err := o.infer(ctx, t, m, v)
	if err != nil {
		if ctx.Err() != nil {
			return models.PredictionResult{}, false
		}
		reason := metrics.FallbackError
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			reason = metrics.FallbackTimeout
		case errors.Is(err, errModelPanicked):
			reason = metrics.FallbackPanic
		}
		o.fallback(t, reason, err)
		return models.PredictionResult{}, false
	}

	version := m.Version()
	r := models.PredictionResult{
		Type:               t,
		Probability:        out.Probability,
		ClassProbabilities: out.ClassProbabilities,
		ModelVersion:       &version,
		Source:             models.SourceModel,
	}
	if t.MultiClass() {
		r.Label = out.Class
	} else {
		r.Label = o.deps.Heuristics.Label(t, models.NormalizeProbability(out.Probability))
	}

	ectx, span := o.tracer.Start(ctx, "prediction.explain")
	attrs, err := o.deps.Explainer.Explain(ectx, m, v)
	span.End()
	if err != nil {
		o.deps.Metrics.RecordExplanationFailure(string(t))
		o.logger.Debug("prediction_explanation_failed",
			zap.String("prediction_type", string(t)),
			zap.Error(err),
		)
		r.Explanation = explain.BestEffortNote
	} else {
		r.Attributions = attrs
		r.Explanation = explain.Summarize(models.SourceModel, attrs)
	}
	return r, true
}

// infer runs Predict in its own goroutine under the inference timeout. The
// goroutine is abandoned on timeout; Predict receives the cancelled context.
func (o *Orchestrator) infer(ctx context.Context, t models.PredictionType, m registry.Model, v *features.Vector) (registry.Output, error) {
	ctx, span := o.tracer.Start(ctx, "prediction.infer", trace.WithAttributes(
		attribute.String("model_version", m.Version()),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, o.cfg.InferenceTimeout)
	defer cancel()

	type result struct {
		out registry.Output
		err error
	}
	done := make(chan result, 1)
	start := time.Now()
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- result{err: fmt.Errorf("%w: %v", errModelPanicked, rec)}
			}
		}()
		out, err := m.Predict(ctx, v)
		done <- result{out: out, err: err}
	}()

	var r result
	select {
	case <-ctx.Done():
		r.err = ctx.Err()
	case r = <-done:
	}
	o.deps.Metrics.ObserveInference(string(t), time.Since(start))

	if r.err != nil {
		span.RecordError(r.err)
		return registry.Output{}, r.err
	}
	if err := validOutput(t, r.out); err != nil {
		span.RecordError(err)
		return registry.Output{}, err
	}
	return r.out, nil
}

func validOutput(t models.PredictionType, out registry.Output) error {
	if math.IsNaN(out.Probability) || math.IsInf(out.Probability, 0) {
		return fmt.Errorf("model returned non-finite probability")
	}
	if t.MultiClass() && (out.Class == "" || len(out.ClassProbabilities) == 0) {
		return fmt.Errorf("multi-class model returned no class")
	}
	return nil
}

func (o *Orchestrator) fromHeuristic(t models.PredictionType, v *features.Vector) (models.PredictionResult, error) {
	est, err := o.deps.Heuristics.Estimate(t, v)
	if err != nil {
		return models.PredictionResult{}, &ConfigurationError{Component: "heuristic engine", Err: err}
	}
	attrs := o.deps.Explainer.ExplainHeuristic(est.Factors)
	return models.PredictionResult{
		Type:               t,
		Label:              est.Label,
		Probability:        est.Probability,
		ClassProbabilities: est.ClassProbabilities,
		Source:             models.SourceHeuristic,
		Attributions:       attrs,
		Explanation:        explain.Summarize(models.SourceHeuristic, attrs),
	}, nil
}

func (o *Orchestrator) fallback(t models.PredictionType, reason string, err error) {
	o.deps.Metrics.RecordFallback(string(t), reason)
	if reason == metrics.FallbackUnavailable {
		return
	}
	o.logger.Warn("prediction_fallback_used",
		zap.String("prediction_type", string(t)),
		zap.String("reason", reason),
		zap.Error(err),
	)
}

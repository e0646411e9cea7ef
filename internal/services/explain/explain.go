package explain

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/benvon/checkin-insights/internal/models"
	"github.com/benvon/checkin-insights/internal/services/features"
	"github.com/benvon/checkin-insights/internal/services/heuristic"
	"github.com/benvon/checkin-insights/internal/services/registry"
)

const (
	DefaultTopK    = 5
	DefaultTimeout = 2 * time.Second

	scoreFloor = 1e-6
)

// BestEffortNote replaces the explanation when attributions could not be computed
const BestEffortNote = "explanation unavailable (best effort)"

// Explainer computes ranked feature attributions for single predictions
type Explainer struct {
	topK     int
	timeout  time.Duration
	names    []string
	baseline []float64
}

// New creates an explainer returning at most topK attributions within timeout
func New(topK int, timeout time.Duration) *Explainer {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Explainer{
		topK:     topK,
		timeout:  timeout,
		names:    features.Names(),
		baseline: features.NeutralValues(),
	}
}

// TopK returns the configured attribution limit
func (e *Explainer) TopK() int {
	return e.topK
}

// Explain attributes a model prediction to features. Models exposing linear
// contributions are explained exactly; others by occlusion against neutral
// values. The call is bounded by the explainer's timeout.
func (e *Explainer) Explain(ctx context.Context, m registry.Model, v *features.Vector) ([]models.Attribution, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type result struct {
		scores map[string]float64
		err    error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- result{err: fmt.Errorf("explanation panicked: %v", rec)}
			}
		}()
		scores, err := e.scores(ctx, m, v)
		done <- result{scores: scores, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("explanation aborted: %w", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return e.rank(r.scores, v), nil
	}
}

func (e *Explainer) scores(ctx context.Context, m registry.Model, v *features.Vector) (map[string]float64, error) {
	if le, ok := m.(registry.LinearExplainer); ok {
		return le.Contributions(v)
	}
	return e.occlusion(ctx, m, v)
}

// occlusion scores each feature by the change in output when it is replaced by its neutral value
func (e *Explainer) occlusion(ctx context.Context, m registry.Model, v *features.Vector) (map[string]float64, error) {
	base, err := m.Predict(ctx, v)
	if err != nil {
		return nil, fmt.Errorf("occlusion baseline: %w", err)
	}
	scores := make(map[string]float64, len(e.names))
	occluded := v.Clone()
	for i, name := range e.names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if occluded.Values[i] == e.baseline[i] {
			continue
		}
		orig := occluded.Values[i]
		occluded.Values[i] = e.baseline[i]
		out, err := m.Predict(ctx, occluded)
		occluded.Values[i] = orig
		if err != nil {
			return nil, fmt.Errorf("occlusion of %s: %w", name, err)
		}
		scores[name] = score(base, base) - score(base, out)
	}
	return scores, nil
}

// score reads the output of the class that won in ref
func score(ref, out registry.Output) float64 {
	if ref.Class != "" {
		return out.ClassProbabilities[ref.Class]
	}
	return out.Probability
}

func (e *Explainer) rank(scores map[string]float64, v *features.Vector) []models.Attribution {
	type scored struct {
		name  string
		score float64
	}
	list := make([]scored, 0, len(scores))
	for name, s := range scores {
		r := round4(s)
		if !finite(r) || math.Abs(r) < scoreFloor {
			continue
		}
		list = append(list, scored{name, r})
	}
	sort.Slice(list, func(i, j int) bool {
		ai, aj := math.Abs(list[i].score), math.Abs(list[j].score)
		if ai != aj {
			return ai > aj
		}
		return list[i].name < list[j].name
	})
	if len(list) > e.topK {
		list = list[:e.topK]
	}

	out := make([]models.Attribution, 0, len(list))
	for _, s := range list {
		a := models.Attribution{Feature: s.name, Score: ptr(s.score)}
		if i, ok := features.Index(s.name); ok && v != nil && v.Observed[i] && finite(v.Values[i]) {
			a.Value = ptr(round4(v.Values[i]))
		}
		out = append(out, a)
	}
	return out
}

// ExplainHeuristic lists the heuristic's contributing factors with their inputs and weights
func (e *Explainer) ExplainHeuristic(factors []heuristic.Factor) []models.Attribution {
	ranked := make([]heuristic.Factor, len(factors))
	copy(ranked, factors)
	sort.SliceStable(ranked, func(i, j int) bool {
		ci, cj := ranked[i].Contribution(), ranked[j].Contribution()
		if ci != cj {
			return ci > cj
		}
		return ranked[i].Name < ranked[j].Name
	})
	if len(ranked) > e.topK {
		ranked = ranked[:e.topK]
	}

	out := make([]models.Attribution, 0, len(ranked))
	for _, f := range ranked {
		name := f.Name
		if f.Class != "" {
			name = f.Class + "." + f.Name
		}
		a := models.Attribution{Feature: name}
		if finite(f.Weight) {
			a.Weight = ptr(f.Weight)
		}
		if c := round4(f.Contribution()); finite(c) && c >= scoreFloor {
			a.Score = ptr(c)
		}
		if f.InputObserved && finite(f.InputValue) {
			a.Value = ptr(round4(f.InputValue))
		}
		out = append(out, a)
	}
	return out
}

// Summarize renders attributions as a one-line explanation
func Summarize(source models.PredictionSource, attrs []models.Attribution) string {
	if len(attrs) == 0 {
		return ""
	}
	names := make([]string, len(attrs))
	for i, a := range attrs {
		names[i] = a.Feature
	}
	if source == models.SourceHeuristic {
		return "Heuristic estimate driven by " + strings.Join(names, ", ")
	}
	return "Most influential features: " + strings.Join(names, ", ")
}

// round4 rounds to four decimals. Magnitudes too large to scale are returned unchanged.
func round4(x float64) float64 {
	if math.Abs(x) > 1e300 {
		return x
	}
	r := math.Round(x*1e4) / 1e4
	if !finite(r) {
		return x
	}
	return r
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func ptr(v float64) *float64 {
	return &v
}

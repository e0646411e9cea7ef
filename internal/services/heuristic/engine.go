package heuristic

import (
	"fmt"
	"sort"

	"github.com/benvon/checkin-insights/internal/models"
	"github.com/benvon/checkin-insights/internal/services/features"
)

// Risk labels
const (
	LabelLow      = "low risk"
	LabelModerate = "moderate risk"
	LabelHigh     = "high risk"
)

// Factor is one weighted input to a heuristic estimate
type Factor struct {
	Name   string
	Class  string
	Score  float64
	Weight float64
	// Input is the feature the factor read and its value
	Input         string
	InputValue    float64
	InputObserved bool
}

// Contribution is the factor's share of the raw score
func (f Factor) Contribution() float64 {
	return f.Score * f.Weight
}

// Estimate is the output of the heuristic path
type Estimate struct {
	Type               models.PredictionType
	Probability        float64
	ClassProbabilities map[string]float64
	Label              string
	Factors            []Factor
}

// Engine evaluates the configured clinical heuristics. It is immutable after
// construction and safe for concurrent use.
type Engine struct {
	cfg *Config
}

// NewEngine validates cfg and returns an engine for it
func NewEngine(cfg *Config) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("heuristic config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// Version returns the configuration version
func (e *Engine) Version() string {
	return e.cfg.Version
}

// Config returns the active configuration
func (e *Engine) Config() *Config {
	return e.cfg
}

// Estimate computes the heuristic result for t from v
func (e *Engine) Estimate(t models.PredictionType, v *features.Vector) (Estimate, error) {
	tc, ok := e.cfg.Types[string(t)]
	if !ok || !t.Valid() {
		return Estimate{}, fmt.Errorf("no heuristic configured for %s", t)
	}
	if t.MultiClass() {
		return e.estimateClasses(t, tc, v), nil
	}

	factors, raw := evaluate("", tc.Weights, v)
	p := models.NormalizeProbability(shrink(raw, tc.BaseRate, v.CompletenessRatio))
	return Estimate{
		Type:        t,
		Probability: p,
		Label:       riskLabel(tc.Thresholds, p),
		Factors:     factors,
	}, nil
}

// Label maps a probability produced by any source to the type's label
func (e *Engine) Label(t models.PredictionType, p float64) string {
	tc, ok := e.cfg.Types[string(t)]
	if !ok {
		return LabelLow
	}
	return riskLabel(tc.Thresholds, p)
}

func (e *Engine) estimateClasses(t models.PredictionType, tc *TypeConfig, v *features.Vector) Estimate {
	var factors []Factor
	scores := make(map[string]float64, len(moodClasses))
	maxScored := 0.0
	for _, class := range moodClasses {
		cc := tc.Classes[class]
		if class == ClassStable {
			continue
		}
		fs, raw := evaluate(class, cc.Weights, v)
		factors = append(factors, fs...)
		scores[class] = raw
		if raw > maxScored {
			maxScored = raw
		}
	}
	scores[ClassStable] = 1 - maxScored

	total := 0.0
	for _, class := range moodClasses {
		scores[class] = shrink(scores[class], tc.Classes[class].BaseRate, v.CompletenessRatio)
		total += scores[class]
	}

	probs := make(map[string]float64, len(moodClasses))
	top, topP := ClassStable, -1.0
	for _, class := range moodClasses {
		p := 1 / float64(len(moodClasses))
		if total > 0 {
			p = scores[class] / total
		}
		p = models.NormalizeProbability(p)
		probs[class] = p
		if p > topP {
			top, topP = class, p
		}
	}

	sortFactors(factors)
	return Estimate{
		Type:               t,
		Probability:        topP,
		ClassProbabilities: probs,
		Label:              top,
		Factors:            factors,
	}
}

func evaluate(class string, weights map[string]float64, v *features.Vector) ([]Factor, float64) {
	factors := make([]Factor, 0, len(weights))
	raw := 0.0
	for _, name := range sortedKeys(weights) {
		score, input := factorFuncs[name](v)
		f := Factor{
			Name:          name,
			Class:         class,
			Score:         score,
			Weight:        weights[name],
			Input:         input,
			InputValue:    v.Get(input),
			InputObserved: v.IsObserved(input),
		}
		raw += f.Contribution()
		factors = append(factors, f)
	}
	sortFactors(factors)
	return factors, raw
}

// shrink pulls raw toward the base rate in proportion to missing inputs
func shrink(raw, baseRate, completeness float64) float64 {
	completeness = unit(completeness)
	return completeness*raw + (1-completeness)*baseRate
}

func riskLabel(th Thresholds, p float64) string {
	switch {
	case p >= th.High:
		return LabelHigh
	case p >= th.Moderate:
		return LabelModerate
	default:
		return LabelLow
	}
}

// sortFactors orders by contribution descending, then name
func sortFactors(fs []Factor) {
	sort.SliceStable(fs, func(i, j int) bool {
		ci, cj := fs[i].Contribution(), fs[j].Contribution()
		if ci != cj {
			return ci > cj
		}
		return fs[i].Name < fs[j].Name
	})
}

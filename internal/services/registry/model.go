package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/benvon/checkin-insights/internal/models"
	"github.com/benvon/checkin-insights/internal/services/features"
)

// Model is a loaded, immutable, versioned inference model
type Model interface {
	Version() string
	PredictionType() models.PredictionType
	SchemaVersion() string
	Predict(ctx context.Context, v *features.Vector) (Output, error)
}

// Output is a raw model prediction before normalisation
type Output struct {
	Probability        float64
	ClassProbabilities map[string]float64
	// Class is the winning class for multi-class models
	Class string
}

// LinearExplainer is implemented by models that can report exact per-feature
// contributions to their decision score.
type LinearExplainer interface {
	Contributions(v *features.Vector) (map[string]float64, error)
}

// Artifact kinds
const (
	KindLogistic = "logistic"
	KindSoftmax  = "softmax"
)

// Artifact is the serialised form of a model
type Artifact struct {
	PredictionType string             `json:"prediction_type"`
	Version        string             `json:"version"`
	FeatureSchema  string             `json:"feature_schema_version"`
	Kind           string             `json:"kind"`
	Intercept      float64            `json:"intercept"`
	Coefficients   map[string]float64 `json:"coefficients"`
	Classes        []ClassArtifact    `json:"classes,omitempty"`
	// Baseline overrides the neutral reference values used for attributions
	Baseline map[string]float64 `json:"baseline,omitempty"`
}

// ClassArtifact holds the parameters of one softmax class
type ClassArtifact struct {
	Name         string             `json:"name"`
	Intercept    float64            `json:"intercept"`
	Coefficients map[string]float64 `json:"coefficients"`
}

// ParseArtifact decodes and validates a JSON artifact into a Model
func ParseArtifact(data []byte) (Model, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode model artifact: %w", err)
	}
	return a.Build()
}

// Build validates the artifact and returns the corresponding Model
func (a *Artifact) Build() (Model, error) {
	t, err := models.ParsePredictionType(a.PredictionType)
	if err != nil {
		return nil, fmt.Errorf("invalid model artifact: %w", err)
	}
	if a.Version == "" {
		return nil, fmt.Errorf("invalid model artifact for %s: version is required", t)
	}
	if a.FeatureSchema == "" {
		return nil, fmt.Errorf("invalid model artifact for %s: feature_schema_version is required", t)
	}

	baseline := features.NeutralValues()
	for name, v := range a.Baseline {
		i, ok := features.Index(name)
		if !ok {
			return nil, fmt.Errorf("invalid model artifact for %s: unknown baseline feature %s", t, name)
		}
		baseline[i] = v
	}

	base := linearBase{
		version:  a.Version,
		typ:      t,
		schema:   a.FeatureSchema,
		baseline: baseline,
	}

	switch a.Kind {
	case KindLogistic:
		if t.MultiClass() {
			return nil, fmt.Errorf("invalid model artifact for %s: multi-class type requires kind %s", t, KindSoftmax)
		}
		w, err := weightVector(a.Coefficients)
		if err != nil {
			return nil, fmt.Errorf("invalid model artifact for %s: %w", t, err)
		}
		return &LogisticModel{linearBase: base, intercept: a.Intercept, weights: w}, nil
	case KindSoftmax:
		if !t.MultiClass() {
			return nil, fmt.Errorf("invalid model artifact for %s: binary type requires kind %s", t, KindLogistic)
		}
		if len(a.Classes) < 2 {
			return nil, fmt.Errorf("invalid model artifact for %s: softmax needs at least 2 classes", t)
		}
		m := &SoftmaxModel{linearBase: base}
		seen := make(map[string]bool, len(a.Classes))
		for _, c := range a.Classes {
			if c.Name == "" || seen[c.Name] {
				return nil, fmt.Errorf("invalid model artifact for %s: class names must be unique and non-empty", t)
			}
			seen[c.Name] = true
			w, err := weightVector(c.Coefficients)
			if err != nil {
				return nil, fmt.Errorf("invalid model artifact for %s class %s: %w", t, c.Name, err)
			}
			m.classes = append(m.classes, c.Name)
			m.intercepts = append(m.intercepts, c.Intercept)
			m.weights = append(m.weights, w)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("invalid model artifact for %s: unknown kind %q", t, a.Kind)
	}
}

func weightVector(coef map[string]float64) ([]float64, error) {
	w := make([]float64, features.Width)
	for name, c := range coef {
		i, ok := features.Index(name)
		if !ok {
			return nil, fmt.Errorf("unknown feature %s", name)
		}
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, fmt.Errorf("coefficient for %s is not finite", name)
		}
		w[i] = c
	}
	return w, nil
}

type linearBase struct {
	version  string
	typ      models.PredictionType
	schema   string
	baseline []float64
}

func (b *linearBase) Version() string                       { return b.version }
func (b *linearBase) PredictionType() models.PredictionType { return b.typ }
func (b *linearBase) SchemaVersion() string                 { return b.schema }

func (b *linearBase) check(v *features.Vector) error {
	if v == nil || len(v.Values) != len(b.baseline) {
		return fmt.Errorf("feature vector width mismatch for model %s", b.version)
	}
	return nil
}

// LogisticModel is a binary linear model with a sigmoid link
type LogisticModel struct {
	linearBase
	intercept float64
	weights   []float64
}

// Predict implements Model
func (m *LogisticModel) Predict(ctx context.Context, v *features.Vector) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}
	if err := m.check(v); err != nil {
		return Output{}, err
	}
	return Output{Probability: sigmoid(dot(m.intercept, m.weights, v.Values))}, nil
}

// Contributions implements LinearExplainer in logit space
func (m *LogisticModel) Contributions(v *features.Vector) (map[string]float64, error) {
	if err := m.check(v); err != nil {
		return nil, err
	}
	return contributions(m.weights, v.Values, m.baseline), nil
}

// SoftmaxModel is a multinomial linear model
type SoftmaxModel struct {
	linearBase
	classes    []string
	intercepts []float64
	weights    [][]float64
}

// Predict implements Model
func (m *SoftmaxModel) Predict(ctx context.Context, v *features.Vector) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}
	if err := m.check(v); err != nil {
		return Output{}, err
	}
	probs := m.probabilities(v.Values)
	out := Output{ClassProbabilities: make(map[string]float64, len(m.classes))}
	top := 0
	for i, c := range m.classes {
		out.ClassProbabilities[c] = probs[i]
		if probs[i] > probs[top] {
			top = i
		}
	}
	out.Class = m.classes[top]
	out.Probability = probs[top]
	return out, nil
}

// Contributions implements LinearExplainer for the winning class
func (m *SoftmaxModel) Contributions(v *features.Vector) (map[string]float64, error) {
	if err := m.check(v); err != nil {
		return nil, err
	}
	probs := m.probabilities(v.Values)
	top := 0
	for i := range probs {
		if probs[i] > probs[top] {
			top = i
		}
	}
	return contributions(m.weights[top], v.Values, m.baseline), nil
}

// Classes returns the class names in artifact order
func (m *SoftmaxModel) Classes() []string {
	out := make([]string, len(m.classes))
	copy(out, m.classes)
	return out
}

func (m *SoftmaxModel) probabilities(x []float64) []float64 {
	logits := make([]float64, len(m.classes))
	maxLogit := math.Inf(-1)
	for i := range m.classes {
		logits[i] = dot(m.intercepts[i], m.weights[i], x)
		if logits[i] > maxLogit {
			maxLogit = logits[i]
		}
	}
	sum := 0.0
	for i := range logits {
		logits[i] = math.Exp(logits[i] - maxLogit)
		sum += logits[i]
	}
	for i := range logits {
		logits[i] /= sum
	}
	return logits
}

func dot(intercept float64, w, x []float64) float64 {
	z := intercept
	for i := range w {
		z += w[i] * x[i]
	}
	return z
}

func contributions(w, x, baseline []float64) map[string]float64 {
	names := features.Names()
	out := make(map[string]float64)
	for i := range w {
		if w[i] == 0 {
			continue
		}
		out[names[i]] = w[i] * (x[i] - baseline[i])
	}
	return out
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}


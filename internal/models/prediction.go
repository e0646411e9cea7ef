package models

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PredictionType is the closed enumeration of supported predictions
type PredictionType string

const (
	PredictionTypeMoodState               PredictionType = "mood_state"
	PredictionTypeRelapseRisk             PredictionType = "relapse_risk"
	PredictionTypeSuicidalityRisk         PredictionType = "suicidality_risk"
	PredictionTypeMedicationAdherenceRisk PredictionType = "medication_adherence_risk"
	PredictionTypeSleepDisturbanceRisk    PredictionType = "sleep_disturbance_risk"
)

var allPredictionTypes = []PredictionType{
	PredictionTypeMoodState,
	PredictionTypeRelapseRisk,
	PredictionTypeSuicidalityRisk,
	PredictionTypeMedicationAdherenceRisk,
	PredictionTypeSleepDisturbanceRisk,
}

// AllPredictionTypes returns every supported type in canonical order
func AllPredictionTypes() []PredictionType {
	out := make([]PredictionType, len(allPredictionTypes))
	copy(out, allPredictionTypes)
	return out
}

// Valid reports whether t is a member of the enumeration
func (t PredictionType) Valid() bool {
	switch t {
	case PredictionTypeMoodState,
		PredictionTypeRelapseRisk,
		PredictionTypeSuicidalityRisk,
		PredictionTypeMedicationAdherenceRisk,
		PredictionTypeSleepDisturbanceRisk:
		return true
	default:
		return false
	}
}

// MultiClass reports whether the type produces class probabilities instead of a single risk
func (t PredictionType) MultiClass() bool {
	return t == PredictionTypeMoodState
}

// Sensitive reports whether results of this type must carry the crisis disclaimer and resources
func (t PredictionType) Sensitive() bool {
	return t == PredictionTypeSuicidalityRisk
}

// ParsePredictionType converts a raw string to a PredictionType
func ParsePredictionType(raw string) (PredictionType, error) {
	t := PredictionType(strings.TrimSpace(strings.ToLower(raw)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown prediction type: %q", raw)
	}
	return t, nil
}

// PredictionSource records which path produced a result
type PredictionSource string

const (
	SourceModel     PredictionSource = "model"
	SourceHeuristic PredictionSource = "heuristic"
)

// LabelInsufficientData is the label used when a user has no recent check-ins
const LabelInsufficientData = "insufficient data"

// ProbabilityNoiseFloor is the magnitude below which probabilities are reported as exactly zero
const ProbabilityNoiseFloor = 1e-6

// SuicidalityDisclaimer accompanies every suicidality_risk result
const SuicidalityDisclaimer = "This estimate is generated automatically from self-reported check-ins and is not a clinical assessment or diagnosis. " +
	"If you or someone you know is in immediate danger or thinking about suicide, contact a crisis line or emergency services now."

// CrisisResources returns the fixed crisis-line identifiers attached to sensitive results
func CrisisResources() map[string]string {
	return map[string]string{
		"us_988_lifeline":  "Call or text 988 (Suicide & Crisis Lifeline, US)",
		"crisis_text_line": "Text HOME to 741741 (US, UK, CA, IE)",
		"international":    "https://findahelpline.com",
		"emergency":        "Call your local emergency number (911 in the US)",
	}
}

// Attribution is one entry of a ranked explanation
type Attribution struct {
	Feature string   `json:"feature"`
	Score   *float64 `json:"score,omitempty"`
	Value   *float64 `json:"value,omitempty"`
	Weight  *float64 `json:"weight,omitempty"`
}

// PredictionResult is the outcome of one prediction type for one input
type PredictionResult struct {
	Type               PredictionType     `json:"type"`
	Label              string             `json:"label"`
	Probability        float64            `json:"probability"`
	ClassProbabilities map[string]float64 `json:"classProbabilities,omitempty"`
	ModelVersion       *string            `json:"modelVersion"`
	Source             PredictionSource   `json:"source"`
	Explanation        string             `json:"explanation,omitempty"`
	Attributions       []Attribution      `json:"attributions,omitempty"`
	FeatureSchema      string             `json:"featureSchemaVersion,omitempty"`
	Disclaimer         string             `json:"disclaimer,omitempty"`
	Resources          map[string]string  `json:"resources,omitempty"`
}

// CheckInPredictions is one entry of the per-check-in breakdown
type CheckInPredictions struct {
	CheckInID   uuid.UUID          `json:"checkInId"`
	CheckInDate time.Time          `json:"checkInDate"`
	Predictions []PredictionResult `json:"predictions"`
}

// PredictionResponse is the payload returned by the prediction query surface
type PredictionResponse struct {
	UserID      uuid.UUID            `json:"userId"`
	WindowDays  int                  `json:"windowDays"`
	GeneratedAt time.Time            `json:"generatedAt"`
	Predictions []PredictionResult   `json:"predictions"`
	PerCheckIn  []CheckInPredictions `json:"perCheckIn,omitempty"`
}

// NormalizeProbability clamps p to [0,1], maps NaN to 0 and flattens values
// under the noise floor to exactly 0.
func NormalizeProbability(p float64) float64 {
	if math.IsNaN(p) || p < ProbabilityNoiseFloor {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Normalize applies probability normalisation and the sensitive-type
// safety fields. It is applied to every result regardless of source.
func (r *PredictionResult) Normalize() {
	r.Probability = NormalizeProbability(r.Probability)
	for k, v := range r.ClassProbabilities {
		r.ClassProbabilities[k] = NormalizeProbability(v)
	}
	if r.Type.Sensitive() {
		r.Disclaimer = SuicidalityDisclaimer
		r.Resources = CrisisResources()
	}
}

// Clone returns a deep copy so cached results can be handed out safely
func (r *PredictionResult) Clone() *PredictionResult {
	if r == nil {
		return nil
	}
	out := *r
	if r.ModelVersion != nil {
		v := *r.ModelVersion
		out.ModelVersion = &v
	}
	if r.ClassProbabilities != nil {
		out.ClassProbabilities = make(map[string]float64, len(r.ClassProbabilities))
		for k, v := range r.ClassProbabilities {
			out.ClassProbabilities[k] = v
		}
	}
	if r.Attributions != nil {
		out.Attributions = make([]Attribution, len(r.Attributions))
		copy(out.Attributions, r.Attributions)
	}
	if r.Resources != nil {
		out.Resources = make(map[string]string, len(r.Resources))
		for k, v := range r.Resources {
			out.Resources[k] = v
		}
	}
	return &out
}

// InsufficientDataResult is returned for every requested type when the user
// has no recent check-ins.
func InsufficientDataResult(t PredictionType) PredictionResult {
	r := PredictionResult{
		Type:        t,
		Label:       LabelInsufficientData,
		Probability: 0,
		Source:      SourceHeuristic,
	}
	r.Normalize()
	return r
}

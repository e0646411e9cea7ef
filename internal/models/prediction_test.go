package models

import (
	"math"
	"testing"
)

func TestPredictionType_Valid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value PredictionType
		valid bool
	}{
		{"mood_state", PredictionTypeMoodState, true},
		{"relapse_risk", PredictionTypeRelapseRisk, true},
		{"suicidality_risk", PredictionTypeSuicidalityRisk, true},
		{"medication_adherence_risk", PredictionTypeMedicationAdherenceRisk, true},
		{"sleep_disturbance_risk", PredictionTypeSleepDisturbanceRisk, true},
		{"invalid", PredictionType("burnout_risk"), false},
		{"empty", PredictionType(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.value.Valid(); got != tt.valid {
				t.Errorf("Valid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestParsePredictionType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    PredictionType
		wantErr bool
	}{
		{"exact", "relapse_risk", PredictionTypeRelapseRisk, false},
		{"upper case and padding", "  MOOD_STATE ", PredictionTypeMoodState, false},
		{"unknown", "weather", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParsePredictionType(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePredictionType(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParsePredictionType(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestAllPredictionTypes_ReturnsCopy(t *testing.T) {
	t.Parallel()

	types := AllPredictionTypes()
	if len(types) != 5 {
		t.Fatalf("expected 5 types, got %d", len(types))
	}
	types[0] = "mutated"
	if AllPredictionTypes()[0] != PredictionTypeMoodState {
		t.Error("AllPredictionTypes exposed its backing slice")
	}
}

func TestNormalizeProbability(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"in range", 0.42, 0.42},
		{"negative", -0.3, 0},
		{"above one", 1.7, 1},
		{"noise", 5e-7, 0},
		{"at floor", 1e-6, 1e-6},
		{"nan", math.NaN(), 0},
		{"positive infinity", math.Inf(1), 1},
		{"negative infinity", math.Inf(-1), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeProbability(tt.in); got != tt.want {
				t.Errorf("NormalizeProbability(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestPredictionResult_NormalizeAddsSafetyFields(t *testing.T) {
	t.Parallel()

	r := PredictionResult{Type: PredictionTypeSuicidalityRisk, Probability: 1.2, Source: SourceModel}
	r.Normalize()

	if r.Probability != 1 {
		t.Errorf("expected probability clamped to 1, got %v", r.Probability)
	}
	if r.Disclaimer == "" {
		t.Error("expected disclaimer on suicidality result")
	}
	if len(r.Resources) == 0 {
		t.Error("expected crisis resources on suicidality result")
	}

	other := PredictionResult{Type: PredictionTypeRelapseRisk, Probability: 0.5}
	other.Normalize()
	if other.Disclaimer != "" || other.Resources != nil {
		t.Error("non-sensitive result should not carry safety fields")
	}
}

func TestInsufficientDataResult(t *testing.T) {
	t.Parallel()

	for _, pt := range AllPredictionTypes() {
		r := InsufficientDataResult(pt)
		if r.Label != LabelInsufficientData {
			t.Errorf("%s: label = %q", pt, r.Label)
		}
		if r.Probability != 0 || r.Source != SourceHeuristic || r.ModelVersion != nil {
			t.Errorf("%s: unexpected result %+v", pt, r)
		}
		if pt.Sensitive() && r.Disclaimer == "" {
			t.Errorf("%s: missing disclaimer", pt)
		}
	}
}

func TestPredictionResult_Clone(t *testing.T) {
	t.Parallel()

	v := "m1"
	score := 0.3
	orig := &PredictionResult{
		Type:               PredictionTypeMoodState,
		ModelVersion:       &v,
		ClassProbabilities: map[string]float64{"stable": 0.7},
		Attributions:       []Attribution{{Feature: "mood", Score: &score}},
	}
	c := orig.Clone()
	*c.ModelVersion = "m2"
	c.ClassProbabilities["stable"] = 0.1
	c.Attributions[0].Feature = "x"

	if *orig.ModelVersion != "m1" || orig.ClassProbabilities["stable"] != 0.7 || orig.Attributions[0].Feature != "mood" {
		t.Error("Clone shares state with the original")
	}
}

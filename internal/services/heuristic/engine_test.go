package heuristic

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/benvon/checkin-insights/internal/models"
	"github.com/benvon/checkin-insights/internal/services/features"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("failed to load embedded config: %v", err)
	}
	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return e
}

func vectorFor(c models.CheckIn) *features.Vector {
	return features.NewEngineer().Extract(c, nil, nil)
}

func checkIn(mood, energy, sleep, anxiety, adherence float64) models.CheckIn {
	return models.CheckIn{
		ID:                  uuid.New(),
		Timestamp:           time.Date(2024, 3, 13, 9, 0, 0, 0, time.UTC),
		Mood:                models.Float(mood),
		EnergyLevel:         models.Float(energy),
		HoursSlept:          models.Float(sleep),
		Anxiety:             models.Float(anxiety),
		Activation:          models.Float(5),
		Irritability:        models.Float(3),
		MedicationAdherence: models.Float(adherence),
		CaffeineDoses:       models.Float(1),
		ExerciseMinutes:     models.Float(20),
	}
}

func TestLoadConfig_Embedded(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Version == "" {
		t.Error("expected a version")
	}
	for _, pt := range models.AllPredictionTypes() {
		if _, ok := cfg.Types[string(pt)]; !ok {
			t.Errorf("embedded config missing %s", pt)
		}
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := LoadConfig("/nonexistent/heuristics.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseConfig_Invalid(t *testing.T) {
	t.Parallel()

	valid := string(defaultConfig)
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "weights do not sum to one",
			doc:     strings.Replace(valid, "sleep_deficit: 0.30", "sleep_deficit: 0.35", 1),
			wantErr: "weights sum",
		},
		{
			name:    "unknown factor",
			doc:     strings.Replace(valid, "energy_deviation: 0.20", "lunar_phase: 0.20", 1),
			wantErr: "unknown factor",
		},
		{
			name:    "missing type",
			doc:     strings.Replace(valid, "sleep_disturbance_risk:", "sleep_quality:", 1),
			wantErr: "missing type",
		},
		{
			name:    "inverted thresholds",
			doc:     strings.Replace(valid, "{moderate: 0.40, high: 0.70}", "{moderate: 0.80, high: 0.70}", 1),
			wantErr: "thresholds",
		},
		{
			name:    "missing version",
			doc:     strings.Replace(valid, `version: "2024.1"`, "", 1),
			wantErr: "version",
		},
		{
			name:    "malformed yaml",
			doc:     "types: [",
			wantErr: "parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseConfig([]byte(tt.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestEstimate_ProbabilityBounds(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	inputs := []models.CheckIn{
		checkIn(1, 1, 0, 10, 0),
		checkIn(10, 10, 16, 1, 1),
		checkIn(-50, 300, -4, 99, 7), // out-of-range values
		{ID: uuid.New(), Timestamp: time.Now()},
	}

	for _, pt := range models.AllPredictionTypes() {
		for _, c := range inputs {
			est, err := e.Estimate(pt, vectorFor(c))
			if err != nil {
				t.Fatalf("Estimate(%s) error = %v", pt, err)
			}
			if est.Probability < 0 || est.Probability > 1 || math.IsNaN(est.Probability) {
				t.Errorf("%s probability %v out of bounds", pt, est.Probability)
			}
			if est.Probability > 0 && est.Probability < models.ProbabilityNoiseFloor {
				t.Errorf("%s probability %v under noise floor", pt, est.Probability)
			}
			if est.Label == "" {
				t.Errorf("%s produced an empty label", pt)
			}
		}
	}
}

func TestEstimate_RelapseRiskOrdering(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	calm, err := e.Estimate(models.PredictionTypeRelapseRisk, vectorFor(checkIn(7, 7, 8, 2, 1)))
	if err != nil {
		t.Fatal(err)
	}
	strained, err := e.Estimate(models.PredictionTypeRelapseRisk, vectorFor(checkIn(3, 3, 2, 9, 1)))
	if err != nil {
		t.Fatal(err)
	}
	if strained.Probability <= calm.Probability {
		t.Errorf("expected strained (%v) > calm (%v)", strained.Probability, calm.Probability)
	}
	if len(calm.Factors) != 4 {
		t.Errorf("relapse heuristic should report 4 factors, got %d", len(calm.Factors))
	}
}

func TestEstimate_RelapseRiskExact(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	// sleep 4h -> deficit 0.5; anxiety 10 -> 1.0; no history -> deviations 0.
	est, err := e.Estimate(models.PredictionTypeRelapseRisk, vectorFor(checkIn(5, 5, 4, 10, 1)))
	if err != nil {
		t.Fatal(err)
	}
	want := 0.30*0.5 + 0.20*1.0
	if math.Abs(est.Probability-want) > 1e-9 {
		t.Errorf("probability = %v, want %v", est.Probability, want)
	}
	if est.Label != LabelLow {
		t.Errorf("label = %q, want %q", est.Label, LabelLow)
	}
	if est.Factors[0].Name != "anxiety_level" {
		t.Errorf("top factor = %s, want anxiety_level", est.Factors[0].Name)
	}
}

func TestEstimate_CompletenessShrinksTowardBaseRate(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	empty := vectorFor(models.CheckIn{ID: uuid.New(), Timestamp: time.Now()})
	est, err := e.Estimate(models.PredictionTypeRelapseRisk, empty)
	if err != nil {
		t.Fatal(err)
	}
	base := e.Config().Types[string(models.PredictionTypeRelapseRisk)].BaseRate
	if math.Abs(est.Probability-base) > 1e-9 {
		t.Errorf("with no reported inputs probability = %v, want base rate %v", est.Probability, base)
	}
}

func TestEstimate_MoodState(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	tests := []struct {
		name      string
		checkIn   models.CheckIn
		wantLabel string
	}{
		{"depressed", checkIn(1, 1, 7, 5, 1), ClassDepressed},
		{"stable", checkIn(6, 6, 8, 3, 1), ClassStable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			est, err := e.Estimate(models.PredictionTypeMoodState, vectorFor(tt.checkIn))
			if err != nil {
				t.Fatal(err)
			}
			if est.Label != tt.wantLabel {
				t.Errorf("label = %q, want %q (probs %v)", est.Label, tt.wantLabel, est.ClassProbabilities)
			}
			sum := 0.0
			for _, p := range est.ClassProbabilities {
				sum += p
			}
			if math.Abs(sum-1) > 1e-9 {
				t.Errorf("class probabilities sum to %v", sum)
			}
			if est.Probability != est.ClassProbabilities[est.Label] {
				t.Error("probability should equal the top class probability")
			}
		})
	}
}

func TestEngine_Label(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	tests := []struct {
		p    float64
		want string
	}{
		{0.1, LabelLow},
		{0.4, LabelModerate},
		{0.69, LabelModerate},
		{0.7, LabelHigh},
		{1, LabelHigh},
	}
	for _, tt := range tests {
		if got := e.Label(models.PredictionTypeRelapseRisk, tt.p); got != tt.want {
			t.Errorf("Label(%v) = %q, want %q", tt.p, got, tt.want)
		}
	}
}

func TestFactorNames_CoverConfig(t *testing.T) {
	t.Parallel()

	known := make(map[string]bool)
	for _, n := range FactorNames() {
		known[n] = true
	}
	cfg, _ := LoadConfig("")
	for name, tc := range cfg.Types {
		for f := range tc.Weights {
			if !known[f] {
				t.Errorf("%s references unlisted factor %s", name, f)
			}
		}
	}
}

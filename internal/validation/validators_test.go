package validation

import (
	"strings"
	"testing"

	"github.com/benvon/checkin-insights/internal/models"
)

type typedQuery struct {
	Types  []models.PredictionType `validate:"dive,prediction_type"`
	Window int                     `validate:"gte=1,lte=30"`
}

func TestValidate_PredictionType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		query   typedQuery
		wantErr string
	}{
		{"valid", typedQuery{Types: []models.PredictionType{models.PredictionTypeMoodState}, Window: 3}, ""},
		{"empty types", typedQuery{Window: 3}, ""},
		{"unknown type", typedQuery{Types: []models.PredictionType{"burnout"}, Window: 3}, "unknown prediction type"},
		{"window too large", typedQuery{Window: 31}, "lte=30"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Validate.Struct(tt.query)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if msg := Describe(err); !strings.Contains(msg, tt.wantErr) {
				t.Errorf("Describe() = %q, want it to contain %q", msg, tt.wantErr)
			}
		})
	}
}

func TestValidatePredictionType(t *testing.T) {
	t.Parallel()

	if err := ValidatePredictionType("relapse_risk"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	err := ValidatePredictionType("weather")
	if err == nil || !strings.Contains(err.Error(), "mood_state") {
		t.Errorf("expected error listing valid types, got %v", err)
	}
}

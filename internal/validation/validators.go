package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/benvon/checkin-insights/internal/models"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	// Register custom validators for enums
	if err := Validate.RegisterValidation("prediction_type", validatePredictionType); err != nil {
		panic(fmt.Sprintf("failed to register prediction_type validator: %v", err))
	}
}

// validatePredictionType validates that a string is a supported PredictionType
func validatePredictionType(fl validator.FieldLevel) bool {
	return models.PredictionType(fl.Field().String()).Valid()
}

// ValidatePredictionType validates a PredictionType string value
func ValidatePredictionType(value string) error {
	if models.PredictionType(value).Valid() {
		return nil
	}
	names := make([]string, 0, len(models.AllPredictionTypes()))
	for _, t := range models.AllPredictionTypes() {
		names = append(names, string(t))
	}
	return fmt.Errorf("invalid prediction type: %s (must be one of %s)", value, strings.Join(names, ", "))
}

// Describe flattens validator errors into one readable message
func Describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "prediction_type":
			msgs = append(msgs, fmt.Sprintf("%s: unknown prediction type %q", fe.Namespace(), fe.Value()))
		case "gte", "lte", "min", "max":
			msgs = append(msgs, fmt.Sprintf("%s: must satisfy %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

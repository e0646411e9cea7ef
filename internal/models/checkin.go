package models

import (
	"time"

	"github.com/google/uuid"
)

// CheckIn is a single timestamped patient self-report. Numeric fields are nil
// when the patient did not report them; a reported zero is a real zero.
type CheckIn struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`

	Mood                *float64 `json:"mood,omitempty"`                 // 1-10
	EnergyLevel         *float64 `json:"energy_level,omitempty"`         // 1-10
	HoursSlept          *float64 `json:"hours_slept,omitempty"`          // 0-16
	Anxiety             *float64 `json:"anxiety,omitempty"`              // 1-10
	Activation          *float64 `json:"activation,omitempty"`           // 1-10
	Irritability        *float64 `json:"irritability,omitempty"`         // 1-10
	MedicationAdherence *float64 `json:"medication_adherence,omitempty"` // 0-1 ratio of doses taken
	CaffeineDoses       *float64 `json:"caffeine_doses,omitempty"`       // 0-8
	ExerciseMinutes     *float64 `json:"exercise_minutes,omitempty"`     // 0-120

	Notes     string   `json:"notes,omitempty"`
	Stressors []string `json:"stressors,omitempty"`
}

// UserProfile carries the demographic inputs of the feature vector. Either
// field may be unknown.
type UserProfile struct {
	UserID   uuid.UUID `json:"user_id"`
	AgeYears *float64  `json:"age_years,omitempty"`
	// SexFemale is 1 for female, 0 for male, nil when not recorded.
	SexFemale *float64 `json:"sex_female,omitempty"`
}

// Float returns a pointer to v. Used to build check-ins in tests and fixtures.
func Float(v float64) *float64 {
	return &v
}

package features

import (
	"fmt"

	"github.com/benvon/checkin-insights/internal/models"
)

// SchemaVersion identifies the width, order and meaning of Vector values.
// Any change to the feature list below requires a new version.
const SchemaVersion = "fv1.65"

// Width is the number of values in every Vector
const Width = 65

// InsufficientHistory marks a rolling mean whose lookback window had no data.
// It lies outside the valid range of every tracked metric.
const InsufficientHistory = -1.0

type field struct {
	name     string
	get      func(*models.CheckIn) *float64
	min, max float64
}

func (f field) neutral() float64 {
	return (f.min + f.max) / 2
}

// currentFields are the self-reported numeric fields. Completeness is
// measured against this list.
var currentFields = []field{
	{"mood", func(c *models.CheckIn) *float64 { return c.Mood }, 1, 10},
	{"energy_level", func(c *models.CheckIn) *float64 { return c.EnergyLevel }, 1, 10},
	{"hours_slept", func(c *models.CheckIn) *float64 { return c.HoursSlept }, 0, 16},
	{"anxiety", func(c *models.CheckIn) *float64 { return c.Anxiety }, 1, 10},
	{"activation", func(c *models.CheckIn) *float64 { return c.Activation }, 1, 10},
	{"irritability", func(c *models.CheckIn) *float64 { return c.Irritability }, 1, 10},
	{"medication_adherence", func(c *models.CheckIn) *float64 { return c.MedicationAdherence }, 0, 1},
	{"caffeine_doses", func(c *models.CheckIn) *float64 { return c.CaffeineDoses }, 0, 8},
	{"exercise_minutes", func(c *models.CheckIn) *float64 { return c.ExerciseMinutes }, 0, 120},
}

// rollingMetrics feed the mean, slope and std groups
var rollingMetrics = []string{"mood", "energy_level", "hours_slept", "anxiety", "medication_adherence"}

// zMetrics feed the 30-day z-score group
var zMetrics = []string{"mood", "energy_level", "hours_slept", "anxiety", "activation", "irritability", "medication_adherence", "caffeine_doses"}

var (
	meanWindows = []int{7, 14, 30}
	stdWindows  = []int{14, 30}
)

// BaselineDays is the longest lookback any feature uses
const BaselineDays = 30

const (
	ageMin, ageMax   = 0.0, 90.0
	targetSleepHours = 8.0
)

var (
	names    []string
	index    map[string]int
	neutrals []float64
)

func init() {
	fieldByName := make(map[string]field, len(currentFields))
	for _, f := range currentFields {
		fieldByName[f.name] = f
	}

	add := func(name string, neutral float64) {
		names = append(names, name)
		neutrals = append(neutrals, neutral)
	}

	add("age_years", (ageMin+ageMax)/2)
	add("sex_female", 0.5)

	for _, f := range currentFields {
		add(f.name, f.neutral())
	}
	add("stressor_count", 0)
	add("notes_present", 0)
	add("sleep_deficit_ratio", 0)
	add("hour_of_day", 12)
	add("is_weekend", 0)
	add("days_since_previous_checkin", 1)

	for _, m := range rollingMetrics {
		for _, d := range meanWindows {
			add(fmt.Sprintf("%s_mean_%dd", m, d), fieldByName[m].neutral())
		}
	}
	for _, m := range rollingMetrics {
		for _, d := range meanWindows {
			add(fmt.Sprintf("%s_slope_%dd", m, d), 0)
		}
	}
	for _, m := range rollingMetrics {
		for _, d := range stdWindows {
			add(fmt.Sprintf("%s_std_%dd", m, d), 0)
		}
	}
	for _, m := range zMetrics {
		add(m+"_z30d", 0)
	}

	if len(names) != Width {
		panic(fmt.Sprintf("feature schema %s has %d features, expected %d", SchemaVersion, len(names), Width))
	}

	index = make(map[string]int, Width)
	for i, n := range names {
		index[n] = i
	}
}

// Names returns the ordered feature names of the current schema
func Names() []string {
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// Index returns the position of a named feature
func Index(name string) (int, bool) {
	i, ok := index[name]
	return i, ok
}

// NeutralValues returns the per-feature values used for missing inputs and
// as the occlusion baseline when explaining a model.
func NeutralValues() []float64 {
	out := make([]float64, len(neutrals))
	copy(out, neutrals)
	return out
}

// RequiredInputs is the number of self-reported fields completeness is measured against
func RequiredInputs() int {
	return len(currentFields)
}

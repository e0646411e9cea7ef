package heuristic

import (
	"math"
	"sort"

	"github.com/benvon/checkin-insights/internal/services/features"
)

// factorFunc scores one clinical factor in [0,1] and reports the feature it read
type factorFunc func(v *features.Vector) (score float64, input string)

// factorFuncs is the closed set of factors a configuration may reference
var factorFuncs = map[string]factorFunc{
	"sleep_deficit": func(v *features.Vector) (float64, string) {
		return unit(v.Get("sleep_deficit_ratio")), "sleep_deficit_ratio"
	},
	"mood_deviation": func(v *features.Vector) (float64, string) {
		return unit(math.Abs(v.Get("mood_z30d")) / 3), "mood_z30d"
	},
	"energy_deviation": func(v *features.Vector) (float64, string) {
		return unit(math.Abs(v.Get("energy_level_z30d")) / 3), "energy_level_z30d"
	},
	"anxiety_level": func(v *features.Vector) (float64, string) {
		return scale(v.Get("anxiety"), 1, 10), "anxiety"
	},
	"low_mood": func(v *features.Vector) (float64, string) {
		return 1 - scale(v.Get("mood"), 1, 10), "mood"
	},
	"elevated_mood": func(v *features.Vector) (float64, string) {
		return scale(v.Get("mood"), 7, 10), "mood"
	},
	"low_energy": func(v *features.Vector) (float64, string) {
		return 1 - scale(v.Get("energy_level"), 1, 10), "energy_level"
	},
	"high_activation": func(v *features.Vector) (float64, string) {
		return scale(v.Get("activation"), 1, 10), "activation"
	},
	"irritability_level": func(v *features.Vector) (float64, string) {
		return scale(v.Get("irritability"), 1, 10), "irritability"
	},
	// a decline of half a point per day or faster saturates
	"mood_decline_trend": func(v *features.Vector) (float64, string) {
		return unit(-v.Get("mood_slope_14d") / 0.5), "mood_slope_14d"
	},
	"medication_gap": func(v *features.Vector) (float64, string) {
		return 1 - unit(v.Get("medication_adherence")), "medication_adherence"
	},
	"adherence_decline": func(v *features.Vector) (float64, string) {
		return unit(-v.Get("medication_adherence_slope_14d") / 0.05), "medication_adherence_slope_14d"
	},
	"adherence_variability": func(v *features.Vector) (float64, string) {
		return unit(v.Get("medication_adherence_std_14d") / 0.3), "medication_adherence_std_14d"
	},
	"sleep_variability": func(v *features.Vector) (float64, string) {
		return unit(v.Get("hours_slept_std_14d") / 3), "hours_slept_std_14d"
	},
	"caffeine_load": func(v *features.Vector) (float64, string) {
		return scale(v.Get("caffeine_doses"), 0, 8), "caffeine_doses"
	},
}

// FactorNames lists every factor a configuration may reference
func FactorNames() []string {
	names := make([]string, 0, len(factorFuncs))
	for name := range factorFuncs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func scale(x, lo, hi float64) float64 {
	return unit((x - lo) / (hi - lo))
}

func unit(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

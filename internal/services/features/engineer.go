package features

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/benvon/checkin-insights/internal/models"
)

const day = 24 * time.Hour

// Engineer converts a check-in and its trailing history into a Vector.
// It holds no state and is safe for concurrent use.
type Engineer struct{}

// NewEngineer creates a feature engineer for the current schema
func NewEngineer() *Engineer {
	return &Engineer{}
}

// SchemaVersion reports the schema of the vectors this engineer produces
func (e *Engineer) SchemaVersion() string {
	return SchemaVersion
}

// Extract builds the feature vector for current. Records in history at or
// after current's timestamp are ignored. profile may be nil.
func (e *Engineer) Extract(current models.CheckIn, history []models.CheckIn, profile *models.UserProfile) *Vector {
	v := newVector()
	v.CheckInID = current.ID
	v.CheckInTime = current.Timestamp

	prior := priorHistory(current.Timestamp, history)

	extractDemographics(v, profile)
	extractCurrentState(v, &current, prior)
	extractRolling(v, current.Timestamp, prior)
	extractZScores(v, &current, prior)

	v.HistoryPoints = len(window(current.Timestamp, prior, BaselineDays))
	return v
}

// priorHistory returns a sorted copy of the records strictly before t
func priorHistory(t time.Time, history []models.CheckIn) []models.CheckIn {
	prior := make([]models.CheckIn, 0, len(history))
	for _, c := range history {
		if c.Timestamp.Before(t) {
			prior = append(prior, c)
		}
	}
	sort.SliceStable(prior, func(i, j int) bool {
		if !prior[i].Timestamp.Equal(prior[j].Timestamp) {
			return prior[i].Timestamp.Before(prior[j].Timestamp)
		}
		return bytes.Compare(prior[i].ID[:], prior[j].ID[:]) < 0
	})
	return prior
}

// window returns the suffix of sorted prior records within the last days before t
func window(t time.Time, prior []models.CheckIn, days int) []models.CheckIn {
	start := t.Add(-time.Duration(days) * day)
	i := sort.Search(len(prior), func(i int) bool {
		return !prior[i].Timestamp.Before(start)
	})
	return prior[i:]
}

func extractDemographics(v *Vector, profile *models.UserProfile) {
	age, sex := neutralOf("age_years"), neutralOf("sex_female")
	ageOK, sexOK := false, false
	if profile != nil {
		if profile.AgeYears != nil {
			age, ageOK = clamp(*profile.AgeYears, ageMin, ageMax), true
		}
		if profile.SexFemale != nil {
			sex, sexOK = *profile.SexFemale, true
		}
	}
	v.set("age_years", age, ageOK)
	v.set("sex_female", sex, sexOK)
}

func extractCurrentState(v *Vector, current *models.CheckIn, prior []models.CheckIn) {
	reported := 0
	for _, f := range currentFields {
		if p := f.get(current); p != nil {
			v.set(f.name, *p, true)
			reported++
		} else {
			v.set(f.name, f.neutral(), false)
		}
	}
	v.Completeness = reported
	v.CompletenessRatio = float64(reported) / float64(len(currentFields))

	v.set("stressor_count", float64(len(current.Stressors)), true)
	notes := 0.0
	if current.Notes != "" {
		notes = 1
	}
	v.set("notes_present", notes, true)

	if current.HoursSlept != nil {
		v.set("sleep_deficit_ratio", math.Max(0, (targetSleepHours-*current.HoursSlept)/targetSleepHours), true)
	} else {
		v.set("sleep_deficit_ratio", 0, false)
	}

	ts := current.Timestamp.UTC()
	v.set("hour_of_day", float64(ts.Hour()), true)
	weekend := 0.0
	if wd := ts.Weekday(); wd == time.Saturday || wd == time.Sunday {
		weekend = 1
	}
	v.set("is_weekend", weekend, true)

	if len(prior) > 0 {
		gap := current.Timestamp.Sub(prior[len(prior)-1].Timestamp).Hours() / 24
		v.set("days_since_previous_checkin", gap, true)
	} else {
		v.set("days_since_previous_checkin", InsufficientHistory, false)
	}
}

func extractRolling(v *Vector, t time.Time, prior []models.CheckIn) {
	for _, m := range rollingMetrics {
		f := fieldNamed(m)
		for _, d := range meanWindows {
			xs, ys := series(t, window(t, prior, d), f)

			mean, meanOK := InsufficientHistory, false
			if len(ys) > 0 {
				mean, meanOK = stat.Mean(ys, nil), true
			}
			v.set(fmt.Sprintf("%s_mean_%dd", m, d), mean, meanOK)

			slope, slopeOK := 0.0, false
			if len(ys) >= 2 {
				_, beta := stat.LinearRegression(xs, ys, nil, false)
				if finite(beta) {
					slope, slopeOK = beta, true
				}
			}
			v.set(fmt.Sprintf("%s_slope_%dd", m, d), slope, slopeOK)
		}
		for _, d := range stdWindows {
			_, ys := series(t, window(t, prior, d), f)
			std, stdOK := 0.0, false
			if len(ys) >= 2 {
				if s := stat.StdDev(ys, nil); finite(s) {
					std, stdOK = s, true
				}
			}
			v.set(fmt.Sprintf("%s_std_%dd", m, d), std, stdOK)
		}
	}
}

func extractZScores(v *Vector, current *models.CheckIn, prior []models.CheckIn) {
	baseline := window(current.Timestamp, prior, BaselineDays)
	for _, m := range zMetrics {
		f := fieldNamed(m)
		name := m + "_z30d"
		p := f.get(current)
		_, ys := series(current.Timestamp, baseline, f)
		if p == nil || len(ys) < 2 {
			v.set(name, 0, false)
			continue
		}
		mean, std := stat.MeanStdDev(ys, nil)
		if std == 0 || !finite(std) {
			v.set(name, 0, false)
			continue
		}
		v.set(name, (*p-mean)/std, true)
	}
}

// series returns (days relative to t, value) for records that reported f
func series(t time.Time, records []models.CheckIn, f field) ([]float64, []float64) {
	xs := make([]float64, 0, len(records))
	ys := make([]float64, 0, len(records))
	for i := range records {
		p := f.get(&records[i])
		if p == nil {
			continue
		}
		xs = append(xs, records[i].Timestamp.Sub(t).Hours()/24)
		ys = append(ys, *p)
	}
	return xs, ys
}

func fieldNamed(name string) field {
	for _, f := range currentFields {
		if f.name == name {
			return f
		}
	}
	panic("unknown feature field " + name)
}

func neutralOf(name string) float64 {
	return neutrals[index[name]]
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

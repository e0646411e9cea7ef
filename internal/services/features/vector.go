package features

import (
	"time"

	"github.com/google/uuid"
)

// Vector is the fixed-width numeric encoding of one check-in plus its history
type Vector struct {
	Values   []float64
	Observed []bool

	SchemaVersion string
	CheckInID     uuid.UUID
	CheckInTime   time.Time

	// Completeness is the number of self-reported fields present on the current check-in
	Completeness int
	// CompletenessRatio is Completeness over RequiredInputs
	CompletenessRatio float64
	// HistoryPoints is the number of prior check-ins within the baseline window
	HistoryPoints int
}

func newVector() *Vector {
	return &Vector{
		Values:        make([]float64, Width),
		Observed:      make([]bool, Width),
		SchemaVersion: SchemaVersion,
	}
}

// Get returns the named value. Unknown names return 0.
func (v *Vector) Get(name string) float64 {
	i, ok := index[name]
	if !ok {
		return 0
	}
	return v.Values[i]
}

// IsObserved reports whether the named value came from reported data
func (v *Vector) IsObserved(name string) bool {
	i, ok := index[name]
	if !ok {
		return false
	}
	return v.Observed[i]
}

// Clone returns a deep copy. Used by occlusion, which perturbs one value at a time.
func (v *Vector) Clone() *Vector {
	out := *v
	out.Values = make([]float64, len(v.Values))
	copy(out.Values, v.Values)
	out.Observed = make([]bool, len(v.Observed))
	copy(out.Observed, v.Observed)
	return &out
}

func (v *Vector) set(name string, value float64, observed bool) {
	i := index[name]
	v.Values[i] = value
	v.Observed[i] = observed
}

package queue

import (
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of job
type JobType string

const (
	// JobTypeWarmPredictions pre-computes a user's predictions into the shared cache
	JobTypeWarmPredictions JobType = "warm_predictions"
)

// DefaultMaxRetries bounds re-deliveries before a job is dead-lettered
const DefaultMaxRetries = 3

// Job represents a job in the queue
type Job struct {
	ID         uuid.UUID  `json:"id"`
	Type       JobType    `json:"type"`
	UserID     uuid.UUID  `json:"user_id"`
	WindowDays int        `json:"window_days,omitempty"`
	Types      []string   `json:"types,omitempty"`
	NotBefore  *time.Time `json:"not_before,omitempty"`
	NotAfter   *time.Time `json:"not_after,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	RetryCount int        `json:"retry_count"`
	MaxRetries int        `json:"max_retries"`
}

// NewWarmJob creates a cache warming job. windowDays 0 leaves window_days unset so the service default applies.
func NewWarmJob(userID uuid.UUID, windowDays int) *Job {
	return &Job{
		ID:         uuid.New(),
		Type:       JobTypeWarmPredictions,
		UserID:     userID,
		WindowDays: windowDays,
		CreatedAt:  time.Now().UTC(),
		MaxRetries: DefaultMaxRetries,
	}
}

// ShouldProcess reports whether the job is due and not expired at now
func (j *Job) ShouldProcess(now time.Time) bool {
	if j.NotBefore != nil && now.Before(*j.NotBefore) {
		return false
	}
	return !j.IsExpired(now)
}

// IsExpired reports whether NotAfter has passed
func (j *Job) IsExpired(now time.Time) bool {
	return j.NotAfter != nil && now.After(*j.NotAfter)
}

// CanRetry checks if the job can be retried
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// RetryBackoff is the delay before attempt n+1: base doubled per retry, capped at max
func RetryBackoff(retryCount int, base, max time.Duration) time.Duration {
	d := base
	for i := 0; i < retryCount && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	return d
}

// NextAttempt returns a copy scheduled for retry after delay. The job id is
// kept so retries of one job can be correlated in logs.
func (j *Job) NextAttempt(now time.Time, delay time.Duration) *Job {
	next := *j
	next.RetryCount = j.RetryCount + 1
	notBefore := now.Add(delay)
	next.NotBefore = &notBefore
	if j.Types != nil {
		next.Types = append([]string(nil), j.Types...)
	}
	return &next
}

package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

var testNow = time.Date(2024, 3, 13, 12, 0, 0, 0, time.UTC)

func timePtr(t time.Time) *time.Time {
	return &t
}

func TestNewWarmJob(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	job := NewWarmJob(userID, 7)

	if job.ID == uuid.Nil {
		t.Error("Expected job ID to be set")
	}
	if job.Type != JobTypeWarmPredictions {
		t.Errorf("Type = %s, want %s", job.Type, JobTypeWarmPredictions)
	}
	if job.UserID != userID || job.WindowDays != 7 {
		t.Errorf("UserID/WindowDays = %s/%d", job.UserID, job.WindowDays)
	}
	if job.MaxRetries != DefaultMaxRetries || job.RetryCount != 0 {
		t.Errorf("MaxRetries/RetryCount = %d/%d", job.MaxRetries, job.RetryCount)
	}
	if job.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set")
	}
}

func TestJob_ShouldProcess(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		notBefore *time.Time
		notAfter  *time.Time
		want      bool
		expired   bool
	}{
		{name: "no constraints", want: true},
		{name: "not before in past", notBefore: timePtr(testNow.Add(-time.Minute)), want: true},
		{name: "not before in future", notBefore: timePtr(testNow.Add(time.Minute)), want: false},
		{name: "not after in future", notAfter: timePtr(testNow.Add(time.Hour)), want: true},
		{name: "not after in past", notAfter: timePtr(testNow.Add(-time.Hour)), want: false, expired: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			job := &Job{NotBefore: tt.notBefore, NotAfter: tt.notAfter}
			if got := job.ShouldProcess(testNow); got != tt.want {
				t.Errorf("ShouldProcess() = %v, want %v", got, tt.want)
			}
			if got := job.IsExpired(testNow); got != tt.expired {
				t.Errorf("IsExpired() = %v, want %v", got, tt.expired)
			}
		})
	}
}

func TestJob_CanRetry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		retryCount int
		maxRetries int
		want       bool
	}{
		{retryCount: 0, maxRetries: 3, want: true},
		{retryCount: 2, maxRetries: 3, want: true},
		{retryCount: 3, maxRetries: 3, want: false},
		{retryCount: 0, maxRetries: 0, want: false},
	}

	for _, tt := range tests {
		job := &Job{RetryCount: tt.retryCount, MaxRetries: tt.maxRetries}
		if got := job.CanRetry(); got != tt.want {
			t.Errorf("CanRetry(%d/%d) = %v, want %v", tt.retryCount, tt.maxRetries, got, tt.want)
		}
	}
}

func TestRetryBackoff(t *testing.T) {
	t.Parallel()

	base := 10 * time.Second
	max := time.Minute
	tests := []struct {
		retryCount int
		want       time.Duration
	}{
		{retryCount: 0, want: 10 * time.Second},
		{retryCount: 1, want: 20 * time.Second},
		{retryCount: 2, want: 40 * time.Second},
		{retryCount: 3, want: time.Minute},
		{retryCount: 50, want: time.Minute},
	}
	for _, tt := range tests {
		if got := RetryBackoff(tt.retryCount, base, max); got != tt.want {
			t.Errorf("RetryBackoff(%d) = %s, want %s", tt.retryCount, got, tt.want)
		}
	}
}

func TestJob_NextAttempt(t *testing.T) {
	t.Parallel()

	job := NewWarmJob(uuid.New(), 3)
	job.Types = []string{"relapse_risk"}

	next := job.NextAttempt(testNow, 20*time.Second)

	if next.ID != job.ID || next.UserID != job.UserID {
		t.Error("Expected retry to keep job and user ids")
	}
	if next.RetryCount != 1 || job.RetryCount != 0 {
		t.Errorf("RetryCount next/original = %d/%d, want 1/0", next.RetryCount, job.RetryCount)
	}
	if next.NotBefore == nil || !next.NotBefore.Equal(testNow.Add(20*time.Second)) {
		t.Errorf("NotBefore = %v", next.NotBefore)
	}
	if job.NotBefore != nil {
		t.Error("Expected original job to be unchanged")
	}
	next.Types[0] = "mood_state"
	if job.Types[0] != "relapse_risk" {
		t.Error("Expected Types to be copied")
	}
}

func TestJob_JSONShape(t *testing.T) {
	t.Parallel()

	job := &Job{
		ID:         uuid.MustParse("3f2b8c1e-1111-4222-8333-444455556666"),
		Type:       JobTypeWarmPredictions,
		UserID:     uuid.MustParse("9a8b7c6d-1111-4222-8333-444455556666"),
		CreatedAt:  testNow,
		MaxRetries: 3,
	}
	data, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if raw["type"] != "warm_predictions" {
		t.Errorf("type = %v", raw["type"])
	}
	for _, key := range []string{"window_days", "types", "not_before", "not_after"} {
		if _, ok := raw[key]; ok {
			t.Errorf("Expected %s to be omitted when unset", key)
		}
	}
}

package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benvon/checkin-insights/internal/database"
	logpkg "github.com/benvon/checkin-insights/internal/logger"
	"github.com/benvon/checkin-insights/internal/queue"
)

// DefaultJobTTL is how long a scheduled warm job stays useful
const DefaultJobTTL = 6 * time.Hour

// Scheduler enqueues warm jobs for recently active users
type Scheduler struct {
	jobQueue queue.JobQueue
	users    database.ActiveUserLister
	logger   *zap.Logger
	now      func() time.Time

	maxRetries int
}

// NewScheduler creates a new scheduler
func NewScheduler(jobQueue queue.JobQueue, users database.ActiveUserLister, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{jobQueue: jobQueue, users: users, logger: logger, now: time.Now}
}

// ScheduleWarmJobs enqueues one job per user with a check-in in the last activeDays.
// Enqueue failures for individual users are logged and skipped.
func (s *Scheduler) ScheduleWarmJobs(ctx context.Context, activeDays, windowDays int) (int, error) {
	if activeDays <= 0 {
		return 0, fmt.Errorf("activeDays must be positive, got %d", activeDays)
	}
	now := s.now().UTC()
	users, err := s.users.ActiveUserIDs(ctx, now.Add(-time.Duration(activeDays)*24*time.Hour))
	if err != nil {
		return 0, fmt.Errorf("failed to list active users: %w", err)
	}

	scheduled := 0
	for _, userID := range users {
		if err := s.EnqueueUser(ctx, userID, windowDays); err != nil {
			s.logger.Warn("failed_to_schedule_warm_job", logpkg.UserID(userID), logpkg.Err(err))
			continue
		}
		scheduled++
	}

	s.logger.Info("scheduled_warm_jobs",
		zap.Int("user_count", len(users)),
		zap.Int("scheduled", scheduled),
	)
	return scheduled, nil
}

// SetMaxRetries overrides the retry budget of enqueued jobs; n <= 0 keeps the default
func (s *Scheduler) SetMaxRetries(n int) {
	s.maxRetries = n
}

// EnqueueUser enqueues a single warm job that expires after DefaultJobTTL
func (s *Scheduler) EnqueueUser(ctx context.Context, userID uuid.UUID, windowDays int) error {
	job := queue.NewWarmJob(userID, windowDays)
	notAfter := s.now().UTC().Add(DefaultJobTTL)
	job.NotAfter = &notAfter
	if s.maxRetries > 0 {
		job.MaxRetries = s.maxRetries
	}
	if err := s.jobQueue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue warm job: %w", err)
	}
	return nil
}

// Start schedules warm jobs every interval until ctx is cancelled
func (s *Scheduler) Start(ctx context.Context, interval time.Duration, activeDays, windowDays int) error {
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.ScheduleWarmJobs(ctx, activeDays, windowDays); err != nil {
				s.logger.Warn("warm_schedule_failed", logpkg.Err(err))
			}
		}
	}
}

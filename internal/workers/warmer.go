package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	logpkg "github.com/benvon/checkin-insights/internal/logger"
	"github.com/benvon/checkin-insights/internal/models"
	"github.com/benvon/checkin-insights/internal/queue"
	"github.com/benvon/checkin-insights/internal/services/prediction"
)

// Retry backoff for warm jobs that hit a data-source outage
const (
	DefaultRetryBase = 30 * time.Second
	DefaultRetryMax  = 10 * time.Minute
)

// Predictor computes predictions; the orchestrator writes results to the shared cache
type Predictor interface {
	Generate(ctx context.Context, q prediction.Query) (*models.PredictionResponse, error)
}

// JobProcessor handles one job type
type JobProcessor func(ctx context.Context, job *queue.Job) error

// Warmer consumes warm_predictions jobs and pre-computes predictions so the
// first read after a check-in is a cache hit.
type Warmer struct {
	predictor Predictor
	jobQueue  queue.JobQueue
	logger    *zap.Logger
	registry  map[queue.JobType]JobProcessor
	now       func() time.Time
	retryBase time.Duration
	retryMax  time.Duration
}

// NewWarmer creates a warmer. jobQueue is used to re-enqueue delayed retries and may be nil.
func NewWarmer(predictor Predictor, jobQueue queue.JobQueue, logger *zap.Logger) *Warmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Warmer{
		predictor: predictor,
		jobQueue:  jobQueue,
		logger:    logger,
		registry:  make(map[queue.JobType]JobProcessor),
		now:       time.Now,
		retryBase: DefaultRetryBase,
		retryMax:  DefaultRetryMax,
	}
	w.RegisterProcessor(queue.JobTypeWarmPredictions, w.ProcessWarmJob)
	return w
}

// RegisterProcessor registers a processor for a job type
func (w *Warmer) RegisterProcessor(typ queue.JobType, proc JobProcessor) {
	w.registry[typ] = proc
}

// ProcessWarmJob computes every requested prediction type for the user's latest check-in
func (w *Warmer) ProcessWarmJob(ctx context.Context, job *queue.Job) error {
	if job.UserID == (queue.Job{}).UserID {
		return &prediction.ValidationError{Message: "user_id is required for warm job"}
	}
	q := prediction.Query{UserID: job.UserID}
	if job.WindowDays != 0 {
		q.WindowDays = prediction.Days(job.WindowDays)
	}
	for _, raw := range job.Types {
		t, err := models.ParsePredictionType(raw)
		if err != nil {
			return &prediction.ValidationError{Message: err.Error()}
		}
		q.Types = append(q.Types, t)
	}

	resp, err := w.predictor.Generate(ctx, q)
	if err != nil {
		return err
	}
	w.logger.Debug("predictions_warmed",
		zap.String("job_id", job.ID.String()),
		logpkg.UserID(job.UserID),
		zap.Int("prediction_count", len(resp.Predictions)),
	)
	return nil
}

// ProcessJob dispatches msg to its processor and settles it: ack on success,
// delayed re-enqueue on transient failure, dead-letter otherwise.
func (w *Warmer) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()
	proc, ok := w.registry[job.Type]
	if !ok {
		w.nack(msg, job, false)
		return fmt.Errorf("unknown job type: %s", job.Type)
	}

	err := proc(ctx, job)
	if err == nil {
		if ackErr := msg.Ack(); ackErr != nil {
			return fmt.Errorf("failed to ack warm job: %w", ackErr)
		}
		return nil
	}
	return w.handleJobError(ctx, msg, job, err)
}

func (w *Warmer) handleJobError(ctx context.Context, msg queue.MessageInterface, job *queue.Job, err error) error {
	fields := []zap.Field{
		zap.String("job_id", job.ID.String()),
		logpkg.UserID(job.UserID),
		zap.Int("retry_count", job.RetryCount),
		logpkg.Err(err),
	}

	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		// shutting down; let another worker pick it up
		w.nack(msg, job, true)
		return err
	}

	if !retryable(err) {
		w.logger.Error("warm_job_failed_permanently", fields...)
		w.nack(msg, job, false)
		return fmt.Errorf("warm job failed: %w", err)
	}

	if !job.CanRetry() || w.jobQueue == nil {
		w.logger.Error("warm_job_retries_exhausted", fields...)
		w.nack(msg, job, false)
		return fmt.Errorf("warm job retries exhausted: %w", err)
	}

	delay := queue.RetryBackoff(job.RetryCount, w.retryBase, w.retryMax)
	next := job.NextAttempt(w.now(), delay)
	if enqueueErr := w.jobQueue.Enqueue(ctx, next); enqueueErr != nil {
		w.logger.Error("warm_job_reenqueue_failed", append(fields, zap.NamedError("enqueue_error", enqueueErr))...)
		w.nack(msg, job, false)
		return fmt.Errorf("failed to re-enqueue warm job: %w", enqueueErr)
	}
	if ackErr := msg.Ack(); ackErr != nil {
		w.logger.Warn("failed_to_ack_retried_job", append(fields, zap.NamedError("ack_error", ackErr))...)
	}
	w.logger.Warn("warm_job_retry_scheduled", append(fields, zap.Duration("delay", delay))...)
	return nil
}

func (w *Warmer) nack(msg queue.MessageInterface, job *queue.Job, requeue bool) {
	if err := msg.Nack(requeue); err != nil {
		w.logger.Warn("failed_to_nack_job",
			zap.String("job_id", job.ID.String()),
			zap.Bool("requeue", requeue),
			logpkg.Err(err),
		)
	}
}

// retryable reports whether err is a transient outage worth retrying
func retryable(err error) bool {
	var derr *prediction.DataSourceError
	return errors.As(err, &derr) || errors.Is(err, context.DeadlineExceeded)
}

// Run consumes jobs until ctx is cancelled or the delivery channel closes
func (w *Warmer) Run(ctx context.Context, prefetch int) error {
	if w.jobQueue == nil {
		return errors.New("warmer has no job queue")
	}
	msgs, errs, err := w.jobQueue.Consume(ctx, prefetch)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	w.logger.Info("warm_worker_started", zap.Int("prefetch", prefetch))

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("consumer stopped: %w", err)
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("message channel closed")
			}
			if err := w.ProcessJob(ctx, msg); err != nil {
				w.logger.Debug("warm_job_not_completed", logpkg.Err(err))
			}
		}
	}
}

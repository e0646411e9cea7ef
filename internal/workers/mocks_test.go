package workers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/benvon/checkin-insights/internal/models"
	"github.com/benvon/checkin-insights/internal/queue"
	"github.com/benvon/checkin-insights/internal/services/prediction"
)

var testNow = time.Date(2024, 3, 13, 12, 0, 0, 0, time.UTC)

// mockJobQueue records enqueued jobs and serves a preloaded delivery channel
type mockJobQueue struct {
	mu         sync.Mutex
	enqueued   []*queue.Job
	enqueueErr error
	failFor    map[uuid.UUID]bool
	msgs       chan *queue.Message
	errs       chan error
}

func (m *mockJobQueue) Enqueue(_ context.Context, job *queue.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	if m.failFor[job.UserID] {
		return errors.New("publish failed")
	}
	m.enqueued = append(m.enqueued, job)
	return nil
}

func (m *mockJobQueue) Consume(context.Context, int) (<-chan *queue.Message, <-chan error, error) {
	if m.msgs == nil {
		return nil, nil, errors.New("not consumable")
	}
	return m.msgs, m.errs, nil
}

func (m *mockJobQueue) Close() error { return nil }

func (m *mockJobQueue) HealthCheck(context.Context) error { return nil }

func (m *mockJobQueue) jobs() []*queue.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*queue.Job(nil), m.enqueued...)
}

// mockMessage tracks how a message was settled
type mockMessage struct {
	job     *queue.Job
	acked   bool
	nacked  bool
	requeue bool
}

func (m *mockMessage) Ack() error {
	m.acked = true
	return nil
}

func (m *mockMessage) Nack(requeue bool) error {
	m.nacked = true
	m.requeue = requeue
	return nil
}

func (m *mockMessage) GetJob() *queue.Job {
	return m.job
}

// mockPredictor records queries and returns a fixed outcome
type mockPredictor struct {
	mu      sync.Mutex
	queries []prediction.Query
	err     error
}

func (m *mockPredictor) Generate(_ context.Context, q prediction.Query) (*models.PredictionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, q)
	if m.err != nil {
		return nil, m.err
	}
	return &models.PredictionResponse{UserID: q.UserID, Predictions: []models.PredictionResult{{Type: models.PredictionTypeRelapseRisk}}}, nil
}

func (m *mockPredictor) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queries)
}

type mockUserLister struct {
	users []uuid.UUID
	err   error
	since time.Time
}

func (m *mockUserLister) ActiveUserIDs(_ context.Context, since time.Time) ([]uuid.UUID, error) {
	m.since = since
	return m.users, m.err
}

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	// DefaultQueueName is the work queue consumed by the warming worker
	DefaultQueueName = "prediction_warm_jobs"
	// DefaultDLQName receives jobs that exhausted their retries or could not be decoded
	DefaultDLQName = "prediction_warm_jobs_dlq"
	// DefaultRetryQueueName parks delayed jobs until their per-message TTL expires
	DefaultRetryQueueName = "prediction_warm_jobs_retry"
	// DefaultExchangeName is the direct exchange all queues bind to
	DefaultExchangeName = "checkin_insights"

	routingKeyJobs  = "jobs"
	routingKeyRetry = "retry"
	routingKeyDLQ   = "dlq"

	maxPurgeBatch = 10000
)

// RabbitMQQueue implements JobQueue using RabbitMQ. Delays use a TTL retry
// queue that dead-letters back into the work queue, so no broker plugin is needed.
type RabbitMQQueue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	// publishMu serialises use of channel
	publishMu sync.Mutex
	logger    *zap.Logger
	now       func() time.Time
}

// NewRabbitMQQueue connects and declares the exchange and queues
func NewRabbitMQQueue(amqpURL string, logger *zap.Logger) (*RabbitMQQueue, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q := &RabbitMQQueue{conn: conn, channel: ch, logger: logger, now: time.Now}
	if err := q.setup(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to setup queues: %w", err)
	}
	return q, nil
}

func (q *RabbitMQQueue) setup() error {
	if err := q.channel.ExchangeDeclare(DefaultExchangeName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	queues := []struct {
		name       string
		routingKey string
		args       amqp.Table
	}{
		{name: DefaultDLQName, routingKey: routingKeyDLQ},
		{
			name:       DefaultQueueName,
			routingKey: routingKeyJobs,
			args: amqp.Table{
				"x-dead-letter-exchange":    DefaultExchangeName,
				"x-dead-letter-routing-key": routingKeyDLQ,
			},
		},
		{
			// expired messages flow back to the work queue
			name:       DefaultRetryQueueName,
			routingKey: routingKeyRetry,
			args: amqp.Table{
				"x-dead-letter-exchange":    DefaultExchangeName,
				"x-dead-letter-routing-key": routingKeyJobs,
			},
		},
	}
	for _, d := range queues {
		if _, err := q.channel.QueueDeclare(d.name, true, false, false, false, d.args); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", d.name, err)
		}
		if err := q.channel.QueueBind(d.name, d.routingKey, DefaultExchangeName, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", d.name, err)
		}
	}
	return nil
}

// Enqueue publishes a job, routing it through the retry queue when NotBefore is in the future
func (q *RabbitMQQueue) Enqueue(ctx context.Context, job *Job) error {
	publishing, routingKey, err := buildPublishing(job, q.now())
	if err != nil {
		return err
	}

	q.publishMu.Lock()
	defer q.publishMu.Unlock()
	if err := q.channel.PublishWithContext(ctx, DefaultExchangeName, routingKey, false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}
	return nil
}

// buildPublishing encodes job and picks its route
func buildPublishing(job *Job, now time.Time) (amqp.Publishing, string, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return amqp.Publishing{}, "", fmt.Errorf("failed to marshal job: %w", err)
	}
	publishing := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID.String(),
		Timestamp:    job.CreatedAt,
		Type:         string(job.Type),
	}
	if job.NotBefore != nil {
		if delay := job.NotBefore.Sub(now); delay > 0 {
			ms := delay.Milliseconds()
			if ms < 1 {
				ms = 1
			}
			publishing.Expiration = strconv.FormatInt(ms, 10)
			return publishing, routingKeyRetry, nil
		}
	}
	return publishing, routingKeyJobs, nil
}

// Consume delivers decoded jobs on a dedicated channel
func (q *RabbitMQQueue) Consume(ctx context.Context, prefetchCount int) (<-chan *Message, <-chan error, error) {
	consumeCh, err := q.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create consumer channel: %w", err)
	}
	if err := consumeCh.Qos(prefetchCount, 0, false); err != nil {
		_ = consumeCh.Close()
		return nil, nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := consumeCh.Consume(DefaultQueueName, "", false, false, false, false, nil)
	if err != nil {
		_ = consumeCh.Close()
		return nil, nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	msgChan := make(chan *Message, prefetchCount)
	errChan := make(chan error, 1)

	go func() {
		defer close(msgChan)
		defer close(errChan)
		defer func() { _ = consumeCh.Close() }()

		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					errChan <- errors.New("delivery channel closed")
					return
				}

				var job Job
				if err := json.Unmarshal(delivery.Body, &job); err != nil {
					q.logger.Warn("queue_message_undecodable",
						zap.String("message_id", delivery.MessageId),
						zap.Error(err),
					)
					_ = delivery.Nack(false, false)
					continue
				}

				now := q.now()
				if job.IsExpired(now) {
					q.logger.Info("queue_job_expired", zap.String("job_id", job.ID.String()))
					_ = delivery.Ack(false)
					continue
				}
				if !job.ShouldProcess(now) {
					// delivered early; park it again for the remaining delay
					if err := q.Enqueue(ctx, &job); err != nil {
						_ = delivery.Nack(false, true)
						continue
					}
					_ = delivery.Ack(false)
					continue
				}

				msg := &Message{Job: &job, DeliveryTag: delivery.DeliveryTag, Channel: consumeCh}
				select {
				case <-ctx.Done():
					_ = delivery.Nack(false, true)
					return
				case msgChan <- msg:
				}
			}
		}
	}()

	return msgChan, errChan, nil
}

// PurgeOlderThan acknowledges dead-lettered messages published before now-retention.
// The DLQ is FIFO, so it stops at the first message that is still within retention.
func (q *RabbitMQQueue) PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := q.now().Add(-retention)

	q.publishMu.Lock()
	defer q.publishMu.Unlock()

	purged := 0
	for purged < maxPurgeBatch {
		if err := ctx.Err(); err != nil {
			return purged, err
		}
		delivery, ok, err := q.channel.Get(DefaultDLQName, false)
		if err != nil {
			return purged, fmt.Errorf("failed to read DLQ: %w", err)
		}
		if !ok {
			return purged, nil
		}
		if !delivery.Timestamp.IsZero() && !delivery.Timestamp.Before(cutoff) {
			if err := delivery.Nack(false, true); err != nil {
				return purged, fmt.Errorf("failed to requeue DLQ message: %w", err)
			}
			return purged, nil
		}
		if err := delivery.Ack(false); err != nil {
			return purged, fmt.Errorf("failed to ack DLQ message: %w", err)
		}
		purged++
	}
	return purged, nil
}

// HealthCheck verifies the connection and publishing channel are open
func (q *RabbitMQQueue) HealthCheck(_ context.Context) error {
	if q.conn == nil || q.conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	if q.channel == nil || q.channel.IsClosed() {
		return errors.New("rabbitmq channel closed")
	}
	return nil
}

// Close closes the queue connection
func (q *RabbitMQQueue) Close() error {
	var err error
	if q.channel != nil {
		err = q.channel.Close()
	}
	if q.conn != nil {
		if closeErr := q.conn.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

var (
	_ JobQueue  = (*RabbitMQQueue)(nil)
	_ DLQPurger = (*RabbitMQQueue)(nil)
)

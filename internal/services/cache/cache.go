package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benvon/checkin-insights/internal/models"
)

// DefaultTTL bounds staleness to roughly the check-in arrival cadence
const DefaultTTL = 5 * time.Minute

const keyPrefix = "pred:v1"

// Key identifies one cached prediction. It includes the newest check-in
// considered, so a new check-in makes older entries unreachable.
type Key struct {
	UserID        uuid.UUID
	Type          models.PredictionType
	WindowDays    int
	CheckInID     uuid.UUID
	SchemaVersion string
}

// String renders the key deterministically
func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s:%d:%s:%s", keyPrefix, k.UserID, k.Type, k.WindowDays, k.CheckInID, k.SchemaVersion)
}

// fields identifies the key in logs without the user id
func (k Key) fields() []zap.Field {
	return []zap.Field{
		zap.String("prediction_type", string(k.Type)),
		zap.String("checkin_id", k.CheckInID.String()),
	}
}

// Cache stores prediction results with a time-to-live. Implementations must
// be safe for concurrent use; the last Put for a key wins.
type Cache interface {
	Get(ctx context.Context, key Key) (*models.PredictionResult, bool)
	Put(ctx context.Context, key Key, result *models.PredictionResult, ttl time.Duration) error
}

// TTLReader is implemented by caches that can report how long an entry has left
type TTLReader interface {
	// GetWithTTL returns the entry and its remaining lifetime; a non-positive
	// duration means the lifetime is unknown.
	GetWithTTL(ctx context.Context, key Key) (*models.PredictionResult, time.Duration, bool)
}

package database

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/benvon/checkin-insights/internal/models"
)

// CheckInReader defines the read operations the prediction path needs.
// This interface enables testing against hand-written fakes.
type CheckInReader interface {
	LatestCheckIn(ctx context.Context, userID uuid.UUID, before time.Time) (*models.CheckIn, error)
	FetchHistory(ctx context.Context, userID uuid.UUID, before time.Time, maxDays int) ([]models.CheckIn, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error)
}

// ActiveUserLister lists users eligible for cache warming
type ActiveUserLister interface {
	ActiveUserIDs(ctx context.Context, since time.Time) ([]uuid.UUID, error)
}

// Ensure concrete types implement the interfaces
var (
	_ CheckInReader    = (*CheckInRepository)(nil)
	_ ActiveUserLister = (*CheckInRepository)(nil)
)

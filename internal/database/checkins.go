package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/benvon/checkin-insights/internal/models"
)

const checkInColumns = `id, user_id, checked_in_at, mood, energy_level, hours_slept, anxiety, activation,
		irritability, medication_adherence, caffeine_doses, exercise_minutes, notes, stressors`

// CheckInRepository reads check-ins and demographic profiles. It never writes.
type CheckInRepository struct {
	db *DB
}

// NewCheckInRepository creates a new check-in repository
func NewCheckInRepository(db *DB) *CheckInRepository {
	return &CheckInRepository{db: db}
}

// FetchHistory returns the user's check-ins in [before-maxDays, before),
// oldest first, excluding soft-deleted records.
func (r *CheckInRepository) FetchHistory(ctx context.Context, userID uuid.UUID, before time.Time, maxDays int) ([]models.CheckIn, error) {
	if maxDays <= 0 {
		return nil, fmt.Errorf("maxDays must be positive, got %d", maxDays)
	}
	before = before.UTC()
	since := before.Add(-time.Duration(maxDays) * 24 * time.Hour)

	query := r.db.Rebind(`
		SELECT ` + checkInColumns + `
		FROM checkins
		WHERE user_id = $1
		  AND checked_in_at >= $2
		  AND checked_in_at < $3
		  AND deleted_at IS NULL
		ORDER BY checked_in_at ASC, id ASC
	`)

	rows, err := r.db.QueryContext(ctx, query, userID, since, before)
	if err != nil {
		return nil, fmt.Errorf("failed to query check-in history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.CheckIn
	for rows.Next() {
		c, err := scanCheckIn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate check-in history: %w", err)
	}
	return out, nil
}

// LatestCheckIn returns the newest check-in strictly before the given time, or nil
func (r *CheckInRepository) LatestCheckIn(ctx context.Context, userID uuid.UUID, before time.Time) (*models.CheckIn, error) {
	query := r.db.Rebind(`
		SELECT ` + checkInColumns + `
		FROM checkins
		WHERE user_id = $1
		  AND checked_in_at < $2
		  AND deleted_at IS NULL
		ORDER BY checked_in_at DESC, id DESC
		LIMIT 1
	`)

	c, err := scanCheckIn(r.db.QueryRowContext(ctx, query, userID, before.UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetProfile returns the user's demographic profile. Missing users yield an empty profile.
func (r *CheckInRepository) GetProfile(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error) {
	query := r.db.Rebind(`
		SELECT birth_year, sex
		FROM users
		WHERE id = $1 AND deleted_at IS NULL
	`)

	var birthYear sql.NullInt64
	var sex sql.NullString
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&birthYear, &sex)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.UserProfile{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user profile: %w", err)
	}

	p := &models.UserProfile{UserID: userID}
	if birthYear.Valid {
		age := float64(time.Now().UTC().Year() - int(birthYear.Int64))
		p.AgeYears = &age
	}
	if sex.Valid {
		switch sex.String {
		case "female", "F", "f":
			p.SexFemale = models.Float(1)
		case "male", "M", "m":
			p.SexFemale = models.Float(0)
		}
	}
	return p, nil
}

// InsertCheckIn writes a check-in. Used to build offline snapshots and test fixtures.
func (r *CheckInRepository) InsertCheckIn(ctx context.Context, c *models.CheckIn) error {
	stressors, err := json.Marshal(c.Stressors)
	if err != nil {
		return fmt.Errorf("failed to marshal stressors: %w", err)
	}
	query := r.db.Rebind(`
		INSERT INTO checkins (` + checkInColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`)
	_, err = r.db.ExecContext(ctx, query,
		c.ID,
		c.UserID,
		c.Timestamp.UTC(),
		nullFloat(c.Mood),
		nullFloat(c.EnergyLevel),
		nullFloat(c.HoursSlept),
		nullFloat(c.Anxiety),
		nullFloat(c.Activation),
		nullFloat(c.Irritability),
		nullFloat(c.MedicationAdherence),
		nullFloat(c.CaffeineDoses),
		nullFloat(c.ExerciseMinutes),
		c.Notes,
		string(stressors),
	)
	if err != nil {
		return fmt.Errorf("failed to insert check-in: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckIn(row rowScanner) (*models.CheckIn, error) {
	var (
		c         models.CheckIn
		fields    [9]sql.NullFloat64
		notes     sql.NullString
		stressors sql.NullString
	)
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.Timestamp,
		&fields[0], &fields[1], &fields[2], &fields[3], &fields[4],
		&fields[5], &fields[6], &fields[7], &fields[8],
		&notes,
		&stressors,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan check-in: %w", err)
	}

	targets := []**float64{
		&c.Mood, &c.EnergyLevel, &c.HoursSlept, &c.Anxiety, &c.Activation,
		&c.Irritability, &c.MedicationAdherence, &c.CaffeineDoses, &c.ExerciseMinutes,
	}
	for i, f := range fields {
		if f.Valid {
			v := f.Float64
			*targets[i] = &v
		}
	}
	c.Timestamp = c.Timestamp.UTC()
	c.Notes = notes.String
	if stressors.Valid && stressors.String != "" && stressors.String != "null" {
		if err := json.Unmarshal([]byte(stressors.String), &c.Stressors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stressors for check-in %s: %w", c.ID, err)
		}
	}
	return &c, nil
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

// ActiveUserIDs returns users with at least one check-in in [since, now)
func (r *CheckInRepository) ActiveUserIDs(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
	query := r.db.Rebind(`
		SELECT DISTINCT user_id
		FROM checkins
		WHERE checked_in_at >= $1 AND deleted_at IS NULL
		ORDER BY user_id
	`)

	rows, err := r.db.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query active users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var userIDs []uuid.UUID
	for rows.Next() {
		var userID uuid.UUID
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan user ID: %w", err)
		}
		userIDs = append(userIDs, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return userIDs, nil
}

// UpsertProfile writes a user's demographics. Used to build offline snapshots and test fixtures.
func (r *CheckInRepository) UpsertProfile(ctx context.Context, userID uuid.UUID, birthYear *int, sex *string) error {
	query := r.db.Rebind(`
		INSERT INTO users (id, birth_year, sex)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET birth_year = excluded.birth_year, sex = excluded.sex
	`)
	var by sql.NullInt64
	if birthYear != nil {
		by = sql.NullInt64{Int64: int64(*birthYear), Valid: true}
	}
	var sx sql.NullString
	if sex != nil {
		sx = sql.NullString{String: *sex, Valid: true}
	}
	if _, err := r.db.ExecContext(ctx, query, userID, by, sx); err != nil {
		return fmt.Errorf("failed to upsert user profile: %w", err)
	}
	return nil
}

// SoftDeleteCheckIn marks a check-in as deleted
func (r *CheckInRepository) SoftDeleteCheckIn(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := r.db.Rebind(`UPDATE checkins SET deleted_at = $1 WHERE id = $2`)
	if _, err := r.db.ExecContext(ctx, query, at.UTC(), id); err != nil {
		return fmt.Errorf("failed to delete check-in: %w", err)
	}
	return nil
}

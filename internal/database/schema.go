package database

import (
	"context"
	"fmt"
)

// sqliteSchema is the layout of offline snapshots. Production Postgres
// schemas are owned by the check-in service and only read here.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		birth_year INTEGER,
		sex TEXT,
		deleted_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS checkins (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		checked_in_at TIMESTAMP NOT NULL,
		mood REAL,
		energy_level REAL,
		hours_slept REAL,
		anxiety REAL,
		activation REAL,
		irritability REAL,
		medication_adherence REAL,
		caffeine_doses REAL,
		exercise_minutes REAL,
		notes TEXT,
		stressors TEXT,
		deleted_at TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_checkins_user_time ON checkins (user_id, checked_in_at)`,
}

// EnsureSnapshotSchema creates the snapshot tables in a SQLite database
func (db *DB) EnsureSnapshotSchema(ctx context.Context) error {
	if db.driver != DriverSQLite {
		return fmt.Errorf("snapshot schema is only managed for %s", DriverSQLite)
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply snapshot schema: %w", err)
		}
	}
	return nil
}

package database

import (
	"testing"
)

func TestDB_Rebind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		driver string
		query  string
		want   string
	}{
		{
			name:   "postgres unchanged",
			driver: DriverPostgres,
			query:  "SELECT * FROM checkins WHERE user_id = $1 AND checked_in_at < $2",
			want:   "SELECT * FROM checkins WHERE user_id = $1 AND checked_in_at < $2",
		},
		{
			name:   "sqlite placeholders",
			driver: DriverSQLite,
			query:  "SELECT * FROM checkins WHERE user_id = $1 AND checked_in_at < $2",
			want:   "SELECT * FROM checkins WHERE user_id = ? AND checked_in_at < ?",
		},
		{
			name:   "sqlite multi digit",
			driver: DriverSQLite,
			query:  "VALUES ($9, $10, $11)",
			want:   "VALUES (?, ?, ?)",
		},
		{
			name:   "sqlite bare dollar kept",
			driver: DriverSQLite,
			query:  "SELECT '$' || name FROM users WHERE id = $1",
			want:   "SELECT '$' || name FROM users WHERE id = ?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			db := &DB{driver: tt.driver}
			if got := db.Rebind(tt.query); got != tt.want {
				t.Errorf("Rebind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNew_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	if _, err := New("mysql", "root@/db"); err == nil {
		t.Fatal("New() expected error for unsupported driver")
	}
}

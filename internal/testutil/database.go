package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/maheshrc27/autopost/internal/database"
	"github.com/maheshrc27/autopost/pkg/logger"
)

// SecretKey is a 32-byte key usable for credential encryption in tests.
const SecretKey = "0123456789abcdef0123456789abcdef"

// OpenSQLite opens a migrated SQLite database in a temp dir, closed on cleanup.
func OpenSQLite(t *testing.T) *sql.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "autopost.db")
	db, err := database.Open(context.Background(), database.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(db, database.DriverSQLite, logger.Discard()); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return db
}

// FixedTime is the reference "now" used across tests.
func FixedTime() time.Time {
	return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
}

// FakeClock returns a fake clock set to FixedTime.
func FakeClock() *clockwork.FakeClock {
	return clockwork.NewFakeClockAt(FixedTime())
}

package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/maheshrc27/autopost/pkg/apperror"
)

var (
	ErrNotFound       = apperror.New(apperror.ErrNotFound, "not_found", "record not found")
	ErrStatusConflict = apperror.New(apperror.ErrConflict, "status_conflict", "record changed concurrently")
	ErrAlreadyExists  = apperror.New(apperror.ErrConflict, "already_exists", "record already exists")
	ErrBadQuery       = errors.New("bad query")
)

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			strings.Contains(sqliteErr.Error(), "UNIQUE constraint failed")
	}
	return false
}

// dbTime normalizes timestamps to the precision both dialects keep, in UTC,
// so that stored values compare and round-trip consistently.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return dbTime(*t)
}

func timePtr(t time.Time) *time.Time {
	t = t.UTC()
	return &t
}

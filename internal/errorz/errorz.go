package errorz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	msqlite "modernc.org/sqlite"
	msqlitelib "modernc.org/sqlite/lib"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConstraintViolated = errors.New("constraint violated")

	// ErrTimeout indicates a database call exceeded its deadline.
	ErrTimeout = errors.New("operation timed out")
	// ErrDataAccess indicates any other database level failure.
	ErrDataAccess = errors.New("data access failure")
	// ErrInvalidArgument indicates a required argument was missing.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrMalformedToken indicates an opaque token could not be decoded.
	ErrMalformedToken = errors.New("malformed token")
	// ErrAmbiguousResult indicates a lookup on a unique key matched more than one row.
	ErrAmbiguousResult = errors.New("ambiguous result")
)

// MapDBErr maps database errors to appropriate errorz errors.
// The original error is kept in the chain.
// If err is nil, MapDBErr returns nil.
func MapDBErr(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	if isConstraintErr(err) {
		return fmt.Errorf("%w: %w", ErrConstraintViolated, err)
	}

	return err
}

// IsTimeout reports whether err was caused by a deadline or a lock wait
// that ran out.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	sErr := sqlite3.Error{}
	if errors.As(err, &sErr) {
		return sErr.Code == sqlite3.ErrBusy
	}

	var mErr *msqlite.Error
	if errors.As(err, &mErr) {
		return mErr.Code()&0xff == msqlitelib.SQLITE_BUSY
	}

	return pgconn.Timeout(err)
}

func isConstraintErr(err error) bool {
	sErr := sqlite3.Error{}
	if errors.As(err, &sErr) {
		return sErr.Code == sqlite3.ErrConstraint
	}

	var mErr *msqlite.Error
	if errors.As(err, &mErr) {
		return mErr.Code()&0xff == msqlitelib.SQLITE_CONSTRAINT
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 23 is integrity constraint violation.
		return len(pgErr.Code) == 5 && pgErr.Code[:2] == "23"
	}

	return false
}

package errorz_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/willemschots/accounts/internal/errorz"
)

func Test_NewDataAccess(t *testing.T) {
	t.Run("ok, nil error", func(t *testing.T) {
		if err := errorz.NewDataAccess("component", nil); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})

	tests := map[string]struct {
		err      error
		wantKind error
		wantIs   []error
	}{
		"deadline exceeded": {
			err:      fmt.Errorf("query: %w", context.DeadlineExceeded),
			wantKind: errorz.ErrTimeout,
			wantIs:   []error{context.DeadlineExceeded},
		},
		"sqlite busy": {
			err:      sqlite3.Error{Code: sqlite3.ErrBusy},
			wantKind: errorz.ErrTimeout,
		},
		"sqlite constraint": {
			err:      sqlite3.Error{Code: sqlite3.ErrConstraint},
			wantKind: errorz.ErrDataAccess,
			wantIs:   []error{errorz.ErrConstraintViolated},
		},
		"no rows": {
			err:      sql.ErrNoRows,
			wantKind: errorz.ErrDataAccess,
			wantIs:   []error{errorz.ErrNotFound},
		},
		"other error": {
			err:      errors.New("connection refused"),
			wantKind: errorz.ErrDataAccess,
		},
	}

	for name, tc := range tests {
		t.Run("ok, "+name, func(t *testing.T) {
			err := errorz.NewDataAccess("users.Store", tc.err)

			var dErr errorz.DataAccess
			if !errors.As(err, &dErr) {
				t.Fatalf("expected a DataAccess error, got %T", err)
			}

			if dErr.Component != "users.Store" {
				t.Errorf("expected component %q, got %q", "users.Store", dErr.Component)
			}

			if !errors.Is(err, tc.wantKind) {
				t.Errorf("expected error %v, got %v (via errors.Is)", tc.wantKind, err)
			}

			other := errorz.ErrTimeout
			if tc.wantKind == errorz.ErrTimeout {
				other = errorz.ErrDataAccess
			}
			if errors.Is(err, other) {
				t.Errorf("did not expect error %v, got %v (via errors.Is)", other, err)
			}

			for _, want := range tc.wantIs {
				if !errors.Is(err, want) {
					t.Errorf("expected error %v, got %v (via errors.Is)", want, err)
				}
			}
		})
	}

	t.Run("ok, not wrapped twice", func(t *testing.T) {
		inner := errorz.NewDataAccess("inner", errors.New("boom"))
		outer := errorz.NewDataAccess("outer", inner)

		if !reflect.DeepEqual(inner, outer) {
			t.Errorf("expected %v, got %v", inner, outer)
		}
	})
}

func Test_InvalidInput(t *testing.T) {
	err := errorz.InvalidInput{
		errorz.Keyed{Key: "Email", Err: errorz.ErrConstraintViolated},
		errorz.Keyed{Key: "Email", Err: errorz.ErrNotFound},
		errorz.ErrInvalidArgument,
	}

	for _, want := range []error{errorz.ErrConstraintViolated, errorz.ErrNotFound, errorz.ErrInvalidArgument} {
		if !errors.Is(err, want) {
			t.Errorf("expected error %v, got %v (via errors.Is)", want, err)
		}
	}

	got := err.Fields()
	want := map[string][]string{
		"Email": {"constraint violated", "not found"},
		"":      {"invalid argument"},
	}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected fields %v, got %v", want, got)
	}
}

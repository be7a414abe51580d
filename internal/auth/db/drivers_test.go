package db_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	authdb "github.com/willemschots/accounts/internal/auth/db"
	"github.com/willemschots/accounts/internal/db"
	"github.com/willemschots/accounts/internal/db/migrate"
	"github.com/willemschots/accounts/internal/errorz"
	"github.com/willemschots/accounts/migrations"
)

// Test_Store_SQLiteDrivers runs the store against a database file with both
// SQLite drivers. The cgo driver is the default, the pure Go one is used
// where cgo is not available.
func Test_Store_SQLiteDrivers(t *testing.T) {
	const users = 50

	for _, driver := range []db.Driver{db.DriverSQLite3, db.DriverSQLite} {
		t.Run(fmt.Sprintf("ok, %s", driver), func(t *testing.T) {
			file := filepath.Join(t.TempDir(), "accounts.db")

			p := openFile(t, driver, file)
			store := authdb.New(p)

			start := time.Now()
			ids := make([]string, 0, users)
			for i := 0; i < users; i++ {
				u := newUser(fmt.Sprintf("user%d@example.com", i))
				createUser(t, store, &u)
				ids = append(ids, u.ID)
			}
			t.Logf("%s: created %d users in %s", driver, users, time.Since(start))

			dup := newUser("USER0@example.com")
			err := store.Create(context.Background(), &dup)
			if !errors.Is(err, errorz.ErrConstraintViolated) {
				t.Fatalf("expected error %v, got %v (via errors.Is)", errorz.ErrConstraintViolated, err)
			}

			err = p.Close()
			if err != nil {
				t.Fatalf("failed to close database: %v", err)
			}

			// reopen the file, everything should still be there.
			store = authdb.New(openFile(t, driver, file))

			start = time.Now()
			for i, id := range ids {
				got, found, err := store.FindByUsername(context.Background(), fmt.Sprintf("USER%d@example.com", i))
				if err != nil {
					t.Fatalf("failed to find user: %v", err)
				}

				if !found || got.ID != id {
					t.Fatalf("expected to find user %s, got %+v", id, got)
				}
			}
			t.Logf("%s: found %d users in %s", driver, users, time.Since(start))
		})
	}
}

func openFile(t *testing.T, driver db.Driver, file string) *db.Provider {
	t.Helper()

	p, err := db.NewProvider(driver, file)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	t.Cleanup(func() {
		// closing twice is fine for database/sql.
		_ = p.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = migrate.RunFS(ctx, p, migrations.FS, migrate.Metadata{})
	if err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return p
}

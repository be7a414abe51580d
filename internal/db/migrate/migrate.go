// Package migrate applies the numbered .sql files of a schema directory
// and keeps track of the ones that ran in a migrations table.
package migrate

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/willemschots/accounts/internal/db"
)

const component = "migrate"

var (
	ErrNoTable = errors.New("migrations table does not exist")
	// ErrMigrationsMismatch indicates files that ran before were removed or
	// renamed since.
	ErrMigrationsMismatch = errors.New("migrations mismatch")
)

// Migration is a file that ran. Sequence starts at 0.
type Migration struct {
	Sequence int
	Filename string
	Metadata Metadata
}

func (m Migration) Equal(other Migration) bool {
	return m.Sequence == other.Sequence &&
		m.Filename == other.Filename &&
		m.Metadata.AppVersion == other.Metadata.AppVersion &&
		m.Metadata.Timestamp.Equal(other.Metadata.Timestamp)
}

// Metadata is stored with every migration, for debugging.
type Metadata struct {
	AppVersion string
	Timestamp  time.Time
}

// MigrationError is returned when the SQL of a file fails.
type MigrationError struct {
	Sequence int
	Filename string
	Err      error
}

func (e MigrationError) Error() string {
	return fmt.Sprintf("migration %d (%s) failed: %v", e.Sequence, e.Filename, e.Err)
}

func (e MigrationError) Unwrap() error {
	return e.Err
}

// Valid for both SQLite and PostgreSQL.
const (
	createTableQuery = `CREATE TABLE IF NOT EXISTS migrations (
	sequence    INTEGER PRIMARY KEY,
	filename    TEXT NOT NULL,
	app_version TEXT NOT NULL,
	timestamp   TIMESTAMP NOT NULL
)`
	selectQuery = `SELECT sequence, filename, app_version, timestamp FROM migrations ORDER BY sequence`
)

// RunFS runs the pending .sql files in the root of fsys in one transaction.
// Files run in the order of their numeric prefix ("2_users.sql" before
// "10_logins.sql"). It returns the migrations that ran, none if the schema
// was up to date.
func RunFS(ctx context.Context, p *db.Provider, fsys fs.FS, meta Metadata) ([]Migration, error) {
	files, err := readFiles(fsys)
	if err != nil {
		return nil, err
	}

	return db.WithConn(ctx, p, component, func(ctx context.Context, conn *sql.Conn) ([]Migration, error) {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return nil, err
		}

		ran, err := run(ctx, tx, p.Dialect(), files, meta)
		if err != nil {
			return nil, errors.Join(err, tx.Rollback())
		}

		return ran, tx.Commit()
	})
}

func run(ctx context.Context, tx *sql.Tx, d db.Dialect, files []file, meta Metadata) ([]Migration, error) {
	_, err := tx.ExecContext(ctx, createTableQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	history, err := scan(tx.QueryContext(ctx, selectQuery))
	if err != nil {
		return nil, err
	}

	pending, err := pendingFiles(history, files)
	if err != nil {
		return nil, err
	}

	insert := db.Query{Dialect: d}
	insert.Unsafe(`INSERT INTO migrations (sequence, filename, app_version, timestamp) VALUES (`)
	insert.Params(nil, nil, nil, nil)
	insert.Unsafe(`)`)
	insertQuery, _ := insert.Get()

	ran := make([]Migration, 0, len(pending))
	for i, f := range pending {
		m := Migration{
			Sequence: len(history) + i,
			Filename: f.name,
			Metadata: meta,
		}

		_, err := tx.ExecContext(ctx, f.sql)
		if err != nil {
			return nil, MigrationError{Sequence: m.Sequence, Filename: m.Filename, Err: err}
		}

		_, err = tx.ExecContext(ctx, insertQuery, m.Sequence, m.Filename, meta.AppVersion, meta.Timestamp.UTC())
		if err != nil {
			return nil, fmt.Errorf("failed to record migration %s: %w", m.Filename, err)
		}

		ran = append(ran, m)
	}

	return ran, nil
}

// pendingFiles checks that history is a prefix of files and returns the
// files that didn't run yet.
func pendingFiles(history []Migration, files []file) ([]file, error) {
	if len(history) > len(files) {
		return nil, fmt.Errorf("%w: %d migrations ran but there are %d files", ErrMigrationsMismatch, len(history), len(files))
	}

	for i, m := range history {
		if m.Sequence != i {
			return nil, fmt.Errorf("%w: expected sequence %d, found %d", ErrMigrationsMismatch, i, m.Sequence)
		}

		if m.Filename != files[i].name {
			return nil, fmt.Errorf("%w: migration %d ran as %s, file is now %s", ErrMigrationsMismatch, i, m.Filename, files[i].name)
		}
	}

	return files[len(history):], nil
}

// QueryMigrations returns the migrations that ran, or ErrNoTable if none
// ever did.
func QueryMigrations(ctx context.Context, p *db.Provider) ([]Migration, error) {
	return scan(p.DB().QueryContext(ctx, selectQuery))
}

func scan(rows *sql.Rows, err error) ([]Migration, error) {
	if err != nil {
		msg := err.Error()
		// SQLite and PostgreSQL respectively.
		if strings.Contains(msg, "no such table") || strings.Contains(msg, "does not exist") {
			return nil, ErrNoTable
		}
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	var out []Migration
	for rows.Next() {
		var m Migration
		err := rows.Scan(&m.Sequence, &m.Filename, &m.Metadata.AppVersion, &m.Metadata.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		out = append(out, m)
	}

	return out, rows.Err()
}

type file struct {
	seq  int
	name string
	sql  string
}

func readFiles(fsys fs.FS) ([]file, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}

	files := make([]file, 0, len(names))
	for _, name := range names {
		prefix, _, _ := strings.Cut(path.Base(name), "_")
		seq, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("migration %s has no numeric prefix", name)
		}

		b, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", name, err)
		}

		files = append(files, file{seq: seq, name: name, sql: string(b)})
	}

	slices.SortStableFunc(files, func(a, b file) int {
		return cmp.Compare(a.seq, b.seq)
	})

	return files, nil
}

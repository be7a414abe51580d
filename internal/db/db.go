package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Driver names a database/sql driver supported by Provider.
type Driver string

const (
	// DriverSQLite3 is the cgo based SQLite driver. It's the default.
	DriverSQLite3 Driver = "sqlite3"
	// DriverSQLite is the pure Go SQLite driver.
	DriverSQLite Driver = "sqlite"
	// DriverPostgres is the pgx driver for PostgreSQL.
	DriverPostgres Driver = "pgx"
)

// ParseDriver parses a driver name.
func ParseDriver(raw string) (Driver, error) {
	switch d := Driver(raw); d {
	case DriverSQLite3, DriverSQLite, DriverPostgres:
		return d, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", raw)
	}
}

// Dialect returns the SQL dialect spoken by the driver.
func (d Driver) Dialect() Dialect {
	if d == DriverPostgres {
		return DialectPostgres
	}
	return DialectSQLite
}

const (
	// To run SQLite so that it works well with our app, we need a few options:
	// - WAL Mode so that reads and writes don't block eachother.
	// - A busy timeout, specifying the duration a connection will wait for a lock.
	// - Foreign keys are enforced.
	// - Immediate transactions to prevent locking issues.
	sqlite3Options = "_foreign_keys=on&_journal_mode=wal&_busy_timeout=5000&_txlock=immediate"
	// The pure Go driver takes the same settings as pragmas.
	sqliteOptions = "_pragma=foreign_keys(1)&_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_txlock=immediate"
)

// OpenSQLite opens a pool of SQLite connections for the given file using
// the given SQLite driver.
//
// The pool is limited to a single connection. SQLite only allows a single writer
// and the store mixes reads and writes, see this comment for more information:
// https://github.com/mattn/go-sqlite3/issues/1179#issuecomment-1638083995
func OpenSQLite(driver Driver, dbFile string) (*sql.DB, error) {
	opts := sqlite3Options
	if driver == DriverSQLite {
		opts = sqliteOptions
	}

	sep := "?"
	if strings.Contains(dbFile, "?") {
		sep = "&"
	}

	db, err := sql.Open(string(driver), dbFile+sep+opts)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// don't close this connection, in-memory databases would be lost.
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	return db, nil
}

// Provider hands out database connections for a single data source.
// Pooling is left to database/sql.
type Provider struct {
	driver Driver
	db     *sql.DB
}

// NewProvider opens a pool for the data source described by driver and dsn.
func NewProvider(driver Driver, dsn string) (*Provider, error) {
	var (
		db  *sql.DB
		err error
	)

	switch driver {
	case DriverSQLite3, DriverSQLite:
		db, err = OpenSQLite(driver, dsn)
	case DriverPostgres:
		db, err = sql.Open(string(driver), dsn)
	default:
		_, err = ParseDriver(string(driver))
	}

	if err != nil {
		return nil, err
	}

	return &Provider{
		driver: driver,
		db:     db,
	}, nil
}

// Conn returns a dedicated connection. The caller must close it, which returns
// it to the pool.
func (p *Provider) Conn(ctx context.Context) (*sql.Conn, error) {
	return p.db.Conn(ctx)
}

// DB returns the underlying pool. Used to run migrations.
func (p *Provider) DB() *sql.DB {
	return p.db
}

// Dialect returns the dialect of the data source.
func (p *Provider) Dialect() Dialect {
	return p.driver.Dialect()
}

// Query returns an empty query in the dialect of the data source.
func (p *Provider) Query() *Query {
	return &Query{Dialect: p.Dialect()}
}

// Close closes the pool.
func (p *Provider) Close() error {
	return p.db.Close()
}

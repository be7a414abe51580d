package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/willemschots/accounts/internal"
	"github.com/willemschots/accounts/internal/db"
	"github.com/willemschots/accounts/internal/db/migrate"
	"github.com/willemschots/accounts/migrations"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("dbmigrate", flag.ContinueOnError)
	driver := fs.String("driver", string(db.DriverSQLite3), "database driver: sqlite3, sqlite or pgx")
	dsn := fs.String("dsn", "accounts.db", "data source name, a file for the sqlite drivers")
	timeout := fs.Duration("timeout", time.Minute, "max duration of the migration")

	err := fs.Parse(args)
	if err != nil {
		return 2
	}

	d, err := db.ParseDriver(*driver)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid driver: %v\n", err)
		return 2
	}

	p, err := db.NewProvider(d, *dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		return 1
	}

	defer func() {
		err := p.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to close database: %v\n", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	meta := migrate.Metadata{
		AppVersion: internal.BuildInfo.Version(),
		Timestamp:  internal.BuildInfo.Time,
	}

	result, err := migrate.RunFS(ctx, p, migrations.FS, meta)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		return 1
	}

	if len(result) == 0 {
		fmt.Println("database is up to date")
	}

	for _, m := range result {
		fmt.Printf("%d: %s\n", m.Sequence, m.Filename)
	}

	return 0
}

package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/willemschots/accounts/internal/errorz"
)

// WithConn acquires a connection from p, runs work with it and releases
// the connection on every exit path.
//
// Database errors from acquiring the connection or from work are translated
// into an errorz.DataAccess naming component. Its kind is errorz.ErrTimeout if
// a deadline ran out and errorz.ErrDataAccess otherwise. Ambiguous results and
// invalid arguments are returned as is. Nothing is retried.
func WithConn[T any](ctx context.Context, p *Provider, component string, work func(ctx context.Context, conn *sql.Conn) (T, error)) (T, error) {
	var zero T

	conn, err := p.Conn(ctx)
	if err != nil {
		return zero, errorz.NewDataAccess(component, err)
	}
	defer conn.Close()

	v, err := work(ctx, conn)
	if err != nil {
		return zero, translate(component, err)
	}

	return v, nil
}

// Exec is WithConn for work that only returns an error.
func Exec(ctx context.Context, p *Provider, component string, work func(ctx context.Context, conn *sql.Conn) error) error {
	_, err := WithConn(ctx, p, component, func(ctx context.Context, conn *sql.Conn) (struct{}, error) {
		return struct{}{}, work(ctx, conn)
	})
	return err
}

func translate(component string, err error) error {
	if errors.Is(err, errorz.ErrAmbiguousResult) || errors.Is(err, errorz.ErrInvalidArgument) {
		return err
	}
	return errorz.NewDataAccess(component, err)
}

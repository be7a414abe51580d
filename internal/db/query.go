package db

import (
	"strconv"
	"strings"
)

// Dialect determines how bind parameters are written.
type Dialect int

const (
	// DialectSQLite uses question marks as placeholders.
	DialectSQLite Dialect = iota
	// DialectPostgres uses numbered placeholders ($1, $2, ...).
	DialectPostgres
)

// Placeholder returns the placeholder for the n-th (1 based) bind parameter.
func (d Dialect) Placeholder(n int) string {
	if d == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Query helps build SQL queries using bind parameters.
// Use Query to construct parts of a query and use Param to add bind parameters.
// The final query and parameters can be retrieved using the Get method.
//
// The zero value is ready to use and writes SQLite placeholders.
type Query struct {
	Dialect Dialect
	b       strings.Builder
	params  []any
}

// Unsafe writes a non-parameterized part of a query.
func (q *Query) Unsafe(s string) {
	q.b.WriteString(s)
}

// Param writes a parameterized part of a query.
func (q *Query) Param(v any) {
	q.params = append(q.params, v)
	q.b.WriteString(q.Dialect.Placeholder(len(q.params)))
}

// Params writes multiple parameterized parts of a query seperated by commas.
func (q *Query) Params(v ...any) {
	for i, p := range v {
		if i > 0 {
			q.b.WriteString(", ")
		}
		q.Param(p)
	}
}

// Get returns the constructed query and parameter values.
func (q *Query) Get() (string, []any) {
	return q.b.String(), q.params
}

package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/umputun/sqlview/pkg/filter"
)

// error kinds, match with errors.Is against returned errors
var (
	ErrNotFound        = errors.New("database file not found")
	ErrNotADatabase    = errors.New("not a database")
	ErrNoConnection    = errors.New("no database connection")
	ErrInvalidFilter   = filter.ErrInvalidFilter
	ErrWriteNotAllowed = errors.New("write not allowed")
	ErrExecution       = errors.New("execution error")
	ErrTimeout         = errors.New("query timeout")
)

// QueryError is a failure with its kind and the offending sql, if any
type QueryError struct {
	Kind error
	SQL  string
	Err  error
}

func (e *QueryError) Error() string {
	msg := e.Kind.Error()
	if e.Err != nil && !errors.Is(e.Err, e.Kind) {
		msg += ": " + e.Err.Error()
	} else if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.SQL != "" {
		msg += fmt.Sprintf(", sql: %s", e.SQL)
	}
	return msg
}

// Unwrap allows errors.Is to match both the kind and the underlying error
func (e *QueryError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newErr(kind error, sql string, err error) *QueryError {
	return &QueryError{Kind: kind, SQL: sql, Err: err}
}

// execErr maps engine failure to ErrTimeout if context is done, ErrExecution otherwise
func execErr(ctx context.Context, sql string, err error) *QueryError {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return newErr(ErrTimeout, sql, err)
	}
	return newErr(ErrExecution, sql, err)
}

// Package executor provides an interface for the query executor as well as sqlite and dry implementations.
// The executor owns a single database connection, validates table and field names against the live schema,
// enforces a row ceiling and reports failures as typed errors.
package executor

import (
	"context"
	"time"

	"github.com/umputun/sqlview/pkg/filter"
)

// Interface is an interface for the executor.
// Implemented by SQLite and Dry structs.
type Interface interface {
	ListTables(ctx context.Context) ([]TableMeta, error)
	TableData(ctx context.Context, table string, specs []filter.Spec, limit int) (*QueryResult, error)
	RawQuery(ctx context.Context, query string, limit int) (*QueryResult, error)
	Close() error
}

// Schema provides table metadata used to validate identifiers before they get into a statement
type Schema interface {
	ListTables(ctx context.Context) ([]TableMeta, error)
	Columns(ctx context.Context, table string) ([]ColumnMeta, error)
}

// TableMeta describes a table with its columns and row count
type TableMeta struct {
	Name     string       `json:"name"`
	Columns  []ColumnMeta `json:"columns"`
	RowCount int64        `json:"row_count"`
}

// ColumnMeta is a column name with declared type, type can be empty
type ColumnMeta struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// QueryResult is a uniform result of any query.
// Truncated is set when more rows matched than the limit allowed to return.
type QueryResult struct {
	Columns   []string      `json:"columns"`
	Rows      [][]any       `json:"rows"`
	RowCount  int           `json:"row_count"`
	Truncated bool          `json:"truncated"`
	Elapsed   time.Duration `json:"-"`
	SQL       string        `json:"sql"` // display form, parameters inlined
	Params    []any         `json:"params,omitempty"`
}

// ElapsedMs returns query duration in milliseconds
func (r *QueryResult) ElapsedMs() float64 {
	return float64(r.Elapsed) / float64(time.Millisecond)
}

// Select returns a copy of the result limited to the given columns, in the given order.
// Unknown columns are skipped, empty list returns the result as is.
func (r *QueryResult) Select(columns []string) *QueryResult {
	if len(columns) == 0 {
		return r
	}
	idx := make(map[string]int, len(r.Columns))
	for i, c := range r.Columns {
		if _, ok := idx[c]; !ok {
			idx[c] = i
		}
	}

	res := *r
	res.Columns = []string{}
	var pick []int
	for _, c := range columns {
		if i, ok := idx[c]; ok {
			res.Columns = append(res.Columns, c)
			pick = append(pick, i)
		}
	}
	res.Rows = make([][]any, len(r.Rows))
	for i, row := range r.Rows {
		res.Rows[i] = make([]any, len(pick))
		for j, p := range pick {
			res.Rows[i][j] = row[p]
		}
	}
	return &res
}

// ColumnNames extracts names from column metadata
func ColumnNames(cols []ColumnMeta) []string {
	res := make([]string, len(cols))
	for i, c := range cols {
		res[i] = c.Name
	}
	return res
}

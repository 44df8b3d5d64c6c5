package executor

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/umputun/sqlview/pkg/filter"
)

// Dry is an executor for dry run, validates and prints statements but doesn't execute them.
// Schema reads go to the wrapped source, those are needed to validate table and field names.
type Dry struct {
	schema Schema
	out    io.Writer
}

// NewDry creates new executor for dry run
func NewDry(schema Schema, out io.Writer) *Dry {
	return &Dry{schema: schema, out: out}
}

// ListTables delegates to the schema source
func (ex *Dry) ListTables(ctx context.Context) ([]TableMeta, error) {
	return ex.schema.ListTables(ctx)
}

// TableData compiles filters and prints the statement, returns an empty result
func (ex *Dry) TableData(ctx context.Context, table string, specs []filter.Spec, limit int) (*QueryResult, error) {
	cols, err := ex.schema.Columns(ctx, table)
	if err != nil {
		return nil, err
	}
	clause, err := filter.Compile(ColumnNames(cols), specs)
	if err != nil {
		return nil, newErr(ErrInvalidFilter, "", err)
	}
	return ex.show(tableStatement(table, clause, limit), ColumnNames(cols)), nil
}

// RawQuery applies the read-only gate and prints the statement, returns an empty result
func (ex *Dry) RawQuery(_ context.Context, query string, limit int) (*QueryResult, error) {
	st, err := rawStatement(query, limit)
	if err != nil {
		return nil, err
	}
	return ex.show(st, nil), nil
}

// DistinctValues validates table and column and prints statements used to read distinct values.
// Returns nil as no values are read.
func (ex *Dry) DistinctValues(ctx context.Context, table, column string, maxValues int) ([]any, error) {
	cols, err := ex.schema.Columns(ctx, table)
	if err != nil {
		return nil, err
	}
	if _, err = filter.Compile(ColumnNames(cols), []filter.Spec{{Field: column, Op: filter.IsNotNull}}); err != nil {
		return nil, newErr(ErrInvalidFilter, "", err)
	}
	countSQL, valuesSQL := distinctStatements(table, column, maxValues)
	log.Printf("[DEBUG] dry run distinct values of %s.%s", table, column)
	fmt.Fprintf(ex.out, "%s\n%s\n", countSQL, valuesSQL) // nolint
	return nil, nil
}

// Close does nothing, the schema source is owned by the caller
func (ex *Dry) Close() error {
	return nil
}

func (ex *Dry) show(st statement, columns []string) *QueryResult {
	log.Printf("[DEBUG] dry run %q, params: %v", st.sql, st.params)
	fmt.Fprintf(ex.out, "%s\n", st.sql) // nolint
	if len(st.params) > 0 {
		fmt.Fprintf(ex.out, "-- params: %s\n", formatParams(st.params)) // nolint
	}
	if columns == nil {
		columns = []string{}
	}
	return &QueryResult{Columns: columns, Rows: [][]any{}, SQL: st.display, Params: st.params}
}

func formatParams(params []any) string {
	res := ""
	for i, p := range params {
		if i > 0 {
			res += ", "
		}
		res += filter.Literal(p)
	}
	return res
}

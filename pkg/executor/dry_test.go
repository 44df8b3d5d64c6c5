package executor

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/sqlview/pkg/filter"
)

func TestDry_TableData(t *testing.T) {
	ex, err := Open(makeTestDB(t, 3))
	require.NoError(t, err)
	defer ex.Close()

	buf := bytes.Buffer{}
	dry := NewDry(ex, &buf)
	res, err := dry.TableData(context.Background(), "people",
		[]filter.Spec{{Field: "age", Op: filter.GreaterThan, Value: "30"}, {Field: "status", Op: filter.In, Value: "a,b"}}, 10)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "people" WHERE "age" > ? AND "status" IN (?, ?) LIMIT 11`+"\n"+
		"-- params: 30, 'a', 'b'\n", buf.String())
	assert.Equal(t, `SELECT * FROM "people" WHERE "age" > 30 AND "status" IN ('a', 'b') LIMIT 10`, res.SQL)
	assert.Equal(t, []string{"id", "age", "status", "note"}, res.Columns)
	assert.Empty(t, res.Rows)
	assert.Equal(t, 0, res.RowCount)

	_, err = dry.TableData(context.Background(), "people", []filter.Spec{{Field: "bad", Op: filter.IsNull}}, 10)
	assert.ErrorIs(t, err, ErrInvalidFilter)
	_, err = dry.TableData(context.Background(), "bad", nil, 10)
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestDry_RawQuery(t *testing.T) {
	ex, err := Open(makeTestDB(t, 3))
	require.NoError(t, err)
	defer ex.Close()

	buf := bytes.Buffer{}
	dry := NewDry(ex, &buf)
	res, err := dry.RawQuery(context.Background(), "SELECT id FROM people", 5)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM (\nSELECT id FROM people\n) LIMIT 6\n", buf.String())
	assert.Equal(t, "SELECT id FROM people", res.SQL)

	_, err = dry.RawQuery(context.Background(), "DROP TABLE people", 5)
	assert.ErrorIs(t, err, ErrWriteNotAllowed)

	tables, err := dry.ListTables(context.Background())
	require.NoError(t, err)
	assert.Len(t, tables, 2)
	assert.NoError(t, dry.Close())

	// dry close doesn't touch the wrapped connection
	_, err = ex.TableData(context.Background(), "people", nil, 10)
	assert.NoError(t, err)
}

func TestDry_DistinctValues(t *testing.T) {
	ex, err := Open(makeTestDB(t, 3))
	require.NoError(t, err)
	defer ex.Close()

	buf := bytes.Buffer{}
	dry := NewDry(ex, &buf)
	vals, err := dry.DistinctValues(context.Background(), "people", "status", 50)
	require.NoError(t, err)
	assert.Nil(t, vals)
	assert.Equal(t, `SELECT COUNT(DISTINCT "status") FROM "people" WHERE "status" IS NOT NULL`+"\n"+
		`SELECT DISTINCT "status" FROM "people" WHERE "status" IS NOT NULL ORDER BY "status" LIMIT 50`+"\n", buf.String())

	_, err = dry.DistinctValues(context.Background(), "people", "nope", 50)
	assert.ErrorIs(t, err, ErrInvalidFilter)
	_, err = dry.DistinctValues(context.Background(), "nope", "status", 50)
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

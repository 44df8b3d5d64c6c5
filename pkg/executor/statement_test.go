package executor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/sqlview/pkg/filter"
)

func TestTableStatement(t *testing.T) {
	clause := filter.Clause{Text: `"age" > ? AND "status" = ?`, Params: []any{30.0, "active"}}

	st := tableStatement("people", clause, 500)
	assert.Equal(t, `SELECT * FROM "people" WHERE "age" > ? AND "status" = ? LIMIT 501`, st.sql)
	assert.Equal(t, `SELECT * FROM "people" WHERE "age" > 30 AND "status" = 'active' LIMIT 500`, st.display)
	assert.Equal(t, []any{30.0, "active"}, st.params)
	assert.True(t, st.capped)
	assert.Equal(t, 500, st.limit)

	st = tableStatement(`we"ird`, filter.Clause{}, 0)
	assert.Equal(t, `SELECT * FROM "we""ird"`, st.sql)
	assert.False(t, st.capped)
}

func TestRawStatement(t *testing.T) {
	tbl := []struct {
		name     string
		query    string
		limit    int
		wantSQL  string
		wantKind error
	}{
		{name: "plain select", query: "SELECT * FROM t", limit: 10, wantSQL: "SELECT * FROM (\nSELECT * FROM t\n) LIMIT 11"},
		{name: "lower case", query: "  select a from t;  ", limit: 5, wantSQL: "SELECT * FROM (\n  select a from t\n) LIMIT 6"},
		{name: "with", query: "WITH x AS (SELECT 1) SELECT * FROM x", limit: 1, wantSQL: "SELECT * FROM (\nWITH x AS (SELECT 1) SELECT * FROM x\n) LIMIT 2"},
		{name: "own limit", query: "SELECT * FROM t LIMIT 3", limit: 10, wantSQL: "SELECT * FROM t LIMIT 3"},
		{name: "own limit lower", query: "select * from t limit 3 offset 1;", limit: 10, wantSQL: "select * from t limit 3 offset 1"},
		{name: "limit in subquery only", query: "SELECT * FROM (SELECT * FROM t LIMIT 3)", limit: 10,
			wantSQL: "SELECT * FROM (\nSELECT * FROM (SELECT * FROM t LIMIT 3)\n) LIMIT 11"},
		{name: "limit in literal only", query: "SELECT 'LIMIT 5' AS x", limit: 10, wantSQL: "SELECT * FROM (\nSELECT 'LIMIT 5' AS x\n) LIMIT 11"},
		{name: "replace function", query: "SELECT replace(name, 'b', 'B') AS n FROM t", limit: 1,
			wantSQL: "SELECT * FROM (\nSELECT replace(name, 'b', 'B') AS n FROM t\n) LIMIT 2"},
		{name: "replace function in cte", query: "WITH x AS (SELECT 1 AS a) SELECT REPLACE (a, '1', '2') FROM x", limit: 0,
			wantSQL: "WITH x AS (SELECT 1 AS a) SELECT REPLACE (a, '1', '2') FROM x"},
		{name: "no limit", query: "SELECT * FROM t", limit: 0, wantSQL: "SELECT * FROM t"},
		{name: "leading comments", query: "-- hello\n/* block */ SELECT 1", limit: 0, wantSQL: "-- hello\n/* block */ SELECT 1"},
		{name: "semicolon in literal", query: "SELECT ';DROP TABLE t' FROM t", limit: 0, wantSQL: "SELECT ';DROP TABLE t' FROM t"},
		{name: "trailing terminators and comments", query: "SELECT 1; ; -- done\n", limit: 0, wantSQL: "SELECT 1"},
		{name: "delete", query: "DELETE FROM t", wantKind: ErrWriteNotAllowed},
		{name: "insert", query: "insert into t values (1)", wantKind: ErrWriteNotAllowed},
		{name: "update", query: "  UPDATE t SET a=1", wantKind: ErrWriteNotAllowed},
		{name: "drop", query: "DROP TABLE t", wantKind: ErrWriteNotAllowed},
		{name: "alter", query: "ALTER TABLE t ADD COLUMN x", wantKind: ErrWriteNotAllowed},
		{name: "create", query: "CREATE TABLE x (a)", wantKind: ErrWriteNotAllowed},
		{name: "attach", query: "ATTACH DATABASE 'x.db' AS x", wantKind: ErrWriteNotAllowed},
		{name: "pragma", query: "PRAGMA writable_schema=1", wantKind: ErrWriteNotAllowed},
		{name: "commented delete", query: "/* select */ -- select\n DELETE FROM t", wantKind: ErrWriteNotAllowed},
		{name: "cte delete", query: "WITH x AS (SELECT 1) DELETE FROM t", wantKind: ErrWriteNotAllowed},
		{name: "cte replace into", query: "WITH x AS (SELECT 1) REPLACE INTO t SELECT * FROM x", wantKind: ErrWriteNotAllowed},
		{name: "stacked", query: "SELECT * FROM t; DROP TABLE t;", wantKind: ErrWriteNotAllowed},
		{name: "stacked after comment", query: "SELECT 1; /* x */ SELECT 2", wantKind: ErrWriteNotAllowed},
		{name: "explain", query: "EXPLAIN SELECT 1", wantKind: ErrWriteNotAllowed},
		{name: "values", query: "VALUES (1)", wantKind: ErrWriteNotAllowed},
		{name: "empty", query: "  ", wantKind: ErrExecution},
		{name: "comment only", query: "-- nothing", wantKind: ErrExecution},
	}

	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			st, err := rawStatement(tt.query, tt.limit)
			if tt.wantKind != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantKind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, st.sql)
			assert.Equal(t, strings.HasPrefix(st.sql, "SELECT * FROM (\n"), st.capped)
		})
	}
}

func TestFirstKeyword(t *testing.T) {
	tbl := map[string]string{
		"select 1":               "SELECT",
		"\n\t WITH x":            "WITH",
		"-- c\nDELETE":           "DELETE",
		"/* a */ /* b */insert":  "INSERT",
		"/* unterminated SELECT": "",
		"(SELECT 1)":             "",
	}
	for inp, want := range tbl {
		assert.Equal(t, want, firstKeyword(inp), inp)
	}
}

func TestScanSQL(t *testing.T) {
	sc := scanSQL(`SELECT "LIMIT", [LIMIT], ` + "`limit`" + ` FROM t WHERE x IN (SELECT y FROM z LIMIT 1) -- LIMIT`)
	assert.False(t, sc.topWords["LIMIT"])
	assert.True(t, sc.topWords["SELECT"])
	assert.True(t, sc.topWords["WHERE"])
	assert.False(t, sc.stacked)

	sc = scanSQL("SELECT replace(a, 'x', 'y'), upper (b) FROM t")
	assert.False(t, sc.topWords["REPLACE"])
	assert.False(t, sc.topWords["UPPER"])
	assert.True(t, sc.topWords["FROM"])

	sc = scanSQL("SELECT 'it''s; fine' FROM t; SELECT 2")
	assert.True(t, sc.stacked)
	assert.Equal(t, "SELECT 'it''s; fine' FROM t", sc.body)
}

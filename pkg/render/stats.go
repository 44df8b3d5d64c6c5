package render

import (
	"fmt"
	"io"
	"math"

	"github.com/fatih/color"

	"github.com/umputun/sqlview/pkg/executor"
)

// ColumnStats holds descriptive statistics for a numeric column
type ColumnStats struct {
	Column string
	Count  int
	Mean   float64
	Std    float64 // sample standard deviation, NaN for a single value
	Min    float64
	Max    float64
}

// Stats calculates statistics for every column where all non-null values are integers or reals.
// Columns without values or with any other value, including text holding digits, are skipped.
func Stats(res *executor.QueryResult) []ColumnStats {
	var out []ColumnStats
	for i, col := range res.Columns {
		vals, ok := numericColumn(res.Rows, i)
		if !ok || len(vals) == 0 {
			continue
		}
		st := ColumnStats{Column: col, Count: len(vals), Min: vals[0], Max: vals[0], Std: math.NaN()}
		sum := 0.0
		for _, v := range vals {
			sum += v
			st.Min = math.Min(st.Min, v)
			st.Max = math.Max(st.Max, v)
		}
		st.Mean = sum / float64(len(vals))
		if len(vals) > 1 {
			sq := 0.0
			for _, v := range vals {
				sq += (v - st.Mean) * (v - st.Mean)
			}
			st.Std = math.Sqrt(sq / float64(len(vals)-1))
		}
		out = append(out, st)
	}
	return out
}

// WriteStats renders stats as a table
func (t *Table) WriteStats(wr io.Writer, stats []ColumnStats) error {
	if len(stats) == 0 {
		_, err := fmt.Fprintln(wr, t.colorize(color.FgYellow, "no numeric columns"))
		return err
	}
	res := &executor.QueryResult{Columns: []string{"column", "count", "mean", "std", "min", "max"}}
	for _, s := range stats {
		res.Rows = append(res.Rows, []any{s.Column, int64(s.Count), round(s.Mean), round(s.Std), s.Min, s.Max})
	}
	res.RowCount = len(res.Rows)
	return t.writeRows(wr, res)
}

func numericColumn(rows [][]any, idx int) ([]float64, bool) {
	vals := make([]float64, 0, len(rows))
	for _, row := range rows {
		if idx >= len(row) || row[idx] == nil {
			continue
		}
		switch v := row[idx].(type) {
		case int64:
			vals = append(vals, float64(v))
		case float64:
			vals = append(vals, v)
		default:
			return nil, false
		}
	}
	return vals, true
}

func round(v float64) any {
	if math.IsNaN(v) {
		return nil
	}
	return math.Round(v*1e4) / 1e4
}

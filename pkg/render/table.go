// Package render formats query results for terminal output and flat-file export.
package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/go-pkgz/stringutils"

	"github.com/umputun/sqlview/pkg/executor"
)

// CellWidth is the max number of runes shown in a table cell, longer values get ellipsis
const CellWidth = 40

// Table renders query results as column-aligned text with a colorized header
type Table struct {
	Monochrome bool
	CellWidth  int
	Padding    int
}

// NewTable makes a Table with default cell width and padding
func NewTable(monochrome bool) *Table {
	return &Table{Monochrome: monochrome, CellWidth: CellWidth, Padding: 2}
}

// Write renders result rows and a summary line to wr
func (t *Table) Write(wr io.Writer, res *executor.QueryResult) error {
	if len(res.Columns) == 0 {
		_, err := fmt.Fprintln(wr, t.colorize(color.FgYellow, "no columns"))
		return err
	}
	if err := t.writeRows(wr, res); err != nil {
		return err
	}
	_, err := fmt.Fprintln(wr, t.colorize(color.FgYellow, Summary(res)))
	return err
}

func (t *Table) writeRows(wr io.Writer, res *executor.QueryResult) error {
	cells := make([][]string, 0, len(res.Rows)+1)
	cells = append(cells, t.truncateAll(res.Columns))
	for _, row := range res.Rows {
		line := make([]string, len(row))
		for i, v := range row {
			line[i] = FormatValue(v)
		}
		cells = append(cells, t.truncateAll(line))
	}

	widths := make([]int, len(res.Columns))
	for _, row := range cells {
		for i, c := range row {
			if i < len(widths) && utf8.RuneCountInString(c) > widths[i] {
				widths[i] = utf8.RuneCountInString(c)
			}
		}
	}

	pad := strings.Repeat(" ", t.Padding)
	for n, row := range cells {
		var sb strings.Builder
		for i, c := range row {
			if i > 0 {
				sb.WriteString(pad)
			}
			if i < len(row)-1 {
				c += strings.Repeat(" ", widths[i]-utf8.RuneCountInString(c))
			}
			sb.WriteString(c)
		}
		line := sb.String()
		if n == 0 {
			line = t.colorize(color.FgHiCyan, line)
		}
		if _, err := fmt.Fprintln(wr, line); err != nil {
			return err
		}
	}
	return nil
}

// Summary returns a one-line description of the result
func Summary(res *executor.QueryResult) string {
	if res.RowCount == 0 {
		return fmt.Sprintf("no results found, %v", res.Elapsed.Truncate(time.Microsecond))
	}
	msg := fmt.Sprintf("showing %d rows, %d columns, %v", res.RowCount, len(res.Columns), res.Elapsed.Truncate(time.Microsecond))
	if res.Truncated {
		msg += ", truncated (more rows exist)"
	}
	return msg
}

// FormatValue converts a scalar from the driver to its display string, NULL as empty string
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func (t *Table) truncateAll(vals []string) []string {
	res := make([]string, len(vals))
	for i, v := range vals {
		v = strings.NewReplacer("\n", " ", "\r", " ", "\t", " ").Replace(v)
		if t.CellWidth > 0 {
			v = stringutils.Truncate(v, t.CellWidth)
		}
		res[i] = v
	}
	return res
}

func (t *Table) colorize(attr color.Attribute, s string) string {
	c := color.New(attr)
	if t.Monochrome {
		c.DisableColor()
	} else {
		c.EnableColor()
	}
	return c.Sprint(s)
}

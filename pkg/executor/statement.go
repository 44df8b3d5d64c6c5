package executor

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/umputun/sqlview/pkg/filter"
)

// statement is a prepared query with its row ceiling.
// with capped set the sql fetches limit+1 rows to detect truncation.
type statement struct {
	sql     string
	params  []any
	limit   int
	capped  bool
	display string
}

// writeKeywords rejected as the leading keyword of a raw query
var writeKeywords = []string{"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "CREATE", "ATTACH", "DETACH",
	"PRAGMA", "REPLACE", "VACUUM", "REINDEX", "BEGIN", "COMMIT", "ROLLBACK", "SAVEPOINT", "RELEASE"}

// tableStatement makes SELECT * FROM "table" [WHERE clause] [LIMIT limit+1], limit <= 0 means no limit
func tableStatement(table string, clause filter.Clause, limit int) statement {
	base := "SELECT * FROM " + filter.QuoteIdent(table)
	res := statement{sql: base, params: clause.Params, display: base}
	if !clause.Empty() {
		res.sql += " WHERE " + clause.Text
		res.display += " WHERE " + clause.Inline()
	}
	if limit > 0 {
		res.limit, res.capped = limit, true
		res.sql += " LIMIT " + strconv.Itoa(limit+1)
		res.display += " LIMIT " + strconv.Itoa(limit)
	}
	return res
}

// distinctStatements makes sql counting distinct non-null values of the column and sql reading them ordered
func distinctStatements(table, column string, maxValues int) (countSQL, valuesSQL string) {
	col, tbl := filter.QuoteIdent(column), filter.QuoteIdent(table)
	countSQL = fmt.Sprintf("SELECT COUNT(DISTINCT %s) FROM %s WHERE %s IS NOT NULL", col, tbl, col)
	valuesSQL = fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL ORDER BY %s LIMIT %d", col, tbl, col, col, maxValues)
	return countSQL, valuesSQL
}

// rawStatement checks caller sql with the read-only gate and wraps it as a subquery
// with limit+1 ceiling, unless it has its own top-level LIMIT or limit <= 0.
// The gate is a keyword check, not a parser; the connection itself is opened query-only.
func rawStatement(query string, limit int) (statement, error) {
	sc := scanSQL(query)
	if sc.body == "" {
		return statement{}, newErr(ErrExecution, query, fmt.Errorf("empty query"))
	}
	if sc.stacked {
		return statement{}, newErr(ErrWriteNotAllowed, query, fmt.Errorf("multiple statements not allowed"))
	}

	kw := firstKeyword(sc.body)
	for _, w := range writeKeywords {
		if kw == w {
			return statement{}, newErr(ErrWriteNotAllowed, query, fmt.Errorf("%s statement rejected", kw))
		}
	}
	if kw != "SELECT" && kw != "WITH" {
		return statement{}, newErr(ErrWriteNotAllowed, query, fmt.Errorf("only SELECT statements allowed, got %q", kw))
	}
	if kw == "WITH" {
		for _, w := range []string{"INSERT", "UPDATE", "DELETE", "REPLACE"} {
			if sc.topWords[w] { // WITH ... DELETE FROM ...
				return statement{}, newErr(ErrWriteNotAllowed, query, fmt.Errorf("%s statement rejected", w))
			}
		}
	}

	if limit <= 0 || sc.topWords["LIMIT"] {
		return statement{sql: sc.body, display: sc.body}, nil
	}
	// newlines keep a trailing line comment of the body from swallowing the wrapper
	return statement{
		sql:     "SELECT * FROM (\n" + sc.body + "\n) LIMIT " + strconv.Itoa(limit+1),
		display: sc.body,
		limit:   limit,
		capped:  true,
	}, nil
}

// firstKeyword returns upper-cased first word after leading whitespace and comments
func firstKeyword(q string) string {
	q = stripLeading(q)
	end := strings.IndexFunc(q, func(r rune) bool { return !unicode.IsLetter(r) && r != '_' })
	if end < 0 {
		end = len(q)
	}
	return strings.ToUpper(q[:end])
}

// stripLeading removes leading whitespace, line and block comments
func stripLeading(q string) string {
	for {
		q = strings.TrimLeftFunc(q, unicode.IsSpace)
		switch {
		case strings.HasPrefix(q, "--"):
			i := strings.IndexByte(q, '\n')
			if i < 0 {
				return ""
			}
			q = q[i+1:]
		case strings.HasPrefix(q, "/*"):
			i := strings.Index(q[2:], "*/")
			if i < 0 {
				return ""
			}
			q = q[i+4:]
		default:
			return q
		}
	}
}

// sqlScan is the result of scanSQL
type sqlScan struct {
	body     string          // first statement without terminator and trailing space
	stacked  bool            // something other than comments follows the first terminator
	topWords map[string]bool // upper-cased words seen outside parens, literals and comments, function names excluded
}

// scanSQL walks the query skipping literals, quoted identifiers and comments,
// finds the first statement terminator and collects top-level words.
func scanSQL(q string) sqlScan {
	res := sqlScan{topWords: map[string]bool{}}
	depth, end := 0, len(q)

	skipTo := func(i int, closing string) int {
		j := strings.Index(q[i:], closing)
		if j < 0 {
			return len(q)
		}
		return i + j + len(closing)
	}

	i := 0
loop:
	for i < len(q) {
		c := q[i]
		switch {
		case c == '\'':
			i = skipQuoted(q, i, '\'')
		case c == '"':
			i = skipQuoted(q, i, '"')
		case c == '`':
			i = skipQuoted(q, i, '`')
		case c == '[':
			i = skipTo(i+1, "]")
		case c == '-' && strings.HasPrefix(q[i:], "--"):
			i = skipTo(i, "\n")
		case c == '/' && strings.HasPrefix(q[i:], "/*"):
			i = skipTo(i+2, "*/")
		case c == '(':
			depth++
			i++
		case c == ')':
			depth--
			i++
		case c == ';':
			end = i
			res.stacked = !onlyTerminators(q[i:])
			break loop
		case isWordStart(c):
			j := i
			for j < len(q) && isWordChar(q[j]) {
				j++
			}
			if depth == 0 && !isCall(q[j:]) {
				res.topWords[strings.ToUpper(q[i:j])] = true
			}
			i = j
		default:
			i++
		}
	}
	res.body = strings.TrimRightFunc(q[:end], unicode.IsSpace)
	if stripLeading(res.body) == "" {
		res.body = ""
	}
	return res
}

// onlyTerminators checks if s has nothing but semicolons, whitespace and comments
func onlyTerminators(s string) bool {
	for {
		s = stripLeading(s)
		if s == "" {
			return true
		}
		if s[0] != ';' {
			return false
		}
		s = s[1:]
	}
}

// isCall checks if the rest after a word starts with an opening paren, i.e. the word is a function name
func isCall(rest string) bool {
	rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
	return strings.HasPrefix(rest, "(")
}

// skipQuoted returns index after the closing quote, doubled quotes are escapes
func skipQuoted(q string, i int, quote byte) int {
	for j := i + 1; j < len(q); j++ {
		if q[j] != quote {
			continue
		}
		if j+1 < len(q) && q[j+1] == quote {
			j++
			continue
		}
		return j + 1
	}
	return len(q)
}

func isWordStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isWordChar(c byte) bool {
	return isWordStart(c) || c == '$' || (c >= '0' && c <= '9')
}

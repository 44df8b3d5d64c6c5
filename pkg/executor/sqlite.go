package executor

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/go-pkgz/fileutils"
	_ "modernc.org/sqlite" // sqlite driver loaded here

	"github.com/umputun/sqlview/pkg/filter"
)

// SQLite is an executor for a single sqlite database file. It owns one read-only connection,
// statements on it are serialized. Safe for concurrent use, but queries never run in parallel.
type SQLite struct {
	timeout time.Duration

	mu   sync.Mutex
	db   *sql.DB
	path string
}

// Option func type
type Option func(s *SQLite)

// WithTimeout sets per-statement deadline, zero means no deadline
func WithTimeout(d time.Duration) Option {
	return func(s *SQLite) { s.timeout = d }
}

// Open makes a new executor for the database file at path.
// Returns ErrNotFound if path is not a file and ErrNotADatabase if it can't be read as sqlite database.
func Open(path string, opts ...Option) (*SQLite, error) {
	res := &SQLite{}
	for _, opt := range opts {
		opt(res)
	}
	if err := res.Reopen(path); err != nil {
		return nil, err
	}
	return res, nil
}

// Opener makes executors with the same options, each with its own connection
type Opener struct {
	Timeout time.Duration
}

// Open makes a new sqlite executor for path
func (o Opener) Open(path string) (Interface, error) {
	return Open(path, WithTimeout(o.Timeout))
}

// Reopen replaces current connection with a new one to the database at path.
// On failure the current connection is kept as is.
func (s *SQLite) Reopen(path string) error {
	db, err := openDB(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			log.Printf("[WARN] can't close database %s: %v", s.path, err)
		}
	}
	s.db, s.path = db, path
	log.Printf("[INFO] database %s loaded", path)
	return nil
}

// Path returns location of the loaded database, empty if closed
func (s *SQLite) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Close releases the connection. Following calls return ErrNoConnection.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db, s.path = nil, ""
	if err != nil {
		return fmt.Errorf("can't close database: %w", err)
	}
	return nil
}

// ListTables returns user tables ordered by name with columns and row counts.
// Counting rows is a full scan of every table.
func (s *SQLite) ListTables(ctx context.Context) ([]TableMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, newErr(ErrNoConnection, "", nil)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	const listSQL = "SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name"
	rows, err := s.db.QueryContext(ctx, listSQL)
	if err != nil {
		return nil, execErr(ctx, listSQL, err)
	}
	names, err := scanRows(rows, func(r *sql.Rows) (name string, err error) {
		err = r.Scan(&name)
		return name, err
	})
	if err != nil {
		return nil, execErr(ctx, listSQL, err)
	}

	res := make([]TableMeta, 0, len(names))
	for _, name := range names {
		cols, err := s.columns(ctx, name)
		if err != nil {
			return nil, err
		}
		countSQL := "SELECT COUNT(*) FROM " + filter.QuoteIdent(name)
		var count int64
		if err := s.db.QueryRowContext(ctx, countSQL).Scan(&count); err != nil {
			return nil, execErr(ctx, countSQL, err)
		}
		res = append(res, TableMeta{Name: name, Columns: cols, RowCount: count})
	}
	log.Printf("[DEBUG] listed %d tables", len(res))
	return res, nil
}

// Columns returns column metadata for a table, ErrInvalidFilter if there is no such table
func (s *SQLite) Columns(ctx context.Context, table string) ([]ColumnMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, newErr(ErrNoConnection, "", nil)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.columns(ctx, table)
}

// TableData validates table and filter fields against the live schema, compiles filters
// and reads up to limit rows. limit <= 0 reads all matching rows.
func (s *SQLite) TableData(ctx context.Context, table string, specs []filter.Spec, limit int) (*QueryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, newErr(ErrNoConnection, "", nil)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	cols, err := s.columns(ctx, table)
	if err != nil {
		return nil, err
	}
	clause, err := filter.Compile(ColumnNames(cols), specs)
	if err != nil {
		return nil, newErr(ErrInvalidFilter, "", err)
	}
	return s.query(ctx, tableStatement(table, clause, limit))
}

// RawQuery runs caller-authored read-only sql. Anything but a single SELECT or WITH statement
// is rejected with ErrWriteNotAllowed. Without its own LIMIT the query is capped at limit rows.
func (s *SQLite) RawQuery(ctx context.Context, query string, limit int) (*QueryResult, error) {
	st, err := rawStatement(query, limit)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, newErr(ErrNoConnection, "", nil)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.query(ctx, st)
}

// DistinctValues returns ordered distinct non-null values of a column.
// Returns nil if the column has more than maxValues distinct values.
func (s *SQLite) DistinctValues(ctx context.Context, table, column string, maxValues int) ([]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, newErr(ErrNoConnection, "", nil)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	cols, err := s.columns(ctx, table)
	if err != nil {
		return nil, err
	}
	if _, err = filter.Compile(ColumnNames(cols), []filter.Spec{{Field: column, Op: filter.IsNotNull}}); err != nil {
		return nil, newErr(ErrInvalidFilter, "", err)
	}

	countSQL, valuesSQL := distinctStatements(table, column, maxValues)
	var count int
	if err = s.db.QueryRowContext(ctx, countSQL).Scan(&count); err != nil {
		return nil, execErr(ctx, countSQL, err)
	}
	if count == 0 || count > maxValues {
		log.Printf("[DEBUG] column %s.%s has %d distinct values, max %d", table, column, count, maxValues)
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, valuesSQL)
	if err != nil {
		return nil, execErr(ctx, valuesSQL, err)
	}
	res, err := scanRows(rows, func(r *sql.Rows) (v any, err error) {
		err = r.Scan(&v)
		return v, err
	})
	if err != nil {
		return nil, execErr(ctx, valuesSQL, err)
	}
	return res, nil
}

// columns reads table columns, caller holds the lock
func (s *SQLite) columns(ctx context.Context, table string) ([]ColumnMeta, error) {
	if table == "" {
		return nil, newErr(ErrInvalidFilter, "", fmt.Errorf("%w: empty table name", ErrInvalidFilter))
	}
	const colSQL = "SELECT name, type FROM pragma_table_info(?) ORDER BY cid"
	rows, err := s.db.QueryContext(ctx, colSQL, table)
	if err != nil {
		return nil, execErr(ctx, colSQL, err)
	}
	res, err := scanRows(rows, func(r *sql.Rows) (c ColumnMeta, err error) {
		err = r.Scan(&c.Name, &c.Type)
		return c, err
	})
	if err != nil {
		return nil, execErr(ctx, colSQL, err)
	}
	if len(res) == 0 {
		return nil, newErr(ErrInvalidFilter, "", fmt.Errorf("%w: unknown table %q", ErrInvalidFilter, table))
	}
	return res, nil
}

// query executes the statement and collects rows. With capped set it stops on the row after the limit
// and marks the result as truncated. Caller holds the lock.
func (s *SQLite) query(ctx context.Context, st statement) (*QueryResult, error) {
	log.Printf("[DEBUG] query %q, params: %v", st.sql, st.params)
	start := time.Now()

	rows, err := s.db.QueryContext(ctx, st.sql, st.params...)
	if err != nil {
		return nil, execErr(ctx, st.display, err)
	}
	defer rows.Close() // nolint

	cols, err := rows.Columns()
	if err != nil {
		return nil, execErr(ctx, st.display, err)
	}

	res := &QueryResult{Columns: cols, Rows: [][]any{}, SQL: st.display, Params: st.params}
	for rows.Next() {
		if st.capped && len(res.Rows) == st.limit {
			res.Truncated = true
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err = rows.Scan(ptrs...); err != nil {
			return nil, execErr(ctx, st.display, err)
		}
		res.Rows = append(res.Rows, vals)
	}
	if err = rows.Err(); err != nil {
		return nil, execErr(ctx, st.display, err)
	}

	res.RowCount = len(res.Rows)
	res.Elapsed = time.Since(start)
	log.Printf("[DEBUG] %d rows in %v, truncated: %v", res.RowCount, res.Elapsed, res.Truncated)
	return res, nil
}

func (s *SQLite) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// openDB opens query-only connection and checks the file is a readable database
func openDB(path string) (*sql.DB, error) {
	if !fileutils.IsFile(path) {
		return nil, newErr(ErrNotFound, "", fmt.Errorf("%w: %s", ErrNotFound, path))
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, newErr(ErrNotADatabase, "", fmt.Errorf("can't open %s: %w", path, err))
	}
	db.SetMaxOpenConns(1) // single connection, no pool

	const checkSQL = "SELECT COUNT(*) FROM sqlite_master"
	var n int
	if err = db.QueryRow(checkSQL).Scan(&n); err != nil {
		_ = db.Close()
		return nil, newErr(ErrNotADatabase, "", fmt.Errorf("can't read %s: %w", path, err))
	}
	return db, nil
}

// dsn makes read-only uri for path. Path is escaped, otherwise "?" or "#" in a file name
// would be taken as the start of the query and the driver would open (and create) another file.
func dsn(path string) string {
	return "file:" + (&url.URL{Path: path}).EscapedPath() + "?mode=ro&_pragma=query_only(1)"
}

// scanRows scans all rows using the provided scanner and closes rows
func scanRows[T any](rows *sql.Rows, scan func(*sql.Rows) (T, error)) ([]T, error) {
	defer rows.Close() // nolint

	var res []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, item)
	}
	return res, rows.Err()
}

// Package config loads the query book, a yaml or toml file with named saved queries used by reports.
package config

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/go-pkgz/stringutils"
	"github.com/hashicorp/go-multierror"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/umputun/sqlview/pkg/filter"
	"github.com/umputun/sqlview/pkg/render"
)

// Book defines the top-level config object
type Book struct {
	Database  string  `yaml:"database" toml:"database"`     // sqlite file, can be overridden from cli
	Limit     int     `yaml:"limit" toml:"limit"`           // default row limit for every query, 0 for no limit
	ExportDir string  `yaml:"export_dir" toml:"export_dir"` // directory for exported tsv files
	Queries   []Query `yaml:"queries" toml:"queries"`       // list of saved queries
}

// Query defines a saved query, either a filtered table read or a raw sql statement
type Query struct {
	Name    string   `yaml:"name" toml:"name"` // name of query, mandatory and unique
	Table   string   `yaml:"table" toml:"table"`
	Filters []Filter `yaml:"filters" toml:"filters"` // filters for table read, joined with AND
	Columns []string `yaml:"columns" toml:"columns"` // optional projection, all columns if empty
	SQL     string   `yaml:"sql" toml:"sql"`         // read-only sql, exclusive with table
	Limit   int      `yaml:"limit" toml:"limit"`     // overrides book's limit if set
}

// Filter defines a single condition as it's written in config
type Filter struct {
	Field string `yaml:"field" toml:"field"`
	Op    string `yaml:"op" toml:"op"`
	Value string `yaml:"value" toml:"value"`
}

// Overrides defines values passed from cli, taking precedence over the book
type Overrides struct {
	Database  string
	Limit     int
	ExportDir string
}

// New loads the book from fname, applies overrides and validates all queries.
// All validation problems reported together.
func New(fname string, overrides *Overrides) (*Book, error) {
	log.Printf("[DEBUG] request to load query book %q", fname)
	data, err := os.ReadFile(fname) // nolint
	if err != nil {
		return nil, fmt.Errorf("can't read query book %s: %w", fname, err)
	}

	res := &Book{}
	if err = unmarshalBook(fname, data, res); err != nil {
		return nil, err
	}

	if overrides != nil {
		if overrides.Database != "" {
			res.Database = overrides.Database
		}
		if overrides.Limit > 0 {
			res.Limit = overrides.Limit
		}
		if overrides.ExportDir != "" {
			res.ExportDir = overrides.ExportDir
		}
	}

	if err = res.checkConfig(); err != nil {
		return nil, fmt.Errorf("invalid query book %s: %w", fname, err)
	}
	log.Printf("[INFO] query book %s loaded, %d queries", fname, len(res.Queries))
	return res, nil
}

// unmarshalBook picks format by file extension, yaml is the default for files without one
func unmarshalBook(fname string, data []byte, res *Book) error {
	switch {
	case strings.HasSuffix(fname, ".yml") || strings.HasSuffix(fname, ".yaml") || !strings.Contains(fname, "."):
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true) // strict mode, fail on unknown fields
		if err := dec.Decode(res); err != nil {
			return fmt.Errorf("can't unmarshal yaml query book %s: %w", fname, err)
		}
	case strings.HasSuffix(fname, ".toml"):
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(res); err != nil {
			return fmt.Errorf("can't unmarshal toml query book %s: %w", fname, err)
		}
	default:
		return fmt.Errorf("unknown config format %s", fname)
	}
	return nil
}

// Query returns the query with the given name, case-insensitive
func (b *Book) Query(name string) (*Query, error) {
	for _, q := range b.Queries {
		if strings.EqualFold(q.Name, name) {
			return &q, nil
		}
	}
	return nil, fmt.Errorf("query %q not found", name)
}

// Names returns names of all queries in the book order
func (b *Book) Names() []string {
	res := make([]string, 0, len(b.Queries))
	for _, q := range b.Queries {
		res = append(res, q.Name)
	}
	return res
}

// QueryLimit returns the row limit for the query, query's own limit wins over the book's one
func (b *Book) QueryLimit(q Query) int {
	if q.Limit > 0 {
		return q.Limit
	}
	return b.Limit
}

// Specs converts config filters to filter specs
func (q Query) Specs() ([]filter.Spec, error) {
	res := make([]filter.Spec, 0, len(q.Filters))
	for i, f := range q.Filters {
		op, err := filter.ParseOperator(f.Op)
		if err != nil {
			return nil, fmt.Errorf("filter #%d: %w", i+1, err)
		}
		res = append(res, filter.Spec{Field: f.Field, Op: op, Value: f.Value})
	}
	return res, nil
}

// IsRaw returns true for queries with sql statement
func (q Query) IsRaw() bool {
	return !stringutils.IsBlank(q.SQL)
}

// checkConfig validates the book, ensuring that:
// - all queries have unique names and no empty names
// - query names don't clash after conversion to export file names
// - each query has either table or sql set, but not both
// - filters are set only for table queries and have a valid operator, field and value
// - limits are not negative
func (b *Book) checkConfig() error {
	errs := new(multierror.Error)
	if b.Limit < 0 {
		errs = multierror.Append(errs, fmt.Errorf("negative limit %d", b.Limit))
	}

	names := make(map[string]bool)
	files := make(map[string]string) // export file name -> query name
	for i, q := range b.Queries {
		if stringutils.IsBlank(q.Name) {
			errs = multierror.Append(errs, fmt.Errorf("query #%d: name is required", i+1))
		}
		key := strings.ToLower(q.Name)
		if q.Name != "" && names[key] {
			errs = multierror.Append(errs, fmt.Errorf("duplicate query name %q", q.Name))
		}
		names[key] = true

		// different names can map to the same export file, e.g. "a b" and "a_b"
		fileKey := strings.ToLower(render.SafeName(q.Name))
		if other, ok := files[fileKey]; ok && q.Name != "" && !strings.EqualFold(other, q.Name) {
			errs = multierror.Append(errs, fmt.Errorf("query %q: export name clashes with query %q", q.Name, other))
		}
		if _, ok := files[fileKey]; !ok {
			files[fileKey] = q.Name
		}

		hasTable := !stringutils.IsBlank(q.Table)
		switch {
		case hasTable && q.IsRaw():
			errs = multierror.Append(errs, fmt.Errorf("query %q: table and sql are mutually exclusive", q.Name))
		case !hasTable && !q.IsRaw():
			errs = multierror.Append(errs, fmt.Errorf("query %q: table or sql is required", q.Name))
		case q.IsRaw() && len(q.Filters) > 0:
			errs = multierror.Append(errs, fmt.Errorf("query %q: filters can't be used with sql", q.Name))
		}

		if q.Limit < 0 {
			errs = multierror.Append(errs, fmt.Errorf("query %q: negative limit %d", q.Name, q.Limit))
		}

		for j, f := range q.Filters {
			if stringutils.IsBlank(f.Field) {
				errs = multierror.Append(errs, fmt.Errorf("query %q, filter #%d: field is required", q.Name, j+1))
			}
			op, err := filter.ParseOperator(f.Op)
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("query %q, filter #%d: %w", q.Name, j+1, err))
				continue
			}
			if op.NeedsValue() && f.Value == "" {
				errs = multierror.Append(errs, fmt.Errorf("query %q, filter #%d: value is required for %s", q.Name, j+1, op))
			}
		}
	}
	return errs.ErrorOrNil()
}

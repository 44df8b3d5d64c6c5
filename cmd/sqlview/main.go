package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/hashicorp/go-multierror"
	"github.com/jessevdk/go-flags"
	"golang.org/x/term"

	"github.com/umputun/sqlview/pkg/config"
	"github.com/umputun/sqlview/pkg/executor"
	"github.com/umputun/sqlview/pkg/filter"
	"github.com/umputun/sqlview/pkg/render"
	"github.com/umputun/sqlview/pkg/runner"
)

type options struct {
	DB      string        `short:"d" long:"db" env:"SQLVIEW_DB" default:"./data/db.sqlite" description:"sqlite database file"`
	Limit   int           `short:"l" long:"limit" env:"SQLVIEW_LIMIT" default:"500" description:"max rows to show"`
	Timeout time.Duration `long:"timeout" env:"SQLVIEW_TIMEOUT" default:"0s" description:"statement timeout, 0 for none"`
	NoColor bool          `long:"no-color" env:"NO_COLOR" description:"disable colors"`

	TablesCmd struct{} `command:"tables" description:"list tables with columns and row counts"`

	DataCmd struct {
		Filters []string `short:"f" long:"filter" description:"filter as field:operator[:value], can be repeated"`
		Columns []string `short:"c" long:"columns" description:"columns to show, all if not set, can be repeated"`
		Export  string   `long:"export" description:"export all matching rows to tsv files in this directory"`
		Stats   bool     `long:"stats" description:"show statistics for numeric columns"`

		PositionalArgs struct {
			Table string `positional-arg-name:"table" description:"table to read"`
		} `positional-args:"yes" required:"yes"`
	} `command:"data" description:"show table rows matching filters"`

	QueryCmd struct {
		Export string `long:"export" description:"export all rows to tsv files in this directory"`
		Stats  bool   `long:"stats" description:"show statistics for numeric columns"`

		PositionalArgs struct {
			SQL string `positional-arg-name:"sql" description:"read-only sql, SELECT or WITH"`
		} `positional-args:"yes" required:"yes"`
	} `command:"query" description:"run read-only sql"`

	ValuesCmd struct {
		Max int `long:"max" default:"50" description:"max number of distinct values"`

		PositionalArgs struct {
			Table  string `positional-arg-name:"table" description:"table name"`
			Column string `positional-arg-name:"column" description:"column name"`
		} `positional-args:"yes" required:"yes"`
	} `command:"values" description:"show distinct values of a column"`

	ReportCmd struct {
		Book       string `short:"b" long:"book" env:"SQLVIEW_BOOK" default:"sqlview.yml" description:"query book file"`
		Out        string `short:"o" long:"out" description:"output directory, overrides book's export_dir"`
		Concurrent int    `short:"c" long:"concurrent" default:"1" description:"concurrent queries"`

		PositionalArgs struct {
			Names []string `positional-arg-name:"query" description:"queries to run, all if not set"`
		} `positional-args:"yes"`
	} `command:"report" description:"run saved queries from the query book and export results"`

	Dry bool `long:"dry" description:"dry run, print statements without executing"`
	Dbg bool `long:"dbg" description:"debug mode"`
}

var revision = "latest"

var exitFunc = os.Exit

func main() {
	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		exitFunc(1) // can be redefined in tests
		return
	}
	noColor := opts.NoColor || !term.IsTerminal(int(os.Stdout.Fd())) // nolint
	color.NoColor = noColor
	setupLog(opts.Dbg)
	log.Printf("[DEBUG] sqlview %s", revision)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, p, opts, os.Stdout); err != nil {
		if opts.Dbg {
			log.Printf("[ERROR] %v", err)
		}
		fmt.Printf("failed, %v\n", err)
		exitFunc(1)
	}
}

func run(ctx context.Context, p *flags.Parser, opts options, out io.Writer) error {
	isActive := func(name string) bool { return p.Active != nil && p.Command.Find(name) == p.Active }

	// report opens its own sessions, one per query
	if isActive("report") {
		return runReport(ctx, p, opts)
	}

	ex, err := executor.Open(opts.DB, executor.WithTimeout(opts.Timeout))
	if err != nil {
		return fmt.Errorf("can't open database: %w", err)
	}
	defer func() {
		if e := ex.Close(); e != nil {
			log.Printf("[WARN] %v", e)
		}
	}()

	var qe executor.Interface = ex
	var dv distinctReader = ex
	if opts.Dry {
		msg := color.New(color.FgHiRed).Sprint("dry run - statements will be printed, not executed")
		fmt.Fprintln(out, msg) // nolint
		dry := executor.NewDry(ex, out)
		qe, dv = dry, dry
	}

	tbl := render.NewTable(opts.NoColor || color.NoColor)

	switch {
	case isActive("tables"):
		return showTables(ctx, qe, tbl, out)

	case isActive("data"):
		specs := make([]filter.Spec, 0, len(opts.DataCmd.Filters))
		for _, f := range opts.DataCmd.Filters {
			spec, e := filter.ParseSpec(f)
			if e != nil {
				return fmt.Errorf("can't parse filter %q: %w", f, e)
			}
			specs = append(specs, spec)
		}
		table := opts.DataCmd.PositionalArgs.Table
		load := func(limit int) (*executor.QueryResult, error) { return qe.TableData(ctx, table, specs, limit) }
		return show(out, tbl, load, showReq{limit: opts.Limit, name: table, columns: opts.DataCmd.Columns,
			export: opts.DataCmd.Export, stats: opts.DataCmd.Stats})

	case isActive("query"):
		query := opts.QueryCmd.PositionalArgs.SQL
		load := func(limit int) (*executor.QueryResult, error) { return qe.RawQuery(ctx, query, limit) }
		return show(out, tbl, load, showReq{limit: opts.Limit, name: "query",
			export: opts.QueryCmd.Export, stats: opts.QueryCmd.Stats})

	case isActive("values"):
		args := opts.ValuesCmd.PositionalArgs
		vals, e := dv.DistinctValues(ctx, args.Table, args.Column, opts.ValuesCmd.Max)
		if e != nil {
			return fmt.Errorf("can't get values of %s.%s: %w", args.Table, args.Column, e)
		}
		if opts.Dry {
			return nil
		}
		if vals == nil {
			fmt.Fprintf(out, "no values or more than %d distinct values in %s.%s\n", opts.ValuesCmd.Max, args.Table, args.Column) // nolint
			return nil
		}
		for _, v := range vals {
			fmt.Fprintln(out, render.FormatValue(v)) // nolint
		}
		return nil
	}

	return errors.New("no command specified")
}

// distinctReader is implemented by both sqlite and dry executors
type distinctReader interface {
	DistinctValues(ctx context.Context, table, column string, maxValues int) ([]any, error)
}

type showReq struct {
	limit   int
	name    string
	columns []string
	export  string
	stats   bool
}

// show loads result with the limit, renders it and optionally exports all rows without limit
func show(out io.Writer, tbl *render.Table, load func(limit int) (*executor.QueryResult, error), req showReq) error {
	res, err := load(req.limit)
	if err != nil {
		return err
	}
	log.Printf("[DEBUG] sql: %s", res.SQL)
	res = res.Select(req.columns)
	if err = tbl.Write(out, res); err != nil {
		return fmt.Errorf("can't render result: %w", err)
	}

	if req.stats {
		if err = tbl.WriteStats(out, render.Stats(res)); err != nil {
			return fmt.Errorf("can't render stats: %w", err)
		}
	}

	if req.export == "" {
		return nil
	}
	full, err := load(0)
	if err != nil {
		return fmt.Errorf("can't load rows for export: %w", err)
	}
	exp, err := render.Export(req.export, req.name, full.Select(req.columns), time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "exported %d rows to %s\n", exp.Rows, exp.Data) // nolint
	return nil
}

func showTables(ctx context.Context, qe executor.Interface, tbl *render.Table, out io.Writer) error {
	st := time.Now()
	tables, err := qe.ListTables(ctx)
	if err != nil {
		return fmt.Errorf("can't list tables: %w", err)
	}
	res := &executor.QueryResult{Columns: []string{"table", "rows", "columns"}, Elapsed: time.Since(st)}
	for _, t := range tables {
		cols := ""
		for i, c := range t.Columns {
			if i > 0 {
				cols += ", "
			}
			cols += c.Name
		}
		res.Rows = append(res.Rows, []any{t.Name, t.RowCount, cols})
	}
	res.RowCount = len(res.Rows)
	return tbl.Write(out, res)
}

func runReport(ctx context.Context, p *flags.Parser, opts options) error {
	bookFile, err := filepath.Abs(opts.ReportCmd.Book)
	if err != nil {
		return fmt.Errorf("can't get absolute path for %s: %w", opts.ReportCmd.Book, err)
	}
	overrides := &config.Overrides{ExportDir: opts.ReportCmd.Out}
	// database from the book wins over the default one, but not over the one set explicitly
	if o := p.FindOptionByLongName("db"); o != nil && o.IsSet() && !o.IsSetDefault() {
		overrides.Database = opts.DB
	}
	book, err := config.New(bookFile, overrides)
	if err != nil {
		return fmt.Errorf("can't load query book: %w", err)
	}

	st := time.Now()
	r := runner.Process{
		Concurrency: opts.ReportCmd.Concurrent,
		Opener:      executor.Opener{Timeout: opts.Timeout},
		Book:        book,
	}
	rep, err := r.Run(ctx, opts.ReportCmd.PositionalArgs.Names)
	log.Printf("[INFO] report completed, queries: %d, rows: %d, files: %d, %v",
		rep.Queries, rep.Rows, len(rep.Files), time.Since(st).Truncate(time.Millisecond))
	if err != nil {
		var merr *multierror.Error
		if errors.As(err, &merr) {
			return fmt.Errorf("%d of %d queries failed: %w", len(merr.Errors), rep.Queries+len(merr.Errors), err)
		}
		return err
	}
	return nil
}

func setupLog(dbg bool) {
	logOpts := []lgr.Option{lgr.Out(io.Discard), lgr.Err(io.Discard)} // default to discard
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}

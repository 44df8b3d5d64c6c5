// Package runner executes saved queries from the query book and exports their results.
package runner

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/go-pkgz/syncs"
	"github.com/hashicorp/go-multierror"

	"github.com/umputun/sqlview/pkg/config"
	"github.com/umputun/sqlview/pkg/executor"
	"github.com/umputun/sqlview/pkg/render"
)

// Process holds the information needed to run a report.
// It is responsible for running saved queries against the book's database and exporting results.
type Process struct {
	Concurrency int
	Opener      Opener
	Book        *config.Book
	OutDir      string
	Now         func() time.Time // timestamp for exported files, time.Now if not set
}

// Opener makes a new executor session, each query gets its own
type Opener interface {
	Open(path string) (executor.Interface, error)
}

// Report holds the information about processed queries and exported files
type Report struct {
	Queries int
	Rows    int
	Files   []string
}

// Run executes queries by names, all queries of the book if names are empty. Runs in parallel with limited
// concurrency, each query processed in a separate goroutine with its own session. Failed queries don't stop
// the rest, all errors returned together.
func (p *Process) Run(ctx context.Context, names []string) (Report, error) {
	if len(names) == 0 {
		names = p.Book.Names()
	}
	queries := make([]*config.Query, 0, len(names))
	for _, name := range names {
		q, err := p.Book.Query(name)
		if err != nil {
			return Report{}, fmt.Errorf("can't get query %s: %w", name, err)
		}
		queries = append(queries, q)
	}

	outDir := p.OutDir
	if outDir == "" {
		outDir = p.Book.ExportDir
	}
	if outDir == "" {
		return Report{}, fmt.Errorf("no output directory set")
	}
	ts := time.Now()
	if p.Now != nil {
		ts = p.Now()
	}

	res := Report{}
	errs := new(multierror.Error)
	lock := sync.Mutex{}
	wg := syncs.NewErrSizedGroup(p.concurrency(), syncs.Context(ctx), syncs.Preemptive)
	for _, q := range queries {
		wg.Go(func() error {
			exp, err := p.runQuery(ctx, q, outDir, ts)
			lock.Lock()
			defer lock.Unlock()
			if err != nil {
				log.Printf("[WARN] query %q failed: %v", q.Name, err)
				errs = multierror.Append(errs, fmt.Errorf("query %q: %w", q.Name, err))
				return nil
			}
			res.Queries++
			res.Rows += exp.Rows
			res.Files = append(res.Files, exp.Data, exp.Query)
			return nil
		})
	}
	if err := wg.Wait(); err != nil {
		errs = multierror.Append(errs, err)
	}
	sort.Strings(res.Files)
	return res, errs.ErrorOrNil()
}

// runQuery opens a session, executes a single query and exports the result
func (p *Process) runQuery(ctx context.Context, q *config.Query, outDir string, ts time.Time) (render.Exported, error) {
	st := time.Now()
	ex, err := p.Opener.Open(p.Book.Database)
	if err != nil {
		return render.Exported{}, fmt.Errorf("can't open %s: %w", p.Book.Database, err)
	}
	defer func() {
		if e := ex.Close(); e != nil {
			log.Printf("[WARN] can't close session for %q: %v", q.Name, e)
		}
	}()

	limit := p.Book.QueryLimit(*q)
	var res *executor.QueryResult
	if q.IsRaw() {
		res, err = ex.RawQuery(ctx, q.SQL, limit)
	} else {
		specs, e := q.Specs()
		if e != nil {
			return render.Exported{}, e
		}
		res, err = ex.TableData(ctx, q.Table, specs, limit)
	}
	if err != nil {
		return render.Exported{}, err
	}
	if res.Truncated {
		log.Printf("[WARN] query %q truncated to %d rows", q.Name, limit)
	}

	exp, err := render.Export(outDir, q.Name, res.Select(q.Columns), ts)
	if err != nil {
		return render.Exported{}, err
	}
	log.Printf("[INFO] query %q completed, %d rows in %v", q.Name, res.RowCount, time.Since(st).Truncate(time.Millisecond))
	return exp, nil
}

func (p *Process) concurrency() int {
	if p.Concurrency < 1 {
		return 1
	}
	return p.Concurrency
}

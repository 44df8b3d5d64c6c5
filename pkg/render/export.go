package render

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pkgz/fileutils"

	"github.com/umputun/sqlview/pkg/executor"
)

// Exported describes files written by Export
type Exported struct {
	Data  string // tsv file with header and rows
	Query string // text file with the sql used to get the data
	Rows  int
}

// WriteTSV writes header and rows separated by tabs. Values with tabs, quotes or newlines are quoted.
func WriteTSV(wr io.Writer, res *executor.QueryResult) error {
	w := csv.NewWriter(wr)
	w.Comma = '\t'
	if err := w.Write(res.Columns); err != nil {
		return fmt.Errorf("can't write header: %w", err)
	}
	line := make([]string, len(res.Columns))
	for i, row := range res.Rows {
		for j, v := range row {
			line[j] = FormatValue(v)
		}
		if err := w.Write(line[:len(row)]); err != nil {
			return fmt.Errorf("can't write row %d: %w", i, err)
		}
	}
	w.Flush()
	return w.Error()
}

// Export writes result to <dir>/<ts>_<name>.tsv and its sql to <dir>/<ts>_<name>_query.txt,
// ts formatted as YYYYMMDD_hhmmss. Creates dir if missing.
func Export(dir, name string, res *executor.QueryResult, ts time.Time) (Exported, error) {
	if dir == "" {
		return Exported{}, fmt.Errorf("empty export directory")
	}
	if fileutils.IsFile(dir) {
		return Exported{}, fmt.Errorf("export path %s is not a directory", dir)
	}
	if !fileutils.IsDir(dir) {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return Exported{}, fmt.Errorf("can't create export directory %s: %w", dir, err)
		}
	}

	base := ts.Format("20060102_150405") + "_" + SafeName(name)
	res2 := Exported{
		Data:  filepath.Join(dir, base+".tsv"),
		Query: filepath.Join(dir, base+"_query.txt"),
		Rows:  res.RowCount,
	}

	fh, err := os.Create(res2.Data)
	if err != nil {
		return Exported{}, fmt.Errorf("can't create %s: %w", res2.Data, err)
	}
	if err = WriteTSV(fh, res); err != nil {
		_ = fh.Close()
		return Exported{}, fmt.Errorf("can't export to %s: %w", res2.Data, err)
	}
	if err = fh.Close(); err != nil {
		return Exported{}, fmt.Errorf("can't close %s: %w", res2.Data, err)
	}

	if err = os.WriteFile(res2.Query, []byte(res.SQL+"\n"), 0o600); err != nil {
		return Exported{}, fmt.Errorf("can't write query to %s: %w", res2.Query, err)
	}
	log.Printf("[INFO] exported %d rows and %d columns to %s", res.RowCount, len(res.Columns), res2.Data)
	return res2, nil
}

// SafeName replaces path separators and spaces, empty name becomes "export"
func SafeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "export"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
}

// Package export writes price tables to local CSV and Excel files.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"xinfadi_prices/internal/prices"
)

// Options control where and under which name Save writes.
type Options struct {
	Dir       string
	Format    Format
	Filename  string
	StartDate string
	EndDate   string
	Now       time.Time
}

// Save writes table in every format opts asks for and returns the written
// paths, CSV first.
func Save(table prices.Table, opts Options) ([]string, error) {
	if opts.Format == "" {
		opts.Format = FormatCSV
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var paths []string
	if opts.Format.WantsCSV() {
		path := filepath.Join(opts.Dir, ResolveName(opts.Filename, opts.StartDate, opts.EndDate, "csv", opts.Now))
		if err := WriteCSV(path, table); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	if opts.Format.WantsXLSX() {
		path := filepath.Join(opts.Dir, ResolveName(opts.Filename, opts.StartDate, opts.EndDate, "xlsx", opts.Now))
		if err := WriteXLSX(path, table); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

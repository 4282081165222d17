package export

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Format selects which local files a run produces.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatBoth Format = "both"
)

// ParseFormat accepts csv, xlsx or both.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatXLSX, FormatBoth:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q", s)
}

// WantsCSV reports whether f includes a CSV file.
func (f Format) WantsCSV() bool { return f == FormatCSV || f == FormatBoth }

// WantsXLSX reports whether f includes a workbook.
func (f Format) WantsXLSX() bool { return f == FormatXLSX || f == FormatBoth }

// Filename names an output file after the queried date range, falling back
// to today's date.
func Filename(start, end, ext string, now time.Time) string {
	switch {
	case start != "" && end != "":
		return fmt.Sprintf("xinfadi_price_%s_to_%s.%s", start, end, ext)
	case start != "":
		return fmt.Sprintf("xinfadi_price_%s.%s", start, ext)
	default:
		return fmt.Sprintf("xinfadi_price_%s.%s", now.Format(time.DateOnly), ext)
	}
}

// ResolveName returns custom when given, otherwise the generated name. A
// custom workbook name always ends in .xlsx.
func ResolveName(custom, start, end, ext string, now time.Time) string {
	if custom == "" {
		return Filename(start, end, ext, now)
	}
	if ext == "xlsx" && !strings.HasSuffix(custom, ".xlsx") {
		return strings.TrimSuffix(custom, filepath.Ext(custom)) + ".xlsx"
	}
	return custom
}

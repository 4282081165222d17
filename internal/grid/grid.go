// Package grid turns a price table into the rectangular value grid that
// spreadsheet backends accept, and plans how to write it in bounded chunks.
package grid

import (
	"fmt"

	"xinfadi_prices/internal/prices"
)

// FromTable returns the header row followed by one row per table row.
// Null prices become empty strings so every cell is JSON-serializable.
func FromTable(table prices.Table) [][]any {
	values := make([][]any, 0, len(table)+1)

	header := make([]any, len(prices.Columns))
	for i, name := range prices.Columns {
		header[i] = name
	}
	values = append(values, header)

	for _, row := range table {
		cells := row.Cells()
		for i, c := range cells {
			if c == nil {
				cells[i] = ""
			}
		}
		values = append(values, cells)
	}
	return values
}

// Width is the longest row length in values.
func Width(values [][]any) int {
	width := 0
	for _, row := range values {
		if len(row) > width {
			width = len(row)
		}
	}
	return width
}

// ColumnLetter encodes a 1-based column number the way spreadsheets label
// columns: 1 is A, 26 is Z, 27 is AA.
func ColumnLetter(col int) string {
	var b []byte
	for col > 0 {
		col--
		b = append(b, byte('A'+col%26))
		col /= 26
	}
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

// Chunk is a contiguous slice of grid rows and the sheet rows it lands on.
// Lo and Hi index the grid (half-open); StartRow and EndRow are 1-based and
// inclusive.
type Chunk struct {
	Lo, Hi   int
	StartRow int
	EndRow   int
}

// PlanChunks splits total rows into consecutive chunks of at most size rows,
// with the first chunk starting at sheet row startRow.
func PlanChunks(total, size, startRow int) []Chunk {
	if total <= 0 || size <= 0 {
		return nil
	}

	chunks := make([]Chunk, 0, (total+size-1)/size)
	for lo := 0; lo < total; lo += size {
		hi := min(lo+size, total)
		chunks = append(chunks, Chunk{
			Lo:       lo,
			Hi:       hi,
			StartRow: startRow + lo,
			EndRow:   startRow + hi - 1,
		})
	}
	return chunks
}

// Range renders the A1 range a chunk covers on sheet for width columns.
func (c Chunk) Range(sheet string, width int) string {
	return fmt.Sprintf("%s!A%d:%s%d", sheet, c.StartRow, ColumnLetter(width), c.EndRow)
}

// UniqueName returns base if it is free, otherwise the first of base_(1),
// base_(2), ... not present in existing.
func UniqueName(base string, existing []string) string {
	taken := make(map[string]struct{}, len(existing))
	for _, name := range existing {
		taken[name] = struct{}{}
	}

	if _, ok := taken[base]; !ok {
		return base
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s_(%d)", base, n)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}

package sheets

import (
	"context"
	"fmt"
	"strings"

	"xinfadi_prices/internal/grid"
	"xinfadi_prices/internal/observability"
	"xinfadi_prices/internal/prices"

	"github.com/rs/zerolog/log"
)

// MirrorChunkRows bounds each value write the same way the Feishu upload does.
const MirrorChunkRows = 4000

// MirrorTable copies table into a new tab of spreadsheetID. The tab is named
// title, or title_(n) when that is taken. Returns the tab actually used.
func (c *Client) MirrorTable(ctx context.Context, spreadsheetID, title string, table prices.Table) (string, error) {
	existing, err := c.SheetTitles(ctx, spreadsheetID)
	if err != nil {
		return "", err
	}
	tab := grid.UniqueName(title, existing)

	if _, err := c.AddSheet(ctx, spreadsheetID, tab); err != nil {
		return "", err
	}

	values := grid.FromTable(table)
	width := grid.Width(values)
	chunks := grid.PlanChunks(len(values), MirrorChunkRows, 1)
	for i, chunk := range chunks {
		rng := chunk.Range(quoteSheet(tab), width)
		if err := c.UpdateRange(ctx, spreadsheetID, rng, values[chunk.Lo:chunk.Hi]); err != nil {
			return tab, fmt.Errorf("failed to write chunk %d/%d: %w", i+1, len(chunks), err)
		}
		observability.ChunksWritten.WithLabelValues("google").Inc()
	}

	log.Info().
		Str("spreadsheet", spreadsheetID).
		Str("tab", tab).
		Int("rows", len(table)).
		Msg("Table mirrored to Google Sheets")
	return tab, nil
}

// quoteSheet makes a tab title safe to use in A1 notation.
func quoteSheet(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

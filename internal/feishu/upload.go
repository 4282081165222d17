package feishu

import (
	"context"
	"fmt"

	"xinfadi_prices/internal/grid"
	"xinfadi_prices/internal/prices"

	"github.com/rs/zerolog/log"
)

// UploadTable creates a new spreadsheet titled title in folder and writes
// table into its first sheet. With autoRename a taken title gets the first
// free _(n) suffix. A failure after creation leaves the partly written
// spreadsheet in place.
func (c *Client) UploadTable(ctx context.Context, table prices.Table, title, folder string, autoRename bool) (*SpreadsheetRef, error) {
	if autoRename {
		existing, err := c.FileNames(ctx, folder)
		if err != nil {
			log.Warn().Err(err).Str("folder", folder).Msg("Could not list folder, keeping title as is")
		} else {
			title = grid.UniqueName(title, existing)
		}
	}

	ref, err := c.CreateSpreadsheet(ctx, title, folder)
	if err != nil {
		return nil, fmt.Errorf("failed to create spreadsheet %q: %w", title, err)
	}

	ref.SheetID, err = c.FirstSheetID(ctx, ref.Token)
	if err != nil {
		return nil, err
	}

	values := grid.FromTable(table)
	if err := c.WriteGrid(ctx, ref.Token, ref.SheetID, values); err != nil {
		return nil, fmt.Errorf("failed to fill spreadsheet %q: %w", title, err)
	}

	log.Info().
		Str("title", ref.Title).
		Int("rows", len(table)).
		Str("url", ref.URL).
		Msg("Table uploaded to Feishu")
	return ref, nil
}

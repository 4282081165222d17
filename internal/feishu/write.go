package feishu

import (
	"context"
	"fmt"
	"net/http"

	"xinfadi_prices/internal/grid"
	"xinfadi_prices/internal/observability"

	"github.com/rs/zerolog/log"
)

// WriteChunkRows stays below the roughly 5000-row limit of one value write.
const WriteChunkRows = 4000

// WriteValues overwrites rng (e.g. "abc123!A1:J4000") with values.
func (c *Client) WriteValues(ctx context.Context, token, rng string, values [][]any) error {
	req, err := c.authorized(ctx)
	if err != nil {
		return err
	}

	body := map[string]any{
		"valueRange": map[string]any{
			"range":  rng,
			"values": values,
		},
	}
	path := "/sheets/v2/spreadsheets/" + token + "/values"
	return execute(req.SetBody(body), http.MethodPut, path, "write values "+rng, nil)
}

// WriteGrid writes values to sheetID from row 1 in sequential chunks of
// WriteChunkRows. The first failing chunk stops the write; earlier chunks
// stay written.
func (c *Client) WriteGrid(ctx context.Context, token, sheetID string, values [][]any) error {
	width := grid.Width(values)
	chunks := grid.PlanChunks(len(values), WriteChunkRows, 1)

	for i, chunk := range chunks {
		rng := chunk.Range(sheetID, width)
		if err := c.WriteValues(ctx, token, rng, values[chunk.Lo:chunk.Hi]); err != nil {
			return fmt.Errorf("failed to write chunk %d/%d: %w", i+1, len(chunks), err)
		}
		observability.ChunksWritten.WithLabelValues("feishu").Inc()
		log.Debug().
			Str("range", rng).
			Int("chunk", i+1).
			Int("chunks", len(chunks)).
			Msg("Chunk written")
	}
	return nil
}

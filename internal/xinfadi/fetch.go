package xinfadi

import (
	"context"
	"fmt"

	"xinfadi_prices/internal/observability"
	"xinfadi_prices/internal/prices"
	"xinfadi_prices/internal/retry"

	"github.com/rs/zerolog/log"
)

// FetchRequest describes one crawl. MaxPages <= 0 means no page limit.
type FetchRequest struct {
	Filters  Filters
	PageSize int
	MaxPages int
}

// FetchResult holds every record gathered before the crawl stopped. Err is
// set when a page failed and the crawl ended early; Records still holds
// what came before it.
type FetchResult struct {
	Records []prices.RawRecord
	Pages   int
	Total   int
	Err     error
}

// Truncated reports whether the crawl ended on a failure rather than on
// exhausting the listing.
func (r *FetchResult) Truncated() bool {
	return r.Err != nil
}

// FetchAll walks the listing page by page from page 1. It stops at the page
// limit, on an empty page, once the accumulated count reaches the reported
// total, or when a page fails. A failure is never returned as an error.
func (c *Client) FetchAll(ctx context.Context, req FetchRequest) *FetchResult {
	size := req.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}

	result := &FetchResult{Records: []prices.RawRecord{}}

	log.Info().
		Str("start", req.Filters.StartDate).
		Str("end", req.Filters.EndDate).
		Str("category", req.Filters.Category).
		Int("page_size", size).
		Int("max_pages", req.MaxPages).
		Msg("Starting price crawl")

	for page := 1; ; page++ {
		if req.MaxPages > 0 && page > req.MaxPages {
			log.Info().Int("max_pages", req.MaxPages).Msg("Reached page limit")
			break
		}

		current := page
		pageResult, err := retry.WithRetry(ctx, c.retry, func(ctx context.Context) (*PageResult, error) {
			return c.FetchPage(ctx, req.Filters, current, size)
		})
		if err != nil {
			observability.PageFailures.Inc()
			log.Warn().Err(err).Int("page", page).Int("records", len(result.Records)).Msg("Page request failed, ending crawl")
			result.Err = fmt.Errorf("page %d: %w", page, err)
			break
		}

		if len(pageResult.Records) == 0 {
			log.Debug().Int("page", page).Msg("Empty page, crawl complete")
			break
		}

		result.Records = append(result.Records, pageResult.Records...)
		result.Pages++
		result.Total = pageResult.Total
		observability.PagesFetched.Inc()
		observability.RecordsFetched.Add(float64(len(pageResult.Records)))

		log.Info().
			Int("page", page).
			Int("page_records", len(pageResult.Records)).
			Int("accumulated", len(result.Records)).
			Int("total", pageResult.Total).
			Msg("Fetched page")

		if len(result.Records) >= pageResult.Total {
			break
		}

		if err := c.sleep(ctx, c.delay); err != nil {
			log.Warn().Err(err).Msg("Crawl interrupted")
			result.Err = err
			break
		}
	}

	log.Info().
		Int("records", len(result.Records)).
		Int("pages", result.Pages).
		Bool("truncated", result.Truncated()).
		Msg("Price crawl finished")

	return result
}

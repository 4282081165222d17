// Package pipeline runs one crawl end to end: fetch, normalize, write local
// files, then push the table to whichever remote sinks are configured.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"xinfadi_prices/internal/export"
	"xinfadi_prices/internal/feishu"
	"xinfadi_prices/internal/notifications"
	"xinfadi_prices/internal/observability"
	"xinfadi_prices/internal/prices"
	"xinfadi_prices/internal/store"
	"xinfadi_prices/internal/xinfadi"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Fetcher interface {
	FetchAll(ctx context.Context, req xinfadi.FetchRequest) *xinfadi.FetchResult
}

type Uploader interface {
	UploadTable(ctx context.Context, table prices.Table, title, folder string, autoRename bool) (*feishu.SpreadsheetRef, error)
}

type Mirror interface {
	MirrorTable(ctx context.Context, spreadsheetID, title string, table prices.Table) (string, error)
}

type Archiver interface {
	SaveRun(ctx context.Context, run store.Run, table prices.Table) error
}

type Notifier interface {
	NotifyRun(ctx context.Context, summary notifications.RunSummary)
}

// Request describes one run.
type Request struct {
	Dates       DateRange
	Category    string
	ProductName string
	PageSize    int
	MaxPages    int
	Format      export.Format
	Filename    string
	SyncFeishu  bool
	SyncSheets  bool
}

// Result reports what a run produced. Truncated is set when pagination
// ended on a failed page.
type Result struct {
	RunID     uuid.UUID
	Rows      int
	Pages     int
	Truncated bool
	Files     []string
	Feishu    *feishu.SpreadsheetRef
	SheetsTab string
}

type Runner struct {
	fetcher       Fetcher
	outputDir     string
	uploader      Uploader
	folder        string
	mirror        Mirror
	spreadsheetID string
	archive       Archiver
	notifier      Notifier
	now           func() time.Time
}

type Option func(*Runner)

// WithFeishu uploads each run into folder when the request asks for it.
func WithFeishu(u Uploader, folder string) Option {
	return func(r *Runner) { r.uploader = u; r.folder = folder }
}

// WithSheets mirrors each run into a new tab of spreadsheetID when the
// request asks for it.
func WithSheets(m Mirror, spreadsheetID string) Option {
	return func(r *Runner) { r.mirror = m; r.spreadsheetID = spreadsheetID }
}

func WithArchive(a Archiver) Option {
	return func(r *Runner) { r.archive = a }
}

func WithNotifier(n Notifier) Option {
	return func(r *Runner) { r.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

func NewRunner(fetcher Fetcher, outputDir string, opts ...Option) *Runner {
	r := &Runner{
		fetcher:   fetcher,
		outputDir: outputDir,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes req. Local files are always written, even for an empty
// table. Remote sink failures are logged and joined into the returned
// error without stopping the other sinks.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	startedAt := r.now()
	res := &Result{RunID: uuid.New()}

	log.Info().
		Str("run_id", res.RunID.String()).
		Str("start", req.Dates.Start).
		Str("end", req.Dates.End).
		Str("category", req.Category).
		Msg("Starting price crawl")

	fetched := r.fetcher.FetchAll(ctx, xinfadi.FetchRequest{
		Filters: xinfadi.Filters{
			Category:    req.Category,
			ProductName: req.ProductName,
			StartDate:   req.Dates.Start,
			EndDate:     req.Dates.End,
		},
		PageSize: req.PageSize,
		MaxPages: req.MaxPages,
	})
	res.Pages = fetched.Pages
	res.Truncated = fetched.Truncated()
	if res.Truncated {
		log.Warn().Err(fetched.Err).Int("pages", fetched.Pages).Msg("Crawl ended early, data may be incomplete")
	}

	table := prices.Normalize(fetched.Records)
	if req.Category != "" {
		before := len(table)
		table = prices.FilterCategory(table, req.Category)
		if len(table) < before {
			log.Info().Int("before", before).Int("after", len(table)).Str("category", req.Category).Msg("Filtered rows locally")
		}
	}
	res.Rows = len(table)
	if res.Rows == 0 {
		log.Warn().Msg("No price rows returned")
	}

	files, err := export.Save(table, export.Options{
		Dir:       r.outputDir,
		Format:    req.Format,
		Filename:  req.Filename,
		StartDate: req.Dates.Start,
		EndDate:   req.Dates.End,
		Now:       startedAt,
	})
	res.Files = files
	if err != nil {
		err = fmt.Errorf("failed to save output: %w", err)
		r.finish(ctx, req, res, err)
		return res, err
	}
	for _, f := range files {
		log.Info().Str("path", f).Int("rows", res.Rows).Msg("Saved output file")
	}

	var sinkErrs []error
	title := RemoteTitle(req.Dates, startedAt)

	if req.SyncFeishu {
		if r.uploader == nil {
			sinkErrs = append(sinkErrs, errors.New("feishu sync requested but feishu is not configured"))
		} else if ref, err := r.uploader.UploadTable(ctx, table, title, r.folder, true); err != nil {
			log.Error().Err(err).Msg("Feishu sync failed")
			sinkErrs = append(sinkErrs, fmt.Errorf("feishu: %w", err))
		} else {
			res.Feishu = ref
			log.Info().Str("url", ref.URL).Str("title", ref.Title).Msg("Feishu sync complete")
		}
	}

	if req.SyncSheets {
		if r.mirror == nil || r.spreadsheetID == "" {
			sinkErrs = append(sinkErrs, errors.New("sheets sync requested but GOOGLE_SPREADSHEET_ID is not configured"))
		} else if tab, err := r.mirror.MirrorTable(ctx, r.spreadsheetID, title, table); err != nil {
			log.Error().Err(err).Msg("Google Sheets mirror failed")
			sinkErrs = append(sinkErrs, fmt.Errorf("sheets: %w", err))
		} else {
			res.SheetsTab = tab
		}
	}

	if r.archive != nil {
		run := store.Run{
			ID:        res.RunID,
			StartedAt: startedAt,
			StartDate: req.Dates.Start,
			EndDate:   req.Dates.End,
			Category:  req.Category,
			Pages:     res.Pages,
			Truncated: res.Truncated,
		}
		if err := r.archive.SaveRun(ctx, run, table); err != nil {
			log.Error().Err(err).Msg("Archiving run failed")
			sinkErrs = append(sinkErrs, fmt.Errorf("archive: %w", err))
		}
	}

	err = errors.Join(sinkErrs...)
	r.finish(ctx, req, res, err)
	return res, err
}

func (r *Runner) finish(ctx context.Context, req Request, res *Result, err error) {
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "failed"
	case res.Truncated:
		outcome = "truncated"
	}
	observability.Runs.WithLabelValues(outcome).Inc()

	log.Info().
		Str("run_id", res.RunID.String()).
		Str("result", outcome).
		Int("rows", res.Rows).
		Int("pages", res.Pages).
		Msg("Price crawl finished")

	if r.notifier == nil {
		return
	}
	summary := notifications.RunSummary{
		RunID:     res.RunID.String(),
		StartDate: req.Dates.Start,
		EndDate:   req.Dates.End,
		Rows:      res.Rows,
		Pages:     res.Pages,
		Truncated: res.Truncated,
		Files:     res.Files,
		SheetsTab: res.SheetsTab,
		Err:       err,
	}
	if res.Feishu != nil {
		summary.FeishuURL = res.Feishu.URL
	}
	r.notifier.NotifyRun(ctx, summary)
}

package cmd

import (
	"fmt"
	"strings"
	"time"

	"xinfadi_prices/internal/app"
	"xinfadi_prices/internal/export"
	"xinfadi_prices/internal/pipeline"
	"xinfadi_prices/internal/prices"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type runFlags struct {
	category   string
	product    string
	output     string
	filename   string
	format     string
	syncFeishu bool
	syncSheets bool
	maxPages   int
	pageSize   int
	delay      time.Duration
}

type dateFlags struct {
	today     bool
	yesterday bool
	days      int
	start     string
	end       string
}

var (
	fetchRun   runFlags
	fetchDates dateFlags
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch prices once and save them",
	Long: `Fetch one date range of prices, save it locally and optionally sync it.
Without a date flag today's prices are fetched.`,
	Example: `  xinfadi fetch --today
  xinfadi fetch --days 7 --category 蔬菜 --format both
  xinfadi fetch --start 2024-01-01 --end 2024-01-07 --sync-feishu`,
	RunE: runFetch,
}

func addRunFlags(cmd *cobra.Command, f *runFlags) {
	cmd.Flags().StringVar(&f.output, "output", "", "Output directory (default OUTPUT_DIR or ./data)")
	cmd.Flags().StringVar(&f.format, "format", "csv", "Output format: csv, xlsx or both")
	cmd.Flags().BoolVar(&f.syncFeishu, "sync-feishu", false, "Upload the table to a new Feishu spreadsheet")
	cmd.Flags().BoolVar(&f.syncSheets, "sync-sheets", false, "Mirror the table into a new Google Sheets tab")
	cmd.Flags().IntVar(&f.maxPages, "max-pages", 0, "Stop after this many pages (0 = no limit)")
	cmd.Flags().IntVar(&f.pageSize, "page-size", 0, "Rows per listing page (default FETCH_PAGE_SIZE or 100)")
	cmd.Flags().DurationVar(&f.delay, "delay", 0, "Pause between page requests (default FETCH_DELAY or 500ms)")
}

func init() {
	addRunFlags(fetchCmd, &fetchRun)
	fetchCmd.Flags().StringVar(&fetchRun.category, "category", "", "Only keep one category: "+strings.Join(prices.Categories, ", "))
	fetchCmd.Flags().StringVar(&fetchRun.product, "product", "", "Filter by product name")
	fetchCmd.Flags().StringVar(&fetchRun.filename, "filename", "", "Custom output file name")

	fetchCmd.Flags().BoolVar(&fetchDates.today, "today", false, "Fetch today's prices")
	fetchCmd.Flags().BoolVar(&fetchDates.yesterday, "yesterday", false, "Fetch yesterday's prices")
	fetchCmd.Flags().IntVar(&fetchDates.days, "days", 0, "Fetch the last N days, today included")
	fetchCmd.Flags().StringVar(&fetchDates.start, "start", "", "Start date (YYYY-MM-DD)")
	fetchCmd.Flags().StringVar(&fetchDates.end, "end", "", "End date (YYYY-MM-DD)")
	fetchCmd.MarkFlagsMutuallyExclusive("today", "yesterday", "days", "start")
	fetchCmd.MarkFlagsMutuallyExclusive("today", "yesterday", "days", "end")
}

// resolveDates picks the date range from the mutually exclusive date flags.
func resolveDates(f dateFlags, now time.Time) (pipeline.DateRange, error) {
	switch {
	case f.today:
		return pipeline.Today(now), nil
	case f.yesterday:
		return pipeline.Yesterday(now), nil
	case f.days != 0:
		return pipeline.LastNDays(now, f.days)
	case f.start != "" || f.end != "":
		return pipeline.ParseRange(f.start, f.end)
	default:
		log.Info().Msg("No date given, fetching today's prices")
		return pipeline.Today(now), nil
	}
}

// applyRunFlags lets command flags override the environment settings.
func applyRunFlags(s app.Settings, f runFlags) app.Settings {
	if f.output != "" {
		s.OutputDir = f.output
	}
	if f.pageSize > 0 {
		s.PageSize = f.pageSize
	}
	if f.delay > 0 {
		s.FetchDelay = f.delay
	}
	return s
}

func buildRequest(s app.Settings, f runFlags, dates pipeline.DateRange) (pipeline.Request, error) {
	format, err := export.ParseFormat(f.format)
	if err != nil {
		return pipeline.Request{}, err
	}
	if f.category != "" && !prices.IsCategory(f.category) {
		return pipeline.Request{}, fmt.Errorf("unknown category %q, expected one of %s", f.category, strings.Join(prices.Categories, ", "))
	}
	return pipeline.Request{
		Dates:       dates,
		Category:    f.category,
		ProductName: f.product,
		PageSize:    s.PageSize,
		MaxPages:    f.maxPages,
		Format:      format,
		Filename:    f.filename,
		SyncFeishu:  f.syncFeishu,
		SyncSheets:  f.syncSheets,
	}, nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s := applyRunFlags(settings, fetchRun)

	dates, err := resolveDates(fetchDates, time.Now())
	if err != nil {
		return err
	}
	req, err := buildRequest(s, fetchRun, dates)
	if err != nil {
		return err
	}

	runner, cleanup, err := app.BuildRunner(ctx, s, app.RunnerOptions{Feishu: req.SyncFeishu, Sheets: req.SyncSheets})
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := runner.Run(ctx, req)
	if res != nil {
		for _, f := range res.Files {
			fmt.Fprintf(cmd.OutOrStdout(), "已保存: %s (%d 条)\n", f, res.Rows)
		}
		if res.Feishu != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "飞书: %s\n", res.Feishu.URL)
		}
	}
	return err
}

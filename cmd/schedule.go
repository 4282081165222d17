package cmd

import (
	"context"
	"time"

	"xinfadi_prices/internal/app"
	"xinfadi_prices/internal/observability"
	"xinfadi_prices/internal/pipeline"
	"xinfadi_prices/internal/scheduler"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	scheduleRun runFlags
	scheduleAt  string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Fetch today's prices now and then every day at a fixed time",
	RunE:  runSchedule,
}

func init() {
	addRunFlags(scheduleCmd, &scheduleRun)
	scheduleCmd.Flags().StringVar(&scheduleAt, "at", "08:00", "Daily run time (HH:MM, local time)")
}

func runSchedule(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	at, err := scheduler.ParseClock(scheduleAt)
	if err != nil {
		return err
	}
	s := applyRunFlags(settings, scheduleRun)

	// validate flags once before the first run
	if _, err := buildRequest(s, scheduleRun, pipeline.Today(time.Now())); err != nil {
		return err
	}

	runner, cleanup, err := app.BuildRunner(ctx, s, app.RunnerOptions{Feishu: scheduleRun.syncFeishu, Sheets: scheduleRun.syncSheets})
	if err != nil {
		return err
	}
	defer cleanup()

	if s.MetricsPort != "" {
		observability.Start(ctx, s.MetricsPort)
	}

	log.Info().Str("at", at.String()).Bool("sync_feishu", scheduleRun.syncFeishu).Msg("Scheduled mode, press Ctrl+C to stop")

	scheduler.RunDaily(ctx, at, func(ctx context.Context) {
		req, _ := buildRequest(s, scheduleRun, pipeline.Today(time.Now()))
		if _, err := runner.Run(ctx, req); err != nil {
			log.Error().Err(err).Msg("Scheduled run failed")
		}
	})
	return nil
}

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"xinfadi_prices/internal/app"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var settings app.Settings

var rootCmd = &cobra.Command{
	Use:   "xinfadi",
	Short: "Crawl Xinfadi wholesale market prices",
	Long: `Crawls the Xinfadi wholesale market price listing, writes the rows to
CSV or Excel files and optionally uploads them to a Feishu spreadsheet.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		app.SetupEnvironment()
		settings = app.LoadSettings()
	},
}

// Execute runs the command line until done or interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("Command failed")
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(feishuCmd)
}

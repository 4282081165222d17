package app

import (
	"context"
	"fmt"

	"xinfadi_prices/internal/config"
	"xinfadi_prices/internal/feishu"
	"xinfadi_prices/internal/notifications"
	"xinfadi_prices/internal/pipeline"
	"xinfadi_prices/internal/sheets"
	"xinfadi_prices/internal/store"
	"xinfadi_prices/internal/xinfadi"

	"github.com/rs/zerolog/log"
)

// NewFetcher creates the listing client with the configured page retries.
func NewFetcher(s Settings) *xinfadi.Client {
	resilience := config.DefaultResilienceConfig.WithFetchRetries(s.FetchRetries)
	return xinfadi.NewClient(s.XinfadiBaseURL, s.FetchDelay, xinfadi.WithRetry(resilience.FetchPage))
}

// NewNotificationClient creates the ntfy client.
func NewNotificationClient(s Settings) *notifications.Client {
	log.Debug().
		Bool("enabled", s.NtfyEnabled).
		Str("base_url", s.NtfyURL).
		Str("topic", s.NtfyTopic).
		Msg("Initializing notification client")

	client := notifications.NewClient(s.NtfyURL, s.NtfyTopic, s.NtfyEnabled, s.NtfyPriority, config.DefaultResilienceConfig.Notify)
	if s.NtfyEnabled {
		log.Info().Str("topic", s.NtfyTopic).Msg("Notifications enabled")
	}
	return client
}

// NewTokenManager loads the Feishu credential file.
func NewTokenManager(s Settings) (*feishu.TokenManager, error) {
	configStore := feishu.NewConfigStore(s.FeishuConfigPath)
	return feishu.NewTokenManager(s.FeishuBaseURL, configStore, feishu.WithRedirectURL(s.RedirectURL()))
}

// NewFeishuClient returns the token manager and an API client bound to it.
func NewFeishuClient(s Settings) (*feishu.TokenManager, *feishu.Client, error) {
	tokens, err := NewTokenManager(s)
	if err != nil {
		return nil, nil, err
	}
	return tokens, feishu.NewClient(s.FeishuBaseURL, tokens), nil
}

// RunnerOptions selects which optional sinks BuildRunner wires.
type RunnerOptions struct {
	Feishu bool
	Sheets bool
}

// BuildRunner wires a pipeline runner from settings. The returned cleanup
// closes whatever BuildRunner opened.
func BuildRunner(ctx context.Context, s Settings, ro RunnerOptions) (*pipeline.Runner, func(), error) {
	opts := []pipeline.Option{pipeline.WithNotifier(NewNotificationClient(s))}
	cleanup := func() {}

	if ro.Feishu {
		tokens, client, err := NewFeishuClient(s)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to initialize feishu: %w", err)
		}
		opts = append(opts, pipeline.WithFeishu(client, tokens.FolderToken()))
	}

	if ro.Sheets {
		if s.GoogleSpreadsheetID == "" {
			return nil, cleanup, fmt.Errorf("GOOGLE_SPREADSHEET_ID is required for --sync-sheets")
		}
		client, err := sheets.NewClient(ctx, s.GoogleCredentialsFile)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to create sheets client: %w", err)
		}
		opts = append(opts, pipeline.WithSheets(client, s.GoogleSpreadsheetID))
	}

	if s.DatabaseURL != "" {
		archive, err := store.Open(ctx, s.DatabaseURL)
		if err != nil {
			return nil, cleanup, err
		}
		opts = append(opts, pipeline.WithArchive(archive))
		cleanup = archive.Close
	}

	return pipeline.NewRunner(NewFetcher(s), s.OutputDir, opts...), cleanup, nil
}

package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"xinfadi_prices/internal/feishu"
	"xinfadi_prices/internal/xinfadi"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupEnvironment loads .env file and configures zerolog output and log level.
func SetupEnvironment() {
	// Load .env file if it exists
	err := godotenv.Load()

	if os.Getenv("ENV") == "production" {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = log.Output(os.Stderr)
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	levelStr := strings.ToLower(os.Getenv("LOGLEVEL"))
	switch levelStr {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "disabled":
		zerolog.SetGlobalLevel(zerolog.Disabled)
	case "":
		if os.Getenv("ENV") == "production" {
			zerolog.SetGlobalLevel(zerolog.WarnLevel)
		} else {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		}
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		log.Warn().Msgf("Unknown LOGLEVEL '%s', defaulting to info.", levelStr)
	}

	// wait until now to report on the .env file so we have the chance to set up logging first
	if err == nil {
		log.Debug().Msg("Loaded environment variables from .env file.")
	} else {
		log.Debug().Msg("No .env file found or error loading .env file; proceeding with existing environment variables.")
	}
}

// GetEnvWithDefault fetches an environment variable with a default fallback.
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Msg("Invalid integer, using default")
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Msg("Invalid duration, using default")
		return defaultValue
	}
	return d
}

// Settings is everything the commands read from the environment.
type Settings struct {
	OutputDir string

	XinfadiBaseURL string
	PageSize       int
	FetchDelay     time.Duration
	FetchRetries   int

	FeishuConfigPath   string
	FeishuBaseURL      string
	FeishuRedirectAddr string

	NtfyEnabled  bool
	NtfyURL      string
	NtfyTopic    string
	NtfyPriority string

	DatabaseURL string
	MetricsPort string

	GoogleCredentialsFile string
	GoogleSpreadsheetID   string
}

// RedirectURL is the loopback address Feishu sends the user back to.
func (s Settings) RedirectURL() string {
	return "http://" + s.FeishuRedirectAddr + feishu.CallbackPath
}

func LoadSettings() Settings {
	s := Settings{
		OutputDir: GetEnvWithDefault("OUTPUT_DIR", "./data"),

		XinfadiBaseURL: GetEnvWithDefault("XINFADI_BASE_URL", xinfadi.DefaultBaseURL),
		PageSize:       getEnvInt("FETCH_PAGE_SIZE", xinfadi.DefaultPageSize),
		FetchDelay:     getEnvDuration("FETCH_DELAY", xinfadi.DefaultDelay),
		FetchRetries:   getEnvInt("FETCH_RETRIES", 0),

		FeishuConfigPath:   GetEnvWithDefault("FEISHU_CONFIG", "./feishu_config.json"),
		FeishuBaseURL:      GetEnvWithDefault("FEISHU_BASE_URL", feishu.DefaultBaseURL),
		FeishuRedirectAddr: GetEnvWithDefault("FEISHU_REDIRECT_ADDR", "localhost:9000"),

		NtfyEnabled:  GetEnvWithDefault("NTFY_ENABLED", "false") == "true",
		NtfyURL:      GetEnvWithDefault("NTFY_URL", "https://ntfy.sh"),
		NtfyTopic:    GetEnvWithDefault("NTFY_TOPIC", "xinfadi-prices"),
		NtfyPriority: os.Getenv("NTFY_PRIORITY"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		MetricsPort: os.Getenv("METRICS_PORT"),

		GoogleCredentialsFile: GetEnvWithDefault("GOOGLE_CREDENTIALS_FILE", "credentials.json"),
		GoogleSpreadsheetID:   os.Getenv("GOOGLE_SPREADSHEET_ID"),
	}

	log.Debug().
		Str("output_dir", s.OutputDir).
		Int("page_size", s.PageSize).
		Dur("delay", s.FetchDelay).
		Int("fetch_retries", s.FetchRetries).
		Str("feishu_config", s.FeishuConfigPath).
		Bool("ntfy", s.NtfyEnabled).
		Bool("archive", s.DatabaseURL != "").
		Msg("Loaded settings")

	return s
}

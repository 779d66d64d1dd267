package app

import (
	"context"
	"os"
	"strings"
	"time"

	"email_forwarder/internal/archive"
	"email_forwarder/internal/config"
	"email_forwarder/internal/forward"
	"email_forwarder/internal/mailbox"
	"email_forwarder/internal/notifications"
	"email_forwarder/internal/sheets"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupEnvironment loads .env file and configures zerolog output and log level.
func SetupEnvironment() {
	// Load .env file if it exists
	err := godotenv.Load()

	// Configure logging
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
	case "fatal":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	case "panic":
		zerolog.SetGlobalLevel(zerolog.PanicLevel)
	case "disabled":
		zerolog.SetGlobalLevel(zerolog.Disabled)
	case "":
		// Default based on environment
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

// Clients are the adapters the forwarder needs to reach the outside world.
type Clients struct {
	Config    config.Store
	Mailbox   *mailbox.IMAPStore
	Ledger    *sheets.Client
	Archive   *archive.DriveStore
	Transport *forward.SMTPTransport
	Notifier  *notifications.Client
}

// InitializeClients builds every adapter from the environment. Google
// credentials are read from GOOGLE_CREDENTIALS_FILE.
func InitializeClients(ctx context.Context, resilience config.ResilienceConfig) *Clients {
	log.Debug().Msg("Initializing clients")
	source := GetEnvWithDefault("CONFIG_SOURCE", "sqlite:email_forwarder.db")
	credsFile := GetEnvWithDefault("GOOGLE_CREDENTIALS_FILE", "credentials.json")

	store, err := config.OpenStore(source)
	if err != nil {
		log.Fatal().Err(err).Str("source", source).Msg("Failed to open configuration store")
	}

	sheetsClient, err := sheets.NewClient(ctx, credsFile, resilience)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create sheets client")
	}

	clients := &Clients{
		Config:    store,
		Mailbox:   mailbox.NewIMAPStore(30 * time.Second),
		Ledger:    sheetsClient,
		Transport: forward.NewSMTPTransport(),
		Notifier:  InitializeNotificationClient(),
	}

	if GetEnvWithDefault("ARCHIVE_ENABLED", "true") == "true" {
		driveStore, err := archive.NewDriveStore(ctx, credsFile, resilience.Archive)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create drive client")
		}
		clients.Archive = driveStore
	} else {
		log.Info().Msg("Email archiving disabled")
	}

	log.Debug().Str("config_source", source).Msg("Clients initialized successfully")
	return clients
}

// InitializeNotificationClient creates and returns the notification client
func InitializeNotificationClient() *notifications.Client {
	enabled := GetEnvWithDefault("NTFY_ENABLED", "false") == "true"
	baseURL := GetEnvWithDefault("NTFY_URL", "https://ntfy.sh")
	topic := GetEnvWithDefault("NTFY_TOPIC", "email-forwarder")
	priority := GetEnvWithDefault("NTFY_PRIORITY", "default")

	log.Debug().
		Bool("enabled", enabled).
		Str("base_url", baseURL).
		Str("topic", topic).
		Msg("Initializing notification client")

	client := notifications.NewClient(notifications.Config{
		BaseURL:    baseURL,
		Topic:      topic,
		Enabled:    enabled,
		Priority:   priority,
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
	})

	if enabled {
		log.Info().Str("topic", topic).Msg("Notifications enabled")
	} else {
		log.Debug().Msg("Notifications disabled")
	}

	return client
}

// PollInterval reads POLL_INTERVAL as a Go duration, defaulting to five seconds.
func PollInterval() time.Duration {
	raw := GetEnvWithDefault("POLL_INTERVAL", "5s")
	interval, err := time.ParseDuration(raw)
	if err != nil || interval <= 0 {
		log.Warn().Str("value", raw).Msg("Invalid POLL_INTERVAL, defaulting to 5s")
		return 5 * time.Second
	}
	return interval
}

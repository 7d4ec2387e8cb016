// Package config defines the configuration contract and handles loading and validating environment configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // embedded zoneinfo for SCHEDULE_TIMEZONE

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

const (
	// Canonical environment variable keys.
	KeyTelegramToken     = "TELEGRAM_TOKEN"
	KeyBotOwner          = "BOT_OWNER"
	KeyMongoURI          = "MONGO_URI"
	KeyMongoDB           = "MONGO_DB"
	KeyAppEnv            = "APP_ENV"
	KeyLogLevel          = "LOG_LEVEL"
	KeyHTTPPort          = "HTTP_PORT"
	KeyRefreshSchedule   = "REFRESH_SCHEDULE"
	KeyNotifySchedule    = "NOTIFY_SCHEDULE"
	KeyScheduleTimezone  = "SCHEDULE_TIMEZONE"
	KeyLookupTimeout     = "LOOKUP_TIMEOUT"
	KeyLookupConcurrency = "LOOKUP_CONCURRENCY"
	KeyNotifyBatchLimit  = "NOTIFY_BATCH_LIMIT"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Defaults for optional settings.
	DefaultAppEnv            = EnvProduction
	DefaultLogLevel          = "info"
	DefaultHTTPPort          = 8080
	DefaultRefreshSchedule   = "0 0 * * *"
	DefaultNotifySchedule    = "0 12 * * *"
	DefaultScheduleTimezone  = "UTC"
	DefaultLookupTimeout     = 15 * time.Second
	DefaultLookupConcurrency = 8
	DefaultNotifyBatchLimit  = 1000

	// Recommended database names by environment.
	DefaultMongoDBProd = "domain_watch"
	DefaultMongoDBDev  = "domain_watch_dev"
)

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the bot must refuse to start without this value
	Default     string // default when unset (empty when required)
	Description string // what the variable controls
	Notes       string // extra guidance or policies
}

// Contract enumerates the authoritative configuration keys for the bot.
// .env loading is only permitted when APP_ENV=development; production must rely
// on environment variables supplied by the runtime.
var Contract = []VarSpec{
	{
		Key:         KeyTelegramToken,
		Example:     "123:ABC",
		Required:    true,
		Description: "Telegram Bot Token issued by BotFather.",
	},
	{
		Key:         KeyBotOwner,
		Example:     "123456789",
		Required:    true,
		Description: "Telegram user_id of the bot owner; allowed to run /stats.",
	},
	{
		Key:         KeyMongoURI,
		Example:     "mongodb://localhost:27017",
		Required:    true,
		Description: "MongoDB connection string.",
		Notes:       "Must use the mongodb:// or mongodb+srv:// scheme.",
	},
	{
		Key:         KeyMongoDB,
		Example:     DefaultMongoDBProd + " / " + DefaultMongoDBDev,
		Required:    true,
		Description: "MongoDB database name.",
		Notes:       "Recommended: production=" + DefaultMongoDBProd + ", development=" + DefaultMongoDBDev + ".",
	},
	{
		Key:         KeyAppEnv,
		Example:     EnvDevelopment + " / " + EnvProduction,
		Default:     DefaultAppEnv,
		Description: "Runtime environment; controls log format and dotenv usage.",
		Notes:       "Load .env files only when APP_ENV=" + EnvDevelopment + ".",
	},
	{
		Key:         KeyLogLevel,
		Example:     DefaultLogLevel,
		Default:     DefaultLogLevel,
		Description: "Overrides default log level.",
	},
	{
		Key:         KeyHTTPPort,
		Example:     strconv.Itoa(DefaultHTTPPort),
		Default:     strconv.Itoa(DefaultHTTPPort),
		Description: "HTTP health/metrics port.",
	},
	{
		Key:         KeyRefreshSchedule,
		Example:     DefaultRefreshSchedule,
		Default:     DefaultRefreshSchedule,
		Description: "Cron spec for re-querying domains that expire within 90 days.",
	},
	{
		Key:         KeyNotifySchedule,
		Example:     DefaultNotifySchedule,
		Default:     DefaultNotifySchedule,
		Description: "Cron spec for the expiry notification scan.",
	},
	{
		Key:         KeyScheduleTimezone,
		Example:     "Europe/Moscow",
		Default:     DefaultScheduleTimezone,
		Description: "IANA time zone the cron specs are evaluated in.",
	},
	{
		Key:         KeyLookupTimeout,
		Example:     DefaultLookupTimeout.String(),
		Default:     DefaultLookupTimeout.String(),
		Description: "Timeout applied to a single registry lookup.",
	},
	{
		Key:         KeyLookupConcurrency,
		Example:     strconv.Itoa(DefaultLookupConcurrency),
		Default:     strconv.Itoa(DefaultLookupConcurrency),
		Description: "Maximum concurrent lookups or deliveries within one run.",
	},
	{
		Key:         KeyNotifyBatchLimit,
		Example:     strconv.Itoa(DefaultNotifyBatchLimit),
		Default:     strconv.Itoa(DefaultNotifyBatchLimit),
		Description: "Maximum number of domains inspected per notification run.",
	},
}

// Config mirrors resolved configuration values after loading.
type Config struct {
	TelegramToken     string
	BotOwnerID        int64
	MongoURI          string
	MongoDB           string
	AppEnv            string
	LogLevel          string
	HTTPPort          int
	RefreshSchedule   string
	NotifySchedule    string
	ScheduleTimezone  string
	LookupTimeout     time.Duration
	LookupConcurrency int
	NotifyBatchLimit  int
}

// Load resolves configuration from the environment (with optional dotenv in development).
func Load() (Config, error) {
	appEnv, err := resolveAppEnv()
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:            firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), appEnv),
		TelegramToken:     strings.TrimSpace(os.Getenv(KeyTelegramToken)),
		MongoURI:          strings.TrimSpace(os.Getenv(KeyMongoURI)),
		MongoDB:           strings.TrimSpace(os.Getenv(KeyMongoDB)),
		LogLevel:          firstNonEmpty(os.Getenv(KeyLogLevel), DefaultLogLevel),
		HTTPPort:          DefaultHTTPPort,
		RefreshSchedule:   firstNonEmpty(os.Getenv(KeyRefreshSchedule), DefaultRefreshSchedule),
		NotifySchedule:    firstNonEmpty(os.Getenv(KeyNotifySchedule), DefaultNotifySchedule),
		ScheduleTimezone:  firstNonEmpty(os.Getenv(KeyScheduleTimezone), DefaultScheduleTimezone),
		LookupTimeout:     DefaultLookupTimeout,
		LookupConcurrency: DefaultLookupConcurrency,
		NotifyBatchLimit:  DefaultNotifyBatchLimit,
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}

	missing := make([]string, 0)

	if cfg.TelegramToken == "" {
		missing = append(missing, KeyTelegramToken)
	}

	ownerRaw := strings.TrimSpace(os.Getenv(KeyBotOwner))
	if ownerRaw == "" {
		missing = append(missing, KeyBotOwner)
	} else {
		ownerID, parseErr := strconv.ParseInt(ownerRaw, 10, 64)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyBotOwner, parseErr)
		}
		cfg.BotOwnerID = ownerID
	}

	if cfg.MongoURI == "" {
		missing = append(missing, KeyMongoURI)
	}

	if cfg.MongoDB == "" {
		missing = append(missing, KeyMongoDB)
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	if err := validateMongoURI(cfg.MongoURI); err != nil {
		return Config{}, err
	}

	if cfg.HTTPPort, err = positiveInt(KeyHTTPPort, DefaultHTTPPort); err != nil {
		return Config{}, err
	}
	if cfg.LookupConcurrency, err = positiveInt(KeyLookupConcurrency, DefaultLookupConcurrency); err != nil {
		return Config{}, err
	}
	if cfg.NotifyBatchLimit, err = positiveInt(KeyNotifyBatchLimit, DefaultNotifyBatchLimit); err != nil {
		return Config{}, err
	}

	if raw := strings.TrimSpace(os.Getenv(KeyLookupTimeout)); raw != "" {
		timeout, parseErr := time.ParseDuration(raw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyLookupTimeout, parseErr)
		}
		if timeout <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyLookupTimeout)
		}
		cfg.LookupTimeout = timeout
	}

	if _, err := cron.ParseStandard(cfg.RefreshSchedule); err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", KeyRefreshSchedule, err)
	}
	if _, err := cron.ParseStandard(cfg.NotifySchedule); err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", KeyNotifySchedule, err)
	}
	if _, err := time.LoadLocation(cfg.ScheduleTimezone); err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", KeyScheduleTimezone, err)
	}

	return cfg, nil
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// Location returns the time zone the schedules run in, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(firstNonEmpty(c.ScheduleTimezone, DefaultScheduleTimezone))
	if err != nil {
		return time.UTC
	}
	return loc
}

func resolveAppEnv() (string, error) {
	if explicit := normalizeEnv(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalizeEnv(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func validateAppEnv(appEnv string) error {
	if appEnv == EnvDevelopment || appEnv == EnvProduction {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
}

func validateMongoURI(uri string) error {
	if strings.HasPrefix(uri, "mongodb://") || strings.HasPrefix(uri, "mongodb+srv://") {
		return nil
	}

	return fmt.Errorf("invalid %s: must start with mongodb:// or mongodb+srv://", KeyMongoURI)
}

func positiveInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}

	return value, nil
}

func normalizeEnv(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}

package config

import (
	"fmt"
	"net/url"
	"strings"
)

const tokenVisiblePrefix = 4

// FormatRedacted renders the resolved configuration with secrets masked so it
// can be printed by --config-only or logged at startup.
func FormatRedacted(cfg Config) string {
	lines := []string{
		"telegram_token: " + redactToken(cfg.TelegramToken),
		fmt.Sprintf("bot_owner: %d", cfg.BotOwnerID),
		"mongo_uri: " + redactMongoURI(cfg.MongoURI),
		"mongo_db: " + cfg.MongoDB,
		"app_env: " + cfg.AppEnv,
		"log_level: " + cfg.LogLevel,
		fmt.Sprintf("http_port: %d", cfg.HTTPPort),
		"refresh_schedule: " + cfg.RefreshSchedule,
		"notify_schedule: " + cfg.NotifySchedule,
		"schedule_timezone: " + cfg.ScheduleTimezone,
		"lookup_timeout: " + cfg.LookupTimeout.String(),
		fmt.Sprintf("lookup_concurrency: %d", cfg.LookupConcurrency),
		fmt.Sprintf("notify_batch_limit: %d", cfg.NotifyBatchLimit),
	}

	return strings.Join(lines, "\n")
}

func redactToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= tokenVisiblePrefix {
		return "redacted"
	}

	return token[:tokenVisiblePrefix] + "...redacted"
}

func redactMongoURI(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "redacted"
	}
	parsed.User = nil

	return parsed.String()
}

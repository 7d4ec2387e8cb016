// Package logging sets up the bot's structured logrus logger and the field
// conventions shared by every component: an "event" on each line, plus
// chat, user and domain identifiers where a line is about one of them.
package logging

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tg_domain_watch_bot/internal/config"
)

const serviceName = "domain-watch-bot"

var baseLogger *logrus.Entry

// Fields is a shorthand alias for structured log fields.
type Fields = logrus.Fields

// Context names the subject of a log line. Zero-valued members are omitted.
type Context struct {
	UserID int64
	ChatID int64
	Domain string
	Event  string
}

// Fields renders the non-empty members under their log keys.
func (c Context) Fields() Fields {
	fields := Fields{}
	if c.UserID != 0 {
		fields["user_id"] = c.UserID
	}
	if c.ChatID != 0 {
		fields["chat_id"] = c.ChatID
	}
	if domain := strings.ToLower(strings.TrimSpace(c.Domain)); domain != "" {
		fields["domain"] = domain
	}
	if event := strings.TrimSpace(c.Event); event != "" {
		fields["event"] = event
	}
	return fields
}

// On attaches the context to entry, or to the base logger when entry is nil.
func (c Context) On(entry *logrus.Entry) *logrus.Entry {
	if entry == nil {
		entry = ensureLogger()
	}
	return entry.WithFields(c.Fields())
}

// Setup builds the process logger from cfg: JSON in production, text in
// development, with service and env on every line.
func Setup(cfg config.Config) (*logrus.Entry, error) {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	baseLogger = newEntry(level, cfg.AppEnv)
	return baseLogger, nil
}

// Logger returns the configured base logger, or a production default when
// Setup has not run yet (early boot errors).
func Logger() *logrus.Entry {
	return ensureLogger()
}

// Component scopes entry to a named component. A nil entry falls back to the
// base logger.
func Component(entry *logrus.Entry, name string) *logrus.Entry {
	if entry == nil {
		entry = ensureLogger()
	}
	return entry.WithField("component", name)
}

// WithContext returns the base logger enriched with ctx.
func WithContext(ctx Context) *logrus.Entry {
	return ctx.On(nil)
}

// Info logs on the base logger. Used before components exist.
func Info(msg string, fields Fields) {
	ensureLogger().WithFields(fields).Info(msg)
}

// Error logs on the base logger. Used before components exist.
func Error(msg string, fields Fields) {
	ensureLogger().WithFields(fields).Error(msg)
}

func ensureLogger() *logrus.Entry {
	if baseLogger == nil {
		baseLogger = newEntry(logrus.InfoLevel, config.DefaultAppEnv)
	}
	return baseLogger
}

func newEntry(level logrus.Level, appEnv string) *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetLevel(level)
	logger.SetFormatter(formatterForEnv(appEnv))

	return logger.WithFields(Fields{
		"service": serviceName,
		"env":     appEnv,
	})
}

func formatterForEnv(appEnv string) logrus.Formatter {
	fieldMap := logrus.FieldMap{
		logrus.FieldKeyTime:  "ts",
		logrus.FieldKeyMsg:   "msg",
		logrus.FieldKeyLevel: "level",
	}

	if appEnv == config.EnvDevelopment {
		return &logrus.TextFormatter{
			FullTimestamp:          true,
			TimestampFormat:        time.RFC3339Nano,
			FieldMap:               fieldMap,
			DisableLevelTruncation: true,
		}
	}

	return &logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap:        fieldMap,
	}
}

func parseLevel(value string) (logrus.Level, error) {
	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("invalid log level %q: %w", value, err)
	}

	return level, nil
}

// resetLogger clears the cached logger; used in tests.
func resetLogger() {
	baseLogger = nil
}

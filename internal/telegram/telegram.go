// Package telegram hosts the Telegram client, command routing, and message
// delivery.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_domain_watch_bot/internal/config"
	"tg_domain_watch_bot/internal/domain"
	"tg_domain_watch_bot/internal/feature/watch"
	"tg_domain_watch_bot/internal/logging"
)

type botRunner interface {
	Start(ctx context.Context)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

var (
	defaultAllowedUpdates = bot.AllowedUpdates{
		"message",
		"edited_message",
	}

	createBot = func(token string, options ...bot.Option) (botRunner, error) {
		return bot.New(token, options...)
	}
)

// commandTimeout bounds a single command, including its registry lookups.
const commandTimeout = 2 * time.Minute

// Watcher executes the domain commands.
type Watcher interface {
	Watch(ctx context.Context, profile domain.Profile, names []string) (watch.Result, error)
	Tracking(ctx context.Context, chatID int64, now time.Time) ([]watch.Row, error)
	Info(ctx context.Context, name string) (string, error)
}

// SubscriberFetcher loads subscriber records for role checks.
type SubscriberFetcher interface {
	FindByChatID(ctx context.Context, chatID int64) (domain.Subscriber, error)
}

// StatsProvider reports collection sizes for /stats.
type StatsProvider interface {
	CountSubscribers(ctx context.Context) (int64, error)
	CountDomains(ctx context.Context) (int64, error)
	CountSubscriptions(ctx context.Context) (int64, error)
}

// MongoChecker verifies database connectivity for /stats.
type MongoChecker interface {
	Ping(ctx context.Context) error
}

// Client wraps the Telegram bot instance, its command dependencies and
// logging.
type Client struct {
	bot          botRunner
	logger       *logrus.Entry
	watcher      Watcher
	subscribers  SubscriberFetcher
	stats        StatsProvider
	mongo        MongoChecker
	processStart time.Time
	now          func() time.Time
}

// Option customizes the Client.
type Option func(*Client)

// WithWatcher wires the /watch, /tracking and /info commands.
func WithWatcher(w Watcher) Option {
	return func(c *Client) {
		c.watcher = w
	}
}

// WithSubscriberFetcher wires role lookups for owner-only commands.
func WithSubscriberFetcher(f SubscriberFetcher) Option {
	return func(c *Client) {
		c.subscribers = f
	}
}

// WithStatsProvider wires the counters reported by /stats.
func WithStatsProvider(p StatsProvider) Option {
	return func(c *Client) {
		c.stats = p
	}
}

// WithMongoChecker wires the Mongo status reported by /stats.
func WithMongoChecker(m MongoChecker) Option {
	return func(c *Client) {
		c.mongo = m
	}
}

// WithProcessStart sets the instant uptime is measured from.
func WithProcessStart(start time.Time) Option {
	return func(c *Client) {
		if !start.IsZero() {
			c.processStart = start
		}
	}
}

// NewClient initializes the Telegram bot with long polling and the command
// handler.
func NewClient(cfg config.Config, logger *logrus.Entry, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.TelegramToken) == "" {
		return nil, errors.New("telegram token is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	client := &Client{
		logger:       logger,
		processStart: time.Now(),
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	tgBot, err := createBot(cfg.TelegramToken,
		bot.WithAllowedUpdates(defaultAllowedUpdates),
		bot.WithDefaultHandler(client.defaultHandler()),
		bot.WithErrorsHandler(errorHandler(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}
	client.bot = tgBot

	return client, nil
}

// Start begins receiving updates via long polling until the context is canceled.
func (c *Client) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger.WithFields(logging.Fields{
		"event":           "telegram_listen",
		"allowed_updates": defaultAllowedUpdates,
	}).Info("starting telegram long polling")

	c.bot.Start(ctx)

	c.logger.WithField("event", "telegram_stopped").Info("telegram polling stopped")
}

// SendText delivers text to chatID, split into messages Telegram accepts.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	if c == nil || c.bot == nil {
		return errors.New("telegram client is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if chatID == 0 {
		return errors.New("chat id is required")
	}

	for _, chunk := range splitMessage(text, maxMessageLength) {
		if _, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   chunk,
		}); err != nil {
			return fmt.Errorf("send message to %d: %w", chatID, err)
		}
	}

	return nil
}

type updateMeta struct {
	userID     int64
	chatID     int64
	text       string
	updateType string
}

func (c *Client) defaultHandler() bot.HandlerFunc {
	return func(ctx context.Context, _ *bot.Bot, update *models.Update) {
		if update == nil {
			return
		}

		meta := extractUpdateMeta(update)

		fields := logging.Fields{
			"event":       "telegram_update",
			"update_type": meta.updateType,
		}

		if meta.text != "" {
			fields["text"] = meta.text
		}
		if meta.userID != 0 {
			fields["user_id"] = meta.userID
		}
		if meta.chatID != 0 {
			fields["chat_id"] = meta.chatID
		}

		c.logger.WithFields(fields).Info("telegram update received")

		if update.Message != nil {
			c.handleMessage(ctx, update.Message)
		}
	}
}

func extractUpdateMeta(update *models.Update) updateMeta {
	switch {
	case update.Message != nil:
		return updateMeta{
			userID:     userID(update.Message.From),
			chatID:     chatID(&update.Message.Chat),
			text:       strings.TrimSpace(update.Message.Text),
			updateType: "message",
		}
	case update.EditedMessage != nil:
		return updateMeta{
			userID:     userID(update.EditedMessage.From),
			chatID:     chatID(&update.EditedMessage.Chat),
			text:       strings.TrimSpace(update.EditedMessage.Text),
			updateType: "edited_message",
		}
	default:
		return updateMeta{updateType: "unknown"}
	}
}

func errorHandler(logger *logrus.Entry) bot.ErrorsHandler {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(err error) {
		if err == nil {
			return
		}

		logger.WithField("event", "telegram_error").WithError(err).Error("telegram polling error")
	}
}

func userID(user *models.User) int64 {
	if user == nil {
		return 0
	}

	return user.ID
}

func chatID(chat *models.Chat) int64 {
	if chat == nil {
		return 0
	}

	return chat.ID
}

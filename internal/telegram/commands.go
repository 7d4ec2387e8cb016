package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot/models"

	"tg_domain_watch_bot/internal/domain"
	"tg_domain_watch_bot/internal/feature/watch"
	"tg_domain_watch_bot/internal/logging"
)

const textHelp = "I watch domain expiry dates and warn you before a domain is lost.\n\n" +
	"/watch google.com example.org - track one or more domains\n" +
	"/tracking - list tracked domains with days to expiry and days until release\n" +
	"/info google.com - show the raw registry record"

const (
	textInfoUsage      = "Not found domain. Please write domain like google.com"
	textWatchUsage     = `Not found domain. Please write domain like "/watch google.com"`
	textNoTracked      = `You don't have any domains. Please add someone with "/watch anydomain1.com anydomain2.com ..." command.`
	textUnknownCommand = "Unknown command. Send /help to see what I can do."
	textInternalError  = "Something went wrong, please try again later."
	textOwnerOnly      = "This command is available to the bot owner only."
	textUnavailable    = "This command is not available right now."
)

type command struct {
	name string
	args []string
}

// parseCommand splits "/name@bot arg1 arg2" into a lower-cased name and its
// arguments. ok is false for text that is not a command.
func parseCommand(text string) (command, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return command{}, false
	}

	name := strings.TrimPrefix(fields[0], "/")
	if at := strings.Index(name, "@"); at >= 0 {
		name = name[:at]
	}
	if name == "" {
		return command{}, false
	}

	return command{name: strings.ToLower(name), args: fields[1:]}, true
}

func (c *Client) handleMessage(ctx context.Context, msg *models.Message) {
	cmd, ok := parseCommand(msg.Text)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	logger := c.logger.WithFields(logging.Fields{
		"event":   "telegram_command",
		"chat_id": msg.Chat.ID,
		"command": cmd.name,
	})
	logger.Debug("handling command")

	var reply string
	switch cmd.name {
	case "start", "help":
		reply = textHelp
	case "watch":
		reply = c.handleWatch(ctx, msg, cmd)
	case "tracking":
		reply = c.handleTracking(ctx, msg)
	case "info":
		reply = c.handleInfo(ctx, msg, cmd)
	case "stats":
		reply = c.handleStats(ctx, msg)
	default:
		reply = textUnknownCommand
	}

	if err := c.SendText(ctx, msg.Chat.ID, reply); err != nil {
		logger.WithField("event", "telegram_reply_failed").WithError(err).Warn("cannot send reply")
	}
}

func (c *Client) handleWatch(ctx context.Context, msg *models.Message, cmd command) string {
	if c.watcher == nil {
		return textUnavailable
	}

	names := extractDomains(msg, cmd.args)
	if len(names) == 0 {
		return textWatchUsage
	}

	result, err := c.watcher.Watch(ctx, profileFrom(msg), names)
	if err != nil {
		c.logger.WithFields(logging.Fields{
			"event":   "watch_failed",
			"chat_id": msg.Chat.ID,
		}).WithError(err).Error("watch command failed")
		return textInternalError
	}

	return renderWatch(result)
}

func (c *Client) handleTracking(ctx context.Context, msg *models.Message) string {
	if c.watcher == nil {
		return textUnavailable
	}

	rows, err := c.watcher.Tracking(ctx, msg.Chat.ID, c.now())
	if err != nil {
		if errors.Is(err, watch.ErrNoTrackedDomains) {
			return textNoTracked
		}
		c.logger.WithFields(logging.Fields{
			"event":   "tracking_failed",
			"chat_id": msg.Chat.ID,
		}).WithError(err).Error("tracking command failed")
		return textInternalError
	}

	return renderTracking(rows)
}

func (c *Client) handleInfo(ctx context.Context, msg *models.Message, cmd command) string {
	if c.watcher == nil {
		return textUnavailable
	}

	names := extractDomains(msg, cmd.args)
	if len(names) == 0 {
		return textInfoUsage
	}

	raw, err := c.watcher.Info(ctx, names[0])
	if err != nil {
		return fmt.Sprintf("Cannot get info about %s: %v", names[0], err)
	}
	if strings.TrimSpace(raw) == "" {
		return fmt.Sprintf("Registry returned an empty answer for %s", names[0])
	}

	return raw
}

func (c *Client) handleStats(ctx context.Context, msg *models.Message) string {
	if c.subscribers == nil || c.stats == nil {
		return textUnavailable
	}

	subscriber, err := c.subscribers.FindByChatID(ctx, msg.Chat.ID)
	if err != nil && !errors.Is(err, domain.ErrSubscriberNotFound) {
		c.logger.WithFields(logging.Fields{
			"event":   "stats_role_failed",
			"chat_id": msg.Chat.ID,
		}).WithError(err).Error("cannot load subscriber role")
		return textInternalError
	}
	if subscriber.Role != domain.RoleOwner {
		return textOwnerOnly
	}

	mongoStatus := "ok"
	if c.mongo == nil {
		mongoStatus = "unknown"
	} else if err := c.mongo.Ping(ctx); err != nil {
		mongoStatus = "error"
	}

	lines := []string{
		"uptime: " + c.now().Sub(c.processStart).Truncate(time.Second).String(),
		"mongo: " + mongoStatus,
	}
	for _, counter := range []struct {
		label string
		count func(context.Context) (int64, error)
	}{
		{"subscribers", c.stats.CountSubscribers},
		{"domains", c.stats.CountDomains},
		{"subscriptions", c.stats.CountSubscriptions},
	} {
		value, err := counter.count(ctx)
		if err != nil {
			lines = append(lines, counter.label+": error")
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %d", counter.label, value))
	}

	return strings.Join(lines, "\n")
}

func profileFrom(msg *models.Message) domain.Profile {
	profile := domain.Profile{ChatID: msg.Chat.ID}
	if msg.From != nil {
		profile.Username = msg.From.Username
		profile.FirstName = msg.From.FirstName
		profile.LastName = msg.From.LastName
		profile.LanguageCode = msg.From.LanguageCode
	}
	return profile
}

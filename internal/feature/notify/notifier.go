// Package notify warns subscribers about domains approaching the end of their
// redemption window.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"

	"tg_domain_watch_bot/internal/domain"
	"tg_domain_watch_bot/internal/logging"
	"tg_domain_watch_bot/internal/metrics"
)

const (
	// DefaultBatchLimit caps how many domains one run considers.
	DefaultBatchLimit = 1000
	// DefaultConcurrency bounds concurrent per-domain fan-out.
	DefaultConcurrency = 8
)

type domainStore interface {
	FindExpiringBefore(ctx context.Context, threshold time.Time, limit int64, desc bool) ([]domain.Domain, error)
}

type subscriberStore interface {
	FindByTrackedDomain(ctx context.Context, domainID primitive.ObjectID) ([]domain.Subscriber, error)
}

// Messenger hands a text message to the chat transport.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// Report summarizes one notification run.
type Report struct {
	Candidates int
	Due        int
	Sent       int
	Failed     int
}

// Notifier runs the notification pass.
type Notifier struct {
	domains     domainStore
	subscribers subscriberStore
	messenger   Messenger
	limit       int64
	concurrency int
	metrics     *metrics.Metrics
	logger      *logrus.Entry
}

// Option customizes the Notifier.
type Option func(*Notifier)

// WithBatchLimit sets how many domains, latest expiry first, one run considers.
func WithBatchLimit(limit int) Option {
	return func(n *Notifier) {
		if limit > 0 {
			n.limit = int64(limit)
		}
	}
}

// WithConcurrency bounds how many domains are processed at once.
func WithConcurrency(c int) Option {
	return func(n *Notifier) {
		if c > 0 {
			n.concurrency = c
		}
	}
}

// WithMetrics records delivery outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Notifier) {
		n.metrics = m
	}
}

// NewNotifier constructs a Notifier.
func NewNotifier(domains domainStore, subscribers subscriberStore, messenger Messenger, logger *logrus.Entry, opts ...Option) *Notifier {
	n := &Notifier{
		domains:     domains,
		subscribers: subscribers,
		messenger:   messenger,
		limit:       DefaultBatchLimit,
		concurrency: DefaultConcurrency,
		logger:      logging.Component(logger, "notify"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}

	return n
}

// Message renders the warning sent for a domain.
func Message(name string, daysToDeadline int) string {
	return fmt.Sprintf("domain %s expires in %d days", name, daysToDeadline)
}

// Run notifies the subscribers of every candidate domain for which
// domain.ShouldNotify holds at now. Candidates are the latest-expiring records
// with expiry at or before now+NotifyHorizon, capped by the batch limit.
// Delivery and lookup failures are logged and never abort the run.
func (n *Notifier) Run(ctx context.Context, now time.Time) (Report, error) {
	if n == nil || n.domains == nil || n.subscribers == nil || n.messenger == nil {
		return Report{}, errors.New("notifier is not initialized")
	}
	if ctx == nil {
		return Report{}, errors.New("context is required")
	}

	candidates, err := n.domains.FindExpiringBefore(ctx, now.Add(domain.NotifyHorizon), n.limit, true)
	if err != nil {
		return Report{}, fmt.Errorf("select domains to notify: %w", err)
	}

	report := Report{Candidates: len(candidates)}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(n.concurrency)
	for _, record := range candidates {
		if record.ExpiryDate == nil {
			continue
		}
		days := domain.DaysToDeadline(*record.ExpiryDate, now)
		if !domain.ShouldNotify(days) {
			continue
		}

		report.Due++

		g.Go(func() error {
			sent, failed := n.notifyDomain(ctx, record, days)

			mu.Lock()
			report.Sent += sent
			report.Failed += failed
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	n.logger.WithFields(logging.Fields{
		"event":      "notify_run_complete",
		"candidates": report.Candidates,
		"due":        report.Due,
		"sent":       report.Sent,
		"failed":     report.Failed,
	}).Info("processed expiry notifications")

	return report, nil
}

func (n *Notifier) notifyDomain(ctx context.Context, record domain.Domain, days int) (int, int) {
	logger := n.logger.WithFields(logging.Fields{
		"domain":           record.Name,
		"days_to_deadline": days,
	})

	subscribers, err := n.subscribers.FindByTrackedDomain(ctx, record.ID)
	if err != nil {
		logger.WithField("event", "notify_subscribers_failed").WithError(err).Warn("cannot resolve subscribers")
		return 0, 0
	}

	text := Message(record.Name, days)
	sent, failed := 0, 0
	for _, subscriber := range subscribers {
		if err := n.messenger.SendText(ctx, subscriber.ChatID, text); err != nil {
			failed++
			n.metrics.IncrementNotification(metrics.ResultFailure)
			logger.WithFields(logging.Fields{
				"event":   "notification_failed",
				"chat_id": subscriber.ChatID,
			}).WithError(err).Warn("cannot deliver notification")
			continue
		}

		sent++
		n.metrics.IncrementNotification(metrics.ResultSuccess)
		logger.WithFields(logging.Fields{
			"event":   "notification_sent",
			"chat_id": subscriber.ChatID,
		}).Debug("notification delivered")
	}

	return sent, failed
}

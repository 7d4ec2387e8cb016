// Package refresh re-queries domains nearing expiry and merges the fresh
// registry data into their stored records.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"tg_domain_watch_bot/internal/domain"
	"tg_domain_watch_bot/internal/logging"
	"tg_domain_watch_bot/internal/metrics"
	"tg_domain_watch_bot/internal/registry"
)

// DefaultConcurrency bounds concurrent lookups when none is configured.
const DefaultConcurrency = 8

type domainStore interface {
	FindExpiringBefore(ctx context.Context, threshold time.Time, limit int64, desc bool) ([]domain.Domain, error)
	UpsertPartial(ctx context.Context, name string, fragment domain.Fragment) (bool, error)
}

// Report summarizes one refresh run.
type Report struct {
	Selected int
	Updated  int
	Failed   int
}

// Refresher runs the refresh pass over domains expiring within
// domain.RefreshHorizon.
type Refresher struct {
	domains     domainStore
	gateway     registry.Gateway
	concurrency int
	metrics     *metrics.Metrics
	logger      *logrus.Entry
}

// Option customizes the Refresher.
type Option func(*Refresher)

// WithConcurrency bounds how many lookups run at once.
func WithConcurrency(n int) Option {
	return func(r *Refresher) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithMetrics records per-domain outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Refresher) {
		r.metrics = m
	}
}

// NewRefresher constructs a Refresher.
func NewRefresher(domains domainStore, gateway registry.Gateway, logger *logrus.Entry, opts ...Option) *Refresher {
	r := &Refresher{
		domains:     domains,
		gateway:     gateway,
		concurrency: DefaultConcurrency,
		logger:      logging.Component(logger, "refresh"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

// Run refreshes every record whose expiry is at or before now+RefreshHorizon.
// A failed lookup or update is logged and leaves that record unchanged; the
// run always processes the whole selection. The returned error only reports a
// failed selection.
func (r *Refresher) Run(ctx context.Context, now time.Time) (Report, error) {
	if r == nil || r.domains == nil || r.gateway == nil {
		return Report{}, errors.New("refresher is not initialized")
	}
	if ctx == nil {
		return Report{}, errors.New("context is required")
	}

	selected, err := r.domains.FindExpiringBefore(ctx, now.Add(domain.RefreshHorizon), 0, false)
	if err != nil {
		return Report{}, fmt.Errorf("select domains to refresh: %w", err)
	}

	report := Report{Selected: len(selected)}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for _, record := range selected {
		name := record.Name
		g.Go(func() error {
			err := r.refreshOne(ctx, name, now)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				r.metrics.IncrementRefreshed(metrics.ResultFailure)
				logging.Context{Domain: name, Event: "refresh_domain_failed"}.On(r.logger).
					WithError(err).Warn("cannot refresh domain")
				return nil
			}

			report.Updated++
			r.metrics.IncrementRefreshed(metrics.ResultSuccess)
			r.logger.WithFields(logging.Fields{
				"event":  "refresh_domain_updated",
				"domain": name,
			}).Debug("domain refreshed")
			return nil
		})
	}
	_ = g.Wait()

	r.logger.WithFields(logging.Fields{
		"event":    "refresh_run_complete",
		"selected": report.Selected,
		"updated":  report.Updated,
		"failed":   report.Failed,
	}).Info("refreshed expiring domains")

	return report, nil
}

func (r *Refresher) refreshOne(ctx context.Context, name string, now time.Time) error {
	resp, err := r.gateway.Lookup(ctx, name)
	if err != nil {
		return err
	}

	if _, err := r.domains.UpsertPartial(ctx, name, registry.Normalize(resp, now)); err != nil {
		return err
	}

	return nil
}

// Package watch implements the chat commands that subscribe to domains, list
// tracked domains and show raw registry data.
package watch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"

	"tg_domain_watch_bot/internal/domain"
	"tg_domain_watch_bot/internal/logging"
	"tg_domain_watch_bot/internal/registry"
)

// DefaultConcurrency bounds concurrent lookups for one /watch command.
const DefaultConcurrency = 4

// ErrNoTrackedDomains is returned by Tracking when the chat tracks nothing.
var ErrNoTrackedDomains = errors.New("no tracked domains")

type domainStore interface {
	FindByName(ctx context.Context, name string) (domain.Domain, error)
	FindByIDs(ctx context.Context, ids []primitive.ObjectID, fields ...string) ([]domain.Domain, error)
	Insert(ctx context.Context, d domain.Domain) (primitive.ObjectID, error)
	UpsertPartial(ctx context.Context, name string, fragment domain.Fragment) (bool, error)
}

type subscriberStore interface {
	AddTrackedDomains(ctx context.Context, chatID int64, domainIDs []primitive.ObjectID) (int, error)
	TrackedDomainIDs(ctx context.Context, chatID int64) ([]primitive.ObjectID, error)
}

type subscriberRegistrar interface {
	EnsureSubscriber(ctx context.Context, profile domain.Profile) (bool, error)
}

// Result reports the outcome of a watch command. Tracked and Failed keep the
// order the domains were given in.
type Result struct {
	Tracked []string
	Failed  []string
	// Added counts domains the chat did not track before.
	Added int
}

// Row is one line of the tracking table.
type Row struct {
	Name           string
	ExpiryDate     *time.Time
	DaysToExpiry   int
	DaysToDeadline int
}

// Known reports whether the registry has returned an expiry date for the row.
func (r Row) Known() bool {
	return r.ExpiryDate != nil
}

// Watcher executes the watch, tracking and info commands.
type Watcher struct {
	domains     domainStore
	subscribers subscriberStore
	registrar   subscriberRegistrar
	gateway     registry.Gateway
	concurrency int
	now         func() time.Time
	logger      *logrus.Entry
}

// Option customizes the Watcher.
type Option func(*Watcher)

// WithConcurrency bounds concurrent lookups within one command.
func WithConcurrency(n int) Option {
	return func(w *Watcher) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// NewWatcher constructs a Watcher.
func NewWatcher(domains domainStore, subscribers subscriberStore, registrar subscriberRegistrar, gateway registry.Gateway, logger *logrus.Entry, opts ...Option) *Watcher {
	w := &Watcher{
		domains:     domains,
		subscribers: subscribers,
		registrar:   registrar,
		gateway:     gateway,
		concurrency: DefaultConcurrency,
		now:         func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		logger:      logging.Component(logger, "watch"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}

	return w
}

// Watch stores unseen domains from a fresh lookup and adds the resolved
// records to the chat's tracked set. Repeated names are collapsed and names
// already tracked stay tracked. An unknown domain whose lookup fails is not
// tracked.
func (w *Watcher) Watch(ctx context.Context, profile domain.Profile, names []string) (Result, error) {
	if err := w.validate(ctx); err != nil {
		return Result{}, err
	}
	if profile.ChatID == 0 {
		return Result{}, errors.New("chat id is required")
	}

	names = dedupe(names)
	if len(names) == 0 {
		return Result{}, errors.New("at least one domain is required")
	}

	now := w.now()
	ids := make([]primitive.ObjectID, len(names))

	var g errgroup.Group
	g.SetLimit(w.concurrency)
	for i, name := range names {
		g.Go(func() error {
			id, err := w.resolve(ctx, name, now)
			if err != nil {
				logging.Context{ChatID: profile.ChatID, Domain: name, Event: "watch_domain_failed"}.On(w.logger).
					WithError(err).Warn("cannot track domain")
				return nil
			}
			ids[i] = id
			return nil
		})
	}
	_ = g.Wait()

	if _, err := w.registrar.EnsureSubscriber(ctx, profile); err != nil {
		return Result{}, fmt.Errorf("register subscriber: %w", err)
	}

	var result Result
	tracked := make([]primitive.ObjectID, 0, len(ids))
	for i, id := range ids {
		if id.IsZero() {
			result.Failed = append(result.Failed, names[i])
			continue
		}
		result.Tracked = append(result.Tracked, names[i])
		tracked = append(tracked, id)
	}

	if len(tracked) > 0 {
		added, err := w.subscribers.AddTrackedDomains(ctx, profile.ChatID, tracked)
		if err != nil {
			return Result{}, fmt.Errorf("track domains: %w", err)
		}
		result.Added = added
	}

	w.logger.WithFields(logging.Fields{
		"event":   "watch_complete",
		"chat_id": profile.ChatID,
		"tracked": len(result.Tracked),
		"failed":  len(result.Failed),
		"added":   result.Added,
	}).Info("processed watch command")

	return result, nil
}

// resolve returns the id of the record for name. Only unknown names are
// looked up; a stored record is tracked as is and left to the refresh job.
func (w *Watcher) resolve(ctx context.Context, name string, now time.Time) (primitive.ObjectID, error) {
	existing, err := w.domains.FindByName(ctx, name)
	switch {
	case err == nil:
		return existing.ID, nil
	case !errors.Is(err, domain.ErrDomainNotFound):
		return primitive.NilObjectID, err
	}

	resp, err := w.gateway.Lookup(ctx, name)
	if err != nil {
		return primitive.NilObjectID, err
	}

	fragment := registry.Normalize(resp, now)
	id, err := w.domains.Insert(ctx, domain.NewDomain(name, fragment, now))
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, domain.ErrDuplicateDomain) {
		return primitive.NilObjectID, err
	}

	// Another command inserted the record concurrently.
	existing, err = w.domains.FindByName(ctx, name)
	if err != nil {
		return primitive.NilObjectID, err
	}
	if _, err := w.domains.UpsertPartial(ctx, name, fragment); err != nil {
		return primitive.NilObjectID, err
	}
	return existing.ID, nil
}

// Tracking returns the chat's tracked domains ordered by ascending expiry;
// records without an expiry date come last.
func (w *Watcher) Tracking(ctx context.Context, chatID int64, now time.Time) ([]Row, error) {
	if err := w.validate(ctx); err != nil {
		return nil, err
	}
	if chatID == 0 {
		return nil, errors.New("chat id is required")
	}

	ids, err := w.subscribers.TrackedDomainIDs(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load tracked domains: %w", err)
	}
	if len(ids) == 0 {
		return nil, ErrNoTrackedDomains
	}

	records, err := w.domains.FindByIDs(ctx, ids, "name", "expiry_date")
	if err != nil {
		return nil, fmt.Errorf("load tracked domains: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNoTrackedDomains
	}

	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].ExpiryDate, records[j].ExpiryDate
		switch {
		case a == nil && b == nil:
			return records[i].Name < records[j].Name
		case a == nil:
			return false
		case b == nil:
			return true
		case a.Equal(*b):
			return records[i].Name < records[j].Name
		default:
			return a.Before(*b)
		}
	})

	rows := make([]Row, 0, len(records))
	for _, record := range records {
		row := Row{Name: record.Name, ExpiryDate: record.ExpiryDate}
		if record.ExpiryDate != nil {
			row.DaysToExpiry = domain.DaysUntil(*record.ExpiryDate, now)
			row.DaysToDeadline = domain.DaysToDeadline(*record.ExpiryDate, now)
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// Info returns the raw registry answer for name without storing anything.
func (w *Watcher) Info(ctx context.Context, name string) (string, error) {
	if err := w.validate(ctx); err != nil {
		return "", err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("domain name is required")
	}

	return w.gateway.LookupRaw(ctx, name)
}

func (w *Watcher) validate(ctx context.Context) error {
	if w == nil || w.domains == nil || w.subscribers == nil || w.registrar == nil || w.gateway == nil {
		return errors.New("watcher is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	return nil
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type countCollection interface {
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// StatsProvider reports collection sizes for the owner /stats command.
type StatsProvider struct {
	subscribers   countCollection
	domains       countCollection
	subscriptions countCollection
}

// NewStatsProvider constructs a StatsProvider backed by the subscribers,
// domains and subscriptions collections.
func NewStatsProvider(subscribers, domains, subscriptions countCollection) *StatsProvider {
	return &StatsProvider{
		subscribers:   subscribers,
		domains:       domains,
		subscriptions: subscriptions,
	}
}

// CountSubscribers returns the number of known chats.
func (p *StatsProvider) CountSubscribers(ctx context.Context) (int64, error) {
	if p == nil {
		return 0, errors.New("stats provider is not initialized")
	}
	return p.count(ctx, p.subscribers, "subscribers")
}

// CountDomains returns the number of stored domain records.
func (p *StatsProvider) CountDomains(ctx context.Context) (int64, error) {
	if p == nil {
		return 0, errors.New("stats provider is not initialized")
	}
	return p.count(ctx, p.domains, "domains")
}

// CountSubscriptions returns the number of subscriber/domain edges.
func (p *StatsProvider) CountSubscriptions(ctx context.Context) (int64, error) {
	if p == nil {
		return 0, errors.New("stats provider is not initialized")
	}
	return p.count(ctx, p.subscriptions, "subscriptions")
}

func (p *StatsProvider) count(ctx context.Context, coll countCollection, name string) (int64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if coll == nil {
		return 0, errors.New("stats provider is not initialized")
	}

	count, err := coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", name, err)
	}

	return count, nil
}

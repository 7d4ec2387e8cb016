package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrSubscriberNotFound is returned when no subscriber has the chat id.
var ErrSubscriberNotFound = errors.New("subscriber not found")

type subscriberCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

type subscriptionCollection interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

// SubscriberRepository persists subscribers and the subscriber/domain
// relation. The relation lives in its own collection of (chat_id, domain_id)
// edges so it can be queried from either side.
type SubscriberRepository struct {
	subscribers   subscriberCollection
	subscriptions subscriptionCollection
}

// NewSubscriberRepository constructs a SubscriberRepository.
func NewSubscriberRepository(subscribers subscriberCollection, subscriptions subscriptionCollection) *SubscriberRepository {
	return &SubscriberRepository{
		subscribers:   subscribers,
		subscriptions: subscriptions,
	}
}

// Insert stores a subscriber with populated timestamps, defaulting the role to
// RoleUser when omitted.
func (r *SubscriberRepository) Insert(ctx context.Context, subscriber Subscriber) (Subscriber, error) {
	if err := r.validate(ctx); err != nil {
		return Subscriber{}, err
	}
	if subscriber.ChatID == 0 {
		return Subscriber{}, errors.New("chat_id is required")
	}
	if subscriber.Role == "" {
		subscriber.Role = RoleUser
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	if subscriber.CreatedAt.IsZero() {
		subscriber.CreatedAt = now
	}
	if subscriber.LastSeenAt.IsZero() {
		subscriber.LastSeenAt = now
	}
	subscriber.UpdatedAt = now

	if _, err := r.subscribers.InsertOne(ctx, subscriber); err != nil {
		return Subscriber{}, fmt.Errorf("insert subscriber: %w", err)
	}

	return subscriber, nil
}

// FindByChatID fetches a subscriber by chat id.
func (r *SubscriberRepository) FindByChatID(ctx context.Context, chatID int64) (Subscriber, error) {
	if err := r.validate(ctx); err != nil {
		return Subscriber{}, err
	}
	if chatID == 0 {
		return Subscriber{}, errors.New("chat_id is required")
	}

	result := r.subscribers.FindOne(ctx, bson.M{"chat_id": chatID})
	if result == nil {
		return Subscriber{}, errors.New("find subscriber returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Subscriber{}, ErrSubscriberNotFound
		}
		return Subscriber{}, fmt.Errorf("find subscriber: %w", err)
	}

	var subscriber Subscriber
	if err := result.Decode(&subscriber); err != nil {
		return Subscriber{}, fmt.Errorf("decode subscriber: %w", err)
	}

	return subscriber, nil
}

// AddTrackedDomains adds domainIDs to the chat's tracked set and returns how
// many were not tracked before. Re-adding a tracked domain is a no-op.
func (r *SubscriberRepository) AddTrackedDomains(ctx context.Context, chatID int64, domainIDs []primitive.ObjectID) (int, error) {
	if err := r.validate(ctx); err != nil {
		return 0, err
	}
	if chatID == 0 {
		return 0, errors.New("chat_id is required")
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	added := 0
	seen := make(map[primitive.ObjectID]struct{}, len(domainIDs))

	for _, id := range domainIDs {
		if id.IsZero() {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		result, err := r.subscriptions.UpdateOne(ctx,
			bson.M{"chat_id": chatID, "domain_id": id},
			bson.M{"$setOnInsert": bson.M{"created_at": now}},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return added, fmt.Errorf("track domain %s: %w", id.Hex(), err)
		}
		if result != nil && result.UpsertedCount > 0 {
			added++
		}
	}

	return added, nil
}

// TrackedDomainIDs lists the domains a chat tracks, oldest subscription first.
func (r *SubscriberRepository) TrackedDomainIDs(ctx context.Context, chatID int64) ([]primitive.ObjectID, error) {
	if err := r.validate(ctx); err != nil {
		return nil, err
	}
	if chatID == 0 {
		return nil, errors.New("chat_id is required")
	}

	edges, err := r.findSubscriptions(ctx, bson.M{"chat_id": chatID})
	if err != nil {
		return nil, err
	}

	ids := make([]primitive.ObjectID, 0, len(edges))
	for _, edge := range edges {
		ids = append(ids, edge.DomainID)
	}

	return ids, nil
}

// FindByTrackedDomain returns every subscriber tracking domainID.
func (r *SubscriberRepository) FindByTrackedDomain(ctx context.Context, domainID primitive.ObjectID) ([]Subscriber, error) {
	if err := r.validate(ctx); err != nil {
		return nil, err
	}
	if domainID.IsZero() {
		return nil, errors.New("domain id is required")
	}

	edges, err := r.findSubscriptions(ctx, bson.M{"domain_id": domainID})
	if err != nil {
		return nil, err
	}
	if len(edges) == 0 {
		return nil, nil
	}

	chatIDs := make([]int64, 0, len(edges))
	for _, edge := range edges {
		chatIDs = append(chatIDs, edge.ChatID)
	}

	cursor, err := r.subscribers.Find(ctx, bson.M{"chat_id": bson.M{"$in": chatIDs}})
	if err != nil {
		return nil, fmt.Errorf("find subscribers: %w", err)
	}

	var subscribers []Subscriber
	if err := cursor.All(ctx, &subscribers); err != nil {
		return nil, fmt.Errorf("decode subscribers: %w", err)
	}

	return subscribers, nil
}

func (r *SubscriberRepository) findSubscriptions(ctx context.Context, filter bson.M) ([]Subscription, error) {
	cursor, err := r.subscriptions.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find subscriptions: %w", err)
	}

	var edges []Subscription
	if err := cursor.All(ctx, &edges); err != nil {
		return nil, fmt.Errorf("decode subscriptions: %w", err)
	}

	return edges, nil
}

func (r *SubscriberRepository) validate(ctx context.Context) error {
	if r == nil || r.subscribers == nil || r.subscriptions == nil {
		return errors.New("subscriber repository is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	return nil
}

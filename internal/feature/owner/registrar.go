// Package owner makes the configured BOT_OWNER chat the single subscriber
// holding the owner role.
package owner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tg_domain_watch_bot/internal/domain"
	"tg_domain_watch_bot/internal/logging"
)

type subscriberCollection interface {
	UpdateMany(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// Bootstrap reports what EnsureOwner changed.
type Bootstrap struct {
	// Created is set when the owner chat had no subscriber record yet.
	Created bool
	// Demoted counts other chats that lost the owner role.
	Demoted int64
}

// Registrar assigns the owner role at startup.
type Registrar struct {
	subscribers subscriberCollection
	logger      *logrus.Entry
}

func NewRegistrar(subscribers subscriberCollection, logger *logrus.Entry) *Registrar {
	return &Registrar{
		subscribers: subscribers,
		logger:      logging.Component(logger, "owner"),
	}
}

// EnsureOwner claims the owner role for ownerChatID, creating its subscriber
// record when missing, then hands every other owner back the user role. The
// claim runs first so the collection never lacks an owner. Tracked domains are
// not touched.
func (r *Registrar) EnsureOwner(ctx context.Context, ownerChatID int64) (Bootstrap, error) {
	if r == nil || r.subscribers == nil {
		return Bootstrap{}, errors.New("owner registrar is not initialized")
	}
	if ctx == nil {
		return Bootstrap{}, errors.New("context is required")
	}
	if ownerChatID == 0 {
		return Bootstrap{}, errors.New("owner id is required")
	}

	now := time.Now().UTC().Truncate(time.Millisecond)

	claimed, err := r.subscribers.UpdateOne(ctx,
		bson.M{"chat_id": ownerChatID},
		bson.M{
			"$set": roleChange(domain.RoleOwner, now),
			"$setOnInsert": bson.M{
				"created_at":   now,
				"last_seen_at": now,
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return Bootstrap{}, fmt.Errorf("claim owner role for %d: %w", ownerChatID, err)
	}

	demoted, err := r.subscribers.UpdateMany(ctx,
		bson.M{"role": domain.RoleOwner, "chat_id": bson.M{"$ne": ownerChatID}},
		bson.M{"$set": roleChange(domain.RoleUser, now)},
	)
	if err != nil {
		return Bootstrap{}, fmt.Errorf("demote previous owners: %w", err)
	}

	var result Bootstrap
	if claimed != nil {
		result.Created = claimed.UpsertedCount > 0
	}
	if demoted != nil {
		result.Demoted = demoted.ModifiedCount
	}

	logging.Context{ChatID: ownerChatID, Event: "owner_bootstrap"}.On(r.logger).WithFields(logging.Fields{
		"created": result.Created,
		"demoted": result.Demoted,
	}).Info("owner role assigned")

	return result, nil
}

func roleChange(role string, at time.Time) bson.M {
	return bson.M{"role": role, "updated_at": at}
}

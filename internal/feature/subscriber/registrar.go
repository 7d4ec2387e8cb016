// Package subscriber keeps subscriber records present and fresh for every chat
// that talks to the bot.
package subscriber

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
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// Registrar ensures subscribers exist and tracks their last interaction.
type Registrar struct {
	subscribers subscriberCollection
	logger      *logrus.Entry
}

// NewRegistrar constructs a Registrar for the subscribers collection.
func NewRegistrar(subscribers subscriberCollection, logger *logrus.Entry) *Registrar {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Registrar{
		subscribers: subscribers,
		logger:      logger,
	}
}

// EnsureSubscriber upserts the chat with the default role and the profile
// captured on first contact, and refreshes last_seen_at/updated_at on every
// call. It reports whether a new record was created.
func (r *Registrar) EnsureSubscriber(ctx context.Context, profile domain.Profile) (bool, error) {
	if r == nil || r.subscribers == nil {
		return false, errors.New("subscriber registrar is not initialized")
	}
	if ctx == nil {
		return false, errors.New("context is required")
	}
	if profile.ChatID == 0 {
		return false, errors.New("chat id is required")
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	onInsert := bson.M{
		"chat_id":    profile.ChatID,
		"role":       domain.RoleUser,
		"created_at": now,
	}
	for field, value := range map[string]string{
		"username":      profile.Username,
		"first_name":    profile.FirstName,
		"last_name":     profile.LastName,
		"language_code": profile.LanguageCode,
	} {
		if value != "" {
			onInsert[field] = value
		}
	}

	result, err := r.subscribers.UpdateOne(ctx,
		bson.M{"chat_id": profile.ChatID},
		bson.M{
			"$set": bson.M{
				"updated_at":   now,
				"last_seen_at": now,
			},
			"$setOnInsert": onInsert,
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, fmt.Errorf("ensure subscriber: %w", err)
	}

	created := result != nil && result.UpsertedCount > 0
	if created {
		r.logger.WithFields(logging.Fields{
			"event":   "subscriber_registered",
			"chat_id": profile.ChatID,
		}).Info("registered new subscriber")
		return true, nil
	}

	r.logger.WithFields(logging.Fields{
		"event":   "subscriber_seen",
		"chat_id": profile.ChatID,
	}).Debug("updated subscriber last seen")

	return false, nil
}

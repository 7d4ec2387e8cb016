package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Subscriber is a chat that receives expiry notifications. ChatID is the
// delivery handle. Profile fields are pass-through data captured on insert.
type Subscriber struct {
	ChatID       int64     `bson:"chat_id" json:"chat_id"`
	Role         string    `bson:"role" json:"role"`
	Username     string    `bson:"username,omitempty" json:"username,omitempty"`
	FirstName    string    `bson:"first_name,omitempty" json:"first_name,omitempty"`
	LastName     string    `bson:"last_name,omitempty" json:"last_name,omitempty"`
	LanguageCode string    `bson:"language_code,omitempty" json:"language_code,omitempty"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updated_at"`
	LastSeenAt   time.Time `bson:"last_seen_at" json:"last_seen_at"`
}

// Profile carries the identity of the chat issuing a command.
type Profile struct {
	ChatID       int64
	Username     string
	FirstName    string
	LastName     string
	LanguageCode string
}

// Subscription is one edge of the subscriber/domain relation.
type Subscription struct {
	ChatID    int64              `bson:"chat_id" json:"chat_id"`
	DomainID  primitive.ObjectID `bson:"domain_id" json:"domain_id"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

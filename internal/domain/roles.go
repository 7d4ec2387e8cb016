// Package domain defines the tracked domain and subscriber records, their
// lifecycle arithmetic, and the MongoDB repositories that persist them.
package domain

const (
	// RoleOwner marks the configured bot owner; only the owner may run /stats.
	RoleOwner = "owner"
	// RoleUser represents a standard subscriber.
	RoleUser = "user"
)

// Package user defines the user model used throughout the application,
// particularly for registration and per-user request accounting.
package user

import "time"

// User represents a registered client of the service.
//
// Tier and ID are immutable after creation. RequestCount only grows, one unit
// per admitted shorten operation; the storage layer owns the counter and
// updates it atomically.
type User struct {
	// ID is the unique identifier of the user, meaning a UUID.
	ID string `json:"userID"`

	// Tier determines the request quota, see the quota package.
	Tier int `json:"tier"`

	// RequestCount is the number of admitted shorten operations.
	RequestCount int `json:"requestCounter"`

	// CreatedAt is the registration time.
	CreatedAt time.Time `json:"createAt"`
}

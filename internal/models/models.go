// Package models defines the request and response payloads of the HTTP API
// and the record types shared between the storage implementations.
package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FlexInt is an integer that unmarshals from either a JSON number or a
// numeric JSON string ("7"). Some clients send urlLength quoted.
type FlexInt int

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexInt) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		*f = 0
		return nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("cannot parse %q as an integer: %w", raw, err)
	}

	*f = FlexInt(value)

	return nil
}

type RegisterRequest struct {
	Tier int `json:"tier,omitempty"`
}

type ShortenRequest struct {
	UserID    string  `json:"userID"`
	URL       string  `json:"url" validate:"required"`
	URLLength FlexInt `json:"urlLength"`
}

type ShortenResponse struct {
	Message  string `json:"message"`
	UserID   string `json:"userID"`
	ShortKey string `json:"urlID"`
	ShortURL string `json:"url"`
}

// URLRecord is a single shortened URL owned by a user.
// The JSON field names follow the public API contract.
type URLRecord struct {
	ShortKey    string    `json:"urlID"`
	OriginalURL string    `json:"longUrl"`
	OwnerUserID string    `json:"userID"`
	CreatedAt   time.Time `json:"createAt"`
}

type UserUrls []URLRecord

type HistoryResponse struct {
	Message string   `json:"message"`
	UserID  string   `json:"userID"`
	Urls    UserUrls `json:"urls"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}

// NotFoundResponse is the body of the redirect 404. The `error` key is kept
// for backward compatibility with existing clients.
type NotFoundResponse struct {
	Error string `json:"error"`
}

const (
	StorageTypeUnknown = iota
	StorageTypePostgresql
	StorageTypeFile
	StorageTypeMemory
)

// ErrDuplicateShortKey is returned by a storage when a short key is already
// mapped. Inserts are conditional on key absence, so the caller may retry
// with a freshly generated key.
var ErrDuplicateShortKey = errors.New("the short key already exists")

// ErrDuplicateUser is returned by a storage when a user ID collides on insert.
var ErrDuplicateUser = errors.New("the user already exists")

// Package service holds the business logic of the shortener: registration,
// the quota gated shorten workflow, history and redirect resolution.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tierlink/tierlink/internal/logger"
	"github.com/tierlink/tierlink/internal/models"
	"github.com/tierlink/tierlink/internal/quota"
	"github.com/tierlink/tierlink/internal/shortcode"
	"github.com/tierlink/tierlink/internal/user"
)

type userKeeper interface {
	CreateUser(ctx context.Context, usr *user.User) error
	GetUserByID(ctx context.Context, userID string) (*user.User, bool, error)
	UserExists(ctx context.Context, userID string) (bool, error)
	ReserveQuotaUnit(ctx context.Context, userID string, maxRequests int) (bool, error)
	ReleaseQuotaUnit(ctx context.Context, userID string) error
}

type urlsKeeper interface {
	InsertURLMapping(ctx context.Context, record models.URLRecord) error
	FindFullByShort(ctx context.Context, short string) (string, bool, error)
	GetUserUrls(ctx context.Context, ownerUserID string) (models.UserUrls, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type storage interface {
	userKeeper
	urlsKeeper
	pinger
}

type redirectCache interface {
	Get(ctx context.Context, short string) (string, bool)
	Set(ctx context.Context, short, full string)
}

// maxShortKeyAttempts bounds the collision retry loop of the shorten flow.
const maxShortKeyAttempts = 3

// ErrMissingUserID is returned when a request carries no user identifier.
var ErrMissingUserID = errors.New("Missing userID")

// ErrUnknownUser is returned when the user identifier is not registered.
var ErrUnknownUser = errors.New("Invalid userID")

// ErrMissingURL is returned when a shorten request carries no URL.
var ErrMissingURL = errors.New("Missing url")

// ErrShortKeySpaceExhausted is returned when every generation attempt
// collided with an existing short key.
var ErrShortKeySpaceExhausted = errors.New("the number of attempts to generate a unique short key has been exceeded")

// Service orchestrates the storage, the quota policy and the key generator.
type Service struct {
	db                storage
	cache             redirectCache
	shortURLBase      string
	defaultCodeLength int
}

// Option configures optional collaborators of the Service.
type Option func(*Service)

// WithRedirectCache plugs a read-through cache into the redirect path.
func WithRedirectCache(cache redirectCache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// New creates a Service.
func New(db storage, shortURLBase string, defaultCodeLength int, opts ...Option) *Service {
	s := &Service{
		db:                db,
		shortURLBase:      shortURLBase,
		defaultCodeLength: defaultCodeLength,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Register creates a new user with a generated unique ID. A zero tier falls
// back to the default; any other tier outside the quota table is rejected
// here, at registration time, rather than at the first shorten call.
func (s *Service) Register(ctx context.Context, tier int) (*user.User, error) {
	if tier == 0 {
		tier = quota.DefaultTier
	}
	if err := quota.ValidateTier(tier); err != nil {
		return nil, err
	}

	usr := &user.User{
		ID:        uuid.New().String(),
		Tier:      tier,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.db.CreateUser(ctx, usr); err != nil {
		return nil, fmt.Errorf("creating the user: %w", err)
	}

	return usr, nil
}

// Shorten runs the whole workflow: validation, user lookup, admission,
// key generation, persistence.
//
// The advisory quota check happens first so that an exhausted user gets a
// precise denial without side effects. The authoritative check is the atomic
// ReserveQuotaUnit: of N concurrent requests racing on the last unit exactly
// one can win it. The unit is charged before the record is persisted; if
// persistence fails the unit is released again, so a failed request does not
// stay charged against the user.
func (s *Service) Shorten(ctx context.Context, userID, longURL string, codeLength int) (*models.URLRecord, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	if longURL == "" {
		return nil, ErrMissingURL
	}
	if codeLength == 0 {
		codeLength = s.defaultCodeLength
	}

	usr, found, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading the user: %w", err)
	}
	if !found {
		return nil, ErrUnknownUser
	}

	decision, err := quota.Admit(usr.Tier, usr.RequestCount)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, &quota.ExceededError{Tier: usr.Tier}
	}

	// An invalid requested length must not consume a quota unit.
	shortKey, err := shortcode.Generate(codeLength)
	if err != nil {
		return nil, err
	}

	reserved, err := s.db.ReserveQuotaUnit(ctx, usr.ID, decision.MaxRequests)
	if err != nil {
		return nil, fmt.Errorf("reserving a quota unit: %w", err)
	}
	if !reserved {
		return nil, &quota.ExceededError{Tier: usr.Tier}
	}

	record, err := s.insertWithRetry(ctx, shortKey, longURL, usr.ID, codeLength)
	if err != nil {
		if releaseErr := s.db.ReleaseQuotaUnit(ctx, usr.ID); releaseErr != nil {
			logger.Log.Errorln("releasing a quota unit after a failed insert:", releaseErr)
		}
		return nil, err
	}

	return record, nil
}

func (s *Service) insertWithRetry(
	ctx context.Context,
	shortKey, longURL, ownerUserID string,
	codeLength int,
) (*models.URLRecord, error) {
	for attempt := 0; attempt < maxShortKeyAttempts; attempt++ {
		if attempt > 0 {
			var err error
			shortKey, err = shortcode.Generate(codeLength)
			if err != nil {
				return nil, err
			}
		}

		record := models.URLRecord{
			ShortKey:    shortKey,
			OriginalURL: longURL,
			OwnerUserID: ownerUserID,
			CreatedAt:   time.Now().UTC(),
		}

		err := s.db.InsertURLMapping(ctx, record)
		if err == nil {
			return &record, nil
		}
		if !errors.Is(err, models.ErrDuplicateShortKey) {
			return nil, fmt.Errorf("persisting the short URL: %w", err)
		}
	}

	return nil, ErrShortKeySpaceExhausted
}

// History returns all short URLs ever created by the user.
func (s *Service) History(ctx context.Context, userID string) (models.UserUrls, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}

	exists, err := s.db.UserExists(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("checking the user: %w", err)
	}
	if !exists {
		return nil, ErrUnknownUser
	}

	return s.db.GetUserUrls(ctx, userID)
}

// Resolve returns the original URL behind a short key. Repeated lookups of
// the same key keep returning the same URL, records are immutable.
func (s *Service) Resolve(ctx context.Context, short string) (string, bool, error) {
	if s.cache != nil {
		if full, ok := s.cache.Get(ctx, short); ok {
			return full, true, nil
		}
	}

	full, found, err := s.db.FindFullByShort(ctx, short)
	if err != nil || !found {
		return "", false, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, short, full)
	}

	return full, true, nil
}

// Ping checks the health of the storage layer.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// ShortURL builds the public URL for a short key.
func (s *Service) ShortURL(shortKey string) string {
	return s.shortURLBase + "/" + shortKey
}

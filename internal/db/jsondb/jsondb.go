// Package jsondb is a file backed storage: all records live in an in-memory
// cache guarded by a mutex and are flushed to a JSON snapshot file on Close.
// The same cache, without the file, powers the pure in-memory storage.
package jsondb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	funk "github.com/thoas/go-funk"

	"github.com/tierlink/tierlink/internal/models"
	"github.com/tierlink/tierlink/internal/user"
)

// CacheStruct is the serialized shape of the database file.
type CacheStruct struct {
	Users        map[string]*user.User
	ShortToFull  map[string]models.URLRecord
	OwnersShorts map[string][]string
}

// JSONDB keeps the whole dataset in memory and persists it on Close.
type JSONDB struct {
	mu       sync.Mutex
	fileName string
	Cache    CacheStruct
}

// NewCache returns an empty initialized cache.
func NewCache() CacheStruct {
	return CacheStruct{
		Users:        map[string]*user.User{},
		ShortToFull:  map[string]models.URLRecord{},
		OwnersShorts: map[string][]string{},
	}
}

func initDBFile(fileName string) error {
	data, err := json.MarshalIndent(NewCache(), "", "\t")
	if err != nil {
		return err
	}

	return os.WriteFile(fileName, data, 0644)
}

func parseJSONFile(fileName string, cache *CacheStruct) error {
	file, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(cache)
}

// New opens (or creates) the database file and loads it into the cache.
func New(fileName string) (*JSONDB, error) {
	db := JSONDB{
		fileName: fileName,
		Cache:    NewCache(),
	}

	err := parseJSONFile(db.fileName, &db.Cache)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if err := initDBFile(fileName); err != nil {
			return nil, err
		}
		if err := parseJSONFile(db.fileName, &db.Cache); err != nil {
			return nil, err
		}
	}

	return &db, nil
}

// CreateUser inserts a new user record.
func (db *JSONDB) CreateUser(ctx context.Context, usr *user.User) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.Cache.Users[usr.ID]; exists {
		return models.ErrDuplicateUser
	}

	clone := *usr
	db.Cache.Users[usr.ID] = &clone

	return nil
}

// GetUserByID returns a copy of the user record, or found == false.
func (db *JSONDB) GetUserByID(ctx context.Context, userID string) (*user.User, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	usr, found := db.Cache.Users[userID]
	if !found {
		return nil, false, nil
	}

	clone := *usr

	return &clone, true, nil
}

// UserExists reports whether a user record is present. Absence is a normal
// outcome here, not an error.
func (db *JSONDB) UserExists(ctx context.Context, userID string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, found := db.Cache.Users[userID]

	return found, nil
}

// ReserveQuotaUnit charges one request unit if the counter is still below
// maxRequests. The check and the increment happen under one lock, so
// concurrent shorten requests of the same user cannot both pass the boundary.
func (db *JSONDB) ReserveQuotaUnit(ctx context.Context, userID string, maxRequests int) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	usr, found := db.Cache.Users[userID]
	if !found {
		return false, nil
	}

	if usr.RequestCount >= maxRequests {
		return false, nil
	}

	usr.RequestCount++

	return true, nil
}

// ReleaseQuotaUnit gives one previously reserved unit back.
func (db *JSONDB) ReleaseQuotaUnit(ctx context.Context, userID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	usr, found := db.Cache.Users[userID]
	if found && usr.RequestCount > 0 {
		usr.RequestCount--
	}

	return nil
}

// InsertURLMapping stores a new record; the insert is conditional on the
// short key being absent.
func (db *JSONDB) InsertURLMapping(ctx context.Context, record models.URLRecord) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.Cache.ShortToFull[record.ShortKey]; exists {
		return models.ErrDuplicateShortKey
	}

	db.Cache.ShortToFull[record.ShortKey] = record
	db.Cache.OwnersShorts[record.OwnerUserID] = append(db.Cache.OwnersShorts[record.OwnerUserID], record.ShortKey)

	return nil
}

// FindFullByShort returns the original URL for the short key.
func (db *JSONDB) FindFullByShort(ctx context.Context, short string) (string, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	record, found := db.Cache.ShortToFull[short]
	if !found {
		return "", false, nil
	}

	return record.OriginalURL, true, nil
}

// GetUserUrls returns all records owned by the user, in creation order.
func (db *JSONDB) GetUserUrls(ctx context.Context, ownerUserID string) (models.UserUrls, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	records := funk.Map(
		db.Cache.OwnersShorts[ownerUserID],
		func(short string) models.URLRecord { return db.Cache.ShortToFull[short] },
	).([]models.URLRecord)

	return models.UserUrls(records), nil
}

// Ping always succeeds for the in-memory cache.
func (db *JSONDB) Ping(ctx context.Context) error {
	return nil
}

// Close flushes the cache into the snapshot file.
func (db *JSONDB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	jsonData, err := json.MarshalIndent(db.Cache, "", "\t")
	if err != nil {
		return fmt.Errorf("error marshaling JSON: %w", err)
	}

	if err := os.WriteFile(db.fileName, jsonData, 0644); err != nil {
		return fmt.Errorf("error writing the database file: %w", err)
	}

	return nil
}

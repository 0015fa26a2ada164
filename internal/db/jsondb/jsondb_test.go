package jsondb

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tierlink/tierlink/internal/models"
	"github.com/tierlink/tierlink/internal/user"
)

func newTestDB(t *testing.T) (*JSONDB, string) {
	t.Helper()

	fileName := filepath.Join(t.TempDir(), "db_test.json")
	db, err := New(fileName)
	require.NoError(t, err)
	require.NotNil(t, db)

	return db, fileName
}

func TestUsersRoundTrip(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()

	usr := &user.User{
		ID:        "0f8fad5b-d9cb-469f-a165-70867728950e",
		Tier:      2,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, db.CreateUser(ctx, usr))

	found, err := db.UserExists(ctx, usr.ID)
	require.NoError(t, err)
	assert.True(t, found)

	loaded, found, err := db.GetUserByID(ctx, usr.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, usr.ID, loaded.ID)
	assert.Equal(t, 2, loaded.Tier)
	assert.Equal(t, 0, loaded.RequestCount)
}

func TestCreateUserDuplicate(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()

	usr := &user.User{ID: "duplicated"}
	require.NoError(t, db.CreateUser(ctx, usr))
	assert.ErrorIs(t, db.CreateUser(ctx, usr), models.ErrDuplicateUser)
}

func TestGetUserByIDAbsent(t *testing.T) {
	db, _ := newTestDB(t)

	loaded, found, err := db.GetUserByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, loaded)
}

func TestInsertURLMappingConditional(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()

	record := models.URLRecord{
		ShortKey:    "abc123",
		OriginalURL: "https://example.com/first",
		OwnerUserID: "owner",
	}
	require.NoError(t, db.InsertURLMapping(ctx, record))

	record.OriginalURL = "https://example.com/second"
	assert.ErrorIs(t, db.InsertURLMapping(ctx, record), models.ErrDuplicateShortKey)

	// The original mapping stays untouched.
	full, found, err := db.FindFullByShort(ctx, "abc123")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "https://example.com/first", full)
}

func TestGetUserUrlsKeepsCreationOrder(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()

	for _, short := range []string{"aaaaaa", "bbbbbb", "cccccc"} {
		require.NoError(t, db.InsertURLMapping(ctx, models.URLRecord{
			ShortKey:    short,
			OriginalURL: "https://example.com/" + short,
			OwnerUserID: "owner",
		}))
	}
	require.NoError(t, db.InsertURLMapping(ctx, models.URLRecord{
		ShortKey:    "dddddd",
		OriginalURL: "https://example.com/other",
		OwnerUserID: "someone else",
	}))

	urls, err := db.GetUserUrls(ctx, "owner")
	require.NoError(t, err)
	require.Len(t, urls, 3)
	assert.Equal(t, "aaaaaa", urls[0].ShortKey)
	assert.Equal(t, "bbbbbb", urls[1].ShortKey)
	assert.Equal(t, "cccccc", urls[2].ShortKey)
}

func TestReserveQuotaUnitBoundary(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateUser(ctx, &user.User{ID: "u", Tier: 3}))

	for i := 0; i < 5; i++ {
		reserved, err := db.ReserveQuotaUnit(ctx, "u", 5)
		require.NoError(t, err)
		assert.True(t, reserved, "reservation %d should succeed", i+1)
	}

	reserved, err := db.ReserveQuotaUnit(ctx, "u", 5)
	require.NoError(t, err)
	assert.False(t, reserved)
}

func TestReserveQuotaUnitConcurrent(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateUser(ctx, &user.User{ID: "u", Tier: 3}))

	var wg sync.WaitGroup
	results := make(chan bool, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reserved, err := db.ReserveQuotaUnit(ctx, "u", 5)
			assert.NoError(t, err)
			results <- reserved
		}()
	}
	wg.Wait()
	close(results)

	admitted := 0
	for reserved := range results {
		if reserved {
			admitted++
		}
	}
	assert.Equal(t, 5, admitted)
}

func TestReleaseQuotaUnit(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateUser(ctx, &user.User{ID: "u", Tier: 3}))

	reserved, err := db.ReserveQuotaUnit(ctx, "u", 5)
	require.NoError(t, err)
	require.True(t, reserved)

	require.NoError(t, db.ReleaseQuotaUnit(ctx, "u"))

	usr, _, err := db.GetUserByID(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 0, usr.RequestCount)

	// The counter never goes below zero.
	require.NoError(t, db.ReleaseQuotaUnit(ctx, "u"))
	usr, _, err = db.GetUserByID(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 0, usr.RequestCount)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	db, fileName := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateUser(ctx, &user.User{ID: "u", Tier: 1, CreatedAt: time.Now().UTC()}))
	require.NoError(t, db.InsertURLMapping(ctx, models.URLRecord{
		ShortKey:    "deadbe",
		OriginalURL: "https://example.com/persisted",
		OwnerUserID: "u",
	}))
	require.NoError(t, db.Close())

	reopened, err := New(fileName)
	require.NoError(t, err)

	full, found, err := reopened.FindFullByShort(ctx, "deadbe")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "https://example.com/persisted", full)

	usr, found, err := reopened.GetUserByID(ctx, "u")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, usr.Tier)
}

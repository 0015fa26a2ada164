package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tierlink/tierlink/internal/db/memorystorage"
	"github.com/tierlink/tierlink/internal/mockstorage"
	"github.com/tierlink/tierlink/internal/models"
	"github.com/tierlink/tierlink/internal/quota"
	"github.com/tierlink/tierlink/internal/shortcode"
	"github.com/tierlink/tierlink/internal/user"
)

const (
	testShortURLBase      = "http://localhost:8080"
	testDefaultCodeLength = 8
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	storage, err := memorystorage.New()
	require.NoError(t, err)

	return New(storage, testShortURLBase, testDefaultCodeLength)
}

func TestRegisterDefaultsToTierThree(t *testing.T) {
	svc := newTestService(t)

	usr, err := svc.Register(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, quota.DefaultTier, usr.Tier)
	assert.NotEmpty(t, usr.ID)
	assert.False(t, usr.CreatedAt.IsZero())
	assert.Zero(t, usr.RequestCount)
}

func TestRegisterRejectsUnknownTier(t *testing.T) {
	svc := newTestService(t)

	for _, tier := range []int{4, -1, 42} {
		_, err := svc.Register(context.Background(), tier)
		assert.ErrorIs(t, err, quota.ErrUnknownTier)
	}
}

func TestRegisterGeneratesUniqueIDs(t *testing.T) {
	svc := newTestService(t)

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		usr, err := svc.Register(context.Background(), 1)
		require.NoError(t, err)
		assert.False(t, seen[usr.ID], "duplicated user ID %s", usr.ID)
		seen[usr.ID] = true
	}
}

func TestShortenHappyPath(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	usr, err := svc.Register(ctx, 1)
	require.NoError(t, err)

	record, err := svc.Shorten(ctx, usr.ID, "https://example.com/some/long/path", 7)
	require.NoError(t, err)

	assert.Len(t, record.ShortKey, 7)
	assert.Equal(t, usr.ID, record.OwnerUserID)
	assert.Equal(t, testShortURLBase+"/"+record.ShortKey, svc.ShortURL(record.ShortKey))

	full, found, err := svc.Resolve(ctx, record.ShortKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "https://example.com/some/long/path", full)
}

func TestShortenUsesDefaultLength(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	usr, err := svc.Register(ctx, 1)
	require.NoError(t, err)

	record, err := svc.Shorten(ctx, usr.ID, "https://example.com", 0)
	require.NoError(t, err)
	assert.Len(t, record.ShortKey, testDefaultCodeLength)
}

func TestShortenValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Shorten(ctx, "", "https://example.com", 7)
	assert.ErrorIs(t, err, ErrMissingUserID)

	_, err = svc.Shorten(ctx, "123", "https://example.com", 7)
	assert.ErrorIs(t, err, ErrUnknownUser)

	usr, err := svc.Register(ctx, 1)
	require.NoError(t, err)

	_, err = svc.Shorten(ctx, usr.ID, "", 7)
	assert.ErrorIs(t, err, ErrMissingURL)

	_, err = svc.Shorten(ctx, usr.ID, "https://example.com", 5)
	assert.ErrorIs(t, err, shortcode.ErrInvalidLength)
}

func TestShortenInvalidLengthDoesNotChargeQuota(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	usr, err := svc.Register(ctx, 3)
	require.NoError(t, err)

	_, err = svc.Shorten(ctx, usr.ID, "https://example.com", 5)
	require.ErrorIs(t, err, shortcode.ErrInvalidLength)

	// The whole tier 3 quota must still be available.
	for i := 0; i < 5; i++ {
		_, err := svc.Shorten(ctx, usr.ID, "https://example.com", 7)
		require.NoError(t, err)
	}
}

func TestShortenQuotaBoundaries(t *testing.T) {
	testCases := []struct {
		tier int
		max  int
	}{
		{tier: 1, max: 20},
		{tier: 2, max: 10},
		{tier: 3, max: 5},
	}

	for _, testCase := range testCases {
		svc := newTestService(t)
		ctx := context.Background()

		usr, err := svc.Register(ctx, testCase.tier)
		require.NoError(t, err)

		for i := 0; i < testCase.max; i++ {
			_, err := svc.Shorten(ctx, usr.ID, "https://example.com", 7)
			require.NoError(t, err, "request %d of tier %d should be admitted", i+1, testCase.tier)
		}

		_, err = svc.Shorten(ctx, usr.ID, "https://example.com", 7)
		require.Error(t, err)

		var exceeded *quota.ExceededError
		require.ErrorAs(t, err, &exceeded)
		assert.Equal(t, testCase.tier, exceeded.Tier)
	}
}

func TestShortenConcurrentLastUnit(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	usr, err := svc.Register(ctx, 3)
	require.NoError(t, err)

	// Spend all but the last quota unit.
	for i := 0; i < 4; i++ {
		_, err := svc.Shorten(ctx, usr.ID, "https://example.com", 7)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	results := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Shorten(ctx, usr.ID, "https://example.com/raced", 7)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		var exceeded *quota.ExceededError
		assert.ErrorAs(t, err, &exceeded)
	}
	assert.Equal(t, 1, succeeded, "exactly one racer may win the last quota unit")
}

func TestShortenCollisionRetryExhaustion(t *testing.T) {
	storageMock := &mockstorage.StorageMock{}
	svc := New(storageMock, testShortURLBase, testDefaultCodeLength)
	ctx := context.Background()

	usr := &user.User{ID: "u", Tier: 1}
	storageMock.On("GetUserByID", ctx, "u").Return(usr, true, nil)
	storageMock.On("ReserveQuotaUnit", ctx, "u", 20).Return(true, nil)
	storageMock.On("InsertURLMapping", ctx, mock.Anything).Return(models.ErrDuplicateShortKey)
	storageMock.On("ReleaseQuotaUnit", ctx, "u").Return(nil)

	_, err := svc.Shorten(ctx, "u", "https://example.com", 7)
	require.ErrorIs(t, err, ErrShortKeySpaceExhausted)

	storageMock.AssertNumberOfCalls(t, "InsertURLMapping", 3)
	storageMock.AssertNumberOfCalls(t, "ReleaseQuotaUnit", 1)
}

func TestShortenStorageFailureReleasesReservation(t *testing.T) {
	storageMock := &mockstorage.StorageMock{}
	svc := New(storageMock, testShortURLBase, testDefaultCodeLength)
	ctx := context.Background()

	usr := &user.User{ID: "u", Tier: 2}
	storageErr := errors.New("connection reset")
	storageMock.On("GetUserByID", ctx, "u").Return(usr, true, nil)
	storageMock.On("ReserveQuotaUnit", ctx, "u", 10).Return(true, nil)
	storageMock.On("InsertURLMapping", ctx, mock.Anything).Return(storageErr)
	storageMock.On("ReleaseQuotaUnit", ctx, "u").Return(nil)

	_, err := svc.Shorten(ctx, "u", "https://example.com", 7)
	require.ErrorIs(t, err, storageErr)

	storageMock.AssertNumberOfCalls(t, "InsertURLMapping", 1)
	storageMock.AssertCalled(t, "ReleaseQuotaUnit", ctx, "u")
}

func TestHistory(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	usr, err := svc.Register(ctx, 1)
	require.NoError(t, err)

	_, err = svc.History(ctx, "")
	assert.ErrorIs(t, err, ErrMissingUserID)

	_, err = svc.History(ctx, "123")
	assert.ErrorIs(t, err, ErrUnknownUser)

	urls, err := svc.History(ctx, usr.ID)
	require.NoError(t, err)
	assert.Empty(t, urls)

	first, err := svc.Shorten(ctx, usr.ID, "https://example.com/1", 7)
	require.NoError(t, err)
	second, err := svc.Shorten(ctx, usr.ID, "https://example.com/2", 7)
	require.NoError(t, err)

	urls, err = svc.History(ctx, usr.ID)
	require.NoError(t, err)
	require.Len(t, urls, 2)
	assert.Equal(t, first.ShortKey, urls[0].ShortKey)
	assert.Equal(t, second.ShortKey, urls[1].ShortKey)
}

func TestResolveUnknownKey(t *testing.T) {
	svc := newTestService(t)

	_, found, err := svc.Resolve(context.Background(), "nosuchkey")
	require.NoError(t, err)
	assert.False(t, found)
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]string
	hits    int
}

func (c *fakeCache) Get(_ context.Context, short string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	full, ok := c.entries[short]
	if ok {
		c.hits++
	}
	return full, ok
}

func (c *fakeCache) Set(_ context.Context, short, full string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[short] = full
}

func TestResolveUsesCache(t *testing.T) {
	storage, err := memorystorage.New()
	require.NoError(t, err)

	cache := &fakeCache{entries: map[string]string{}}
	svc := New(storage, testShortURLBase, testDefaultCodeLength, WithRedirectCache(cache))
	ctx := context.Background()

	usr, err := svc.Register(ctx, 1)
	require.NoError(t, err)

	record, err := svc.Shorten(ctx, usr.ID, "https://example.com/cached", 7)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		full, found, err := svc.Resolve(ctx, record.ShortKey)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "https://example.com/cached", full)
	}

	assert.Equal(t, 2, cache.hits, "the second and third lookup should hit the cache")
}

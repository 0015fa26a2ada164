// Package mockstorage provides a testify-based mock implementation
// of the storage interfaces used by the service and router packages.
// It is used in unit tests to simulate storage behavior.
package mockstorage

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/tierlink/tierlink/internal/models"
	"github.com/tierlink/tierlink/internal/user"
)

// StorageMock is a testify mock that implements all storage interfaces
// consumed by the service.
type StorageMock struct {
	mock.Mock
}

// CreateUser mocks user creation.
func (m *StorageMock) CreateUser(ctx context.Context, usr *user.User) error {
	args := m.Called(ctx, usr)
	return args.Error(0)
}

// GetUserByID mocks fetching a user by its ID.
func (m *StorageMock) GetUserByID(ctx context.Context, userID string) (*user.User, bool, error) {
	args := m.Called(ctx, userID)
	usr, _ := args.Get(0).(*user.User)
	return usr, args.Bool(1), args.Error(2)
}

// UserExists mocks the user presence check.
func (m *StorageMock) UserExists(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

// ReserveQuotaUnit mocks the atomic conditional increment of the counter.
func (m *StorageMock) ReserveQuotaUnit(ctx context.Context, userID string, maxRequests int) (bool, error) {
	args := m.Called(ctx, userID, maxRequests)
	return args.Bool(0), args.Error(1)
}

// ReleaseQuotaUnit mocks the compensating decrement.
func (m *StorageMock) ReleaseQuotaUnit(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// InsertURLMapping mocks inserting a new short URL record.
func (m *StorageMock) InsertURLMapping(ctx context.Context, record models.URLRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

// FindFullByShort mocks finding the original URL for a short key.
func (m *StorageMock) FindFullByShort(ctx context.Context, short string) (string, bool, error) {
	args := m.Called(ctx, short)
	return args.String(0), args.Bool(1), args.Error(2)
}

// GetUserUrls mocks fetching the history of a user.
func (m *StorageMock) GetUserUrls(ctx context.Context, ownerUserID string) (models.UserUrls, error) {
	args := m.Called(ctx, ownerUserID)
	urls, _ := args.Get(0).(models.UserUrls)
	return urls, args.Error(1)
}

// Ping mocks the health check.
func (m *StorageMock) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close mocks closing the storage.
func (m *StorageMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

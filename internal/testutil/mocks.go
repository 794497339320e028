package testutil

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/dgellow/checkin-front/internal/browserauth"
	"github.com/dgellow/checkin-front/internal/storage"
)

// MockStorage is a testify mock of storage.Storage for failure injection
type MockStorage struct {
	mock.Mock
}

var _ storage.Storage = (*MockStorage)(nil)

func (m *MockStorage) Get(ctx context.Context, id string) (*storage.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.Session), args.Error(1)
}

func (m *MockStorage) Put(ctx context.Context, session *storage.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockStorage) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStorage) PutPending(ctx context.Context, pending browserauth.PendingAuth, ttl time.Duration) error {
	args := m.Called(ctx, pending, ttl)
	return args.Error(0)
}

func (m *MockStorage) TakePending(ctx context.Context, nonce string) (*browserauth.PendingAuth, error) {
	args := m.Called(ctx, nonce)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*browserauth.PendingAuth), args.Error(1)
}

func (m *MockStorage) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStorage) Close() error {
	args := m.Called()
	return args.Error(0)
}

package contentstore

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockStore is a mock implementation of the Store interface for use in
// tests across the module.
type MockStore struct {
	mock.Mock
}

// Compile-time constraint to ensure MockStore implements Store.
var _ Store = (*MockStore)(nil)

func (m *MockStore) Put(ctx context.Context, data []byte) (string, error) {
	args := m.Called(ctx, data)

	return args.String(0), args.Error(1)
}

func (m *MockStore) Get(ctx context.Context, cid string) ([]byte, error) {
	args := m.Called(ctx, cid)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockStore) Pin(ctx context.Context, cid string) error {
	args := m.Called(ctx, cid)

	return args.Error(0)
}

func (m *MockStore) Unpin(ctx context.Context, cid string) error {
	args := m.Called(ctx, cid)

	return args.Error(0)
}

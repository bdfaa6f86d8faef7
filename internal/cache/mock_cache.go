package cache

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"quantumquery/internal/ingest"
)

// MockCache is a mock implementation of the Cache interface for testing
type MockCache struct {
	mock.Mock
}

func (m *MockCache) GetContexts(ctx context.Context, id string) ([]ingest.Result, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ingest.Result), args.Error(1)
}

func (m *MockCache) SetContexts(ctx context.Context, id string, contexts []ingest.Result, ttl time.Duration) error {
	args := m.Called(ctx, id, contexts, ttl)
	return args.Error(0)
}

func (m *MockCache) Close() error {
	args := m.Called()
	return args.Error(0)
}

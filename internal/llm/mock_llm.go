package llm

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockClient is a mock implementation of Client using testify/mock.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Complete(ctx context.Context, prompt string) (Answer, error) {
	args := m.Called(ctx, prompt)
	return args.Get(0).(Answer), args.Error(1)
}

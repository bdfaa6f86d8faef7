package ingest

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockRecognizer is a mock implementation of Recognizer using testify/mock.
type MockRecognizer struct {
	mock.Mock
}

func (m *MockRecognizer) Recognize(ctx context.Context, image []byte, mimeType string) (string, error) {
	args := m.Called(ctx, image, mimeType)
	return args.String(0), args.Error(1)
}

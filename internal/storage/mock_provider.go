package storage

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

// MockProvider is a mock implementation of the Provider interface for testing.
type MockProvider struct {
	mock.Mock
}

// Exists is the mock implementation of the Exists method.
func (m *MockProvider) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1) //nolint:wrapcheck
}

// PutObject is the mock implementation of the PutObject method. The reader is
// consumed and passed to the expectation as a string.
func (m *MockProvider) PutObject(ctx context.Context, key string, contentType string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err //nolint:wrapcheck
	}
	args := m.Called(ctx, key, contentType, string(data))
	return args.String(0), args.Error(1) //nolint:wrapcheck
}

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/benmeehan/tak-agent/internal/tak"
)

// MockTAKClient is a mock implementation of the services.TAKClient interface
type MockTAKClient struct {
	mock.Mock
}

func (m *MockTAKClient) Connect(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTAKClient) Disconnect() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTAKClient) Snapshot() tak.Snapshot {
	args := m.Called()
	return args.Get(0).(tak.Snapshot)
}

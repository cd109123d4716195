package cmd

import (
	"context"
	"errors"

	"github.com/anicoll/solarlog-integration/internal/pkg/model"
	"github.com/anicoll/solarlog-integration/internal/pkg/solarlog"
)

// MockSolarlogService is a mock implementation of the SolarlogService interface.
type MockSolarlogService struct {
	LoginFunc    func(ctx context.Context) (*solarlog.Session, error)
	SnapshotFunc func(ctx context.Context) (*model.DeviceSnapshot, error)
	PingFunc     func(ctx context.Context) bool
	CloseFunc    func()
}

func (m *MockSolarlogService) Login(ctx context.Context) (*solarlog.Session, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx)
	}
	return &solarlog.Session{}, nil
}

func (m *MockSolarlogService) Snapshot(ctx context.Context) (*model.DeviceSnapshot, error) {
	if m.SnapshotFunc != nil {
		return m.SnapshotFunc(ctx)
	}
	return nil, errors.New("mocked Snapshot not implemented")
}

func (m *MockSolarlogService) Ping(ctx context.Context) bool {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return true
}

func (m *MockSolarlogService) Close() {
	if m.CloseFunc != nil {
		m.CloseFunc()
	}
}

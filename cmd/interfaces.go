package cmd

import (
	"context"

	"github.com/anicoll/solarlog-integration/internal/pkg/model"
	"github.com/anicoll/solarlog-integration/internal/pkg/solarlog"
)

// SolarlogService defines what cmd.run expects from a Solar-Log client.
type SolarlogService interface {
	Login(ctx context.Context) (*solarlog.Session, error)
	Snapshot(ctx context.Context) (*model.DeviceSnapshot, error)
	Ping(ctx context.Context) bool
	Close()
}

var _ SolarlogService = (*solarlog.Client)(nil)

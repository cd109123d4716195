package publisher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/solarlog-integration/internal/pkg/model"
)

var errAlreadyRegistered = errors.New("publisher already registered")

var (
	mu                   sync.Mutex
	registeredPublishers = make(map[string]publisher)
	registeredSensors    = make(map[string]struct{})
	sensors              sync.Map
)

type publisher interface {
	// Write publishes changed sensor values.
	Write(ctx context.Context, data []map[string]any) error
	// RegisterDevice announces a device and its sensors.
	RegisterDevice(device *model.Device, statuses []model.DeviceStatus) error
}

func RegisterPublisher(name string, publisher publisher) error {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := registeredPublishers[name]; ok {
		return errAlreadyRegistered
	}
	registeredPublishers[name] = publisher
	return nil
}

// PublishSnapshot registers devices seen for the first time and publishes
// every value that changed since the last snapshot.
func PublishSnapshot(ctx context.Context, root model.Device, snapshot *model.DeviceSnapshot) error {
	devices := Devices(root, snapshot)
	for device, statuses := range devices {
		if err := RegisterDevice(&device, statuses); err != nil {
			return err
		}
	}
	return PublishData(ctx, snapshot.Timestamp, devices)
}

// PublishData writes every value that changed since its last successful
// write. Values are only remembered once all publishers took them, so a
// failed write is repeated on the next call.
func PublishData(ctx context.Context, timestamp time.Time, deviceStatusMap map[model.Device][]model.DeviceStatus) error {
	data := make([]map[string]any, 0)
	changed := make(map[string]string)
	for device, statuses := range deviceStatusMap {
		for _, status := range statuses {
			if status.Value == nil {
				continue
			}
			val, unit := normalize(status)
			key := sensorKey(device.ID, status.Slug)
			if !shouldUpdate(key, val) {
				continue
			}
			changed[key] = val
			data = append(data, map[string]any{
				"value":               val,
				"slug":                status.Slug,
				"timestamp":           timestamp,
				"identifier":          device.ID,
				"unit_of_measurement": string(unit),
			})
		}
	}

	mu.Lock()
	defer mu.Unlock()
	failed := false
	for name, publisher := range registeredPublishers {
		if err := publisher.Write(ctx, data); err != nil {
			zap.L().Error("failed to publish data", zap.Error(err), zap.String("publisher", name))
			failed = true
			continue
		}
		zap.L().Debug("updated sensors", zap.Int("count", len(data)), zap.String("publisher", name))
	}
	if !failed {
		for key, val := range changed {
			sensors.Store(key, val)
		}
	}
	return nil
}

// RegisterDevice announces the sensors of device that no publisher has
// been told about yet.
func RegisterDevice(device *model.Device, statuses []model.DeviceStatus) error {
	mu.Lock()
	defer mu.Unlock()

	fresh := make([]model.DeviceStatus, 0, len(statuses))
	for _, status := range statuses {
		if _, ok := registeredSensors[sensorKey(device.ID, status.Slug)]; !ok {
			fresh = append(fresh, status)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	failed := false
	for name, publisher := range registeredPublishers {
		if err := publisher.RegisterDevice(device, fresh); err != nil {
			zap.L().Error("failed to register device", zap.Error(err), zap.String("publisher", name))
			failed = true
			continue
		}
		zap.L().Debug("registered device", zap.String("device", device.ID), zap.Int("sensors", len(fresh)), zap.String("publisher", name))
	}
	if !failed {
		for _, status := range fresh {
			registeredSensors[sensorKey(device.ID, status.Slug)] = struct{}{}
		}
	}
	return nil
}

// normalize formats a value for publishing. Energy is published in kWh.
func normalize(status model.DeviceStatus) (string, model.NumericUnit) {
	if model.TextSensors.HasSlug(status.Slug) {
		return *status.Value, model.NumericUnitNone
	}
	value, ok := new(big.Rat).SetString(*status.Value)
	if !ok {
		return *status.Value, status.Unit
	}
	unit := status.Unit.Published()
	if unit != status.Unit {
		value = value.Quo(value, big.NewRat(1000, 1))
	}
	return value.FloatString(4), unit
}

func sensorKey(identifier, slug string) string {
	return fmt.Sprintf("%s_%s", identifier, slug)
}

// shouldUpdate reports whether newValue differs from the last value written for key.
func shouldUpdate(key, newValue string) bool {
	oldValue, exists := sensors.Load(key)
	if exists && strings.EqualFold(newValue, oldValue.(string)) {
		return false
	}
	if !exists {
		zap.L().Info("configured sensor", zap.String("sensor", key), zap.String("value", newValue))
	}
	return true
}

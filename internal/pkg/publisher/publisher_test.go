package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anicoll/solarlog-integration/internal/pkg/model"
)

type fakePublisher struct {
	writes     [][]map[string]any
	registered []string
	announced  map[string][]string
	writeErr   error
}

func (f *fakePublisher) Write(_ context.Context, data []map[string]any) error {
	f.writes = append(f.writes, data)
	return f.writeErr
}

func (f *fakePublisher) RegisterDevice(device *model.Device, statuses []model.DeviceStatus) error {
	f.registered = append(f.registered, device.ID)
	for _, s := range statuses {
		f.announced[device.ID] = append(f.announced[device.ID], s.Slug)
	}
	return nil
}

func reset(t *testing.T) *fakePublisher {
	t.Helper()
	mu.Lock()
	registeredPublishers = make(map[string]publisher)
	registeredSensors = make(map[string]struct{})
	mu.Unlock()
	sensors = sync.Map{}

	f := &fakePublisher{announced: map[string][]string{}}
	require.NoError(t, RegisterPublisher("fake", f))
	return f
}

func testSnapshot() *model.DeviceSnapshot {
	return &model.DeviceSnapshot{
		Timestamp:        time.Date(2024, 9, 24, 14, 10, 0, 0, time.UTC),
		TotalPower:       lo.ToPtr(4200.0),
		TotalEnergyToday: lo.ToPtr(18000.0),
		Computed:         &model.ComputedData{Efficiency: lo.ToPtr(0.5)},
		Inverters: []model.InverterReading{{
			ID:       "0",
			Slot:     lo.ToPtr(0),
			Name:     "Roof",
			Status:   model.StatusOK,
			Power:    lo.ToPtr(2000.0),
			Voltages: []float64{400, 398},
		}},
	}
}

func byslug(statuses []model.DeviceStatus) map[string]string {
	out := map[string]string{}
	for _, s := range statuses {
		out[s.Slug] = *s.Value
	}
	return out
}

func TestDevices(t *testing.T) {
	root := model.Device{ID: "solar_log", Name: "Solar-Log"}
	devices := Devices(root, testSnapshot())
	require.Len(t, devices, 2)

	assert.Equal(t, map[string]string{
		"total_power":  "4200",
		"energy_today": "18000",
		"efficiency":   "50",
	}, byslug(devices[root]))

	inverter := model.Device{ID: "solar_log_inverter_0", Name: "Roof", Parent: "solar_log"}
	assert.Equal(t, map[string]string{
		"status":    "OK",
		"name":      "Roof",
		"power":     "2000",
		"voltage_1": "400",
		"voltage_2": "398",
	}, byslug(devices[inverter]))
}

func TestPublishSnapshot_OnlyChangedValues(t *testing.T) {
	f := reset(t)
	root := model.Device{ID: "solar_log", Name: "Solar-Log"}

	require.NoError(t, PublishSnapshot(context.Background(), root, testSnapshot()))
	require.Len(t, f.writes, 1)
	assert.Len(t, f.writes[0], 8)
	assert.ElementsMatch(t, []string{"solar_log", "solar_log_inverter_0"}, f.registered)

	next := testSnapshot()
	next.TotalPower = lo.ToPtr(4300.0)
	require.NoError(t, PublishSnapshot(context.Background(), root, next))
	require.Len(t, f.writes, 2)
	require.Len(t, f.writes[1], 1)
	assert.Equal(t, "total_power", f.writes[1][0]["slug"])
	assert.Equal(t, "4300.0000", f.writes[1][0]["value"])
	assert.Len(t, f.registered, 2)
}

func TestPublishSnapshot_AnnouncesSensorsSeenLater(t *testing.T) {
	f := reset(t)
	root := model.Device{ID: "solar_log", Name: "Solar-Log"}

	require.NoError(t, PublishSnapshot(context.Background(), root, testSnapshot()))
	assert.NotContains(t, f.announced["solar_log_inverter_0"], "temperature")

	next := testSnapshot()
	next.Inverters[0].Temperature = lo.ToPtr(41.5)
	require.NoError(t, PublishSnapshot(context.Background(), root, next))

	assert.Equal(t, []string{"status", "name", "power", "voltage_1", "voltage_2", "temperature"}, f.announced["solar_log_inverter_0"])
	require.Len(t, f.writes, 2)
	require.Len(t, f.writes[1], 1)
	assert.Equal(t, "temperature", f.writes[1][0]["slug"])
}

func TestPublishSnapshot_RepeatsFailedWrites(t *testing.T) {
	f := reset(t)
	f.writeErr = errors.New("broker down")
	root := model.Device{ID: "solar_log", Name: "Solar-Log"}

	require.NoError(t, PublishSnapshot(context.Background(), root, testSnapshot()))
	require.Len(t, f.writes, 1)
	assert.Len(t, f.writes[0], 8)

	f.writeErr = nil
	require.NoError(t, PublishSnapshot(context.Background(), root, testSnapshot()))
	require.Len(t, f.writes, 2)
	assert.Len(t, f.writes[1], 8)

	require.NoError(t, PublishSnapshot(context.Background(), root, testSnapshot()))
	assert.Empty(t, f.writes[2])
}

func TestRegisterPublisher_Duplicate(t *testing.T) {
	reset(t)
	assert.ErrorIs(t, RegisterPublisher("fake", &fakePublisher{}), errAlreadyRegistered)
}

func TestNormalize(t *testing.T) {
	val, unit := normalize(model.DeviceStatus{Slug: "energy_today", Value: lo.ToPtr("18000"), Unit: model.NumericUnitWattHour})
	assert.Equal(t, "18.0000", val)
	assert.Equal(t, model.NumericUnitKiloWattHour, unit)

	val, unit = normalize(model.DeviceStatus{Slug: "status", Value: lo.ToPtr("OFFLINE")})
	assert.Equal(t, "OFFLINE", val)
	assert.Equal(t, model.NumericUnitNone, unit)

	val, _ = normalize(model.DeviceStatus{Slug: "power", Value: lo.ToPtr("12.5"), Unit: model.NumericUnitWatt})
	assert.Equal(t, "12.5000", val)
}

package publisher

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gosimple/slug"

	"github.com/anicoll/solarlog-integration/internal/pkg/model"
)

// Devices maps a snapshot onto publishable devices: root for the Solar-Log
// itself and one child per inverter. Values the device did not report are
// left out.
func Devices(root model.Device, snapshot *model.DeviceSnapshot) map[model.Device][]model.DeviceStatus {
	out := make(map[model.Device][]model.DeviceStatus, len(snapshot.Inverters)+1)

	statuses := []model.DeviceStatus{
		numeric("Total Power", snapshot.TotalPower, model.NumericUnitWatt),
		numeric("Energy Today", snapshot.TotalEnergyToday, model.NumericUnitWattHour),
		numeric("Energy Month", snapshot.TotalEnergyMonth, model.NumericUnitWattHour),
		numeric("Energy Year", snapshot.TotalEnergyYear, model.NumericUnitWattHour),
	}
	if b := snapshot.Basic; b != nil {
		statuses = append(statuses,
			numeric("Power DC", b.PowerDC, model.NumericUnitWatt),
			numeric("Voltage AC", b.VoltageAC, model.NumericUnitVolt),
			numeric("Voltage DC", b.VoltageDC, model.NumericUnitVolt),
			numeric("Yield Yesterday", b.YieldYesterday, model.NumericUnitWattHour),
			numeric("Yield Total", b.YieldTotal, model.NumericUnitWattHour),
			numeric("Consumption AC", b.ConsumptionAC, model.NumericUnitWatt),
			numeric("Consumption Day", b.ConsumptionDay, model.NumericUnitWattHour),
			numeric("Consumption Yesterday", b.ConsumptionYesterday, model.NumericUnitWattHour),
			numeric("Consumption Month", b.ConsumptionMonth, model.NumericUnitWattHour),
			numeric("Consumption Year", b.ConsumptionYear, model.NumericUnitWattHour),
			numeric("Consumption Total", b.ConsumptionTotal, model.NumericUnitWattHour),
			numeric("Installed Power", b.InstalledPower, model.NumericUnitWatt),
		)
	}
	if e := snapshot.Energy; e != nil {
		statuses = append(statuses,
			numeric("Production Year", e.ProductionYear, model.NumericUnitWattHour),
			numeric("Self Consumption Year", e.SelfConsumptionYear, model.NumericUnitWattHour),
		)
	}
	if c := snapshot.Computed; c != nil {
		statuses = append(statuses,
			numeric("Alternator Loss", c.AlternatorLoss, model.NumericUnitWatt),
			percent("Efficiency", c.Efficiency),
			percent("Usage", c.Usage),
			percent("Capacity", c.Capacity),
			numeric("Power Available", c.PowerAvailable, model.NumericUnitWatt),
		)
	}
	out[root] = reported(statuses)

	for _, inv := range snapshot.Inverters {
		device := model.Device{
			ID:     root.ID + "_inverter_" + Slug(inv.ID),
			Name:   inv.DisplayName(),
			Parent: root.ID,
		}
		invStatuses := []model.DeviceStatus{
			text(model.InverterStatusTextSensor, inv.Status.String()),
			text(model.InverterNameTextSensor, inv.DisplayName()),
			numeric("Power", inv.Power, model.NumericUnitWatt),
			numeric("Temperature", inv.Temperature, model.NumericUnitDegreeC),
			numeric("Energy Today", inv.EnergyToday, model.NumericUnitWattHour),
		}
		for i, v := range inv.Voltages {
			invStatuses = append(invStatuses, numeric(fmt.Sprintf("Voltage %d", i+1), &v, model.NumericUnitVolt))
		}
		for i, v := range inv.Currents {
			invStatuses = append(invStatuses, numeric(fmt.Sprintf("Current %d", i+1), &v, model.NumericUnitAmp))
		}
		out[device] = reported(invStatuses)
	}
	return out
}

// Slug turns a display name into a sensor or topic identifier.
func Slug(name string) string {
	return strings.ReplaceAll(slug.Make(name), "-", "_")
}

func numeric(name string, v *float64, unit model.NumericUnit) model.DeviceStatus {
	status := model.DeviceStatus{Name: name, Slug: Slug(name), Unit: unit}
	if v != nil {
		s := strconv.FormatFloat(*v, 'f', -1, 64)
		status.Value = &s
	}
	return status
}

// percent publishes a ratio as a percentage.
func percent(name string, ratio *float64) model.DeviceStatus {
	if ratio == nil {
		return numeric(name, nil, model.NumericUnitPercent)
	}
	p := *ratio * 100
	return numeric(name, &p, model.NumericUnitPercent)
}

func text(sensor model.TextSensor, value string) model.DeviceStatus {
	return model.DeviceStatus{Name: strings.ToUpper(sensor.String()[:1]) + sensor.String()[1:], Slug: sensor.String(), Value: &value}
}

func reported(statuses []model.DeviceStatus) []model.DeviceStatus {
	out := statuses[:0]
	for _, s := range statuses {
		if s.Value != nil {
			out = append(out, s)
		}
	}
	return out
}

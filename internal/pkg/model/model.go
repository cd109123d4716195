package model

import "time"

// DeviceSnapshot is one point-in-time reading of a Solar-Log device and all
// of its known inverters. A fresh snapshot is built for every poll and is not
// modified afterwards.
//
// Optional values are pointers; nil means the device did not report the value.
type DeviceSnapshot struct {
	Timestamp time.Time `json:"timestamp"`

	TotalPower       *float64 `json:"total_power,omitempty"`        // W, current AC output of all inverters
	TotalEnergyToday *float64 `json:"total_energy_today,omitempty"` // Wh
	TotalEnergyMonth *float64 `json:"total_energy_month,omitempty"` // Wh
	TotalEnergyYear  *float64 `json:"total_energy_year,omitempty"`  // Wh

	Inverters []InverterReading `json:"inverters"`

	Basic    *BasicData    `json:"basic,omitempty"`
	Energy   *EnergyData   `json:"energy,omitempty"`
	Computed *ComputedData `json:"computed,omitempty"`
}

// Inverter returns the reading with the given id.
func (s *DeviceSnapshot) Inverter(id string) (InverterReading, bool) {
	for _, inv := range s.Inverters {
		if inv.ID == id {
			return inv, true
		}
	}
	return InverterReading{}, false
}

// BasicData holds the remaining fields of the device's basic data record.
type BasicData struct {
	PowerAC              *float64 `json:"power_ac,omitempty"`
	PowerDC              *float64 `json:"power_dc,omitempty"`
	VoltageAC            *float64 `json:"voltage_ac,omitempty"`
	VoltageDC            *float64 `json:"voltage_dc,omitempty"`
	YieldDay             *float64 `json:"yield_day,omitempty"`
	YieldYesterday       *float64 `json:"yield_yesterday,omitempty"`
	YieldMonth           *float64 `json:"yield_month,omitempty"`
	YieldYear            *float64 `json:"yield_year,omitempty"`
	YieldTotal           *float64 `json:"yield_total,omitempty"`
	ConsumptionAC        *float64 `json:"consumption_ac,omitempty"`
	ConsumptionDay       *float64 `json:"consumption_day,omitempty"`
	ConsumptionYesterday *float64 `json:"consumption_yesterday,omitempty"`
	ConsumptionMonth     *float64 `json:"consumption_month,omitempty"`
	ConsumptionYear      *float64 `json:"consumption_year,omitempty"`
	ConsumptionTotal     *float64 `json:"consumption_total,omitempty"`
	InstalledPower       *float64 `json:"installed_power,omitempty"` // Wp
}

// EnergyData is taken from the yearly energy records.
type EnergyData struct {
	ProductionYear      *float64 `json:"production_year,omitempty"`
	SelfConsumptionYear *float64 `json:"self_consumption_year,omitempty"`
}

// ComputedData is derived from BasicData. A value is nil when its inputs are
// missing or its divisor is zero.
type ComputedData struct {
	AlternatorLoss *float64 `json:"alternator_loss,omitempty"` // W, dc - ac
	Efficiency     *float64 `json:"efficiency,omitempty"`      // ac / dc
	Usage          *float64 `json:"usage,omitempty"`           // consumption / ac
	Capacity       *float64 `json:"capacity,omitempty"`        // ac / installed
	PowerAvailable *float64 `json:"power_available,omitempty"` // W, ac - consumption
}

// InverterReading is the state of a single inverter within a snapshot.
type InverterReading struct {
	ID          string    `json:"id"`
	Slot        *int      `json:"slot,omitempty"`
	Name        string    `json:"name,omitempty"`
	Status      Status    `json:"status"`
	Power       *float64  `json:"power,omitempty"` // W
	Voltages    []float64 `json:"voltages,omitempty"`
	Currents    []float64 `json:"currents,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`  // °C
	EnergyToday *float64  `json:"energy_today,omitempty"` // Wh
}

// DisplayName returns the configured name, falling back to the id.
func (r InverterReading) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}

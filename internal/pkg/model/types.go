package model

import "strings"

// Status is the operating state of an inverter as reported by the device.
type Status int

const (
	StatusUnknown Status = iota
	StatusOK
	StatusOffline
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusOffline:
		return "OFFLINE"
	case StatusError:
		return "ERROR"
	}
	return "UNKNOWN"
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	switch strings.ToUpper(string(text)) {
	case "OK":
		*s = StatusOK
	case "OFFLINE":
		*s = StatusOffline
	case "ERROR":
		*s = StatusError
	default:
		*s = StatusUnknown
	}
	return nil
}

type NumericUnit string

const (
	NumericUnitWatt         NumericUnit = "W"
	NumericUnitWattHour     NumericUnit = "Wh"
	NumericUnitKiloWattHour NumericUnit = "kWh"
	NumericUnitVolt         NumericUnit = "V"
	NumericUnitAmp          NumericUnit = "A"
	NumericUnitDegreeC      NumericUnit = "°C"
	NumericUnitPercent      NumericUnit = "%"
	NumericUnitNone         NumericUnit = ""
)

// Published is the unit a value goes out in. Energy is published in kWh.
func (u NumericUnit) Published() NumericUnit {
	if u == NumericUnitWattHour {
		return NumericUnitKiloWattHour
	}
	return u
}

type (
	TextSensor  string
	TextSensorz []TextSensor
)

const (
	InverterStatusTextSensor TextSensor = "status"
	InverterNameTextSensor   TextSensor = "name"
)

func (t TextSensor) String() string {
	return string(t)
}

func (ts TextSensorz) HasSlug(slug string) bool {
	for _, t := range ts {
		if t.String() == slug {
			return true
		}
	}
	return false
}

var TextSensors TextSensorz = TextSensorz{
	InverterStatusTextSensor,
	InverterNameTextSensor,
}

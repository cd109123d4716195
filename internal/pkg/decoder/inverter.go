package decoder

import (
	"strconv"

	"github.com/samber/lo"

	"github.com/anicoll/solarlog-integration/internal/pkg/model"
)

// Positions within an inverter record of the named overview:
//
//	[id, status, power, voltages?, currents?, temperature?]
//
// voltages and currents are a scalar or a list (one per string/phase).
const (
	posID = iota
	posStatus
	posPower
	posVoltages
	posCurrents
	posTemperature

	minInverterRecord = posPower + 1
)

// Positions within the live record (776/<slot>) of the numeric interface:
//
//	[status, power, voltages, currents, temperature?]
const (
	livePosStatus = iota
	livePosPower
	livePosVoltages
	livePosCurrents
	livePosTemperature

	minLiveRecord = livePosVoltages + 1
)

// Inverter decodes one inverter record. Records are normally positional
// lists; an object with named keys is accepted as well.
func (d *Decoder) Inverter(raw RawPayload) (*model.InverterReading, error) {
	switch rec := raw.(type) {
	case []any:
		return positionalInverter(rec)
	case map[string]any:
		return namedInverter(rec)
	}
	return nil, decodeErr("inverter: expected list or object, got %T", raw)
}

func positionalInverter(rec []any) (*model.InverterReading, error) {
	if len(rec) < minInverterRecord {
		return nil, decodeErr("inverter: record has %d fields, want at least %d", len(rec), minInverterRecord)
	}
	id, ok := text(rec[posID])
	if !ok {
		return nil, decodeErr("inverter: missing id")
	}
	return &model.InverterReading{
		ID:          id,
		Status:      StatusFor(rec[posStatus]),
		Power:       optFloat(rec[posPower]),
		Voltages:    floats(at(rec, posVoltages)),
		Currents:    floats(at(rec, posCurrents)),
		Temperature: optFloat(at(rec, posTemperature)),
	}, nil
}

func namedInverter(rec map[string]any) (*model.InverterReading, error) {
	id, ok := text(rec["id"])
	if !ok {
		return nil, decodeErr("inverter: missing id")
	}
	reading := &model.InverterReading{
		ID:          id,
		Status:      StatusFor(rec["status"]),
		Power:       optFloat(rec["power"]),
		Voltages:    floats(first(rec, "voltages", "voltage")),
		Currents:    floats(first(rec, "currents", "current")),
		Temperature: optFloat(rec["temperature"]),
	}
	reading.Name, _ = text(rec["name"])
	return reading, nil
}

// InverterDetail decodes the answer to a detail query for one slot: the
// device name (141/<slot>/119) and the live record (776/<slot>). Either part
// may be missing; when both are missing the payload is not a detail answer.
func (d *Decoder) InverterDetail(slot int, raw RawPayload) (*model.InverterReading, error) {
	key := strconv.Itoa(slot)
	name, hasName := lookup(raw, CodeDeviceConfig, key, CodeDeviceName)
	live, hasLive := lookup(raw, CodeDeviceLive, key)
	if !hasName && !hasLive {
		return nil, decodeErr("inverter detail: no data for slot %d", slot)
	}

	reading := &model.InverterReading{
		ID:     key,
		Slot:   lo.ToPtr(slot),
		Status: model.StatusUnknown,
	}
	reading.Name, _ = text(name)

	if !hasLive || live == nil {
		return reading, nil
	}
	rec, ok := live.([]any)
	if !ok {
		return nil, decodeErr("inverter detail: live record is %T", live)
	}
	// some firmware wraps the record in a single-element list
	if inner, ok := at(rec, 0).([]any); ok && len(rec) == 1 {
		rec = inner
	}
	if len(rec) < minLiveRecord {
		return nil, decodeErr("inverter detail: live record has %d fields, want at least %d", len(rec), minLiveRecord)
	}
	reading.Status = StatusFor(rec[livePosStatus])
	reading.Power = optFloat(rec[livePosPower])
	reading.Voltages = floats(rec[livePosVoltages])
	reading.Currents = floats(at(rec, livePosCurrents))
	reading.Temperature = optFloat(at(rec, livePosTemperature))
	return reading, nil
}

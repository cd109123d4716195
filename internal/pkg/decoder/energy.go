package decoder

import (
	"github.com/anicoll/solarlog-integration/internal/pkg/model"
)

// Positions within a yearly energy record (878).
const (
	energyPosProduction      = 1
	energyPosSelfConsumption = 3

	minEnergyRecord = energyPosSelfConsumption + 1
)

// Energy is the decoded answer of an energy query.
type Energy struct {
	// PerInverter holds today's energy (Wh) by device slot.
	PerInverter map[int]float64
	Year        *model.EnergyData
}

// Energy decodes the 854 (daily energy per device) and 878 (yearly
// production and self consumption) answers. Only the most recent record of
// each series is used.
func (d *Decoder) Energy(raw RawPayload) (*Energy, error) {
	root, ok := object(raw)
	if !ok {
		return nil, decodeErr("energy: expected object, got %T", raw)
	}
	daily, hasDaily := root[CodeEnergyPerDevice]
	yearly, hasYearly := root[CodeEnergyYear]
	if !hasDaily && !hasYearly {
		return nil, decodeErr("energy: unrecognized keys %v", sortedKeys(root))
	}

	out := &Energy{PerInverter: map[int]float64{}}
	if rec, ok, err := lastRecord(daily, CodeEnergyPerDevice, 1); err != nil {
		return nil, err
	} else if ok {
		values, isList := rec[len(rec)-1].([]any)
		if !isList {
			return nil, decodeErr("energy: %s record does not end with a device list", CodeEnergyPerDevice)
		}
		for slot, v := range values {
			if wh, ok := number(v); ok {
				out.PerInverter[slot] = wh
			}
		}
	}

	if rec, ok, err := lastRecord(yearly, CodeEnergyYear, minEnergyRecord); err != nil {
		return nil, err
	} else if ok {
		out.Year = &model.EnergyData{
			ProductionYear:      optFloat(rec[energyPosProduction]),
			SelfConsumptionYear: optFloat(rec[energyPosSelfConsumption]),
		}
	}
	return out, nil
}

// lastRecord returns the last element of a list of positional records.
// A nil or empty series reports ok == false.
func lastRecord(series any, code string, minLen int) ([]any, bool, error) {
	if series == nil {
		return nil, false, nil
	}
	list, ok := series.([]any)
	if !ok {
		return nil, false, decodeErr("energy: %s is %T, want list", code, series)
	}
	if len(list) == 0 {
		return nil, false, nil
	}
	rec, ok := list[len(list)-1].([]any)
	if !ok {
		return nil, false, decodeErr("energy: %s record is %T, want list", code, list[len(list)-1])
	}
	if len(rec) < minLen {
		return nil, false, decodeErr("energy: %s record has %d fields, want at least %d", code, len(rec), minLen)
	}
	return rec, true, nil
}

package decoder

import (
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/anicoll/solarlog-integration/internal/pkg/model"
)

// Query codes of the classic numeric interface.
const (
	CodeBasicData       = "801"
	CodeBasicRecord     = "170"
	CodeDeviceList      = "740"
	CodePowerPerDevice  = "782"
	CodeStatusPerDevice = "608"
	CodeDeviceConfig    = "141"
	CodeDeviceName      = "119"
	CodeDeviceLive      = "776"
	CodeEnergyPerDevice = "854"
	CodeEnergyYear      = "878"
)

// Keys of the basic data record (801/170).
const (
	keyLastUpdated          = "100"
	keyPowerAC              = "101"
	keyPowerDC              = "102"
	keyVoltageAC            = "103"
	keyVoltageDC            = "104"
	keyYieldDay             = "105"
	keyYieldYesterday       = "106"
	keyYieldMonth           = "107"
	keyYieldYear            = "108"
	keyYieldTotal           = "109"
	keyConsumptionAC        = "110"
	keyConsumptionDay       = "111"
	keyConsumptionYesterday = "112"
	keyConsumptionMonth     = "113"
	keyConsumptionYear      = "114"
	keyConsumptionTotal     = "115"
	keyInstalledPower       = "116"
)

// Keys of the named overview variant.
const (
	keyTimestamp   = "timestamp"
	keyTotalPower  = "total_power"
	keyEnergyToday = "energy_today"
	keyEnergyMonth = "energy_month"
	keyEnergyYear  = "energy_year"
	keyInverters   = "inverters"
)

const legacyTimeLayout = "02.01.06 15:04:05"

// maxEpoch bounds epoch timestamps to a plausible range (until year 2242).
const maxEpoch = math.MaxInt32 * 4

// Overview decodes an overview payload. Two top-level shapes are accepted:
// the numeric variant keyed by query codes ("801", "740", ...) and the named
// variant ("total_power", "inverters", ...). Any other shape is ErrDecode.
func (d *Decoder) Overview(raw RawPayload) (*model.DeviceSnapshot, error) {
	root, ok := object(raw)
	if !ok {
		return nil, decodeErr("overview: expected object, got %T", raw)
	}
	if isNumericOverview(root) {
		return d.numericOverview(root)
	}
	if isNamedOverview(root) {
		return d.namedOverview(root)
	}
	return nil, decodeErr("overview: unrecognized keys %v", sortedKeys(root))
}

func isNumericOverview(root map[string]any) bool {
	return lo.SomeBy([]string{CodeBasicData, CodeDeviceList, CodePowerPerDevice}, func(k string) bool {
		_, ok := root[k]
		return ok
	})
}

func isNamedOverview(root map[string]any) bool {
	return lo.SomeBy([]string{keyTotalPower, keyInverters, keyEnergyToday}, func(k string) bool {
		_, ok := root[k]
		return ok
	})
}

func (d *Decoder) numericOverview(root map[string]any) (*model.DeviceSnapshot, error) {
	snapshot := &model.DeviceSnapshot{Timestamp: d.now().In(d.loc)}

	if record, ok := lookup(root, CodeBasicData, CodeBasicRecord); ok {
		if basic, ok := object(record); ok {
			if ts, ok := d.timestamp(basic[keyLastUpdated]); ok {
				snapshot.Timestamp = ts
			}
			snapshot.Basic = basicData(basic)
			snapshot.TotalPower = snapshot.Basic.PowerAC
			snapshot.TotalEnergyToday = snapshot.Basic.YieldDay
			snapshot.TotalEnergyMonth = snapshot.Basic.YieldMonth
			snapshot.TotalEnergyYear = snapshot.Basic.YieldYear
			snapshot.Computed = Compute(snapshot.Basic)
		}
	}

	inverters, err := numericInverters(root)
	if err != nil {
		return nil, err
	}
	snapshot.Inverters = inverters
	return snapshot, nil
}

func basicData(rec map[string]any) *model.BasicData {
	return &model.BasicData{
		PowerAC:              optFloat(rec[keyPowerAC]),
		PowerDC:              optFloat(rec[keyPowerDC]),
		VoltageAC:            optFloat(rec[keyVoltageAC]),
		VoltageDC:            optFloat(rec[keyVoltageDC]),
		YieldDay:             optFloat(rec[keyYieldDay]),
		YieldYesterday:       optFloat(rec[keyYieldYesterday]),
		YieldMonth:           optFloat(rec[keyYieldMonth]),
		YieldYear:            optFloat(rec[keyYieldYear]),
		YieldTotal:           optFloat(rec[keyYieldTotal]),
		ConsumptionAC:        optFloat(rec[keyConsumptionAC]),
		ConsumptionDay:       optFloat(rec[keyConsumptionDay]),
		ConsumptionYesterday: optFloat(rec[keyConsumptionYesterday]),
		ConsumptionMonth:     optFloat(rec[keyConsumptionMonth]),
		ConsumptionYear:      optFloat(rec[keyConsumptionYear]),
		ConsumptionTotal:     optFloat(rec[keyConsumptionTotal]),
		InstalledPower:       optFloat(rec[keyInstalledPower]),
	}
}

// numericInverters joins the per-slot maps 740 (device list), 782 (power)
// and 608 (status). A slot marked "Err" in the device list is empty. When
// the device list is missing the slots of the power map are used.
func numericInverters(root map[string]any) ([]model.InverterReading, error) {
	devices, hasDevices := slotMap(root, CodeDeviceList)
	powers, _ := slotMap(root, CodePowerPerDevice)
	statuses, _ := slotMap(root, CodeStatusPerDevice)

	source := devices
	if !hasDevices {
		source = powers
	}

	slots := make([]int, 0, len(source))
	for key, v := range source {
		slot, err := strconv.Atoi(key)
		if err != nil {
			return nil, decodeErr("device list: slot %q is not a number", key)
		}
		if hasDevices {
			if _, ok := text(v); !ok {
				continue
			}
		}
		slots = append(slots, slot)
	}
	slices.Sort(slots)

	readings := make([]model.InverterReading, 0, len(slots))
	for _, slot := range slots {
		key := strconv.Itoa(slot)
		reading := model.InverterReading{
			ID:     key,
			Slot:   lo.ToPtr(slot),
			Status: model.StatusUnknown,
			Power:  optFloat(powers[key]),
		}
		if hasDevices {
			reading.Name, _ = text(devices[key])
		}
		if code, ok := statuses[key]; ok {
			reading.Status = StatusFor(code)
		}
		readings = append(readings, reading)
	}
	return readings, nil
}

// slotMap returns root[code] as an object. Some firmware sends the per-slot
// values as a list instead, which is indexed by position.
func slotMap(root map[string]any, code string) (map[string]any, bool) {
	switch v := root[code].(type) {
	case map[string]any:
		return v, true
	case []any:
		m := make(map[string]any, len(v))
		for i, item := range v {
			m[strconv.Itoa(i)] = item
		}
		return m, true
	}
	return map[string]any{}, false
}

func (d *Decoder) namedOverview(root map[string]any) (*model.DeviceSnapshot, error) {
	snapshot := &model.DeviceSnapshot{
		Timestamp:        d.now().In(d.loc),
		TotalPower:       optFloat(root[keyTotalPower]),
		TotalEnergyToday: optFloat(root[keyEnergyToday]),
		TotalEnergyMonth: optFloat(root[keyEnergyMonth]),
		TotalEnergyYear:  optFloat(root[keyEnergyYear]),
		Inverters:        []model.InverterReading{},
	}
	if ts, ok := d.timestamp(root[keyTimestamp]); ok {
		snapshot.Timestamp = ts
	}

	rawInverters, ok := root[keyInverters]
	if !ok || rawInverters == nil {
		return snapshot, nil
	}
	list, ok := rawInverters.([]any)
	if !ok {
		return nil, decodeErr("inverters: expected list, got %T", rawInverters)
	}

	seen := make(map[string]struct{}, len(list))
	for i, item := range list {
		reading, err := d.Inverter(item)
		if err != nil {
			return nil, decodeErr("inverters[%d]: %v", i, err)
		}
		if _, dup := seen[reading.ID]; dup {
			return nil, decodeErr("inverters[%d]: duplicate id %q", i, reading.ID)
		}
		seen[reading.ID] = struct{}{}
		snapshot.Inverters = append(snapshot.Inverters, *reading)
	}
	return snapshot, nil
}

// timestamp accepts the legacy "dd.mm.yy HH:MM:SS" text, RFC 3339 or epoch seconds.
func (d *Decoder) timestamp(v any) (time.Time, bool) {
	if s, ok := v.(string); ok {
		if t, err := time.ParseInLocation(legacyTimeLayout, s, d.loc); err == nil {
			return t, true
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.In(d.loc), true
		}
	}
	if epoch, ok := number(v); ok && epoch > 0 && epoch <= maxEpoch {
		return time.Unix(int64(epoch), 0).In(d.loc), true
	}
	return time.Time{}, false
}

func sortedKeys(m map[string]any) []string {
	keys := lo.Keys(m)
	slices.Sort(keys)
	return keys
}

package decoder

import (
	"github.com/samber/lo"

	"github.com/anicoll/solarlog-integration/internal/pkg/model"
)

// Compute derives values from the basic data record. Returns nil when no
// value could be derived.
func Compute(b *model.BasicData) *model.ComputedData {
	if b == nil {
		return nil
	}
	c := &model.ComputedData{
		AlternatorLoss: diff(b.PowerDC, b.PowerAC),
		Efficiency:     ratio(b.PowerAC, b.PowerDC),
		Usage:          ratio(b.ConsumptionAC, b.PowerAC),
		Capacity:       ratio(b.PowerAC, b.InstalledPower),
		PowerAvailable: diff(b.PowerAC, b.ConsumptionAC),
	}
	if *c == (model.ComputedData{}) {
		return nil
	}
	return c
}

func diff(a, b *float64) *float64 {
	if a == nil || b == nil {
		return nil
	}
	return lo.ToPtr(*a - *b)
}

func ratio(num, den *float64) *float64 {
	if num == nil || den == nil || *den == 0 {
		return nil
	}
	return lo.ToPtr(*num / *den)
}

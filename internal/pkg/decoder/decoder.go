package decoder

import (
	"time"

	"github.com/anicoll/solarlog-integration/internal/pkg/model"
)

// Decoder maps RawPayloads onto the domain model. The zero value is not
// usable, use New.
type Decoder struct {
	loc *time.Location
	now func() time.Time
}

func WithLocation(loc *time.Location) func(*Decoder) {
	return func(d *Decoder) {
		if loc != nil {
			d.loc = loc
		}
	}
}

func WithClock(now func() time.Time) func(*Decoder) {
	return func(d *Decoder) {
		d.now = now
	}
}

func New(opts ...func(*Decoder)) *Decoder {
	d := &Decoder{
		loc: time.UTC,
		now: time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

var std = New()

// DecodeOverview decodes an overview payload with the default decoder (UTC).
func DecodeOverview(raw RawPayload) (*model.DeviceSnapshot, error) {
	return std.Overview(raw)
}

// DecodeInverter decodes a single positional inverter record with the default decoder.
func DecodeInverter(raw RawPayload) (*model.InverterReading, error) {
	return std.Inverter(raw)
}

package decoder

import (
	"strings"

	"github.com/anicoll/solarlog-integration/internal/pkg/model"
)

// statusCodes maps the device's raw inverter flags to a Status. Flags not
// in the table decode as model.StatusUnknown.
var statusCodes = map[string]model.Status{
	"0":       model.StatusOK,
	"OK":      model.StatusOK,
	"ONLINE":  model.StatusOK,
	"1":       model.StatusOffline,
	"OFF":     model.StatusOffline,
	"OFFLINE": model.StatusOffline,
	"2":       model.StatusError,
	"ERR":     model.StatusError,
	"ERROR":   model.StatusError,
	"FAULT":   model.StatusError,
}

// StatusFor looks up a raw status flag.
func StatusFor(raw any) model.Status {
	var code string
	switch t := raw.(type) {
	case string:
		code = t
	default:
		f, ok := number(raw)
		if !ok {
			return model.StatusUnknown
		}
		code, _ = text(f)
	}
	if s, ok := statusCodes[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return s
	}
	return model.StatusUnknown
}

package decoder

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// sentinels are leaf values the device uses for "no value".
var sentinels = map[string]struct{}{
	"":     {},
	"--":   {},
	"-":    {},
	"ERR":  {},
	"NULL": {},
	"N/A":  {},
	"NAN":  {},
}

func isSentinel(s string) bool {
	_, ok := sentinels[strings.ToUpper(strings.TrimSpace(s))]
	return ok
}

// number coerces a leaf into a float64. Strings and json.Number are parsed,
// a lone comma followed by one or two digits is accepted as decimal separator.
func number(v any) (float64, bool) {
	var s string
	switch t := v.(type) {
	case nil:
		return 0, false
	case json.Number:
		s = t.String()
	case string:
		if isSentinel(t) {
			return 0, false
		}
		s = strings.TrimSpace(t)
		if strings.Contains(s, ",") {
			// "1,5" is a decimal comma; "1,234" may be a grouped thousand and is dropped
			comma := strings.Index(s, ",")
			if strings.Contains(s, ".") || strings.Count(s, ",") > 1 || len(s)-comma-1 >= 3 {
				return 0, false
			}
			s = strings.Replace(s, ",", ".", 1)
		}
	case float64:
		return finite(t)
	case float32:
		return finite(float64(t))
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return finite(f)
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func optFloat(v any) *float64 {
	f, ok := number(v)
	if !ok {
		return nil
	}
	return &f
}

// text coerces a leaf into a string. Numbers are formatted as the device sent them.
func text(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		if isSentinel(t) {
			return "", false
		}
		return strings.TrimSpace(t), true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	}
	return "", false
}

// floats accepts either a scalar or a list of scalars. Absent entries are dropped.
func floats(v any) []float64 {
	if list, ok := v.([]any); ok {
		return lo.FilterMap(list, func(item any, _ int) (float64, bool) {
			return number(item)
		})
	}
	if f, ok := number(v); ok {
		return []float64{f}
	}
	return nil
}

// lookup walks nested objects by key.
func lookup(v any, keys ...string) (any, bool) {
	for _, k := range keys {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		if v, ok = m[k]; !ok {
			return nil, false
		}
	}
	return v, true
}

// first returns the value of the first key present in m.
func first(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

func object(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// at returns list[i], or nil when i is out of range.
func at(list []any, i int) any {
	if i < 0 || i >= len(list) {
		return nil
	}
	return list[i]
}

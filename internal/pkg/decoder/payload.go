package decoder

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrDecode is returned when the top-level shape of a payload, or a
// positional record inside it, is not recognized.
var ErrDecode = errors.New("decode error")

// RawPayload is a response body as parsed JSON: nested map[string]any and
// []any values with json.Number leaves. It is only meant to live long enough
// to be decoded.
type RawPayload any

// Parse reads a device response body into a RawPayload. Numbers are kept as
// json.Number so that the decoder sees the device's own text.
func Parse(body []byte) (RawPayload, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after payload", ErrDecode)
	}
	return raw, nil
}

func decodeErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDecode, fmt.Sprintf(format, args...))
}

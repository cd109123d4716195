package solarlog

import (
	"bytes"
	"fmt"
)

// Markers are the body fragments the device uses instead of status codes.
// The device answers 200 for all of them, so they are matched on text.
// Firmware variants are supported by adding fragments, not code.
type Markers struct {
	// Expired marks a data answer sent for a missing or expired session.
	Expired []string
	// Busy marks a data answer the device could not compute right now.
	Busy []string

	LoginSuccess  []string
	WrongPassword []string
	// NoPassword is sent when the device has no user password configured.
	NoPassword []string
}

func DefaultMarkers() Markers {
	return Markers{
		Expired:       []string{"ACCESS DENIED"},
		Busy:          []string{"QUERY IMPOSSIBLE 000"},
		LoginSuccess:  []string{"SUCCESS - Password was correct"},
		WrongPassword: []string{"FAILED - Password was wrong"},
		NoPassword:    []string{"FAILED - User was wrong"},
	}
}

// check classifies a data answer. It returns ErrSessionExpired or an
// ErrUnexpectedResponse wrapping ErrDeviceBusy, nil when the body looks
// like data.
func (m Markers) check(body []byte) error {
	if marker, ok := containsAny(body, m.Expired); ok {
		return fmt.Errorf("%w: device answered %q", ErrSessionExpired, marker)
	}
	if marker, ok := containsAny(body, m.Busy); ok {
		return fmt.Errorf("%w: %w: device answered %q", ErrUnexpectedResponse, ErrDeviceBusy, marker)
	}
	return nil
}

func containsAny(body []byte, markers []string) (string, bool) {
	for _, marker := range markers {
		if marker != "" && bytes.Contains(body, []byte(marker)) {
			return marker, true
		}
	}
	return "", false
}

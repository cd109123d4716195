package solarlog

import (
	"errors"
	"fmt"
)

var (
	ErrConnection         = errors.New("solarlog: connection error")
	ErrTimeout            = errors.New("solarlog: timeout")
	ErrAuth               = errors.New("solarlog: authentication failed")
	ErrUnexpectedResponse = errors.New("solarlog: unexpected response")
	ErrSessionExpired     = errors.New("solarlog: session expired")
	ErrDeviceBusy         = errors.New("solarlog: device busy")
)

// StatusError is returned for any HTTP status other than 200.
type StatusError struct {
	Code int
	Path string
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("solarlog: %s answered with status %d", e.Path, e.Code)
}

func (e *StatusError) Unwrap() error {
	return ErrUnexpectedResponse
}

package solarlog

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

func WithPassword(password string) func(*Client) {
	return func(c *Client) {
		c.password = password
	}
}

// WithHTTPClient makes the client use a caller-owned connection pool.
func WithHTTPClient(client Doer) func(*Client) {
	return func(c *Client) {
		c.httpClient = client
	}
}

func WithTimeout(timeout time.Duration) func(*Client) {
	return func(c *Client) {
		c.timeout = timeout
	}
}

func WithLogger(logger *zap.Logger) func(*Client) {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithLocation sets the time zone the device clock runs in.
func WithLocation(loc *time.Location) func(*Client) {
	return func(c *Client) {
		c.location = loc
	}
}

func WithMarkers(markers Markers) func(*Client) {
	return func(c *Client) {
		c.markers = markers
	}
}

// WithExpiredMarkers replaces only the session-expired markers.
func WithExpiredMarkers(markers ...string) func(*Client) {
	return func(c *Client) {
		if len(markers) > 0 {
			c.markers.Expired = markers
		}
	}
}

// WithSessionTTL sets the age after which a session is replaced before use.
func WithSessionTTL(ttl time.Duration) func(*Client) {
	return func(c *Client) {
		c.sessionTTL = ttl
	}
}

// WithRequestInterval sets the minimum gap between two requests to the device.
func WithRequestInterval(interval time.Duration) func(*Client) {
	return func(c *Client) {
		c.requestInterval = interval
	}
}

// WithExtendedData enables per-inverter detail and energy queries on every snapshot.
func WithExtendedData(enabled bool) func(*Client) {
	return func(c *Client) {
		c.extended = enabled
	}
}

// WithEnabledInverters limits snapshots to the given inverter ids.
func WithEnabledInverters(enabled map[string]bool) func(*Client) {
	return func(c *Client) {
		c.enabled = enabled
	}
}

func defaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

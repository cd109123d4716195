package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	SolarlogCfg SolarlogConfig `envPrefix:"SOLARLOG_"`
	MqttCfg     MqttConfig     `envPrefix:"MQTT_"`

	PollSchedule string `env:"POLL_SCHEDULE" envDefault:"@every 30s"`
	HTTPAddr     string `env:"HTTP_ADDR" envDefault:"0.0.0.0:8000"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFile      string `env:"LOG_FILE"`
}

type SolarlogConfig struct {
	Host     string        `env:"HOST"`
	Password string        `env:"PASSWORD"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"10s"`
	Extended bool          `env:"EXTENDED" envDefault:"false"`
	Timezone string        `env:"TIMEZONE" envDefault:"UTC"`

	ExpiredMarkers   []string      `env:"EXPIRED_MARKERS" envSeparator:"|"`
	SessionTTL       time.Duration `env:"SESSION_TTL"`
	RequestInterval  time.Duration `env:"REQUEST_INTERVAL"`
	EnabledInverters []string      `env:"ENABLED_INVERTERS" envSeparator:","`
}

// MqttConfig is optional: without a host nothing is published.
type MqttConfig struct {
	Host            string `env:"HOST"`
	Username        string `env:"USER"`
	Password        string `env:"PASS"`
	ClientID        string `env:"CLIENT_ID" envDefault:"solarlog-integration"`
	DiscoveryPrefix string `env:"DISCOVERY_PREFIX" envDefault:"homeassistant"`
	BaseTopic       string `env:"BASE_TOPIC" envDefault:"solarlog"`
	DeviceName      string `env:"DEVICE_NAME" envDefault:"Solar-Log"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.SolarlogCfg.Host) == "" {
		errs = append(errs, errors.New("config: SOLARLOG_HOST is required"))
	}
	if c.SolarlogCfg.Timeout <= 0 {
		errs = append(errs, errors.New("config: SOLARLOG_TIMEOUT must be positive"))
	}
	if _, err := c.SolarlogCfg.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.PollSchedule == "" {
		errs = append(errs, errors.New("config: POLL_SCHEDULE is required"))
	}
	return errors.Join(errs...)
}

// Location returns the time zone the device clock runs in.
func (c SolarlogConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: SOLARLOG_TIMEZONE: %w", err)
	}
	return loc, nil
}

// Enabled returns the inverter ids to keep, nil when all are kept.
func (c SolarlogConfig) Enabled() map[string]bool {
	if len(c.EnabledInverters) == 0 {
		return nil
	}
	enabled := make(map[string]bool, len(c.EnabledInverters))
	for _, id := range c.EnabledInverters {
		if id = strings.TrimSpace(id); id != "" {
			enabled[id] = true
		}
	}
	return enabled
}

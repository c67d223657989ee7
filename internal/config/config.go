// Package config loads the sump-controller configuration file and the
// network environment written by pi-helper.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/sump-controller/internal/gpio"
	"github.com/sweeney/sump-controller/internal/pumping"
	"github.com/sweeney/sump-controller/internal/transport"
)

// DefaultPath is where the daemon looks for its config file.
const DefaultPath = "/etc/sump-controller.yaml"

// PiHelperEnv is the env file pi-helper writes network state to.
const PiHelperEnv = "/run/pi-helper.env"

// Config is the daemon configuration.
type Config struct {
	RemoteURL   string `yaml:"remote_url"`
	ComponentID string `yaml:"component_id"`
	Mission     string `yaml:"mission"`
	PingAddr    string `yaml:"ping_addr"`

	Poll                time.Duration `yaml:"poll"`
	PumpPoll            time.Duration `yaml:"pump_poll"`
	VerificationTimeout time.Duration `yaml:"verification_timeout"`
	CompletionTimeout   time.Duration `yaml:"completion_timeout"`
	HeartbeatInterval   time.Duration `yaml:"heartbeat_interval"`
	GraceDelay          time.Duration `yaml:"grace_delay"`
	UnknownDelay        time.Duration `yaml:"unknown_delay"`
	ErrorPause          time.Duration `yaml:"error_pause"`
	UnknownReportAfter  int           `yaml:"unknown_report_after"`

	GPIO      GPIOConfig      `yaml:"gpio"`
	Transport TransportConfig `yaml:"transport"`
	MQTT      MQTTConfig      `yaml:"mqtt"`

	HTTPAddr  string `yaml:"http_addr"`
	DebugFile string `yaml:"debug_file"`
}

// GPIOConfig selects the chip and BCM pins.
type GPIOConfig struct {
	Chip      string `yaml:"chip"`
	Pump      int    `yaml:"pump"`
	Bottom    int    `yaml:"bottom"`
	Top       int    `yaml:"top"`
	ActiveLow bool   `yaml:"active_low"`
}

// TransportConfig tunes retries, cooldowns and restart thresholds.
type TransportConfig struct {
	Attempts         int           `yaml:"attempts"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	Cooldown         time.Duration `yaml:"cooldown"`
	ConnectCooldown  time.Duration `yaml:"connect_cooldown"`
	RequestThreshold int           `yaml:"request_threshold"`
	ErrorThreshold   int           `yaml:"error_threshold"`
	ConnectThreshold int           `yaml:"connect_threshold"`
}

// MQTTConfig configures the status mirror. An empty broker disables it.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
}

// Default returns the configuration used for any key the file omits.
func Default() *Config {
	pc := pumping.DefaultConfig()
	tc := transport.DefaultOptions("")
	return &Config{
		ComponentID:         "1",
		Mission:             "Pump1Mission",
		Poll:                2 * time.Second,
		PumpPoll:            time.Second,
		VerificationTimeout: pc.VerificationTimeout,
		CompletionTimeout:   pc.CompletionTimeout,
		HeartbeatInterval:   pc.HeartbeatInterval,
		GraceDelay:          pc.GraceDelay,
		UnknownDelay:        pc.UnknownDelay,
		ErrorPause:          20 * time.Second,
		UnknownReportAfter:  pc.UnknownReportAfter,
		GPIO: GPIOConfig{
			Chip:   gpio.DefaultChip,
			Pump:   gpio.DefaultPinPump,
			Bottom: gpio.DefaultPinBottom,
			Top:    gpio.DefaultPinTop,
		},
		Transport: TransportConfig{
			Attempts:         tc.Attempts,
			RetryDelay:       tc.RetryDelay,
			RequestTimeout:   tc.RequestTimeout,
			Cooldown:         tc.Cooldown,
			ConnectCooldown:  tc.ConnectCooldown,
			RequestThreshold: tc.RequestThreshold,
			ErrorThreshold:   tc.ErrorThreshold,
			ConnectThreshold: tc.ConnectThreshold,
		},
		MQTT:      MQTTConfig{ClientID: "sump-controller"},
		HTTPAddr:  ":80",
		DebugFile: "debug",
	}
}

// Load reads the YAML file at path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem with the configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.RemoteURL == "" {
		errs = append(errs, errors.New("remote_url is required"))
	} else if u, err := url.Parse(c.RemoteURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("remote_url %q is not an absolute URL", c.RemoteURL))
	}
	if c.Transport.Attempts < 1 || c.Transport.Attempts > 5 {
		errs = append(errs, fmt.Errorf("transport.attempts must be 1..5, got %d", c.Transport.Attempts))
	}
	for _, d := range []struct {
		name string
		v    time.Duration
	}{
		{"poll", c.Poll},
		{"pump_poll", c.PumpPoll},
		{"verification_timeout", c.VerificationTimeout},
		{"completion_timeout", c.CompletionTimeout},
		{"heartbeat_interval", c.HeartbeatInterval},
		{"error_pause", c.ErrorPause},
		{"transport.retry_delay", c.Transport.RetryDelay},
		{"transport.request_timeout", c.Transport.RequestTimeout},
		{"transport.cooldown", c.Transport.Cooldown},
		{"transport.connect_cooldown", c.Transport.ConnectCooldown},
	} {
		if d.v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", d.name, d.v))
		}
	}
	if c.GraceDelay < 0 || c.UnknownDelay < 0 {
		errs = append(errs, errors.New("grace_delay and unknown_delay must not be negative"))
	}
	if c.UnknownReportAfter < 1 {
		errs = append(errs, fmt.Errorf("unknown_report_after must be at least 1, got %d", c.UnknownReportAfter))
	}
	for _, th := range []struct {
		name string
		v    int
	}{
		{"transport.request_threshold", c.Transport.RequestThreshold},
		{"transport.error_threshold", c.Transport.ErrorThreshold},
		{"transport.connect_threshold", c.Transport.ConnectThreshold},
	} {
		if th.v < 1 {
			errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", th.name, th.v))
		}
	}
	if c.GPIO.Bottom == c.GPIO.Top || c.GPIO.Pump == c.GPIO.Bottom || c.GPIO.Pump == c.GPIO.Top {
		errs = append(errs, errors.New("gpio pins must be distinct"))
	}
	return errors.Join(errs...)
}

// Pumping returns the lifecycle timings.
func (c *Config) Pumping() pumping.Config {
	return pumping.Config{
		VerificationTimeout: c.VerificationTimeout,
		CompletionTimeout:   c.CompletionTimeout,
		HeartbeatInterval:   c.HeartbeatInterval,
		GraceDelay:          c.GraceDelay,
		UnknownDelay:        c.UnknownDelay,
		UnknownReportAfter:  c.UnknownReportAfter,
	}
}

// TransportOptions returns the client options.
func (c *Config) TransportOptions() transport.Options {
	o := transport.DefaultOptions(c.RemoteURL)
	o.ComponentID = c.ComponentID
	o.Mission = c.Mission
	o.Attempts = c.Transport.Attempts
	o.RetryDelay = c.Transport.RetryDelay
	o.RequestTimeout = c.Transport.RequestTimeout
	o.Cooldown = c.Transport.Cooldown
	o.ConnectCooldown = c.Transport.ConnectCooldown
	o.RequestThreshold = c.Transport.RequestThreshold
	o.ErrorThreshold = c.Transport.ErrorThreshold
	o.ConnectThreshold = c.Transport.ConnectThreshold
	return o
}

// RemoteHost returns host:port of the remote URL, defaulting the port
// from the scheme.
func (c *Config) RemoteHost() string {
	u, err := url.Parse(c.RemoteURL)
	if err != nil {
		return ""
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	return net.JoinHostPort(u.Hostname(), port)
}

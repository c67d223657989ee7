package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeFile(t, "sump.yaml", "remote_url: http://pumps.local:8080\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ComponentID != "1" || cfg.Mission != "Pump1Mission" {
		t.Errorf("identity: got %q/%q", cfg.ComponentID, cfg.Mission)
	}
	if cfg.Poll != 2*time.Second || cfg.PumpPoll != time.Second {
		t.Errorf("poll: got %v/%v", cfg.Poll, cfg.PumpPoll)
	}
	if cfg.VerificationTimeout != 300*time.Second || cfg.CompletionTimeout != 600*time.Second {
		t.Errorf("timeouts: got %v/%v", cfg.VerificationTimeout, cfg.CompletionTimeout)
	}
	if cfg.GPIO.Pump != 12 || cfg.GPIO.Bottom != 5 || cfg.GPIO.Top != 6 {
		t.Errorf("pins: got %+v", cfg.GPIO)
	}
	if cfg.Transport.Attempts != 3 || cfg.Transport.ErrorThreshold != 200 {
		t.Errorf("transport: got %+v", cfg.Transport)
	}
	if cfg.HTTPAddr != ":80" || cfg.DebugFile != "debug" {
		t.Errorf("http/debug: got %q/%q", cfg.HTTPAddr, cfg.DebugFile)
	}
	if cfg.MQTT.Broker != "" {
		t.Errorf("mqtt should be disabled by default, got %q", cfg.MQTT.Broker)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeFile(t, "sump.yaml", `
remote_url: https://pumps.example.com/api
component_id: "7"
mission: Pump7Mission
poll: 500ms
verification_timeout: 2m
unknown_report_after: 3
gpio:
  pump: 17
  active_low: true
transport:
  attempts: 5
  cooldown: 90s
mqtt:
  broker: tcp://192.168.1.200:1883
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ComponentID != "7" || cfg.Mission != "Pump7Mission" {
		t.Errorf("identity: got %q/%q", cfg.ComponentID, cfg.Mission)
	}
	if cfg.Poll != 500*time.Millisecond || cfg.VerificationTimeout != 2*time.Minute {
		t.Errorf("durations: got %v/%v", cfg.Poll, cfg.VerificationTimeout)
	}
	if cfg.GPIO.Pump != 17 || !cfg.GPIO.ActiveLow || cfg.GPIO.Bottom != 5 {
		t.Errorf("gpio: got %+v", cfg.GPIO)
	}
	if cfg.MQTT.Broker != "tcp://192.168.1.200:1883" || cfg.MQTT.ClientID != "sump-controller" {
		t.Errorf("mqtt: got %+v", cfg.MQTT)
	}

	pc := cfg.Pumping()
	if pc.VerificationTimeout != 2*time.Minute || pc.UnknownReportAfter != 3 {
		t.Errorf("Pumping: got %+v", pc)
	}
	to := cfg.TransportOptions()
	if to.BaseURL != "https://pumps.example.com/api" || to.ComponentID != "7" || to.Attempts != 5 || to.Cooldown != 90*time.Second {
		t.Errorf("TransportOptions: got %+v", to)
	}
	if to.ConnectCooldown != 30*time.Second {
		t.Errorf("unset transport keys should keep defaults, got %v", to.ConnectCooldown)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseInvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("remote_url: [unterminated")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"missing url", "poll: 1s\n", "remote_url is required"},
		{"relative url", "remote_url: pumps.local\n", "not an absolute URL"},
		{"attempts low", "remote_url: http://x\ntransport:\n  attempts: 0\n", "attempts must be 1..5"},
		{"attempts high", "remote_url: http://x\ntransport:\n  attempts: 6\n", "attempts must be 1..5"},
		{"zero poll", "remote_url: http://x\npoll: 0s\n", "poll must be positive"},
		{"negative cooldown", "remote_url: http://x\ntransport:\n  cooldown: -1s\n", "transport.cooldown must be positive"},
		{"negative grace", "remote_url: http://x\ngrace_delay: -1s\n", "must not be negative"},
		{"report after", "remote_url: http://x\nunknown_report_after: 0\n", "unknown_report_after"},
		{"threshold", "remote_url: http://x\ntransport:\n  error_threshold: 0\n", "transport.error_threshold"},
		{"pins", "remote_url: http://x\ngpio:\n  top: 5\n", "pins must be distinct"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	_, err := Parse([]byte("poll: 0s\ntransport:\n  attempts: 9\n"))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"remote_url", "attempts", "poll must be positive"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestRemoteHost(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"http://pumps.local:8080/api", "pumps.local:8080"},
		{"http://pumps.local/api", "pumps.local:80"},
		{"https://pumps.example.com", "pumps.example.com:443"},
		{"http://[fd00::12]/api", "[fd00::12]:80"},
		{"https://[fd00::12]:8443", "[fd00::12]:8443"},
	}
	for _, tt := range tests {
		c := &Config{RemoteURL: tt.url}
		if got := c.RemoteHost(); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.url, got, tt.want)
		}
	}
}

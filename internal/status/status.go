// Package status provides a thread-safe status tracker for the sump-controller daemon.
// It is read by the HTTP handlers and the MQTT system events.
package status

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sweeney/sump-controller/internal/logic"
	"github.com/sweeney/sump-controller/internal/pumping"
	"github.com/sweeney/sump-controller/internal/transport"
)

// NetworkInfo contains network state as written by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs         int64
	HeartbeatMs    int64
	VerificationMs int64
	CompletionMs   int64
	RemoteURL      string
	Broker         string
	HTTPPort       string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Pump          pumping.Snapshot
	Transport     transport.Health
	Ticks         int64
	LastError     string
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Host          *HostStats
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// DisplayLine is the compact transport summary: transaction count, last
// status code and consecutive errors, e.g. "#1,204C:200E#:0".
func (s Snapshot) DisplayLine() string {
	code := s.Transport.LastStatusCode
	if code == "" {
		code = "N"
	}
	return fmt.Sprintf("#%sC:%sE#:%d", humanize.Comma(int64(s.Transport.TransactionCount)), code, s.Transport.ConsecutiveErrors)
}

// Problem names the condition keeping the controller from working normally,
// or returns "" when there is none. The pump state wins over the transport.
func (s Snapshot) Problem() string {
	switch s.Pump.State {
	case logic.StateRemoteError:
		if s.LastError != "" {
			return "remote_error: " + s.LastError
		}
		return "remote_error"
	case logic.StateUnknown:
		return "unknown water level"
	}
	if d := s.Transport.BreakerDeadline; !d.IsZero() && s.Now.Before(d) {
		return "remote unreachable until " + d.UTC().Format(time.RFC3339)
	}
	return ""
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update records the machine and transport state.
// Called from runLoop on every tick.
func (t *Tracker) Update(p pumping.Snapshot, h transport.Health) {
	t.mu.Lock()
	t.snap.Pump = p
	t.snap.Transport = h
	t.snap.Ticks++
	if p.LastError != nil {
		t.snap.LastError = p.LastError.Error()
	}
	t.mu.Unlock()
}

// SetError records an error for display. It stays until replaced.
func (t *Tracker) SetError(msg string) {
	t.mu.Lock()
	t.snap.LastError = msg
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// SetHost sets the latest host statistics.
func (t *Tracker) SetHost(h *HostStats) {
	t.mu.Lock()
	t.snap.Host = h
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}

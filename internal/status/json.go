package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/sump-controller/internal/gpio"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	State         string       `json:"state"`
	PrevState     string       `json:"prev_state"`
	WaterLevel    string       `json:"water_level"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	Ticks         int64        `json:"ticks"`
	LastError     string       `json:"last_error,omitempty"`
	Pump          PumpJSON     `json:"pump"`
	Remote        RemoteJSON   `json:"remote"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Host          *HostJSON    `json:"host,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// PumpJSON reports probe readings and the current pumping episode.
type PumpJSON struct {
	Running            bool    `json:"running"`
	Bottom             string  `json:"bottom"`
	Top                string  `json:"top"`
	Started            bool    `json:"started"`
	Verified           bool    `json:"verified"`
	UnknownCount       int     `json:"unknown_count"`
	EventCount         int     `json:"event_count"`
	LastElapsedSeconds float64 `json:"last_elapsed_seconds"`
	EventID            string  `json:"event_id,omitempty"`
	VerifyDeadline     string  `json:"verify_deadline,omitempty"`
	FinishDeadline     string  `json:"finish_deadline,omitempty"`
}

// RemoteJSON reports transport health.
type RemoteJSON struct {
	URL               string `json:"url"`
	Address           string `json:"address,omitempty"`
	Display           string `json:"display"`
	LastStatusCode    string `json:"last_status_code"`
	LastError         string `json:"last_error,omitempty"`
	Transactions      int    `json:"transactions"`
	ConsecutiveErrors int    `json:"consecutive_errors"`
	ErrorPathErrors   int    `json:"error_path_errors"`
	ConnectErrors     int    `json:"connect_errors"`
	BreakerUntil      string `json:"breaker_until,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// HostJSON is the JSON representation of host stats.
type HostJSON struct {
	UptimeSeconds int64   `json:"uptime_seconds"`
	MemPercent    float64 `json:"mem_used_percent"`
	Load1         float64 `json:"load_1"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs         int64  `json:"poll_ms"`
	HeartbeatMs    int64  `json:"heartbeat_ms"`
	VerificationMs int64  `json:"verification_ms"`
	CompletionMs   int64  `json:"completion_ms"`
	RemoteURL      string `json:"remote_url"`
	Broker         string `json:"broker"`
	HTTPPort       string `json:"http_port"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func buildInner(snap Snapshot) StatusInner {
	p := snap.Pump
	h := snap.Transport
	return StatusInner{
		State:         p.State.String(),
		PrevState:     p.Prev.String(),
		WaterLevel:    p.Action.String(),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     formatTime(snap.StartTime),
		Timestamp:     formatTime(snap.Now),
		Ticks:         snap.Ticks,
		LastError:     snap.LastError,
		Pump: PumpJSON{
			Running:            p.PumpRunning,
			Bottom:             gpio.WaterString(p.Bottom),
			Top:                gpio.WaterString(p.Top),
			Started:            p.Started,
			Verified:           p.Verified,
			UnknownCount:       p.UnknownCount,
			EventCount:         p.PumpEventCount,
			LastElapsedSeconds: p.LastPumpElapsed.Seconds(),
			EventID:            p.EventID,
			VerifyDeadline:     formatTime(p.VerifyDeadline),
			FinishDeadline:     formatTime(p.FinishDeadline),
		},
		Remote: RemoteJSON{
			URL:               snap.Config.RemoteURL,
			Address:           h.Address,
			Display:           snap.DisplayLine(),
			LastStatusCode:    h.LastStatusCode,
			LastError:         h.LastError,
			Transactions:      h.TransactionCount,
			ConsecutiveErrors: h.ConsecutiveErrors,
			ErrorPathErrors:   h.ErrorPathErrors,
			ConnectErrors:     h.ConnectErrors,
			BreakerUntil:      formatTime(h.BreakerDeadline),
		},
		MQTT: MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			PollMs:         snap.Config.PollMs,
			HeartbeatMs:    snap.Config.HeartbeatMs,
			VerificationMs: snap.Config.VerificationMs,
			CompletionMs:   snap.Config.CompletionMs,
			RemoteURL:      snap.Config.RemoteURL,
			Broker:         snap.Config.Broker,
			HTTPPort:       snap.Config.HTTPPort,
		},
	}
}

func buildExtras(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	if snap.Host != nil {
		inner.Host = &HostJSON{
			UptimeSeconds: int64(snap.Host.Uptime.Seconds()),
			MemPercent:    snap.Host.MemPercent,
			Load1:         snap.Host.Load1,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildExtras(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildExtras(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

// Package mqtt publishes pump lifecycle transitions and daemon system events.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/sump-controller/internal/gpio"
	"github.com/sweeney/sump-controller/internal/logic"
)

// Topic is the MQTT topic for pump lifecycle transitions.
const Topic = "sump/pump/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "sump/pump/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a pump transition to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event Transition) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Transition is a change of pump lifecycle state.
type Transition struct {
	Timestamp   time.Time
	From        logic.State
	To          logic.State
	Action      logic.WaterAction
	Bottom      bool
	Top         bool
	PumpRunning bool
	EventID     string
	Error       string
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Pump PumpPayload `json:"pump"`
}

// PumpPayload contains the transition details.
type PumpPayload struct {
	Timestamp string `json:"timestamp"`
	From      string `json:"from"`
	State     string `json:"state"`
	Water     string `json:"water_level"`
	Bottom    string `json:"bottom"`
	Top       string `json:"top"`
	Running   bool   `json:"running"`
	EventID   string `json:"event_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// FormatPayload creates the JSON payload for a pump transition.
func FormatPayload(t Transition) ([]byte, error) {
	payload := Payload{
		Pump: PumpPayload{
			Timestamp: t.Timestamp.UTC().Format(time.RFC3339),
			From:      t.From.String(),
			State:     t.To.String(),
			Water:     t.Action.String(),
			Bottom:    gpio.WaterString(t.Bottom),
			Top:       gpio.WaterString(t.Top),
			Running:   t.PumpRunning,
			EventID:   t.EventID,
			Error:     t.Error,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
	Dropped   int    `json:"dropped,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// FormatReconnected creates the payload announcing a broker reconnect and
// how many buffered messages were lost while down.
func FormatReconnected(ts time.Time, dropped int) ([]byte, error) {
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: ts.UTC().Format(time.RFC3339),
			Event:     "RECONNECTED",
			Dropped:   dropped,
		},
	})
}

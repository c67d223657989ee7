// Package logic contains pure business logic for the pumping lifecycle.
// This package has NO external dependencies (no GPIO, HTTP, OS, or time.Sleep).
package logic

// Sensor identifies a water-presence probe.
type Sensor int

const (
	SensorBottom Sensor = iota
	SensorTop

	// NumSensors sizes arrays indexed by Sensor.
	NumSensors
)

func (s Sensor) String() string {
	switch s {
	case SensorBottom:
		return "Bottom"
	case SensorTop:
		return "Top"
	default:
		return "Sensor?"
	}
}

// State is the pump lifecycle state.
type State int

const (
	StateIdle State = iota
	StateReadyToPump
	StateEngagePump
	StatePumpingVerified
	StateUnknown
	StateRemoteError
)

// String returns the wire name sent as pumpState.
// The names are shared with the server and must not change.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReadyToPump:
		return "ready"
	case StateEngagePump:
		return "pumping"
	case StatePumpingVerified:
		return "verified"
	case StateUnknown:
		return "unknown"
	case StateRemoteError:
		return "remote_error"
	default:
		return "invalid"
	}
}

// InEpisode reports whether s is part of a pumping episode.
func (s State) InEpisode() bool {
	return s == StateReadyToPump || s == StateEngagePump || s == StatePumpingVerified
}

// WaterAction is the per-tick interpretation of the probes.
type WaterAction int

const (
	ActionIdle WaterAction = iota
	ActionReadyToPump
	ActionPumpingVerified
	ActionEngagePump
	ActionUnknown
)

func (a WaterAction) String() string {
	switch a {
	case ActionIdle:
		return "idle"
	case ActionReadyToPump:
		return "ready"
	case ActionPumpingVerified:
		return "verified"
	case ActionEngagePump:
		return "pumping"
	case ActionUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Input is one fresh probe sample plus the machine's pumping flags.
type Input struct {
	Bottom   bool // bottom probe has water
	Top      bool // top probe has water
	Started  bool
	Verified bool
}

// RemoteCommand is an override decoded from a status handshake response.
type RemoteCommand int

const (
	CommandNone RemoteCommand = iota
	CommandCancel
	CommandStart
	CommandStop
)

func (c RemoteCommand) String() string {
	switch c {
	case CommandNone:
		return "none"
	case CommandCancel:
		return "canceled"
	case CommandStart:
		return "start"
	case CommandStop:
		return "stop"
	default:
		return "invalid"
	}
}

// ParseCommand decodes the server's cmd field. Unrecognised values map to CommandNone.
func ParseCommand(s string) RemoteCommand {
	switch s {
	case "canceled", "cancelled", "cancel":
		return CommandCancel
	case "start":
		return CommandStart
	case "stop":
		return CommandStop
	default:
		return CommandNone
	}
}

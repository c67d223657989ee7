package remote

import (
	"context"
	"sync"

	"github.com/sweeney/sump-controller/internal/transport"
)

// ErrorPost is one recorded error report.
type ErrorPost struct {
	Action    string
	LastError string
	EventID   string
}

// FakeTransport records posts and replies from a script.
type FakeTransport struct {
	mu sync.Mutex

	// Unhealthy makes Healthy report false.
	Unhealthy bool

	// NextEventID is assigned by a ready_to_pump post.
	NextEventID string

	// Commands are returned, one per status handshake, in order.
	Commands []string

	// PostErr and ErrorErr are returned by PostMission and PostError.
	PostErr  error
	ErrorErr error

	// FailActions makes PostMission return PostErr only for these actions.
	FailActions map[string]bool

	Missions   []transport.Mission
	MissionIDs []string
	Errors     []ErrorPost
	Debug      [][]string
	Hellos     int
	Resets     int

	eventID string
}

// NewFakeTransport returns a healthy fake.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{}
}

func (f *FakeTransport) Healthy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.Unhealthy
}

func (f *FakeTransport) SetHealthy(ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Unhealthy = !ok
}

func (f *FakeTransport) Health() transport.Health {
	f.mu.Lock()
	defer f.mu.Unlock()
	return transport.Health{LastStatusCode: "200", TransactionCount: len(f.Missions) + len(f.Errors)}
}

func (f *FakeTransport) Hello(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Hellos++
	return nil
}

func (f *FakeTransport) PostMission(ctx context.Context, m transport.Mission) (transport.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Missions = append(f.Missions, m)
	f.MissionIDs = append(f.MissionIDs, f.eventID)

	if f.PostErr != nil && (f.FailActions == nil || f.FailActions[m.Action]) {
		return transport.Reply{}, f.PostErr
	}
	if m.Action == ActionReadyToPump && f.NextEventID != "" {
		f.eventID = f.NextEventID
	}

	reply := transport.Reply{StatusCode: 200, EventID: f.eventID}
	if m.Action == ActionStatusHandshake && len(f.Commands) > 0 {
		reply.Command = f.Commands[0]
		f.Commands = f.Commands[1:]
	}
	return reply, nil
}

func (f *FakeTransport) PostError(ctx context.Context, action, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors = append(f.Errors, ErrorPost{Action: action, LastError: lastError, EventID: f.eventID})
	return f.ErrorErr
}

func (f *FakeTransport) PostDebug(ctx context.Context, lines []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Debug = append(f.Debug, lines)
	return nil
}

func (f *FakeTransport) EventID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.eventID
}

// SetEventID assigns the correlation id directly.
func (f *FakeTransport) SetEventID(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eventID = id
}

func (f *FakeTransport) ResetEventID() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Resets++
	f.eventID = ""
}

// Actions returns the mission actions posted so far.
func (f *FakeTransport) Actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Missions))
	for i, m := range f.Missions {
		out[i] = m.Action
	}
	return out
}

// Count returns how many missions with action were posted.
func (f *FakeTransport) Count(action string) int {
	n := 0
	for _, a := range f.Actions() {
		if a == action {
			n++
		}
	}
	return n
}

// Package remote turns pump lifecycle events into posts to the monitoring server.
// Every send is skipped while the transport reports unhealthy; nothing is queued.
package remote

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sweeney/sump-controller/internal/logic"
	"github.com/sweeney/sump-controller/internal/transport"
)

// ErrUnhealthy is returned when a send was skipped because the breaker is open.
var ErrUnhealthy = logic.NewError(logic.KindNetworkUnavailable, "notify", errors.New("transport unhealthy"))

// Mission actions. Shared with the server; do not rename.
const (
	ActionHello              = "hello"
	ActionStatusHandshake    = "status_handshake"
	ActionReadyToPump        = "ready_to_pump"
	ActionPumpEvent          = "pump_event"
	ActionUnknownStatus      = "send_unknown_status"
	ActionPumpingTimedOut    = "pumping_timed_out"
	ActionMissedVerification = "missed_pumping_verification"
	ActionCanceledAck        = "pumping_canceled_ack"
	ActionStartAck           = "start_pumping_ack"
	ActionStopAck            = "stop_pumping_ack"
)

// noStatus is the miscStatus placeholder for posts without a status object.
const noStatus = "None"

// Transport is the subset of *transport.Client the notifier drives.
type Transport interface {
	Healthy() bool
	Health() transport.Health
	Hello(ctx context.Context) error
	PostMission(ctx context.Context, m transport.Mission) (transport.Reply, error)
	PostError(ctx context.Context, action, lastError string) error
	PostDebug(ctx context.Context, lines []string) error
	EventID() string
	ResetEventID()
}

// DebugSource supplies captured log lines.
type DebugSource interface {
	Drain() []string
}

// PumpEvent summarises one verified pumping episode.
type PumpEvent struct {
	Elapsed time.Duration
	Count   int
}

// Notifier sends typed lifecycle events.
type Notifier struct {
	t     Transport
	debug DebugSource
}

// New creates a Notifier that owns t. debug may be nil.
func New(t Transport, debug DebugSource) *Notifier {
	return &Notifier{t: t, debug: debug}
}

// Health returns the transport snapshot.
func (n *Notifier) Health() transport.Health {
	return n.t.Health()
}

// EventID returns the current correlation id.
func (n *Notifier) EventID() string {
	return n.t.EventID()
}

// ResetEventID ends the current correlation.
func (n *Notifier) ResetEventID() {
	n.t.ResetEventID()
}

func (n *Notifier) post(ctx context.Context, action string, state logic.State, status any) (transport.Reply, error) {
	if !n.t.Healthy() {
		log.Printf("remote: skipping %s, transport unhealthy", action)
		return transport.Reply{}, ErrUnhealthy
	}
	reply, err := n.t.PostMission(ctx, transport.Mission{
		Action:     action,
		PumpState:  state.String(),
		MiscStatus: status,
	})
	if err != nil {
		return reply, fmt.Errorf("%s: %w", action, err)
	}
	return reply, nil
}

// Hello performs the startup handshake.
func (n *Notifier) Hello(ctx context.Context) error {
	if !n.t.Healthy() {
		return ErrUnhealthy
	}
	return n.t.Hello(ctx)
}

// ReadyToPump announces the start of an episode. The server assigns the
// correlation id in its reply.
func (n *Notifier) ReadyToPump(ctx context.Context, state logic.State) error {
	_, err := n.post(ctx, ActionReadyToPump, state, noStatus)
	return err
}

// PumpEvent reports a completed verified episode.
func (n *Notifier) PumpEvent(ctx context.Context, ev PumpEvent) error {
	_, err := n.post(ctx, ActionPumpEvent, logic.StateEngagePump, map[string]any{
		"last_pump_elapsed_time": ev.Elapsed.Seconds(),
		"pump_event_count":       ev.Count,
	})
	return err
}

// StatusHandshake sends the idle heartbeat and returns any command in the reply.
func (n *Notifier) StatusHandshake(ctx context.Context, state logic.State, status any) (logic.RemoteCommand, error) {
	reply, err := n.post(ctx, ActionStatusHandshake, state, status)
	if err != nil {
		return logic.CommandNone, err
	}
	cmd := logic.ParseCommand(reply.Command)
	if cmd != logic.CommandNone {
		log.Printf("remote: server command %s", cmd)
	}
	return cmd, nil
}

// Ack acknowledges a server command after its effect has been applied.
func (n *Notifier) Ack(ctx context.Context, cmd logic.RemoteCommand, state logic.State) error {
	var action string
	switch cmd {
	case logic.CommandCancel:
		action = ActionCanceledAck
	case logic.CommandStart:
		action = ActionStartAck
	case logic.CommandStop:
		action = ActionStopAck
	default:
		return fmt.Errorf("ack: no action for command %s", cmd)
	}
	_, err := n.post(ctx, action, state, noStatus)
	return err
}

// UnknownState reports repeated ambiguous probe readings.
func (n *Notifier) UnknownState(ctx context.Context, state logic.State) error {
	_, err := n.post(ctx, ActionUnknownStatus, state, noStatus)
	return err
}

// PumpingTimedOut reports a verified episode that did not drain in time.
func (n *Notifier) PumpingTimedOut(ctx context.Context, state logic.State, elapsed time.Duration, started, verified bool) error {
	return n.timeout(ctx, ActionPumpingTimedOut, state, elapsed, map[string]string{
		"pumping_started_flag":  fmt.Sprint(started),
		"pumping_verified_flag": fmt.Sprint(verified),
	})
}

// MissedVerification reports a pump that never lowered the water below the top probe.
func (n *Notifier) MissedVerification(ctx context.Context, state logic.State, elapsed time.Duration) error {
	return n.timeout(ctx, ActionMissedVerification, state, elapsed, noStatus)
}

// timeout posts to both the error and the mission endpoints.
func (n *Notifier) timeout(ctx context.Context, action string, state logic.State, elapsed time.Duration, status any) error {
	if !n.t.Healthy() {
		log.Printf("remote: skipping %s, transport unhealthy", action)
		return ErrUnhealthy
	}
	errPost := n.t.PostError(ctx, action, "Elapsed: "+elapsed.Round(time.Second).String())
	_, err := n.t.PostMission(ctx, transport.Mission{Action: action, PumpState: state.String(), MiscStatus: status})
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	if errPost != nil {
		return fmt.Errorf("%s error report: %w", action, errPost)
	}
	return nil
}

// ReportError posts a local failure to the error endpoint.
func (n *Notifier) ReportError(ctx context.Context, action string, cause error) error {
	if !n.t.Healthy() {
		return ErrUnhealthy
	}
	return n.t.PostError(ctx, action, cause.Error())
}

// FlushDebug ships captured log lines. Lines are dropped if the send fails.
func (n *Notifier) FlushDebug(ctx context.Context) error {
	if n.debug == nil {
		return nil
	}
	lines := n.debug.Drain()
	if len(lines) == 0 {
		return nil
	}
	if !n.t.Healthy() {
		return ErrUnhealthy
	}
	return n.t.PostDebug(ctx, lines)
}

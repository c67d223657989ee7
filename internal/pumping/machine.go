// Package pumping runs the pump lifecycle: it reads both probes each tick,
// enforces the verification and completion timeouts, switches the pump, and
// reports lifecycle edges to the monitoring server.
package pumping

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sweeney/sump-controller/internal/gpio"
	"github.com/sweeney/sump-controller/internal/logic"
	"github.com/sweeney/sump-controller/internal/remote"
	"github.com/sweeney/sump-controller/internal/timer"
)

// Config holds the lifecycle timings.
type Config struct {
	// VerificationTimeout bounds pump-on to the top probe going dry.
	VerificationTimeout time.Duration
	// CompletionTimeout bounds verification to the bottom probe going dry.
	CompletionTimeout time.Duration
	// HeartbeatInterval is the minimum gap between status handshakes.
	HeartbeatInterval time.Duration
	// GraceDelay keeps the pump running after the bottom probe goes dry.
	GraceDelay time.Duration
	// UnknownDelay debounces ambiguous readings.
	UnknownDelay time.Duration
	// UnknownReportAfter is the number of consecutive ambiguous ticks before reporting.
	UnknownReportAfter int
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		VerificationTimeout: 300 * time.Second,
		CompletionTimeout:   600 * time.Second,
		HeartbeatInterval:   300 * time.Second,
		GraceDelay:          20 * time.Second,
		UnknownDelay:        2 * time.Second,
		UnknownReportAfter:  10,
	}
}

// Options injects the clock and sleeper. Zero values use the real ones.
type Options struct {
	Now   func() time.Time
	Sleep func(time.Duration)

	// StatusExtras adds fields to the heartbeat status object.
	StatusExtras func() map[string]any
}

// Outcome is the result of one Tick.
type Outcome struct {
	State  logic.State
	Prev   logic.State
	Action logic.WaterAction
	// Err is set for RemoteError and for ambiguous readings.
	Err error
}

// Machine is the pump lifecycle state machine. Not safe for concurrent use:
// all state is owned by the poll loop and changes only inside Tick.
type Machine struct {
	cfg      Config
	probes   [logic.NumSensors]gpio.Probe
	pump     gpio.Relay
	notifier *remote.Notifier
	now      func() time.Time
	sleep    func(time.Duration)
	extras   func() map[string]any

	verification *timer.Timer
	completion   *timer.Timer
	idle         *timer.Timer

	initialized bool
	state       logic.State
	prev        logic.State
	action      logic.WaterAction
	readings    [logic.NumSensors]bool

	started        bool
	verified       bool
	pendingStarted bool
	unknownCount   int
	// readySent survives Unknown blips so a ready wait posts ready_to_pump once.
	readySent bool

	pumpStart       time.Time
	lastPumpElapsed time.Duration
	pumpEventCount  int
	pendingEvent    *remote.PumpEvent
	lastErr         error
}

// New creates a Machine. It owns notifier from here on.
func New(cfg Config, probes [logic.NumSensors]gpio.Probe, pump gpio.Relay, notifier *remote.Notifier, opts Options) *Machine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	return &Machine{
		cfg:          cfg,
		probes:       probes,
		pump:         pump,
		notifier:     notifier,
		now:          opts.Now,
		sleep:        opts.Sleep,
		extras:       opts.StatusExtras,
		verification: timer.New(opts.Now),
		completion:   timer.New(opts.Now),
		idle:         timer.New(opts.Now),
	}
}

// Tick runs one poll cycle: decide, actuate, then notify. It never panics;
// any failure forces the pump off and yields RemoteError.
func (m *Machine) Tick(ctx context.Context) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = m.fault(ctx, fmt.Errorf("tick panic: %v", r))
		}
	}()

	m.lastErr = nil
	state, err := m.decide(ctx)
	if err != nil {
		return m.fault(ctx, err)
	}
	m.setState(state)

	if err := m.notify(ctx); err != nil {
		return m.fault(ctx, err)
	}
	return m.outcome()
}

func (m *Machine) setState(s logic.State) {
	m.prev = m.state
	m.state = s
}

func (m *Machine) outcome() Outcome {
	return Outcome{State: m.state, Prev: m.prev, Action: m.action, Err: m.lastErr}
}

// decide evaluates timers and probes and actuates the pump.
func (m *Machine) decide(ctx context.Context) (logic.State, error) {
	if !m.initialized {
		m.initialized = true
		m.clearFlags()
		m.idle.Start(m.cfg.HeartbeatInterval)
		if err := m.pump.Off(); err != nil {
			return logic.StateRemoteError, err
		}
		return logic.StateIdle, nil
	}

	// Timeouts take priority over the probes.
	if m.verification.IsTimedOut() {
		return m.timedOut(ctx, m.verification)
	}
	if m.completion.IsTimedOut() {
		return m.timedOut(ctx, m.completion)
	}

	bottom, top, err := m.read()
	if err != nil {
		return logic.StateRemoteError, err
	}
	m.action = logic.Interpret(logic.Input{
		Bottom:   bottom,
		Top:      top,
		Started:  m.started,
		Verified: m.verified,
	})

	if m.action == logic.ActionUnknown {
		return m.unknown(ctx)
	}
	m.unknownCount = 0

	switch m.action {
	case logic.ActionIdle:
		if m.started {
			log.Printf("pumping: probes dry, running %v more", m.cfg.GraceDelay)
			m.sleep(m.cfg.GraceDelay)
		}
		if err := m.stopPumping("idle"); err != nil {
			return logic.StateRemoteError, err
		}
		return logic.StateIdle, nil

	case logic.ActionReadyToPump:
		if m.state != logic.StateReadyToPump {
			m.clearFlags()
		}
		return logic.StateReadyToPump, nil

	case logic.ActionPumpingVerified:
		if m.state == logic.StateEngagePump {
			m.verified = true
			m.pendingStarted = true
			m.verification.Cancel()
			m.completion.Reset(m.cfg.CompletionTimeout)
			log.Printf("pumping: verified after %v", m.now().Sub(m.pumpStart).Round(time.Second))
			return logic.StatePumpingVerified, nil
		}
		return m.startPumping()

	default:
		// Unknown keeps the episode deadlines, so only a pump start with no
		// deadline running arms verification.
		switch m.state {
		case logic.StateIdle, logic.StateReadyToPump, logic.StateUnknown, logic.StateRemoteError:
			if !m.completion.IsTiming() {
				m.verification.Start(m.cfg.VerificationTimeout)
			}
		}
		return m.startPumping()
	}
}

func (m *Machine) read() (bottom, top bool, err error) {
	for s := logic.Sensor(0); s < logic.NumSensors; s++ {
		v, err := m.probes[s].WaterPresent()
		if err != nil {
			return false, false, fmt.Errorf("read %s probe: %w", s, err)
		}
		m.readings[s] = v
	}
	return m.readings[logic.SensorBottom], m.readings[logic.SensorTop], nil
}

func (m *Machine) startPumping() (logic.State, error) {
	if !m.started {
		m.pumpStart = m.now()
		log.Printf("pumping: pump on")
	}
	m.started = true
	if err := m.pump.On(); err != nil {
		return logic.StateRemoteError, err
	}
	m.idle.Reset(m.cfg.HeartbeatInterval)
	return logic.StateEngagePump, nil
}

// stopPumping switches the pump off and ends the episode. A verified episode
// leaves a pump event for notify, which clears the correlation id after sending it.
func (m *Machine) stopPumping(reason string) error {
	if m.started {
		log.Printf("pumping: pump off (%s)", reason)
	}
	err := m.pump.Off()
	m.verification.Cancel()
	m.completion.Cancel()
	m.readySent = false

	if m.pendingStarted {
		m.lastPumpElapsed = m.now().Sub(m.pumpStart)
		m.pumpEventCount++
		m.pendingEvent = &remote.PumpEvent{Elapsed: m.lastPumpElapsed, Count: m.pumpEventCount}
	} else {
		m.notifier.ResetEventID()
	}

	m.clearFlags()
	return err
}

func (m *Machine) clearFlags() {
	m.started = false
	m.verified = false
	m.pendingStarted = false
	m.pumpStart = time.Time{}
}

// timedOut ends the episode on an expired deadline. The completion timer only
// runs after verification, so it reports pumping_timed_out even when an
// Unknown reading has since cleared the flags.
func (m *Machine) timedOut(ctx context.Context, t *timer.Timer) (logic.State, error) {
	elapsed := t.Elapsed()
	started, verified := m.started, m.verified || t == m.completion
	from := m.state
	log.Printf("pumping: timed out after %v (verified=%v)", elapsed.Round(time.Second), verified)

	err := m.pump.Off()
	m.verification.Cancel()
	m.completion.Cancel()
	m.clearFlags()
	m.readySent = false
	if err != nil {
		return logic.StateRemoteError, err
	}

	var nerr error
	if verified {
		nerr = m.notifier.PumpingTimedOut(ctx, from, elapsed, started, verified)
	} else {
		nerr = m.notifier.MissedVerification(ctx, from, elapsed)
	}
	if nerr != nil {
		log.Printf("pumping: timeout report: %v", nerr)
	}
	m.notifier.ResetEventID()
	return logic.StateIdle, nil
}

// unknown forces the pump off. The episode deadlines keep running so a probe
// flapping in and out of Unknown cannot extend a run.
func (m *Machine) unknown(ctx context.Context) (logic.State, error) {
	err := m.pump.Off()
	m.clearFlags()
	if err != nil {
		return logic.StateRemoteError, err
	}

	m.unknownCount++
	m.lastErr = logic.NewError(logic.KindSensorAmbiguous, "read probes",
		fmt.Errorf("%s dry, %s wet (%d in a row)", m.probes[logic.SensorBottom].Label(), m.probes[logic.SensorTop].Label(), m.unknownCount))
	log.Printf("pumping: %v", m.lastErr)
	m.sleep(m.cfg.UnknownDelay)

	if m.unknownCount < m.cfg.UnknownReportAfter {
		return logic.StateUnknown, nil
	}
	m.unknownCount = 0
	if err := m.notifier.UnknownState(ctx, logic.StateUnknown); err != nil && !errors.Is(err, remote.ErrUnhealthy) {
		return logic.StateRemoteError, err
	}
	return logic.StateUnknown, nil
}

// notify sends the edge-triggered events for the state just entered.
func (m *Machine) notify(ctx context.Context) error {
	if m.pendingEvent != nil {
		ev := *m.pendingEvent
		m.pendingEvent = nil
		if err := m.notifier.PumpEvent(ctx, ev); err != nil {
			log.Printf("pumping: pump event: %v", err)
		}
		m.notifier.ResetEventID()
		m.idle.Reset(m.cfg.HeartbeatInterval)
	}

	switch m.state {
	case logic.StateReadyToPump:
		if !m.readySent {
			err := m.notifier.ReadyToPump(ctx, m.state)
			switch {
			case errors.Is(err, remote.ErrUnhealthy):
				if m.prev != logic.StateReadyToPump {
					log.Printf("pumping: ready to pump not sent, transport unhealthy")
				}
			case err != nil:
				return err
			default:
				m.readySent = true
			}
		}
		return m.heartbeat(ctx)
	case logic.StateIdle:
		return m.heartbeat(ctx)
	}
	return nil
}

// heartbeat sends the status handshake when due and applies any command
// in the reply before acknowledging it.
func (m *Machine) heartbeat(ctx context.Context) error {
	if m.idle.IsTiming() && !m.idle.IsTimedOut() {
		return nil
	}

	cmd, err := m.notifier.StatusHandshake(ctx, m.state, m.statusObject())
	if errors.Is(err, remote.ErrUnhealthy) {
		return nil
	}
	m.idle.Reset(m.cfg.HeartbeatInterval)
	if err != nil {
		log.Printf("pumping: status handshake: %v", err)
		return nil
	}

	if err := m.notifier.FlushDebug(ctx); err != nil {
		log.Printf("pumping: debug flush: %v", err)
	}

	switch cmd {
	case logic.CommandCancel, logic.CommandStop:
		if err := m.stopPumping(cmd.String()); err != nil {
			return err
		}
	case logic.CommandStart:
		m.verification.Start(m.cfg.VerificationTimeout)
		state, err := m.startPumping()
		if err != nil {
			return err
		}
		m.setState(state)
	default:
		return nil
	}

	if err := m.notifier.Ack(ctx, cmd, m.state); err != nil {
		log.Printf("pumping: ack %s: %v", cmd, err)
	}
	return nil
}

// fault forces the pump off, ends the episode and yields RemoteError.
// Local failures are reported; remote ones were already reported by the transport.
func (m *Machine) fault(ctx context.Context, err error) Outcome {
	log.Printf("pumping: error: %v", err)
	if offErr := m.pump.Off(); offErr != nil {
		log.Printf("pumping: pump off after error: %v", offErr)
	}
	m.verification.Cancel()
	m.completion.Cancel()
	m.clearFlags()
	m.readySent = false
	m.pendingEvent = nil
	m.notifier.ResetEventID()

	if !isRemote(err) {
		if rerr := m.notifier.ReportError(ctx, "check_water_level_state", err); rerr != nil {
			log.Printf("pumping: error report: %v", rerr)
		}
	}

	m.lastErr = err
	m.setState(logic.StateRemoteError)
	return m.outcome()
}

func isRemote(err error) bool {
	switch logic.KindOf(err) {
	case logic.KindNetworkUnavailable, logic.KindRemoteRejected, logic.KindTransportException, logic.KindRetriesExhausted:
		return true
	}
	return false
}

// State returns the current lifecycle state.
func (m *Machine) State() logic.State {
	return m.state
}

// Snapshot is a read-only view of the machine for display.
type Snapshot struct {
	State           logic.State
	Prev            logic.State
	Action          logic.WaterAction
	Bottom          bool
	Top             bool
	BottomLabel     string
	TopLabel        string
	Started         bool
	Verified        bool
	PumpRunning     bool
	UnknownCount    int
	LastPumpElapsed time.Duration
	PumpEventCount  int
	PumpStart       time.Time
	VerifyDeadline  time.Time
	FinishDeadline  time.Time
	EventID         string
	LastError       error
}

// Snapshot returns the current view.
func (m *Machine) Snapshot() Snapshot {
	return Snapshot{
		State:           m.state,
		Prev:            m.prev,
		Action:          m.action,
		Bottom:          m.readings[logic.SensorBottom],
		Top:             m.readings[logic.SensorTop],
		BottomLabel:     m.probes[logic.SensorBottom].Label(),
		TopLabel:        m.probes[logic.SensorTop].Label(),
		Started:         m.started,
		Verified:        m.verified,
		PumpRunning:     m.pump.Running(),
		UnknownCount:    m.unknownCount,
		LastPumpElapsed: m.lastPumpElapsed,
		PumpEventCount:  m.pumpEventCount,
		PumpStart:       m.pumpStart,
		VerifyDeadline:  m.verification.Deadline(),
		FinishDeadline:  m.completion.Deadline(),
		EventID:         m.notifier.EventID(),
		LastError:       m.lastErr,
	}
}

func (m *Machine) sensorLine(s logic.Sensor) string {
	return m.probes[s].Label() + ": " + gpio.WaterString(m.readings[s])
}

// statusObject is the miscStatus payload of the heartbeat. Field names are
// shared with the server.
func (m *Machine) statusObject() map[string]any {
	h := m.notifier.Health()
	st := map[string]any{
		"pump_state":             m.state.String(),
		"water_level_state":      m.action.String(),
		"pumping_started_flag":   fmt.Sprint(m.started),
		"pumping_verified_flag":  fmt.Sprint(m.verified),
		"top_sensor_level":       m.sensorLine(logic.SensorTop),
		"bottom_sensor_level":    m.sensorLine(logic.SensorBottom),
		"last_pump_elapsed_time": m.lastPumpElapsed.Seconds(),
		"pump_event_count":       m.pumpEventCount,
		"last_http_code":         h.LastStatusCode,
		"last_http_error":        h.LastError,
		"transaction_count":      h.TransactionCount,
	}
	if m.extras != nil {
		for k, v := range m.extras() {
			st[k] = v
		}
	}
	return st
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/sump-controller/internal/config"
	"github.com/sweeney/sump-controller/internal/gpio"
	"github.com/sweeney/sump-controller/internal/logic"
	"github.com/sweeney/sump-controller/internal/mqtt"
	"github.com/sweeney/sump-controller/internal/pumping"
	"github.com/sweeney/sump-controller/internal/remote"
	"github.com/sweeney/sump-controller/internal/status"
)

var testTiming = timing{
	Poll:       2 * time.Second,
	PumpPoll:   time.Second,
	ErrorPause: 20 * time.Second,
	Heartbeat:  0,
}

type loopEnv struct {
	l      *loop
	ft     *remote.FakeTransport
	pub    *mqtt.FakePublisher
	relay  *gpio.FakeRelay
	clock  time.Time
	delays []time.Duration
}

func newLoopEnv(t *testing.T, samples []gpio.Sample) *loopEnv {
	t.Helper()
	e := &loopEnv{
		ft:    remote.NewFakeTransport(),
		pub:   mqtt.NewFakePublisher(),
		relay: gpio.NewFakeRelay(),
		clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	e.ft.NextEventID = "7"
	e.pub.Connected = true

	bottom, top := gpio.NewFakeProbes(samples)
	now := func() time.Time { return e.clock }
	notifier := remote.New(e.ft, nil)
	machine := pumping.New(pumping.DefaultConfig(), [logic.NumSensors]gpio.Probe{bottom, top}, e.relay, notifier, pumping.Options{
		Now:   now,
		Sleep: func(time.Duration) {},
	})

	e.l = &loop{
		machine:    machine,
		health:     e.ft,
		publisher:  e.pub,
		mqttStatus: e.pub,
		tracker:    status.NewTracker(e.clock, status.Config{}),
		timing:     testTiming,
		now:        now,
	}
	return e
}

// drive runs the loop for ticks iterations, then delivers SIGTERM.
func (e *loopEnv) drive(t *testing.T, ticks int) {
	t.Helper()
	sig := make(chan os.Signal, 1)
	e.l.wait = func(d time.Duration) <-chan time.Time {
		e.delays = append(e.delays, d)
		e.clock = e.clock.Add(d)
		if len(e.delays) >= ticks {
			sig <- syscall.SIGTERM
			return nil
		}
		c := make(chan time.Time, 1)
		c <- e.clock
		return c
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := e.l.run(ctx, cancel, sig); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestLoopPumpingEpisode(t *testing.T) {
	// The first tick initializes without reading the probes.
	e := newLoopEnv(t, []gpio.Sample{
		{Bottom: true, Top: false},
		{Bottom: true, Top: true},
		{Bottom: true, Top: false},
		{Bottom: false, Top: false},
	})

	e.drive(t, 5)

	wantStates := []logic.State{logic.StateReadyToPump, logic.StateEngagePump, logic.StatePumpingVerified, logic.StateIdle}
	if len(e.pub.Transitions) != len(wantStates) {
		t.Fatalf("transitions: got %d, want %d", len(e.pub.Transitions), len(wantStates))
	}
	for i, want := range wantStates {
		if got := e.pub.Transitions[i].To; got != want {
			t.Errorf("transition %d: got %s, want %s", i, got, want)
		}
	}
	if e.pub.Transitions[0].From != logic.StateIdle {
		t.Errorf("first transition from: got %s", e.pub.Transitions[0].From)
	}
	if !e.pub.Transitions[1].PumpRunning || e.pub.Transitions[1].EventID != "7" {
		t.Errorf("engage transition: got %+v", e.pub.Transitions[1])
	}
	if e.pub.Transitions[3].PumpRunning || e.pub.Transitions[3].EventID != "" {
		t.Errorf("idle transition: got %+v", e.pub.Transitions[3])
	}

	wantDelays := []time.Duration{2 * time.Second, 2 * time.Second, time.Second, time.Second, 2 * time.Second}
	for i, want := range wantDelays {
		if e.delays[i] != want {
			t.Errorf("delay %d: got %v, want %v", i, e.delays[i], want)
		}
	}

	if e.ft.Count(remote.ActionPumpEvent) != 1 {
		t.Errorf("expected one pump event, got %v", e.ft.Actions())
	}

	snap := e.l.tracker.Snapshot()
	if snap.Pump.State != logic.StateIdle || snap.Pump.PumpEventCount != 1 || snap.Ticks != 5 {
		t.Errorf("tracker: state=%s events=%d ticks=%d", snap.Pump.State, snap.Pump.PumpEventCount, snap.Ticks)
	}
	if !snap.MQTTConnected {
		t.Error("tracker should see the mqtt connection")
	}
}

func TestLoopRemoteErrorPauses(t *testing.T) {
	e := newLoopEnv(t, []gpio.Sample{{Bottom: true, Top: false}})
	e.ft.PostErr = &logic.Error{Kind: logic.KindRemoteRejected, Op: "post mission", StatusCode: 500}
	e.ft.FailActions = map[string]bool{remote.ActionReadyToPump: true}

	e.drive(t, 2)

	if e.delays[1] != testTiming.ErrorPause {
		t.Errorf("delay after remote error: got %v, want %v", e.delays[1], testTiming.ErrorPause)
	}
	last := e.pub.Transitions[len(e.pub.Transitions)-1]
	if last.To != logic.StateRemoteError || last.Error == "" {
		t.Errorf("expected remote_error transition with error, got %+v", last)
	}
	if e.relay.Running() {
		t.Error("pump must be off after a remote error")
	}
	if e.l.tracker.Snapshot().LastError == "" {
		t.Error("tracker should record the error")
	}
}

func TestLoopShutdownEvent(t *testing.T) {
	e := newLoopEnv(t, []gpio.Sample{{}})

	e.drive(t, 1)

	if len(e.pub.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %v", e.pub.SystemEventNames())
	}
	ev := e.pub.SystemEvents[0]
	if ev.Event != "SHUTDOWN" || ev.Reason != "SIGTERM" || !ev.Retained {
		t.Errorf("unexpected shutdown event: %+v", ev)
	}

	var parsed status.StatusJSON
	if err := json.Unmarshal(e.pub.SystemPayloads[0], &parsed); err != nil {
		t.Fatalf("invalid payload: %v", err)
	}
	if parsed.Status.Event != "SHUTDOWN" || parsed.Status.State != "idle" {
		t.Errorf("unexpected payload: %s", e.pub.SystemPayloads[0])
	}
}

func TestLoopHeartbeat(t *testing.T) {
	e := newLoopEnv(t, []gpio.Sample{{}})
	e.l.timing.Poll = time.Minute
	e.l.timing.Heartbeat = time.Minute
	refreshed := 0
	e.l.network = func() { refreshed++ }

	e.drive(t, 3)

	got := e.pub.SystemEventNames()
	want := []string{"HEARTBEAT", "HEARTBEAT", "SHUTDOWN"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("system events: got %v, want %v", got, want)
	}
	if refreshed != 2 {
		t.Errorf("network refreshed %d times, want 2", refreshed)
	}
}

func TestLoopWithoutPublisher(t *testing.T) {
	e := newLoopEnv(t, []gpio.Sample{{Bottom: true}})
	e.l.publisher = nil
	e.l.mqttStatus = nil
	e.l.timing.Heartbeat = time.Nanosecond

	e.drive(t, 2)

	if e.l.tracker.Snapshot().Pump.State != logic.StateReadyToPump {
		t.Error("loop should run without an mqtt mirror")
	}
}

func TestLoopStopsOnContextCancel(t *testing.T) {
	e := newLoopEnv(t, []gpio.Sample{{}})
	ctx, cancel := context.WithCancel(context.Background())
	e.l.wait = func(time.Duration) <-chan time.Time {
		cancel()
		return nil
	}

	if err := e.l.run(ctx, cancel, make(chan os.Signal)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(e.pub.SystemEvents) != 0 {
		t.Error("cancel without a signal should not publish shutdown")
	}
}

func TestTimingDelay(t *testing.T) {
	tests := []struct {
		state logic.State
		want  time.Duration
	}{
		{logic.StateIdle, 2 * time.Second},
		{logic.StateReadyToPump, 2 * time.Second},
		{logic.StateUnknown, 2 * time.Second},
		{logic.StateEngagePump, time.Second},
		{logic.StatePumpingVerified, time.Second},
		{logic.StateRemoteError, 20 * time.Second},
	}
	for _, tt := range tests {
		if got := testTiming.delay(tt.state); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestApplyFlags(t *testing.T) {
	cfg := config.Default()
	cfg.MQTT.Broker = "tcp://old:1883"

	applyFlags(cfg, 0, "", "", "")
	if cfg.Poll != 2*time.Second || cfg.HTTPAddr != ":80" || cfg.MQTT.Broker != "tcp://old:1883" {
		t.Errorf("empty flags should not override: %+v", cfg)
	}

	applyFlags(cfg, 500*time.Millisecond, ":8080", "tcp://new:1883", "/tmp/debug")
	if cfg.Poll != 500*time.Millisecond || cfg.HTTPAddr != ":8080" || cfg.MQTT.Broker != "tcp://new:1883" || cfg.DebugFile != "/tmp/debug" {
		t.Errorf("flags not applied: %+v", cfg)
	}

	applyFlags(cfg, 0, "off", "off", "")
	if cfg.HTTPAddr != "" || cfg.MQTT.Broker != "" {
		t.Errorf("off should disable: http=%q broker=%q", cfg.HTTPAddr, cfg.MQTT.Broker)
	}
}

func TestPrintProbes(t *testing.T) {
	var buf bytes.Buffer
	probes := [logic.NumSensors]gpio.Probe{
		gpio.NewFakeProbe("Bottom", true),
		gpio.NewFakeProbe("Top", false),
	}
	if err := printProbes(&buf, probes); err != nil {
		t.Fatalf("printProbes: %v", err)
	}
	if got := buf.String(); got != "Bottom: water, Top: dry, Action: ready\n" {
		t.Errorf("got %q", got)
	}

	broken := gpio.NewFakeProbe("Top")
	if err := printProbes(&buf, [logic.NumSensors]gpio.Probe{probes[0], broken}); err == nil {
		t.Error("expected read error")
	}
}

func TestContextSleepWakesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		contextSleep(ctx)(time.Hour)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sleep did not wake on cancel")
	}
}

func TestHostExtras(t *testing.T) {
	tr := status.NewTracker(time.Now(), status.Config{})
	fields := hostExtras(tr)()

	if _, ok := fields["mem_used_percent"]; !ok {
		t.Errorf("expected host fields, got %v", fields)
	}
	if tr.Snapshot().Host == nil {
		t.Error("tracker should hold the sampled host stats")
	}
}

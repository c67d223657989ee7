package main

import (
	"context"
	"log"
	"os"
	"syscall"
	"time"

	"github.com/sweeney/sump-controller/internal/gpio"
	"github.com/sweeney/sump-controller/internal/logic"
	"github.com/sweeney/sump-controller/internal/mqtt"
	"github.com/sweeney/sump-controller/internal/pumping"
	"github.com/sweeney/sump-controller/internal/status"
	"github.com/sweeney/sump-controller/internal/transport"
)

// timing holds the loop delays.
type timing struct {
	Poll       time.Duration
	PumpPoll   time.Duration
	ErrorPause time.Duration
	Heartbeat  time.Duration
}

// delay picks the wait before the next tick.
func (t timing) delay(s logic.State) time.Duration {
	switch s {
	case logic.StateRemoteError:
		return t.ErrorPause
	case logic.StateEngagePump, logic.StatePumpingVerified:
		return t.PumpPoll
	default:
		return t.Poll
	}
}

type healthSource interface {
	Health() transport.Health
}

// loop owns the machine and feeds its results to the status consumers.
type loop struct {
	machine    *pumping.Machine
	health     healthSource
	publisher  mqtt.Publisher // nil disables the mirror
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	timing     timing

	now     func() time.Time
	wait    func(time.Duration) <-chan time.Time
	network func()

	lastHeartbeat time.Time
}

func (l *loop) run(ctx context.Context, cancel context.CancelFunc, sig <-chan os.Signal) error {
	l.lastHeartbeat = l.now()

	for {
		out := l.machine.Tick(ctx)
		l.record(out)
		l.heartbeat()

		select {
		case s := <-sig:
			cancel()
			l.shutdown(s)
			return nil
		case <-ctx.Done():
			return nil
		case <-l.wait(l.timing.delay(out.State)):
		}
	}
}

// record updates the tracker and mirrors state changes.
func (l *loop) record(out pumping.Outcome) {
	snap := l.machine.Snapshot()
	l.tracker.Update(snap, l.health.Health())
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}

	var errText string
	if out.Err != nil {
		errText = out.Err.Error()
		if out.State == logic.StateRemoteError {
			log.Printf("pump: remote error, pausing %v: %v", l.timing.ErrorPause, out.Err)
		}
	}

	if out.State == out.Prev {
		return
	}
	log.Printf("state: %s -> %s (bottom=%s top=%s)", out.Prev, out.State,
		gpio.WaterString(snap.Bottom), gpio.WaterString(snap.Top))
	if l.publisher == nil {
		return
	}
	err := l.publisher.Publish(mqtt.Transition{
		Timestamp:   l.now(),
		From:        out.Prev,
		To:          out.State,
		Action:      out.Action,
		Bottom:      snap.Bottom,
		Top:         snap.Top,
		PumpRunning: snap.PumpRunning,
		EventID:     snap.EventID,
		Error:       errText,
	})
	if err != nil {
		log.Printf("publish error: %v", err)
	}
}

// heartbeat publishes a full status snapshot every Heartbeat interval.
func (l *loop) heartbeat() {
	if l.publisher == nil || l.timing.Heartbeat <= 0 {
		return
	}
	now := l.now()
	if now.Sub(l.lastHeartbeat) < l.timing.Heartbeat {
		return
	}
	l.lastHeartbeat = now

	if l.network != nil {
		l.network()
	}
	snap := l.tracker.Snapshot()
	log.Printf("heartbeat: state=%s events=%d %s", snap.Pump.State, snap.Pump.PumpEventCount, snap.DisplayLine())
	err := l.publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  now,
		Event:      "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
	})
	if err != nil {
		log.Printf("heartbeat publish error: %v", err)
	}
}

func (l *loop) shutdown(s os.Signal) {
	log.Printf("received %v, shutting down", s)
	if l.publisher == nil {
		return
	}
	name := "UNKNOWN"
	switch s {
	case syscall.SIGINT:
		name = "SIGINT"
	case syscall.SIGTERM:
		name = "SIGTERM"
	}
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
	snap := l.tracker.Snapshot()
	err := l.publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  l.now(),
		Event:      "SHUTDOWN",
		Reason:     name,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", name),
	})
	if err != nil {
		log.Printf("failed to publish shutdown event: %v", err)
	} else {
		log.Printf("published shutdown event")
	}
}

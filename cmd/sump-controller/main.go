// Command sump-controller drives a sump pump from two water-level probes and
// reports each pumping episode to a remote mission server.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/sump-controller/internal/config"
	"github.com/sweeney/sump-controller/internal/debuglog"
	"github.com/sweeney/sump-controller/internal/device"
	"github.com/sweeney/sump-controller/internal/gpio"
	"github.com/sweeney/sump-controller/internal/logic"
	"github.com/sweeney/sump-controller/internal/mqtt"
	"github.com/sweeney/sump-controller/internal/pumping"
	"github.com/sweeney/sump-controller/internal/remote"
	"github.com/sweeney/sump-controller/internal/status"
	"github.com/sweeney/sump-controller/internal/transport"
	"github.com/sweeney/sump-controller/internal/web"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "YAML config file")
	poll := flag.Duration("poll", 0, "Probe polling interval (overrides config)")
	httpAddr := flag.String("http", "", `HTTP status address (overrides config, "off" disables)`)
	broker := flag.String("broker", "", `MQTT broker address (overrides config, "off" disables)`)
	debugFile := flag.String("debug-file", "", "File whose presence enables debug log forwarding (overrides config)")
	printState := flag.Bool("print-state", false, "Print current probe readings and exit")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	applyFlags(cfg, *poll, *httpAddr, *broker, *debugFile)

	if err := run(cfg, *printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// applyFlags layers non-empty flag values over the loaded config.
func applyFlags(cfg *config.Config, poll time.Duration, httpAddr, broker, debugFile string) {
	if poll > 0 {
		cfg.Poll = poll
	}
	switch httpAddr {
	case "":
	case "off":
		cfg.HTTPAddr = ""
	default:
		cfg.HTTPAddr = httpAddr
	}
	switch broker {
	case "":
	case "off":
		cfg.MQTT.Broker = ""
	default:
		cfg.MQTT.Broker = broker
	}
	if debugFile != "" {
		cfg.DebugFile = debugFile
	}
}

func run(cfg *config.Config, printState bool) error {
	bottom, err := gpio.NewRealProbe(cfg.GPIO.Chip, cfg.GPIO.Bottom, logic.SensorBottom.String(), cfg.GPIO.ActiveLow)
	if err != nil {
		return fmt.Errorf("init bottom probe: %w", err)
	}
	defer bottom.Close()
	top, err := gpio.NewRealProbe(cfg.GPIO.Chip, cfg.GPIO.Top, logic.SensorTop.String(), cfg.GPIO.ActiveLow)
	if err != nil {
		return fmt.Errorf("init top probe: %w", err)
	}
	defer top.Close()
	probes := [logic.NumSensors]gpio.Probe{logic.SensorBottom: bottom, logic.SensorTop: top}

	if printState {
		return printProbes(os.Stdout, probes)
	}

	pump, err := gpio.NewRealRelay(cfg.GPIO.Chip, cfg.GPIO.Pump)
	if err != nil {
		return fmt.Errorf("init pump relay: %w", err)
	}
	defer pump.Close()

	// Everything logged from here on can be forwarded to the server.
	debugBuf := debuglog.New(debuglog.DefaultCapacity, debuglog.FileToggle(cfg.DebugFile))
	log.SetOutput(io.MultiWriter(os.Stderr, debugBuf))

	link := &transport.NetLink{
		Target:   cfg.RemoteHost(),
		PingAddr: cfg.PingAddr,
		Timeout:  cfg.Transport.RequestTimeout,
	}
	client := transport.New(cfg.TransportOptions(), link, device.Default(), time.Now)
	notifier := remote.New(client, debugBuf)

	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:         cfg.Poll.Milliseconds(),
		HeartbeatMs:    cfg.HeartbeatInterval.Milliseconds(),
		VerificationMs: cfg.VerificationTimeout.Milliseconds(),
		CompletionMs:   cfg.CompletionTimeout.Milliseconds(),
		RemoteURL:      cfg.RemoteURL,
		Broker:         cfg.MQTT.Broker,
		HTTPPort:       cfg.HTTPAddr,
	})
	refreshNetwork(tracker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	machine := pumping.New(cfg.Pumping(), probes, pump, notifier, pumping.Options{
		Sleep:        contextSleep(ctx),
		StatusExtras: hostExtras(tracker),
	})

	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID)
		if err != nil {
			log.Printf("mqtt: %v (continuing without status mirror)", err)
		} else {
			defer p.Close()
			publisher, mqttStatus = p, p
		}
	}

	if err := notifier.Hello(ctx); err != nil {
		log.Printf("remote: hello failed: %v", err)
	}

	snap := tracker.Snapshot()
	if publisher != nil {
		startup := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}
		if err := publisher.PublishSystem(startup); err != nil {
			log.Printf("failed to publish startup event: %v", err)
		}
	}

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTPAddr)
	}

	log.Printf("started: remote=%s poll=%v pump_poll=%v verify=%v complete=%v broker=%q",
		cfg.RemoteURL, cfg.Poll, cfg.PumpPoll, cfg.VerificationTimeout, cfg.CompletionTimeout, cfg.MQTT.Broker)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	l := &loop{
		machine:    machine,
		health:     client,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		timing: timing{
			Poll:       cfg.Poll,
			PumpPoll:   cfg.PumpPoll,
			ErrorPause: cfg.ErrorPause,
			Heartbeat:  cfg.HeartbeatInterval,
		},
		now:     time.Now,
		wait:    time.After,
		network: func() { refreshNetwork(tracker) },
	}
	return l.run(ctx, cancel, sigCh)
}

func printProbes(w io.Writer, probes [logic.NumSensors]gpio.Probe) error {
	var readings [logic.NumSensors]bool
	for s, p := range probes {
		v, err := p.WaterPresent()
		if err != nil {
			return fmt.Errorf("read %s probe: %w", logic.Sensor(s), err)
		}
		readings[s] = v
	}
	action := logic.Interpret(logic.Input{Bottom: readings[logic.SensorBottom], Top: readings[logic.SensorTop]})
	fmt.Fprintf(w, "Bottom: %s, Top: %s, Action: %s\n",
		gpio.WaterString(readings[logic.SensorBottom]), gpio.WaterString(readings[logic.SensorTop]), action)
	return nil
}

func refreshNetwork(tracker *status.Tracker) {
	info, err := config.ReadNetwork(config.PiHelperEnv)
	if err != nil {
		log.Printf("network: %v", err)
		return
	}
	if info != nil {
		tracker.SetNetwork(info)
	}
}

// hostExtras samples host stats for the heartbeat status object and keeps
// the tracker's copy current.
func hostExtras(tracker *status.Tracker) func() map[string]any {
	return func() map[string]any {
		hs, err := status.CollectHost()
		if err != nil {
			log.Printf("host stats: %v", err)
		}
		tracker.SetHost(hs)
		return hs.Fields()
	}
}

// contextSleep returns a sleeper that wakes early on shutdown.
func contextSleep(ctx context.Context) func(time.Duration) {
	return func(d time.Duration) {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
		}
	}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/pulse-gen/internal/gpio"
	"github.com/sweeney/pulse-gen/internal/logic"
	"github.com/sweeney/pulse-gen/internal/mqtt"
	"github.com/sweeney/pulse-gen/internal/serial"
	"github.com/sweeney/pulse-gen/internal/session"
	"github.com/sweeney/pulse-gen/internal/status"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func parseFlags(t *testing.T, args ...string) (*options, *flag.FlagSet) {
	t.Helper()
	fs := flag.NewFlagSet("pulse-gen", flag.ContinueOnError)
	opts := defineFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse: %v", err)
	}
	return opts, fs
}

func TestResolveConfigDefaults(t *testing.T) {
	opts, fs := parseFlags(t)
	cfg, err := resolveConfig(opts, fs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Serial != serial.Console || cfg.Pin1 != gpio.DefaultPin1 || cfg.Pin2 != gpio.DefaultPin2 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestResolveConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulse-gen.yaml")
	content := "serial: /dev/ttyS1\nbaud: 9600\nbroker: tcp://file:1883\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	opts, fs := parseFlags(t, "-config", path, "-baud", "57600", "-pin2", "-1")
	cfg, err := resolveConfig(opts, fs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Serial != "/dev/ttyS1" {
		t.Errorf("serial from file: got %q", cfg.Serial)
	}
	if cfg.Broker != "tcp://file:1883" {
		t.Errorf("broker from file: got %q", cfg.Broker)
	}
	if cfg.Baud != 57600 {
		t.Errorf("baud flag should win: got %d", cfg.Baud)
	}
	if cfg.Channels() != 1 {
		t.Errorf("channels: got %d, want 1", cfg.Channels())
	}
}

func TestResolveConfigInvalid(t *testing.T) {
	opts, fs := parseFlags(t, "-pin1", "5", "-pin2", "5")
	if _, err := resolveConfig(opts, fs); err == nil {
		t.Fatal("expected validation error for duplicate pins")
	}
}

func TestServiceArgsSkipsLocalFlags(t *testing.T) {
	_, fs := parseFlags(t, "-serial", "/dev/ttyS0", "-service", "install", "-profile", "cpu", "-heartbeat", "1m")
	args := serviceArgs(fs)

	want := []string{"-heartbeat=1m0s", "-serial=/dev/ttyS0"}
	if strings.Join(args, " ") != strings.Join(want, " ") {
		t.Errorf("args: got %v, want %v", args, want)
	}
}

func TestProfileMode(t *testing.T) {
	for _, name := range []string{"cpu", "mem"} {
		if _, err := profileMode(name); err != nil {
			t.Errorf("%s: unexpected error: %v", name, err)
		}
	}
	if _, err := profileMode("block"); err == nil {
		t.Error("expected error for unknown profile")
	}
}

func TestSignalCause(t *testing.T) {
	if got := (signalCause{sig: syscall.SIGINT}).Error(); got != "SIGINT" {
		t.Errorf("got %q, want SIGINT", got)
	}
	if got := (signalCause{sig: syscall.SIGTERM}).Error(); got != "SIGTERM" {
		t.Errorf("got %q, want SIGTERM", got)
	}
	if got := (signalCause{sig: syscall.SIGHUP}).Error(); got != "UNKNOWN" {
		t.Errorf("got %q, want UNKNOWN", got)
	}
}

// --- runLoop tests ---

// fakeRunner blocks until ctx is done or release is closed.
type fakeRunner struct {
	release chan struct{}
	err     error
}

func (r *fakeRunner) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
	case <-r.release:
	}
	return r.err
}

func fixedClock() time.Time { return t0 }

func TestRunLoopStartupAndShutdownOnSignal(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	tracker := status.NewTracker(t0, status.Config{Broker: "tcp://test:1883"})
	ctx, cancel := context.WithCancelCause(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(ctx, &fakeRunner{release: make(chan struct{})}, pub, pub, tracker, fixedClock, nil)
	}()
	cancel(signalCause{sig: syscall.SIGTERM})

	if err := <-errCh; err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(pub.SystemEvents) != 2 {
		t.Fatalf("expected 2 system events, got %d", len(pub.SystemEvents))
	}
	startup, shutdown := pub.SystemEvents[0], pub.SystemEvents[1]
	if startup.Event != "STARTUP" || !startup.Retained {
		t.Errorf("startup: %+v", startup)
	}
	if shutdown.Event != "SHUTDOWN" || shutdown.Reason != "SIGTERM" || !shutdown.Retained {
		t.Errorf("shutdown: %+v", shutdown)
	}

	var payload status.StatusJSON
	if err := json.Unmarshal(pub.SystemPayloads[1], &payload); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if payload.Status.Event != "SHUTDOWN" || payload.Status.Reason != "SIGTERM" {
		t.Errorf("payload: %+v", payload.Status)
	}
	if payload.Status.MQTT.Broker != "tcp://test:1883" {
		t.Errorf("broker: got %q", payload.Status.MQTT.Broker)
	}
}

func TestRunLoopInputClosed(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	tracker := status.NewTracker(t0, status.Config{})
	r := &fakeRunner{release: make(chan struct{})}
	close(r.release)

	if err := runLoop(context.Background(), r, pub, nil, tracker, fixedClock, nil); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	last := pub.SystemEvents[len(pub.SystemEvents)-1]
	if last.Event != "SHUTDOWN" || last.Reason != "INPUT_CLOSED" {
		t.Errorf("shutdown: %+v", last)
	}
}

func TestRunLoopReturnsRunnerError(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	tracker := status.NewTracker(t0, status.Config{})
	want := errors.New("serial gone")
	r := &fakeRunner{release: make(chan struct{}), err: want}
	close(r.release)

	if err := runLoop(context.Background(), r, pub, nil, tracker, fixedClock, nil); !errors.Is(err, want) {
		t.Errorf("got %v, want %v", err, want)
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	tracker := status.NewTracker(t0, status.Config{})
	r := &fakeRunner{release: make(chan struct{})}
	hb := make(chan time.Time)

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(context.Background(), r, pub, pub, tracker, fixedClock, hb)
	}()
	hb <- t0
	hb <- t0
	close(r.release)
	if err := <-errCh; err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	var beats []mqtt.SystemEvent
	for _, e := range pub.SystemEvents {
		if e.Event == "HEARTBEAT" {
			beats = append(beats, e)
		}
	}
	if len(beats) != 2 {
		t.Fatalf("expected 2 heartbeats, got %d", len(beats))
	}
	if beats[0].Retained {
		t.Error("heartbeat should not be retained")
	}
	if !tracker.Snapshot().MQTTConnected {
		t.Error("tracker should report MQTT connected")
	}
}

func TestRunLoopPublishError(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.PublishSystemError = errors.New("broker down")
	tracker := status.NewTracker(t0, status.Config{})
	r := &fakeRunner{release: make(chan struct{})}
	close(r.release)

	// Publish failures are logged, never fatal.
	if err := runLoop(context.Background(), r, pub, nil, tracker, fixedClock, nil); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
}

func TestRunLoopWithoutBroker(t *testing.T) {
	tracker := status.NewTracker(t0, status.Config{})
	r := &fakeRunner{release: make(chan struct{})}
	close(r.release)

	if err := runLoop(context.Background(), r, nil, nil, tracker, fixedClock, nil); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
}

func TestRunLoopWithController(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	tracker := status.NewTracker(t0, status.Config{})
	port := serial.NewFakePort("1I50\r5\rF3\rS")
	port.CloseInput()
	out := gpio.NewFakeWriter(1, 2)
	rec := session.NewRecorder(pub, 0)

	ctrl := session.New(session.Config{
		Port:     port,
		Output:   out,
		Channels: 2,
		Clock:    logic.NewFakeClock(t0),
		Recorder: rec,
		Tracker:  tracker,
	})

	if err := runLoop(context.Background(), ctrl, pub, nil, tracker, fixedClock, nil); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	rec.Close()

	if got := len(pub.EventsOfType(logic.EventPulse)); got != 3 {
		t.Errorf("pulses: got %d, want 3", got)
	}
	last := pub.SystemEvents[len(pub.SystemEvents)-1]
	var payload status.StatusJSON
	if err := json.Unmarshal(last.RawPayload, &payload); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if payload.Status.Completed != 1 {
		t.Errorf("sessions completed: got %d, want 1", payload.Status.Completed)
	}
}

func TestNewControllerSingleOutput(t *testing.T) {
	opts, fs := parseFlags(t, "-pin2", "-1")
	cfg, err := resolveConfig(opts, fs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	port := serial.NewFakePort("")
	port.CloseInput()
	rec := session.NewRecorder(nil, 0)
	defer rec.Close()
	ctrl := newController(cfg, port, gpio.NewFakeWriter(1), rec, status.NewTracker(t0, status.Config{}))

	if err := ctrl.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := port.Output()
	if !strings.Contains(out, "Only output 1 is wired.") {
		t.Errorf("expected single-output dialogue:\n%s", out)
	}
	if strings.Contains(out, "How many outputs?") {
		t.Errorf("output 2 offered with pin2 disabled:\n%s", out)
	}
}

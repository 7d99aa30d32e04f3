// Command pulse-gen drives one or two GPIO outputs with timed pulses,
// configured interactively over a serial line.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/kardianos/service"
	"github.com/pkg/profile"

	"github.com/sweeney/pulse-gen/internal/config"
	"github.com/sweeney/pulse-gen/internal/gpio"
	"github.com/sweeney/pulse-gen/internal/mqtt"
	"github.com/sweeney/pulse-gen/internal/serial"
	"github.com/sweeney/pulse-gen/internal/session"
	"github.com/sweeney/pulse-gen/internal/status"
	"github.com/sweeney/pulse-gen/internal/web"
)

// options holds the command-line flags.
type options struct {
	configPath  *string
	serial      *string
	baud        *int
	chip        *string
	pin1        *int
	pin2        *int
	broker      *string
	httpAddr    *string
	heartbeat   *time.Duration
	service     *string
	profile     *string
	printConfig *bool
}

// localFlags are not forwarded to the installed service.
var localFlags = map[string]bool{"service": true, "profile": true, "print-config": true}

func defineFlags(fs *flag.FlagSet) *options {
	def := config.Default()
	return &options{
		configPath:  fs.String("config", "", "YAML config file (flags override it)"),
		serial:      fs.String("serial", def.Serial, `Serial device ("-" for the controlling terminal)`),
		baud:        fs.Int("baud", def.Baud, "Serial baud rate"),
		chip:        fs.String("chip", def.Chip, "GPIO chip"),
		pin1:        fs.Int("pin1", def.Pin1, "GPIO line for output 1"),
		pin2:        fs.Int("pin2", def.Pin2, "GPIO line for output 2 (-1 to disable)"),
		broker:      fs.String("broker", def.Broker, "MQTT broker address (empty to disable)"),
		httpAddr:    fs.String("http", def.HTTPAddr, "HTTP status address (empty to disable)"),
		heartbeat:   fs.Duration("heartbeat", def.Heartbeat, "Heartbeat interval (0 to disable)"),
		service:     fs.String("service", "", "Service control: install, uninstall, start, stop, restart"),
		profile:     fs.String("profile", "", "Write a cpu or mem profile to the working directory"),
		printConfig: fs.Bool("print-config", false, "Print the effective configuration and exit"),
	}
}

func main() {
	opts := defineFlags(flag.CommandLine)
	flag.Parse()

	cfg, err := resolveConfig(opts, flag.CommandLine)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if *opts.printConfig {
		data, err := cfg.Marshal()
		if err != nil {
			log.Fatalf("fatal: %v", err)
		}
		os.Stdout.Write(data)
		return
	}

	if *opts.profile != "" {
		mode, err := profileMode(*opts.profile)
		if err != nil {
			log.Fatalf("fatal: %v", err)
		}
		defer profile.Start(mode, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	}

	prg := &program{cfg: cfg}
	svc, err := service.New(prg, &service.Config{
		Name:        "pulse-gen",
		DisplayName: "Pulse generator",
		Description: "Drives GPIO outputs with timed pulses configured over a serial line.",
		Arguments:   serviceArgs(flag.CommandLine),
	})
	if err != nil {
		log.Fatalf("fatal: service: %v", err)
	}

	if *opts.service != "" {
		if err := service.Control(svc, *opts.service); err != nil {
			log.Fatalf("fatal: service %s: %v (valid actions: %v)", *opts.service, err, service.ControlAction)
		}
		log.Printf("service %s: done", *opts.service)
		return
	}

	if service.Interactive() {
		if err := runInteractive(cfg); err != nil {
			log.Fatalf("fatal: %v", err)
		}
		return
	}
	if err := svc.Run(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// resolveConfig layers the config file (if any) and then every flag that
// was set explicitly over the defaults.
func resolveConfig(opts *options, fs *flag.FlagSet) (config.Config, error) {
	cfg := config.Default()
	if *opts.configPath != "" {
		var err error
		if cfg, err = config.Load(*opts.configPath); err != nil {
			return cfg, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "serial":
			cfg.Serial = *opts.serial
		case "baud":
			cfg.Baud = *opts.baud
		case "chip":
			cfg.Chip = *opts.chip
		case "pin1":
			cfg.Pin1 = *opts.pin1
		case "pin2":
			cfg.Pin2 = *opts.pin2
		case "broker":
			cfg.Broker = *opts.broker
		case "http":
			cfg.HTTPAddr = *opts.httpAddr
		case "heartbeat":
			cfg.Heartbeat = *opts.heartbeat
		}
	})
	return cfg, cfg.Validate()
}

// serviceArgs returns the explicitly set flags to pass to the installed service.
func serviceArgs(fs *flag.FlagSet) []string {
	var args []string
	fs.Visit(func(f *flag.Flag) {
		if localFlags[f.Name] {
			return
		}
		args = append(args, fmt.Sprintf("-%s=%s", f.Name, f.Value.String()))
	})
	return args
}

func profileMode(name string) (func(*profile.Profile), error) {
	switch name {
	case "cpu":
		return profile.CPUProfile, nil
	case "mem":
		return profile.MemProfile, nil
	}
	return nil, fmt.Errorf("unknown profile %q (want cpu or mem)", name)
}

// program adapts run to the service manager's Start/Stop lifecycle.
type program struct {
	cfg    config.Config
	cancel context.CancelCauseFunc
	done   chan error
}

var errServiceStop = errors.New("SERVICE_STOP")

func (p *program) Start(s service.Service) error {
	ctx, cancel := context.WithCancelCause(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() {
		err := run(ctx, p.cfg)
		p.done <- err
		if ctx.Err() == nil {
			// Input closed under the service manager; exit so it restarts us.
			log.Printf("run ended: %v", err)
			os.Exit(1)
		}
	}()
	return nil
}

func (p *program) Stop(s service.Service) error {
	p.cancel(errServiceStop)
	return <-p.done
}

// signalCause records the signal that ended an interactive run.
type signalCause struct {
	sig os.Signal
}

func (c signalCause) Error() string {
	switch c.sig {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

func runInteractive(cfg config.Config) error {
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case s := <-sigCh:
			log.Printf("received %v, shutting down", s)
			cancel(signalCause{sig: s})
		case <-ctx.Done():
		}
	}()

	return run(ctx, cfg)
}

func run(ctx context.Context, cfg config.Config) error {
	out, err := gpio.NewRealWriter(cfg.Chip, cfg.Pin1, cfg.Pin2)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer out.Close()

	port, err := serial.OpenPort(cfg.Serial, cfg.Baud)
	if err != nil {
		return fmt.Errorf("open serial: %w", err)
	}
	defer port.Close()

	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if cfg.Broker != "" {
		p := mqtt.NewRealPublisher(cfg.Broker, "pulse-gen-"+uuid.NewString())
		defer p.Close()
		publisher, mqttStatus = p, p
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		Serial:      cfg.Serial,
		Baud:        cfg.Baud,
		Chip:        cfg.Chip,
		Pin1:        cfg.Pin1,
		Pin2:        cfg.Pin2,
		Broker:      cfg.Broker,
		HTTPAddr:    cfg.HTTPAddr,
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
	})

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

	rec := session.NewRecorder(publisher, 0)
	defer rec.Close()

	ctrl := newController(cfg, port, out, rec, tracker)

	var heartbeat <-chan time.Time
	if cfg.Heartbeat > 0 {
		ticker := time.NewTicker(cfg.Heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	log.Printf("started: serial=%s chip=%s pins=%d,%d broker=%q heartbeat=%v",
		cfg.Serial, cfg.Chip, cfg.Pin1, cfg.Pin2, cfg.Broker, cfg.Heartbeat)

	return runLoop(ctx, ctrl, publisher, mqttStatus, tracker, time.Now, heartbeat)
}

// newController builds the session controller for the outputs cfg wires.
func newController(cfg config.Config, port serial.Port, out gpio.Writer, rec *session.Recorder, tracker *status.Tracker) *session.Controller {
	return session.New(session.Config{
		Port:     port,
		Output:   out,
		Channels: cfg.Channels(),
		Recorder: rec,
		Tracker:  tracker,
	})
}

// runner is the session controller as seen by runLoop.
type runner interface {
	Run(ctx context.Context) error
}

// runLoop publishes lifecycle events around the controller and emits
// heartbeats until the controller returns.
func runLoop(ctx context.Context, ctrl runner, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, now func() time.Time, heartbeat <-chan time.Time) error {
	publishStatus(publisher, mqttStatus, tracker, now(), "STARTUP", "", true)

	done := make(chan error, 1)
	go func() {
		done <- ctrl.Run(ctx)
	}()

	for {
		select {
		case err := <-done:
			reason := shutdownReason(ctx)
			log.Printf("shutting down: %s", reason)
			publishStatus(publisher, mqttStatus, tracker, now(), "SHUTDOWN", reason, true)
			return err

		case <-heartbeat:
			snap := tracker.Snapshot()
			log.Printf("heartbeat: uptime=%v state=%s sessions=%d pulses=%d",
				snap.Uptime().Round(time.Second), snap.State, snap.Completed, snap.TotalPulses())
			publishStatus(publisher, mqttStatus, tracker, now(), "HEARTBEAT", "", false)
		}
	}
}

// shutdownReason names why the controller stopped.
func shutdownReason(ctx context.Context) string {
	if ctx.Err() == nil {
		return "INPUT_CLOSED"
	}
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause.Error()
	}
	return "CANCELLED"
}

func publishStatus(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, t time.Time, event, reason string, retained bool) {
	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}
	if publisher == nil {
		return
	}
	snap := tracker.Snapshot()
	err := publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  t,
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		log.Printf("failed to publish %s event: %v", event, err)
	}
}

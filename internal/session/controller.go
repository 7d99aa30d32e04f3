// Package session runs the operator dialogue over the serial line and
// supervises the channel schedulers of one configuration cycle.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/pulse-gen/internal/gpio"
	"github.com/sweeney/pulse-gen/internal/logic"
	"github.com/sweeney/pulse-gen/internal/serial"
	"github.com/sweeney/pulse-gen/internal/status"
)

// SupervisePoll is the delay between supervisor polls while a session runs.
const SupervisePoll = 10 * time.Millisecond

// errCancelled ends a cycle without activating anything.
var errCancelled = errors.New("session cancelled")

// errNotStarted marks channels left idle after an earlier channel failed to start.
var errNotStarted = errors.New("not started")

// Config holds the controller's collaborators.
type Config struct {
	Port     serial.Port
	Output   gpio.Writer
	Channels int // wired outputs, 1 or 2
	Clock    logic.Clock
	Recorder *Recorder
	Tracker  *status.Tracker // optional
	Source   logic.Source    // optional; shared by both channels, so it must be safe for concurrent use
	NewID    func() string   // optional, defaults to uuid.NewString
}

// Controller owns the serial dialogue. It is not safe for concurrent use.
type Controller struct {
	term     *serial.Terminal
	out      gpio.Writer
	channels int
	clock    logic.Clock
	rec      *Recorder
	tracker  *status.Tracker
	src      logic.Source
	newID    func() string
}

// ChannelSummary is the outcome of one channel.
type ChannelSummary struct {
	Label  string
	Pulses int
	Err    error
}

// Summary is the outcome of one cycle.
type Summary struct {
	SessionID string
	Activated bool
	Channels  []ChannelSummary
}

// New creates a Controller.
func New(cfg Config) *Controller {
	c := &Controller{
		term:     serial.NewTerminal(cfg.Port),
		out:      cfg.Output,
		channels: cfg.Channels,
		clock:    cfg.Clock,
		rec:      cfg.Recorder,
		tracker:  cfg.Tracker,
		src:      cfg.Source,
		newID:    cfg.NewID,
	}
	if c.channels < 1 {
		c.channels = 1
	}
	if c.channels > 2 {
		c.channels = 2
	}
	if c.clock == nil {
		c.clock = logic.SystemClock{}
	}
	if c.rec == nil {
		c.rec = NewRecorder(nil, 0)
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	return c
}

// Run repeats configuration cycles until ctx is done or the port reaches EOF.
func (c *Controller) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := c.RunOnce(ctx); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := c.term.WriteErr(); err != nil {
			return fmt.Errorf("serial write: %w", err)
		}
	}
}

// RunOnce runs one cycle: dialogue, validation, start gate, supervision and
// summary. A rejected or cancelled configuration returns a Summary with
// Activated false and a nil error.
func (c *Controller) RunOnce(ctx context.Context) (Summary, error) {
	id := c.newID()
	sum := Summary{SessionID: id}
	c.setSession(id, status.StateConfiguring)
	defer c.setState(status.StateIdle)

	cfgs, err := c.configure(ctx)
	if errors.Is(err, errCancelled) {
		return sum, nil
	}
	if err != nil {
		return sum, err
	}

	c.printConfig(cfgs)
	c.term.Printf("\nPress 'S' to start or 'C' to cancel: ")
	choice, err := c.term.ReadChoice(ctx, "SC")
	if err != nil {
		return sum, err
	}
	if choice == 'C' {
		c.term.Printf("Cancelled, returning to menu.\n")
		log.Printf("session %s: cancelled at start gate", id)
		return sum, nil
	}

	sum.Activated = true
	sum.Channels = c.supervise(ctx, id, cfgs)
	c.printSummary(sum)
	if c.tracker != nil {
		c.tracker.SessionCompleted()
	}
	return sum, nil
}

func (c *Controller) configure(ctx context.Context) ([]logic.ChannelConfig, error) {
	c.term.Printf("\n=== PULSE GENERATOR ===\n")

	n := 1
	if c.channels == 2 {
		c.term.Printf("How many outputs?\n1 - Output 1 only\n2 - Outputs 1 and 2\nEnter 1 or 2: ")
		choice, err := c.term.ReadChoice(ctx, "12")
		if err != nil {
			return nil, err
		}
		n = int(choice - '0')
	} else {
		c.term.Printf("Only output 1 is wired.\n")
	}

	cfgs := make([]logic.ChannelConfig, 0, n)
	for ch := 1; ch <= n; ch++ {
		raw, err := c.readChannel(ctx, ch)
		if err != nil {
			return nil, err
		}
		cfg, err := logic.Validate(raw)
		if err != nil {
			c.reportInvalid(ch, err)
			return nil, errCancelled
		}
		cfgs = append(cfgs, cfg)
	}
	return cfgs, nil
}

func (c *Controller) readChannel(ctx context.Context, ch int) (logic.Raw, error) {
	raw := logic.Raw{Channel: ch}
	c.term.Printf("\n=== %s ===\n", logic.Label(ch))

	c.term.Printf("Rate entry:\nI - Interval in ms\nP - Pulses per second\nEnter I or P: ")
	unit, err := c.term.ReadChoice(ctx, "IP")
	if err != nil {
		return raw, err
	}
	if unit == 'P' {
		raw.Unit = logic.UnitPPS
		raw.Value, err = c.readNumber(ctx, fmt.Sprintf("Pulses per second (%d to %d): ", logic.MinPPS, logic.MaxPPS))
	} else {
		raw.Unit = logic.UnitInterval
		raw.Value, err = c.readNumber(ctx, fmt.Sprintf("Interval between pulses (%d to %d ms): ", logic.MinIntervalMs, logic.MaxIntervalMs))
	}
	if err != nil {
		return raw, err
	}

	raw.PulseMs, err = c.readNumber(ctx, fmt.Sprintf("Pulse duration (%d to %d ms): ", logic.MinPulseMs, logic.MaxPulseMs))
	if err != nil {
		return raw, err
	}

	c.term.Printf("Mode:\nF - Fixed interval\nR - Random interval (1 to base)\nEnter F or R: ")
	mode, err := c.term.ReadChoice(ctx, "FDR")
	if err != nil {
		return raw, err
	}
	raw.Mode = logic.ModeFixed
	if mode == 'R' {
		raw.Mode = logic.ModeRandom
	}

	raw.MaxPulses, err = c.readNumber(ctx, fmt.Sprintf("Pulse limit (0 = unbounded, max %d): ", logic.MaxMaxPulses))
	return raw, err
}

// readNumber prompts until at least one digit is entered.
func (c *Controller) readNumber(ctx context.Context, prompt string) (int, error) {
	for {
		c.term.Printf("%s", prompt)
		n, err := c.term.ReadNumber(ctx)
		if errors.Is(err, logic.ErrEmptyInput) {
			c.term.Printf("No value entered.\n")
			continue
		}
		return n, err
	}
}

func (c *Controller) reportInvalid(ch int, err error) {
	var rangeErr *logic.OutOfRangeError
	var pulseErr *logic.PulseNotShorterError
	switch {
	case errors.As(err, &pulseErr):
		c.term.Printf("\nERROR: pulse duration (%d ms) must be shorter than the interval (%d ms).\n", pulseErr.PulseMs, pulseErr.IntervalMs)
		c.term.Printf("For an interval of %d ms the pulse can be at most %d ms.\n", pulseErr.IntervalMs, pulseErr.IntervalMs-1)
	case errors.As(err, &rangeErr):
		c.term.Printf("\nERROR: %s must be between %d and %d (got %d).\n", rangeErr.Field, rangeErr.Min, rangeErr.Max, rangeErr.Value)
	default:
		c.term.Printf("\nERROR: %v\n", err)
	}
	c.term.Printf("%s configuration rejected, returning to menu.\n", logic.Label(ch))
	log.Printf("session: %s rejected: %v", logic.Label(ch), err)
}

func (c *Controller) printConfig(cfgs []logic.ChannelConfig) {
	c.term.Printf("\n=== Configuration ===\n")
	for _, cfg := range cfgs {
		c.term.Printf("%s: %s, interval %d ms, pulse %d ms, limit %s\n",
			cfg.Label, cfg.Mode, cfg.IntervalMs, cfg.PulseMs, limitString(cfg.MaxPulses))
	}
	if len(cfgs) < c.channels {
		c.term.Printf("%s: not used\n", logic.Label(2))
	}
}

func (c *Controller) printSummary(sum Summary) {
	c.term.Printf("\n=== Session finished ===\n")
	for _, ch := range sum.Channels {
		if ch.Err != nil {
			c.term.Printf("%s: %d pulses (error: %v)\n", ch.Label, ch.Pulses, ch.Err)
			continue
		}
		c.term.Printf("%s: %d pulses\n", ch.Label, ch.Pulses)
	}
}

// supervise activates one scheduler per config and polls the operator keys
// until every channel is Stopped.
func (c *Controller) supervise(ctx context.Context, id string, cfgs []logic.ChannelConfig) []ChannelSummary {
	ctl := logic.NewControl()
	var opts []logic.Option
	if c.src != nil {
		opts = append(opts, logic.WithSource(c.src))
	}

	scheds := make([]*logic.Scheduler, 0, len(cfgs))
	startErrs := make([]error, len(cfgs))
	for i := range cfgs {
		cfg := cfgs[i]
		scheds = append(scheds, logic.NewScheduler(&cfg, c.out, ctl, c.clock, c.rec, opts...))
	}
	started := 0
	for i, s := range scheds {
		if err := s.Start(); err != nil {
			startErrs[i] = err
			ctl.Stop()
			log.Printf("session %s: start %s: %v", id, cfgs[i].Label, err)
			break
		}
		started++
	}
	for i := started + 1; i < len(scheds); i++ {
		startErrs[i] = errNotStarted
	}

	var wg sync.WaitGroup
	for _, s := range scheds[:started] {
		wg.Add(1)
		go func(s *logic.Scheduler) {
			defer wg.Done()
			if err := s.Run(); err != nil {
				log.Printf("session %s: %s: %v", id, s.Config().Label, err)
			}
		}(s)
	}

	log.Printf("session %s: started %d of %d channel(s)", id, started, len(scheds))
	if started < len(scheds) {
		c.term.Printf("\n>>> Output error, stopping.\n")
	} else {
		c.term.Printf("\n>>> Running. SPACE pauses/resumes, Q stops.\n")
	}
	c.setState(status.StateRunning)

	paused := false
	inputOpen := true
	for {
		c.updateTracker(scheds)
		if allStopped(scheds) {
			break
		}

		if ctx.Err() != nil && ctl.Running() {
			log.Printf("session %s: shutting down", id)
			ctl.Stop()
		}

		if inputOpen {
			b, ok, err := c.term.PollKey()
			switch {
			case err != nil:
				if !errors.Is(err, io.EOF) {
					log.Printf("session %s: serial read error: %v", id, err)
				}
				inputOpen = false
			case ok && b == ' ' && ctl.Running():
				paused = !paused
				for _, s := range scheds {
					s.State().SetPaused(paused)
				}
				if paused {
					c.term.Printf(">>> Paused. SPACE resumes.\n")
					c.setState(status.StatePaused)
				} else {
					c.term.Printf(">>> Resumed.\n")
					c.setState(status.StateRunning)
				}
			case ok && (b == 'q' || b == 'Q') && ctl.Running():
				c.term.Printf(">>> Stopping...\n")
				ctl.Stop()
			}
		}
		c.clock.Sleep(SupervisePoll)
	}
	wg.Wait()
	c.updateTracker(scheds)

	out := make([]ChannelSummary, len(scheds))
	for i, s := range scheds {
		err := startErrs[i]
		if err == nil {
			err = s.Err()
		}
		out[i] = ChannelSummary{Label: cfgs[i].Label, Pulses: s.State().Pulses(), Err: err}
	}
	log.Printf("session %s: finished", id)
	return out
}

func allStopped(scheds []*logic.Scheduler) bool {
	for _, s := range scheds {
		if s.State().Phase() != logic.PhaseStopped {
			return false
		}
	}
	return true
}

func (c *Controller) updateTracker(scheds []*logic.Scheduler) {
	if c.tracker == nil {
		return
	}
	channels := make([]status.ChannelStatus, 0, len(scheds))
	for _, s := range scheds {
		cfg := s.Config()
		st := s.State()
		channels = append(channels, status.ChannelStatus{
			Channel:    cfg.Channel,
			Label:      cfg.Label,
			Mode:       cfg.Mode,
			IntervalMs: cfg.IntervalMs,
			PulseMs:    cfg.PulseMs,
			MaxPulses:  cfg.MaxPulses,
			Phase:      st.Phase(),
			Pulses:     st.Pulses(),
			LastPulse:  st.LastPulse(),
		})
	}
	c.tracker.UpdateChannels(channels)
}

// setSession starts a new cycle: the previous session's channels are
// cleared so status readers never mix them with the new configuration.
func (c *Controller) setSession(id string, state status.SessionState) {
	c.rec.SetSession(id)
	if c.tracker != nil {
		c.tracker.SetSession(id, state)
		c.tracker.UpdateChannels(nil)
	}
}

func (c *Controller) setState(state status.SessionState) {
	if c.tracker != nil {
		c.tracker.SetState(state)
	}
}

func limitString(n int) string {
	if n == 0 {
		return "unbounded"
	}
	return fmt.Sprintf("%d pulses", n)
}

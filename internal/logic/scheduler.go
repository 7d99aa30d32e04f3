package logic

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sweeney/pulse-gen/internal/gpio"
)

// PollInterval is the delay between scheduler polls.
const PollInterval = time.Millisecond

// AckStep is the hold time of each end-of-run acknowledgement transition.
const AckStep = 100 * time.Millisecond

// AckToggles is the number of low/high acknowledgement toggles on stop.
const AckToggles = 3

// Control carries the session-wide running flag. The session controller is
// the only writer; every scheduler reads it on each poll.
type Control struct {
	running atomic.Bool
}

// NewControl returns a Control with the running flag set.
func NewControl() *Control {
	c := &Control{}
	c.running.Store(true)
	return c
}

// Running reports whether the session is still running.
func (c *Control) Running() bool { return c.running.Load() }

// Stop clears the running flag. Schedulers observe it on their next poll.
func (c *Control) Stop() { c.running.Store(false) }

// ChannelState is the part of a scheduler visible to the supervisor.
// Phase, pulse count and last pulse are written only by the owning
// scheduler; the pause request is written only by the supervisor.
type ChannelState struct {
	phase     atomic.Int32
	pauseReq  atomic.Bool
	pulses    atomic.Int64
	lastPulse atomic.Int64 // UnixNano, 0 before the first pulse
}

// Phase returns the current lifecycle phase.
func (s *ChannelState) Phase() Phase { return Phase(s.phase.Load()) }

// Pulses returns the number of pulses emitted since activation.
func (s *ChannelState) Pulses() int { return int(s.pulses.Load()) }

// LastPulse returns the start time of the most recent pulse.
func (s *ChannelState) LastPulse() time.Time {
	n := s.lastPulse.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// SetPaused requests Running->Paused (true) or Paused->Running (false).
// The request is cooperative: the scheduler honours it on its next poll.
func (s *ChannelState) SetPaused(paused bool) { s.pauseReq.Store(paused) }

// PauseRequested reports the pending pause request.
func (s *ChannelState) PauseRequested() bool { return s.pauseReq.Load() }

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithSource sets the random source used in random mode.
func WithSource(src Source) Option {
	return func(s *Scheduler) { s.src = src }
}

// Scheduler runs one channel: Stopped -> Running <-> Paused -> Stopped.
//
// Emitting a pulse blocks for the full pulse duration, so the achievable
// rate is bounded by PulseMs plus poll overhead regardless of the
// configured interval. That is a physical limit of holding the line, not a
// scheduling fault.
type Scheduler struct {
	cfg   *ChannelConfig
	out   gpio.Writer
	ctl   *Control
	clock Clock
	rec   Recorder
	src   Source

	state ChannelState

	// Owned by the goroutine running Tick.
	started  bool
	count    int
	last     time.Time
	due      time.Duration
	pausedAt time.Time
	err      error
}

// NewScheduler creates a scheduler for cfg. A nil cfg yields a scheduler
// that refuses to start and never touches the output.
func NewScheduler(cfg *ChannelConfig, out gpio.Writer, ctl *Control, clock Clock, rec Recorder, opts ...Option) *Scheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	if rec == nil {
		rec = RecorderFunc(func(Event) {})
	}
	s := &Scheduler{
		cfg:   cfg,
		out:   out,
		ctl:   ctl,
		clock: clock,
		rec:   rec,
		src:   DefaultSource,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the channel config, or nil.
func (s *Scheduler) Config() *ChannelConfig { return s.cfg }

// State returns the supervisory view of the channel.
func (s *Scheduler) State() *ChannelState { return &s.state }

// Err returns the output error that stopped the channel, if any.
func (s *Scheduler) Err() error { return s.err }

// Start performs Stopped -> Running: resets the counter, records the
// activation time, drives the line idle and draws the first interval.
func (s *Scheduler) Start() error {
	if s.cfg == nil {
		return ErrNilConfig
	}
	if err := s.out.SetLevel(s.cfg.Channel, gpio.High); err != nil {
		return fmt.Errorf("idle %s: %w", s.cfg.Label, err)
	}

	now := s.clock.Now()
	s.count = 0
	s.last = now
	s.due = s.nextDue()
	s.err = nil
	s.started = true
	s.state.pulses.Store(0)
	s.state.lastPulse.Store(0)
	s.state.phase.Store(int32(PhaseRunning))

	s.record(Event{Timestamp: now, Type: EventChannelStart, NextMs: int(s.due / time.Millisecond)})
	return nil
}

// Run starts the channel if needed and polls until it stops.
func (s *Scheduler) Run() error {
	if s.cfg == nil {
		return ErrNilConfig
	}
	if !s.started {
		if err := s.Start(); err != nil {
			return err
		}
	}
	for s.Tick() {
		s.clock.Sleep(PollInterval)
	}
	return s.err
}

// Tick performs a single poll of the loop. It returns false once the
// channel is Stopped.
func (s *Scheduler) Tick() bool {
	if !s.started || s.state.Phase() == PhaseStopped {
		return false
	}

	now := s.clock.Now()
	if !s.ctl.Running() {
		s.stop(StopRequested)
		return false
	}

	if s.state.PauseRequested() {
		if s.state.Phase() == PhaseRunning {
			s.pausedAt = now
			s.state.phase.Store(int32(PhasePaused))
			s.record(Event{Timestamp: now, Type: EventPaused, Seq: s.count})
		}
		return true
	}

	if s.state.Phase() == PhasePaused {
		// Time spent paused does not count toward the due interval.
		s.last = s.last.Add(now.Sub(s.pausedAt))
		s.state.phase.Store(int32(PhaseRunning))
		s.record(Event{Timestamp: now, Type: EventResumed, Seq: s.count})
	}

	if now.Sub(s.last) < s.due {
		return true
	}

	if err := s.pulse(); err != nil {
		s.err = err
		s.stop(StopOutputError)
		return false
	}
	s.count++
	s.last = now
	s.state.pulses.Store(int64(s.count))
	s.state.lastPulse.Store(now.UnixNano())

	if s.cfg.MaxPulses > 0 && s.count >= s.cfg.MaxPulses {
		s.record(Event{Timestamp: now, Type: EventPulse, Seq: s.count, PulseMs: s.cfg.PulseMs})
		s.stop(StopLimitReached)
		return false
	}

	s.due = s.nextDue()
	s.record(Event{Timestamp: now, Type: EventPulse, Seq: s.count, PulseMs: s.cfg.PulseMs, NextMs: int(s.due / time.Millisecond)})
	return true
}

func (s *Scheduler) nextDue() time.Duration {
	return time.Duration(NextInterval(*s.cfg, s.src)) * time.Millisecond
}

// pulse drives the line low, holds it for the pulse duration, and releases it.
func (s *Scheduler) pulse() error {
	if err := s.out.SetLevel(s.cfg.Channel, gpio.Low); err != nil {
		return fmt.Errorf("pulse %s: %w", s.cfg.Label, err)
	}
	s.clock.Sleep(s.cfg.PulseDuration())
	if err := s.out.SetLevel(s.cfg.Channel, gpio.High); err != nil {
		return fmt.Errorf("release %s: %w", s.cfg.Label, err)
	}
	return nil
}

func (s *Scheduler) stop(reason StopReason) {
	if reason != StopOutputError {
		s.acknowledge()
	}
	s.state.phase.Store(int32(PhaseStopped))
	s.record(Event{Timestamp: s.clock.Now(), Type: EventChannelStop, Seq: s.count, Reason: reason})
}

// acknowledge toggles the line as an end-of-run signal. It is not a pulse
// and is not counted.
func (s *Scheduler) acknowledge() {
	for i := 0; i < AckToggles; i++ {
		if err := s.out.SetLevel(s.cfg.Channel, gpio.Low); err != nil {
			s.err = fmt.Errorf("acknowledge %s: %w", s.cfg.Label, err)
			return
		}
		s.clock.Sleep(AckStep)
		if err := s.out.SetLevel(s.cfg.Channel, gpio.High); err != nil {
			s.err = fmt.Errorf("acknowledge %s: %w", s.cfg.Label, err)
			return
		}
		s.clock.Sleep(AckStep)
	}
}

func (s *Scheduler) record(e Event) {
	e.Channel = s.cfg.Channel
	e.Label = s.cfg.Label
	s.rec.Record(e)
}

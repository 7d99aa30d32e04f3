// Package logic contains the pulse timing core: interval policy, config
// validation and the per-channel scheduler state machine.
// Hardware and wall time reach it only through the gpio.Writer and Clock
// interfaces, so every path is testable without sleeping.
package logic

import "time"

// Bounds enforced on every channel configuration.
const (
	MinIntervalMs = 2
	MaxIntervalMs = 3_600_000
	MinPPS        = 1
	MaxPPS        = 1000
	MinPulseMs    = 1
	MaxPulseMs    = 10_000
	MinMaxPulses  = 1
	MaxMaxPulses  = 1_000_000
)

// Mode selects how the interval between pulses is chosen.
type Mode string

const (
	ModeFixed  Mode = "FIXED"
	ModeRandom Mode = "RANDOM"
)

// Unit is the unit the operator entered the rate in.
type Unit string

const (
	UnitInterval Unit = "INTERVAL_MS"
	UnitPPS      Unit = "PPS"
)

// Phase is the lifecycle phase of a channel.
type Phase int32

const (
	PhaseStopped Phase = iota
	PhaseRunning
	PhasePaused
)

func (p Phase) String() string {
	switch p {
	case PhaseRunning:
		return "RUNNING"
	case PhasePaused:
		return "PAUSED"
	default:
		return "STOPPED"
	}
}

// ChannelConfig is a validated channel configuration. Never mutated after Validate.
type ChannelConfig struct {
	Channel    int // output number, 1 or 2
	Label      string
	Mode       Mode
	IntervalMs int
	PulseMs    int
	MaxPulses  int // 0 = unbounded
}

// Interval returns the base interval as a duration.
func (c ChannelConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// PulseDuration returns the pulse length as a duration.
func (c ChannelConfig) PulseDuration() time.Duration {
	return time.Duration(c.PulseMs) * time.Millisecond
}

// EventType identifies a recorded scheduler event.
type EventType string

const (
	EventChannelStart EventType = "CHANNEL_START"
	EventPulse        EventType = "PULSE"
	EventPaused       EventType = "PAUSED"
	EventResumed      EventType = "RESUMED"
	EventChannelStop  EventType = "CHANNEL_STOP"
)

// StopReason explains why a channel reached Stopped.
type StopReason string

const (
	StopLimitReached StopReason = "LIMIT_REACHED"
	StopRequested    StopReason = "STOP_REQUESTED"
	StopOutputError  StopReason = "OUTPUT_ERROR"
)

// Event is a write-only record emitted by a scheduler.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Channel   int
	Label     string
	Session   string // filled in by the session layer
	Seq       int    // pulse sequence number (PULSE) or total pulses (CHANNEL_STOP)
	PulseMs   int
	NextMs    int // interval until the next pulse is due
	Reason    StopReason
}

// Recorder receives scheduler events. Implementations must be safe for
// concurrent use: every channel goroutine records into the same sink.
type Recorder interface {
	Record(e Event)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(Event)

// Record calls f(e).
func (f RecorderFunc) Record(e Event) { f(e) }

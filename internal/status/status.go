// Package status provides a thread-safe status tracker for the pulse-gen daemon.
// The session controller writes it; HTTP handlers and heartbeats read it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/pulse-gen/internal/logic"
)

// SessionState is the coarse state of the operator session.
type SessionState string

const (
	StateIdle        SessionState = "IDLE"
	StateConfiguring SessionState = "CONFIGURING"
	StateRunning     SessionState = "RUNNING"
	StatePaused      SessionState = "PAUSED"
)

// Config contains daemon configuration for display.
type Config struct {
	Serial      string
	Baud        int
	Chip        string
	Pin1        int
	Pin2        int
	Broker      string
	HTTPAddr    string
	HeartbeatMs int64
}

// ChannelStatus is one channel's config and progress.
type ChannelStatus struct {
	Channel    int
	Label      string
	Mode       logic.Mode
	IntervalMs int
	PulseMs    int
	MaxPulses  int
	Phase      logic.Phase
	Pulses     int
	LastPulse  time.Time
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type; Channels is copied, so it is safe to use after the lock is released.
type Snapshot struct {
	State         SessionState
	SessionID     string
	Completed     int // finished sessions since startup
	Channels      []ChannelStatus
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// TotalPulses sums pulses across channels.
func (s Snapshot) TotalPulses() int {
	n := 0
	for _, c := range s.Channels {
		n += c.Pulses
	}
	return n
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			State:     StateIdle,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetSession records the current session id and state.
func (t *Tracker) SetSession(id string, state SessionState) {
	t.mu.Lock()
	t.snap.SessionID = id
	t.snap.State = state
	t.mu.Unlock()
}

// SetState updates the session state only.
func (t *Tracker) SetState(state SessionState) {
	t.mu.Lock()
	t.snap.State = state
	t.mu.Unlock()
}

// UpdateChannels replaces the per-channel view.
// Called from the supervisory loop on every poll.
func (t *Tracker) UpdateChannels(channels []ChannelStatus) {
	cp := make([]ChannelStatus, len(channels))
	copy(cp, channels)
	t.mu.Lock()
	t.snap.Channels = cp
	t.mu.Unlock()
}

// SessionCompleted bumps the completed-session counter.
func (t *Tracker) SessionCompleted() {
	t.mu.Lock()
	t.snap.Completed++
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Channels = make([]ChannelStatus, len(t.snap.Channels))
	copy(s.Channels, t.snap.Channels)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}

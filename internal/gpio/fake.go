package gpio

import (
	"fmt"
	"sync"
)

// Transition records a single SetLevel call.
type Transition struct {
	Channel int
	Level   Level
}

// FakeWriter is a test double that records every level written.
// Safe for concurrent use: each scheduler goroutine writes its own channel.
type FakeWriter struct {
	mu          sync.Mutex
	transitions []Transition
	levels      map[int]Level

	// Channels lists the channels that accept writes. Empty means any.
	Channels []int

	// WriteError, if set, will be returned by SetLevel.
	WriteError error

	// Closed tracks if Close was called
	Closed bool
}

// NewFakeWriter creates a FakeWriter accepting the given channels.
func NewFakeWriter(channels ...int) *FakeWriter {
	return &FakeWriter{Channels: channels, levels: make(map[int]Level)}
}

// SetLevel records the transition.
func (f *FakeWriter) SetLevel(channel int, level Level) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.WriteError != nil {
		return f.WriteError
	}
	if !f.accepts(channel) {
		return fmt.Errorf("gpio: channel %d not configured", channel)
	}
	if f.levels == nil {
		f.levels = make(map[int]Level)
	}
	f.levels[channel] = level
	f.transitions = append(f.transitions, Transition{Channel: channel, Level: level})
	return nil
}

func (f *FakeWriter) accepts(channel int) bool {
	if len(f.Channels) == 0 {
		return true
	}
	for _, c := range f.Channels {
		if c == channel {
			return true
		}
	}
	return false
}

// Transitions returns a copy of every transition written to the channel.
func (f *FakeWriter) Transitions(channel int) []Level {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Level
	for _, t := range f.transitions {
		if t.Channel == channel {
			out = append(out, t.Level)
		}
	}
	return out
}

// Level returns the last level written to the channel and whether any write happened.
func (f *FakeWriter) Level(channel int) (Level, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.levels[channel]
	return l, ok
}

// CountLow returns how many times the channel was driven low.
func (f *FakeWriter) CountLow(channel int) int {
	n := 0
	for _, l := range f.Transitions(channel) {
		if l == Low {
			n++
		}
	}
	return n
}

// Close marks the writer as closed.
func (f *FakeWriter) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Reset clears recorded transitions.
func (f *FakeWriter) Reset() {
	f.mu.Lock()
	f.transitions = nil
	f.levels = make(map[int]Level)
	f.Closed = false
	f.mu.Unlock()
}

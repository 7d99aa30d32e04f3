package mqtt

import (
	"sync"

	"github.com/sweeney/pulse-gen/internal/logic"
)

// FakePublisher stands in for the broker in session and daemon tests.
// Channel events arrive from the session recorder's goroutine while
// lifecycle events arrive from the daemon loop, so every method locks.
// Read the exported fields only after both have finished.
type FakePublisher struct {
	mu sync.Mutex

	// Events holds PULSE, CHANNEL_START and the other channel events in
	// publish order, with Payloads the matching JSON.
	Events   []logic.Event
	Payloads [][]byte

	// SystemEvents holds STARTUP, HEARTBEAT and SHUTDOWN, with
	// SystemPayloads the JSON that would go to the system topic.
	SystemEvents   []SystemEvent
	SystemPayloads [][]byte

	// PublishError and PublishSystemError simulate an unreachable broker.
	PublishError       error
	PublishSystemError error

	Closed    bool
	Connected bool // returned by IsConnected
}

// NewFakePublisher returns a disconnected FakePublisher.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records a channel event and its events-topic payload.
func (f *FakePublisher) Publish(event logic.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatPayload(event)
	if err != nil {
		return err
	}
	f.Events = append(f.Events, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records a daemon lifecycle event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// EventsOfType filters Events, e.g. to count pulses on all outputs.
func (f *FakePublisher) EventsOfType(typ logic.EventType) []logic.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []logic.Event
	for _, e := range f.Events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/pulse-gen/internal/logic"
)

// Topic is the MQTT topic for channel events.
const Topic = "pulsegen/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "pulsegen/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a channel event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT", "OFFLINE"
	Reason     string
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// Payload represents the MQTT message payload for a channel event.
type Payload struct {
	Pulse PulsePayload `json:"pulse"`
}

// PulsePayload contains the channel event details.
type PulsePayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Session   string `json:"session,omitempty"`
	Channel   int    `json:"channel"`
	Label     string `json:"label"`
	Seq       int    `json:"seq"`
	PulseMs   int    `json:"pulse_ms,omitempty"`
	NextMs    int    `json:"next_ms,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// FormatPayload creates the JSON payload for a channel event.
// Timestamps keep millisecond precision; pulses can be 2 ms apart.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		Pulse: PulsePayload{
			Timestamp: event.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			Event:     string(event.Type),
			Session:   event.Session,
			Channel:   event.Channel,
			Label:     event.Label,
			Seq:       event.Seq,
			PulseMs:   event.PulseMs,
			NextMs:    event.NextMs,
			Reason:    string(event.Reason),
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

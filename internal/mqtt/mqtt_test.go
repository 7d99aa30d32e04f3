package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/pulse-gen/internal/logic"
)

func pulseEvent() logic.Event {
	return logic.Event{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 345_000_000, time.UTC),
		Type:      logic.EventPulse,
		Channel:   1,
		Label:     "Output 1",
		Session:   "6f1c",
		Seq:       7,
		PulseMs:   100,
		NextMs:    1000,
	}
}

func TestFormatPayload(t *testing.T) {
	payload, err := FormatPayload(pulseEvent())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Pulse.Timestamp != "2026-02-02T22:18:12.345Z" {
		t.Errorf("unexpected timestamp: %s", parsed.Pulse.Timestamp)
	}
	if parsed.Pulse.Event != "PULSE" {
		t.Errorf("unexpected event: %s", parsed.Pulse.Event)
	}
	if parsed.Pulse.Channel != 1 || parsed.Pulse.Label != "Output 1" {
		t.Errorf("unexpected channel: %d %q", parsed.Pulse.Channel, parsed.Pulse.Label)
	}
	if parsed.Pulse.Seq != 7 || parsed.Pulse.PulseMs != 100 || parsed.Pulse.NextMs != 1000 {
		t.Errorf("unexpected timing fields: %+v", parsed.Pulse)
	}
	if parsed.Pulse.Session != "6f1c" {
		t.Errorf("unexpected session: %s", parsed.Pulse.Session)
	}
}

func TestFormatPayloadExactJSON(t *testing.T) {
	event := logic.Event{
		Timestamp: time.Date(2026, 2, 3, 10, 30, 45, 0, time.UTC),
		Type:      logic.EventChannelStop,
		Channel:   2,
		Label:     "Output 2",
		Seq:       5,
		Reason:    logic.StopLimitReached,
	}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"pulse":{"timestamp":"2026-02-03T10:30:45.000Z","event":"CHANNEL_STOP","channel":2,"label":"Output 2","seq":5,"reason":"LIMIT_REACHED"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatPayloadAllEventTypes(t *testing.T) {
	types := []logic.EventType{
		logic.EventChannelStart,
		logic.EventPulse,
		logic.EventPaused,
		logic.EventResumed,
		logic.EventChannelStop,
	}

	for _, typ := range types {
		t.Run(string(typ), func(t *testing.T) {
			e := pulseEvent()
			e.Type = typ

			payload, err := FormatPayload(e)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var parsed Payload
			if err := json.Unmarshal(payload, &parsed); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if parsed.Pulse.Event != string(typ) {
				t.Errorf("event: got %s, want %s", parsed.Pulse.Event, typ)
			}
		})
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	if err := f.Publish(pulseEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.Events) != 1 || len(f.Payloads) != 1 {
		t.Fatalf("expected 1 event and payload, got %d/%d", len(f.Events), len(f.Payloads))
	}
	if n := len(f.EventsOfType(logic.EventPulse)); n != 1 {
		t.Errorf("EventsOfType: got %d, want 1", n)
	}
	if n := len(f.EventsOfType(logic.EventChannelStop)); n != 0 {
		t.Errorf("EventsOfType: got %d, want 0", n)
	}
}

func TestFakePublisherError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("simulated error")
	f.PublishSystemError = errors.New("simulated error")

	if err := f.Publish(pulseEvent()); err == nil {
		t.Error("expected error")
	}
	if err := f.PublishSystem(SystemEvent{Event: "STARTUP"}); err == nil {
		t.Error("expected error")
	}
	if len(f.Events) != 0 || len(f.SystemEvents) != 0 {
		t.Error("expected nothing recorded on error")
	}
}

func TestFakePublisherCloseAndConnected(t *testing.T) {
	f := NewFakePublisher()
	if f.IsConnected() {
		t.Error("should not be connected initially")
	}
	f.Connected = true
	if !f.IsConnected() {
		t.Error("expected connected")
	}
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}
}

func TestTopics(t *testing.T) {
	if Topic != "pulsegen/events" {
		t.Errorf("unexpected topic: %s", Topic)
	}
	if TopicSystem != "pulsegen/system" {
		t.Errorf("unexpected system topic: %s", TopicSystem)
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 10, 30, 45, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "STOP",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-03T10:30:45Z","event":"SHUTDOWN","reason":"STOP"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatSystemPayloadOmitsReason(t *testing.T) {
	payload, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "STARTUP"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	system := parsed["system"].(map[string]interface{})
	if _, exists := system["reason"]; exists {
		t.Error("reason field should be omitted when empty")
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"status":{"event":"HEARTBEAT"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "HEARTBEAT", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("got %s, want raw payload", payload)
	}
}

func TestWillPayload(t *testing.T) {
	ts := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	got := string(willPayload(ts))
	want := `{"system":{"timestamp":"2026-01-01T12:00:00Z","event":"OFFLINE","reason":"LWT"}}`
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}

	var p SystemPayload
	if err := json.Unmarshal([]byte(fallbackWill), &p); err != nil {
		t.Fatalf("fallback will is not valid JSON: %v", err)
	}
	if p.System.Event != "OFFLINE" || p.System.Reason != "LWT" {
		t.Errorf("fallback will: %+v", p.System)
	}
}

func TestFakePublisherRecorderAndDaemonTogether(t *testing.T) {
	f := NewFakePublisher()
	const n = 200

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 1; i <= n; i++ {
			f.Publish(logic.Event{Type: logic.EventPulse, Channel: 1, Seq: i})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			f.PublishSystem(SystemEvent{Event: "HEARTBEAT"})
			f.IsConnected()
		}
	}()
	wg.Wait()

	if len(f.Events) != n || len(f.SystemEvents) != n {
		t.Fatalf("got %d events, %d system events, want %d each", len(f.Events), len(f.SystemEvents), n)
	}
	for i, e := range f.Events {
		if e.Seq != i+1 {
			t.Fatalf("event %d: seq %d", i, e.Seq)
		}
	}
}

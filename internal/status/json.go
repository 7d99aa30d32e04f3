package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	State         string        `json:"state"`
	Session       string        `json:"session,omitempty"`
	Completed     int           `json:"sessions_completed"`
	Channels      []ChannelJSON `json:"channels"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Config        ConfigJSON    `json:"config"`
}

// ChannelJSON is the JSON representation of one channel.
type ChannelJSON struct {
	Channel    int    `json:"channel"`
	Label      string `json:"label"`
	Mode       string `json:"mode"`
	IntervalMs int    `json:"interval_ms"`
	PulseMs    int    `json:"pulse_ms"`
	MaxPulses  int    `json:"max_pulses"`
	Phase      string `json:"phase"`
	Pulses     int    `json:"pulses"`
	LastPulse  string `json:"last_pulse,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Serial      string `json:"serial"`
	Baud        int    `json:"baud"`
	Chip        string `json:"chip"`
	Pin1        int    `json:"pin1"`
	Pin2        int    `json:"pin2"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
}

func buildInner(snap Snapshot) StatusInner {
	state := string(snap.State)
	if state == "" {
		state = string(StateIdle)
	}

	channels := make([]ChannelJSON, 0, len(snap.Channels))
	for _, c := range snap.Channels {
		cj := ChannelJSON{
			Channel:    c.Channel,
			Label:      c.Label,
			Mode:       string(c.Mode),
			IntervalMs: c.IntervalMs,
			PulseMs:    c.PulseMs,
			MaxPulses:  c.MaxPulses,
			Phase:      c.Phase.String(),
			Pulses:     c.Pulses,
		}
		if !c.LastPulse.IsZero() {
			cj.LastPulse = c.LastPulse.UTC().Format("2006-01-02T15:04:05.000Z07:00")
		}
		channels = append(channels, cj)
	}

	return StatusInner{
		State:         state,
		Session:       snap.SessionID,
		Completed:     snap.Completed,
		Channels:      channels,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			Serial:      snap.Config.Serial,
			Baud:        snap.Config.Baud,
			Chip:        snap.Config.Chip,
			Pin1:        snap.Config.Pin1,
			Pin2:        snap.Config.Pin2,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			HeartbeatMs: snap.Config.HeartbeatMs,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

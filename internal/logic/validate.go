package logic

import "fmt"

// Raw is unvalidated operator input for one channel.
type Raw struct {
	Channel   int
	Unit      Unit
	Value     int // interval in ms or pulses per second, depending on Unit
	PulseMs   int
	Mode      Mode
	MaxPulses int
}

// IntervalFromPPS converts pulses per second to an interval in ms.
// Integer division truncates: 3 PPS is 333 ms, not 333.33.
func IntervalFromPPS(pps int) int {
	return 1000 / pps
}

// Label returns the display label for an output number.
func Label(channel int) string {
	return fmt.Sprintf("Output %d", channel)
}

// Validate turns raw input into a ChannelConfig. Checks run in order
// (interval, pulse, pulse < interval, limit) and the first failure is
// returned; no partial config is ever produced.
func Validate(raw Raw) (ChannelConfig, error) {
	interval := raw.Value
	if raw.Unit == UnitPPS {
		if raw.Value < MinPPS || raw.Value > MaxPPS {
			return ChannelConfig{}, &OutOfRangeError{Field: "pps", Value: raw.Value, Min: MinPPS, Max: MaxPPS}
		}
		interval = IntervalFromPPS(raw.Value)
	}

	if interval < MinIntervalMs || interval > MaxIntervalMs {
		return ChannelConfig{}, &OutOfRangeError{Field: "interval_ms", Value: interval, Min: MinIntervalMs, Max: MaxIntervalMs}
	}
	if raw.PulseMs < MinPulseMs || raw.PulseMs > MaxPulseMs {
		return ChannelConfig{}, &OutOfRangeError{Field: "pulse_ms", Value: raw.PulseMs, Min: MinPulseMs, Max: MaxPulseMs}
	}
	if raw.PulseMs >= interval {
		return ChannelConfig{}, &PulseNotShorterError{PulseMs: raw.PulseMs, IntervalMs: interval}
	}
	if raw.MaxPulses != 0 && (raw.MaxPulses < MinMaxPulses || raw.MaxPulses > MaxMaxPulses) {
		return ChannelConfig{}, &OutOfRangeError{Field: "max_pulses", Value: raw.MaxPulses, Min: MinMaxPulses, Max: MaxMaxPulses}
	}

	mode := raw.Mode
	if mode != ModeRandom {
		mode = ModeFixed
	}

	return ChannelConfig{
		Channel:    raw.Channel,
		Label:      Label(raw.Channel),
		Mode:       mode,
		IntervalMs: interval,
		PulseMs:    raw.PulseMs,
		MaxPulses:  raw.MaxPulses,
	}, nil
}

package logic

import "math/rand"

// Source supplies uniform integers in [0, n). *rand.Rand satisfies it.
type Source interface {
	Intn(n int) int
}

type globalSource struct{}

func (globalSource) Intn(n int) int { return rand.Intn(n) }

// DefaultSource draws from the process-wide math/rand source.
var DefaultSource Source = globalSource{}

// NextInterval returns the interval in ms until the next pulse is due.
//
// Fixed mode returns the base interval. Random mode draws uniformly from
// [1, IntervalMs] and clamps anything <= PulseMs up to PulseMs+1, so the
// pulse always fits. The clamp biases draws toward the floor when PulseMs is
// close to IntervalMs. A clamped value never exceeds IntervalMs because
// Validate guarantees PulseMs < IntervalMs, so no re-check against the
// global bounds is needed.
func NextInterval(cfg ChannelConfig, src Source) int {
	if cfg.Mode != ModeRandom {
		return cfg.IntervalMs
	}
	if src == nil {
		src = DefaultSource
	}
	interval := src.Intn(cfg.IntervalMs) + 1
	if interval <= cfg.PulseMs {
		interval = cfg.PulseMs + 1
	}
	return interval
}

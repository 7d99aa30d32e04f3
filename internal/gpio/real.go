//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealWriter drives output lines on actual hardware using Linux GPIO character device.
type RealWriter struct {
	chip  *gpiocdev.Chip
	lines map[int]*gpiocdev.Line
}

// NewRealWriter requests the output lines on the given chip.
// pin2 < 0 leaves the second channel unwired.
func NewRealWriter(chipName string, pin1, pin2 int) (*RealWriter, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	w := &RealWriter{chip: chip, lines: make(map[int]*gpiocdev.Line)}

	// Lines start at the idle level so nothing downstream sees a pulse
	// while the session is still being configured.
	l1, err := chip.RequestLine(pin1, gpiocdev.AsOutput(int(High)), gpiocdev.WithConsumer("pulse-gen"))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request channel 1 pin %d: %w", pin1, err)
	}
	w.lines[1] = l1

	if pin2 >= 0 {
		l2, err := chip.RequestLine(pin2, gpiocdev.AsOutput(int(High)), gpiocdev.WithConsumer("pulse-gen"))
		if err != nil {
			l1.Close()
			chip.Close()
			return nil, fmt.Errorf("request channel 2 pin %d: %w", pin2, err)
		}
		w.lines[2] = l2
	}

	return w, nil
}

// SetLevel drives the channel's line.
func (w *RealWriter) SetLevel(channel int, level Level) error {
	line, ok := w.lines[channel]
	if !ok {
		return fmt.Errorf("channel %d not wired", channel)
	}
	if err := line.SetValue(int(level)); err != nil {
		return fmt.Errorf("set channel %d: %w", channel, err)
	}
	return nil
}

// Close releases GPIO resources.
// Lines are returned to inputs (the Pi boot default) before closing so the
// pins are not left driven after the process exits.
func (w *RealWriter) Close() error {
	var errs []error

	for ch, line := range w.lines {
		if err := line.Reconfigure(gpiocdev.AsInput); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure channel %d: %w", ch, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel %d: %w", ch, err))
		}
	}
	if w.chip != nil {
		if err := w.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

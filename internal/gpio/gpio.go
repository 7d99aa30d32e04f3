// Package gpio provides GPIO output driving with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Level is the electrical level of an output line.
type Level int

const (
	Low  Level = 0 // active: a pulse holds the line low
	High Level = 1 // idle/rest level
)

func (l Level) String() string {
	if l == Low {
		return "LOW"
	}
	return "HIGH"
}

// Writer drives output lines.
type Writer interface {
	// SetLevel drives the line for the given channel (1 or 2).
	SetLevel(channel int, level Level) error

	// Close releases GPIO resources.
	Close() error
}

// Pin definitions (BCM numbering)
const (
	DefaultPin1 = 4
	DefaultPin2 = 5
)

// Package serial provides the byte-oriented operator channel: a Port with a
// short read timeout, and a Terminal that builds menu and numeric entry on
// top of it.
package serial

// Port is a blocking byte transport with a finite poll timeout.
type Port interface {
	// ReadByte waits up to the port's poll timeout for one byte.
	// ok is false when the timeout expired with nothing read.
	ReadByte() (b byte, ok bool, err error)

	// Write sends bytes to the operator.
	Write(p []byte) (int, error)

	// Close restores the line settings and releases the device.
	Close() error
}

// Console selects the controlling terminal instead of a serial device.
const Console = "-"

// DefaultBaud is the line speed used when none is configured.
const DefaultBaud = 115200

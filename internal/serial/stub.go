//go:build !linux

package serial

import "errors"

// RealPort is not available on non-Linux platforms.
type RealPort struct{}

// OpenPort returns an error on non-Linux platforms.
func OpenPort(device string, baud int) (*RealPort, error) {
	return nil, errors.New("serial: not supported on this platform (requires Linux)")
}

// ReadByte is not implemented on non-Linux platforms.
func (p *RealPort) ReadByte() (byte, bool, error) {
	return 0, false, errors.New("serial: not supported")
}

// Write is not implemented on non-Linux platforms.
func (p *RealPort) Write(b []byte) (int, error) {
	return 0, errors.New("serial: not supported")
}

// Close is not implemented on non-Linux platforms.
func (p *RealPort) Close() error {
	return nil
}

package serial

import (
	"bytes"
	"io"
	"sync"
	"time"
)

// FakePort is a scripted Port for tests. Input is consumed byte by byte;
// once drained it times out, or returns io.EOF after CloseInput.
// Safe for concurrent Feed and ReadByte.
type FakePort struct {
	mu       sync.Mutex
	input    []byte
	output   bytes.Buffer
	eof      bool
	closed   bool
	ReadErr  error
	WriteErr error
}

// NewFakePort creates a FakePort preloaded with input.
func NewFakePort(input string) *FakePort {
	return &FakePort{input: []byte(input)}
}

// Feed appends more input.
func (f *FakePort) Feed(s string) {
	f.mu.Lock()
	f.input = append(f.input, s...)
	f.mu.Unlock()
}

// CloseInput makes reads return io.EOF once the input is drained.
func (f *FakePort) CloseInput() {
	f.mu.Lock()
	f.eof = true
	f.mu.Unlock()
}

// ReadByte returns the next scripted byte.
func (f *FakePort) ReadByte() (byte, bool, error) {
	f.mu.Lock()
	if f.ReadErr != nil {
		err := f.ReadErr
		f.mu.Unlock()
		return 0, false, err
	}
	if len(f.input) > 0 {
		b := f.input[0]
		f.input = f.input[1:]
		f.mu.Unlock()
		return b, true, nil
	}
	eof := f.eof
	f.mu.Unlock()

	if eof {
		return 0, false, io.EOF
	}
	// Stand-in for the real port's poll timeout.
	time.Sleep(time.Millisecond)
	return 0, false, nil
}

// Write records the output.
func (f *FakePort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteErr != nil {
		return 0, f.WriteErr
	}
	return f.output.Write(p)
}

// Output returns everything written so far.
func (f *FakePort) Output() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.output.String()
}

// Close marks the port closed.
func (f *FakePort) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakePort) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

package serial

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/sweeney/pulse-gen/internal/logic"
)

// MaxDigits caps numeric entry; the largest accepted value is 3,600,000.
const MaxDigits = 7

const (
	keyBackspace = 0x08
	keyDelete    = 0x7f
)

// Terminal implements the operator dialogue primitives over a Port.
type Terminal struct {
	port     Port
	writeErr error // first write failure, logged once
}

// NewTerminal wraps p.
func NewTerminal(p Port) *Terminal {
	return &Terminal{port: p}
}

// Printf writes formatted text, translating \n to \r\n for raw lines.
func (t *Terminal) Printf(format string, args ...any) {
	s := fmt.Sprintf(format, args...)
	s = strings.ReplaceAll(s, "\n", "\r\n")
	t.write([]byte(s))
}

// WriteErr returns the first error the port returned on write, if any.
func (t *Terminal) WriteErr() error { return t.writeErr }

func (t *Terminal) write(b []byte) {
	if _, err := t.port.Write(b); err != nil && t.writeErr == nil {
		t.writeErr = err
		log.Printf("serial: write error: %v", err)
	}
}

// PollKey performs a single read with the port's timeout.
func (t *Terminal) PollKey() (byte, bool, error) {
	return t.port.ReadByte()
}

// ReadKey blocks until a byte arrives or ctx is done. The context is checked
// between polls, so cancellation is seen within one port timeout.
func (t *Terminal) ReadKey(ctx context.Context) (byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		b, ok, err := t.port.ReadByte()
		if err != nil {
			return 0, err
		}
		if ok {
			return b, nil
		}
	}
}

// ReadChoice waits for one of the characters in choices, ignoring case and
// anything else. It echoes and returns the upper-case form.
func (t *Terminal) ReadChoice(ctx context.Context, choices string) (byte, error) {
	upper := strings.ToUpper(choices)
	for {
		b, err := t.ReadKey(ctx)
		if err != nil {
			return 0, err
		}
		c := strings.ToUpper(string(b))
		if strings.Contains(upper, c) {
			t.Printf("%s\n", c)
			return c[0], nil
		}
	}
}

// ReadNumber reads decimal digits until CR or LF, echoing each digit and
// honouring backspace. Non-digits and digits beyond MaxDigits are ignored.
// A terminator with no digits returns logic.ErrEmptyInput.
func (t *Terminal) ReadNumber(ctx context.Context) (int, error) {
	var digits []byte
	for {
		b, err := t.ReadKey(ctx)
		if err != nil {
			return 0, err
		}
		switch {
		case b == '\r' || b == '\n':
			t.Printf("\n")
			if len(digits) == 0 {
				return 0, logic.ErrEmptyInput
			}
			n := 0
			for _, d := range digits {
				n = n*10 + int(d-'0')
			}
			return n, nil
		case b == keyBackspace || b == keyDelete:
			if len(digits) > 0 {
				digits = digits[:len(digits)-1]
				t.Printf("\b \b")
			}
		case b >= '0' && b <= '9':
			if len(digits) < MaxDigits {
				digits = append(digits, b)
				t.write([]byte{b})
			}
		}
	}
}

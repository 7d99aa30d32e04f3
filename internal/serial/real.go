//go:build linux

package serial

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

var baudRates = map[int]uint32{
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
	460800: unix.B460800,
	921600: unix.B921600,
}

// RealPort is a tty in raw mode with VMIN=0/VTIME=1, so each read returns
// after at most 100 ms.
type RealPort struct {
	in    *os.File
	out   *os.File
	fd    int
	saved unix.Termios
	owned bool
}

// OpenPort opens device at the given baud rate. Console uses stdin/stdout
// and leaves the line speed alone.
func OpenPort(device string, baud int) (*RealPort, error) {
	p := &RealPort{}
	if device == Console {
		p.in, p.out = os.Stdin, os.Stdout
	} else {
		f, err := os.OpenFile(device, os.O_RDWR|unix.O_NOCTTY, 0)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", device, err)
		}
		p.in, p.out, p.owned = f, f, true
	}
	// Fd puts the descriptor back into blocking mode, which VTIME relies on.
	p.fd = int(p.in.Fd())

	t, err := unix.IoctlGetTermios(p.fd, unix.TCGETS)
	if err != nil {
		p.closeFile()
		return nil, fmt.Errorf("get termios %s: %w", device, err)
	}
	p.saved = *t

	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.IEXTEN
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 1

	if p.owned {
		// The console keeps ISIG so Ctrl-C still reaches the process.
		t.Lflag &^= unix.ISIG
		t.Cflag &^= unix.CSIZE | unix.PARENB
		t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL

		speed, ok := baudRates[baud]
		if !ok {
			p.closeFile()
			return nil, fmt.Errorf("unsupported baud rate %d", baud)
		}
		t.Cflag &^= unix.CBAUD
		t.Cflag |= speed
		t.Ispeed = speed
		t.Ospeed = speed
	}

	if err := unix.IoctlSetTermios(p.fd, unix.TCSETS, t); err != nil {
		p.closeFile()
		return nil, fmt.Errorf("set termios %s: %w", device, err)
	}
	return p, nil
}

// ReadByte waits up to 100 ms for one byte.
func (p *RealPort) ReadByte() (byte, bool, error) {
	var buf [1]byte
	for {
		n, err := unix.Read(p.fd, buf[:])
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, false, fmt.Errorf("read: %w", err)
		}
		if n == 0 {
			return 0, false, nil
		}
		return buf[0], true, nil
	}
}

// Write sends bytes to the operator.
func (p *RealPort) Write(b []byte) (int, error) {
	return p.out.Write(b)
}

// Close restores the saved line settings.
func (p *RealPort) Close() error {
	var errs []error
	if err := unix.IoctlSetTermios(p.fd, unix.TCSETS, &p.saved); err != nil {
		errs = append(errs, fmt.Errorf("restore termios: %w", err))
	}
	if err := p.closeFile(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func (p *RealPort) closeFile() error {
	if p.owned {
		return p.in.Close()
	}
	return nil
}

package hvcontrol

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate is the USB VCP line rate of the desktop HV units.
const DefaultBaudRate = 115200

// ErrTimeout is returned by a serial link when no reply arrives within the
// read timeout.
var ErrTimeout = errors.New("serial read timeout")

// Opener opens the link to the board at path.
type Opener func(path string) (io.ReadWriteCloser, error)

// SerialOpener opens paths as serial ports at the given rate, 8 data bits, no
// parity, one stop bit.
func SerialOpener(baud int, readTimeout time.Duration) Opener {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	return func(path string) (io.ReadWriteCloser, error) {
		port, err := serial.Open(path, &serial.Mode{
			BaudRate: baud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		})
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		if readTimeout > 0 {
			if err := port.SetReadTimeout(readTimeout); err != nil {
				port.Close()
				return nil, fmt.Errorf("setting read timeout on %s: %w", path, err)
			}
		}
		// Discard anything left over from a previous session.
		if err := port.ResetInputBuffer(); err != nil {
			port.Close()
			return nil, fmt.Errorf("flushing %s: %w", path, err)
		}
		return &timeoutPort{Port: port}, nil
	}
}

// timeoutPort reports a read that returned nothing before the deadline as
// ErrTimeout; go.bug.st/serial returns (0, nil) in that case.
type timeoutPort struct {
	serial.Port
}

func (p *timeoutPort) Read(b []byte) (int, error) {
	n, err := p.Port.Read(b)
	if n == 0 && err == nil {
		return 0, ErrTimeout
	}
	return n, err
}

// Package serialio adapts a byte-oriented serial device, usually
// machine.Serial, to the io.Reader and io.Writer that the wire codec
// expects.
package serialio

import (
	"io"
	"runtime"
	"time"
)

// Serialer describes a device that can read and write single bytes and
// report how many are waiting. machine.Serialer implements this interface.
type Serialer interface {
	ReadByte() (byte, error)
	WriteByte(byte) error
	// Buffered returns the number of bytes currently buffered in the
	// serial device.
	Buffered() int
}

// ReadWriter combines the io.ReadWriter and Serialer interfaces.
type ReadWriter interface {
	io.ReadWriter
	Serialer
}

type serialIO struct {
	Serialer
}

// Wrap wraps a Serialer in an io.ReadWriter.
func Wrap(serial Serialer) ReadWriter {
	return serialIO{Serialer: serial}
}

func (s serialIO) Read(b []byte) (int, error) {
	n := s.Buffered()
	if n == 0 {
		// Sleep to reduce CPU usage.
		time.Sleep(1 * time.Millisecond)
		return 0, nil
	}

	// Hand back no more than the caller asked for. The codec reads
	// single-byte headers while whole frames sit buffered; the excess
	// stays in the device until the next call.
	if n > len(b) {
		n = len(b)
	}

	for i := 0; i < n; i++ {
		c, err := s.ReadByte()
		if err != nil {
			return i, err
		}
		b[i] = c
	}

	// Emulate blocking-like behavior by yielding the scheduler.
	runtime.Gosched()
	return n, nil
}

func (s serialIO) Write(b []byte) (int, error) {
	for _, c := range b {
		if err := s.WriteByte(c); err != nil {
			return 0, err
		}
	}
	runtime.Gosched()
	return len(b), nil
}

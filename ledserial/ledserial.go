// Package ledserial implements the serial protocol between the fireflyjar
// daemon and the LED controller.
//
// Every packet is a single type byte, a type-specific payload, and a
// little-endian CRC-32 (IEEE) of everything before it. Host packets flow to
// the controller; controller packets flow back.
package ledserial

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// Endianness defines the endianness of the protocol.
var Endianness = binary.LittleEndian

// HostPacketType is a type of packet sent by the host.
type HostPacketType uint8

const (
	TypeInitializePacket HostPacketType = iota
	TypeClearPacket
	TypeSetPacket
)

// String returns a string representation of the packet type.
func (t HostPacketType) String() string {
	switch t {
	case TypeInitializePacket:
		return "initialize"
	case TypeClearPacket:
		return "clear"
	case TypeSetPacket:
		return "set"
	default:
		return fmt.Sprintf("HostPacketType(%d)", t)
	}
}

// HostPacket is a packet sent from the host to the controller.
type HostPacket interface {
	// Type returns the type of packet.
	Type() HostPacketType
}

// InitializePacket tells the controller how many LEDs the strip has. It must
// be the first packet sent; the controller sizes its pixel buffer from it.
type InitializePacket struct {
	NumLEDs uint16
}

// ClearPacket turns the whole strip off.
type ClearPacket struct{}

// SetPacket replaces the controller's pixel buffer. Pix holds three bytes
// per LED in R, G, B order; its length must be exactly 3×NumLEDs.
type SetPacket struct {
	Pix []uint8
}

func (p InitializePacket) Type() HostPacketType { return TypeInitializePacket }
func (p ClearPacket) Type() HostPacketType      { return TypeClearPacket }
func (p SetPacket) Type() HostPacketType        { return TypeSetPacket }

// ControllerPacketType is a type of packet sent by the controller.
type ControllerPacketType uint8

const (
	TypeAckPacket ControllerPacketType = iota
	TypeErrorPacket
	TypePanicPacket
	TypeLogPacket
)

// String returns a string representation of the packet type.
func (t ControllerPacketType) String() string {
	switch t {
	case TypeAckPacket:
		return "ack"
	case TypeErrorPacket:
		return "error"
	case TypePanicPacket:
		return "panic"
	case TypeLogPacket:
		return "log"
	default:
		return fmt.Sprintf("ControllerPacketType(%d)", t)
	}
}

// ControllerPacket is a packet sent from the controller to the host.
type ControllerPacket interface {
	// Type returns the type of packet.
	Type() ControllerPacketType
}

// AckPacket acknowledges that a host packet was applied.
type AckPacket struct {
	HostPacketType HostPacketType
}

// ErrorPacket reports a recoverable controller error.
type ErrorPacket struct {
	Message string
}

// PanicPacket reports that the controller cannot recover.
type PanicPacket struct {
	Message string
}

// LogPacket carries a controller log message.
type LogPacket struct {
	Message string
}

func (p AckPacket) Type() ControllerPacketType   { return TypeAckPacket }
func (p ErrorPacket) Type() ControllerPacketType { return TypeErrorPacket }
func (p PanicPacket) Type() ControllerPacketType { return TypePanicPacket }
func (p LogPacket) Type() ControllerPacketType   { return TypeLogPacket }

// ReadContext is the state the controller needs to read host packets. The
// pixel payload of a SetPacket has no length prefix, so the reader must
// already know the strip size from the InitializePacket.
type ReadContext struct {
	// NumLEDs is the number of LEDs in the strip.
	NumLEDs uint16
}

// ReadHostPacket reads one host packet from the given reader.
func ReadHostPacket(r io.Reader, context ReadContext) (HostPacket, error) {
	hash := crc32.NewIEEE()
	r = io.TeeReader(r, hash)

	ptype, err := readPacketType(r)
	if err != nil {
		return nil, err
	}

	var packet HostPacket
	switch ptype := HostPacketType(ptype); ptype {
	case TypeInitializePacket:
		var p InitializePacket
		if err := binary.Read(r, Endianness, &p); err != nil {
			return nil, fmt.Errorf("failed to read number of LEDs: %w", err)
		}
		packet = p

	case TypeClearPacket:
		packet = ClearPacket{}

	case TypeSetPacket:
		var p SetPacket
		p.Pix = make([]uint8, 3*context.NumLEDs)
		if _, err := io.ReadFull(r, p.Pix); err != nil {
			return nil, fmt.Errorf("failed to read pixel data: %w", err)
		}
		packet = p

	default:
		return nil, fmt.Errorf("unknown packet type: %s", ptype)
	}

	if err := verifyChecksum(r, hash); err != nil {
		return nil, err
	}

	return packet, nil
}

// WriteHostPacket writes one host packet to the given writer.
func WriteHostPacket(w io.Writer, p HostPacket) error {
	hash := crc32.NewIEEE()
	w = io.MultiWriter(w, hash)

	if err := binary.Write(w, Endianness, p.Type()); err != nil {
		return fmt.Errorf("failed to write packet type: %w", err)
	}

	switch p := p.(type) {
	case InitializePacket:
		if err := binary.Write(w, Endianness, p); err != nil {
			return fmt.Errorf("failed to write number of LEDs: %w", err)
		}
	case ClearPacket:
		// No payload.
	case SetPacket:
		if _, err := w.Write(p.Pix); err != nil {
			return fmt.Errorf("failed to write pixel data: %w", err)
		}
	default:
		return fmt.Errorf("unknown packet type: %T", p)
	}

	return writeChecksum(w, hash)
}

// ReadControllerPacket reads one controller packet from the given reader.
func ReadControllerPacket(r io.Reader) (ControllerPacket, error) {
	hash := crc32.NewIEEE()
	r = io.TeeReader(r, hash)

	ptype, err := readPacketType(r)
	if err != nil {
		return nil, err
	}

	var packet ControllerPacket
	switch ptype := ControllerPacketType(ptype); ptype {
	case TypeAckPacket:
		var p AckPacket
		if err := binary.Read(r, Endianness, &p.HostPacketType); err != nil {
			return nil, fmt.Errorf("failed to read acked packet type: %w", err)
		}
		packet = p

	case TypeErrorPacket:
		msg, err := readMessage(r)
		if err != nil {
			return nil, err
		}
		packet = ErrorPacket{Message: msg}

	case TypePanicPacket:
		msg, err := readMessage(r)
		if err != nil {
			return nil, err
		}
		packet = PanicPacket{Message: msg}

	case TypeLogPacket:
		msg, err := readMessage(r)
		if err != nil {
			return nil, err
		}
		packet = LogPacket{Message: msg}

	default:
		return nil, fmt.Errorf("unknown packet type: %s", ptype)
	}

	if err := verifyChecksum(r, hash); err != nil {
		return nil, err
	}

	return packet, nil
}

// WriteControllerPacket writes one controller packet to the given writer.
func WriteControllerPacket(w io.Writer, p ControllerPacket) error {
	hash := crc32.NewIEEE()
	w = io.MultiWriter(w, hash)

	if err := binary.Write(w, Endianness, p.Type()); err != nil {
		return fmt.Errorf("failed to write packet type: %w", err)
	}

	switch p := p.(type) {
	case AckPacket:
		if err := binary.Write(w, Endianness, p.HostPacketType); err != nil {
			return fmt.Errorf("failed to write acked packet type: %w", err)
		}
	case ErrorPacket:
		if err := writeMessage(w, p.Message); err != nil {
			return err
		}
	case PanicPacket:
		if err := writeMessage(w, p.Message); err != nil {
			return err
		}
	case LogPacket:
		if err := writeMessage(w, p.Message); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown packet type: %T", p)
	}

	return writeChecksum(w, hash)
}

func readPacketType(r io.Reader) (uint8, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("failed to read packet type: %w", err)
	}
	return buf[0], nil
}

// readMessage reads a length-prefixed string.
func readMessage(r io.Reader) (string, error) {
	var length uint16
	if err := binary.Read(r, Endianness, &length); err != nil {
		return "", fmt.Errorf("failed to read message length: %w", err)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("failed to read message: %w", err)
	}
	return string(buf), nil
}

// writeMessage writes a length-prefixed string.
func writeMessage(w io.Writer, msg string) error {
	if err := binary.Write(w, Endianness, uint16(len(msg))); err != nil {
		return fmt.Errorf("failed to write message length: %w", err)
	}
	if _, err := io.WriteString(w, msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// verifyChecksum reads the packet trailer and compares it against the sum of
// everything read so far. The sum is taken before the trailer bytes pass
// through the tee and poison the hash.
func verifyChecksum(r io.Reader, hash interface{ Sum32() uint32 }) error {
	want := hash.Sum32()

	var got uint32
	if err := binary.Read(r, Endianness, &got); err != nil {
		return fmt.Errorf("failed to read packet checksum: %w", err)
	}

	if got != want {
		return fmt.Errorf("packet checksum mismatch")
	}
	return nil
}

func writeChecksum(w io.Writer, hash interface{ Sum32() uint32 }) error {
	if err := binary.Write(w, Endianness, hash.Sum32()); err != nil {
		return fmt.Errorf("failed to write packet checksum: %w", err)
	}
	return nil
}

// Package thinkgear implements the framing and payload decoding of the
// ThinkGear serial protocol spoken by NeuroSky headsets.
//
// A frame on the wire is laid out as:
//
//	0xAA 0xAA | L (1..32) | payload (L bytes) | checksum
//
// where checksum is the complement of the low byte of the payload sum.
package thinkgear

import (
	"errors"
	"fmt"
)

const (
	// SyncByte is repeated twice to mark the start of a frame.
	SyncByte byte = 0xAA

	// MaxPayloadLength is the largest payload length accepted. It is also
	// the payload length of a full measurement frame.
	MaxPayloadLength = 32
)

var (
	ErrInvalidLength    = errors.New("invalid payload length")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrShortFrame       = errors.New("frame truncated before checksum")
)

// ByteReader is the subset of a buffered byte source the decoder needs.
// Available reports how many bytes can be read without blocking.
type ByteReader interface {
	Available() int
	ReadByte() (byte, error)
	Read(p []byte) (int, error)
}

// RawFrame is a frame recovered from the stream before it has been decoded.
type RawFrame struct {
	Length   byte
	Payload  []byte
	Checksum byte
}

// Valid reports whether the trailing checksum matches the payload.
func (f RawFrame) Valid() bool {
	return Checksum(f.Payload) == f.Checksum
}

// Checksum returns ^sum(payload) & 0xFF.
func Checksum(payload []byte) byte {
	var sum byte
	for _, b := range payload {
		sum += b
	}
	return ^sum
}

// ValidLength reports whether l is an acceptable payload length.
func ValidLength(l byte) bool {
	return l > 0 && int(l) <= MaxPayloadLength
}

// ReadLength consumes the length byte that follows a sync marker.
func ReadLength(src ByteReader) (byte, error) {
	l, err := src.ReadByte()
	if err != nil {
		return 0, err
	}
	if !ValidLength(l) {
		return l, fmt.Errorf("%w: %d", ErrInvalidLength, l)
	}
	return l, nil
}

// ReadBody consumes the payload and checksum of a frame whose length byte
// has already been read. The caller must make sure length+1 bytes are
// available; otherwise ErrShortFrame is returned and nothing is consumed.
func ReadBody(src ByteReader, length byte) (RawFrame, error) {
	need := int(length) + 1
	if src.Available() < need {
		return RawFrame{}, ErrShortFrame
	}
	buf := make([]byte, need)
	n, err := src.Read(buf)
	if err != nil {
		return RawFrame{}, err
	}
	if n != need {
		return RawFrame{}, ErrShortFrame
	}
	f := RawFrame{
		Length:   length,
		Payload:  buf[:length],
		Checksum: buf[length],
	}
	if !f.Valid() {
		return f, fmt.Errorf("%w: got 0x%02x want 0x%02x", ErrChecksumMismatch, f.Checksum, Checksum(f.Payload))
	}
	return f, nil
}

// EncodeFrame wraps payload in sync marker, length and checksum.
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) == 0 || len(payload) > MaxPayloadLength {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLength, len(payload))
	}
	out := make([]byte, 0, len(payload)+4)
	out = append(out, SyncByte, SyncByte, byte(len(payload)))
	out = append(out, payload...)
	return append(out, Checksum(payload)), nil
}

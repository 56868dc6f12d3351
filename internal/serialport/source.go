package serialport

import (
	"errors"
	"time"

	"github.com/banshee-data/mindwave.report/internal/timeutil"
)

// ErrNoData is returned by ReadByte when the buffer is empty.
var ErrNoData = errors.New("no buffered data")

const defaultChunkSize = 256

// ByteSource buffers bytes read from a serial port so that callers can ask
// how many bytes are available before consuming them. It is owned by a
// single goroutine and is not safe for concurrent use.
type ByteSource struct {
	port    SerialPorter
	buf     []byte
	off     int
	scratch []byte
	total   uint64
	clock   timeutil.Clock
}

// NewByteSource wraps port. When the port supports read timeouts, reads
// block for at most readTimeout.
func NewByteSource(port SerialPorter, readTimeout time.Duration) (*ByteSource, error) {
	if tp, ok := port.(TimeoutSerialPorter); ok && readTimeout > 0 {
		if err := tp.SetReadTimeout(readTimeout); err != nil {
			return nil, err
		}
	}
	return &ByteSource{
		port:    port,
		scratch: make([]byte, defaultChunkSize),
		clock:   timeutil.RealClock{},
	}, nil
}

// SetClock sets the clock FillTo checks its deadline against.
func (s *ByteSource) SetClock(c timeutil.Clock) {
	if c != nil {
		s.clock = c
	}
}

// Available returns the number of bytes that can be consumed without
// touching the port.
func (s *ByteSource) Available() int { return len(s.buf) - s.off }

// Total returns the number of bytes read from the port so far.
func (s *ByteSource) Total() uint64 { return s.total }

// Fill performs one read from the port and appends what it got to the
// buffer. A read that times out returns 0, nil.
func (s *ByteSource) Fill() (int, error) {
	n, err := s.port.Read(s.scratch)
	if n > 0 {
		s.compact()
		s.buf = append(s.buf, s.scratch[:n]...)
		s.total += uint64(n)
	}
	return n, err
}

// FillTo reads until at least want bytes are buffered, the deadline passes
// or the port returns an error.
func (s *ByteSource) FillTo(want int, deadline time.Time) error {
	for s.Available() < want {
		if !deadline.IsZero() && s.clock.Now().After(deadline) {
			return nil
		}
		if _, err := s.Fill(); err != nil {
			return err
		}
	}
	return nil
}

// ReadByte consumes one buffered byte.
func (s *ByteSource) ReadByte() (byte, error) {
	if s.Available() == 0 {
		return 0, ErrNoData
	}
	b := s.buf[s.off]
	s.off++
	return b, nil
}

// Read consumes up to len(p) buffered bytes. It never touches the port.
func (s *ByteSource) Read(p []byte) (int, error) {
	if s.Available() == 0 {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, ErrNoData
	}
	n := copy(p, s.buf[s.off:])
	s.off += n
	return n, nil
}

// Discard drops every buffered byte.
func (s *ByteSource) Discard() {
	s.buf = s.buf[:0]
	s.off = 0
}

// compact reclaims space taken by consumed bytes.
func (s *ByteSource) compact() {
	if s.off == 0 {
		return
	}
	n := copy(s.buf, s.buf[s.off:])
	s.buf = s.buf[:n]
	s.off = 0
}

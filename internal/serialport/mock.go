package serialport

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"time"
)

// ErrPortClosed is returned by the test ports once Close has been called.
var ErrPortClosed = errors.New("serial port closed")

// TestableSerialPort implements TimeoutSerialPorter with configurable
// behaviour for testing. When no data is buffered a Read waits for the read
// timeout (or until data arrives) and returns 0, nil, like a real port.
type TestableSerialPort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// ReadError is returned by the next Read call if set
	ReadError error

	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool

	// ReadCalls records the number of Read calls
	ReadCalls int

	// ReadTimeout is the current read timeout
	ReadTimeout time.Duration

	// MaxChunk limits how many bytes a single Read returns; 0 means no limit
	MaxChunk int

	dataReady chan struct{}
}

// NewTestableSerialPort creates a new TestableSerialPort for testing.
func NewTestableSerialPort() *TestableSerialPort {
	return &TestableSerialPort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
		ReadTimeout: 10 * time.Millisecond,
		dataReady:   make(chan struct{}, 1),
	}
}

// Read returns buffered data, an injected error, or 0, nil after the read
// timeout.
func (t *TestableSerialPort) Read(p []byte) (int, error) {
	t.mu.Lock()
	t.ReadCalls++

	if t.Closed {
		t.mu.Unlock()
		return 0, ErrPortClosed
	}
	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		t.mu.Unlock()
		return 0, err
	}
	if t.ReadBuffer.Len() == 0 {
		timeout := t.ReadTimeout
		t.mu.Unlock()
		select {
		case <-t.dataReady:
		case <-time.After(timeout):
		}
		t.mu.Lock()
		if t.Closed {
			t.mu.Unlock()
			return 0, ErrPortClosed
		}
	}
	defer t.mu.Unlock()

	if t.MaxChunk > 0 && len(p) > t.MaxChunk {
		p = p[:t.MaxChunk]
	}
	n, err := t.ReadBuffer.Read(p)
	if err == io.EOF {
		err = nil
	}
	return n, err
}

// Write captures data written to the port.
func (t *TestableSerialPort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Closed {
		return 0, ErrPortClosed
	}
	return t.WriteBuffer.Write(p)
}

// Close marks the port as closed and wakes a blocked reader.
func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Closed = true
	t.wake()
	return t.CloseError
}

// SetReadTimeout implements TimeoutSerialPorter.
func (t *TestableSerialPort) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadTimeout = timeout
	return nil
}

// AddReadData adds data to be returned by subsequent Read calls.
func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadBuffer.Write(data)
	t.wake()
}

// SetReadError makes the next Read fail with err.
func (t *TestableSerialPort) SetReadError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadError = err
	t.wake()
}

// IsClosed reports whether Close has been called.
func (t *TestableSerialPort) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Closed
}

// Pending returns the number of bytes not yet read.
func (t *TestableSerialPort) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ReadBuffer.Len()
}

func (t *TestableSerialPort) wake() {
	select {
	case t.dataReady <- struct{}{}:
	default:
	}
}

// MockPortOpener records Open calls and returns a preconfigured port.
type MockPortOpener struct {
	mu sync.Mutex

	// Port is the port to return from Open
	Port SerialPorter

	// Error is returned by Open if set
	Error error

	// OpenCalls records all Open calls
	OpenCalls []MockOpenCall
}

// MockOpenCall records details of an Open call.
type MockOpenCall struct {
	Path    string
	Options PortOptions
}

// NewMockPortOpener creates a MockPortOpener returning port.
func NewMockPortOpener(port SerialPorter) *MockPortOpener {
	return &MockPortOpener{Port: port}
}

// Open returns the configured port or error.
func (f *MockPortOpener) Open(path string, opts PortOptions) (SerialPorter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.OpenCalls = append(f.OpenCalls, MockOpenCall{Path: path, Options: opts})
	if f.Error != nil {
		return nil, f.Error
	}
	return f.Port, nil
}

// LastCall returns the most recent Open call, or nil if none.
func (f *MockPortOpener) LastCall() *MockOpenCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.OpenCalls) == 0 {
		return nil
	}
	return &f.OpenCalls[len(f.OpenCalls)-1]
}

// NewReplayPort returns a port that feeds capture to its reader in chunks
// every interval, looping forever until closed. It backs --dev mode.
func NewReplayPort(capture []byte, chunk int, interval time.Duration) *TestableSerialPort {
	port := NewTestableSerialPort()
	if len(capture) == 0 {
		return port
	}
	if chunk <= 0 {
		chunk = 64
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		off := 0
		for range ticker.C {
			if port.IsClosed() {
				return
			}
			// keep the backlog bounded when nobody is reading
			if port.Pending() > 4*len(capture) {
				continue
			}
			end := off + chunk
			if end > len(capture) {
				end = len(capture)
			}
			port.AddReadData(capture[off:end])
			off = end % len(capture)
		}
	}()
	return port
}

// Package headset runs the acquisition loop for a ThinkGear headset: it owns
// the serial link, recovers and decodes frames, classifies blinks, keeps the
// per-channel history and dispatches each sample to subscribers.
package headset

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/mindwave.report/internal/blink"
	"github.com/banshee-data/mindwave.report/internal/history"
	"github.com/banshee-data/mindwave.report/internal/monitoring"
	"github.com/banshee-data/mindwave.report/internal/serialport"
	"github.com/banshee-data/mindwave.report/internal/timeutil"
)

var (
	ErrConnect          = errors.New("failed to connect to headset")
	ErrAlreadyConnected = errors.New("headset already connected")
	ErrNotConnected     = errors.New("headset not connected")
)

// Interface is the consumer facing surface of a headset connection.
type Interface interface {
	// Connect opens the device and starts the acquisition loop. The loop
	// stops when ctx is cancelled or Disconnect is called.
	Connect(ctx context.Context) error
	// Disconnect stops the loop at its next poll boundary, releases the
	// serial port and waits for subscribers to handle the queued samples.
	Disconnect() error
	// Connected reports whether the acquisition loop is running.
	Connected() bool
	// Status describes the connection and the health of the link.
	Status() Status
	// Stats returns the frame counters of the current session.
	Stats() Stats
	// Subscribe registers h to be called once per decoded sample, in decode
	// order. The returned id is passed to Unsubscribe.
	Subscribe(h Handler) string
	// Unsubscribe removes a handler. Samples already queued for it are
	// still delivered.
	Unsubscribe(id string)
	// History returns a copy of the per-channel history.
	History() history.Snapshot
	// HistoryChannel returns a copy of one channel of the history.
	HistoryChannel(ch history.Channel) []float64
	// LastBlink returns the most recent blink classification, or nil.
	LastBlink() *blink.Event
}

// Options configures a Headset. Zero values are replaced by defaults.
type Options struct {
	Path string
	Port serialport.PortOptions

	// Opener opens the device; serialport.Open when nil.
	Opener serialport.PortOpener
	// Clock stamps samples and blinks and times the frame deadline and the
	// read error backoff; RealClock when nil.
	Clock timeutil.Clock

	PollTimeout     time.Duration
	FrameTimeout    time.Duration
	ErrorBackoff    time.Duration
	BlinkWindow     time.Duration
	HistoryCapacity int

	// OnConnect is called once the port is open, before the first sample
	// is dispatched. It must not call back into the Headset.
	OnConnect func(Status)
	// OnDisconnect is called after the loop has stopped, the port is closed
	// and every subscriber has handled the samples of the session, before
	// Disconnect returns. Handlers must therefore not call Disconnect.
	OnDisconnect func(Status, Stats)
}

func (o Options) withDefaults() Options {
	if o.Opener == nil {
		o.Opener = serialport.Open
	}
	if o.Clock == nil {
		o.Clock = timeutil.RealClock{}
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = 50 * time.Millisecond
	}
	if o.FrameTimeout <= 0 {
		o.FrameTimeout = 500 * time.Millisecond
	}
	if o.ErrorBackoff <= 0 {
		o.ErrorBackoff = 100 * time.Millisecond
	}
	if o.BlinkWindow <= 0 {
		o.BlinkWindow = blink.DefaultWindow
	}
	if o.HistoryCapacity <= 0 {
		o.HistoryCapacity = history.DefaultCapacity
	}
	return o
}

// Status is returned by Headset.Status.
type Status struct {
	Connected    bool      `json:"connected"`
	Path         string    `json:"path"`
	Port         string    `json:"port_options"`
	ConnectedAt  time.Time `json:"connected_at,omitzero"`
	LastSampleAt time.Time `json:"last_sample_at,omitzero"`
	LinkError    string    `json:"link_error,omitempty"`
}

// Stats counts what the acquisition loop has seen in the current session.
type Stats struct {
	Bytes           uint64 `json:"bytes"`
	Frames          uint64 `json:"frames"`
	Blinks          uint64 `json:"blinks"`
	LengthErrors    uint64 `json:"length_errors"`
	ChecksumErrors  uint64 `json:"checksum_errors"`
	ShortFrames     uint64 `json:"short_frames"`
	ReadErrors      uint64 `json:"read_errors"`
	Subscribers     int    `json:"subscribers"`
	DispatchBacklog int    `json:"dispatch_backlog"`
}

type counters struct {
	bytes          atomic.Uint64
	frames         atomic.Uint64
	blinks         atomic.Uint64
	lengthErrors   atomic.Uint64
	checksumErrors atomic.Uint64
	shortFrames    atomic.Uint64
	readErrors     atomic.Uint64
}

func (c *counters) reset() {
	c.bytes.Store(0)
	c.frames.Store(0)
	c.blinks.Store(0)
	c.lengthErrors.Store(0)
	c.checksumErrors.Store(0)
	c.shortFrames.Store(0)
	c.readErrors.Store(0)
}

// session is the state of one Connect..Disconnect cycle.
type session struct {
	cancel   context.CancelFunc
	done     chan struct{}
	closeErr error
}

// Headset implements Interface on top of a serial port.
type Headset struct {
	opts Options

	history    *history.Store
	dispatcher *dispatcher
	stats      counters
	// classifier is used by one loop at a time and reset per session
	classifier *blink.Classifier

	lastBlink    atomic.Pointer[blink.Event]
	lastSampleAt atomic.Pointer[time.Time]
	linkError    atomic.Pointer[string]

	mu          sync.Mutex
	sess        *session
	connectedAt time.Time
}

var _ Interface = (*Headset)(nil)

// New creates a disconnected Headset.
func New(opts Options) *Headset {
	opts = opts.withDefaults()
	return &Headset{
		opts:       opts,
		history:    history.NewStore(opts.HistoryCapacity),
		dispatcher: newDispatcher(),
		classifier: blink.NewClassifier(opts.BlinkWindow),
	}
}

// Connect opens the device and starts the acquisition loop.
func (h *Headset) Connect(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sess != nil {
		return ErrAlreadyConnected
	}

	port, err := h.opts.Opener(h.opts.Path, h.opts.Port)
	if err != nil {
		return fmt.Errorf("%w on %s: %w", ErrConnect, h.opts.Path, err)
	}
	src, err := serialport.NewByteSource(port, h.opts.PollTimeout)
	if err != nil {
		port.Close()
		return fmt.Errorf("%w on %s: %w", ErrConnect, h.opts.Path, err)
	}
	src.SetClock(h.opts.Clock)

	// Classifier state, history and counters live for one session.
	h.history.Reset()
	h.classifier.Reset()
	h.stats.reset()
	h.lastBlink.Store(nil)
	h.lastSampleAt.Store(nil)
	h.linkError.Store(nil)

	loopCtx, cancel := context.WithCancel(ctx)
	s := &session{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	h.sess = s
	h.connectedAt = h.opts.Clock.Now()

	monitoring.Logf("connected to headset on %s (%s)", h.opts.Path, h.opts.Port)
	if h.opts.OnConnect != nil {
		h.opts.OnConnect(Status{
			Connected:   true,
			Path:        h.opts.Path,
			Port:        h.opts.Port.String(),
			ConnectedAt: h.connectedAt,
		})
	}

	l := &loop{
		h:          h,
		src:        src,
		classifier: h.classifier,
	}
	go func() {
		defer close(s.done)
		l.run(loopCtx)
		s.closeErr = port.Close()
		// samples of this session reach every subscriber before it ends
		h.dispatcher.flush()

		h.mu.Lock()
		if h.sess == s {
			h.sess = nil
		}
		h.mu.Unlock()

		if h.opts.OnDisconnect != nil {
			h.opts.OnDisconnect(h.Status(), h.Stats())
		}
	}()
	return nil
}

// Disconnect stops the acquisition loop and closes the port.
func (h *Headset) Disconnect() error {
	h.mu.Lock()
	s := h.sess
	h.mu.Unlock()
	if s == nil {
		return ErrNotConnected
	}

	s.cancel()
	<-s.done
	monitoring.Logf("disconnected from headset on %s", h.opts.Path)
	return s.closeErr
}

// Close disconnects if needed and flushes every subscriber.
func (h *Headset) Close() error {
	err := h.Disconnect()
	if errors.Is(err, ErrNotConnected) {
		err = nil
	}
	h.dispatcher.closeAll()
	return err
}

// Connected reports whether the acquisition loop is running.
func (h *Headset) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sess != nil
}

// Status describes the connection.
func (h *Headset) Status() Status {
	h.mu.Lock()
	st := Status{
		Connected: h.sess != nil,
		Path:      h.opts.Path,
		Port:      h.opts.Port.String(),
	}
	if st.Connected {
		st.ConnectedAt = h.connectedAt
	}
	h.mu.Unlock()

	if t := h.lastSampleAt.Load(); t != nil {
		st.LastSampleAt = *t
	}
	if e := h.linkError.Load(); e != nil {
		st.LinkError = *e
	}
	return st
}

// Stats returns the counters of the current session.
func (h *Headset) Stats() Stats {
	return Stats{
		Bytes:           h.stats.bytes.Load(),
		Frames:          h.stats.frames.Load(),
		Blinks:          h.stats.blinks.Load(),
		LengthErrors:    h.stats.lengthErrors.Load(),
		ChecksumErrors:  h.stats.checksumErrors.Load(),
		ShortFrames:     h.stats.shortFrames.Load(),
		ReadErrors:      h.stats.readErrors.Load(),
		Subscribers:     h.dispatcher.count(),
		DispatchBacklog: h.dispatcher.backlog(),
	}
}

// Subscribe registers a sample handler.
func (h *Headset) Subscribe(handler Handler) string {
	return h.dispatcher.add(handler)
}

// Unsubscribe removes a sample handler.
func (h *Headset) Unsubscribe(id string) {
	h.dispatcher.remove(id)
}

// History returns a copy of every channel.
func (h *Headset) History() history.Snapshot {
	return h.history.Snapshot()
}

// HistoryChannel returns a copy of one channel.
func (h *Headset) HistoryChannel(ch history.Channel) []float64 {
	return h.history.Channel(ch)
}

// LastBlink returns the most recent blink classification, or nil.
func (h *Headset) LastBlink() *blink.Event {
	ev := h.lastBlink.Load()
	if ev == nil {
		return nil
	}
	cp := *ev
	return &cp
}

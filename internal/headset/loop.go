package headset

import (
	"context"
	"errors"
	"time"

	"github.com/banshee-data/mindwave.report/internal/blink"
	"github.com/banshee-data/mindwave.report/internal/monitoring"
	"github.com/banshee-data/mindwave.report/internal/serialport"
	"github.com/banshee-data/mindwave.report/internal/thinkgear"
)

// readErrorLogInterval limits how often a persistent link failure is logged.
const readErrorLogInterval = 5 * time.Second

// loop is the single reader of the serial port for one session.
type loop struct {
	h          *Headset
	src        *serialport.ByteSource
	classifier *blink.Classifier
	sync       thinkgear.Synchronizer

	lastErrLog time.Time
	suppressed int
}

func (l *loop) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if l.src.Available() == 0 {
			n, err := l.src.Fill()
			l.h.stats.bytes.Store(l.src.Total())
			if err != nil {
				l.readError(ctx, err)
				continue
			}
			if n == 0 {
				continue
			}
		}

		found, err := l.sync.Seek(l.src)
		if err != nil || !found {
			continue
		}

		frame, err := l.readFrame()
		l.h.stats.bytes.Store(l.src.Total())
		if err != nil {
			l.frameError(ctx, err)
			continue
		}
		l.handle(frame)
	}
}

// readFrame reads the length, payload and checksum following a sync
// marker, waiting up to FrameTimeout for the rest of the frame to arrive.
func (l *loop) readFrame() (thinkgear.RawFrame, error) {
	deadline := l.h.opts.Clock.Now().Add(l.h.opts.FrameTimeout)

	if err := l.src.FillTo(1, deadline); err != nil {
		return thinkgear.RawFrame{}, err
	}
	if l.src.Available() == 0 {
		return thinkgear.RawFrame{}, thinkgear.ErrShortFrame
	}
	length, err := thinkgear.ReadLength(l.src)
	if err != nil {
		return thinkgear.RawFrame{}, err
	}
	if err := l.src.FillTo(int(length)+1, deadline); err != nil {
		return thinkgear.RawFrame{}, err
	}
	return thinkgear.ReadBody(l.src, length)
}

func (l *loop) frameError(ctx context.Context, err error) {
	st := &l.h.stats
	switch {
	case errors.Is(err, thinkgear.ErrInvalidLength):
		st.lengthErrors.Add(1)
	case errors.Is(err, thinkgear.ErrChecksumMismatch):
		st.checksumErrors.Add(1)
	case errors.Is(err, thinkgear.ErrShortFrame):
		st.shortFrames.Add(1)
	default:
		l.readError(ctx, err)
		return
	}
	monitoring.Debugf("dropped frame: %v", err)
}

// readError records a link failure and backs off before the next read.
func (l *loop) readError(ctx context.Context, err error) {
	msg := err.Error()
	l.h.linkError.Store(&msg)
	l.h.stats.readErrors.Add(1)

	clock := l.h.opts.Clock
	if clock.Since(l.lastErrLog) >= readErrorLogInterval {
		if l.suppressed > 0 {
			monitoring.Logf("serial read error on %s: %v (%d more suppressed)", l.h.opts.Path, err, l.suppressed)
		} else {
			monitoring.Logf("serial read error on %s: %v", l.h.opts.Path, err)
		}
		l.lastErrLog = clock.Now()
		l.suppressed = 0
	} else {
		l.suppressed++
	}

	select {
	case <-ctx.Done():
	case <-clock.After(l.h.opts.ErrorBackoff):
	}
}

func (l *loop) handle(frame thinkgear.RawFrame) {
	h := l.h
	sample := thinkgear.DecodePayload(frame.Payload)
	sample.ReceivedAt = h.opts.Clock.Now()
	h.stats.frames.Add(1)
	h.linkError.Store(nil)

	if sample.BlinkEligible() {
		ev := l.classifier.Classify(sample.ReceivedAt, sample.Raw)
		h.lastBlink.Store(&ev)
		h.stats.blinks.Add(1)
		monitoring.Debugf("blink %s (strength %d, raw %d)", ev.Type, sample.BlinkStrength, sample.Raw)
	}

	h.history.Append(sample)
	at := sample.ReceivedAt
	h.lastSampleAt.Store(&at)
	h.dispatcher.publish(sample, h.lastBlink.Load())
}

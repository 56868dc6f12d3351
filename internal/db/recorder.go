package db

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/mindwave.report/internal/blink"
	"github.com/banshee-data/mindwave.report/internal/monitoring"
	"github.com/banshee-data/mindwave.report/internal/thinkgear"
)

// Recorder writes every sample it is handed to the database, plus a
// blink_events row each time the blink classification changes. Handle has
// the signature of a headset subscriber.
type Recorder struct {
	db *DB

	mu        sync.Mutex
	session   int64
	frames    int64
	lastBlink uint64

	errors atomic.Uint64
}

func NewRecorder(db *DB) *Recorder {
	return &Recorder{db: db}
}

// Begin opens a new session row. Samples handled afterwards belong to it.
func (r *Recorder) Begin(port, portOptions string, at time.Time) error {
	id, err := r.db.StartSession(port, portOptions, at)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.session = id
	r.frames = 0
	r.lastBlink = 0
	r.mu.Unlock()
	return nil
}

// End closes the current session, if any.
func (r *Recorder) End(at time.Time) error {
	r.mu.Lock()
	id, frames := r.session, r.frames
	r.session = 0
	r.mu.Unlock()
	if id == 0 {
		return nil
	}
	return r.db.EndSession(id, at, frames)
}

// Session returns the id of the open session, or zero.
func (r *Recorder) Session() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// Errors returns the number of failed writes.
func (r *Recorder) Errors() uint64 { return r.errors.Load() }

// Handle stores s and, when ev is a classification not seen before, the
// blink event.
func (r *Recorder) Handle(s thinkgear.Sample, ev *blink.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.db.InsertSample(r.session, s); err != nil {
		r.fail(err)
		return
	}
	r.frames++

	if ev == nil || ev.Type == blink.None || ev.Seq == r.lastBlink {
		return
	}
	r.lastBlink = ev.Seq
	if err := r.db.InsertBlink(r.session, *ev, s.BlinkStrength, s.Raw); err != nil {
		r.fail(err)
	}
}

func (r *Recorder) fail(err error) {
	// log the first failure and then every hundredth
	if n := r.errors.Add(1); n == 1 || n%100 == 0 {
		monitoring.Logf("recorder: %v (%d failures)", err, n)
	}
}

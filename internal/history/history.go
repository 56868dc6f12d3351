// Package history keeps a bounded, per-channel record of recently decoded
// headset values for dashboards and the HTTP API.
package history

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/mindwave.report/internal/thinkgear"
)

// DefaultCapacity is the number of values kept per channel.
const DefaultCapacity = 100

// Channel names one monitored value of a sample.
type Channel string

const (
	Delta      Channel = "delta"
	Theta      Channel = "theta"
	LowAlpha   Channel = "low_alpha"
	HighAlpha  Channel = "high_alpha"
	LowBeta    Channel = "low_beta"
	HighBeta   Channel = "high_beta"
	Gamma1     Channel = "gamma1"
	Gamma2     Channel = "gamma2"
	Attention  Channel = "attention"
	Meditation Channel = "meditation"
	Raw        Channel = "raw"
)

// Channels lists every channel in display order.
var Channels = []Channel{
	Delta, Theta, LowAlpha, HighAlpha, LowBeta, HighBeta, Gamma1, Gamma2,
	Attention, Meditation, Raw,
}

// ParseChannel validates a channel name.
func ParseChannel(name string) (Channel, error) {
	for _, ch := range Channels {
		if string(ch) == name {
			return ch, nil
		}
	}
	return "", fmt.Errorf("unknown channel %q", name)
}

// Value returns the value of ch carried by s.
func Value(s thinkgear.Sample, ch Channel) float64 {
	switch ch {
	case Delta:
		return float64(s.Bands.Delta)
	case Theta:
		return float64(s.Bands.Theta)
	case LowAlpha:
		return float64(s.Bands.LowAlpha)
	case HighAlpha:
		return float64(s.Bands.HighAlpha)
	case LowBeta:
		return float64(s.Bands.LowBeta)
	case HighBeta:
		return float64(s.Bands.HighBeta)
	case Gamma1:
		return float64(s.Bands.Gamma1)
	case Gamma2:
		return float64(s.Bands.Gamma2)
	case Attention:
		return float64(s.Attention)
	case Meditation:
		return float64(s.Meditation)
	case Raw:
		return float64(s.Raw)
	}
	return 0
}

// Ring is a fixed capacity FIFO of float64 values. The oldest value is
// overwritten once the ring is full. Ring is not safe for concurrent use.
type Ring struct {
	buf   []float64
	start int
	size  int
}

// NewRing creates a Ring holding at most capacity values.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{buf: make([]float64, capacity)}
}

// Push appends v, evicting the oldest value when full.
func (r *Ring) Push(v float64) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = v
		r.size++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

// Len returns the number of values held.
func (r *Ring) Len() int { return r.size }

// Cap returns the capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// Values returns a copy of the held values, oldest first.
func (r *Ring) Values() []float64 {
	out := make([]float64, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// Snapshot is a point in time copy of every channel.
type Snapshot map[Channel][]float64

// Summary describes the values currently held for one channel.
type Summary struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Latest float64 `json:"latest"`
}

// Summarize computes a Summary of values.
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	s := Summary{
		Count:  len(values),
		Min:    values[0],
		Max:    values[0],
		Latest: values[len(values)-1],
	}
	for _, v := range values[1:] {
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
	if len(values) == 1 {
		s.StdDev = 0
	}
	return s
}

// Store holds one Ring per channel. It has a single writer (the acquisition
// loop) and any number of readers.
type Store struct {
	mu       sync.RWMutex
	capacity int
	rings    map[Channel]*Ring
	appended uint64
}

// NewStore creates a Store with capacity values per channel.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	rings := make(map[Channel]*Ring, len(Channels))
	for _, ch := range Channels {
		rings[ch] = NewRing(capacity)
	}
	return &Store{capacity: capacity, rings: rings}
}

// Capacity returns the per-channel capacity.
func (s *Store) Capacity() int { return s.capacity }

// Append records every channel of sample.
func (s *Store) Append(sample thinkgear.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch, r := range s.rings {
		r.Push(Value(sample, ch))
	}
	s.appended++
}

// AppendValue records a single channel value.
func (s *Store) AppendValue(ch Channel, v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rings[ch]
	if !ok {
		return fmt.Errorf("unknown channel %q", ch)
	}
	r.Push(v)
	return nil
}

// Appended returns how many samples have been appended since creation.
func (s *Store) Appended() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appended
}

// Channel returns a copy of one channel, oldest first.
func (s *Store) Channel(ch Channel) []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rings[ch]
	if !ok {
		return nil
	}
	return r.Values()
}

// Snapshot returns a copy of every channel.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make(Snapshot, len(s.rings))
	for ch, r := range s.rings {
		snap[ch] = r.Values()
	}
	return snap
}

// Summary summarises the current values of one channel.
func (s *Store) Summary(ch Channel) Summary {
	return Summarize(s.Channel(ch))
}

// Reset empties every channel.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.rings {
		s.rings[ch] = NewRing(s.capacity)
	}
	s.appended = 0
}

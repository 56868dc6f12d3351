// Package blink classifies eye blinks reported by the headset into left,
// right or double blinks.
package blink

import (
	"encoding/json"
	"time"
)

// DefaultWindow is the trailing interval in which a second blink turns the
// classification into Both.
const DefaultWindow = 750 * time.Millisecond

// Type is the outcome of classifying one blink.
type Type int

const (
	None Type = iota
	Left
	Right
	Both
)

func (t Type) String() string {
	switch t {
	case Left:
		return "left"
	case Right:
		return "right"
	case Both:
		return "both"
	default:
		return "none"
	}
}

// ParseType returns the Type named s, or None.
func ParseType(s string) Type {
	switch s {
	case "left":
		return Left
	case "right":
		return Right
	case "both":
		return Both
	default:
		return None
	}
}

// MarshalJSON encodes the type as its string name.
func (t Type) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// Event is a classification and the time it was made. Seq numbers the
// classifications of one Classifier, so two events with the same Type and At
// are still told apart.
type Event struct {
	Type Type      `json:"type"`
	At   time.Time `json:"at"`
	Seq  uint64    `json:"seq,omitempty"`
}

// Classifier turns a sequence of blink-eligible samples into Events.
//
// A lone blink is classified from the sign of the raw EEG value (negative
// is Left, otherwise Right) and stays in the window. If a second blink
// lands within Window of an earlier one the pair is reported as Both and the
// window is cleared. The side heuristic is not hardware verified.
//
// Classifier is not safe for concurrent use.
type Classifier struct {
	Window time.Duration

	recent []time.Time
	last   Event
	seq    uint64
}

// NewClassifier returns a Classifier using window, or DefaultWindow when
// window is not positive.
func NewClassifier(window time.Duration) *Classifier {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Classifier{Window: window}
}

// Classify records a blink at the given time and returns its classification.
// Only call it for samples with a nonzero blink strength.
func (c *Classifier) Classify(at time.Time, raw int16) Event {
	window := c.Window
	if window <= 0 {
		window = DefaultWindow
	}

	kept := c.recent[:0]
	for _, ts := range c.recent {
		if at.Sub(ts) < window {
			kept = append(kept, ts)
		}
	}
	c.recent = append(kept, at)

	var t Type
	switch {
	case len(c.recent) >= 2:
		t = Both
		c.recent = c.recent[:0]
	case raw < 0:
		t = Left
	default:
		t = Right
	}

	c.seq++
	c.last = Event{Type: t, At: at, Seq: c.seq}
	return c.last
}

// Last returns the most recent classification. Its Type is None until the
// first blink.
func (c *Classifier) Last() Event { return c.last }

// Pending returns the number of blinks currently held in the window.
func (c *Classifier) Pending() int { return len(c.recent) }

// Reset clears the window and the last classification. Seq keeps counting
// from where it was.
func (c *Classifier) Reset() {
	c.recent = c.recent[:0]
	c.last = Event{}
}

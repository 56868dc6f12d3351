package blink

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

func at(seconds float64) time.Time {
	return epoch.Add(time.Duration(seconds * float64(time.Second)))
}

func TestClassifyDoubleBlinkScenario(t *testing.T) {
	c := NewClassifier(DefaultWindow)

	first := c.Classify(at(0.0), -5)
	assert.Equal(t, Left, first.Type)
	assert.Equal(t, 1, c.Pending())

	second := c.Classify(at(0.3), 5)
	assert.Equal(t, Both, second.Type)
	assert.Equal(t, 0, c.Pending(), "double blink consumes the window")

	third := c.Classify(at(2.0), 5)
	assert.Equal(t, Right, third.Type)
	assert.Equal(t, at(2.0), third.At)
}

func TestClassifyIsolatedBlinkStaysLeft(t *testing.T) {
	c := NewClassifier(0)
	ev := c.Classify(at(0), -5)
	assert.Equal(t, Left, ev.Type)
	assert.Equal(t, Left, c.Last().Type)
}

func TestClassifyZeroRawIsRight(t *testing.T) {
	c := NewClassifier(DefaultWindow)
	assert.Equal(t, Right, c.Classify(at(0), 0).Type)
}

func TestClassifyWindowBoundary(t *testing.T) {
	tests := []struct {
		name string
		gap  float64
		want Type
	}{
		{"inside window", 0.74, Both},
		{"at window edge", 0.75, Left},
		{"outside window", 1.5, Left},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(DefaultWindow)
			c.Classify(at(0), -1)
			got := c.Classify(at(tt.gap), -1)
			assert.Equal(t, tt.want, got.Type)
		})
	}
}

func TestClassifyOldTimestampsArePruned(t *testing.T) {
	c := NewClassifier(DefaultWindow)
	c.Classify(at(0), 3)
	c.Classify(at(1), 3)
	assert.Equal(t, 1, c.Pending())
	assert.Equal(t, Both, c.Classify(at(1.5), 3).Type)
}

func TestLastAndReset(t *testing.T) {
	c := NewClassifier(DefaultWindow)
	assert.Equal(t, None, c.Last().Type)
	c.Classify(at(0), 1)
	assert.Equal(t, Right, c.Last().Type)
	c.Reset()
	assert.Equal(t, None, c.Last().Type)
	assert.Equal(t, 0, c.Pending())
}

func TestClassifySequence(t *testing.T) {
	c := NewClassifier(DefaultWindow)
	first := c.Classify(at(0), -1)
	// the same instant classified again is a new event
	second := c.Classify(at(0), -1)
	assert.Equal(t, first.At, second.At)
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)

	c.Reset()
	assert.Equal(t, uint64(3), c.Classify(at(5), 1).Seq)
	assert.Equal(t, uint64(3), c.Last().Seq)
}

func TestTypeJSON(t *testing.T) {
	b, err := json.Marshal(Event{Type: Both, At: epoch})
	assert.NoError(t, err)
	assert.JSONEq(t, `{"type":"both","at":"2025-03-01T12:00:00Z"}`, string(b))

	b, err = json.Marshal(Event{Type: Left, At: epoch, Seq: 7})
	assert.NoError(t, err)
	assert.JSONEq(t, `{"type":"left","at":"2025-03-01T12:00:00Z","seq":7}`, string(b))
	assert.Equal(t, "none", Type(42).String())
}

func TestParseType(t *testing.T) {
	for _, typ := range []Type{None, Left, Right, Both} {
		assert.Equal(t, typ, ParseType(typ.String()))
	}
	assert.Equal(t, None, ParseType("wink"))
}

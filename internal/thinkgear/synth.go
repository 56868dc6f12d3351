package thinkgear

import (
	"math"
	"math/rand"
)

// SyntheticGenerator produces a plausible headset byte stream for demos,
// dev mode and fixtures. Output is deterministic for a given seed.
type SyntheticGenerator struct {
	frame uint64

	// Configuration
	BlinkEvery  int     // frames between blinks, 0 disables blinks
	DoubleBlink float64 // probability that a blink is followed by a second one
	NoiseEvery  int     // frames between injected garbage or corrupt frames, 0 disables

	rng *rand.Rand
}

// NewSyntheticGenerator creates a generator seeded with seed.
func NewSyntheticGenerator(seed int64) *SyntheticGenerator {
	return &SyntheticGenerator{
		BlinkEvery:  40,
		DoubleBlink: 0.25,
		NoiseEvery:  25,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// Frames returns the number of payloads generated so far.
func (g *SyntheticGenerator) Frames() uint64 { return g.frame }

// NextPayload returns the next full length measurement payload.
func (g *SyntheticGenerator) NextPayload() []byte {
	g.frame++
	t := float64(g.frame)

	p := make([]byte, MaxPayloadLength)
	p[0] = 0x02
	if g.frame < 10 {
		// the headset reports poor contact while it settles
		p[offsetSignalQuality] = byte(200 - 20*g.frame)
	}
	p[2] = 0x83
	p[3] = 0x18
	for i := 0; i < 8; i++ {
		// lower bands carry more power
		base := 40000.0 / float64(i+1)
		v := base*(0.6+0.3*math.Sin(t/float64(7+3*i))) + g.rng.Float64()*base*0.1
		p[offsetBands+2*i] = byte(uint16(v) >> 8)
		p[offsetBands+2*i+1] = byte(uint16(v))
	}
	// keep the fixed fields from being mistaken for tags
	for i := 0; i < 20; i++ {
		if p[i] == TagBlinkStrength || p[i] == TagRawValue {
			p[i]++
		}
	}

	var strength byte
	raw := int16(g.rng.Intn(401) - 200)
	if g.blinkDue() {
		strength = byte(40 + g.rng.Intn(80))
		raw = int16(150 + g.rng.Intn(250))
		if g.rng.Intn(2) == 0 {
			raw = -raw
		}
	}
	p[20] = TagBlinkStrength
	p[21] = strength
	p[22] = TagRawValue
	p[23] = byte(uint16(raw) >> 8)
	p[24] = byte(uint16(raw))

	p[28] = 0x04
	p[offsetAttention] = byte(50 + 40*math.Sin(t/20))
	p[30] = 0x05
	p[offsetMeditation] = byte(50 + 40*math.Cos(t/30))
	return p
}

func (g *SyntheticGenerator) blinkDue() bool {
	if g.BlinkEvery <= 0 {
		return false
	}
	n := int(g.frame % uint64(g.BlinkEvery))
	if n == 0 {
		return true
	}
	// a double blink is a second blinking frame right after the first
	return n == 1 && g.frame > 1 && g.rng.Float64() < g.DoubleBlink
}

// NextChunk returns the next encoded frame, sometimes preceded by line
// noise or replaced by a frame with a bad checksum.
func (g *SyntheticGenerator) NextChunk() []byte {
	frame, _ := EncodeFrame(g.NextPayload())
	if g.NoiseEvery <= 0 || g.frame%uint64(g.NoiseEvery) != 0 {
		return frame
	}

	if g.rng.Intn(2) == 0 {
		frame[len(frame)-1] ^= 0xFF
		good, _ := EncodeFrame(g.NextPayload())
		return append(frame, good...)
	}
	noise := make([]byte, 1+g.rng.Intn(6))
	for i := range noise {
		noise[i] = byte(g.rng.Intn(256))
		if noise[i] == SyncByte {
			noise[i] = 0
		}
	}
	return append(noise, frame...)
}

// Capture returns a stream of at least frames payloads.
func (g *SyntheticGenerator) Capture(frames int) []byte {
	var out []byte
	for g.frame < uint64(frames) {
		out = append(out, g.NextChunk()...)
	}
	return out
}

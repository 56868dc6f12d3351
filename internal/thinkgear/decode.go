package thinkgear

import (
	"encoding/binary"
	"time"
)

// Payload offsets of the fixed position fields.
const (
	offsetSignalQuality = 1
	offsetBands         = 4
	offsetAttention     = 29
	offsetMeditation    = 31

	// TagBlinkStrength is followed by one byte of blink intensity.
	TagBlinkStrength byte = 0x16
	// TagRawValue is followed by a big-endian 16-bit raw EEG value.
	TagRawValue byte = 0x80
)

// BandPowers holds the hardware computed magnitude of each EEG band.
type BandPowers struct {
	Delta     uint16 `json:"delta"`
	Theta     uint16 `json:"theta"`
	LowAlpha  uint16 `json:"low_alpha"`
	HighAlpha uint16 `json:"high_alpha"`
	LowBeta   uint16 `json:"low_beta"`
	HighBeta  uint16 `json:"high_beta"`
	Gamma1    uint16 `json:"gamma1"`
	Gamma2    uint16 `json:"gamma2"`
}

// Sample is one decoded measurement frame. Fields that were not present in
// the payload are left at zero.
type Sample struct {
	SignalQuality uint8      `json:"signal_quality"`
	Attention     uint8      `json:"attention"`
	Meditation    uint8      `json:"meditation"`
	Bands         BandPowers `json:"bands"`
	BlinkStrength uint8      `json:"blink_strength"`
	Raw           int16      `json:"raw"`
	ReceivedAt    time.Time  `json:"received_at"`
}

// BlinkEligible reports whether the sample carries a blink.
func (s Sample) BlinkEligible() bool { return s.BlinkStrength != 0 }

// DecodePayload extracts the measurement fields from a checksum verified
// payload. Short payloads decode best-effort.
func DecodePayload(p []byte) Sample {
	var s Sample
	if len(p) > offsetSignalQuality {
		s.SignalQuality = p[offsetSignalQuality]
	}

	// The headset sends high beta ahead of low beta.
	bands := []*uint16{
		&s.Bands.Delta,
		&s.Bands.Theta,
		&s.Bands.LowAlpha,
		&s.Bands.HighAlpha,
		&s.Bands.HighBeta,
		&s.Bands.LowBeta,
		&s.Bands.Gamma1,
		&s.Bands.Gamma2,
	}
	for i, dst := range bands {
		*dst = uint16At(p, offsetBands+2*i)
	}

	if len(p) > offsetAttention {
		s.Attention = p[offsetAttention]
	}
	if len(p) > offsetMeditation {
		s.Meditation = p[offsetMeditation]
	}

	// Only the first occurrence of each tag counts.
	if i := findTag(p, TagBlinkStrength); i >= 0 {
		s.BlinkStrength = p[i+1]
	}
	if i := findTag(p, TagRawValue); i >= 0 {
		s.Raw = foldSigned(binary.BigEndian.Uint16(p[i+1 : i+3]))
	}
	return s
}

func uint16At(p []byte, off int) uint16 {
	if len(p) < off+2 {
		return 0
	}
	return binary.BigEndian.Uint16(p[off : off+2])
}

// findTag returns the index of the first tag byte, or -1. Both tags are
// searched in the same range, which leaves out the last two bytes of the
// payload.
func findTag(p []byte, tag byte) int {
	for i := 0; i+2 < len(p); i++ {
		if p[i] == tag {
			return i
		}
	}
	return -1
}

// foldSigned maps values >= 32768 into the negative half of int16.
func foldSigned(v uint16) int16 {
	if v >= 1<<15 {
		return int16(int32(v) - 1<<16)
	}
	return int16(v)
}

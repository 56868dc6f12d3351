package thinkgear

// SyncState is the position of the Synchronizer within the two byte marker.
type SyncState int

const (
	SeekFirstMarker SyncState = iota
	SeekSecondMarker
)

func (s SyncState) String() string {
	switch s {
	case SeekFirstMarker:
		return "seek-first-marker"
	case SeekSecondMarker:
		return "seek-second-marker"
	default:
		return "unknown"
	}
}

// Synchronizer locates the 0xAA 0xAA marker in a byte stream. Its state is
// kept between calls so a marker split across two reads is still found.
type Synchronizer struct {
	state SyncState
}

// State returns the current state.
func (s *Synchronizer) State() SyncState { return s.state }

// Reset forgets any partially observed marker.
func (s *Synchronizer) Reset() { s.state = SeekFirstMarker }

// Feed advances the state machine by one byte and reports whether a frame
// start has just been observed.
func (s *Synchronizer) Feed(b byte) bool {
	if b != SyncByte {
		s.state = SeekFirstMarker
		return false
	}
	if s.state == SeekSecondMarker {
		s.state = SeekFirstMarker
		return true
	}
	s.state = SeekSecondMarker
	return false
}

// Seek consumes buffered bytes until a frame start is found. It returns
// false with a nil error when the buffer runs dry first; the caller should
// wait for more data and call Seek again.
func (s *Synchronizer) Seek(src ByteReader) (bool, error) {
	for src.Available() > 0 {
		b, err := src.ReadByte()
		if err != nil {
			return false, err
		}
		if s.Feed(b) {
			return true, nil
		}
	}
	return false, nil
}

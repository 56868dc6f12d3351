// Package testutil provides shared test utilities and fixtures.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/banshee-data/mindwave.report/internal/thinkgear"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// DecodeJSON unmarshals the recorded response body into v.
func DecodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode %q: %v", rec.Body.String(), err)
	}
}

// Payload builds a full length payload with the given attention, blink
// strength and raw value. Meditation is 100-attention and the band powers
// are zero.
func Payload(attention, strength uint8, raw int16) []byte {
	p := make([]byte, thinkgear.MaxPayloadLength)
	p[20] = thinkgear.TagBlinkStrength
	p[21] = strength
	p[22] = thinkgear.TagRawValue
	p[23] = byte(uint16(raw) >> 8)
	p[24] = byte(uint16(raw))
	p[29] = attention
	p[31] = 100 - attention
	return p
}

// Frame wraps payload in a valid frame.
func Frame(t *testing.T, payload []byte) []byte {
	t.Helper()
	f, err := thinkgear.EncodeFrame(payload)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	return f
}

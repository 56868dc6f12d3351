package monitoring

import (
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	// Now set to nil and verify it doesn't call our logger
	called = false
	SetLogger(nil)
	Logf("test")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestDebugf(t *testing.T) {
	original := Logf
	defer func() {
		Logf = original
		SetVerbose(false)
	}()

	var lines int
	SetLogger(func(string, ...interface{}) { lines++ })

	SetVerbose(false)
	Debugf("hidden %d", 1)
	if lines != 0 {
		t.Errorf("Debugf logged %d lines with verbose off", lines)
	}

	SetVerbose(true)
	if !Verbose() {
		t.Error("Verbose() = false after SetVerbose(true)")
	}
	Debugf("shown %d", 2)
	if lines != 1 {
		t.Errorf("Debugf logged %d lines with verbose on, want 1", lines)
	}
}

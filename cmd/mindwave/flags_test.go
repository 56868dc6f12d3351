package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/mindwave.report/internal/blink"
	"github.com/banshee-data/mindwave.report/internal/serialport"
	"github.com/banshee-data/mindwave.report/internal/thinkgear"
)

// newFlagSet mirrors the flags loadConfig reads from the command line.
func newFlagSet(t *testing.T, args ...string) *flag.FlagSet {
	t.Helper()
	fs := flag.NewFlagSet("mindwave", flag.ContinueOnError)
	fs.String("config", "", "")
	fs.String("listen", ":8080", "")
	fs.String("port", "/dev/rfcomm0", "")
	fs.Int("baud", serialport.DefaultBaudRate, "")
	fs.String("db-path", "mindwave.db", "")
	fs.Bool("no-record", false, "")
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return fs
}

func TestFlagDefaults(t *testing.T) {
	if *listen != ":8080" {
		t.Errorf("expected listen default :8080, got %q", *listen)
	}
	if *baud != 9600 {
		t.Errorf("expected baud default 9600, got %d", *baud)
	}
	if *noConnect {
		t.Error("expected the headset to be connected at startup by default")
	}
	if *configFile != "" {
		t.Errorf("expected no config file by default, got %q", *configFile)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(newFlagSet(t))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if got := cfg.GetPort(); got != "/dev/rfcomm0" {
		t.Errorf("port = %q, want /dev/rfcomm0", got)
	}
	if got := cfg.GetListen(); got != ":8080" {
		t.Errorf("listen = %q, want :8080", got)
	}
	if !cfg.GetRecord() {
		t.Error("expected recording to be enabled by default")
	}

	opts := headsetOptions(cfg)
	if opts.HistoryCapacity != 100 {
		t.Errorf("history capacity = %d, want 100", opts.HistoryCapacity)
	}
	if opts.BlinkWindow != blink.DefaultWindow {
		t.Errorf("blink window = %v, want %v", opts.BlinkWindow, blink.DefaultWindow)
	}
}

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mindwave.json")
	body := `{"port": "/dev/ttyUSB0", "baud_rate": 57600, "listen": ":9000", "blink_window": "500ms"}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(newFlagSet(t, "--config", path, "--listen", ":9100", "--no-record"))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if got := cfg.GetPort(); got != "/dev/ttyUSB0" {
		t.Errorf("port = %q, want value from file", got)
	}
	if got := cfg.GetListen(); got != ":9100" {
		t.Errorf("listen = %q, want flag value :9100", got)
	}
	if cfg.GetRecord() {
		t.Error("--no-record should disable recording")
	}

	opts := headsetOptions(cfg)
	if opts.Port.BaudRate != 57600 {
		t.Errorf("baud = %d, want 57600", opts.Port.BaudRate)
	}
	if opts.BlinkWindow != 500*time.Millisecond {
		t.Errorf("blink window = %v, want 500ms", opts.BlinkWindow)
	}
}

func TestLoadConfigRejectsBadBaud(t *testing.T) {
	if _, err := loadConfig(newFlagSet(t, "--baud", "12345")); err == nil {
		t.Fatal("expected an error for a non-standard baud rate")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := loadConfig(newFlagSet(t, "--config", filepath.Join(t.TempDir(), "missing.json"))); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestDevOpenerReplaysCapture(t *testing.T) {
	frame, err := thinkgear.EncodeFrame(make([]byte, thinkgear.MaxPayloadLength))
	if err != nil {
		t.Fatal(err)
	}
	port, err := devOpener(frame)("/dev/null", serialport.PortOptions{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer port.Close()

	buf := make([]byte, len(frame))
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		n, err := port.Read(buf)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if n > 0 {
			if buf[0] != thinkgear.SyncByte {
				t.Errorf("expected replay to start at a sync byte, got %#x", buf[0])
			}
			return
		}
	}
	t.Fatal("no data replayed")
}

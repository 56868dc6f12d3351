package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/mindwave.report/internal/serialport"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/mindwave.defaults.json"

// Config is the daemon configuration. Every field is optional; the Get*
// methods supply defaults for fields left out of the file. Command line
// flags override values loaded from the file.
type Config struct {
	// Device link
	Port     *string `json:"port,omitempty"`
	BaudRate *int    `json:"baud_rate,omitempty"`
	DataBits *int    `json:"data_bits,omitempty"`
	StopBits *int    `json:"stop_bits,omitempty"`
	Parity   *string `json:"parity,omitempty"`

	// Acquisition loop
	PollTimeout  *string `json:"poll_timeout,omitempty"`  // duration string like "50ms"
	FrameTimeout *string `json:"frame_timeout,omitempty"` // duration string like "500ms"
	ErrorBackoff *string `json:"error_backoff,omitempty"` // duration string like "100ms"

	// Blink classification
	BlinkWindow *string `json:"blink_window,omitempty"` // duration string like "750ms"

	// History
	HistoryCapacity *int `json:"history_capacity,omitempty"`

	// Serving and storage
	Listen *string `json:"listen,omitempty"`
	DBPath *string `json:"db_path,omitempty"`
	Record *bool   `json:"record,omitempty"`
}

// LoadConfig loads a Config from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	if _, err := c.PortOptions().Normalise(); err != nil {
		return err
	}

	durations := map[string]*string{
		"poll_timeout":  c.PollTimeout,
		"frame_timeout": c.FrameTimeout,
		"error_backoff": c.ErrorBackoff,
		"blink_window":  c.BlinkWindow,
	}
	for name, v := range durations {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *v)
		}
	}

	if c.HistoryCapacity != nil && *c.HistoryCapacity <= 0 {
		return fmt.Errorf("history_capacity must be positive, got %d", *c.HistoryCapacity)
	}
	return nil
}

// PortOptions returns the serial options described by the config.
func (c *Config) PortOptions() serialport.PortOptions {
	var opts serialport.PortOptions
	if c.BaudRate != nil {
		opts.BaudRate = *c.BaudRate
	}
	if c.DataBits != nil {
		opts.DataBits = *c.DataBits
	}
	if c.StopBits != nil {
		opts.StopBits = *c.StopBits
	}
	if c.Parity != nil {
		opts.Parity = *c.Parity
	}
	return opts
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

// GetPort returns the serial device path or the default.
func (c *Config) GetPort() string {
	if c.Port == nil || *c.Port == "" {
		return "/dev/rfcomm0"
	}
	return *c.Port
}

// GetPollTimeout returns how long a single port read may block.
func (c *Config) GetPollTimeout() time.Duration {
	return durationOr(c.PollTimeout, 50*time.Millisecond)
}

// GetFrameTimeout returns how long the loop waits for the rest of a frame
// once its marker has been seen.
func (c *Config) GetFrameTimeout() time.Duration {
	return durationOr(c.FrameTimeout, 500*time.Millisecond)
}

// GetErrorBackoff returns the pause after a failed port read.
func (c *Config) GetErrorBackoff() time.Duration {
	return durationOr(c.ErrorBackoff, 100*time.Millisecond)
}

// GetBlinkWindow returns the double blink window.
func (c *Config) GetBlinkWindow() time.Duration {
	return durationOr(c.BlinkWindow, 750*time.Millisecond)
}

// GetHistoryCapacity returns the per-channel history length.
func (c *Config) GetHistoryCapacity() int {
	if c.HistoryCapacity == nil {
		return 100
	}
	return *c.HistoryCapacity
}

// GetListen returns the HTTP listen address.
func (c *Config) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return ":8080"
	}
	return *c.Listen
}

// GetDBPath returns the sqlite database path.
func (c *Config) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "mindwave.db"
	}
	return *c.DBPath
}

// GetRecord reports whether samples are persisted.
func (c *Config) GetRecord() bool {
	if c.Record == nil {
		return true
	}
	return *c.Record
}

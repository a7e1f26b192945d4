// Package config loads runtime configuration for the pipeline. Fields
// may be loaded from a JSON file and overridden by command-line flags.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Storage backend names.
const (
	BackendFS    = "fs"
	BackendMinIO = "minio"
)

// Duration wraps time.Duration so JSON config can say "15s".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MinIO holds the object-store backend settings.
type MinIO struct {
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Prefix    string `json:"prefix"`
	UseSSL    bool   `json:"use_ssl"`
}

// Config holds runtime configuration for the whole daemon.
type Config struct {
	// Camera
	DeviceID     int  `json:"device_id"`
	AutoExposure bool `json:"auto_exposure"`

	// Detection
	TickInterval     Duration `json:"tick_interval"`
	MotionThreshold  float64  `json:"motion_threshold"`  // percent of pixels changed
	StabilityWindow  Duration `json:"stability_window"`
	StabilityEpsilon float64  `json:"stability_epsilon"` // percent, below = unchanged
	ExposureGuard    bool     `json:"exposure_guard"`

	// Recording
	RecordingWindow  Duration `json:"recording_window"`
	FailureThreshold int      `json:"failure_threshold"`

	// Storage
	StorageBackend string `json:"storage_backend"`
	CapturePath    string `json:"capture_path"`
	MinIO          MinIO  `json:"minio"`

	// Reporting
	DBPath     string `json:"db_path"`
	ListenAddr string `json:"listen_addr"`
	LogLevel   string `json:"log_level"`
}

// Default returns a Config populated with standard defaults.
func Default() *Config {
	return &Config{
		DeviceID:         0,
		AutoExposure:     true,
		TickInterval:     Duration(time.Second),
		MotionThreshold:  1.0,
		StabilityWindow:  Duration(15 * time.Second),
		StabilityEpsilon: 0.5,
		ExposureGuard:    true,
		RecordingWindow:  Duration(15 * time.Second),
		FailureThreshold: 10,
		StorageBackend:   BackendFS,
		CapturePath:      "captures",
		DBPath:           "vigil.db",
		ListenAddr:       "",
		LogLevel:         "info",
	}
}

// Validate clamps values to safe ranges and rejects settings that
// cannot be clamped sensibly.
func (c *Config) Validate() error {
	if c.TickInterval <= 0 {
		c.TickInterval = Duration(time.Second)
	}
	if c.MotionThreshold <= 0 {
		c.MotionThreshold = 1.0
	}
	if c.StabilityWindow <= 0 {
		c.StabilityWindow = Duration(15 * time.Second)
	}
	if c.StabilityEpsilon <= 0 {
		c.StabilityEpsilon = 0.5
	}
	if c.RecordingWindow <= 0 {
		c.RecordingWindow = Duration(15 * time.Second)
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 10
	}
	if c.CapturePath == "" {
		c.CapturePath = "captures"
	}
	if c.DBPath == "" {
		c.DBPath = "vigil.db"
	}

	switch c.StorageBackend {
	case BackendFS:
	case BackendMinIO:
		if c.MinIO.Endpoint == "" || c.MinIO.Bucket == "" {
			return fmt.Errorf("minio backend requires endpoint and bucket")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}

	return nil
}

// Load reads configuration from the given JSON file. A missing file is
// not an error: defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the given path in JSON format.
func (c *Config) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

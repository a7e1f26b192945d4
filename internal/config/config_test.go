package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("missing file should not be an error: %v", err)
	}

	if cfg.TickInterval.Std() != time.Second {
		t.Errorf("tick interval = %v, want 1s", cfg.TickInterval.Std())
	}
	if cfg.RecordingWindow.Std() != 15*time.Second {
		t.Errorf("recording window = %v, want 15s", cfg.RecordingWindow.Std())
	}
	if cfg.StabilityWindow.Std() != 15*time.Second {
		t.Errorf("stability window = %v, want 15s", cfg.StabilityWindow.Std())
	}
	if !cfg.ExposureGuard {
		t.Error("exposure guard should default to enabled")
	}
	if cfg.StorageBackend != BackendFS {
		t.Errorf("storage backend = %q, want fs", cfg.StorageBackend)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vigil.json")
	body := `{
		"device_id": 2,
		"tick_interval": "500ms",
		"motion_threshold": 2.5,
		"recording_window": "30s",
		"exposure_guard": false
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.DeviceID != 2 {
		t.Errorf("device id = %d, want 2", cfg.DeviceID)
	}
	if cfg.TickInterval.Std() != 500*time.Millisecond {
		t.Errorf("tick interval = %v, want 500ms", cfg.TickInterval.Std())
	}
	if cfg.MotionThreshold != 2.5 {
		t.Errorf("threshold = %f, want 2.5", cfg.MotionThreshold)
	}
	if cfg.RecordingWindow.Std() != 30*time.Second {
		t.Errorf("recording window = %v, want 30s", cfg.RecordingWindow.Std())
	}
	if cfg.ExposureGuard {
		t.Error("exposure guard should be disabled by file")
	}
	// Untouched fields keep defaults.
	if cfg.StabilityWindow.Std() != 15*time.Second {
		t.Errorf("stability window = %v, want default 15s", cfg.StabilityWindow.Std())
	}
}

func TestLoad_RejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "camera go brr"},
		{"unknown field", `{"motion_treshold": 1}`},
		{"bad duration", `{"tick_interval": "sometimes"}`},
		{"unknown backend", `{"storage_backend": "tape"}`},
		{"minio without endpoint", `{"storage_backend": "minio"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "vigil.json")
			if err := os.WriteFile(path, []byte(tt.body), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("Load accepted invalid config")
			}
		})
	}
}

func TestValidate_ClampsNonPositives(t *testing.T) {
	cfg := &Config{StorageBackend: BackendFS}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	if cfg.TickInterval.Std() != time.Second {
		t.Errorf("tick interval = %v, want clamped 1s", cfg.TickInterval.Std())
	}
	if cfg.FailureThreshold != 10 {
		t.Errorf("failure threshold = %d, want clamped 10", cfg.FailureThreshold)
	}
	if cfg.StabilityEpsilon != 0.5 {
		t.Errorf("stability epsilon = %f, want clamped 0.5", cfg.StabilityEpsilon)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vigil.json")

	cfg := Default()
	cfg.DeviceID = 3
	cfg.TickInterval = Duration(250 * time.Millisecond)

	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.DeviceID != 3 {
		t.Errorf("device id = %d, want 3", loaded.DeviceID)
	}
	if loaded.TickInterval.Std() != 250*time.Millisecond {
		t.Errorf("tick interval = %v, want 250ms", loaded.TickInterval.Std())
	}
}

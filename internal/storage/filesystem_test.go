package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/emiller/vigil/internal/capture"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

var sessionStart = time.Date(2025, 6, 1, 14, 32, 5, 0, time.UTC)

const sessionID = "1a2b3c4d-0000-0000-0000-000000000000"

func TestFSWriter_OpenCreatesDateShardedDir(t *testing.T) {
	root := t.TempDir()
	w, err := NewFSWriter(filepath.Join(root, "captures"), testLogger())
	if err != nil {
		t.Fatal(err)
	}

	dest, err := w.Open(sessionStart, sessionID)
	if err != nil {
		t.Fatal(err)
	}

	want := filepath.Join(root, "captures", "2025", "06", "01", "143205_1a2b3c4d")
	if dest.Path() != want {
		t.Errorf("destination path = %q, want %q", dest.Path(), want)
	}

	info, err := os.Stat(dest.Path())
	if err != nil || !info.IsDir() {
		t.Errorf("session directory not created: %v", err)
	}
}

func TestFSWriter_CloseWritesManifest(t *testing.T) {
	w, err := NewFSWriter(t.TempDir(), testLogger())
	if err != nil {
		t.Fatal(err)
	}

	dest, err := w.Open(sessionStart, sessionID)
	if err != nil {
		t.Fatal(err)
	}

	if err := w.Close(dest); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dest.Path(), "manifest.json"))
	if err != nil {
		t.Fatalf("manifest not written: %v", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("manifest is not valid JSON: %v", err)
	}
	if m.SessionID != sessionID {
		t.Errorf("manifest session_id = %q, want %q", m.SessionID, sessionID)
	}
	if !m.StartedAt.Equal(sessionStart) {
		t.Errorf("manifest started_at = %v, want %v", m.StartedAt, sessionStart)
	}
	if m.Frames != 0 {
		t.Errorf("manifest frames = %d, want 0", m.Frames)
	}
}

func TestFSWriter_DiscardLeavesNothing(t *testing.T) {
	w, err := NewFSWriter(t.TempDir(), testLogger())
	if err != nil {
		t.Fatal(err)
	}

	dest, err := w.Open(sessionStart, sessionID)
	if err != nil {
		t.Fatal(err)
	}

	if err := w.Discard(dest); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(dest.Path()); !os.IsNotExist(err) {
		t.Errorf("session directory still exists after Discard: %v", err)
	}
}

func TestFSWriter_RejectsForeignDestination(t *testing.T) {
	w, err := NewFSWriter(t.TempDir(), testLogger())
	if err != nil {
		t.Fatal(err)
	}

	err = w.Write(&minioDestination{keyPrefix: "x"}, &capture.Frame{})
	if err == nil || !strings.Contains(err.Error(), "does not belong") {
		t.Errorf("foreign destination accepted: %v", err)
	}
}

func TestFSWriter_WriteNumbersFrames(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	w, err := NewFSWriter(t.TempDir(), testLogger())
	if err != nil {
		t.Fatal(err)
	}

	dest, err := w.Open(sessionStart, sessionID)
	if err != nil {
		t.Fatal(err)
	}

	mat := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer mat.Close()

	for i := 0; i < 3; i++ {
		frame := capture.NewFrame(mat.Clone(), time.Now())
		if err := w.Write(dest, frame); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		frame.Release()
	}

	for _, name := range []string{"000000.jpg", "000001.jpg", "000002.jpg"} {
		info, err := os.Stat(filepath.Join(dest.Path(), name))
		if err != nil {
			t.Fatalf("frame %s missing: %v", name, err)
		}
		if info.Size() == 0 {
			t.Errorf("frame %s is empty", name)
		}
	}

	if err := w.Close(dest); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dest.Path(), "manifest.json"))
	if err != nil {
		t.Fatal(err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m.Frames != 3 {
		t.Errorf("manifest frames = %d, want 3", m.Frames)
	}
}

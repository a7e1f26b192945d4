// Package storage provides footage-writer backends: a date-sharded
// filesystem layout and a MinIO object store. Both write sessions as
// numbered JPEG frames plus a JSON manifest.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/emiller/vigil/internal/capture"
	"github.com/emiller/vigil/internal/record"
)

// Manifest is written alongside a session's frames when it closes.
type Manifest struct {
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Frames    int       `json:"frames"`
}

// sessionDirName builds the per-session leaf name: capture time plus a
// short session identifier, e.g. "143205_1a2b3c4d".
func sessionDirName(start time.Time, sessionID string) string {
	short := sessionID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s_%s", start.Format("150405"), short)
}

func frameName(index int) string {
	return fmt.Sprintf("%06d.jpg", index)
}

func encodeJPEG(frame *capture.Frame) ([]byte, error) {
	buf, err := gocv.IMEncode(".jpg", frame.Mat)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	return data, nil
}

// FSWriter stores sessions under root/YYYY/MM/DD/HHMMSS_id/.
type FSWriter struct {
	root   string
	logger *zap.SugaredLogger
}

// NewFSWriter creates the root directory if needed.
func NewFSWriter(root string, logger *zap.SugaredLogger) (*FSWriter, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create capture root: %w", err)
	}
	return &FSWriter{root: root, logger: logger.Named("storage.fs")}, nil
}

type fsDestination struct {
	dir       string
	sessionID string
	start     time.Time
	frames    int
}

func (d *fsDestination) Path() string { return d.dir }

// Open creates the session directory.
func (w *FSWriter) Open(start time.Time, sessionID string) (record.Destination, error) {
	dir := filepath.Join(w.root, start.Format("2006"), start.Format("01"), start.Format("02"),
		sessionDirName(start, sessionID))

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}

	return &fsDestination{dir: dir, sessionID: sessionID, start: start}, nil
}

// Write appends one frame as a numbered JPEG.
func (w *FSWriter) Write(dest record.Destination, frame *capture.Frame) error {
	d, ok := dest.(*fsDestination)
	if !ok {
		return fmt.Errorf("destination %T does not belong to the filesystem writer", dest)
	}

	data, err := encodeJPEG(frame)
	if err != nil {
		return err
	}

	name := filepath.Join(d.dir, frameName(d.frames))
	if err := os.WriteFile(name, data, 0o644); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	d.frames++
	return nil
}

// Close finalizes the session by writing its manifest.
func (w *FSWriter) Close(dest record.Destination) error {
	d, ok := dest.(*fsDestination)
	if !ok {
		return fmt.Errorf("destination %T does not belong to the filesystem writer", dest)
	}

	manifest := Manifest{
		SessionID: d.sessionID,
		StartedAt: d.start,
		EndedAt:   time.Now(),
		Frames:    d.frames,
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	if err := os.WriteFile(filepath.Join(d.dir, "manifest.json"), data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	w.logger.Debugw("session finalized", "dir", d.dir, "frames", d.frames)
	return nil
}

// Discard removes the session directory entirely.
func (w *FSWriter) Discard(dest record.Destination) error {
	d, ok := dest.(*fsDestination)
	if !ok {
		return fmt.Errorf("destination %T does not belong to the filesystem writer", dest)
	}

	if err := os.RemoveAll(d.dir); err != nil {
		return fmt.Errorf("remove session directory: %w", err)
	}

	w.logger.Debugw("session discarded", "dir", d.dir)
	return nil
}

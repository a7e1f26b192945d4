// Package record implements the recording session state machine that
// turns detection verdicts into footage-writer calls.
package record

import (
	"time"

	"github.com/emiller/vigil/internal/capture"
)

// Destination is an opaque handle to wherever a session's footage goes.
// The session manager only sequences calls against it; format and
// location belong to the writer.
type Destination interface {
	// Path is a human-readable identifier for logs and the event store.
	Path() string
}

// FootageWriter is the storage collaborator. Open creates a fresh
// destination for a session starting at the given time; Write appends
// one frame; Close finalizes the destination. Discard tears down a
// destination that must not survive, used after a write failure so no
// partial footage is left behind.
type FootageWriter interface {
	Open(start time.Time, sessionID string) (Destination, error)
	Write(dest Destination, frame *capture.Frame) error
	Close(dest Destination) error
	Discard(dest Destination) error
}

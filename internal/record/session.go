package record

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/emiller/vigil/internal/capture"
	"github.com/emiller/vigil/internal/detect"
)

// DefaultRecordingWindow is how long a session stays open past the last
// qualifying motion event.
const DefaultRecordingWindow = 15 * time.Second

// State of the session manager.
type State int

const (
	StateIdle State = iota
	StateRecording
)

func (s State) String() string {
	if s == StateRecording {
		return "recording"
	}
	return "idle"
}

// Close reasons reported to the listener.
const (
	CloseReasonTimeout     = "timeout"
	CloseReasonWriteFailed = "write_failed"
	CloseReasonShutdown    = "shutdown"
)

// Session describes one completed or in-flight recording episode.
type Session struct {
	ID          string
	StartedAt   time.Time
	EndedAt     time.Time
	Frames      int
	Destination string
	CloseReason string
}

// Listener observes session lifecycle changes. Both callbacks run on the
// detection goroutine and must not block.
type Listener interface {
	SessionStarted(s Session)
	SessionEnded(s Session)
}

// Manager is the Idle/Recording state machine. It is owned by the
// detection goroutine: HandleEvent is called once per tick with that
// tick's verdict and frame, and every frame seen while recording is
// forwarded to the footage writer. Writer failures abort the current
// session only; capture and detection are never affected.
type Manager struct {
	writer   FootageWriter
	window   time.Duration
	listener Listener
	logger   *zap.SugaredLogger
	now      func() time.Time

	state     State
	dest      Destination
	sessionID string
	startedAt time.Time
	deadline  time.Time
	frames    int
	completed uint64
}

// NewManager creates a session manager writing through writer. window is
// the recording window; <= 0 selects the default. listener may be nil.
func NewManager(writer FootageWriter, window time.Duration, listener Listener, logger *zap.SugaredLogger) *Manager {
	if window <= 0 {
		window = DefaultRecordingWindow
	}
	return &Manager{
		writer:   writer,
		window:   window,
		listener: listener,
		logger:   logger.Named("record"),
		now:      time.Now,
	}
}

// Recording reports whether a session is currently open.
func (m *Manager) Recording() bool {
	return m.state == StateRecording
}

// CurrentState returns the state machine's state.
func (m *Manager) CurrentState() State {
	return m.state
}

// Completed returns how many sessions have been closed so far.
func (m *Manager) Completed() uint64 {
	return m.completed
}

// SessionID returns the id of the open session, or "" when idle.
func (m *Manager) SessionID() string {
	return m.sessionID
}

// HandleEvent consumes one detection verdict.
//
// Idle: a detected event opens a destination and starts a session with
// the extension deadline a full recording window away.
//
// Recording: a detected event pushes the deadline out again; an
// undetected event past the deadline closes the session; otherwise the
// grace period absorbs the gap. Every frame that arrives while the
// session is open is forwarded to the writer.
func (m *Manager) HandleEvent(ev detect.Event, frame *capture.Frame) {
	now := ev.Timestamp

	if m.state == StateIdle {
		if !ev.Detected {
			return
		}
		if !m.open(now, ev) {
			return
		}
	} else if ev.Detected {
		m.deadline = now.Add(m.window)
	} else if !now.Before(m.deadline) {
		m.close(CloseReasonTimeout, now)
		return
	}

	if err := m.writer.Write(m.dest, frame); err != nil {
		m.logger.Errorw("footage write failed, aborting session",
			"session_id", m.sessionID,
			"destination", m.dest.Path(),
			"error", err)
		m.abort(now)
	} else {
		m.frames++
	}
}

// CloseCurrent closes any open session, for shutdown. Safe to call when
// idle.
func (m *Manager) CloseCurrent() {
	if m.state != StateRecording {
		return
	}
	m.close(CloseReasonShutdown, m.now())
}

func (m *Manager) open(now time.Time, ev detect.Event) bool {
	id := uuid.New().String()

	dest, err := m.writer.Open(now, id)
	if err != nil {
		m.logger.Errorw("could not open footage destination",
			"session_id", id,
			"error", err)
		return false
	}

	m.state = StateRecording
	m.dest = dest
	m.sessionID = id
	m.startedAt = now
	m.deadline = now.Add(m.window)
	m.frames = 0

	m.logger.Infow("recording session started",
		"session_id", id,
		"destination", dest.Path(),
		"magnitude", ev.Magnitude)

	if m.listener != nil {
		m.listener.SessionStarted(Session{
			ID:          id,
			StartedAt:   now,
			Destination: dest.Path(),
		})
	}
	return true
}

func (m *Manager) close(reason string, now time.Time) {
	session := Session{
		ID:          m.sessionID,
		StartedAt:   m.startedAt,
		EndedAt:     now,
		Frames:      m.frames,
		Destination: m.dest.Path(),
		CloseReason: reason,
	}

	if err := m.writer.Close(m.dest); err != nil {
		m.logger.Errorw("closing footage destination failed",
			"session_id", m.sessionID,
			"error", err)
	}

	m.logger.Infow("recording session ended",
		"session_id", m.sessionID,
		"reason", reason,
		"frames", m.frames,
		"duration", now.Sub(m.startedAt))

	m.reset()

	if m.listener != nil {
		m.listener.SessionEnded(session)
	}
}

// abort discards the destination after a write failure so no partial
// footage survives, then returns to idle.
func (m *Manager) abort(now time.Time) {
	session := Session{
		ID:          m.sessionID,
		StartedAt:   m.startedAt,
		EndedAt:     now,
		Frames:      m.frames,
		Destination: m.dest.Path(),
		CloseReason: CloseReasonWriteFailed,
	}

	if err := m.writer.Discard(m.dest); err != nil {
		m.logger.Errorw("discarding failed destination also failed",
			"session_id", m.sessionID,
			"error", err)
	}

	m.reset()

	if m.listener != nil {
		m.listener.SessionEnded(session)
	}
}

func (m *Manager) reset() {
	m.state = StateIdle
	m.dest = nil
	m.sessionID = ""
	m.startedAt = time.Time{}
	m.deadline = time.Time{}
	m.frames = 0
	m.completed++
}

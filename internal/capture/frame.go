package capture

import (
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Frame is a single captured image plus its capture timestamp. A Frame
// owns its pixel buffer; whoever holds a Frame must call Release exactly
// once when done with it.
type Frame struct {
	Mat       gocv.Mat
	Timestamp time.Time

	valid bool
}

// NewFrame wraps a Mat freshly read from the camera. The Frame takes
// ownership of the Mat.
func NewFrame(mat gocv.Mat, ts time.Time) *Frame {
	return &Frame{Mat: mat, Timestamp: ts, valid: true}
}

// Clone returns a deep copy of the frame. The caller owns the copy.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	if !f.valid {
		return &Frame{Timestamp: f.Timestamp}
	}
	return &Frame{Mat: f.Mat.Clone(), Timestamp: f.Timestamp, valid: true}
}

// Release frees the underlying pixel buffer. Safe to call more than once.
func (f *Frame) Release() {
	if f == nil || !f.valid {
		return
	}
	f.Mat.Close()
	f.valid = false
}

// FrameSlot is a single-slot, latest-wins handoff between the capture
// loop and the detection path. Publishing never blocks on readers and
// never queues: a new frame unconditionally replaces the previous one,
// which is released immediately since readers only ever receive copies.
type FrameSlot struct {
	mu  sync.Mutex
	cur *Frame
	seq uint64
}

// NewFrameSlot returns an empty slot.
func NewFrameSlot() *FrameSlot {
	return &FrameSlot{}
}

// Publish replaces the slot's content with frame and releases the
// superseded occupant. The slot takes ownership of frame.
func (s *FrameSlot) Publish(frame *Frame) {
	s.mu.Lock()
	prev := s.cur
	s.cur = frame
	s.seq++
	s.mu.Unlock()

	prev.Release()
}

// Latest returns a copy of the most recently published frame and its
// sequence number. ok is false while the slot is still empty. The caller
// owns the returned copy and must Release it. Successive calls observe
// non-decreasing sequence numbers; readers must tolerate skipped frames.
func (s *FrameSlot) Latest() (frame *Frame, seq uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur == nil {
		return nil, s.seq, false
	}
	return s.cur.Clone(), s.seq, true
}

// Seq returns the current sequence number without copying the frame.
func (s *FrameSlot) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

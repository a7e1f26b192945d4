package capture

import (
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// MockCamera plays back pre-recorded frames for testing. Errors can be
// injected per index to exercise the capture loop's failure paths.
type MockCamera struct {
	frames  []*gocv.Mat
	errs    map[int]error
	index   int
	loop    bool
	mu      sync.Mutex
	running bool
}

func NewMockCamera(frames []*gocv.Mat, loop bool) *MockCamera {
	return &MockCamera{
		frames: frames,
		errs:   make(map[int]error),
		loop:   loop,
	}
}

func (c *MockCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = true
	c.index = 0
	return nil
}

func (c *MockCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	return nil
}

func (c *MockCamera) AcquireFrame() (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil, ErrCameraNotOpen
	}

	idx := c.index
	c.index++

	if err, ok := c.errs[idx]; ok {
		return nil, err
	}

	if len(c.frames) == 0 {
		return nil, fmt.Errorf("no frames available")
	}

	pos := idx
	if pos >= len(c.frames) {
		if !c.loop {
			return nil, fmt.Errorf("no more frames")
		}
		pos = pos % len(c.frames)
	}

	// Clone so the caller's Release never touches the source material.
	mat := c.frames[pos].Clone()
	return NewFrame(mat, time.Now()), nil
}

func (c *MockCamera) SetAutoExposure(enabled bool) {}

func (c *MockCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// FailAt injects an error for the n-th AcquireFrame call (0-based).
func (c *MockCamera) FailAt(n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[n] = err
}

// SetFrames replaces the playback sequence and restarts it.
func (c *MockCamera) SetFrames(frames []*gocv.Mat) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = frames
	c.index = 0
}

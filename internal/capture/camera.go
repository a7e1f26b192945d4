// Package capture provides camera acquisition and the latest-wins frame
// handoff between the capture loop and the detection path.
package capture

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Default camera settings
const (
	DefaultWidth  = 640
	DefaultHeight = 480
)

// ErrCameraNotOpen is returned when acquiring from a camera that is not open.
var ErrCameraNotOpen = errors.New("camera is not open")

// Camera is the device collaborator. AcquireFrame blocks until the device
// produces a frame or fails.
type Camera interface {
	Open() error
	Close() error
	AcquireFrame() (*Frame, error)
	SetAutoExposure(enabled bool)
	IsOpen() bool
}

// deviceCamera captures from a real device using GoCV.
type deviceCamera struct {
	deviceID     int
	capture      *gocv.VideoCapture
	mu           sync.Mutex
	running      bool
	autoExposure bool
}

// NewCamera creates a Camera for the given device ID. Automatic exposure
// is enabled by default; disable it with SetAutoExposure before Open to
// avoid exposure transients registering as motion.
func NewCamera(deviceID int) Camera {
	return &deviceCamera{
		deviceID:     deviceID,
		autoExposure: true,
	}
}

// Open opens the device and sets the capture resolution to 640x480 for
// performance.
func (c *deviceCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	capture, err := gocv.OpenVideoCapture(c.deviceID)
	if err != nil {
		return fmt.Errorf("open device %d: %w", c.deviceID, err)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, DefaultWidth)
	capture.Set(gocv.VideoCaptureFrameHeight, DefaultHeight)
	c.applyExposure(capture)

	c.capture = capture
	c.running = true

	return nil
}

// Close releases the device.
func (c *deviceCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false

	return err
}

// AcquireFrame reads a single frame from the device. The caller owns the
// returned Frame and must Release it (or hand it to the FrameSlot).
func (c *deviceCamera) AcquireFrame() (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok {
		mat.Close()
		return nil, fmt.Errorf("device %d returned no frame", c.deviceID)
	}

	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("device %d returned an empty frame", c.deviceID)
	}

	return NewFrame(mat, time.Now()), nil
}

// SetAutoExposure toggles the device's automatic exposure adjustment.
// Takes effect immediately on an open device, otherwise at Open.
func (c *deviceCamera) SetAutoExposure(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.autoExposure = enabled
	if c.capture != nil {
		c.applyExposure(c.capture)
	}
}

func (c *deviceCamera) applyExposure(capture *gocv.VideoCapture) {
	if c.autoExposure {
		capture.Set(gocv.VideoCaptureAutoExposure, 0)
		capture.Set(gocv.VideoCaptureExposure, -7)
	} else {
		capture.Set(gocv.VideoCaptureAutoExposure, 1)
		capture.Set(gocv.VideoCaptureExposure, 0)
	}
}

// IsOpen returns true if the device is currently open.
func (c *deviceCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

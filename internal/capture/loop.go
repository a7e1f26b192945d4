package capture

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// DefaultFailureThreshold is the number of consecutive acquisition
// failures after which the device is considered gone.
const DefaultFailureThreshold = 10

// ErrDeviceUnavailable is returned by Loop.Run after the consecutive
// failure threshold is exceeded. It is fatal to the whole pipeline.
var ErrDeviceUnavailable = errors.New("camera device unavailable")

// Loop continuously acquires frames from the camera and publishes them
// into the slot. It never waits on the detection path: the slot's
// latest-wins handoff keeps capture cadence independent of analysis
// cadence.
type Loop struct {
	camera           Camera
	slot             *FrameSlot
	failureThreshold int
	logger           *zap.SugaredLogger

	published atomic.Uint64
}

// NewLoop creates a capture loop. failureThreshold <= 0 selects the
// default.
func NewLoop(camera Camera, slot *FrameSlot, failureThreshold int, logger *zap.SugaredLogger) *Loop {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	return &Loop{
		camera:           camera,
		slot:             slot,
		failureThreshold: failureThreshold,
		logger:           logger.Named("capture"),
	}
}

// Run acquires frames until ctx is cancelled or the device fails
// persistently. A transient acquisition failure is logged and retried
// with exponential backoff; once failures stop, the backoff resets.
// Returns nil on cancellation, or an error wrapping ErrDeviceUnavailable
// after failureThreshold consecutive failures.
func (l *Loop) Run(ctx context.Context) error {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 100 * time.Millisecond
	retry.MaxInterval = 2 * time.Second
	retry.MaxElapsedTime = 0

	failures := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		frame, err := l.camera.AcquireFrame()
		if err != nil {
			failures++
			if failures >= l.failureThreshold {
				l.logger.Errorw("giving up on camera device",
					"consecutive_failures", failures,
					"error", err)
				return fmt.Errorf("%w: %d consecutive acquisition failures: %v",
					ErrDeviceUnavailable, failures, err)
			}

			wait := retry.NextBackOff()
			l.logger.Warnw("frame acquisition failed, retrying",
				"consecutive_failures", failures,
				"retry_in", wait,
				"error", err)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}

		failures = 0
		retry.Reset()

		l.slot.Publish(frame)
		l.published.Add(1)
	}
}

// Published reports how many frames the loop has pushed into the slot.
func (l *Loop) Published() uint64 {
	return l.published.Load()
}

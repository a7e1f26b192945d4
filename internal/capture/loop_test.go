package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func TestLoop_SustainedFailureIsFatal(t *testing.T) {
	cam := NewMockCamera(nil, false)
	if err := cam.Open(); err != nil {
		t.Fatal(err)
	}

	deviceErr := errors.New("device yanked")
	for i := 0; i < 5; i++ {
		cam.FailAt(i, deviceErr)
	}

	slot := NewFrameSlot()
	loop := NewLoop(cam, slot, 3, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := loop.Run(ctx)
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("Run returned %v, want ErrDeviceUnavailable", err)
	}

	if _, _, ok := slot.Latest(); ok {
		t.Error("slot should stay empty when every acquisition fails")
	}
}

func TestLoop_CancelReturnsNil(t *testing.T) {
	cam := NewMockCamera(nil, false)
	if err := cam.Open(); err != nil {
		t.Fatal(err)
	}

	// Keep the loop in its retry path so it must notice cancellation there.
	for i := 0; i < 1000; i++ {
		cam.FailAt(i, errors.New("flaky"))
	}

	slot := NewFrameSlot()
	loop := NewLoop(cam, slot, DefaultFailureThreshold, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned %v after cancel, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop after cancellation")
	}
}

func TestLoop_DefaultThreshold(t *testing.T) {
	loop := NewLoop(NewMockCamera(nil, false), NewFrameSlot(), 0, testLogger())
	if loop.failureThreshold != DefaultFailureThreshold {
		t.Errorf("failureThreshold = %d, want %d", loop.failureThreshold, DefaultFailureThreshold)
	}
}

func TestLoop_PublishesFrames(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	mat := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer mat.Close()

	cam := NewMockCamera([]*gocv.Mat{&mat}, true)
	if err := cam.Open(); err != nil {
		t.Fatal(err)
	}

	slot := NewFrameSlot()
	loop := NewLoop(cam, slot, DefaultFailureThreshold, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for slot.Seq() < 10 {
		select {
		case <-deadline:
			t.Fatal("loop never published 10 frames")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	if err := <-errCh; err != nil {
		t.Fatalf("Run returned %v, want nil", err)
	}

	frame, seq, ok := slot.Latest()
	if !ok {
		t.Fatal("slot empty after publishing")
	}
	defer frame.Release()

	if seq < 10 {
		t.Errorf("seq = %d, want >= 10", seq)
	}
	if frame.Mat.Empty() {
		t.Error("published frame has an empty Mat")
	}
	if loop.Published() != seq {
		t.Errorf("Published() = %d, want %d", loop.Published(), seq)
	}
}

func TestLoop_RecoversFromTransientFailure(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	mat := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer mat.Close()

	cam := NewMockCamera([]*gocv.Mat{&mat}, true)
	if err := cam.Open(); err != nil {
		t.Fatal(err)
	}
	cam.FailAt(2, errors.New("hiccup"))
	cam.FailAt(5, errors.New("hiccup"))

	slot := NewFrameSlot()
	loop := NewLoop(cam, slot, 3, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(ctx) }()

	deadline := time.After(10 * time.Second)
	for slot.Seq() < 8 {
		select {
		case <-deadline:
			t.Fatal("loop did not keep publishing past transient failures")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	if err := <-errCh; err != nil {
		t.Fatalf("Run returned %v, want nil after isolated failures", err)
	}
}

package capture

import (
	"sync"
	"testing"
	"time"
)

// testFrame builds a Frame with no pixel buffer so slot semantics can be
// exercised without a GoCV runtime.
func testFrame(ts time.Time) *Frame {
	return &Frame{Timestamp: ts}
}

func TestFrameSlot_EmptyUntilFirstPublish(t *testing.T) {
	slot := NewFrameSlot()

	frame, seq, ok := slot.Latest()
	if ok {
		t.Fatal("empty slot reported ok")
	}
	if frame != nil {
		t.Error("empty slot returned a frame")
	}
	if seq != 0 {
		t.Errorf("seq = %d, want 0 before first publish", seq)
	}
}

func TestFrameSlot_LatestWins(t *testing.T) {
	slot := NewFrameSlot()

	t1 := time.Unix(100, 0)
	t2 := time.Unix(200, 0)

	slot.Publish(testFrame(t1))
	slot.Publish(testFrame(t2))

	frame, seq, ok := slot.Latest()
	if !ok {
		t.Fatal("slot empty after publish")
	}
	defer frame.Release()

	if !frame.Timestamp.Equal(t2) {
		t.Errorf("Latest returned frame at %v, want newest %v", frame.Timestamp, t2)
	}
	if seq != 2 {
		t.Errorf("seq = %d, want 2 after two publishes", seq)
	}
}

func TestFrameSlot_ReaderOwnsCopy(t *testing.T) {
	slot := NewFrameSlot()
	slot.Publish(testFrame(time.Unix(1, 0)))

	a, _, _ := slot.Latest()
	b, _, _ := slot.Latest()

	if a == b {
		t.Fatal("Latest returned the same Frame twice; readers must get independent copies")
	}
	a.Release()
	b.Release()
}

func TestFrameSlot_SequenceMonotonic(t *testing.T) {
	slot := NewFrameSlot()

	var last uint64
	for i := 0; i < 100; i++ {
		slot.Publish(testFrame(time.Now()))

		frame, seq, ok := slot.Latest()
		if !ok {
			t.Fatal("slot empty after publish")
		}
		frame.Release()

		if seq < last {
			t.Fatalf("sequence went backwards: %d after %d", seq, last)
		}
		last = seq
	}
}

func TestFrameSlot_ConcurrentPublishAndRead(t *testing.T) {
	slot := NewFrameSlot()

	const publishes = 2000
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 0; i < publishes; i++ {
			slot.Publish(testFrame(time.Unix(int64(i), 0)))
		}
	}()

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last uint64
			for {
				select {
				case <-done:
					return
				default:
				}

				frame, seq, ok := slot.Latest()
				if ok {
					frame.Release()
				}
				if seq < last {
					t.Errorf("sequence regressed under concurrency: %d after %d", seq, last)
					return
				}
				last = seq
			}
		}()
	}

	<-done
	wg.Wait()

	if got := slot.Seq(); got != publishes {
		t.Errorf("final seq = %d, want %d", got, publishes)
	}
}

func TestFrame_ReleaseWithoutBuffer(t *testing.T) {
	f := testFrame(time.Now())

	// Must not touch GoCV when no buffer was ever attached.
	f.Release()
	f.Release()

	clone := f.Clone()
	if clone == nil {
		t.Fatal("Clone returned nil for a bufferless frame")
	}
	if !clone.Timestamp.Equal(f.Timestamp) {
		t.Error("Clone lost the timestamp")
	}
}

func TestFrame_NilSafe(t *testing.T) {
	var f *Frame
	f.Release()
	if f.Clone() != nil {
		t.Error("Clone of nil frame should be nil")
	}
}

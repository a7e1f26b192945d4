package detect

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/emiller/vigil/internal/capture"
)

// DefaultTickInterval is the default spacing between analysis passes.
const DefaultTickInterval = time.Second

// Event is one detection verdict, produced once per tick and consumed
// immediately by the session manager.
type Event struct {
	Timestamp time.Time
	Detected  bool
	// Magnitude is the changed-pixel percentage after exposure
	// filtering; RawMagnitude is the unfiltered score.
	Magnitude    float64
	RawMagnitude float64
	// Seq is the frame slot sequence number the verdict was based on.
	Seq uint64
}

// Sink consumes detection events. Implemented by the recording session
// manager; Recording feeds back into background adaptation.
type Sink interface {
	HandleEvent(ev Event, frame *capture.Frame)
	Recording() bool
}

// Snapshot is a point-in-time view of the detector for reporting.
type Snapshot struct {
	Ticks         uint64
	SkippedEmpty  uint64
	LastTick      time.Time
	LastMagnitude float64
	LastRaw       float64
	LastDetected  bool
}

// Detector runs the periodic analysis pass: sample the slot, compare
// against the background, filter exposure transients, classify, hand the
// verdict to the sink, then let the background consider adapting. One
// pass is in flight at a time; if a pass overruns the interval the next
// tick simply follows it, the ticker does not build a backlog.
type Detector struct {
	slot      *capture.FrameSlot
	model     *BackgroundModel
	guard     *ExposureGuard
	sink      Sink
	threshold float64
	interval  time.Duration
	logger    *zap.SugaredLogger
	now       func() time.Time

	mu   sync.Mutex
	snap Snapshot
}

// NewDetector wires the analysis pass. threshold is the changed-pixel
// percentage above which a tick counts as motion. interval <= 0 selects
// the default.
func NewDetector(slot *capture.FrameSlot, model *BackgroundModel, guard *ExposureGuard,
	sink Sink, threshold float64, interval time.Duration, logger *zap.SugaredLogger) *Detector {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Detector{
		slot:      slot,
		model:     model,
		guard:     guard,
		sink:      sink,
		threshold: threshold,
		interval:  interval,
		logger:    logger.Named("detect"),
		now:       time.Now,
	}
}

// Run ticks until ctx is cancelled.
func (d *Detector) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Tick()
		}
	}
}

// Tick performs one full analysis pass. Exported so tests and the
// integration harness can drive the detector without wall-clock timing.
func (d *Detector) Tick() {
	now := d.now()

	frame, seq, ok := d.slot.Latest()
	if !ok {
		// Expected at startup or after a slow capture tick.
		d.mu.Lock()
		d.snap.SkippedEmpty++
		d.mu.Unlock()
		return
	}
	defer frame.Release()

	prep := Preprocess(frame)
	defer prep.Close()

	if !d.model.Initialized() {
		d.model.Seed(prep)
		d.logger.Infow("seeded background reference", "seq", seq)
		return
	}

	raw, stats := d.model.Difference(prep)
	magnitude := d.guard.Filter(raw, stats)
	if magnitude != raw {
		d.logger.Debugw("suppressed exposure transient",
			"raw_magnitude", raw,
			"mean_delta", stats.MeanDelta,
			"stddev_delta", stats.StdDevDelta)
	}

	ev := Event{
		Timestamp:    now,
		Detected:     magnitude > d.threshold,
		Magnitude:    magnitude,
		RawMagnitude: raw,
		Seq:          seq,
	}

	d.sink.HandleEvent(ev, frame)

	// Queried after the event so a session opened this tick already
	// blocks adaptation.
	if d.model.ConsiderCommit(prep, magnitude, raw, d.sink.Recording()) {
		d.logger.Debugw("background reference committed", "seq", seq)
	}

	d.mu.Lock()
	d.snap.Ticks++
	d.snap.LastTick = now
	d.snap.LastMagnitude = magnitude
	d.snap.LastRaw = raw
	d.snap.LastDetected = ev.Detected
	d.mu.Unlock()
}

// Snapshot returns the detector's current reporting view.
func (d *Detector) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snap
}

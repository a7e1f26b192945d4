// Package detect implements the analysis half of the pipeline: the
// adaptive background model, the exposure-transient guard, and the
// tick-driven motion detector that consumes the frame slot.
package detect

import (
	"image"
	"time"

	"gocv.io/x/gocv"

	"github.com/emiller/vigil/internal/capture"
)

// Comparison-space constants. Frames are shrunk to a quarter of their
// capture size, grayscaled and blurred before any differencing; the blur
// kernel and pixel threshold follow the usual frame-differencing recipe.
const (
	GaussianBlurSize = 21
	PixelThreshold   = 30
	DownscaleFactor  = 0.25
)

// DefaultStabilityEpsilon is the changed-pixel percentage below which a
// tick counts as "scene unchanged" for background adaptation. Exact
// equality is useless here: sensor noise makes bit-identical frames
// practically impossible, so stability is epsilon-tolerant on the same
// changed-pixel metric the detector uses.
const DefaultStabilityEpsilon = 0.5

// Preprocess converts a captured frame into comparison space:
// quarter-scale, grayscale, 21x21 Gaussian blur. The caller owns the
// returned Mat and must Close it.
func Preprocess(frame *capture.Frame) gocv.Mat {
	small := gocv.NewMat()
	gocv.Resize(frame.Mat, &small, image.Point{}, DownscaleFactor, DownscaleFactor, gocv.InterpolationArea)

	gray := gocv.NewMat()
	if small.Channels() > 1 {
		gocv.CvtColor(small, &gray, gocv.ColorBGRToGray)
	} else {
		small.CopyTo(&gray)
	}
	small.Close()

	blurred := gocv.NewMat()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: GaussianBlurSize, Y: GaussianBlurSize}, 0, 0, gocv.BorderDefault)
	gray.Close()

	return blurred
}

// DiffStats describes one frame-vs-background comparison.
type DiffStats struct {
	// ChangedPercent is the percentage of pixels whose absolute delta
	// exceeds PixelThreshold. This is the motion magnitude.
	ChangedPercent float64
	// MeanDelta is the mean absolute per-pixel delta.
	MeanDelta float64
	// StdDevDelta is the spatial standard deviation of the delta. A
	// global exposure step has a large mean but a small spread; real
	// motion is localized and spreads widely.
	StdDevDelta float64
}

// BackgroundModel holds the reference frame the detector compares
// against and decides when the reference may adapt to a changed scene.
// It is owned by the detection goroutine and needs no locking.
type BackgroundModel struct {
	avg         gocv.Mat
	initialized bool
	stability   stabilityTimer
	committedAt time.Time
}

// NewBackgroundModel builds a model whose average may only be replaced
// after stabilityWindow of consecutive ticks with magnitude at or below
// epsilon. The window is converted to a tick count up front so a cadence
// change mid-run cannot stretch progress already accrued.
func NewBackgroundModel(epsilon float64, stabilityWindow, tickInterval time.Duration) *BackgroundModel {
	if epsilon <= 0 {
		epsilon = DefaultStabilityEpsilon
	}
	ticks := 1
	if tickInterval > 0 && stabilityWindow > tickInterval {
		ticks = int(stabilityWindow / tickInterval)
	}
	return &BackgroundModel{
		stability: newStabilityTimer(ticks, epsilon),
	}
}

// Initialized reports whether a reference frame has been seeded yet.
func (m *BackgroundModel) Initialized() bool {
	return m.initialized
}

// Seed installs the first reference frame. prep must already be in
// comparison space; the model keeps its own copy.
func (m *BackgroundModel) Seed(prep gocv.Mat) {
	if m.initialized {
		m.avg.Close()
	}
	m.avg = prep.Clone()
	m.initialized = true
	m.committedAt = time.Now()
}

// Difference computes the dissimilarity between prep and the current
// average. Pure with respect to the model: the average is untouched.
func (m *BackgroundModel) Difference(prep gocv.Mat) (float64, DiffStats) {
	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(prep, m.avg, &diff)

	mean := gocv.NewMat()
	stdDev := gocv.NewMat()
	gocv.MeanStdDev(diff, &mean, &stdDev)
	stats := DiffStats{
		MeanDelta:   mean.GetDoubleAt(0, 0),
		StdDevDelta: stdDev.GetDoubleAt(0, 0),
	}
	mean.Close()
	stdDev.Close()

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, PixelThreshold, 255, gocv.ThresholdBinary)

	total := thresh.Rows() * thresh.Cols()
	if total > 0 {
		stats.ChangedPercent = float64(gocv.CountNonZero(thresh)) / float64(total) * 100.0
	}

	return stats.ChangedPercent, stats
}

// ConsiderCommit is called once per detection tick, after Difference.
// magnitude is the exposure-filtered score used for the stability clock;
// rawMagnitude is the unfiltered score, used to tell genuine scene drift
// from a reference that already matches the scene exactly (a reference
// that matches needs no recommit, so a calm window with zero raw change
// commits at most once). While the session manager reports recording,
// the average must not adapt and the stability clock restarts.
// Returns true when the average was replaced by prep.
func (m *BackgroundModel) ConsiderCommit(prep gocv.Mat, magnitude, rawMagnitude float64, recording bool) bool {
	if !m.initialized {
		return false
	}
	if !m.stability.observe(magnitude, rawMagnitude, recording) {
		return false
	}

	m.avg.Close()
	m.avg = prep.Clone()
	m.committedAt = time.Now()
	return true
}

// LastCommit returns when the average was last seeded or replaced.
func (m *BackgroundModel) LastCommit() time.Time {
	return m.committedAt
}

// Close releases the reference frame.
func (m *BackgroundModel) Close() {
	if m.initialized {
		m.avg.Close()
		m.initialized = false
	}
}

// stabilityTimer tracks how many consecutive ticks the scene has stayed
// within epsilon of the reference. Separate from the model so the
// commit rules are testable without pixel buffers.
type stabilityTimer struct {
	required int
	epsilon  float64
	calm     int
	changed  bool
}

func newStabilityTimer(required int, epsilon float64) stabilityTimer {
	if required < 1 {
		required = 1
	}
	// changed starts true so the first full calm window installs a
	// settled reference even if nothing ever moved.
	return stabilityTimer{required: required, epsilon: epsilon, changed: true}
}

// observe consumes one tick and reports whether to commit now.
func (t *stabilityTimer) observe(magnitude, rawMagnitude float64, recording bool) bool {
	if recording {
		t.calm = 0
		return false
	}
	if magnitude > t.epsilon {
		t.calm = 0
		t.changed = true
		return false
	}
	if rawMagnitude > 0 {
		t.changed = true
	}

	t.calm++
	if t.calm >= t.required {
		t.calm = t.required
		if t.changed {
			t.calm = 0
			t.changed = false
			return true
		}
	}
	return false
}

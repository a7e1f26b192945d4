package detect

// Exposure guard defaults. A camera's auto-exposure step brightens or
// darkens the whole sensor at once: nearly every pixel moves by a
// similar amount, so the delta has broad coverage, a significant mean
// and a small spatial spread. Physical motion is the opposite shape.
const (
	// DefaultMinMeanDelta is the mean delta below which a shift is
	// treated as sensor noise and left alone.
	DefaultMinMeanDelta = 5.0
	// DefaultMinCoverage is the changed-pixel percentage a shift must
	// reach before it can be considered frame-global.
	DefaultMinCoverage = 60.0
	// DefaultMaxSpread is the highest stddev/mean ratio still regarded
	// as spatially uniform.
	DefaultMaxSpread = 0.5
)

// ExposureGuard dampens motion magnitudes that look like auto-exposure
// transients rather than physical motion. Best effort: it reduces false
// positives from exposure steps, it does not guarantee their absence.
type ExposureGuard struct {
	enabled      bool
	minMeanDelta float64
	minCoverage  float64
	maxSpread    float64
}

// NewExposureGuard returns a guard with default tuning. When disabled,
// Filter is the identity.
func NewExposureGuard(enabled bool) *ExposureGuard {
	return &ExposureGuard{
		enabled:      enabled,
		minMeanDelta: DefaultMinMeanDelta,
		minCoverage:  DefaultMinCoverage,
		maxSpread:    DefaultMaxSpread,
	}
}

// Enabled reports whether filtering is active.
func (g *ExposureGuard) Enabled() bool {
	return g.enabled
}

// Filter returns the magnitude to use for classification. A magnitude
// whose diff statistics match a global, spatially uniform brightness
// shift is suppressed to zero; anything else passes through untouched.
func (g *ExposureGuard) Filter(magnitude float64, stats DiffStats) float64 {
	if !g.enabled || magnitude == 0 {
		return magnitude
	}
	if stats.MeanDelta < g.minMeanDelta {
		return magnitude
	}
	if stats.ChangedPercent < g.minCoverage {
		return magnitude
	}
	if stats.StdDevDelta > stats.MeanDelta*g.maxSpread {
		return magnitude
	}
	return 0
}

package detect

import "testing"

func TestExposureGuard_DisabledIsIdentity(t *testing.T) {
	g := NewExposureGuard(false)

	// Statistics of a textbook global exposure step.
	stats := DiffStats{ChangedPercent: 30, MeanDelta: 40, StdDevDelta: 2}

	if got := g.Filter(30, stats); got != 30 {
		t.Errorf("disabled guard changed magnitude: got %f, want 30", got)
	}
}

func TestExposureGuard_SuppressesUniformGlobalShift(t *testing.T) {
	g := NewExposureGuard(true)

	// Whole frame brightened by a similar amount: broad coverage, high
	// mean, tight spread.
	stats := DiffStats{ChangedPercent: 95, MeanDelta: 40, StdDevDelta: 3}

	if got := g.Filter(30, stats); got != 0 {
		t.Errorf("uniform global shift not suppressed: got %f, want 0", got)
	}
}

func TestExposureGuard_PassesLocalizedMotion(t *testing.T) {
	g := NewExposureGuard(true)

	tests := []struct {
		name  string
		mag   float64
		stats DiffStats
	}{
		{
			name:  "small region moved",
			mag:   8,
			stats: DiffStats{ChangedPercent: 8, MeanDelta: 12, StdDevDelta: 30},
		},
		{
			name:  "broad but uneven change",
			mag:   70,
			stats: DiffStats{ChangedPercent: 70, MeanDelta: 40, StdDevDelta: 45},
		},
		{
			name:  "faint noise below mean floor",
			mag:   2,
			stats: DiffStats{ChangedPercent: 90, MeanDelta: 1.5, StdDevDelta: 0.2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.Filter(tt.mag, tt.stats); got != tt.mag {
				t.Errorf("Filter = %f, want %f untouched", got, tt.mag)
			}
		})
	}
}

func TestExposureGuard_ZeroMagnitude(t *testing.T) {
	g := NewExposureGuard(true)
	if got := g.Filter(0, DiffStats{}); got != 0 {
		t.Errorf("Filter(0) = %f, want 0", got)
	}
}

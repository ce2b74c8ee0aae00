package outlier

import (
	"math"
	"testing"
)

// TestLeadingCountStepChange verifies that a clear leading step change is
// flagged as dummy scans: the bright leading frames deviate from the
// median while the flat tail has zero deviation.
func TestLeadingCountStepChange(t *testing.T) {
	trace := []float64{100, 100, 100, 10, 10, 10, 10}
	if got := LeadingCount(trace); got != 3 {
		t.Errorf("Expected leading count 3, got %d", got)
	}
}

// TestLeadingCountCleanStart verifies that a trace whose first element is
// not an outlier yields zero, regardless of later anomalies.
func TestLeadingCountCleanStart(t *testing.T) {
	trace := []float64{10, 10, 10, 10, 10, 500, 10, 10, 10, 10, 10}
	if got := LeadingCount(trace); got != 0 {
		t.Errorf("Interior outlier should not count as dummy, got %d", got)
	}
}

// TestLeadingCountStopsAtFirstClean verifies the run is contiguous: an
// outlier after the first clean element is ignored.
func TestLeadingCountStopsAtFirstClean(t *testing.T) {
	trace := []float64{500, 10, 500, 10, 10, 10, 10, 10, 10}
	if got := LeadingCount(trace); got != 1 {
		t.Errorf("Expected leading count 1, got %d", got)
	}
}

// TestLeadingCountShortTrace verifies the degenerate cases: fewer than
// two points carry no usable statistic.
func TestLeadingCountShortTrace(t *testing.T) {
	for _, trace := range [][]float64{nil, {}, {42}} {
		if got := LeadingCount(trace); got != 0 {
			t.Errorf("Trace %v: expected 0, got %d", trace, got)
		}
	}
}

// TestLeadingCountConstantTrace verifies a flat trace has no outliers.
func TestLeadingCountConstantTrace(t *testing.T) {
	trace := []float64{7, 7, 7, 7, 7, 7}
	if got := LeadingCount(trace); got != 0 {
		t.Errorf("Constant trace should have no outliers, got %d", got)
	}
}

// TestModifiedZScoresDeterministic verifies the detector is a pure
// function of its input.
func TestModifiedZScoresDeterministic(t *testing.T) {
	trace := []float64{5, 9, 2, 8, 1, 7, 3}
	a := ModifiedZScores(trace)
	b := ModifiedZScores(trace)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Scores differ between runs at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

// TestModifiedZScoresZeroMAD verifies the zero-MAD convention: nonzero
// deviations map to +Inf, zero deviations stay clean.
func TestModifiedZScoresZeroMAD(t *testing.T) {
	trace := []float64{100, 10, 10, 10, 10}
	scores := ModifiedZScores(trace)
	if !math.IsInf(scores[0], 1) {
		t.Errorf("Expected +Inf score for the step, got %v", scores[0])
	}
	for i := 1; i < len(scores); i++ {
		if scores[i] != 0 {
			t.Errorf("Expected 0 score at %d, got %v", i, scores[i])
		}
	}
}

package udefarp

import (
	"math"
	"testing"
)

// TestCompareTotals verifies error statistics on a known sample.
func TestCompareTotals(t *testing.T) {
	s := CompareTotals([]float64{1, 2, 3, 4}, []float64{1, 2, 3, 8})

	checks := []struct {
		name      string
		got, want float64
	}{
		{"MAE", s.MAE, 1},
		{"MedianAE", s.MedianAE, 0},
		{"RMSE", s.RMSE, 2},
		{"RSquared", s.RSquared, -2.2},
		{"ObservedTotal", s.ObservedTotal, 10},
		{"PredictedTotal", s.PredictedTotal, 14},
	}
	for _, c := range checks {
		if !almostEqual(c.got, c.want, 1e-9) {
			t.Errorf("%s = %g, want %g", c.name, c.got, c.want)
		}
	}
	if s.Cells != 4 {
		t.Errorf("Cells = %d", s.Cells)
	}
	t.Logf("✓ MAE %.2f RMSE %.2f R² %.2f", s.MAE, s.RMSE, s.RSquared)
}

// TestCompareTotals_MedianPercent verifies the odd-length median and its
// share of the mean observation.
func TestCompareTotals_MedianPercent(t *testing.T) {
	s := CompareTotals([]float64{2, 4, 6}, []float64{1, 4, 9})
	if s.MedianAE != 1 {
		t.Errorf("MedianAE = %g, want 1", s.MedianAE)
	}
	if !almostEqual(s.MedianAEPercent, 25, 1e-9) {
		t.Errorf("MedianAEPercent = %g, want 25", s.MedianAEPercent)
	}
}

// TestCompareTotals_Undefined verifies R² is NaN without variance and the
// percentage is 0 without observations.
func TestCompareTotals_Undefined(t *testing.T) {
	s := CompareTotals([]float64{0, 0}, []float64{1, 3})
	if !math.IsNaN(s.RSquared) {
		t.Errorf("RSquared = %g, want NaN", s.RSquared)
	}
	if s.MedianAE != 2 || s.MedianAEPercent != 0 {
		t.Errorf("MedianAE = %g (%g%%)", s.MedianAE, s.MedianAEPercent)
	}

	if got := CompareTotals(nil, nil); got.Cells != 0 {
		t.Errorf("empty input = %+v", got)
	}
	if got := CompareTotals([]float64{1}, []float64{1, 2}); got.Cells != 0 {
		t.Errorf("length mismatch = %+v", got)
	}
}

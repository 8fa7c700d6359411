package udefarp

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// EvaluationStats summarises predicted against observed deforestation over
// a set of sampling cells.
type EvaluationStats struct {
	Cells          int
	ObservedTotal  float64
	PredictedTotal float64
	MAE            float64 // Mean absolute error per cell
	MedianAE       float64 // Median absolute error per cell
	RMSE           float64

	// RSquared is the coefficient of determination of predicted against
	// observed. NaN when observed values do not vary between cells.
	RSquared float64

	// MedianAEPercent is MedianAE relative to the mean observed
	// deforestation per cell. 0 when nothing was observed.
	MedianAEPercent float64
}

// CompareTotals computes EvaluationStats for paired per-cell observed and
// predicted totals. Both slices must have the same length.
func CompareTotals(observed, predicted []float64) EvaluationStats {
	n := len(observed)
	if n == 0 || n != len(predicted) {
		return EvaluationStats{}
	}

	s := EvaluationStats{
		Cells:          n,
		ObservedTotal:  floats.Sum(observed),
		PredictedTotal: floats.Sum(predicted),
	}

	// Absolute and squared errors
	s.MAE = floats.Distance(observed, predicted, 1) / float64(n)
	s.RMSE = floats.Distance(observed, predicted, 2) / math.Sqrt(float64(n))

	// Median
	errs := make([]float64, n)
	floats.SubTo(errs, observed, predicted)
	for i := range errs {
		errs[i] = math.Abs(errs[i])
	}
	sort.Float64s(errs)
	if n%2 == 1 {
		s.MedianAE = errs[n/2]
	} else {
		s.MedianAE = (errs[n/2-1] + errs[n/2]) / 2
	}

	// Goodness of fit
	s.RSquared = math.NaN()
	if n > 1 && stat.Variance(observed, nil) > 0 {
		s.RSquared = stat.RSquaredFrom(predicted, observed, nil)
	}

	if mean := stat.Mean(observed, nil); mean > 0 {
		s.MedianAEPercent = 100 * s.MedianAE / mean
	}
	return s
}

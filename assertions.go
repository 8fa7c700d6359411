package udefarp

import (
	"testing"
)

// AssertClassMonotonic verifies that classes follow distance: every pixel
// of class j is no farther from the forest edge than any pixel of class j+1.
//
// Property:
//
//	max(distance | class j) ≤ min(distance | class j+1)
func AssertClassMonotonic(t testing.TB, classes *Raster[int16], distance *Raster[float64]) {
	t.Helper()

	ranges, err := ClassRanges(classes, distance)
	if err != nil {
		t.Fatalf("Failed to summarise classes: %v", err)
	}
	for j := 1; j < len(ranges); j++ {
		prev, cur := ranges[j-1], ranges[j]
		if prev.Max > cur.Min {
			t.Errorf("Class order broken: class %d reaches distance %g, class %d starts at %g",
				prev.Class, prev.Max, cur.Class, cur.Min)
		}
	}

	t.Logf("✓ %d classes ordered by distance", len(ranges))
}

// AssertNRTConserved verifies that class 1 holds nrt pixels, give or take
// tolerance pixels moved by tie handling.
func AssertNRTConserved(t testing.TB, classes *Raster[int16], nrt, tolerance int) {
	t.Helper()

	n := 0
	for i, c := range classes.Values {
		if classes.Valid(i) && c == 1 {
			n++
		}
	}
	if diff := n - nrt; diff > tolerance || diff < -tolerance {
		t.Errorf("Class 1 holds %d pixels, NRT is %d (tolerance %d)", n, nrt, tolerance)
		return
	}

	t.Logf("✓ Class 1 holds %d pixels (NRT %d)", n, nrt)
}

// AssertFrequencyBounded verifies that every relative frequency lies in
// [0, 1] and that no fitted bin has a zero denominator.
func AssertFrequencyBounded(t testing.TB, table *FrequencyTable) {
	t.Helper()

	for _, e := range table.Entries() {
		if e.Frequency < 0 || e.Frequency > 1 {
			t.Errorf("Zone %d class %d: frequency %g outside [0,1]", e.Zone, e.Class, e.Frequency)
		}
		if !e.Estimated && e.Total == 0 {
			t.Errorf("Zone %d class %d: fitted bin with zero pixels", e.Zone, e.Class)
		}
	}

	t.Logf("✓ %d bins bounded", table.Len())
}

// AssertZonesResolved verifies that every zone of the new period ended up
// with a density: each valid (zone, class) pixel has a non-nodata density
// and every zone appears in the working table.
func AssertZonesResolved(t testing.TB, cal *Calibration, zones *Raster[int32], classes *Raster[int16]) {
	t.Helper()

	unresolved := make(map[int32]bool)
	for i := range zones.Values {
		if !zones.Valid(i) {
			continue
		}
		z := zones.Values[i]
		if !cal.Table.HasZone(z) {
			unresolved[z] = true
		}
		if classes.Valid(i) && !cal.Density.Valid(i) {
			t.Errorf("Pixel %d of zone %d has no density", i, z)
		}
	}
	for z := range unresolved {
		t.Errorf("Zone %d missing from the working table", z)
	}

	t.Logf("✓ All zones resolved (%d estimated)", len(cal.IDDifference))
}

// AssertIterationCap verifies the calibration loop stayed within budget.
func AssertIterationCap(t testing.TB, cal *Calibration, maxIterations int) {
	t.Helper()

	if cal.State.Iteration > maxIterations {
		t.Errorf("Calibration ran %d iterations, budget %d", cal.State.Iteration, maxIterations)
	}
	if len(cal.State.History) > maxIterations+1 {
		t.Errorf("Calibration recorded %d predictions, expected at most %d",
			len(cal.State.History), maxIterations+1)
	}

	t.Logf("✓ %d/%d iterations, predicted %.4f, target %.4f",
		cal.State.Iteration, maxIterations, cal.State.PredictedTotal, cal.State.TargetTotal)
}

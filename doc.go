// Package udefarp allocates expected deforestation over a jurisdiction
// using the UDef-ARP methodology: vulnerability classes derived from
// distance to the forest edge, empirical deforestation rates per
// administrative zone and class, and an iterative rescale of those rates
// to a target quantity.
//
// # Overview
//
// Every modeling period (HRP, CAL, CNF, VP) runs the same pipeline:
//
//	distance ─► classify ─► class map ─┬─► frequency table (fitting period)
//	                                   └─► calibrate ─► density + modeling region
//	density + observed deforestation ─► evaluate over Thiessen cells
//
// Rasters are aligned numeric grids (Raster[T]). The package never reads
// or writes files; see internal/ascgrid and internal/tablecsv for the
// formats the command line tool exchanges.
//
// # Architecture
//
// The package components:
//
//   - raster.go     - Raster[T], shapes and the ShapeMismatch precondition
//   - binary.go     - Binary map validation
//   - classify.go   - Vulnerability classes by NRT rate or by equal area
//   - frequency.go  - Relative frequency tables
//   - allocation.go - Gap filling, density lookup and the calibration loop
//   - thiessen.go   - Thiessen cell evaluation
//   - combine.go    - Two-period reference map
//   - session.go    - Workflows of one modeling run
//   - assertions.go - Test helpers for the model's properties
//
// # Quick Start
//
// Fit the historical reference period and predict a validation period:
//
//	s, err := udefarp.NewSession(udefarp.DefaultConfig(), slog.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	classes, err := s.VulnerabilityByRate(distance, deforestation, jurisdiction)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fit, err := s.Fit(udefarp.Convert[float64](classes), zones, deforestation)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	cal, err := s.Predict(fit.Table, vpZones, vpClasses, 12000, 5)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cal.Signals.Log(slog.Default())
//
// # Calibration
//
// Densities are per-pixel probabilities. Each iteration multiplies the
// scale factors by target/predicted and clips densities at 1:
//
//	predicted = Σ min(1, f(zone, class) · s(zone)) · unit
//
// where unit is 1 for pixel targets and pixel area in hectares for area
// targets. Clipping is why one correction rarely lands on the target. The
// loop stops after MaxIterations corrections, or earlier when Tolerance is
// set and reached. Exhausting the budget is a normal outcome reported as
// SignalIterationBudget.
//
// Zones of a new period that the fitted table has never seen are filled
// with the jurisdiction-wide rate of each class and reported as
// SignalUnresolvedZones together with the supplementary table.
//
// # Errors
//
// Fatal conditions are sentinel errors wrapped with context:
// ErrShapeMismatch, ErrNotBinaryMap, ErrDegenerateInput and ErrEmptyInput.
// Use errors.Is. Non-fatal conditions travel with the result as Signals.
//
// # Testing
//
// Use assertions to validate model properties:
//
//	func TestMyRun(t *testing.T) {
//	    classes, _ := udefarp.ClassifyByRate(distance, deforestation, jurisdiction, 29)
//	    udefarp.AssertClassMonotonic(t, classes, distance)
//	    udefarp.AssertNRTConserved(t, classes, nrt, 0)
//	}
package udefarp

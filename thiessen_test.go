package udefarp

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/ctessum/geom"
)

// evaluationScenario is a 10x10 jurisdiction of 30 m pixels with density
// 0.1 everywhere and deforestation along the top row.
func evaluationScenario() (mask *Raster[uint8], density *Raster[float64], def *Raster[uint8]) {
	mask = filled[uint8](10, 10, 1)
	density = filled[float64](10, 10, 0.1)
	def = NewRaster[uint8](10, 10, 30)
	for c := 0; c < 10; c++ {
		def.Set(0, c, 1)
	}
	return mask, density, def
}

// TestEvaluate_Quadrants verifies a 150 m lattice splits the grid into
// four equal cells.
func TestEvaluate_Quadrants(t *testing.T) {
	mask, density, def := evaluationScenario()

	var last int
	ev, err := Evaluate(150*150, mask, density, def, Options{Progress: func(p int) { last = p }})
	if err != nil {
		t.Fatal(err)
	}
	if len(ev.Cells) != 4 {
		t.Fatalf("cells = %d, want 4", len(ev.Cells))
	}
	wantObserved := []float64{5, 5, 0, 0}
	for k, c := range ev.Cells {
		if c.ID != k || c.Pixels != 25 {
			t.Errorf("cell %d: id %d, %d pixels", k, c.ID, c.Pixels)
		}
		if c.Observed != wantObserved[k] {
			t.Errorf("cell %d observed %g, want %g", k, c.Observed, wantObserved[k])
		}
		if !almostEqual(c.Predicted, 2.5, 1e-9) {
			t.Errorf("cell %d predicted %g, want 2.5", k, c.Predicted)
		}
		if a := math.Abs(c.Polygon.Area()); !almostEqual(a, 22500, 1e-6) {
			t.Errorf("cell %d polygon area %g, want 22500", k, a)
		}
		if c.Area(mask.PixelArea()) != 22500 {
			t.Errorf("cell %d pixel area %g", k, c.Area(mask.PixelArea()))
		}
	}
	if id := ev.CellMap.At(9, 9); id != 3 {
		t.Errorf("bottom-right pixel in cell %d, want 3", id)
	}
	if !almostEqual(ev.Stats.MAE, 2.5, 1e-9) {
		t.Errorf("MAE = %g, want 2.5", ev.Stats.MAE)
	}
	if last != 100 {
		t.Errorf("last progress = %d", last)
	}
	t.Logf("✓ %d cells, spacing %g", len(ev.Cells), ev.Spacing)
}

// TestEvaluate_PolygonsFollowBoundary verifies cell polygons are clipped
// to the jurisdiction outline, not to its bounding box: on an L-shaped
// jurisdiction the polygon areas add up to the jurisdiction area.
func TestEvaluate_PolygonsFollowBoundary(t *testing.T) {
	mask, density, def := evaluationScenario()
	for r := 5; r < 10; r++ {
		for c := 5; c < 10; c++ {
			mask.Set(r, c, 0)
		}
	}

	ev, err := Evaluate(150*150, mask, density, def, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(ev.Cells) != 3 {
		t.Fatalf("cells = %d, want 3", len(ev.Cells))
	}

	const jurisdictionArea = 75 * 30 * 30
	if a := math.Abs(ev.Boundary.Area()); !almostEqual(a, jurisdictionArea, 1e-6) {
		t.Errorf("boundary area %g, want %d", a, jurisdictionArea)
	}
	total := 0.0
	for _, c := range ev.Cells {
		a := math.Abs(c.Polygon.Area())
		if !almostEqual(a, c.Area(mask.PixelArea()), 1e-6) {
			t.Errorf("cell %d polygon area %g, pixel area %g", c.ID, a, c.Area(mask.PixelArea()))
		}
		total += a
	}
	if !almostEqual(total, jurisdictionArea, 1e-6) {
		t.Errorf("polygon areas sum to %g, jurisdiction is %d", total, jurisdictionArea)
	}
	t.Logf("✓ %d cells cover %.0f m²", len(ev.Cells), total)
}

// TestMaskPolygon verifies the outline of a mask with a hole.
func TestMaskPolygon(t *testing.T) {
	mask := filled[uint8](3, 3, 1)
	mask.Set(1, 1, 0)

	p := MaskPolygon(mask)
	if a := math.Abs(p.Area()); !almostEqual(a, 8*900, 1e-6) {
		t.Errorf("area %g, want %d", a, 8*900)
	}
	b := p.Bounds()
	if b.Min.X != 0 || b.Max.X != 90 || b.Min.Y != 0 || b.Max.Y != 90 {
		t.Errorf("bounds = %+v", b)
	}
	if MaskPolygon(NewRaster[uint8](2, 2, 30)) != nil {
		t.Error("empty mask should have no outline")
	}
}

// TestEvaluate_Conserves verifies cell totals add up to the raster totals.
func TestEvaluate_Conserves(t *testing.T) {
	mask, density, def := evaluationScenario()
	for i := range density.Values {
		density.Values[i] = float64(i%7) / 10
	}
	mask.Values[0], mask.Values[55] = 0, 0

	ev, err := Evaluate(120*120, mask, density, def, Options{})
	if err != nil {
		t.Fatal(err)
	}

	var wantPred, wantObs float64
	for i := range mask.Values {
		if mask.Values[i] == 1 {
			wantPred += density.Values[i]
			wantObs += float64(def.Values[i])
		}
	}
	var pred, obs float64
	pixels := 0
	for _, c := range ev.Cells {
		pred += c.Predicted
		obs += c.Observed
		pixels += c.Pixels
	}
	if !almostEqual(pred, wantPred, 1e-9) || obs != wantObs || pixels != 98 {
		t.Errorf("predicted %g/%g observed %g/%g pixels %d/98", pred, wantPred, obs, wantObs, pixels)
	}
	if !almostEqual(ev.Stats.PredictedTotal, wantPred, 1e-9) {
		t.Errorf("stats predicted = %g", ev.Stats.PredictedTotal)
	}

	if ev.Residual.Valid(0) || ev.CellMap.Valid(55) {
		t.Error("pixels outside the jurisdiction should be nodata")
	}
	id := ev.CellMap.Values[1]
	if ev.Residual.Values[1] != ev.Cells[id].Residual {
		t.Errorf("residual map %g, cell residual %g", ev.Residual.Values[1], ev.Cells[id].Residual)
	}
}

// TestEvaluate_Deterministic verifies two runs produce the same partition.
func TestEvaluate_Deterministic(t *testing.T) {
	mask, density, def := evaluationScenario()

	a, err := Evaluate(100*100, mask, density, def, Options{})
	if err != nil {
		t.Fatal(err)
	}
	b, err := Evaluate(100*100, mask, density, def, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a.Cells, b.Cells) || !reflect.DeepEqual(a.CellMap, b.CellMap) {
		t.Error("evaluation is not deterministic")
	}
}

// TestEvaluate_SingleSite verifies a jurisdiction smaller than one lattice
// cell still gets one sampling unit.
func TestEvaluate_SingleSite(t *testing.T) {
	mask := NewRaster[uint8](10, 10, 30)
	mask.Set(0, 0, 1)
	density := filled[float64](10, 10, 0.5)
	def := NewRaster[uint8](10, 10, 30)

	ev, err := Evaluate(150*150, mask, density, def, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(ev.Cells) != 1 || ev.Cells[0].Pixels != 1 {
		t.Fatalf("cells = %+v", ev.Cells)
	}
	if s := ev.Cells[0].Site; s.X != 15 || s.Y != 285 {
		t.Errorf("site = %v, want centre of pixel (0,0)", s)
	}
	if !math.IsNaN(ev.Stats.RSquared) {
		t.Errorf("RSquared = %g, want NaN for one cell", ev.Stats.RSquared)
	}
}

// TestLatticeNearest_Ties verifies equidistant pixels go to the lower site.
func TestLatticeNearest_Ties(t *testing.T) {
	box := &geom.Bounds{Min: geom.Point{X: 0, Y: 0}, Max: geom.Point{X: 300, Y: 300}}
	mid := geom.Point{X: 150, Y: 225}

	l := newLattice(box, 150)
	l.index([]geom.Point{{X: 75, Y: 225}, {X: 225, Y: 225}})
	if got := l.nearest(mid); got != 0 {
		t.Errorf("nearest = %d, want 0", got)
	}

	l.index([]geom.Point{{X: 225, Y: 225}, {X: 75, Y: 225}})
	if got := l.nearest(mid); got != 0 {
		t.Errorf("nearest after reorder = %d, want 0", got)
	}
	if got := l.nearest(geom.Point{X: 20, Y: 20}); got != 1 {
		t.Errorf("nearest to lower-left = %d, want 1", got)
	}
}

// TestEvaluate_Errors verifies degenerate and empty inputs.
func TestEvaluate_Errors(t *testing.T) {
	mask, density, def := evaluationScenario()

	tests := []struct {
		name     string
		gridArea float64
		mask     *Raster[uint8]
		err      error
	}{
		{"zero area", 0, mask, ErrDegenerateInput},
		{"below pixel", 100, mask, ErrDegenerateInput},
		{"NaN area", math.NaN(), mask, ErrDegenerateInput},
		{"empty mask", 22500, NewRaster[uint8](10, 10, 30), ErrEmptyInput},
		{"shape", 22500, NewRaster[uint8](10, 5, 30), ErrShapeMismatch},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Evaluate(tc.gridArea, tc.mask, density, def, Options{})
			if !errors.Is(err, tc.err) {
				t.Fatalf("got %v, want %v", err, tc.err)
			}
			t.Logf("✓ %v", err)
		})
	}
}

package udefarp

import (
	"errors"
	"testing"
)

// scenario builds a 10x10 jurisdiction with distance i+1 at pixel i and
// deforestation on pixels 0..29 except every third, so NRT is 20.
func scenario() (distance *Raster[float64], deforestation, jurisdiction *Raster[uint8]) {
	distance = NewRaster[float64](10, 10, 30)
	deforestation = NewRaster[uint8](10, 10, 30)
	jurisdiction = filled[uint8](10, 10, 1)
	for i := range distance.Values {
		distance.Values[i] = float64(i + 1)
		if i < 30 && i%3 != 2 {
			deforestation.Values[i] = 1
		}
	}
	return distance, deforestation, jurisdiction
}

// TestCountNRT verifies only deforestation inside the jurisdiction counts.
func TestCountNRT(t *testing.T) {
	_, def, jur := scenario()
	jur.Values[0] = 0

	nrt, err := CountNRT(def, jur)
	if err != nil {
		t.Fatal(err)
	}
	if nrt != 19 {
		t.Errorf("NRT = %d, want 19", nrt)
	}
}

// TestClassifyByRate_ClassOneIsNRT verifies class 1 holds exactly the NRT
// closest pixels and the rest split evenly.
func TestClassifyByRate_ClassOneIsNRT(t *testing.T) {
	dist, def, jur := scenario()

	classes, err := ClassifyByRate(dist, def, jur, 5)
	if err != nil {
		t.Fatal(err)
	}
	for i, cl := range classes.Values {
		if want := int16(i/20 + 1); cl != want {
			t.Fatalf("pixel %d class %d, want %d", i, cl, want)
		}
	}
	AssertClassMonotonic(t, classes, dist)
	AssertNRTConserved(t, classes, 20, 0)
}

// TestClassifyByRate_OutsideIsNoData verifies pixels outside the
// jurisdiction or without distance carry ClassNoData.
func TestClassifyByRate_OutsideIsNoData(t *testing.T) {
	dist, def, jur := scenario()
	jur.Values[99] = 0
	dist.NoData, dist.HasNoData = -9999, true
	dist.Values[98] = -9999

	classes, err := ClassifyByRate(dist, def, jur, 5)
	if err != nil {
		t.Fatal(err)
	}
	if classes.Valid(99) || classes.Valid(98) {
		t.Errorf("outside pixels classified: %d %d", classes.Values[98], classes.Values[99])
	}
	AssertNRTConserved(t, classes, 20, 0)
}

// TestClassifyByRate_TieGroup verifies a run of equal distances is never
// split across a class boundary.
func TestClassifyByRate_TieGroup(t *testing.T) {
	dist := grid[float64](1, 6, 1, 1, 2, 2, 3, 3)
	def := grid[uint8](1, 6, 1, 0, 0, 0, 0, 0)
	jur := filled[uint8](1, 6, 1)

	scan, err := NewClassifier(TieScanOrder, Options{}).ByRate(dist, def, jur, 3)
	if err != nil {
		t.Fatal(err)
	}
	if scan.Values[0] != 1 || scan.Values[1] != 2 {
		t.Errorf("scan order classes = %v", scan.Values)
	}

	grouped, err := NewClassifier(TieGroup, Options{}).ByRate(dist, def, jur, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []int16{1, 1, 2, 2, 3, 3}
	for i, w := range want {
		if grouped.Values[i] != w {
			t.Fatalf("grouped classes = %v, want %v", grouped.Values, want)
		}
	}
	AssertClassMonotonic(t, grouped, dist)
}

// TestClassifyByRate_Degenerate verifies class-count and NRT constraints.
func TestClassifyByRate_Degenerate(t *testing.T) {
	dist, def, jur := scenario()
	none := NewRaster[uint8](10, 10, 30)
	all := filled[uint8](10, 10, 1)

	tests := []struct {
		name    string
		def     *Raster[uint8]
		classes int
		err     error
	}{
		{"one class", def, 1, ErrDegenerateInput},
		{"NRT zero", none, 5, ErrDegenerateInput},
		{"NRT everything", all, 5, ErrDegenerateInput},
		{"too many classes", def, 82, ErrDegenerateInput},
		{"shape", NewRaster[uint8](10, 9, 30), 5, ErrShapeMismatch},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ClassifyByRate(dist, tc.def, jur, tc.classes)
			if !errors.Is(err, tc.err) {
				t.Fatalf("got %v, want %v", err, tc.err)
			}
			t.Logf("✓ %v", err)
		})
	}
}

// TestClassifyByNRT_WithoutDeforestation verifies a period with no
// deforestation map is classified from a known NRT alone.
func TestClassifyByNRT_WithoutDeforestation(t *testing.T) {
	dist, _, jur := scenario()

	classes, err := NewClassifier(TieScanOrder, Options{}).ByNRT(dist, jur, 20, 5)
	if err != nil {
		t.Fatal(err)
	}
	for i, cl := range classes.Values {
		if want := int16(i/20 + 1); cl != want {
			t.Fatalf("pixel %d class %d, want %d", i, cl, want)
		}
	}
	AssertClassMonotonic(t, classes, dist)
	AssertNRTConserved(t, classes, 20, 0)
	t.Logf("✓ classified with NRT 20")
}

// TestClassifyByNRT_Degenerate verifies the NRT must leave pixels for
// every class.
func TestClassifyByNRT_Degenerate(t *testing.T) {
	dist, _, jur := scenario()
	c := NewClassifier(TieScanOrder, Options{})

	for _, nrt := range []int{0, -3, 100, 98} {
		if _, err := c.ByNRT(dist, jur, nrt, 5); !errors.Is(err, ErrDegenerateInput) {
			t.Errorf("NRT %d: got %v, want ErrDegenerateInput", nrt, err)
		}
	}
	if _, err := c.ByNRT(dist, NewRaster[uint8](10, 10, 30), 20, 5); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("empty jurisdiction: got %v", err)
	}
}

// TestClassifyByArea verifies equal-count classes over forest pixels.
func TestClassifyByArea(t *testing.T) {
	dist, _, jur := scenario()
	forest := filled[uint8](10, 10, 1)
	for i := 90; i < 100; i++ {
		forest.Values[i] = 0
	}

	var reports []int
	c := NewClassifier(TieScanOrder, Options{Progress: func(p int) { reports = append(reports, p) }})
	classes, err := c.ByArea(dist, jur, forest, 3)
	if err != nil {
		t.Fatal(err)
	}

	ranges, err := ClassRanges(classes, dist)
	if err != nil {
		t.Fatal(err)
	}
	wantPixels := []int{30, 30, 30}
	if len(ranges) != 3 {
		t.Fatalf("ranges = %+v", ranges)
	}
	for j, r := range ranges {
		if r.Pixels != wantPixels[j] {
			t.Errorf("class %d has %d pixels, want %d", r.Class, r.Pixels, wantPixels[j])
		}
	}
	if classes.Valid(95) {
		t.Error("non-forest pixel classified")
	}
	AssertClassMonotonic(t, classes, dist)

	if len(reports) == 0 || reports[0] != 0 || reports[len(reports)-1] != 100 {
		t.Errorf("progress = %v", reports)
	}
}

// TestClassifyByArea_Errors verifies empty and undersized inputs.
func TestClassifyByArea_Errors(t *testing.T) {
	dist, _, jur := scenario()
	if _, err := ClassifyByArea(dist, jur, NewRaster[uint8](10, 10, 30), 3); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("no forest: got %v", err)
	}
	if _, err := ClassifyByArea(dist, jur, jur, 101); !errors.Is(err, ErrDegenerateInput) {
		t.Errorf("101 classes: got %v", err)
	}
	if _, err := ClassifyByArea(dist, jur, jur, 0); !errors.Is(err, ErrDegenerateInput) {
		t.Errorf("0 classes: got %v", err)
	}
}

// TestClassRanges_Boundaries verifies ranges do not overlap.
func TestClassRanges_Boundaries(t *testing.T) {
	dist, def, jur := scenario()
	classes, err := ClassifyByRate(dist, def, jur, 5)
	if err != nil {
		t.Fatal(err)
	}
	ranges, err := ClassRanges(classes, dist)
	if err != nil {
		t.Fatal(err)
	}
	if ranges[0].Min != 1 || ranges[0].Max != 20 || ranges[4].Max != 100 {
		t.Errorf("ranges = %+v", ranges)
	}
	for j := 1; j < len(ranges); j++ {
		if ranges[j-1].Max > ranges[j].Min {
			t.Errorf("class %d overlaps class %d", ranges[j-1].Class, ranges[j].Class)
		}
	}
}

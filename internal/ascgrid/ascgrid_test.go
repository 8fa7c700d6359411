package ascgrid

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alexshd/udefarp"
)

const sample = `ncols        3
nrows        2
xllcorner    100
yllcorner    200
cellsize     30
NODATA_value -9999
0 1 -9999
1 1 0
`

func TestRead(t *testing.T) {
	r, err := Read(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if r.Rows != 2 || r.Cols != 3 || r.PixelSize != 30 {
		t.Fatalf("shape = %s, want 2x3@30", r.Shape())
	}
	want := udefarp.GeoTransform{100, 30, 0, 260, 0, -30}
	if r.GeoTransform != want {
		t.Errorf("GeoTransform = %v, want %v", r.GeoTransform, want)
	}
	if !r.HasNoData || r.NoData != -9999 {
		t.Errorf("nodata = %v/%v, want -9999", r.NoData, r.HasNoData)
	}
	if r.Valid(2) {
		t.Error("pixel 2 should be nodata")
	}
	if got := r.At(1, 0); got != 1 {
		t.Errorf("At(1,0) = %g, want 1", got)
	}
}

func TestRead_CenterKeys(t *testing.T) {
	in := "ncols 1\nnrows 1\nxllcenter 15\nyllcenter 15\ncellsize 30\n7\n"
	r, err := Read(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if r.GeoTransform[0] != 0 || r.GeoTransform[3] != 30 {
		t.Errorf("GeoTransform = %v, want origin (0, 30)", r.GeoTransform)
	}
	if r.HasNoData {
		t.Error("grid without NODATA_value should have no nodata")
	}
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"too few values", "ncols 2\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\n1\n"},
		{"too many values", "ncols 1\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\n1 2\n"},
		{"no size", "ncols 1\nnrows 1\nxllcorner 0\nyllcorner 0\n1\n"},
		{"no origin", "ncols 1\nnrows 1\ncellsize 1\n1\n"},
		{"bad value", "ncols 1\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\nabc def\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Read(strings.NewReader(tc.in)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestWriteRead(t *testing.T) {
	classes := udefarp.NewRaster[int16](2, 2, 10)
	classes.NoData, classes.HasNoData = udefarp.ClassNoData, true
	copy(classes.Values, []int16{1, 2, -1, 3})

	var buf bytes.Buffer
	if err := Write(&buf, classes); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Shape() != classes.Shape() {
		t.Fatalf("shape = %s, want %s", got.Shape(), classes.Shape())
	}
	if got.GeoTransform != classes.GeoTransform {
		t.Errorf("GeoTransform = %v, want %v", got.GeoTransform, classes.GeoTransform)
	}
	for i, v := range classes.Values {
		if got.Values[i] != float64(v) {
			t.Errorf("value %d = %g, want %d", i, got.Values[i], v)
		}
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "density.asc")
	d := udefarp.NewRaster[float64](1, 2, 30)
	d.Values[0], d.Values[1] = 0.25, 1
	if err := WriteFile(path, d); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got.Values[0] != 0.25 || got.Values[1] != 1 {
		t.Errorf("values = %v", got.Values)
	}
}

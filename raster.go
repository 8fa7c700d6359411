package udefarp

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
)

// Number is the set of pixel types a Raster can hold.
type Number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~int |
		~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// GeoTransform is the GDAL-style affine transform:
//
//	x = gt[0] + col*gt[1] + row*gt[2]
//	y = gt[3] + col*gt[4] + row*gt[5]
type GeoTransform [6]float64

// Nodata values written by the engine.
const (
	ClassNoData    int16   = -1
	ZoneNoData     int32   = -1
	RegionNoData   int32   = -1
	DensityNoData  float64 = -1
	ResidualNoData float64 = -9999
	BinaryNoData   uint8   = 255
)

// Raster is an in-memory georeferenced grid stored row-major.
//
// Rasters compared together must share Rows, Cols and PixelSize. The engine
// never persists a Raster; reading and writing files is the caller's job.
type Raster[T Number] struct {
	Rows         int
	Cols         int
	PixelSize    float64
	GeoTransform GeoTransform
	NoData       T
	HasNoData    bool
	Values       []T
}

// Shape is the part of a raster header that must agree between inputs.
type Shape struct {
	Rows      int
	Cols      int
	PixelSize float64
}

func (s Shape) String() string {
	return fmt.Sprintf("%dx%d@%g", s.Rows, s.Cols, s.PixelSize)
}

// NewRaster allocates a zeroed raster with a north-up transform anchored at
// the origin.
func NewRaster[T Number](rows, cols int, pixelSize float64) *Raster[T] {
	return &Raster[T]{
		Rows:         rows,
		Cols:         cols,
		PixelSize:    pixelSize,
		GeoTransform: NorthUp(0, float64(rows)*pixelSize, pixelSize),
		Values:       make([]T, rows*cols),
	}
}

// NorthUp returns the transform of an unrotated grid whose upper-left corner is (x0, y0).
func NorthUp(x0, y0, pixelSize float64) GeoTransform {
	return GeoTransform{x0, pixelSize, 0, y0, 0, -pixelSize}
}

// NewLike allocates a raster with ref's header, pixel type T and the given
// nodata value. Every pixel starts as nodata.
func NewLike[T, U Number](ref *Raster[U], nodata T) *Raster[T] {
	r := &Raster[T]{
		Rows:         ref.Rows,
		Cols:         ref.Cols,
		PixelSize:    ref.PixelSize,
		GeoTransform: ref.GeoTransform,
		NoData:       nodata,
		HasNoData:    true,
		Values:       make([]T, len(ref.Values)),
	}
	r.Fill(nodata)
	return r
}

// Convert copies src into a new raster of pixel type T.
func Convert[T, U Number](src *Raster[U]) *Raster[T] {
	dst := &Raster[T]{
		Rows:         src.Rows,
		Cols:         src.Cols,
		PixelSize:    src.PixelSize,
		GeoTransform: src.GeoTransform,
		NoData:       T(src.NoData),
		HasNoData:    src.HasNoData,
		Values:       make([]T, len(src.Values)),
	}
	for i, v := range src.Values {
		dst.Values[i] = T(v)
	}
	return dst
}

// Shape returns the comparable header of r.
func (r *Raster[T]) Shape() Shape {
	return Shape{Rows: r.Rows, Cols: r.Cols, PixelSize: r.PixelSize}
}

// Len returns the number of pixels.
func (r *Raster[T]) Len() int {
	return len(r.Values)
}

// Index converts (row, col) to a position in Values.
func (r *Raster[T]) Index(row, col int) int {
	return row*r.Cols + col
}

// At returns the pixel at (row, col).
func (r *Raster[T]) At(row, col int) T {
	return r.Values[r.Index(row, col)]
}

// Set stores v at (row, col).
func (r *Raster[T]) Set(row, col int, v T) {
	r.Values[r.Index(row, col)] = v
}

// Fill sets every pixel to v.
func (r *Raster[T]) Fill(v T) {
	for i := range r.Values {
		r.Values[i] = v
	}
}

// Valid reports whether pixel i holds data. NaN is never valid.
func (r *Raster[T]) Valid(i int) bool {
	v := r.Values[i]
	if v != v {
		return false
	}
	return !r.HasNoData || v != r.NoData
}

// PixelArea is the ground area of one pixel in squared map units.
func (r *Raster[T]) PixelArea() float64 {
	return r.PixelSize * r.PixelSize
}

// PixelCenter returns the map coordinate of the centre of pixel i.
func (r *Raster[T]) PixelCenter(i int) geom.Point {
	row, col := i/r.Cols, i%r.Cols
	gt := r.transform()
	fc, fr := float64(col)+0.5, float64(row)+0.5
	return geom.Point{
		X: gt[0] + fc*gt[1] + fr*gt[2],
		Y: gt[3] + fc*gt[4] + fr*gt[5],
	}
}

// PixelAt returns the index of the pixel containing p. Rotation terms of
// the transform are ignored.
func (r *Raster[T]) PixelAt(p geom.Point) (int, bool) {
	gt := r.transform()
	if gt[1] == 0 || gt[5] == 0 {
		return 0, false
	}
	col := int(math.Floor((p.X - gt[0]) / gt[1]))
	row := int(math.Floor((p.Y - gt[3]) / gt[5]))
	if row < 0 || row >= r.Rows || col < 0 || col >= r.Cols {
		return 0, false
	}
	return r.Index(row, col), true
}

// Extent returns the rectangle covered by the grid.
func (r *Raster[T]) Extent() *geom.Bounds {
	gt := r.transform()
	w, h := float64(r.Cols), float64(r.Rows)
	xs := []float64{gt[0], gt[0] + w*gt[1], gt[0] + h*gt[2], gt[0] + w*gt[1] + h*gt[2]}
	ys := []float64{gt[3], gt[3] + w*gt[4], gt[3] + h*gt[5], gt[3] + w*gt[4] + h*gt[5]}
	b := &geom.Bounds{
		Min: geom.Point{X: math.Inf(1), Y: math.Inf(1)},
		Max: geom.Point{X: math.Inf(-1), Y: math.Inf(-1)},
	}
	for k := range xs {
		b.Min.X = math.Min(b.Min.X, xs[k])
		b.Min.Y = math.Min(b.Min.Y, ys[k])
		b.Max.X = math.Max(b.Max.X, xs[k])
		b.Max.Y = math.Max(b.Max.Y, ys[k])
	}
	return b
}

// transform falls back to a north-up grid at the origin when no transform
// was supplied.
func (r *Raster[T]) transform() GeoTransform {
	if r.GeoTransform == (GeoTransform{}) {
		return NorthUp(0, float64(r.Rows)*r.PixelSize, r.PixelSize)
	}
	return r.GeoTransform
}

// Named pairs a raster shape with the name used in error messages.
type Named struct {
	Name  string
	Shape Shape
}

// Input wraps a raster for CheckShapes.
func Input[T Number](name string, r *Raster[T]) Named {
	if r == nil {
		return Named{Name: name}
	}
	return Named{Name: name, Shape: r.Shape()}
}

// CheckShapes fails with ErrShapeMismatch unless every input shares the
// first input's rows, columns and pixel size.
func CheckShapes(inputs ...Named) error {
	if len(inputs) == 0 {
		return nil
	}
	ref := inputs[0]
	if ref.Shape.Rows*ref.Shape.Cols == 0 {
		return fmt.Errorf("%w: %s has no pixels", ErrEmptyInput, ref.Name)
	}
	for _, in := range inputs[1:] {
		if in.Shape.Rows != ref.Shape.Rows || in.Shape.Cols != ref.Shape.Cols {
			return fmt.Errorf("%w: %s is %dx%d, %s is %dx%d",
				ErrShapeMismatch, in.Name, in.Shape.Rows, in.Shape.Cols,
				ref.Name, ref.Shape.Rows, ref.Shape.Cols)
		}
		if in.Shape.PixelSize != ref.Shape.PixelSize {
			return fmt.Errorf("%w: %s has pixel size %g, %s has %g",
				ErrShapeMismatch, in.Name, in.Shape.PixelSize, ref.Name, ref.Shape.PixelSize)
		}
	}
	return nil
}

package udefarp

import (
	"fmt"
)

// Binary validates that r encodes a binary map and returns it normalised to
// uint8 {0,1}.
//
// Every valid pixel must be exactly 0 or 1 (0.0 and 1.0 for floating point
// encodings) and both values must occur, matching the min == 0 && max == 1
// rule of the GIS tooling that produces these maps. Nodata pixels become 0
// and count as such, so a mask of ones surrounded by nodata is binary. The
// returned raster is a copy; callers treat it as immutable.
func Binary[T Number](name string, r *Raster[T]) (*Raster[uint8], error) {
	if r == nil || r.Len() == 0 {
		return nil, fmt.Errorf("%w: %s has no pixels", ErrEmptyInput, name)
	}

	out := &Raster[uint8]{
		Rows:         r.Rows,
		Cols:         r.Cols,
		PixelSize:    r.PixelSize,
		GeoTransform: r.GeoTransform,
		Values:       make([]uint8, r.Len()),
	}

	var zeros, ones int
	for i, v := range r.Values {
		if !r.Valid(i) {
			zeros++
			continue
		}
		switch float64(v) {
		case 0:
			zeros++
		case 1:
			ones++
			out.Values[i] = 1
		default:
			return nil, fmt.Errorf("%w: %s holds value %v at row %d col %d",
				ErrNotBinaryMap, name, v, i/r.Cols, i%r.Cols)
		}
	}

	if zeros == 0 || ones == 0 {
		return nil, fmt.Errorf("%w: %s must contain both 0 and 1 (zeros=%d ones=%d)",
			ErrNotBinaryMap, name, zeros, ones)
	}

	return out, nil
}

// IsBinary is the boolean form of Binary.
func IsBinary[T Number](r *Raster[T]) bool {
	_, err := Binary("raster", r)
	return err == nil
}

// Validator checks a set of named inputs at a workflow boundary. All "must
// be binary" inputs of a workflow are registered once and validated before
// any computation starts.
//
// Example:
//
//	v := NewValidator()
//	def := v.Binary("deforestation", rawDeforestation)
//	mask := v.Binary("jurisdiction", rawMask)
//	if err := v.Err(); err != nil {
//	    return err
//	}
type Validator struct {
	shapes []Named
	err    error
}

// NewValidator creates an empty validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Binary validates r as a binary map and records its shape. After the first
// failure further calls return nil and keep the original error.
func (v *Validator) Binary(name string, r *Raster[float64]) *Raster[uint8] {
	if v.err != nil {
		return nil
	}
	b, err := Binary(name, r)
	if err != nil {
		v.err = err
		return nil
	}
	v.shapes = append(v.shapes, Input(name, b))
	return b
}

// Shape records a non-binary input so it takes part in the shape check.
func (v *Validator) Shape(in Named) {
	v.shapes = append(v.shapes, in)
}

// Err returns the first binary failure, or the shape mismatch between all
// recorded inputs.
func (v *Validator) Err() error {
	if v.err != nil {
		return v.err
	}
	return CheckShapes(v.shapes...)
}

// Package ascgrid reads and writes ESRI ASCII grids.
//
// The format is a six-line header followed by rows of values, top row
// first:
//
//	ncols        4
//	nrows        3
//	xllcorner    500000
//	yllcorner    9000000
//	cellsize     30
//	NODATA_value -9999
//	0 1 1 -9999
//	...
//
// xllcenter/yllcenter are accepted in place of the corner keys.
// NODATA_value is optional.
package ascgrid

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/alexshd/udefarp"
)

// Read parses a grid into a float64 raster.
func Read(r io.Reader) (*udefarp.Raster[float64], error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<26)
	sc.Split(bufio.ScanWords)

	header := make(map[string]float64)
	var first string
	for sc.Scan() {
		key := strings.ToLower(sc.Text())
		if _, err := strconv.ParseFloat(key, 64); err == nil {
			first = sc.Text()
			break
		}
		if !sc.Scan() {
			return nil, fmt.Errorf("header key %q has no value", key)
		}
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("header %s: %w", key, err)
		}
		header[key] = v
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols, rows := int(header["ncols"]), int(header["nrows"])
	size := header["cellsize"]
	if cols <= 0 || rows <= 0 {
		return nil, fmt.Errorf("ncols and nrows must be positive, got %d and %d", cols, rows)
	}
	if size <= 0 {
		return nil, fmt.Errorf("cellsize must be positive, got %g", size)
	}

	x0, okx := header["xllcorner"]
	y0, oky := header["yllcorner"]
	if !okx || !oky {
		cx, okcx := header["xllcenter"]
		cy, okcy := header["yllcenter"]
		if !okcx || !okcy {
			return nil, fmt.Errorf("missing xllcorner/yllcorner")
		}
		x0, y0 = cx-size/2, cy-size/2
	}

	out := udefarp.NewRaster[float64](rows, cols, size)
	out.GeoTransform = udefarp.NorthUp(x0, y0+float64(rows)*size, size)
	if nd, ok := header["nodata_value"]; ok {
		out.NoData = nd
		out.HasNoData = true
	}

	n := 0
	parse := func(tok string) error {
		if n >= len(out.Values) {
			return fmt.Errorf("more than %d values", len(out.Values))
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return fmt.Errorf("value %d: %w", n, err)
		}
		out.Values[n] = v
		n++
		return nil
	}
	if first != "" {
		if err := parse(first); err != nil {
			return nil, err
		}
	}
	for sc.Scan() {
		if err := parse(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read values: %w", err)
	}
	if n != len(out.Values) {
		return nil, fmt.Errorf("expected %d values, got %d", len(out.Values), n)
	}
	return out, nil
}

// ReadFile reads the grid at path.
func ReadFile(path string) (*udefarp.Raster[float64], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Write encodes r. Rotated transforms are rejected.
func Write[T udefarp.Number](w io.Writer, r *udefarp.Raster[T]) error {
	gt := r.GeoTransform
	if gt == (udefarp.GeoTransform{}) {
		gt = udefarp.NorthUp(0, float64(r.Rows)*r.PixelSize, r.PixelSize)
	}
	if gt[2] != 0 || gt[4] != 0 {
		return fmt.Errorf("rotated grids cannot be written as ASCII grids")
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ncols        %d\n", r.Cols)
	fmt.Fprintf(bw, "nrows        %d\n", r.Rows)
	fmt.Fprintf(bw, "xllcorner    %s\n", format(gt[0]))
	fmt.Fprintf(bw, "yllcorner    %s\n", format(gt[3]+float64(r.Rows)*gt[5]))
	fmt.Fprintf(bw, "cellsize     %s\n", format(r.PixelSize))
	if r.HasNoData {
		fmt.Fprintf(bw, "NODATA_value %s\n", format(float64(r.NoData)))
	}

	for row := 0; row < r.Rows; row++ {
		for col := 0; col < r.Cols; col++ {
			if col > 0 {
				bw.WriteByte(' ')
			}
			v := float64(r.At(row, col))
			if math.IsNaN(v) && r.HasNoData {
				v = float64(r.NoData)
			}
			bw.WriteString(format(v))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// WriteFile writes r to path.
func WriteFile[T udefarp.Number](path string, r *udefarp.Raster[T]) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, r); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}

func format(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

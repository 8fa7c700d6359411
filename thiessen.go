package udefarp

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
)

// ThiessenCell is one sampling unit of an evaluation: the jurisdiction
// pixels nearer to Site than to any other lattice site.
type ThiessenCell struct {
	ID        int
	Site      geom.Point
	Polygon   geom.Polygon // Voronoi cell clipped to the jurisdiction boundary
	Pixels    int
	Predicted float64 // Sum of density over the cell's pixels
	Observed  float64 // Deforested pixels in the cell
	Residual  float64 // Observed - Predicted
}

// Area returns the ground area covered by the cell's pixels.
func (c ThiessenCell) Area(pixelArea float64) float64 {
	return float64(c.Pixels) * pixelArea
}

// Evaluation is the result of comparing a density map against observed
// deforestation over Thiessen cells.
type Evaluation struct {
	Spacing  float64
	Cells    []ThiessenCell   // Ordered by ID, sites row by row from the top-left
	CellMap  *Raster[int32]   // Cell ID per pixel, RegionNoData outside the jurisdiction
	Residual *Raster[float64] // Residual of the pixel's cell, ResidualNoData outside
	Boundary geom.Polygon     // Outline of the jurisdiction pixels
	Stats    EvaluationStats
}

// Evaluate partitions the jurisdiction into Thiessen cells of roughly
// gridArea squared map units each and compares summed density with
// observed deforestation per cell.
//
// Sites sit at the centres of a square lattice with spacing sqrt(gridArea)
// laid over the raster extent; only those falling on a jurisdiction pixel
// are kept. A jurisdiction smaller than one lattice cell gets a single site
// at the jurisdiction pixel nearest its centroid. Each pixel belongs to the
// site nearest its centre, ties going to the lower site ID, so the partition
// depends on nothing but the inputs.
func Evaluate(gridArea float64, jurisdiction *Raster[uint8], density *Raster[float64], deforestation *Raster[uint8], opts Options) (*Evaluation, error) {
	prog := newProgress(opts.Progress)
	prog.report(0)

	if err := CheckShapes(
		Input("jurisdiction", jurisdiction),
		Input("density", density),
		Input("deforestation", deforestation),
	); err != nil {
		return nil, err
	}
	if !(gridArea > 0) || math.IsInf(gridArea, 0) {
		return nil, fmt.Errorf("%w: grid area must be a positive number, got %g", ErrDegenerateInput, gridArea)
	}
	spacing := math.Sqrt(gridArea)
	if spacing < jurisdiction.PixelSize {
		return nil, fmt.Errorf("%w: grid spacing %g is smaller than the pixel size %g",
			ErrDegenerateInput, spacing, jurisdiction.PixelSize)
	}

	var inside []int
	for i, v := range jurisdiction.Values {
		if v == 1 {
			inside = append(inside, i)
		}
	}
	if len(inside) == 0 {
		return nil, fmt.Errorf("%w: jurisdiction has no pixels", ErrEmptyInput)
	}

	lat := newLattice(jurisdiction.Extent(), spacing)
	sites := lat.candidates(jurisdiction)
	if len(sites) == 0 {
		sites = []geom.Point{centralPixel(jurisdiction, inside)}
	}
	lat.index(sites)
	prog.report(10)

	// Assignment
	owner := make([]int, len(inside))
	for n, i := range inside {
		owner[n] = lat.nearest(jurisdiction.PixelCenter(i))
		prog.span(10, 80, n+1, len(inside))
	}

	// Aggregation
	cells := make([]ThiessenCell, len(sites))
	for k, s := range sites {
		cells[k] = ThiessenCell{ID: k, Site: s}
	}
	for n, i := range inside {
		c := &cells[owner[n]]
		c.Pixels++
		if density.Valid(i) {
			c.Predicted += density.Values[i]
		}
		if deforestation.Values[i] == 1 {
			c.Observed++
		}
	}

	// Sites whose pixels all went to a neighbour are dropped and IDs compacted.
	remap := make([]int, len(cells))
	kept := cells[:0]
	for k, c := range cells {
		if c.Pixels == 0 {
			remap[k] = -1
			continue
		}
		remap[k] = len(kept)
		c.ID = len(kept)
		c.Residual = c.Observed - c.Predicted
		kept = append(kept, c)
	}
	cells = kept
	prog.report(85)

	boundary := MaskPolygon(jurisdiction)
	keptSites := make([]geom.Point, len(cells))
	for k, c := range cells {
		keptSites[k] = c.Site
	}
	for k := range cells {
		cells[k].Polygon = voronoiCell(k, keptSites, boundary)
	}
	prog.report(95)

	cellMap := NewLike(jurisdiction, RegionNoData)
	residual := NewLike(jurisdiction, ResidualNoData)
	for n, i := range inside {
		id := remap[owner[n]]
		cellMap.Values[i] = int32(id)
		residual.Values[i] = cells[id].Residual
	}

	observed := make([]float64, len(cells))
	predicted := make([]float64, len(cells))
	for k, c := range cells {
		observed[k] = c.Observed
		predicted[k] = c.Predicted
	}
	ev := &Evaluation{
		Spacing:  spacing,
		Cells:    cells,
		CellMap:  cellMap,
		Residual: residual,
		Boundary: boundary,
		Stats:    CompareTotals(observed, predicted),
	}
	prog.report(100)

	opts.logger().Info("model evaluated",
		"cells", ev.Stats.Cells,
		"spacing", spacing,
		"observed", ev.Stats.ObservedTotal,
		"predicted", ev.Stats.PredictedTotal,
		"mae", ev.Stats.MAE,
		"rmse", ev.Stats.RMSE)

	return ev, nil
}

// lattice is a square grid of candidate sites anchored at the top-left
// corner of the raster extent, with a bucket index for nearest-site search.
type lattice struct {
	origin  geom.Point
	spacing float64
	nx, ny  int
	sites   []geom.Point
	buckets map[[2]int][]int
}

func newLattice(b *geom.Bounds, spacing float64) *lattice {
	nx := int(math.Ceil((b.Max.X - b.Min.X) / spacing))
	ny := int(math.Ceil((b.Max.Y - b.Min.Y) / spacing))
	return &lattice{
		origin:  geom.Point{X: b.Min.X, Y: b.Max.Y},
		spacing: spacing,
		nx:      max(nx, 1),
		ny:      max(ny, 1),
	}
}

// candidates returns lattice cell centres lying on a mask pixel, row by row
// from the top.
func (l *lattice) candidates(mask *Raster[uint8]) []geom.Point {
	var pts []geom.Point
	for j := 0; j < l.ny; j++ {
		for i := 0; i < l.nx; i++ {
			p := geom.Point{
				X: l.origin.X + (float64(i)+0.5)*l.spacing,
				Y: l.origin.Y - (float64(j)+0.5)*l.spacing,
			}
			if k, ok := mask.PixelAt(p); ok && mask.Values[k] == 1 {
				pts = append(pts, p)
			}
		}
	}
	return pts
}

func (l *lattice) cell(p geom.Point) (int, int) {
	i := int(math.Floor((p.X - l.origin.X) / l.spacing))
	j := int(math.Floor((l.origin.Y - p.Y) / l.spacing))
	return i, j
}

func (l *lattice) index(sites []geom.Point) {
	l.sites = sites
	l.buckets = make(map[[2]int][]int, len(sites))
	for k, s := range sites {
		i, j := l.cell(s)
		l.buckets[[2]int{i, j}] = append(l.buckets[[2]int{i, j}], k)
	}
}

// nearest returns the index of the site closest to p, searching lattice
// cells in rings of growing Chebyshev radius. Any site in ring r is at least
// (r-1)*spacing away, which bounds the search.
func (l *lattice) nearest(p geom.Point) int {
	ci, cj := l.cell(p)
	best, bestD := -1, math.Inf(1)
	limit := max(l.nx, l.ny) + 1
	for r := 0; r <= limit; r++ {
		if best >= 0 && bestD < float64(r-1)*l.spacing {
			break
		}
		for dj := -r; dj <= r; dj++ {
			for di := -r; di <= r; di++ {
				if max(abs(di), abs(dj)) != r {
					continue
				}
				for _, k := range l.buckets[[2]int{ci + di, cj + dj}] {
					s := l.sites[k]
					d := math.Hypot(s.X-p.X, s.Y-p.Y)
					if d < bestD || (d == bestD && k < best) {
						best, bestD = k, d
					}
				}
			}
		}
	}
	if best < 0 {
		// Only reachable if p lies far outside the lattice.
		for k, s := range l.sites {
			d := math.Hypot(s.X-p.X, s.Y-p.Y)
			if d < bestD {
				best, bestD = k, d
			}
		}
	}
	return best
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// centralPixel returns the centre of the mask pixel nearest the centroid of
// the given pixels.
func centralPixel(mask *Raster[uint8], pixels []int) geom.Point {
	var cx, cy float64
	for _, i := range pixels {
		c := mask.PixelCenter(i)
		cx += c.X
		cy += c.Y
	}
	cx /= float64(len(pixels))
	cy /= float64(len(pixels))

	best, bestD := pixels[0], math.Inf(1)
	for _, i := range pixels {
		c := mask.PixelCenter(i)
		if d := math.Hypot(c.X-cx, c.Y-cy); d < bestD {
			best, bestD = i, d
		}
	}
	return mask.PixelCenter(best)
}

// MaskPolygon returns the outline of the mask's 1-pixels: the union of
// one rectangle per horizontal run, merged pairwise.
func MaskPolygon(mask *Raster[uint8]) geom.Polygon {
	var parts []geom.Polygon
	for row := 0; row < mask.Rows; row++ {
		for col := 0; col < mask.Cols; {
			if mask.At(row, col) != 1 {
				col++
				continue
			}
			start := col
			for col < mask.Cols && mask.At(row, col) == 1 {
				col++
			}
			parts = append(parts, runRect(mask, row, start, col))
		}
	}
	if len(parts) == 0 {
		return nil
	}

	for len(parts) > 1 {
		next := make([]geom.Polygon, 0, (len(parts)+1)/2)
		for i := 0; i+1 < len(parts); i += 2 {
			next = append(next, parts[i].Union(parts[i+1]).(geom.Polygon))
		}
		if len(parts)%2 == 1 {
			next = append(next, parts[len(parts)-1])
		}
		parts = next
	}
	return parts[0]
}

// runRect is the footprint of pixels [from, to) of row.
func runRect(r *Raster[uint8], row, from, to int) geom.Polygon {
	half := r.PixelSize / 2
	a := r.PixelCenter(r.Index(row, from))
	b := r.PixelCenter(r.Index(row, to-1))
	minX, maxX := math.Min(a.X, b.X)-half, math.Max(a.X, b.X)+half
	minY, maxY := a.Y-half, a.Y+half
	return geom.Polygon{{
		{X: minX, Y: minY},
		{X: maxX, Y: minY},
		{X: maxX, Y: maxY},
		{X: minX, Y: maxY},
	}}
}

// voronoiCell returns the part of boundary closer to site k than to any
// other site: the boundary's bounding box cut by one half-plane per
// neighbouring site, then intersected with the boundary itself.
func voronoiCell(k int, sites []geom.Point, boundary geom.Polygon) geom.Polygon {
	box := boundary.Bounds()
	reach := 2 * (box.Max.X - box.Min.X + box.Max.Y - box.Min.Y)

	cell := geom.Polygon{{
		{X: box.Min.X, Y: box.Min.Y},
		{X: box.Max.X, Y: box.Min.Y},
		{X: box.Max.X, Y: box.Max.Y},
		{X: box.Min.X, Y: box.Max.Y},
	}}
	s := sites[k]
	for m, o := range sites {
		if m == k || !cutBy(cell, s, o) {
			continue
		}
		cell = cell.Intersection(halfPlane(s, o, reach)).(geom.Polygon)
		if len(cell) == 0 {
			return nil
		}
	}

	clipped := cell.Intersection(boundary).(geom.Polygon)
	if len(clipped) == 0 {
		return nil
	}
	return clipped
}

// cutBy reports whether any vertex of cell is closer to o than to s.
func cutBy(cell geom.Polygon, s, o geom.Point) bool {
	for _, ring := range cell {
		for _, v := range ring {
			if bisectorSide(v, s, o) > 0 {
				return true
			}
		}
	}
	return false
}

// bisectorSide is negative on s's side of the bisector of s and o.
func bisectorSide(p, s, o geom.Point) float64 {
	return (p.X-(s.X+o.X)/2)*(o.X-s.X) + (p.Y-(s.Y+o.Y)/2)*(o.Y-s.Y)
}

// halfPlane is a square of side 2*reach lying on s's side of the bisector
// of s and o.
func halfPlane(s, o geom.Point, reach float64) geom.Polygon {
	d := math.Hypot(o.X-s.X, o.Y-s.Y)
	nx, ny := (o.X-s.X)/d, (o.Y-s.Y)/d
	tx, ty := -ny, nx
	mx, my := (s.X+o.X)/2, (s.Y+o.Y)/2
	return geom.Polygon{{
		{X: mx + tx*reach, Y: my + ty*reach},
		{X: mx + tx*reach - nx*2*reach, Y: my + ty*reach - ny*2*reach},
		{X: mx - tx*reach - nx*2*reach, Y: my - ty*reach - ny*2*reach},
		{X: mx - tx*reach, Y: my - ty*reach},
	}}
}

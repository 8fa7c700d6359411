package udefarp

import (
	"fmt"
	"math"
	"sort"
)

// Classifier turns a continuous distance-to-forest-edge raster into ordered
// risk classes. Class 1 is the highest risk: pixels closest to the forest
// edge are ranked first.
//
// Two constraints are supported:
//
//	ByRate: class 1 holds exactly NRT pixels (the observed deforestation
//	        count), classes 2..n split the remainder into equal counts.
//	ByArea: no target, classes 1..n split the valid forest area into equal
//	        counts.
//
// Pixels outside the valid area carry ClassNoData.
type Classifier struct {
	Ties    TiePolicy
	Options Options
}

// NewClassifier creates a classifier with the given tie policy.
func NewClassifier(ties TiePolicy, opts Options) *Classifier {
	if ties == "" {
		ties = TieScanOrder
	}
	return &Classifier{Ties: ties, Options: opts}
}

// ClassifyByRate classifies with scan-order tie breaking and default options.
func ClassifyByRate(distance *Raster[float64], deforestation, jurisdiction *Raster[uint8], nClasses int) (*Raster[int16], error) {
	return NewClassifier(TieScanOrder, Options{}).ByRate(distance, deforestation, jurisdiction, nClasses)
}

// ClassifyByArea classifies with scan-order tie breaking and default options.
func ClassifyByArea(distance *Raster[float64], jurisdiction, forest *Raster[uint8], nClasses int) (*Raster[int16], error) {
	return NewClassifier(TieScanOrder, Options{}).ByArea(distance, jurisdiction, forest, nClasses)
}

// CountNRT returns the number of deforested pixels inside the jurisdiction.
func CountNRT(deforestation, jurisdiction *Raster[uint8]) (int, error) {
	if err := CheckShapes(
		Input("deforestation", deforestation),
		Input("jurisdiction", jurisdiction),
	); err != nil {
		return 0, err
	}

	nrt := 0
	for i, d := range deforestation.Values {
		if d == 1 && jurisdiction.Values[i] == 1 {
			nrt++
		}
	}
	return nrt, nil
}

// ByRate assigns the NRT pixels closest to the forest edge to class 1 and
// splits the remaining in-jurisdiction pixels into nClasses-1 equal-count
// classes. NRT is counted from deforestation.
func (c *Classifier) ByRate(distance *Raster[float64], deforestation, jurisdiction *Raster[uint8], nClasses int) (*Raster[int16], error) {
	if err := CheckShapes(
		Input("distance", distance),
		Input("deforestation", deforestation),
		Input("jurisdiction", jurisdiction),
	); err != nil {
		return nil, err
	}
	nrt, err := CountNRT(deforestation, jurisdiction)
	if err != nil {
		return nil, err
	}
	return c.ByNRT(distance, jurisdiction, nrt, nClasses)
}

// ByNRT is ByRate with a known NRT, typically carried over from the
// fitting period to classify a period whose deforestation is not used.
func (c *Classifier) ByNRT(distance *Raster[float64], jurisdiction *Raster[uint8], nrt, nClasses int) (*Raster[int16], error) {
	prog := newProgress(c.Options.Progress)
	prog.report(0)

	if err := CheckShapes(
		Input("distance", distance),
		Input("jurisdiction", jurisdiction),
	); err != nil {
		return nil, err
	}
	if nClasses < 2 || nClasses > math.MaxInt16 {
		return nil, fmt.Errorf("%w: classification by rate needs 2..%d classes, got %d",
			ErrDegenerateInput, math.MaxInt16, nClasses)
	}

	order := rankByDistance(distance, func(i int) bool {
		return jurisdiction.Values[i] == 1
	})
	prog.report(50)

	total := len(order)
	switch {
	case total == 0:
		return nil, fmt.Errorf("%w: no jurisdiction pixel has a distance value", ErrEmptyInput)
	case nrt <= 0:
		return nil, fmt.Errorf("%w: NRT is %d, class 1 would be empty", ErrDegenerateInput, nrt)
	case nrt >= total:
		return nil, fmt.Errorf("%w: NRT %d leaves no room for classes 2..%d among %d pixels",
			ErrDegenerateInput, nrt, nClasses, total)
	case total-nrt < nClasses-1:
		return nil, fmt.Errorf("%w: %d pixels after NRT cannot fill %d classes",
			ErrDegenerateInput, total-nrt, nClasses-1)
	}

	bounds := append([]int{nrt}, equalCounts(nrt, total, nClasses-1)...)
	out := c.assign(distance, order, bounds)
	prog.report(100)

	c.Options.logger().Info("vulnerability map classified by rate",
		"nrt", nrt,
		"classes", nClasses,
		"pixels", total,
		"class1", bounds[0])

	return out, nil
}

// ByArea splits pixels inside both the jurisdiction and the forest mask
// into nClasses equal-count classes ordered by distance.
func (c *Classifier) ByArea(distance *Raster[float64], jurisdiction, forest *Raster[uint8], nClasses int) (*Raster[int16], error) {
	prog := newProgress(c.Options.Progress)
	prog.report(0)

	if err := CheckShapes(
		Input("distance", distance),
		Input("jurisdiction", jurisdiction),
		Input("forest", forest),
	); err != nil {
		return nil, err
	}
	if nClasses < 1 || nClasses > math.MaxInt16 {
		return nil, fmt.Errorf("%w: classification by area needs 1..%d classes, got %d",
			ErrDegenerateInput, math.MaxInt16, nClasses)
	}

	order := rankByDistance(distance, func(i int) bool {
		return jurisdiction.Values[i] == 1 && forest.Values[i] == 1
	})
	prog.report(50)

	total := len(order)
	if total == 0 {
		return nil, fmt.Errorf("%w: no forest pixel inside the jurisdiction", ErrEmptyInput)
	}
	if total < nClasses {
		return nil, fmt.Errorf("%w: %d forest pixels cannot fill %d classes",
			ErrDegenerateInput, total, nClasses)
	}

	bounds := equalCounts(0, total, nClasses)
	out := c.assign(distance, order, bounds)
	prog.report(100)

	c.Options.logger().Info("vulnerability map classified by area",
		"classes", nClasses,
		"pixels", total)

	return out, nil
}

// assign labels order[bounds[j-1]:bounds[j]] with class j+1.
func (c *Classifier) assign(distance *Raster[float64], order []int, bounds []int) *Raster[int16] {
	if c.Ties == TieGroup {
		groupTies(distance, order, bounds)
	}

	out := NewLike(distance, ClassNoData)
	p := 0
	for j, b := range bounds {
		for ; p < b; p++ {
			out.Values[order[p]] = int16(j + 1)
		}
	}
	return out
}

// rankByDistance returns the indices of valid pixels accepted by keep,
// sorted by ascending distance. Equal distances keep raster scan order.
func rankByDistance(distance *Raster[float64], keep func(i int) bool) []int {
	order := make([]int, 0, distance.Len())
	for i := range distance.Values {
		if distance.Valid(i) && keep(i) {
			order = append(order, i)
		}
	}

	sort.SliceStable(order, func(a, b int) bool {
		return distance.Values[order[a]] < distance.Values[order[b]]
	})
	return order
}

// equalCounts returns k cumulative upper bounds splitting [start, end) into
// k runs whose sizes differ by at most one.
func equalCounts(start, end, k int) []int {
	n := end - start
	bounds := make([]int, k)
	for j := 1; j <= k; j++ {
		bounds[j-1] = start + j*n/k
	}
	return bounds
}

// groupTies moves each boundary forward past a run of equal distances so
// that no run is split between two classes.
func groupTies(distance *Raster[float64], order []int, bounds []int) {
	prev := 0
	for j, b := range bounds {
		if b < prev {
			b = prev
		}
		for b > 0 && b < len(order) &&
			distance.Values[order[b]] == distance.Values[order[b-1]] {
			b++
		}
		bounds[j] = b
		prev = b
	}
}

// ClassRange summarises the distance values that ended up in one class.
type ClassRange struct {
	Class  int16
	Pixels int
	Min    float64
	Max    float64
}

// ClassRanges reports, per class in ascending order, the pixel count and the
// distance range. For any classified map Max of class j never exceeds Min of
// class j+1.
func ClassRanges(classes *Raster[int16], distance *Raster[float64]) ([]ClassRange, error) {
	if err := CheckShapes(Input("classes", classes), Input("distance", distance)); err != nil {
		return nil, err
	}

	byClass := make(map[int16]*ClassRange)
	for i, cl := range classes.Values {
		if !classes.Valid(i) || !distance.Valid(i) {
			continue
		}
		d := distance.Values[i]
		r, ok := byClass[cl]
		if !ok {
			r = &ClassRange{Class: cl, Min: d, Max: d}
			byClass[cl] = r
		}
		r.Pixels++
		r.Min = math.Min(r.Min, d)
		r.Max = math.Max(r.Max, d)
	}

	ranges := make([]ClassRange, 0, len(byClass))
	for _, r := range byClass {
		ranges = append(ranges, *r)
	}
	sort.Slice(ranges, func(i, j int) bool {
		return ranges[i].Class < ranges[j].Class
	})
	return ranges, nil
}

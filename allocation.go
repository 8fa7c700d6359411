package udefarp

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// TargetUnit is the unit of a calibration target.
type TargetUnit string

const (
	UnitPixels   TargetUnit = "pixels"
	UnitHectares TargetUnit = "ha"
)

// Target is the total deforestation the adjusted density map must predict.
type Target struct {
	Value float64
	Unit  TargetUnit
}

// PixelTarget is a target expressed as a count of deforested pixels, e.g.
// the observed deforestation of a confirmation period.
func PixelTarget(n int) Target {
	return Target{Value: float64(n), Unit: UnitPixels}
}

// AreaTarget is expected deforestation per year times the number of years,
// in hectares.
func AreaTarget(hectaresPerYear, years float64) Target {
	return Target{Value: hectaresPerYear * years, Unit: UnitHectares}
}

// perPixel returns how much one fully deforested pixel contributes to a
// total in unit, for a pixel of pixelArea square metres.
func (u TargetUnit) perPixel(pixelArea float64) float64 {
	if u == UnitHectares {
		return pixelArea / 10000
	}
	return 1
}

// CalibrationState is the loop state, mutated once per iteration.
type CalibrationState struct {
	Iteration      int               // Corrections applied so far
	ScaleFactors   map[int32]float64 // Multiplier per zone
	PredictedTotal float64           // Prediction with the current factors
	TargetTotal    float64
	History        []float64 // PredictedTotal before each correction, then the final value
}

// Calibration is the result of fitting a frequency table to a new period.
type Calibration struct {
	Density        *Raster[float64] // Adjusted density, DensityNoData outside the modeling region
	ModelingRegion *Raster[int32]   // zone*RegionStride + class, RegionNoData outside
	RegionStride   int32
	Table          *FrequencyTable // Working table: fitted bins plus estimates
	Supplementary  *FrequencyTable // Estimated bins only; nil when nothing was estimated
	IDDifference   []int32         // Zones of the new period absent from the fitted table
	State          CalibrationState
	Signals        Signals
}

// Calibrator rescales a fitted relative frequency table so that the density
// map of a new period predicts a target amount of deforestation.
//
// The loop is the same incremental correction used elsewhere in this
// package: a bounded number of multiplicative pulses, each computed from the
// current prediction. Densities are probabilities and are clipped to 1 after
// scaling, so a single pulse generally undershoots and later pulses close
// the gap. There is no convergence guarantee; callers compare
// State.PredictedTotal with State.TargetTotal.
type Calibrator struct {
	MaxIterations int
	Tolerance     float64
	Policy        CalibrationPolicy
	Backfill      BackfillPolicy
	Options       Options
}

// NewCalibrator builds a calibrator from the calibration part of cfg.
func NewCalibrator(cfg Config, opts Options) *Calibrator {
	return &Calibrator{
		MaxIterations: cfg.MaxIterations,
		Tolerance:     cfg.Tolerance,
		Policy:        cfg.CalibrationPolicy,
		Backfill:      cfg.BackfillPolicy,
		Options:       opts,
	}
}

// Calibrate backfills zones missing from table, builds the density map of
// the new period and rescales it toward target.
func (c *Calibrator) Calibrate(table *FrequencyTable, zones *Raster[int32], classes *Raster[int16], target Target) (*Calibration, error) {
	logger := c.Options.logger()
	prog := newProgress(c.Options.Progress)
	prog.report(0)

	if table == nil || table.Len() == 0 {
		return nil, fmt.Errorf("%w: relative frequency table has no entries", ErrEmptyInput)
	}
	if err := CheckShapes(Input("zones", zones), Input("classes", classes)); err != nil {
		return nil, err
	}
	if c.MaxIterations < 0 {
		return nil, fmt.Errorf("max iterations must not be negative, got %d", c.MaxIterations)
	}
	if target.Value < 0 || math.IsNaN(target.Value) || math.IsInf(target.Value, 0) {
		return nil, fmt.Errorf("calibration target must be a finite non-negative number, got %g", target.Value)
	}

	// Step 1: gap detection and backfill.
	idDifference := missingZones(table, zones)
	supplementary, estimatedBins := backfill(table, zones, classes, idDifference, c.Backfill)
	working := table.Merge(supplementary)
	prog.report(10)

	var signals Signals
	if len(idDifference) > 0 {
		signals = append(signals, Signal{
			Kind:  SignalUnresolvedZones,
			Level: slog.LevelWarn,
			Message: fmt.Sprintf("modeling region IDs %s do not exist in the fitted table; "+
				"relative frequencies for their bins were estimated from the corresponding "+
				"vulnerability classes over the entire jurisdiction", joinZones(idDifference)),
			Zones: idDifference,
		})
	}
	if len(estimatedBins) > 0 {
		signals = append(signals, Signal{
			Kind:  SignalEstimatedBins,
			Level: slog.LevelInfo,
			Message: fmt.Sprintf("%d bins of fitted zones had no fitted frequency and were estimated",
				len(estimatedBins)),
			Zones: estimatedBins,
		})
	}

	// Step 2: density lookup join.
	dm, err := newDensityModel(working, zones, classes)
	if err != nil {
		return nil, err
	}
	prog.report(20)

	// Step 3: iterative target matching.
	unit := target.Unit.perPixel(zones.PixelArea())
	state := CalibrationState{
		ScaleFactors: make(map[int32]float64, len(dm.zones)),
		TargetTotal:  target.Value,
	}
	for _, z := range dm.zones {
		state.ScaleFactors[z] = 1
	}

	capacity := dm.capacity() * unit
	if target.Value > capacity {
		signals = append(signals, Signal{
			Kind:  SignalUnreachable,
			Level: slog.LevelWarn,
			Message: fmt.Sprintf("target %.2f %s exceeds %.2f %s, the total of all pixels with non-zero density",
				target.Value, target.Unit, capacity, target.Unit),
		})
	}

	shares := dm.zoneTotals(state.ScaleFactors)
	initial := 0.0
	for _, v := range shares {
		initial += v
	}

	converged := false
	for state.Iteration < c.MaxIterations {
		state.PredictedTotal = dm.predict(state.ScaleFactors) * unit
		state.History = append(state.History, state.PredictedTotal)

		if c.Tolerance > 0 && math.Abs(state.PredictedTotal-target.Value) <= c.Tolerance {
			converged = true
			break
		}
		if state.PredictedTotal == 0 {
			break
		}

		switch c.Policy {
		case CalibratePerZone:
			predicted := dm.zoneTotals(state.ScaleFactors)
			for z, p := range predicted {
				if p == 0 || initial == 0 {
					continue
				}
				zoneTarget := target.Value * shares[z] / initial
				state.ScaleFactors[z] *= zoneTarget / (p * unit)
			}
		default:
			ratio := target.Value / state.PredictedTotal
			for z := range state.ScaleFactors {
				state.ScaleFactors[z] *= ratio
			}
		}
		state.Iteration++

		logger.Debug("calibration iteration",
			"iteration", state.Iteration,
			"predicted", state.PredictedTotal,
			"target", target.Value)
		prog.span(20, 95, state.Iteration, c.MaxIterations)
	}

	state.PredictedTotal = dm.predict(state.ScaleFactors) * unit
	state.History = append(state.History, state.PredictedTotal)

	if converged {
		signals = append(signals, Signal{
			Kind:  SignalConverged,
			Level: slog.LevelInfo,
			Message: fmt.Sprintf("prediction within %g of target after %d iterations",
				c.Tolerance, state.Iteration),
		})
	} else {
		signals = append(signals, Signal{
			Kind:  SignalIterationBudget,
			Level: slog.LevelInfo,
			Message: fmt.Sprintf("stopped after %d of %d iterations: predicted %.4f, target %.4f",
				state.Iteration, c.MaxIterations, state.PredictedTotal, target.Value),
		})
	}

	result := &Calibration{
		Density:        dm.density(state.ScaleFactors),
		ModelingRegion: dm.region(),
		RegionStride:   dm.stride,
		Table:          working,
		IDDifference:   idDifference,
		State:          state,
		Signals:        signals,
	}
	if supplementary.Len() > 0 {
		result.Supplementary = supplementary
	}
	prog.report(100)

	signals.Log(logger)
	logger.Info("allocation calibrated",
		"iterations", state.Iteration,
		"predicted", state.PredictedTotal,
		"target", target.Value,
		"unit", string(target.Unit),
		"missing_zones", len(idDifference))

	return result, nil
}

// Fit is the fitting-period step: it tabulates relative frequencies and maps
// them back onto the fitting period without any rescaling.
type Fit struct {
	Table          *FrequencyTable
	Density        *Raster[float64]
	ModelingRegion *Raster[int32]
	RegionStride   int32
}

// FitAllocation builds the relative frequency table of a fitting period and
// the fitted density and modeling region maps.
func FitAllocation(classes *Raster[int16], zones *Raster[int32], deforestation *Raster[uint8], opts Options) (*Fit, error) {
	prog := newProgress(opts.Progress)
	table, err := BuildFrequencyTable(classes, zones, deforestation, Options{
		Logger:   opts.Logger,
		Progress: prog.sub(0, 70),
	})
	if err != nil {
		return nil, err
	}

	dm, err := newDensityModel(table, zones, classes)
	if err != nil {
		return nil, err
	}
	fit := &Fit{
		Table:          table,
		Density:        dm.density(nil),
		ModelingRegion: dm.region(),
		RegionStride:   dm.stride,
	}
	prog.report(100)
	return fit, nil
}

// missingZones returns the zones of the raster that the table has never seen.
func missingZones(table *FrequencyTable, zones *Raster[int32]) []int32 {
	seen := make(map[int32]bool)
	var missing []int32
	for i, z := range zones.Values {
		if !zones.Valid(i) || seen[z] {
			continue
		}
		seen[z] = true
		if !table.HasZone(z) {
			missing = append(missing, z)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
}

// backfill estimates entries for every class of each missing zone, and for
// bins of known zones that occur in the new period but were never fitted.
// It returns the estimates and the known zones that needed them.
func backfill(table *FrequencyTable, zones *Raster[int32], classes *Raster[int16], missing []int32, policy BackfillPolicy) (*FrequencyTable, []int32) {
	rates := table.ClassRates(policy)
	fitted := table.Classes()

	var entries []FrequencyEntry
	added := make(map[binKey]bool)
	for _, z := range missing {
		for _, cl := range fitted {
			entries = append(entries, FrequencyEntry{Zone: z, Class: cl, Frequency: rates[cl], Estimated: true})
			added[binKey{z, cl}] = true
		}
	}

	partial := make(map[int32]bool)
	for i := range zones.Values {
		if !zones.Valid(i) || !classes.Valid(i) {
			continue
		}
		k := binKey{zones.Values[i], classes.Values[i]}
		if added[k] {
			continue
		}
		if _, ok := table.Lookup(k.zone, k.class); ok {
			continue
		}
		rate, ok := rates[k.class]
		if !ok {
			// Class never fitted anywhere: the no-risk bucket, density 0.
			continue
		}
		entries = append(entries, FrequencyEntry{Zone: k.zone, Class: k.class, Frequency: rate, Estimated: true})
		added[k] = true
		partial[k.zone] = true
	}

	supp, err := NewFrequencyTable(entries)
	if err != nil {
		panic(fmt.Sprintf("udefarp: backfill produced an invalid table: %v", err))
	}

	estimated := make([]int32, 0, len(partial))
	for z := range partial {
		estimated = append(estimated, z)
	}
	sort.Slice(estimated, func(i, j int) bool { return estimated[i] < estimated[j] })
	return supp, estimated
}

// densityModel is the lookup join of a table onto zone and class rasters,
// kept in compact per-pixel form for the calibration loop.
type densityModel struct {
	ref    *Raster[int32]
	pixels []int     // raster index of every modeled pixel
	base   []float64 // unscaled density per modeled pixel
	zoneOf []int32
	class  []int16
	zones  []int32 // distinct zones, ascending
	stride int32
	buf    []float64
}

func newDensityModel(table *FrequencyTable, zones *Raster[int32], classes *Raster[int16]) (*densityModel, error) {
	dm := &densityModel{ref: zones}
	seen := make(map[int32]bool)
	var maxClass int16
	for i := range zones.Values {
		if !zones.Valid(i) || !classes.Valid(i) {
			continue
		}
		z, cl := zones.Values[i], classes.Values[i]
		freq := 0.0
		if e, ok := table.Lookup(z, cl); ok {
			freq = e.Frequency
		}
		dm.pixels = append(dm.pixels, i)
		dm.base = append(dm.base, freq)
		dm.zoneOf = append(dm.zoneOf, z)
		dm.class = append(dm.class, cl)
		if !seen[z] {
			seen[z] = true
			dm.zones = append(dm.zones, z)
		}
		if cl > maxClass {
			maxClass = cl
		}
	}
	if len(dm.pixels) == 0 {
		return nil, fmt.Errorf("%w: no pixel has both a zone and a vulnerability class", ErrEmptyInput)
	}

	sort.Slice(dm.zones, func(i, j int) bool { return dm.zones[i] < dm.zones[j] })
	dm.stride = regionStride(maxClass)
	for _, z := range []int32{dm.zones[0], dm.zones[len(dm.zones)-1]} {
		if id := int64(z)*int64(dm.stride) + int64(maxClass); id > math.MaxInt32 || id < math.MinInt32 {
			return nil, fmt.Errorf("%w: zone %d with class stride %d overflows the modeling region ID",
				ErrDegenerateInput, z, dm.stride)
		}
	}
	dm.buf = make([]float64, len(dm.pixels))
	return dm, nil
}

// regionStride is the smallest power of ten larger than maxClass, so that
// zone*stride + class is unambiguous.
func regionStride(maxClass int16) int32 {
	stride := int32(10)
	for stride <= int32(maxClass) {
		stride *= 10
	}
	return stride
}

// scaled returns the clipped density of modeled pixel k.
func (dm *densityModel) scaled(k int, scale map[int32]float64) float64 {
	d := dm.base[k]
	if scale != nil {
		d *= scale[dm.zoneOf[k]]
	}
	return math.Min(d, 1)
}

// predict returns the expected number of deforested pixels.
func (dm *densityModel) predict(scale map[int32]float64) float64 {
	for k := range dm.base {
		dm.buf[k] = dm.scaled(k, scale)
	}
	return floats.Sum(dm.buf)
}

// zoneTotals returns the expected number of deforested pixels per zone.
func (dm *densityModel) zoneTotals(scale map[int32]float64) map[int32]float64 {
	totals := make(map[int32]float64, len(dm.zones))
	for k := range dm.base {
		totals[dm.zoneOf[k]] += dm.scaled(k, scale)
	}
	return totals
}

// capacity is the number of pixels that can receive any deforestation.
func (dm *densityModel) capacity() float64 {
	n := 0
	for _, d := range dm.base {
		if d > 0 {
			n++
		}
	}
	return float64(n)
}

func (dm *densityModel) density(scale map[int32]float64) *Raster[float64] {
	out := NewLike(dm.ref, DensityNoData)
	for k, i := range dm.pixels {
		out.Values[i] = dm.scaled(k, scale)
	}
	return out
}

func (dm *densityModel) region() *Raster[int32] {
	out := NewLike(dm.ref, RegionNoData)
	for k, i := range dm.pixels {
		out.Values[i] = dm.zoneOf[k]*dm.stride + int32(dm.class[k])
	}
	return out
}

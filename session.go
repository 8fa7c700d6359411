package udefarp

import (
	"fmt"
	"log/slog"
	"math"
)

// Session runs the modeling workflows of one jurisdiction with a fixed
// configuration. It holds no results: every workflow takes its inputs
// explicitly and returns its outputs, so periods can be processed in any
// order and sessions never share state.
//
// Inputs arrive as float64 rasters, the way a GIS reader delivers them.
// Maps that must be binary are validated before any computation starts.
type Session struct {
	Config   Config
	Logger   *slog.Logger // nil = slog.Default()
	Progress ProgressFunc // nil = no progress reporting
}

// NewSession validates cfg and returns a session using it.
func NewSession(cfg Config, logger *slog.Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &Session{Config: cfg, Logger: logger}, nil
}

func (s *Session) options() Options {
	return Options{Logger: s.Logger, Progress: s.Progress}
}

// NRT counts deforested pixels inside the jurisdiction.
func (s *Session) NRT(deforestation, jurisdiction *Raster[float64]) (int, error) {
	v := NewValidator()
	def := v.Binary("deforestation", deforestation)
	mask := v.Binary("jurisdiction", jurisdiction)
	if err := v.Err(); err != nil {
		return 0, err
	}
	return CountNRT(def, mask)
}

// VulnerabilityByRate classifies the fitting period into Config.FitClasses
// classes, class 1 holding the NRT pixels closest to the forest edge.
func (s *Session) VulnerabilityByRate(distance, deforestation, jurisdiction *Raster[float64]) (*Raster[int16], error) {
	v := NewValidator()
	v.Shape(Input("distance", distance))
	def := v.Binary("deforestation", deforestation)
	mask := v.Binary("jurisdiction", jurisdiction)
	if err := v.Err(); err != nil {
		return nil, err
	}
	return NewClassifier(s.Config.TiePolicy, s.options()).ByRate(distance, def, mask, s.Config.FitClasses)
}

// VulnerabilityByNRT classifies a period into Config.FitClasses classes
// with class 1 holding nrt pixels, the NRT of the fitting period.
func (s *Session) VulnerabilityByNRT(distance, jurisdiction *Raster[float64], nrt int) (*Raster[int16], error) {
	v := NewValidator()
	v.Shape(Input("distance", distance))
	mask := v.Binary("jurisdiction", jurisdiction)
	if err := v.Err(); err != nil {
		return nil, err
	}
	return NewClassifier(s.Config.TiePolicy, s.options()).ByNRT(distance, mask, nrt, s.Config.FitClasses)
}

// VulnerabilityByArea classifies a period without deforestation
// observations into Config.AreaClasses equal-area classes.
func (s *Session) VulnerabilityByArea(distance, jurisdiction, forest *Raster[float64]) (*Raster[int16], error) {
	v := NewValidator()
	v.Shape(Input("distance", distance))
	mask := v.Binary("jurisdiction", jurisdiction)
	fmask := v.Binary("forest", forest)
	if err := v.Err(); err != nil {
		return nil, err
	}
	return NewClassifier(s.Config.TiePolicy, s.options()).ByArea(distance, mask, fmask, s.Config.AreaClasses)
}

// Fit builds the relative frequency table of the fitting period together
// with its modeling region and fitted density maps.
func (s *Session) Fit(classes, zones, deforestation *Raster[float64]) (*Fit, error) {
	v := NewValidator()
	v.Shape(Input("classes", classes))
	v.Shape(Input("zones", zones))
	def := v.Binary("deforestation", deforestation)
	if err := v.Err(); err != nil {
		return nil, err
	}
	return FitAllocation(Labels(classes, ClassNoData), Labels(zones, ZoneNoData), def, s.options())
}

// Confirm calibrates table against a period whose deforestation is known.
// The target is the number of deforested pixels inside the modeling region.
func (s *Session) Confirm(table *FrequencyTable, zones, classes, deforestation *Raster[float64]) (*Calibration, error) {
	v := NewValidator()
	v.Shape(Input("zones", zones))
	v.Shape(Input("classes", classes))
	def := v.Binary("deforestation", deforestation)
	if err := v.Err(); err != nil {
		return nil, err
	}

	z := Labels(zones, ZoneNoData)
	c := Labels(classes, ClassNoData)
	observed := 0
	for i, d := range def.Values {
		if d == 1 && z.Valid(i) && c.Valid(i) {
			observed++
		}
	}
	return s.calibrator().Calibrate(table, z, c, PixelTarget(observed))
}

// Predict calibrates table for a future period against an expected
// deforestation of hectaresPerYear over years.
func (s *Session) Predict(table *FrequencyTable, zones, classes *Raster[float64], hectaresPerYear, years float64) (*Calibration, error) {
	if err := CheckShapes(Input("zones", zones), Input("classes", classes)); err != nil {
		return nil, err
	}
	if !(hectaresPerYear >= 0) || math.IsInf(hectaresPerYear, 0) {
		return nil, fmt.Errorf("expected deforestation must be a finite non-negative number, got %g", hectaresPerYear)
	}
	if !(years > 0) || math.IsInf(years, 0) {
		return nil, fmt.Errorf("time span must be a positive number of years, got %g", years)
	}
	return s.calibrator().Calibrate(table, Labels(zones, ZoneNoData), Labels(classes, ClassNoData),
		AreaTarget(hectaresPerYear, years))
}

// Evaluate compares density against observed deforestation over Thiessen
// cells of gridAreaHectares each. 0 uses Config.GridAreaHectares.
func (s *Session) Evaluate(gridAreaHectares float64, jurisdiction, density, deforestation *Raster[float64]) (*Evaluation, error) {
	if gridAreaHectares == 0 {
		gridAreaHectares = s.Config.GridAreaHectares
	}
	v := NewValidator()
	mask := v.Binary("jurisdiction", jurisdiction)
	v.Shape(Input("density", density))
	def := v.Binary("deforestation", deforestation)
	if err := v.Err(); err != nil {
		return nil, err
	}
	return Evaluate(gridAreaHectares*10000, mask, density, def, s.options())
}

// CombineDeforestation builds the reference map of two periods' deforestation
// inside forest.
func (s *Session) CombineDeforestation(forest, a, b *Raster[float64]) (*Raster[uint8], error) {
	v := NewValidator()
	fmask := v.Binary("forest", forest)
	da := v.Binary("deforestation A", a)
	db := v.Binary("deforestation B", b)
	if err := v.Err(); err != nil {
		return nil, err
	}
	return CombineDeforestation(fmask, da, db)
}

func (s *Session) calibrator() *Calibrator {
	return NewCalibrator(s.Config, s.options())
}

// Labels converts a raster of integer codes read as float64 into T. Invalid
// pixels become nodata; valid values are rounded to the nearest integer.
func Labels[T int16 | int32](src *Raster[float64], nodata T) *Raster[T] {
	dst := NewLike(src, nodata)
	for i, v := range src.Values {
		if src.Valid(i) {
			dst.Values[i] = T(math.Round(v))
		}
	}
	return dst
}

package udefarp

import (
	"fmt"
	"log/slog"
)

// TiePolicy decides what happens to pixels with equal distance values that
// straddle a class boundary.
type TiePolicy string

const (
	// TieScanOrder keeps class sizes exact; equal distances are ordered by
	// raster scan order (row-major), so the split is reproducible.
	TieScanOrder TiePolicy = "scan-order"

	// TieGroup never splits a run of equal distances. The boundary moves
	// forward to the end of the run, so class 1 may exceed NRT.
	TieGroup TiePolicy = "group"
)

// CalibrationPolicy decides how the calibration loop rescales zones.
type CalibrationPolicy string

const (
	// CalibrateGlobal applies one ratio, target/predicted, to every zone per
	// iteration. Relative risk ordering between zones is preserved.
	CalibrateGlobal CalibrationPolicy = "global"

	// CalibratePerZone matches each zone to its share of the target, the
	// share being the zone's fraction of the initial prediction.
	CalibratePerZone CalibrationPolicy = "per-zone"
)

// BackfillPolicy decides how frequencies are estimated for bins absent from
// the fitted table.
type BackfillPolicy string

const (
	// BackfillMean uses the unweighted mean of the class's frequency over
	// all fitted zones.
	BackfillMean BackfillPolicy = "mean"

	// BackfillPooled uses Σdeforested / Σtotal of the class over all fitted
	// zones. Tables without counts fall back to the mean.
	BackfillPooled BackfillPolicy = "pooled"
)

// Config controls the engine.
type Config struct {
	FitClasses        int               `yaml:"fit_classes"`        // Classes of the NRT-constrained vulnerability map
	AreaClasses       int               `yaml:"area_classes"`       // Classes of the area-constrained map (one more bucket)
	MaxIterations     int               `yaml:"max_iterations"`     // Calibration iteration budget
	Tolerance         float64           `yaml:"tolerance"`          // Early stop when |predicted-target| <= Tolerance (0 = never)
	TiePolicy         TiePolicy         `yaml:"tie_policy"`         // Boundary tie handling
	CalibrationPolicy CalibrationPolicy `yaml:"calibration_policy"` // Global or per-zone rescaling
	BackfillPolicy    BackfillPolicy    `yaml:"backfill_policy"`    // Estimate for missing bins
	GridAreaHectares  float64           `yaml:"grid_area_ha"`       // Thiessen sampling unit area
}

// DefaultConfig returns the settings used by the reference methodology.
func DefaultConfig() Config {
	return Config{
		FitClasses:        29,
		AreaClasses:       30,
		MaxIterations:     5,
		Tolerance:         0,
		TiePolicy:         TieScanOrder,
		CalibrationPolicy: CalibrateGlobal,
		BackfillPolicy:    BackfillMean,
		GridAreaHectares:  100000,
	}
}

// Validate rejects settings no workflow can run with.
func (c Config) Validate() error {
	if c.FitClasses < 2 {
		return fmt.Errorf("fit_classes must be at least 2, got %d", c.FitClasses)
	}
	if c.AreaClasses < 1 {
		return fmt.Errorf("area_classes must be at least 1, got %d", c.AreaClasses)
	}
	if c.MaxIterations < 0 {
		return fmt.Errorf("max_iterations must not be negative, got %d", c.MaxIterations)
	}
	if c.Tolerance < 0 {
		return fmt.Errorf("tolerance must not be negative, got %g", c.Tolerance)
	}
	if c.GridAreaHectares <= 0 {
		return fmt.Errorf("grid_area_ha must be larger than 0, got %g", c.GridAreaHectares)
	}
	switch c.TiePolicy {
	case TieScanOrder, TieGroup:
	default:
		return fmt.Errorf("unknown tie_policy %q", c.TiePolicy)
	}
	switch c.CalibrationPolicy {
	case CalibrateGlobal, CalibratePerZone:
	default:
		return fmt.Errorf("unknown calibration_policy %q", c.CalibrationPolicy)
	}
	switch c.BackfillPolicy {
	case BackfillMean, BackfillPooled:
	default:
		return fmt.Errorf("unknown backfill_policy %q", c.BackfillPolicy)
	}
	return nil
}

// Options carries the side channels of a single engine call.
type Options struct {
	Logger   *slog.Logger // nil = slog.Default()
	Progress ProgressFunc // nil = no progress reporting
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

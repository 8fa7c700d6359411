package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/alexshd/udefarp"
	"github.com/alexshd/udefarp/internal/tablecsv"
)

// ---------------------------------------------------------------------------
// nrt
// ---------------------------------------------------------------------------

func runNRT(args []string) error {
	fs, c := newFlagSet("nrt")
	deforestation := fs.String("deforestation", "", "binary deforestation map of the fitting period")
	mask := fs.String("mask", "", "binary jurisdiction mask")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := require(fs, usageNRT, map[string]string{
		"deforestation": *deforestation,
		"mask":          *mask,
	}); err != nil {
		return err
	}

	e, err := c.open()
	if err != nil {
		return err
	}
	grids, err := e.readGrids(*deforestation, *mask)
	if err != nil {
		return err
	}
	nrt, err := e.session.NRT(grids[0], grids[1])
	if err != nil {
		return err
	}

	e.settings.SetNRT(nrt)
	if err := e.settings.Save(e.dir); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "NRT: %d pixels (%.2f ha)\n", nrt, float64(nrt)*grids[0].PixelArea()/10000)
	return nil
}

// ---------------------------------------------------------------------------
// classify-rate / classify-area
// ---------------------------------------------------------------------------

func runClassifyRate(args []string) error {
	fs, c := newFlagSet("classify-rate")
	distance := fs.String("distance", "", "distance to forest edge")
	deforestation := fs.String("deforestation", "", "binary deforestation map (omit to reuse the recorded NRT)")
	mask := fs.String("mask", "", "binary jurisdiction mask")
	out := fs.String("out", "", "output vulnerability map")
	classes := fs.Int("classes", 0, "number of classes (default engine.fit_classes)")
	nrt := fs.Int("nrt", 0, "pixels in class 1 (default: counted from -deforestation, else the recorded NRT)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := require(fs, usageClassifyRate, map[string]string{
		"distance": *distance,
		"mask":     *mask,
		"out":      *out,
	}); err != nil {
		return err
	}

	e, err := c.open()
	if err != nil {
		return err
	}
	if *classes > 0 {
		e.session.Config.FitClasses = *classes
	}
	if *nrt == 0 && *deforestation == "" {
		if *nrt, err = e.settings.RecordedNRT(); err != nil {
			return err
		}
		e.logger.Info("using recorded NRT", "nrt", *nrt)
	}

	paths := []string{*distance, *mask}
	if *nrt == 0 {
		paths = append(paths, *deforestation)
	}
	grids, err := e.readGrids(paths...)
	if err != nil {
		return err
	}

	var result *udefarp.Raster[int16]
	err = e.track("classify by rate", func() error {
		var err error
		if *nrt != 0 {
			result, err = e.session.VulnerabilityByNRT(grids[0], grids[1], *nrt)
		} else {
			result, err = e.session.VulnerabilityByRate(grids[0], grids[2], grids[1])
		}
		return err
	})
	if err != nil {
		return err
	}
	if err := writeGrid(e, *out, result); err != nil {
		return err
	}
	return printClassRanges(result, grids[0])
}

func runClassifyArea(args []string) error {
	fs, c := newFlagSet("classify-area")
	distance := fs.String("distance", "", "distance to forest edge")
	mask := fs.String("mask", "", "binary jurisdiction mask")
	forest := fs.String("forest", "", "binary forest mask")
	out := fs.String("out", "", "output vulnerability map")
	classes := fs.Int("classes", 0, "number of classes (default engine.area_classes)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := require(fs, usageClassifyArea, map[string]string{
		"distance": *distance,
		"mask":     *mask,
		"forest":   *forest,
		"out":      *out,
	}); err != nil {
		return err
	}

	e, err := c.open()
	if err != nil {
		return err
	}
	if *classes > 0 {
		e.session.Config.AreaClasses = *classes
	}
	grids, err := e.readGrids(*distance, *mask, *forest)
	if err != nil {
		return err
	}

	var result *udefarp.Raster[int16]
	err = e.track("classify by area", func() error {
		var err error
		result, err = e.session.VulnerabilityByArea(grids[0], grids[1], grids[2])
		return err
	})
	if err != nil {
		return err
	}
	if err := writeGrid(e, *out, result); err != nil {
		return err
	}
	return printClassRanges(result, grids[0])
}

func printClassRanges(classes *udefarp.Raster[int16], distance *udefarp.Raster[float64]) error {
	ranges, err := udefarp.ClassRanges(classes, distance)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%-6s %10s %14s %14s\n", "class", "pixels", "min distance", "max distance")
	for _, r := range ranges {
		fmt.Fprintf(stdout, "%-6d %10d %14.2f %14.2f\n", r.Class, r.Pixels, r.Min, r.Max)
	}
	return nil
}

// ---------------------------------------------------------------------------
// fit
// ---------------------------------------------------------------------------

func runFit(args []string) error {
	fs, c := newFlagSet("fit")
	classes := fs.String("classes", "", "vulnerability map of the fitting period")
	zones := fs.String("zones", "", "administrative divisions")
	deforestation := fs.String("deforestation", "", "binary deforestation map")
	table := fs.String("table", "", "output relative frequency table (.csv)")
	density := fs.String("density", "", "output fitted density map")
	region := fs.String("region", "", "output modeling region map")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := require(fs, usageFit, map[string]string{
		"classes":       *classes,
		"zones":         *zones,
		"deforestation": *deforestation,
		"table":         *table,
		"density":       *density,
	}); err != nil {
		return err
	}

	e, err := c.open()
	if err != nil {
		return err
	}
	grids, err := e.readGrids(*classes, *zones, *deforestation)
	if err != nil {
		return err
	}

	var fit *udefarp.Fit
	err = e.track("fit", func() error {
		var err error
		fit, err = e.session.Fit(grids[0], grids[1], grids[2])
		return err
	})
	if err != nil {
		return err
	}

	if err := tablecsv.WriteFile(e.path(*table), fit.Table); err != nil {
		return err
	}
	if err := writeGrid(e, *density, fit.Density); err != nil {
		return err
	}
	if err := writeGrid(e, *region, fit.ModelingRegion); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%d bins over %d zones and %d classes written to %s\n",
		fit.Table.Len(), len(fit.Table.Zones()), len(fit.Table.Classes()), e.path(*table))
	return nil
}

// ---------------------------------------------------------------------------
// cnf / vp
// ---------------------------------------------------------------------------

// allocationFlags are the flags shared by cnf and vp.
type allocationFlags struct {
	table, classes, zones       *string
	density, region, supplement *string
	maxIterations               *int
}

func addAllocationFlags(fs *flag.FlagSet) allocationFlags {
	return allocationFlags{
		table:         fs.String("table", "", "fitted relative frequency table (.csv)"),
		classes:       fs.String("classes", "", "vulnerability map of the period"),
		zones:         fs.String("zones", "", "administrative divisions of the period"),
		density:       fs.String("density", "", "output adjusted density map"),
		region:        fs.String("region", "", "output modeling region map"),
		supplement:    fs.String("supplementary", "", "output table of estimated bins (.csv)"),
		maxIterations: fs.Int("max-iterations", -1, "adjustment iterations after the first pass (default engine.max_iterations)"),
	}
}

// apply copies flag overrides into the session configuration.
func (af allocationFlags) apply(e *env) {
	if *af.maxIterations >= 0 {
		e.session.Config.MaxIterations = *af.maxIterations
	}
}

func runConfirm(args []string) error {
	fs, c := newFlagSet("cnf")
	af := addAllocationFlags(fs)
	deforestation := fs.String("deforestation", "", "binary deforestation map of the period")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := require(fs, usageConfirm, map[string]string{
		"table":         *af.table,
		"classes":       *af.classes,
		"zones":         *af.zones,
		"deforestation": *deforestation,
		"density":       *af.density,
	}); err != nil {
		return err
	}

	e, err := c.open()
	if err != nil {
		return err
	}
	af.apply(e)
	table, err := tablecsv.ReadFile(e.path(*af.table))
	if err != nil {
		return err
	}
	grids, err := e.readGrids(*af.zones, *af.classes, *deforestation)
	if err != nil {
		return err
	}

	var cal *udefarp.Calibration
	err = e.track("confirm", func() error {
		var err error
		cal, err = e.session.Confirm(table, grids[0], grids[1], grids[2])
		return err
	})
	if err != nil {
		return err
	}
	return writeCalibration(e, af, cal)
}

func runPredict(args []string) error {
	fs, c := newFlagSet("vp")
	af := addAllocationFlags(fs)
	expected := fs.Float64("expected", -1, "expected deforestation in hectares per year")
	years := fs.Float64("years", 0, "length of the period in years")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := require(fs, usagePredict, map[string]string{
		"table":   *af.table,
		"classes": *af.classes,
		"zones":   *af.zones,
		"density": *af.density,
	}); err != nil {
		return err
	}

	if qs := missingPredictionInputs(*expected, *years); len(qs) > 0 {
		answers, err := promptQuestions(qs)
		if err != nil {
			return err
		}
		if err := parsePredictionAnswers(answers, expected, years); err != nil {
			return err
		}
	}

	e, err := c.open()
	if err != nil {
		return err
	}
	af.apply(e)
	table, err := tablecsv.ReadFile(e.path(*af.table))
	if err != nil {
		return err
	}
	grids, err := e.readGrids(*af.zones, *af.classes)
	if err != nil {
		return err
	}

	var cal *udefarp.Calibration
	err = e.track("predict", func() error {
		var err error
		cal, err = e.session.Predict(table, grids[0], grids[1], *expected, *years)
		return err
	})
	if err != nil {
		return err
	}
	return writeCalibration(e, af, cal)
}

// missingPredictionInputs lists the questions for whichever of the expected
// deforestation and the time span were not given as flags.
func missingPredictionInputs(expected, years float64) []question {
	var qs []question
	if expected < 0 {
		qs = append(qs, question{key: "expected", prompt: "Expected deforestation (ha/yr)"})
	}
	if years <= 0 {
		qs = append(qs, question{key: "years", prompt: "Time span (years)"})
	}
	return qs
}

// parsePredictionAnswers overwrites only the values that were asked for.
func parsePredictionAnswers(answers map[string]string, expected, years *float64) error {
	var err error
	if a, ok := answers["expected"]; ok {
		if *expected, err = strconv.ParseFloat(a, 64); err != nil {
			return fmt.Errorf("expected deforestation: %w", err)
		}
	}
	if a, ok := answers["years"]; ok {
		if *years, err = strconv.ParseFloat(a, 64); err != nil {
			return fmt.Errorf("years: %w", err)
		}
	}
	return nil
}

func writeCalibration(e *env, af allocationFlags, cal *udefarp.Calibration) error {
	if err := writeGrid(e, *af.density, cal.Density); err != nil {
		return err
	}
	if err := writeGrid(e, *af.region, cal.ModelingRegion); err != nil {
		return err
	}

	if cal.Supplementary != nil {
		if *af.supplement == "" {
			e.logger.Warn("estimated bins not written; pass -supplementary to keep them",
				"bins", cal.Supplementary.Len())
		} else {
			if err := tablecsv.WriteFile(e.path(*af.supplement), cal.Supplementary); err != nil {
				return err
			}
			e.logger.Info("supplementary table written", "path", e.path(*af.supplement))
		}
	}

	st := cal.State
	fmt.Fprintf(stdout, "iterations: %d\npredicted:  %.4f\ntarget:     %.4f\n",
		st.Iteration, st.PredictedTotal, st.TargetTotal)
	for _, s := range cal.Signals.Warnings() {
		fmt.Fprintf(stdout, "warning: %s\n", s.Message)
	}
	return nil
}

// ---------------------------------------------------------------------------
// evaluate
// ---------------------------------------------------------------------------

func runEvaluate(args []string) error {
	fs, c := newFlagSet("evaluate")
	mask := fs.String("mask", "", "binary jurisdiction mask")
	density := fs.String("density", "", "density map to evaluate")
	deforestation := fs.String("deforestation", "", "observed binary deforestation map")
	gridArea := fs.Float64("grid-area", 0, "Thiessen cell area in hectares (default engine.grid_area_ha)")
	residual := fs.String("residual", "", "output residual map")
	cells := fs.String("cells", "", "output per-cell table (.csv)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := require(fs, usageEvaluate, map[string]string{
		"mask":          *mask,
		"density":       *density,
		"deforestation": *deforestation,
	}); err != nil {
		return err
	}

	e, err := c.open()
	if err != nil {
		return err
	}
	grids, err := e.readGrids(*mask, *density, *deforestation)
	if err != nil {
		return err
	}

	var ev *udefarp.Evaluation
	err = e.track("evaluate", func() error {
		var err error
		ev, err = e.session.Evaluate(*gridArea, grids[0], grids[1], grids[2])
		return err
	})
	if err != nil {
		return err
	}

	if err := writeGrid(e, *residual, ev.Residual); err != nil {
		return err
	}
	if *cells != "" {
		if err := writeCells(e.path(*cells), ev, grids[0].PixelArea()); err != nil {
			return err
		}
	}

	st := ev.Stats
	fmt.Fprintf(stdout, "cells:     %d\nobserved:  %.2f\npredicted: %.2f\n", st.Cells, st.ObservedTotal, st.PredictedTotal)
	fmt.Fprintf(stdout, "MAE:       %.4f\nMedAE:     %.4f (%.2f%%)\nRMSE:      %.4f\nR²:        %.4f\n",
		st.MAE, st.MedianAE, st.MedianAEPercent, st.RMSE, st.RSquared)
	return nil
}

func writeCells(path string, ev *udefarp.Evaluation, pixelArea float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	w.Write([]string{"cell_id", "x", "y", "pixels", "area", "predicted", "observed", "residual"})
	for _, c := range ev.Cells {
		w.Write([]string{
			strconv.Itoa(c.ID),
			strconv.FormatFloat(c.Site.X, 'f', -1, 64),
			strconv.FormatFloat(c.Site.Y, 'f', -1, 64),
			strconv.Itoa(c.Pixels),
			strconv.FormatFloat(c.Area(pixelArea), 'f', -1, 64),
			strconv.FormatFloat(c.Predicted, 'f', -1, 64),
			strconv.FormatFloat(c.Observed, 'f', -1, 64),
			strconv.FormatFloat(c.Residual, 'f', -1, 64),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}

// ---------------------------------------------------------------------------
// combine
// ---------------------------------------------------------------------------

func runCombine(args []string) error {
	fs, c := newFlagSet("combine")
	forest := fs.String("forest", "", "binary forest mask")
	a := fs.String("a", "", "binary deforestation map of period A")
	b := fs.String("b", "", "binary deforestation map of period B")
	out := fs.String("out", "", "output combined map")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := require(fs, usageCombine, map[string]string{
		"forest": *forest,
		"a":      *a,
		"b":      *b,
		"out":    *out,
	}); err != nil {
		return err
	}

	e, err := c.open()
	if err != nil {
		return err
	}
	grids, err := e.readGrids(*forest, *a, *b)
	if err != nil {
		return err
	}
	combined, err := e.session.CombineDeforestation(grids[0], grids[1], grids[2])
	if err != nil {
		return err
	}
	if err := writeGrid(e, *out, combined); err != nil {
		return err
	}

	counts := make(map[uint8]int)
	for _, v := range combined.Values {
		counts[v]++
	}
	for _, code := range []uint8{
		udefarp.CombinedForest, udefarp.CombinedOnlyA, udefarp.CombinedOnlyB,
		udefarp.CombinedBoth, udefarp.BinaryNoData,
	} {
		fmt.Fprintf(stdout, "%3d %-32s %d\n", code, udefarp.CombinedLegend[code], counts[code])
	}
	return nil
}

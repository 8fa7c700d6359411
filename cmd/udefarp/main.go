package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/lmittmann/tint"

	"github.com/alexshd/udefarp"
	"github.com/alexshd/udefarp/internal/ascgrid"
	"github.com/alexshd/udefarp/internal/settings"
)

// command describes a CLI subcommand.
type command struct {
	name  string
	short string
	usage string
	long  string
	run   func(args []string) error
}

// Usage lines, shared by the command table and the commands' own errors.
const (
	usageNRT          = "udefarp nrt -deforestation <asc> -mask <asc>"
	usageClassifyRate = "udefarp classify-rate -distance <asc> -mask <asc> -out <asc> [-deforestation <asc> | -nrt n] [-classes n]"
	usageClassifyArea = "udefarp classify-area -distance <asc> -mask <asc> -forest <asc> -out <asc> [-classes n]"
	usageFit          = "udefarp fit -classes <asc> -zones <asc> -deforestation <asc> -table <csv> -density <asc> [-region <asc>]"
	usageConfirm      = "udefarp cnf -table <csv> -classes <asc> -zones <asc> -deforestation <asc> -density <asc> [-region <asc>] [-supplementary <csv>] [-max-iterations n]"
	usagePredict      = "udefarp vp -table <csv> -classes <asc> -zones <asc> -expected <ha/yr> -years <n> -density <asc> [-region <asc>] [-supplementary <csv>] [-max-iterations n]"
	usageEvaluate     = "udefarp evaluate -mask <asc> -density <asc> -deforestation <asc> [-grid-area ha] [-residual <asc>] [-cells <csv>]"
	usageCombine      = "udefarp combine -forest <asc> -a <asc> -b <asc> -out <asc>"
)

var commands = []command{
	{
		name:  "nrt",
		short: "Count deforested pixels inside the jurisdiction",
		usage: usageNRT,
		long: `Count the pixels deforested during the fitting period inside the
jurisdiction mask (NRT) and record the value in .udefarp/settings.yaml.
`,
		run: runNRT,
	},
	{
		name:  "classify-rate",
		short: "Vulnerability map constrained by NRT",
		usage: usageClassifyRate,
		long: `Rank jurisdiction pixels by distance to the forest edge. Class 1 holds the
NRT closest pixels, classes 2..n split the rest into equal counts.

The NRT is -nrt when given, else counted from -deforestation, else the value
recorded by the nrt command. -classes defaults to engine.fit_classes (29).
`,
		run: runClassifyRate,
	},
	{
		name:  "classify-area",
		short: "Vulnerability map with equal-area classes",
		usage: usageClassifyArea,
		long: `Split forest pixels inside the jurisdiction into n equal-count classes
ordered by distance to the forest edge.

-classes defaults to engine.area_classes (30).
`,
		run: runClassifyArea,
	},
	{
		name:  "fit",
		short: "Relative frequency table of the fitting period",
		usage: usageFit,
		long: `Tabulate deforestation per administrative zone and vulnerability class and
map the resulting relative frequencies back onto the fitting period.
`,
		run: runFit,
	},
	{
		name:  "cnf",
		short: "Allocate a confirmation period against its observed deforestation",
		usage: usageConfirm,
		long: `Map the fitted table onto a new period and rescale it until the density
total matches the deforestation observed in that period.

Zones absent from the fitted table are estimated from jurisdiction-wide
class rates; the estimates are written to -supplementary.

-max-iterations defaults to engine.max_iterations (5).
`,
		run: runConfirm,
	},
	{
		name:  "vp",
		short: "Allocate expected deforestation over a validation or prediction period",
		usage: usagePredict,
		long: `Map the fitted table onto a new period and rescale it until the density
total matches expected × years hectares.

Missing -expected or -years are prompted for interactively.
-max-iterations defaults to engine.max_iterations (5).
`,
		run: runPredict,
	},
	{
		name:  "evaluate",
		short: "Compare density with observed deforestation over Thiessen cells",
		usage: usageEvaluate,
		long: `Partition the jurisdiction into Thiessen cells of roughly -grid-area hectares
and report predicted against observed deforestation per cell.

-grid-area defaults to engine.grid_area_ha (100000).
`,
		run: runEvaluate,
	},
	{
		name:  "combine",
		short: "Reference map of two periods' deforestation",
		usage: usageCombine,
		long: `Merge two binary deforestation maps inside the forest mask:
0 forest, 1 period A only, 2 period B only, 3 both, 255 outside forest.
`,
		run: runCombine,
	},
}

// stdout receives command results; logs go to stderr.
var stdout io.Writer = os.Stdout

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "udefarp: deforestation risk allocation\n\n")
	fmt.Fprintf(w, "Usage:\n  udefarp <command> [flags]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-14s %s\n", cmd.name, cmd.short)
	}
	fmt.Fprintf(w, "\nCommon flags:\n")
	fmt.Fprintf(w, "  -dir <path>      working directory; relative paths resolve against it (default .)\n")
	fmt.Fprintf(w, "  -v               debug logging\n")
	fmt.Fprintf(w, "  -progress <mode> bar, log or none (default log)\n")
	fmt.Fprintf(w, "\nRun 'udefarp help <command>' for details on a specific command.\n")
}

func printCommandHelp(w io.Writer, name string) {
	for _, cmd := range commands {
		if cmd.name == name {
			fmt.Fprintf(w, "Usage: %s\n\n%s", cmd.usage, cmd.long)
			return
		}
	}
	fmt.Fprintf(w, "udefarp: unknown command %q\n\nRun 'udefarp help' for usage.\n", name)
}

func dispatch(args []string) error {
	if len(args) == 0 || args[0] == "--help" || args[0] == "-h" {
		printUsage(stdout)
		return nil
	}
	if args[0] == "help" {
		if len(args) >= 2 {
			printCommandHelp(stdout, args[1])
		} else {
			printUsage(stdout)
		}
		return nil
	}
	for _, cmd := range commands {
		if cmd.name == args[0] {
			return cmd.run(args[1:])
		}
	}
	return fmt.Errorf("unknown command %q\n\nRun 'udefarp help' for usage.", args[0])
}

// ---------------------------------------------------------------------------
// shared flags and environment
// ---------------------------------------------------------------------------

// common holds the flags every command accepts.
type common struct {
	dir      string
	verbose  bool
	progress string
}

func newFlagSet(name string) (*flag.FlagSet, *common) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	c := &common{}
	fs.StringVar(&c.dir, "dir", ".", "working directory")
	fs.BoolVar(&c.verbose, "v", false, "debug logging")
	fs.StringVar(&c.progress, "progress", "log", "progress display: bar, log or none")
	return fs, c
}

// env is the resolved state of one command invocation.
type env struct {
	dir      string
	settings *settings.Settings
	logger   *slog.Logger
	session  *udefarp.Session
	progress string
}

func (c *common) open() (*env, error) {
	switch c.progress {
	case "bar", "log", "none":
	default:
		return nil, fmt.Errorf("unknown -progress %q (want bar, log or none)", c.progress)
	}

	s, err := settings.Load(c.dir)
	if err != nil {
		return nil, err
	}
	level, err := s.Level()
	if err != nil {
		return nil, err
	}
	if c.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05",
	}))

	session, err := udefarp.NewSession(s.Engine, logger)
	if err != nil {
		return nil, err
	}
	return &env{
		dir:      c.dir,
		settings: s,
		logger:   logger,
		session:  session,
		progress: c.progress,
	}, nil
}

// path resolves p against the working directory.
func (e *env) path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(e.dir, p)
}

func (e *env) readGrid(p string) (*udefarp.Raster[float64], error) {
	return ascgrid.ReadFile(e.path(p))
}

func writeGrid[T udefarp.Number](e *env, p string, r *udefarp.Raster[T]) error {
	if p == "" {
		return nil
	}
	if err := ascgrid.WriteFile(e.path(p), r); err != nil {
		return err
	}
	e.logger.Info("raster written", "path", e.path(p))
	return nil
}

// readGrids reads named grids in order and stops at the first failure.
func (e *env) readGrids(paths ...string) ([]*udefarp.Raster[float64], error) {
	out := make([]*udefarp.Raster[float64], len(paths))
	for i, p := range paths {
		r, err := e.readGrid(p)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

// require returns a usage error naming every empty flag.
func require(fs *flag.FlagSet, usage string, flags map[string]string) error {
	var missing []string
	fs.VisitAll(func(f *flag.Flag) {
		if v, ok := flags[f.Name]; ok && v == "" {
			missing = append(missing, "-"+f.Name)
		}
	})
	if len(missing) > 0 {
		return fmt.Errorf("missing %s\nusage: %s", strings.Join(missing, ", "), usage)
	}
	return nil
}

func main() {
	if err := dispatch(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "udefarp: %v\n", err)
		os.Exit(1)
	}
}

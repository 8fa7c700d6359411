package udefarp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// SignalKind classifies a non-fatal condition reported next to a result.
type SignalKind string

const (
	SignalUnresolvedZones SignalKind = "UNRESOLVED_ZONES" // Zones absent from the fitted table, backfilled
	SignalEstimatedBins   SignalKind = "ESTIMATED_BINS"   // Known zones with classes never seen while fitting
	SignalIterationBudget SignalKind = "ITERATION_BUDGET" // Calibration stopped at max iterations
	SignalConverged       SignalKind = "CONVERGED"        // Calibration reached the tolerance early
	SignalUnreachable     SignalKind = "TARGET_UNREACHABLE"
)

// Signal is a warning or notice carried alongside a complete result.
type Signal struct {
	Kind    SignalKind
	Level   slog.Level
	Message string
	Zones   []int32 // Affected zone IDs, ascending
}

func (s Signal) String() string {
	return fmt.Sprintf("%s: %s", s.Kind, s.Message)
}

// Signals is the ordered list of conditions raised by one workflow call.
type Signals []Signal

// Has reports whether a signal of the given kind was raised.
func (ss Signals) Has(kind SignalKind) bool {
	_, ok := ss.Find(kind)
	return ok
}

// Find returns the first signal of the given kind.
func (ss Signals) Find(kind SignalKind) (Signal, bool) {
	for _, s := range ss {
		if s.Kind == kind {
			return s, true
		}
	}
	return Signal{}, false
}

// Warnings returns the signals at warn level or above.
func (ss Signals) Warnings() Signals {
	var out Signals
	for _, s := range ss {
		if s.Level >= slog.LevelWarn {
			out = append(out, s)
		}
	}
	return out
}

// Log writes every signal to logger at its own level.
func (ss Signals) Log(logger *slog.Logger) {
	for _, s := range ss {
		attrs := []any{"kind", string(s.Kind)}
		if len(s.Zones) > 0 {
			attrs = append(attrs, "zones", joinZones(s.Zones))
		}
		logger.Log(context.Background(), s.Level, s.Message, attrs...)
	}
}

func joinZones(zones []int32) string {
	parts := make([]string, len(zones))
	for i, z := range zones {
		parts[i] = fmt.Sprint(z)
	}
	return strings.Join(parts, ",")
}

package udefarp

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

// TestSignals_Queries verifies lookup and level filtering.
func TestSignals_Queries(t *testing.T) {
	ss := Signals{
		{Kind: SignalEstimatedBins, Level: slog.LevelInfo, Message: "estimated"},
		{Kind: SignalUnresolvedZones, Level: slog.LevelWarn, Message: "missing", Zones: []int32{4, 9}},
	}

	if !ss.Has(SignalUnresolvedZones) || ss.Has(SignalConverged) {
		t.Error("Has mismatch")
	}
	s, ok := ss.Find(SignalUnresolvedZones)
	if !ok || s.String() != "UNRESOLVED_ZONES: missing" {
		t.Errorf("Find = %q, %v", s, ok)
	}
	if w := ss.Warnings(); len(w) != 1 || w[0].Kind != SignalUnresolvedZones {
		t.Errorf("Warnings = %v", w)
	}
}

// TestSignals_Log verifies each signal is logged at its level with zones.
func TestSignals_Log(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	Signals{
		{Kind: SignalConverged, Level: slog.LevelInfo, Message: "converged"},
		{Kind: SignalUnresolvedZones, Level: slog.LevelWarn, Message: "missing", Zones: []int32{4, 9}},
	}.Log(logger)

	out := buf.String()
	if strings.Contains(out, "converged") {
		t.Error("info signal logged below the handler level")
	}
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "zones=4,9") {
		t.Errorf("log output = %q", out)
	}
}

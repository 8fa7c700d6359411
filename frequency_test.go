package udefarp

import (
	"errors"
	"testing"
)

// TestBuildFrequencyTable verifies counts, ordering and skipped nodata.
func TestBuildFrequencyTable(t *testing.T) {
	classes := grid[int16](2, 3,
		1, 1, 2,
		1, 2, -1)
	classes.NoData, classes.HasNoData = ClassNoData, true
	zones := grid[int32](2, 3,
		7, 7, 7,
		3, 3, 3)
	def := grid[uint8](2, 3,
		1, 0, 1,
		1, 0, 1)

	table, err := BuildFrequencyTable(classes, zones, def, Options{})
	if err != nil {
		t.Fatal(err)
	}

	want := []FrequencyEntry{
		{Zone: 3, Class: 1, Frequency: 1, Deforested: 1, Total: 1},
		{Zone: 3, Class: 2, Frequency: 0, Deforested: 0, Total: 1},
		{Zone: 7, Class: 1, Frequency: 0.5, Deforested: 1, Total: 2},
		{Zone: 7, Class: 2, Frequency: 1, Deforested: 1, Total: 1},
	}
	got := table.Entries()
	if len(got) != len(want) {
		t.Fatalf("entries = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	AssertFrequencyBounded(t, table)

	if zs := table.Zones(); len(zs) != 2 || zs[0] != 3 || zs[1] != 7 {
		t.Errorf("Zones() = %v", zs)
	}
	if !table.HasZone(7) || table.HasZone(5) {
		t.Error("HasZone mismatch")
	}
	if e, ok := table.Lookup(7, 1); !ok || e.Frequency != 0.5 {
		t.Errorf("Lookup(7,1) = %+v, %v", e, ok)
	}
}

// TestBuildFrequencyTable_Empty verifies a table needs at least one bin.
func TestBuildFrequencyTable_Empty(t *testing.T) {
	classes := filled[int16](2, 2, ClassNoData)
	classes.NoData, classes.HasNoData = ClassNoData, true
	_, err := BuildFrequencyTable(classes, filled[int32](2, 2, 1), NewRaster[uint8](2, 2, 30), Options{})
	if !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("got %v, want ErrEmptyInput", err)
	}
}

// TestNewFrequencyTable_Validation verifies range, count and duplicate checks.
func TestNewFrequencyTable_Validation(t *testing.T) {
	tests := []struct {
		name    string
		entries []FrequencyEntry
	}{
		{"above one", []FrequencyEntry{{Zone: 1, Class: 1, Frequency: 1.5}}},
		{"negative", []FrequencyEntry{{Zone: 1, Class: 1, Frequency: -0.1}}},
		{"counts", []FrequencyEntry{{Zone: 1, Class: 1, Frequency: 0.5, Deforested: 3, Total: 2}}},
		{"duplicate", []FrequencyEntry{
			{Zone: 1, Class: 1, Frequency: 0.5},
			{Zone: 1, Class: 1, Frequency: 0.2},
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewFrequencyTable(tc.entries); err == nil {
				t.Fatal("expected error")
			} else {
				t.Logf("✓ %v", err)
			}
		})
	}
}

// TestClassRates verifies mean and pooled estimates.
func TestClassRates(t *testing.T) {
	table, err := NewFrequencyTable([]FrequencyEntry{
		{Zone: 1, Class: 1, Frequency: 0.5, Deforested: 1, Total: 2},
		{Zone: 2, Class: 1, Frequency: 0.1, Deforested: 1, Total: 10},
		{Zone: 3, Class: 1, Frequency: 0.9, Estimated: true},
		{Zone: 1, Class: 2, Frequency: 0.2},
	})
	if err != nil {
		t.Fatal(err)
	}

	mean := table.ClassRates(BackfillMean)
	if !almostEqual(mean[1], 0.3, 1e-12) || mean[2] != 0.2 {
		t.Errorf("mean rates = %v", mean)
	}

	pooled := table.ClassRates(BackfillPooled)
	if !almostEqual(pooled[1], 2.0/12, 1e-12) {
		t.Errorf("pooled class 1 = %g, want %g", pooled[1], 2.0/12)
	}
	if pooled[2] != 0.2 {
		t.Errorf("class without counts should fall back to the mean, got %g", pooled[2])
	}
}

// TestMerge verifies the receiver wins on overlapping bins.
func TestMerge(t *testing.T) {
	a, _ := NewFrequencyTable([]FrequencyEntry{{Zone: 2, Class: 1, Frequency: 0.4}})
	b, _ := NewFrequencyTable([]FrequencyEntry{
		{Zone: 2, Class: 1, Frequency: 0.9, Estimated: true},
		{Zone: 1, Class: 1, Frequency: 0.3, Estimated: true},
	})

	m := a.Merge(b)
	if m.Len() != 2 {
		t.Fatalf("merged = %+v", m.Entries())
	}
	if e := m.Entries()[0]; e.Zone != 1 || !e.Estimated {
		t.Errorf("first entry = %+v, want zone 1 estimate", e)
	}
	if e, _ := m.Lookup(2, 1); e.Frequency != 0.4 {
		t.Errorf("zone 2 = %+v, want fitted 0.4", e)
	}
	if a.Merge(nil).Len() != 1 {
		t.Error("merge with nil should copy")
	}
}

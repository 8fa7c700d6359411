package udefarp

import (
	"fmt"
	"sort"
)

// FrequencyEntry is the empirical deforestation rate of one
// (zone, class) bin.
type FrequencyEntry struct {
	Zone       int32
	Class      int16
	Frequency  float64 // Deforested / Total, in [0, 1]
	Deforested int     // 0 with Total 0 when the table carries no counts
	Total      int
	Estimated  bool // Backfilled from the jurisdiction-wide class rate
}

type binKey struct {
	zone  int32
	class int16
}

// FrequencyTable holds entries ordered by zone, then class. The order is
// part of the contract: serialised tables diff cleanly between runs.
type FrequencyTable struct {
	entries []FrequencyEntry
	index   map[binKey]int
}

// NewFrequencyTable validates and orders entries. Frequencies must lie in
// [0, 1] and each (zone, class) may appear once.
func NewFrequencyTable(entries []FrequencyEntry) (*FrequencyTable, error) {
	sorted := make([]FrequencyEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Zone != sorted[j].Zone {
			return sorted[i].Zone < sorted[j].Zone
		}
		return sorted[i].Class < sorted[j].Class
	})

	t := &FrequencyTable{
		entries: sorted,
		index:   make(map[binKey]int, len(sorted)),
	}
	for i, e := range sorted {
		if e.Frequency < 0 || e.Frequency > 1 || e.Frequency != e.Frequency {
			return nil, fmt.Errorf("zone %d class %d: relative frequency %g outside [0,1]",
				e.Zone, e.Class, e.Frequency)
		}
		if e.Total < 0 || e.Deforested < 0 || e.Deforested > e.Total {
			return nil, fmt.Errorf("zone %d class %d: invalid counts %d/%d",
				e.Zone, e.Class, e.Deforested, e.Total)
		}
		k := binKey{e.Zone, e.Class}
		if _, dup := t.index[k]; dup {
			return nil, fmt.Errorf("zone %d class %d: duplicate entry", e.Zone, e.Class)
		}
		t.index[k] = i
	}
	return t, nil
}

// BuildFrequencyTable cross-tabulates a class map against zones and a binary
// deforestation map. Only bins with at least one pixel are emitted.
func BuildFrequencyTable(classes *Raster[int16], zones *Raster[int32], deforestation *Raster[uint8], opts Options) (*FrequencyTable, error) {
	prog := newProgress(opts.Progress)
	prog.report(0)

	if err := CheckShapes(
		Input("classes", classes),
		Input("zones", zones),
		Input("deforestation", deforestation),
	); err != nil {
		return nil, err
	}

	type counts struct{ deforested, total int }
	bins := make(map[binKey]*counts)
	for i := range classes.Values {
		if !classes.Valid(i) || !zones.Valid(i) {
			continue
		}
		k := binKey{zones.Values[i], classes.Values[i]}
		c, ok := bins[k]
		if !ok {
			c = &counts{}
			bins[k] = c
		}
		c.total++
		if deforestation.Values[i] == 1 {
			c.deforested++
		}
	}
	prog.report(80)

	if len(bins) == 0 {
		return nil, fmt.Errorf("%w: no pixel has both a zone and a class", ErrEmptyInput)
	}

	entries := make([]FrequencyEntry, 0, len(bins))
	for k, c := range bins {
		entries = append(entries, FrequencyEntry{
			Zone:       k.zone,
			Class:      k.class,
			Frequency:  float64(c.deforested) / float64(c.total),
			Deforested: c.deforested,
			Total:      c.total,
		})
	}

	t, err := NewFrequencyTable(entries)
	if err != nil {
		return nil, err
	}
	prog.report(100)

	opts.logger().Info("relative frequency table built",
		"bins", t.Len(),
		"zones", len(t.Zones()),
		"classes", len(t.Classes()))

	return t, nil
}

// Len returns the number of bins.
func (t *FrequencyTable) Len() int {
	return len(t.entries)
}

// Entries returns a copy of the entries in zone, class order.
func (t *FrequencyTable) Entries() []FrequencyEntry {
	out := make([]FrequencyEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Lookup returns the entry of a bin.
func (t *FrequencyTable) Lookup(zone int32, class int16) (FrequencyEntry, bool) {
	i, ok := t.index[binKey{zone, class}]
	if !ok {
		return FrequencyEntry{}, false
	}
	return t.entries[i], true
}

// HasZone reports whether any bin belongs to zone.
func (t *FrequencyTable) HasZone(zone int32) bool {
	i := sort.Search(len(t.entries), func(i int) bool {
		return t.entries[i].Zone >= zone
	})
	return i < len(t.entries) && t.entries[i].Zone == zone
}

// Zones returns the distinct zone IDs in ascending order.
func (t *FrequencyTable) Zones() []int32 {
	var zones []int32
	for i, e := range t.entries {
		if i == 0 || e.Zone != t.entries[i-1].Zone {
			zones = append(zones, e.Zone)
		}
	}
	return zones
}

// Classes returns the distinct class IDs in ascending order.
func (t *FrequencyTable) Classes() []int16 {
	seen := make(map[int16]bool)
	var classes []int16
	for _, e := range t.entries {
		if !seen[e.Class] {
			seen[e.Class] = true
			classes = append(classes, e.Class)
		}
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })
	return classes
}

// ClassRates returns the jurisdiction-wide frequency of every class in the
// table under the given policy. Backfilled entries do not contribute.
func (t *FrequencyTable) ClassRates(policy BackfillPolicy) map[int16]float64 {
	type acc struct {
		sum               float64
		n                 int
		deforested, total int
		missingCounts     bool
	}
	byClass := make(map[int16]*acc)
	for _, e := range t.entries {
		if e.Estimated {
			continue
		}
		a, ok := byClass[e.Class]
		if !ok {
			a = &acc{}
			byClass[e.Class] = a
		}
		a.sum += e.Frequency
		a.n++
		a.deforested += e.Deforested
		a.total += e.Total
		if e.Total == 0 {
			a.missingCounts = true
		}
	}

	rates := make(map[int16]float64, len(byClass))
	for class, a := range byClass {
		if policy == BackfillPooled && !a.missingCounts && a.total > 0 {
			rates[class] = float64(a.deforested) / float64(a.total)
			continue
		}
		rates[class] = a.sum / float64(a.n)
	}
	return rates
}

// Merge returns a table holding t's entries plus the entries of other whose
// bins t does not already have.
func (t *FrequencyTable) Merge(other *FrequencyTable) *FrequencyTable {
	entries := t.Entries()
	if other != nil {
		for _, e := range other.entries {
			if _, ok := t.index[binKey{e.Zone, e.Class}]; !ok {
				entries = append(entries, e)
			}
		}
	}
	merged, err := NewFrequencyTable(entries)
	if err != nil {
		// Both inputs were validated and duplicates are skipped above.
		panic(fmt.Sprintf("udefarp: merge of valid tables failed: %v", err))
	}
	return merged
}

// Package tablecsv exchanges relative frequency tables as CSV.
//
// Columns:
//
//	zone_id,class_id,relative_frequency,deforested,total,estimated
//
// Only the first three are required when reading; tables produced by other
// tools usually carry no counts.
package tablecsv

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/alexshd/udefarp"
)

// Header is the column row written by Write.
var Header = []string{"zone_id", "class_id", "relative_frequency", "deforested", "total", "estimated"}

// Write encodes t in zone, class order.
func Write(w io.Writer, t *udefarp.FrequencyTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, e := range t.Entries() {
		rec := []string{
			strconv.FormatInt(int64(e.Zone), 10),
			strconv.FormatInt(int64(e.Class), 10),
			strconv.FormatFloat(e.Frequency, 'g', -1, 64),
			strconv.Itoa(e.Deforested),
			strconv.Itoa(e.Total),
			strconv.FormatBool(e.Estimated),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Read decodes a table. Columns are located by header name.
func Read(r io.Reader) (*udefarp.FrequencyTable, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	head, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(head))
	for i, name := range head {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range Header[:3] {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	var entries []udefarp.FrequencyEntry
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		e, err := parseRecord(rec, col)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		entries = append(entries, e)
	}
	return udefarp.NewFrequencyTable(entries)
}

func parseRecord(rec []string, col map[string]int) (udefarp.FrequencyEntry, error) {
	var e udefarp.FrequencyEntry
	field := func(name string) (string, bool) {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return "", false
		}
		return strings.TrimSpace(rec[i]), true
	}

	zone, _ := field("zone_id")
	z, err := strconv.ParseInt(zone, 10, 32)
	if err != nil {
		return e, fmt.Errorf("zone_id: %w", err)
	}
	class, _ := field("class_id")
	c, err := strconv.ParseInt(class, 10, 16)
	if err != nil {
		return e, fmt.Errorf("class_id: %w", err)
	}
	freq, _ := field("relative_frequency")
	f, err := strconv.ParseFloat(freq, 64)
	if err != nil {
		return e, fmt.Errorf("relative_frequency: %w", err)
	}
	e.Zone, e.Class, e.Frequency = int32(z), int16(c), f

	if v, ok := field("deforested"); ok && v != "" {
		if e.Deforested, err = strconv.Atoi(v); err != nil {
			return e, fmt.Errorf("deforested: %w", err)
		}
	}
	if v, ok := field("total"); ok && v != "" {
		if e.Total, err = strconv.Atoi(v); err != nil {
			return e, fmt.Errorf("total: %w", err)
		}
	}
	if v, ok := field("estimated"); ok && v != "" {
		if e.Estimated, err = strconv.ParseBool(v); err != nil {
			return e, fmt.Errorf("estimated: %w", err)
		}
	}
	return e, nil
}

// ReadFile reads the table at path.
func ReadFile(path string) (*udefarp.FrequencyTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// WriteFile writes t to path.
func WriteFile(path string, t *udefarp.FrequencyTable) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, t); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}

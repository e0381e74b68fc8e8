package builtin

import (
	"fmt"
	"strings"

	"bucketetl/internal/dataset"
)

// DeDup collapses rows sharing the same business key within one dataset and
// chooses a winner according to Policy:
//
//   - "keep-first"   : keep the earliest occurrence
//   - "keep-last"    : keep the latest occurrence (default)
//   - "most-complete": keep the row with the most non-NULL cells; ties break
//     by keep-last
//
// Winners stay at their original positions, so row order is preserved. Rows
// with a NULL key cell are never treated as duplicates.
type DeDup struct {
	Keys   []string `json:"keys" yaml:"keys"`
	Policy string   `json:"policy" yaml:"policy"`
}

func (d DeDup) Apply(ds *dataset.Dataset) error {
	if len(d.Keys) == 0 || ds.Len() == 0 {
		return nil
	}
	for _, k := range d.Keys {
		if ds.Schema().Index(k) < 0 {
			return fmt.Errorf("dedup: unknown key column %q", k)
		}
	}
	policy := strings.ToLower(strings.TrimSpace(d.Policy))
	if policy == "" {
		policy = "keep-last"
	}
	switch policy {
	case "keep-first", "keep-last", "most-complete":
	default:
		return fmt.Errorf("dedup: unknown policy %q", d.Policy)
	}

	type slot struct{ index, score int }
	winners := make(map[string]slot, ds.Len())
	keys := make([]string, ds.Len())
	for i, r := range ds.Rows() {
		key, ok := d.keyOf(r)
		if !ok {
			continue
		}
		keys[i] = key
		s := slot{index: i, score: completeness(r)}
		prev, seen := winners[key]
		switch {
		case !seen:
			winners[key] = s
		case policy == "keep-last":
			winners[key] = s
		case policy == "most-complete" && s.score >= prev.score:
			winners[key] = s
		}
	}

	i := -1
	return ds.Retain(func(r dataset.Row) (bool, error) {
		i++
		if keys[i] == "" {
			return true, nil
		}
		return winners[keys[i]].index == i, nil
	})
}

func (d DeDup) keyOf(r dataset.Row) (string, bool) {
	var b strings.Builder
	b.WriteByte('k')
	for _, k := range d.Keys {
		c, _ := r.Get(k)
		if c.Null {
			return "", false
		}
		b.WriteByte('\x1f')
		b.WriteString(c.String())
	}
	return b.String(), true
}

func completeness(r dataset.Row) int {
	n := 0
	for _, c := range r.Cells() {
		if !c.Null {
			n++
		}
	}
	return n
}

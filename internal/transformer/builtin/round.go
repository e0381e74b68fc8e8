// Package builtin contains the reusable dataset transforms.
package builtin

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"bucketetl/internal/dataset"
	"bucketetl/internal/schema"
)

// Round rounds every double column to Places decimal places.
//
// Ties round half away from zero on the value's shortest decimal form, the
// digits a reader sees in the source file, so 15824.005 becomes 15824.01 and
// 2.675 becomes 2.68 even though neither is exactly representable. NULL,
// NaN and infinities are left unchanged.
type Round struct {
	Places int
}

func (r Round) Apply(ds *dataset.Dataset) error {
	for _, col := range ds.Schema().Columns {
		if col.Type != schema.Double {
			continue
		}
		err := ds.MapColumn(col.Name, func(c dataset.Cell) (dataset.Cell, error) {
			if c.Null {
				return c, nil
			}
			v, ok := c.Float64()
			if !ok {
				return c, fmt.Errorf("cannot round non-numeric %s value %q", c.Type, c.String())
			}
			return dataset.Double(RoundHalfAway(v, r.Places)), nil
		})
		if err != nil {
			return fmt.Errorf("round: %w", err)
		}
	}
	return nil
}

// RoundHalfAway rounds v to places decimal digits, resolving ties away from
// zero on the shortest decimal representation of v.
func RoundHalfAway(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	if places < 0 {
		places = 0
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) <= places {
		return v
	}

	digits := []byte(whole + frac[:places])
	if frac[places] >= '5' {
		i := len(digits) - 1
		for ; i >= 0; i-- {
			if digits[i] == '9' {
				digits[i] = '0'
				continue
			}
			digits[i]++
			break
		}
		if i < 0 {
			digits = append([]byte{'1'}, digits...)
		}
	}

	out := string(digits[:len(digits)-places])
	if places > 0 {
		out += "." + string(digits[len(digits)-places:])
	}
	if neg {
		out = "-" + out
	}
	r, err := strconv.ParseFloat(out, 64)
	if err != nil || r == 0 {
		// r == 0 also drops the sign of a negative value rounded to zero.
		return 0
	}
	return r
}

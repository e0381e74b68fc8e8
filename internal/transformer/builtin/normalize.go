package builtin

import (
	"strings"

	"bucketetl/internal/dataset"
	"bucketetl/internal/schema"
)

// Normalize trims string cells and repairs the "Â" plus no-break space pair
// left behind when a UTF-8 no-break space was decoded as Latin-1. Cells that
// end up empty become NULL.
type Normalize struct{}

func (Normalize) Apply(ds *dataset.Dataset) error {
	for _, col := range ds.Schema().Columns {
		if col.Type != schema.String {
			continue
		}
		err := ds.MapColumn(col.Name, func(c dataset.Cell) (dataset.Cell, error) {
			s, ok := c.Text()
			if !ok {
				return c, nil
			}
			s = strings.TrimSpace(strings.ReplaceAll(s, "\u00c2\u00a0", " "))
			if s == "" {
				return dataset.Null(schema.String), nil
			}
			return dataset.Str(s), nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

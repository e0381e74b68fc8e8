package builtin

import (
	"fmt"

	"bucketetl/internal/dataset"
)

// Rename renames column From to To. A dataset without From is left as is, so
// applying the rename twice is the same as applying it once. Renaming onto an
// existing column is an error.
type Rename struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

func (r Rename) Apply(ds *dataset.Dataset) error {
	if _, err := ds.Rename(r.From, r.To); err != nil {
		return fmt.Errorf("rename %s to %s: %w", r.From, r.To, err)
	}
	return nil
}

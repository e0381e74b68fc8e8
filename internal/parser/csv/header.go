package csv

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// utf8BOM is stripped from the first header cell if present.
const utf8BOM = "\uFEFF"

// CanonicalName turns a raw header cell into a column name: lowercase ASCII
// letters, digits and single underscores. Accents are removed, and spaces,
// dashes and dots become underscores. Any other rune is dropped.
func CanonicalName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	prevUnderscore := false
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
		case r == '_' || r == ' ' || r == '-' || r == '.':
			if !prevUnderscore {
				b.WriteRune('_')
				prevUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

// normalizeHeaders produces column names from the raw header row. HeaderMap
// entries (keyed by the trimmed raw cell) win over canonicalization. Empty
// results become col_N and duplicates are rejected.
func normalizeHeaders(h []string, headerMap map[string]string) ([]string, error) {
	res := make([]string, len(h))
	seen := make(map[string]int, len(h))
	for i, col := range h {
		c := strings.TrimSpace(col)
		if i == 0 {
			c = strings.TrimSpace(strings.TrimPrefix(c, utf8BOM))
		}
		name, ok := headerMap[c]
		if !ok {
			name = CanonicalName(c)
		}
		if name == "" {
			name = fmt.Sprintf("col_%d", i)
		}
		if j, dup := seen[name]; dup {
			return nil, fmt.Errorf("header columns %d and %d both normalize to %q", j+1, i+1, name)
		}
		seen[name] = i
		res[i] = name
	}
	return res, nil
}

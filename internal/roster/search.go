package roster

import (
	"strings"

	"github.com/example/missing-persons/internal/domain/person"
)

// Filter returns the records where query is a case-insensitive substring of
// the name, last seen, description or contact. An empty query returns records
// unchanged. Order is preserved.
func Filter(records []person.Record, query string) []person.Record {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return records
	}

	out := make([]person.Record, 0)
	for _, rec := range records {
		if matches(rec, q) {
			out = append(out, rec)
		}
	}
	return out
}

func matches(rec person.Record, q string) bool {
	for _, field := range []string{rec.Name, rec.LastSeen, rec.Description, rec.Contact} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

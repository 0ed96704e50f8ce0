package person

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	StatusActive Status = "active"
	StatusFound  Status = "found"

	MaxAge = 120
)

// Status is the lifecycle state of a record. The only transition is active -> found.
type Status string

// Record is one missing-person entry as persisted by the remote store.
type Record struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Age          int        `json:"age"`
	LastSeen     string     `json:"last_seen"`
	Description  string     `json:"description"`
	Contact      string     `json:"contact"`
	ImageURL     string     `json:"image_url"`
	Status       Status     `json:"status"`
	DateReported time.Time  `json:"date_reported"`
	DateFound    *time.Time `json:"date_found,omitempty"`
}

// Candidate is an unvalidated submission. Age is kept as the raw form value.
type Candidate struct {
	Name        string `json:"name" validate:"required"`
	Age         string `json:"age" validate:"required"`
	LastSeen    string `json:"lastSeen" validate:"required"`
	Description string `json:"description" validate:"required"`
	Contact     string `json:"contact" validate:"required"`
	ImageURL    string `json:"imageUrl"`
}

var validate = validator.New()

// fieldOrder fixes which field is reported when several are invalid.
var fieldOrder = []string{"name", "age", "lastSeen", "description", "contact"}

var structFields = map[string]string{
	"Name":        "name",
	"Age":         "age",
	"LastSeen":    "lastSeen",
	"Description": "description",
	"Contact":     "contact",
}

// ValidateFields checks everything except the image locator, so bad input is
// rejected before any upload happens.
func (c Candidate) ValidateFields() error {
	trimmed := c.trimmed()
	failed := map[string]bool{}
	if err := validate.Struct(trimmed); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			failed[structFields[fe.StructField()]] = true
		}
	}
	if !failed["age"] {
		if _, err := parseAge(trimmed.Age); err != nil {
			failed["age"] = true
		}
	}
	for _, field := range fieldOrder {
		if failed[field] {
			return &ValidationError{Field: field}
		}
	}
	return nil
}

// Validate checks the full candidate and returns the record to hand to the store.
func (c Candidate) Validate() (*Record, error) {
	if err := c.ValidateFields(); err != nil {
		return nil, err
	}
	trimmed := c.trimmed()
	if trimmed.ImageURL == "" {
		return nil, &ValidationError{Field: "image"}
	}
	age, _ := parseAge(trimmed.Age)
	return &Record{
		Name:        trimmed.Name,
		Age:         age,
		LastSeen:    trimmed.LastSeen,
		Description: trimmed.Description,
		Contact:     trimmed.Contact,
		ImageURL:    trimmed.ImageURL,
		Status:      StatusActive,
	}, nil
}

func (c Candidate) trimmed() Candidate {
	return Candidate{
		Name:        strings.TrimSpace(c.Name),
		Age:         strings.TrimSpace(c.Age),
		LastSeen:    strings.TrimSpace(c.LastSeen),
		Description: strings.TrimSpace(c.Description),
		Contact:     strings.TrimSpace(c.Contact),
		ImageURL:    strings.TrimSpace(c.ImageURL),
	}
}

func parseAge(raw string) (int, error) {
	age, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if age < 0 || age > MaxAge {
		return 0, errors.New("age out of range")
	}
	return age, nil
}

// IsFound reports whether the record has reached its terminal state.
func (r Record) IsFound() bool {
	return r.Status == StatusFound
}

// MarkFound returns a found copy of r stamped with at. The bool is false when
// r was already found, in which case r is returned unchanged.
func (r Record) MarkFound(at time.Time) (Record, bool) {
	if r.IsFound() {
		return r, false
	}
	out := r.Clone()
	out.Status = StatusFound
	t := at
	out.DateFound = &t
	return out, true
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	out := r
	if r.DateFound != nil {
		t := *r.DateFound
		out.DateFound = &t
	}
	return out
}

// Equal compares records field by field, including DateFound by value.
func (r Record) Equal(o Record) bool {
	if r.ID != o.ID || r.Name != o.Name || r.Age != o.Age || r.LastSeen != o.LastSeen ||
		r.Description != o.Description || r.Contact != o.Contact || r.ImageURL != o.ImageURL ||
		r.Status != o.Status || !r.DateReported.Equal(o.DateReported) {
		return false
	}
	if (r.DateFound == nil) != (o.DateFound == nil) {
		return false
	}
	return r.DateFound == nil || r.DateFound.Equal(*o.DateFound)
}

// Supersedes reports whether incoming should replace held during reconciliation.
// Status is monotonic: an active copy never replaces a found one, and a found
// copy always replaces an active one. Between two copies of equal status the
// incoming one wins only if it differs, which keeps duplicates idempotent.
func Supersedes(incoming, held Record) bool {
	switch {
	case held.IsFound() && !incoming.IsFound():
		return false
	case incoming.IsFound() && !held.IsFound():
		return true
	case held.IsFound() && incoming.IsFound():
		// First recorded found date wins.
		return false
	default:
		return !incoming.Equal(held)
	}
}

// NewerFirst orders records by DateReported descending, then by ID so that
// equal timestamps still sort deterministically.
func NewerFirst(a, b Record) bool {
	if !a.DateReported.Equal(b.DateReported) {
		return a.DateReported.After(b.DateReported)
	}
	return a.ID < b.ID
}

// SortNewestFirst sorts records in place by NewerFirst
func SortNewestFirst(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return NewerFirst(records[i], records[j])
	})
}

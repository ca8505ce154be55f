package engine

import (
	"errors"
	"fmt"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/rules"
)

// RecordIDField is the attribute used to identify a client record in results.
const RecordIDField = "id"

// ErrTypeMismatch marks a record attribute whose runtime type disagrees with
// the declared field type.
var ErrTypeMismatch = errors.New("type mismatch")

// Record holds one client's attributes keyed by field id.
type Record map[string]any

// ID returns the record identifier, or "" when the record carries none.
func (r Record) ID() string {
	switch v := r[RecordIDField].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Mismatch describes a condition that could not be evaluated because the
// record value had the wrong runtime type. The condition counts as unsatisfied.
type Mismatch struct {
	RecordID    string          `json:"recordId,omitempty"`
	ConditionID string          `json:"conditionId"`
	Field       string          `json:"field"`
	Expected    rules.ValueType `json:"expected"`
	Got         string          `json:"got"`
}

func (m Mismatch) Error() string {
	return fmt.Sprintf("%s: field %q expected %s, got %s", ErrTypeMismatch, m.Field, m.Expected, m.Got)
}

func (m Mismatch) Unwrap() error { return ErrTypeMismatch }

// MatchResult is the outcome of matching a population against a condition set.
type MatchResult struct {
	Members    []string   `json:"members"`
	Total      int        `json:"total"`
	Mismatches []Mismatch `json:"mismatches,omitempty"`
}

// Count is the number of matching records.
func (r MatchResult) Count() int { return len(r.Members) }

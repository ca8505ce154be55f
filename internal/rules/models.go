package rules

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Operator represents a comparison operator used in segment conditions.
type Operator string

// Supported condition operators (string values for clean JSON serialization).
const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "notEquals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "notContains"
	OpStartsWith  Operator = "startsWith"
	OpEndsWith    Operator = "endsWith"
	OpGreaterThan Operator = "greaterThan"
	OpLessThan    Operator = "lessThan"
	OpBetween     Operator = "between"
)

// MatchType controls how the results of a condition set are combined.
type MatchType string

const (
	MatchAll MatchType = "all"
	MatchAny MatchType = "any"
)

// Condition represents a single predicate against one client field.
type Condition struct {
	ID       string   `json:"id"`
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    Value    `json:"value"`
}

// UnmarshalJSON decodes the tagged value according to its JSON shape and the operator.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID       string          `json:"id"`
		Field    string          `json:"field"`
		Operator Operator        `json:"operator"`
		Value    json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	value, err := decodeValue(raw.Value, raw.Operator)
	if err != nil {
		return fmt.Errorf("condition %q: %w", raw.ID, err)
	}
	*c = Condition{ID: raw.ID, Field: raw.Field, Operator: raw.Operator, Value: value}
	return nil
}

// ConditionSet is a list of conditions combined by MatchType.
// Order is kept for display only; it never changes the result.
type ConditionSet struct {
	MatchType  MatchType   `json:"matchType"`
	Conditions []Condition `json:"conditions"`
}

// Clone returns a deep copy that shares no slices with s.
func (s ConditionSet) Clone() ConditionSet {
	out := ConditionSet{MatchType: s.MatchType}
	if s.Conditions == nil {
		return out
	}
	out.Conditions = make([]Condition, len(s.Conditions))
	for i, c := range s.Conditions {
		c.Value = cloneValue(c.Value)
		out.Conditions[i] = c
	}
	return out
}

// Fingerprint hashes the canonical JSON form of the set. Two sets with the same
// fingerprint evaluate identically.
func (s ConditionSet) Fingerprint() uint64 {
	blob, err := json.Marshal(s)
	if err != nil {
		return 0
	}
	return xxhash.Sum64(blob)
}

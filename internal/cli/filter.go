package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/rules"
)

// ParseCondition parses "field:operator:value". The value is read as JSON
// when it parses as JSON and as a plain string otherwise, so
// "lastSession:lessThan:60", "state:equals:CA" and
// "lifetimeValue:between:[100,500]" all work. Ids are assigned as c1, c2...
func ParseCondition(expr string, index int) (rules.Condition, error) {
	parts := strings.SplitN(expr, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return rules.Condition{}, fmt.Errorf("invalid condition %q, expected field:operator:value", expr)
	}
	value := json.RawMessage(parts[2])
	if !json.Valid(value) {
		quoted, _ := json.Marshal(parts[2])
		value = quoted
	}
	raw, err := json.Marshal(map[string]any{
		"id":       fmt.Sprintf("c%d", index+1),
		"field":    parts[0],
		"operator": parts[1],
		"value":    value,
	})
	if err != nil {
		return rules.Condition{}, err
	}
	var c rules.Condition
	if err := json.Unmarshal(raw, &c); err != nil {
		return rules.Condition{}, err
	}
	return c, nil
}

// BuildFilter assembles a condition set from --match and --condition flags.
func BuildFilter(match string, exprs []string) (rules.ConditionSet, error) {
	set := rules.ConditionSet{MatchType: rules.MatchType(match)}
	for i, expr := range exprs {
		c, err := ParseCondition(expr, i)
		if err != nil {
			return rules.ConditionSet{}, err
		}
		set.Conditions = append(set.Conditions, c)
	}
	return set, nil
}

// ReadFilterFile loads a condition set from a YAML or JSON file.
func ReadFilterFile(path string) (rules.ConditionSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return rules.ConditionSet{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var plain any
	if err := yaml.Unmarshal(data, &plain); err != nil {
		return rules.ConditionSet{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	raw, err := json.Marshal(plain)
	if err != nil {
		return rules.ConditionSet{}, err
	}
	var set rules.ConditionSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return rules.ConditionSet{}, fmt.Errorf("failed to decode filter in %s: %w", path, err)
	}
	return set, nil
}

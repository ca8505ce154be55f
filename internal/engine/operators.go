package engine

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/rules"
)

// operand is a record value already coerced to the field's declared type.
type operand struct {
	str  string
	num  float64
	b    bool
	set  []string
	fold bool
}

// operatorHandler evaluates one condition operator.
type operatorHandler interface {
	Check(record operand, ruleValue rules.Value) bool
}

var operatorHandlers = map[rules.Operator]operatorHandler{
	rules.OpEquals:      equalsHandler{},
	rules.OpNotEquals:   notEqualsHandler{},
	rules.OpContains:    containsHandler{},
	rules.OpNotContains: notContainsHandler{},
	rules.OpStartsWith:  stringHandler{match: strings.HasPrefix},
	rules.OpEndsWith:    stringHandler{match: strings.HasSuffix},
	rules.OpGreaterThan: numericCompareHandler{cmp: func(a, b float64) bool { return a > b }},
	rules.OpLessThan:    numericCompareHandler{cmp: func(a, b float64) bool { return a < b }},
	rules.OpBetween:     betweenHandler{},
}

func getOperatorHandler(op rules.Operator) (operatorHandler, bool) {
	h, ok := operatorHandlers[op]
	return h, ok
}

type equalsHandler struct{}

func (equalsHandler) Check(rec operand, ruleValue rules.Value) bool {
	switch v := ruleValue.(type) {
	case rules.StringValue:
		return normalizeCase(rec.str, rec.fold) == normalizeCase(string(v), rec.fold)
	case rules.NumberValue:
		return rec.num == float64(v)
	case rules.BoolValue:
		return rec.b == bool(v)
	default:
		return false
	}
}

type notEqualsHandler struct{}

func (notEqualsHandler) Check(rec operand, ruleValue rules.Value) bool {
	return !equalsHandler{}.Check(rec, ruleValue)
}

type containsHandler struct{}

func (containsHandler) Check(rec operand, ruleValue rules.Value) bool {
	if rec.set != nil {
		switch v := ruleValue.(type) {
		case rules.StringValue:
			return slices.Contains(rec.set, string(v))
		case rules.StringSetValue:
			for _, want := range v {
				if slices.Contains(rec.set, want) {
					return true
				}
			}
		}
		return false
	}
	s, ok := ruleValue.(rules.StringValue)
	if !ok {
		return false
	}
	return strings.Contains(normalizeCase(rec.str, rec.fold), normalizeCase(string(s), rec.fold))
}

type notContainsHandler struct{}

func (notContainsHandler) Check(rec operand, ruleValue rules.Value) bool {
	return !containsHandler{}.Check(rec, ruleValue)
}

type stringHandler struct {
	match func(s, affix string) bool
}

func (h stringHandler) Check(rec operand, ruleValue rules.Value) bool {
	s, ok := ruleValue.(rules.StringValue)
	if !ok {
		return false
	}
	return h.match(normalizeCase(rec.str, rec.fold), normalizeCase(string(s), rec.fold))
}

type numericCompareHandler struct {
	cmp func(a, b float64) bool
}

func (h numericCompareHandler) Check(rec operand, ruleValue rules.Value) bool {
	n, ok := ruleValue.(rules.NumberValue)
	if !ok {
		return false
	}
	return h.cmp(rec.num, float64(n))
}

type betweenHandler struct{}

func (betweenHandler) Check(rec operand, ruleValue rules.Value) bool {
	r, ok := ruleValue.(rules.RangeValue)
	if !ok {
		return false
	}
	return r.Contains(rec.num)
}

// coerce converts a raw record value into an operand of the declared type.
func coerce(raw any, field rules.FieldDescriptor) (operand, bool) {
	op := operand{fold: field.CaseInsensitive}
	switch field.Type {
	case rules.TypeString, rules.TypeEnum:
		s, ok := raw.(string)
		op.str = s
		return op, ok
	case rules.TypeNumber:
		n, ok := toFloat64(raw)
		op.num = n
		return op, ok
	case rules.TypeBoolean:
		b, ok := raw.(bool)
		op.b = b
		return op, ok
	case rules.TypeStringSet:
		set, ok := toStringSlice(raw)
		if ok && set == nil {
			set = []string{}
		}
		op.set = set
		return op, ok
	default:
		return op, false
	}
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func toStringSlice(v any) ([]string, bool) {
	switch values := v.(type) {
	case []string:
		return values, true
	case []any:
		result := make([]string, 0, len(values))
		for _, item := range values {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			result = append(result, s)
		}
		return result, true
	default:
		return nil, false
	}
}

func normalizeCase(value string, fold bool) string {
	if fold {
		return strings.ToLower(value)
	}
	return value
}

package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ValueKind identifies the variant held by a Value.
type ValueKind string

const (
	KindString    ValueKind = "string"
	KindNumber    ValueKind = "number"
	KindBool      ValueKind = "boolean"
	KindRange     ValueKind = "range"
	KindStringSet ValueKind = "stringSet"
)

// Value is the operand of a condition. The set of implementations is closed:
// StringValue, NumberValue, BoolValue, RangeValue and StringSetValue.
type Value interface {
	Kind() ValueKind
	sealed()
}

type StringValue string

type NumberValue float64

type BoolValue bool

// RangeValue is the inclusive [Min, Max] operand of the between operator.
type RangeValue struct {
	Min float64
	Max float64
}

type StringSetValue []string

func (StringValue) Kind() ValueKind    { return KindString }
func (NumberValue) Kind() ValueKind    { return KindNumber }
func (BoolValue) Kind() ValueKind      { return KindBool }
func (RangeValue) Kind() ValueKind     { return KindRange }
func (StringSetValue) Kind() ValueKind { return KindStringSet }

func (StringValue) sealed()    {}
func (NumberValue) sealed()    {}
func (BoolValue) sealed()      {}
func (RangeValue) sealed()     {}
func (StringSetValue) sealed() {}

// MarshalJSON encodes a range as a two-element array.
func (r RangeValue) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{r.Min, r.Max})
}

// Contains reports whether v lies in the inclusive range.
func (r RangeValue) Contains(v float64) bool {
	return r.Min <= v && v <= r.Max
}

func cloneValue(v Value) Value {
	if set, ok := v.(StringSetValue); ok {
		out := make(StringSetValue, len(set))
		copy(out, set)
		return out
	}
	return v
}

// decodeValue maps a raw JSON operand onto the matching variant. A JSON null or
// an absent value decodes to nil so validation can report it.
func decodeValue(raw json.RawMessage, op Operator) (Value, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, err
		}
		return StringValue(s), nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return nil, err
		}
		return BoolValue(b), nil
	case '[':
		return decodeArray(trimmed, op)
	case '{':
		return nil, fmt.Errorf("%w: objects are not valid condition values", ErrInvalidValueType)
	default:
		var n float64
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return nil, err
		}
		return NumberValue(n), nil
	}
}

func decodeArray(raw json.RawMessage, op Operator) (Value, error) {
	if op == OpBetween {
		var bounds []float64
		if err := json.Unmarshal(raw, &bounds); err != nil {
			return nil, fmt.Errorf("%w: between expects [min, max] numbers", ErrInvalidValueType)
		}
		if len(bounds) != 2 {
			return nil, fmt.Errorf("%w: between expects exactly two bounds, got %d", ErrInvalidValueType, len(bounds))
		}
		return RangeValue{Min: bounds[0], Max: bounds[1]}, nil
	}

	var items []string
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: list values must contain only strings", ErrInvalidValueType)
	}
	return StringSetValue(items), nil
}

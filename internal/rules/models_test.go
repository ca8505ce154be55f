package rules

import (
	"encoding/json"
	"errors"
	"testing"
)

// ---------------------------------------------------------------------------
// JSON decoding of tagged values
// ---------------------------------------------------------------------------

func TestConditionUnmarshal_Variants(t *testing.T) {
	tests := []struct {
		name string
		json string
		want Value
	}{
		{name: "string", json: `{"id":"c1","field":"status","operator":"equals","value":"active"}`, want: StringValue("active")},
		{name: "number", json: `{"id":"c1","field":"lastSession","operator":"lessThan","value":60}`, want: NumberValue(60)},
		{name: "bool", json: `{"id":"c1","field":"telehealth","operator":"equals","value":true}`, want: BoolValue(true)},
		{name: "range", json: `{"id":"c1","field":"lifetimeValue","operator":"between","value":[100,500]}`, want: RangeValue{Min: 100, Max: 500}},
		{name: "null", json: `{"id":"c1","field":"status","operator":"equals","value":null}`, want: nil},
		{name: "absent", json: `{"id":"c1","field":"status","operator":"equals"}`, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Condition
			if err := json.Unmarshal([]byte(tt.json), &c); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if c.Value != tt.want {
				t.Errorf("value: got %#v, want %#v", c.Value, tt.want)
			}
		})
	}
}

func TestConditionUnmarshal_StringSet(t *testing.T) {
	var c Condition
	data := `{"id":"c1","field":"diagnoses","operator":"contains","value":["anxiety","depression"]}`
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	set, ok := c.Value.(StringSetValue)
	if !ok {
		t.Fatalf("value type: got %T, want StringSetValue", c.Value)
	}
	if len(set) != 2 || set[0] != "anxiety" || set[1] != "depression" {
		t.Errorf("value: got %v", set)
	}
}

func TestConditionUnmarshal_BadBetween(t *testing.T) {
	bad := []string{
		`{"id":"c1","field":"age","operator":"between","value":[1]}`,
		`{"id":"c1","field":"age","operator":"between","value":["a","b"]}`,
		`{"id":"c1","field":"age","operator":"equals","value":{"x":1}}`,
	}
	for _, data := range bad {
		var c Condition
		err := json.Unmarshal([]byte(data), &c)
		if !errors.Is(err, ErrInvalidValueType) {
			t.Errorf("%s: error = %v, want ErrInvalidValueType", data, err)
		}
	}
}

func TestConditionSetJSONShape(t *testing.T) {
	set := ConditionSet{
		MatchType: MatchAll,
		Conditions: []Condition{
			{ID: "c1", Field: "lifetimeValue", Operator: OpBetween, Value: RangeValue{Min: 100, Max: 500}},
			{ID: "c2", Field: "status", Operator: OpEquals, Value: StringValue("active")},
		},
	}
	blob, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"matchType":"all","conditions":[{"id":"c1","field":"lifetimeValue","operator":"between","value":[100,500]},{"id":"c2","field":"status","operator":"equals","value":"active"}]}`
	if string(blob) != want {
		t.Errorf("json:\n got %s\nwant %s", blob, want)
	}
}

// ---------------------------------------------------------------------------
// Clone / Fingerprint
// ---------------------------------------------------------------------------

func TestClone_DoesNotAlias(t *testing.T) {
	orig := ConditionSet{
		MatchType: MatchAny,
		Conditions: []Condition{
			{ID: "c1", Field: "diagnoses", Operator: OpContains, Value: StringSetValue{"anxiety"}},
		},
	}
	cp := orig.Clone()
	cp.Conditions[0].Field = "tags"
	cp.Conditions[0].Value.(StringSetValue)[0] = "ptsd"
	cp.Conditions = append(cp.Conditions, Condition{ID: "c2"})

	if orig.Conditions[0].Field != "diagnoses" {
		t.Errorf("field mutated through clone: %q", orig.Conditions[0].Field)
	}
	if got := orig.Conditions[0].Value.(StringSetValue)[0]; got != "anxiety" {
		t.Errorf("set value mutated through clone: %q", got)
	}
	if len(orig.Conditions) != 1 {
		t.Errorf("conditions length changed: %d", len(orig.Conditions))
	}
}

func TestFingerprint(t *testing.T) {
	a := ConditionSet{MatchType: MatchAll, Conditions: []Condition{{ID: "c1", Field: "age", Operator: OpGreaterThan, Value: NumberValue(18)}}}
	b := a.Clone()
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("identical sets should share a fingerprint")
	}
	b.Conditions[0].Value = NumberValue(21)
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("different values should change the fingerprint")
	}
}

// ---------------------------------------------------------------------------
// Catalog
// ---------------------------------------------------------------------------

func TestNewFieldCatalog_Rejects(t *testing.T) {
	if _, err := NewFieldCatalog(FieldDescriptor{ID: "a", Type: TypeString}, FieldDescriptor{ID: "a", Type: TypeNumber}); err == nil {
		t.Error("expected duplicate id error")
	}
	if _, err := NewFieldCatalog(FieldDescriptor{ID: "a", Type: "date"}); err == nil {
		t.Error("expected unknown type error")
	}
	if _, err := NewFieldCatalog(FieldDescriptor{Type: TypeString}); err == nil {
		t.Error("expected empty id error")
	}
}

func TestClientFields_AllowedOperators(t *testing.T) {
	c := ClientFields()
	tests := []struct {
		field string
		op    Operator
		want  bool
	}{
		{"lastSession", OpLessThan, true},
		{"lastSession", OpContains, false},
		{"email", OpStartsWith, true},
		{"email", OpGreaterThan, false},
		{"telehealth", OpEquals, true},
		{"telehealth", OpBetween, false},
		{"diagnoses", OpContains, true},
		{"diagnoses", OpEquals, false},
		{"status", OpNotEquals, true},
		{"status", OpStartsWith, false},
	}
	for _, tt := range tests {
		f, ok := c.Lookup(tt.field)
		if !ok {
			t.Fatalf("field %q missing from catalog", tt.field)
		}
		if got := f.Allows(tt.op); got != tt.want {
			t.Errorf("%s %s: Allows = %v, want %v", tt.field, tt.op, got, tt.want)
		}
	}
}

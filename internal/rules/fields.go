package rules

import (
	"fmt"
	"slices"
)

// ValueType is the declared type of a client field.
type ValueType string

const (
	TypeString    ValueType = "string"
	TypeNumber    ValueType = "number"
	TypeBoolean   ValueType = "boolean"
	TypeEnum      ValueType = "enum"
	TypeStringSet ValueType = "stringSet"
)

var operatorsByType = map[ValueType][]Operator{
	TypeString:    {OpEquals, OpNotEquals, OpContains, OpNotContains, OpStartsWith, OpEndsWith},
	TypeEnum:      {OpEquals, OpNotEquals},
	TypeNumber:    {OpEquals, OpNotEquals, OpGreaterThan, OpLessThan, OpBetween},
	TypeBoolean:   {OpEquals, OpNotEquals},
	TypeStringSet: {OpContains, OpNotContains},
}

// FieldDescriptor is the static metadata for one evaluable client attribute.
type FieldDescriptor struct {
	ID              string    `json:"id"`
	Label           string    `json:"label"`
	Type            ValueType `json:"type"`
	Options         []string  `json:"options,omitempty"`
	CaseInsensitive bool      `json:"caseInsensitive,omitempty"`
}

// AllowedOperators returns the operators valid for the field's type.
func (f FieldDescriptor) AllowedOperators() []Operator {
	return slices.Clone(operatorsByType[f.Type])
}

// Allows reports whether op is valid for the field.
func (f FieldDescriptor) Allows(op Operator) bool {
	return slices.Contains(operatorsByType[f.Type], op)
}

// FieldCatalog is an immutable lookup table of field descriptors.
type FieldCatalog struct {
	byID  map[string]FieldDescriptor
	order []string
}

// NewFieldCatalog builds a catalog, rejecting duplicate ids and unknown types.
func NewFieldCatalog(fields ...FieldDescriptor) (*FieldCatalog, error) {
	c := &FieldCatalog{byID: make(map[string]FieldDescriptor, len(fields))}
	for _, f := range fields {
		if f.ID == "" {
			return nil, fmt.Errorf("field descriptor id must not be empty")
		}
		if _, ok := operatorsByType[f.Type]; !ok {
			return nil, fmt.Errorf("field %q has unknown type %q", f.ID, f.Type)
		}
		if _, dup := c.byID[f.ID]; dup {
			return nil, fmt.Errorf("field %q is declared twice", f.ID)
		}
		f.Options = slices.Clone(f.Options)
		c.byID[f.ID] = f
		c.order = append(c.order, f.ID)
	}
	return c, nil
}

// Lookup resolves a field id.
func (c *FieldCatalog) Lookup(id string) (FieldDescriptor, bool) {
	f, ok := c.byID[id]
	return f, ok
}

// Fields returns descriptors in declaration order.
func (c *FieldCatalog) Fields() []FieldDescriptor {
	out := make([]FieldDescriptor, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

var clientFields = []FieldDescriptor{
	{ID: "status", Label: "Client Status", Type: TypeEnum, Options: []string{"active", "inactive", "discharged", "waitlist", "prospect"}},
	{ID: "lastSession", Label: "Days Since Last Session", Type: TypeNumber},
	{ID: "joinDate", Label: "Days Since Intake", Type: TypeNumber},
	{ID: "age", Label: "Age", Type: TypeNumber},
	{ID: "gender", Label: "Gender", Type: TypeEnum, Options: []string{"female", "male", "non-binary", "other", "undisclosed"}},
	{ID: "insuranceProvider", Label: "Insurance Provider", Type: TypeString, CaseInsensitive: true},
	{ID: "referralSource", Label: "Referral Source", Type: TypeString, CaseInsensitive: true},
	{ID: "city", Label: "City", Type: TypeString, CaseInsensitive: true},
	{ID: "state", Label: "State", Type: TypeString},
	{ID: "email", Label: "Email", Type: TypeString, CaseInsensitive: true},
	{ID: "diagnoses", Label: "Diagnoses", Type: TypeStringSet},
	{ID: "tags", Label: "Client Tags", Type: TypeStringSet},
	{ID: "lifetimeValue", Label: "Lifetime Value", Type: TypeNumber},
	{ID: "sessionCount", Label: "Total Sessions", Type: TypeNumber},
	{ID: "noShowCount", Label: "No-Show Count", Type: TypeNumber},
	{ID: "telehealth", Label: "Prefers Telehealth", Type: TypeBoolean},
	{ID: "hasInsurance", Label: "Has Insurance", Type: TypeBoolean},
}

// ClientFields returns the default catalog of client attributes.
func ClientFields() *FieldCatalog {
	c, err := NewFieldCatalog(clientFields...)
	if err != nil {
		panic(err)
	}
	return c
}

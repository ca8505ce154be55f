package rules

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ruleError is the type behind every validation sentinel so callers can
// classify them with IsValidation.
type ruleError string

func (e ruleError) Error() string { return string(e) }

// Sentinel errors returned by Validate.
var (
	ErrEmptyConditionSet    error = ruleError("condition set has no conditions")
	ErrInvalidMatchType     error = ruleError("invalid match type")
	ErrInvalidCondition     error = ruleError("invalid condition")
	ErrDuplicateConditionID error = ruleError("duplicate condition id")
	ErrUnknownField         error = ruleError("unknown field")
	ErrOperatorNotAllowed   error = ruleError("operator not allowed for field")
	ErrMissingValue         error = ruleError("missing value")
	ErrInvalidValueType     error = ruleError("invalid value type")
)

// IsValidation reports whether err originates from rule validation.
func IsValidation(err error) bool {
	var re ruleError
	return errors.As(err, &re)
}

// Validate performs strict validation of a condition set against the catalog.
// It is a pure function: it never mutates set.
func (c *FieldCatalog) Validate(set ConditionSet) error {
	if set.MatchType != MatchAll && set.MatchType != MatchAny {
		return fmt.Errorf("%w: %q (want %q or %q)", ErrInvalidMatchType, set.MatchType, MatchAll, MatchAny)
	}
	if len(set.Conditions) == 0 {
		return ErrEmptyConditionSet
	}

	seen := make(map[string]struct{}, len(set.Conditions))
	for i, cond := range set.Conditions {
		if strings.TrimSpace(cond.ID) == "" {
			return fmt.Errorf("%w: condition[%d] id must not be empty", ErrInvalidCondition, i)
		}
		if _, dup := seen[cond.ID]; dup {
			return fmt.Errorf("%w: condition[%d] reuses id %q", ErrDuplicateConditionID, i, cond.ID)
		}
		seen[cond.ID] = struct{}{}

		if err := c.ValidateCondition(cond); err != nil {
			return fmt.Errorf("condition[%d]: %w", i, err)
		}
	}
	return nil
}

// ValidateCondition checks one condition against its field descriptor.
func (c *FieldCatalog) ValidateCondition(cond Condition) error {
	field, ok := c.Lookup(cond.Field)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, cond.Field)
	}
	if !field.Allows(cond.Operator) {
		return fmt.Errorf("%w: %q on %s field %q", ErrOperatorNotAllowed, cond.Operator, field.Type, field.ID)
	}
	if cond.Value == nil {
		return fmt.Errorf("%w: operator %q on field %q requires a value", ErrMissingValue, cond.Operator, field.ID)
	}
	return validateValue(field, cond.Operator, cond.Value)
}

func validateValue(field FieldDescriptor, op Operator, v Value) error {
	mismatch := func(want string) error {
		return fmt.Errorf("%w: field %q with operator %q requires %s, got %s", ErrInvalidValueType, field.ID, op, want, v.Kind())
	}

	switch field.Type {
	case TypeString:
		if _, ok := v.(StringValue); !ok {
			return mismatch("a string")
		}

	case TypeEnum:
		s, ok := v.(StringValue)
		if !ok {
			return mismatch("a string")
		}
		if len(field.Options) > 0 && !slices.Contains(field.Options, string(s)) {
			return fmt.Errorf("%w: %q is not an option of field %q", ErrInvalidValueType, s, field.ID)
		}

	case TypeNumber:
		if op == OpBetween {
			if _, ok := v.(RangeValue); !ok {
				return mismatch("a [min, max] range")
			}
			return nil
		}
		if _, ok := v.(NumberValue); !ok {
			return mismatch("a number")
		}

	case TypeBoolean:
		if _, ok := v.(BoolValue); !ok {
			return mismatch("a boolean")
		}

	case TypeStringSet:
		switch set := v.(type) {
		case StringValue:
		case StringSetValue:
			if len(set) == 0 {
				return fmt.Errorf("%w: field %q list value must not be empty", ErrMissingValue, field.ID)
			}
		default:
			return mismatch("a string or list of strings")
		}
	}
	return nil
}

// Package validation provides validation rules for segment metadata.
package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// MaxNameLength is the maximum length for segment names
	MaxNameLength = 100
	// MaxDescriptionLength is the maximum length for segment descriptions
	MaxDescriptionLength = 500
	// MaxTags is the maximum number of tags per segment
	MaxTags = 20
	// MaxTagLength is the maximum length of a single tag
	MaxTagLength = 32
)

// ValidationResult holds the result of validation
type ValidationResult struct {
	Valid  bool
	Errors map[string]string
}

// NewValidationResult creates a new validation result
func NewValidationResult() *ValidationResult {
	return &ValidationResult{
		Valid:  true,
		Errors: make(map[string]string),
	}
}

// AddError adds a field error and marks the result as invalid.
// The first message recorded for a field wins.
func (v *ValidationResult) AddError(field, message string) {
	v.Valid = false
	if _, exists := v.Errors[field]; !exists {
		v.Errors[field] = message
	}
}

// Merge combines another validation result into this one
func (v *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	for field, message := range other.Errors {
		v.AddError(field, message)
	}
}

// SegmentParams contains the metadata to validate for a segment
type SegmentParams struct {
	Name        string
	Description string
	Tags        []string
}

// ValidateSegment validates all metadata fields and returns a validation result
func ValidateSegment(params SegmentParams) *ValidationResult {
	result := NewValidationResult()
	result.Merge(ValidateName(params.Name))
	result.Merge(ValidateDescription(params.Description))
	result.Merge(ValidateTags(params.Tags))
	return result
}

// ValidateName validates a segment name
func ValidateName(name string) *ValidationResult {
	result := NewValidationResult()
	name = strings.TrimSpace(name)

	if name == "" {
		result.AddError("name", "Name is required")
		return result
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		result.AddError("name", fmt.Sprintf("Name must not exceed %d characters", MaxNameLength))
	}
	return result
}

// ValidateDescription validates a segment description
func ValidateDescription(description string) *ValidationResult {
	result := NewValidationResult()

	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		result.AddError("description", fmt.Sprintf("Description must not exceed %d characters", MaxDescriptionLength))
	}
	return result
}

// ValidateTags validates tags after normalization
func ValidateTags(tags []string) *ValidationResult {
	result := NewValidationResult()
	normalized := NormalizeTags(tags)

	if len(normalized) > MaxTags {
		result.AddError("tags", fmt.Sprintf("A segment may have at most %d tags", MaxTags))
		return result
	}
	for _, tag := range normalized {
		if utf8.RuneCountInString(tag) > MaxTagLength {
			result.AddError("tags", fmt.Sprintf("Tag %q must not exceed %d characters", tag, MaxTagLength))
			return result
		}
	}
	return result
}

// NormalizeTags trims tags, drops empty ones and removes duplicates while
// keeping the order of first appearance. It never returns nil.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

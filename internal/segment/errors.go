package segment

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/store"
)

var (
	// ErrNotFound is returned for ids the registry does not know.
	ErrNotFound = errors.New("segment not found")
	// ErrSegmentRemoved is returned for ids that were deleted. Errors carrying it
	// also match ErrNotFound.
	ErrSegmentRemoved = errors.New("segment removed")
	// ErrPermission is returned when editing, deleting or deactivating a system segment.
	ErrPermission = errors.New("system segments cannot be modified")
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")
)

// ValidationError lists per-field problems found before any state changed.
type ValidationError struct {
	Fields map[string]string
	Cause  error
}

func (e *ValidationError) Error() string {
	keys := slices.Sorted(maps.Keys(e.Fields))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) Unwrap() error { return e.Cause }

// lookupError translates store errors for id into registry errors.
func lookupError(id string, err error) error {
	switch {
	case errors.Is(err, store.ErrRemoved):
		return fmt.Errorf("%w: %s: %w", ErrNotFound, id, ErrSegmentRemoved)
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	default:
		return err
	}
}

package store

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/rules"
)

var (
	// ErrNotFound is returned when no segment with the id was ever stored.
	ErrNotFound = errors.New("segment not found")
	// ErrRemoved is returned for ids that existed but have been deleted.
	ErrRemoved = errors.New("segment removed")
	// ErrConflict is returned when inserting an id that is already taken.
	ErrConflict = errors.New("segment id already exists")
)

// Store defines the interface for segment persistence.
// Implementations must be thread-safe and must not alias caller memory.
type Store interface {
	// ListSegments returns every live segment ordered by creation time.
	ListSegments(ctx context.Context) ([]Segment, error)

	// GetSegment returns ErrNotFound for unknown ids and ErrRemoved for deleted ones.
	GetSegment(ctx context.Context, id string) (*Segment, error)

	// InsertSegment stores a new segment. Returns ErrConflict if the id exists,
	// including ids of removed segments.
	InsertSegment(ctx context.Context, seg Segment) error

	// UpdateSegment replaces a live segment.
	UpdateSegment(ctx context.Context, seg Segment) error

	// DeleteSegment removes a segment and keeps a tombstone for its id.
	DeleteSegment(ctx context.Context, id string) error

	// Close releases any resources held by the store.
	Close() error
}

// Segment is a named, persisted ConditionSet with its cached membership count.
type Segment struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	Description      string             `json:"description"`
	Tags             []string           `json:"tags"`
	Filter           rules.ConditionSet `json:"filter"`
	IsSystem         bool               `json:"isSystem"`
	IsActive         bool               `json:"isActive"`
	ClientCount      int                `json:"clientCount"`
	CountApproximate bool               `json:"countApproximate"`
	CreatedAt        time.Time          `json:"createdAt"`
	UpdatedAt        time.Time          `json:"updatedAt"`
	CountedAt        *time.Time         `json:"countedAt,omitempty"`
}

// Clone returns a deep copy of s.
func (s Segment) Clone() Segment {
	out := s
	out.Tags = slices.Clone(s.Tags)
	if out.Tags == nil {
		out.Tags = []string{}
	}
	out.Filter = s.Filter.Clone()
	if s.CountedAt != nil {
		t := *s.CountedAt
		out.CountedAt = &t
	}
	return out
}

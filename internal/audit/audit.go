// Package audit keeps a trail of committed segment changes.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/segment"
)

// Entry is one audited change.
type Entry struct {
	ID          string             `json:"id"`
	At          time.Time          `json:"at"`
	Action      segment.ChangeType `json:"action"`
	SegmentID   string             `json:"segmentId"`
	SegmentName string             `json:"segmentName"`
	IsSystem    bool               `json:"isSystem"`
	Fingerprint string             `json:"fingerprint"` // hex of the filter fingerprint
	State       json.RawMessage    `json:"state"`       // segment as committed
}

// Writer persists entries.
type Writer interface {
	Write(ctx context.Context, e Entry) error
}

// Clock interface for testable time operations
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using time.Now()
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Recorder turns registry changes into entries. It satisfies events.Sink.
type Recorder struct {
	writer Writer
	clock  Clock
	newID  func() string
}

// NewRecorder creates a recorder writing to w.
func NewRecorder(w Writer) *Recorder {
	return &Recorder{writer: w, clock: SystemClock{}, newID: uuid.NewString}
}

// WithClock replaces the clock, for tests.
func (r *Recorder) WithClock(c Clock) *Recorder {
	r.clock = c
	return r
}

func (r *Recorder) Name() string { return "audit" }

// Send records c. The change time is kept when set.
func (r *Recorder) Send(ctx context.Context, c segment.Change) error {
	e, err := r.entry(c)
	if err != nil {
		return err
	}
	return r.writer.Write(ctx, e)
}

func (r *Recorder) entry(c segment.Change) (Entry, error) {
	state, err := json.Marshal(c.Segment)
	if err != nil {
		return Entry{}, fmt.Errorf("marshal segment: %w", err)
	}
	at := c.At
	if at.IsZero() {
		at = r.clock.Now()
	}
	return Entry{
		ID:          r.newID(),
		At:          at,
		Action:      c.Type,
		SegmentID:   c.Segment.ID,
		SegmentName: c.Segment.Name,
		IsSystem:    c.Segment.IsSystem,
		Fingerprint: strconv.FormatUint(c.Segment.Filter.Fingerprint(), 16),
		State:       state,
	}, nil
}

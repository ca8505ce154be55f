package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/rules"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/segment"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/store"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type memoryWriter struct {
	mu      sync.Mutex
	entries []Entry
	err     error
}

func (w *memoryWriter) Write(_ context.Context, e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.entries = append(w.entries, e)
	return nil
}

func sampleChange() segment.Change {
	return segment.Change{
		Type: segment.ChangeUpdated,
		Segment: store.Segment{
			ID:   "seg-1",
			Name: "Overdue",
			Filter: rules.ConditionSet{
				MatchType: rules.MatchAll,
				Conditions: []rules.Condition{
					{ID: "c1", Field: "lastSession", Operator: rules.OpGreaterThan, Value: rules.NumberValue(90)},
				},
			},
		},
		At: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRecorder_Send(t *testing.T) {
	w := &memoryWriter{}
	r := NewRecorder(w)
	r.newID = func() string { return "audit-1" }

	c := sampleChange()
	if err := r.Send(context.Background(), c); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(w.entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(w.entries))
	}

	e := w.entries[0]
	if e.ID != "audit-1" || e.Action != segment.ChangeUpdated || e.SegmentID != "seg-1" || e.SegmentName != "Overdue" {
		t.Errorf("Unexpected entry: %+v", e)
	}
	if !e.At.Equal(c.At) {
		t.Errorf("Expected change time to be kept, got %v", e.At)
	}
	if e.Fingerprint == "" {
		t.Error("Expected a fingerprint")
	}

	var state store.Segment
	if err := json.Unmarshal(e.State, &state); err != nil {
		t.Fatalf("State is not a segment: %v", err)
	}
	if state.ID != "seg-1" || len(state.Filter.Conditions) != 1 {
		t.Errorf("Unexpected state: %+v", state)
	}
}

func TestRecorder_FingerprintTracksFilter(t *testing.T) {
	w := &memoryWriter{}
	r := NewRecorder(w)

	a := sampleChange()
	b := sampleChange()
	b.Segment.Name = "Renamed"
	c := sampleChange()
	c.Segment.Filter.Conditions[0].Value = rules.NumberValue(60)

	for _, ch := range []segment.Change{a, b, c} {
		if err := r.Send(context.Background(), ch); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}
	if w.entries[0].Fingerprint != w.entries[1].Fingerprint {
		t.Error("Renaming should not change the fingerprint")
	}
	if w.entries[0].Fingerprint == w.entries[2].Fingerprint {
		t.Error("Changing the filter should change the fingerprint")
	}
}

func TestRecorder_ZeroTimeUsesClock(t *testing.T) {
	now := time.Date(2026, 5, 5, 0, 0, 0, 0, time.UTC)
	w := &memoryWriter{}
	r := NewRecorder(w).WithClock(fixedClock{now})

	c := sampleChange()
	c.At = time.Time{}
	if err := r.Send(context.Background(), c); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !w.entries[0].At.Equal(now) {
		t.Errorf("Expected clock time, got %v", w.entries[0].At)
	}
}

func TestRecorder_WriterError(t *testing.T) {
	boom := errors.New("disk full")
	r := NewRecorder(&memoryWriter{err: boom})
	if err := r.Send(context.Background(), sampleChange()); !errors.Is(err, boom) {
		t.Errorf("Expected writer error, got %v", err)
	}
	if r.Name() != "audit" {
		t.Errorf("Unexpected sink name %q", r.Name())
	}
}

func TestLogWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewLogWriter(zerolog.New(&buf))
	r := NewRecorder(w)

	if err := r.Send(context.Background(), sampleChange()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("Log line is not JSON: %v", err)
	}
	if line["action"] != "segment.updated" || line["segment_id"] != "seg-1" || line["component"] != "audit" {
		t.Errorf("Unexpected log line: %v", line)
	}
}

package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/rules"
)

func sampleSegment(id string, created time.Time) Segment {
	return Segment{
		ID:   id,
		Name: "Recent active clients",
		Tags: []string{"retention"},
		Filter: rules.ConditionSet{
			MatchType: rules.MatchAll,
			Conditions: []rules.Condition{
				{ID: "c1", Field: "diagnoses", Operator: rules.OpContains, Value: rules.StringSetValue{"anxiety"}},
			},
		},
		IsActive:  true,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestMemoryStore_InsertAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	seg := sampleSegment("seg-1", time.Now().UTC())
	if err := store.InsertSegment(ctx, seg); err != nil {
		t.Fatalf("InsertSegment failed: %v", err)
	}

	got, err := store.GetSegment(ctx, "seg-1")
	if err != nil {
		t.Fatalf("GetSegment failed: %v", err)
	}
	if got.Name != seg.Name {
		t.Errorf("Expected name %q, got %q", seg.Name, got.Name)
	}
	if !got.IsActive {
		t.Error("Expected IsActive to be true")
	}

	if err := store.InsertSegment(ctx, seg); !errors.Is(err, ErrConflict) {
		t.Errorf("Expected ErrConflict on duplicate insert, got %v", err)
	}
}

func TestMemoryStore_DoesNotAlias(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	seg := sampleSegment("seg-1", time.Now().UTC())
	if err := store.InsertSegment(ctx, seg); err != nil {
		t.Fatalf("InsertSegment failed: %v", err)
	}
	seg.Tags[0] = "mutated"
	seg.Filter.Conditions[0].Value.(rules.StringSetValue)[0] = "mutated"

	got, _ := store.GetSegment(ctx, "seg-1")
	if got.Tags[0] != "retention" {
		t.Errorf("stored tags aliased caller slice: %v", got.Tags)
	}
	if v := got.Filter.Conditions[0].Value.(rules.StringSetValue)[0]; v != "anxiety" {
		t.Errorf("stored filter aliased caller slice: %v", v)
	}

	got.Name = "changed"
	again, _ := store.GetSegment(ctx, "seg-1")
	if again.Name == "changed" {
		t.Error("returned segment aliased stored segment")
	}
}

func TestMemoryStore_ListOrdered(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"c", "a", "b"} {
		if err := store.InsertSegment(ctx, sampleSegment(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("InsertSegment failed: %v", err)
		}
	}

	segs, err := store.ListSegments(ctx)
	if err != nil {
		t.Fatalf("ListSegments failed: %v", err)
	}
	if len(segs) != 3 {
		t.Fatalf("Expected 3 segments, got %d", len(segs))
	}
	for i, want := range []string{"c", "a", "b"} {
		if segs[i].ID != want {
			t.Errorf("segs[%d] = %q, want %q", i, segs[i].ID, want)
		}
	}
}

func TestMemoryStore_UpdateAndDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	seg := sampleSegment("seg-1", time.Now().UTC())
	if err := store.UpdateSegment(ctx, seg); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound updating unknown segment, got %v", err)
	}
	if err := store.InsertSegment(ctx, seg); err != nil {
		t.Fatalf("InsertSegment failed: %v", err)
	}

	seg.ClientCount = 42
	if err := store.UpdateSegment(ctx, seg); err != nil {
		t.Fatalf("UpdateSegment failed: %v", err)
	}
	got, _ := store.GetSegment(ctx, "seg-1")
	if got.ClientCount != 42 {
		t.Errorf("Expected clientCount 42, got %d", got.ClientCount)
	}

	if err := store.DeleteSegment(ctx, "seg-1"); err != nil {
		t.Fatalf("DeleteSegment failed: %v", err)
	}

	tests := []struct {
		name string
		err  error
	}{
		{"get", func() error { _, err := store.GetSegment(ctx, "seg-1"); return err }()},
		{"update", store.UpdateSegment(ctx, seg)},
		{"delete again", store.DeleteSegment(ctx, "seg-1")},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, ErrRemoved) {
			t.Errorf("%s after delete: expected ErrRemoved, got %v", tt.name, tt.err)
		}
	}

	if err := store.InsertSegment(ctx, seg); !errors.Is(err, ErrConflict) {
		t.Errorf("Expected ErrConflict reusing a removed id, got %v", err)
	}
	if err := store.DeleteSegment(ctx, "never"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound deleting unknown id, got %v", err)
	}

	segs, _ := store.ListSegments(ctx)
	if len(segs) != 0 {
		t.Errorf("Expected no live segments, got %d", len(segs))
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('A'+i%26)) + string(rune('a'+i/26))
			_ = store.InsertSegment(ctx, sampleSegment(id, now))
			_, _ = store.ListSegments(ctx)
			_, _ = store.GetSegment(ctx, id)
		}(i)
	}
	wg.Wait()

	segs, err := store.ListSegments(ctx)
	if err != nil {
		t.Fatalf("ListSegments failed: %v", err)
	}
	if len(segs) != 50 {
		t.Errorf("Expected 50 segments, got %d", len(segs))
	}
}

package store

import (
	"context"
	"testing"
	"time"
)

func TestNewStore_Memory(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(ctx, "memory", "")
	if err != nil {
		t.Fatalf("NewStore('memory') failed: %v", err)
	}
	if store == nil {
		t.Fatal("Expected non-nil store")
	}
	defer store.Close()

	if err := store.InsertSegment(ctx, sampleSegment("seg-1", time.Now().UTC())); err != nil {
		t.Fatalf("InsertSegment failed: %v", err)
	}
	segs, err := store.ListSegments(ctx)
	if err != nil {
		t.Fatalf("ListSegments failed: %v", err)
	}
	if len(segs) != 1 {
		t.Errorf("Expected 1 segment, got %d", len(segs))
	}
}

func TestNewStore_UnsupportedType(t *testing.T) {
	ctx := context.Background()
	_, err := NewStore(ctx, "invalid-type", "")
	if err == nil {
		t.Fatal("Expected error for unsupported store type")
	}
	expectedMsg := "unsupported store type: invalid-type"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message '%s', got '%s'", expectedMsg, err.Error())
	}
}

func TestNewStore_PostgresWithInvalidDSN(t *testing.T) {
	ctx := context.Background()
	if _, err := NewStore(ctx, "postgres", "invalid-dsn"); err == nil {
		t.Fatal("Expected error for invalid DSN")
	}
}

func TestNewStore_CaseSensitivity(t *testing.T) {
	ctx := context.Background()
	for _, kind := range []string{"Memory", "MEMORY"} {
		if _, err := NewStore(ctx, kind, ""); err == nil {
			t.Errorf("Expected error for %q", kind)
		}
	}
}

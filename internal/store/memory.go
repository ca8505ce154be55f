package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory implementation of the Store interface.
// Deleted ids are kept as tombstones so later lookups report ErrRemoved.
type MemoryStore struct {
	mu       sync.RWMutex
	segments map[string]Segment
	removed  map[string]struct{}
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		segments: make(map[string]Segment),
		removed:  make(map[string]struct{}),
	}
}

// ListSegments returns live segments ordered by creation time, then id.
func (m *MemoryStore) ListSegments(ctx context.Context) ([]Segment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Segment, 0, len(m.segments))
	for _, seg := range m.segments {
		result = append(result, seg.Clone())
	}
	sortSegments(result)
	return result, nil
}

// GetSegment retrieves a segment by id.
func (m *MemoryStore) GetSegment(ctx context.Context, id string) (*Segment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, gone := m.removed[id]; gone {
		return nil, ErrRemoved
	}
	seg, exists := m.segments[id]
	if !exists {
		return nil, ErrNotFound
	}
	out := seg.Clone()
	return &out, nil
}

// InsertSegment stores a new segment.
func (m *MemoryStore) InsertSegment(ctx context.Context, seg Segment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.segments[seg.ID]; exists {
		return ErrConflict
	}
	if _, gone := m.removed[seg.ID]; gone {
		return ErrConflict
	}
	m.segments[seg.ID] = seg.Clone()
	return nil
}

// UpdateSegment replaces a live segment.
func (m *MemoryStore) UpdateSegment(ctx context.Context, seg Segment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, gone := m.removed[seg.ID]; gone {
		return ErrRemoved
	}
	if _, exists := m.segments[seg.ID]; !exists {
		return ErrNotFound
	}
	m.segments[seg.ID] = seg.Clone()
	return nil
}

// DeleteSegment removes a segment and records a tombstone.
func (m *MemoryStore) DeleteSegment(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, gone := m.removed[id]; gone {
		return ErrRemoved
	}
	if _, exists := m.segments[id]; !exists {
		return ErrNotFound
	}
	delete(m.segments, id)
	m.removed[id] = struct{}{}
	return nil
}

// Close is a no-op for MemoryStore as there are no resources to release.
func (m *MemoryStore) Close() error {
	return nil
}

func sortSegments(segs []Segment) {
	sort.Slice(segs, func(i, j int) bool {
		if !segs[i].CreatedAt.Equal(segs[j].CreatedAt) {
			return segs[i].CreatedAt.Before(segs[j].CreatedAt)
		}
		return segs[i].ID < segs[j].ID
	})
}

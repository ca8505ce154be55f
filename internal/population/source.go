// Package population supplies the client records segments are counted against.
package population

import (
	"context"
	"fmt"
	"sync"

	mydb "github.com/MentalSpaceTherapy/mentalspace-ehr/internal/db"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/engine"
)

// Source yields the current client population.
// Implementations must return records the caller may not mutate in place.
type Source interface {
	Records(ctx context.Context) ([]engine.Record, error)
}

// MemorySource is a mutable in-memory population.
type MemorySource struct {
	mu      sync.RWMutex
	records []engine.Record
}

// NewMemorySource creates a population holding records.
func NewMemorySource(records ...engine.Record) *MemorySource {
	s := &MemorySource{}
	s.Replace(records)
	return s
}

// Records returns a snapshot of the population.
func (s *MemorySource) Records(ctx context.Context) ([]engine.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]engine.Record, len(s.records))
	copy(out, s.records)
	return out, nil
}

// Replace swaps the whole population.
func (s *MemorySource) Replace(records []engine.Record) {
	cp := make([]engine.Record, len(records))
	copy(cp, records)
	s.mu.Lock()
	s.records = cp
	s.mu.Unlock()
}

// Add appends records to the population.
func (s *MemorySource) Add(records ...engine.Record) {
	s.mu.Lock()
	s.records = append(s.records, records...)
	s.mu.Unlock()
}

// Len returns the population size.
func (s *MemorySource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// NewSource creates a population source by kind.
// Supported kinds: "memory", "file", "postgres".
func NewSource(ctx context.Context, kind, dsn, file, query string) (Source, func(), error) {
	switch kind {
	case "memory":
		return NewMemorySource(), func() {}, nil
	case "file":
		records, err := LoadFile(file)
		if err != nil {
			return nil, nil, err
		}
		return NewMemorySource(records...), func() {}, nil
	case "postgres":
		pool, err := mydb.NewPool(ctx, dsn, mydb.DefaultPoolOptions())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create population pool: %w", err)
		}
		return NewPostgresSource(pool, query), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported population source: %s", kind)
	}
}

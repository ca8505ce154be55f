// Package testutil holds fixtures shared by handler, client and CLI tests.
package testutil

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/engine"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/population"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/rules"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/segment"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/store"
)

// Env bundles a registry with the in-memory backends behind it.
type Env struct {
	Registry   *segment.Registry
	Store      *store.MemoryStore
	Population *population.MemorySource
}

// NewRegistry builds a registry over an in-memory store and the given
// population. With no records SampleClients is used.
func NewRegistry(t *testing.T, records ...engine.Record) *Env {
	t.Helper()
	if len(records) == 0 {
		records = SampleClients()
	}
	st := store.NewMemoryStore()
	pop := population.NewMemorySource(records...)
	reg := segment.NewRegistry(st, pop, engine.NewEvaluator(rules.ClientFields(), 2),
		segment.WithLogger(zerolog.Nop()))
	t.Cleanup(func() { _ = st.Close() })
	return &Env{Registry: reg, Store: st, Population: pop}
}

// SampleClients returns a small population covering the common field types.
func SampleClients() []engine.Record {
	return []engine.Record{
		{"id": "c-1", "status": "active", "lastSession": 12, "age": 34, "state": "CA", "diagnoses": []string{"anxiety"}, "telehealth": true},
		{"id": "c-2", "status": "active", "lastSession": 95, "age": 52, "state": "NY", "diagnoses": []string{"depression"}, "telehealth": false},
		{"id": "c-3", "status": "inactive", "lastSession": 200, "age": 29, "state": "CA", "diagnoses": []string{"ptsd", "anxiety"}},
		{"id": "c-4", "status": "waitlist", "age": 41, "state": "TX"},
	}
}

// ActiveClients is a valid filter matching status == active.
func ActiveClients() rules.ConditionSet {
	return rules.ConditionSet{
		MatchType: rules.MatchAll,
		Conditions: []rules.Condition{
			{ID: "status", Field: "status", Operator: rules.OpEquals, Value: rules.StringValue("active")},
		},
	}
}

// HTTPRequest is a helper for making test HTTP requests.
type HTTPRequest struct {
	Method  string
	Path    string
	Body    string
	Headers map[string]string
}

// Do executes the HTTP request and returns the response recorder.
func (r *HTTPRequest) Do(t *testing.T, handler http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if r.Body != "" {
		body = bytes.NewBufferString(r.Body)
	}
	req := httptest.NewRequest(r.Method, r.Path, body)
	if r.Body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// Bearer returns an Authorization header map for key.
func Bearer(key string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + key}
}

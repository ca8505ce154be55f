package webhook

import (
	"time"

	"github.com/google/uuid"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/segment"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/store"
)

// Event is the payload POSTed to webhook endpoints.
type Event struct {
	ID        string        `json:"id"`
	Type      string        `json:"event"`
	Timestamp time.Time     `json:"timestamp"`
	Resource  Resource      `json:"resource"`
	Segment   store.Segment `json:"segment"`
}

// Resource identifies the resource that triggered the event.
type Resource struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// NewEvent builds the webhook payload for a registry change.
func NewEvent(c segment.Change) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      string(c.Type),
		Timestamp: c.At,
		Resource:  Resource{Type: "segment", ID: c.Segment.ID},
		Segment:   c.Segment,
	}
}

// Endpoint is a delivery target. An empty Events list subscribes to everything.
type Endpoint struct {
	URL    string
	Events []string
}

func (e Endpoint) wants(eventType string) bool {
	if len(e.Events) == 0 {
		return true
	}
	for _, t := range e.Events {
		if t == eventType {
			return true
		}
	}
	return false
}

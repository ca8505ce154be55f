package segment

import (
	"sync"
	"time"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/store"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/telemetry"
)

// ChangeType names a registry mutation.
type ChangeType string

const (
	ChangeCreated     ChangeType = "segment.created"
	ChangeUpdated     ChangeType = "segment.updated"
	ChangeDeleted     ChangeType = "segment.deleted"
	ChangeActivated   ChangeType = "segment.activated"
	ChangeDeactivated ChangeType = "segment.deactivated"
	ChangeRecounted   ChangeType = "segment.recounted"
)

// Change is published after a mutation is committed. For deletions Segment
// holds the last state before removal.
type Change struct {
	Type    ChangeType    `json:"type"`
	Segment store.Segment `json:"segment"`
	At      time.Time     `json:"at"`
}

// Notifier fans changes out to subscribers without blocking the publisher.
type Notifier struct {
	mu   sync.Mutex
	subs map[chan Change]struct{}
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[chan Change]struct{})}
}

// Subscribe registers a listener and returns its channel and an unsubscribe func.
// A subscriber whose buffer is full misses changes instead of stalling writers.
func (n *Notifier) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Change, buffer)
	n.mu.Lock()
	n.subs[ch] = struct{}{}
	n.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, ch)
			close(ch)
			n.mu.Unlock()
		})
	}
	return ch, unsub
}

// Publish notifies all listeners (non-blocking).
func (n *Notifier) Publish(c Change) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs {
		select {
		case ch <- c:
		default:
			telemetry.DroppedChanges.Inc()
		}
	}
}

// Subscribers returns the number of registered listeners.
func (n *Notifier) Subscribers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

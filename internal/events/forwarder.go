// Package events forwards committed registry changes to external sinks.
package events

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/segment"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/telemetry"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/webhook"
)

// Sink receives registry changes.
type Sink interface {
	Name() string
	Send(ctx context.Context, c segment.Change) error
}

// Forwarder drains a change subscription into a set of sinks. A failing sink
// never blocks the others.
type Forwarder struct {
	sinks   []Sink
	timeout time.Duration
	log     zerolog.Logger
}

// NewForwarder creates a forwarder. timeout bounds each Send call.
func NewForwarder(log zerolog.Logger, timeout time.Duration, sinks ...Sink) *Forwarder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Forwarder{
		sinks:   sinks,
		timeout: timeout,
		log:     log.With().Str("component", "events").Logger(),
	}
}

// Sinks returns the number of configured sinks.
func (f *Forwarder) Sinks() int { return len(f.sinks) }

// Run forwards changes until ctx is canceled or the channel is closed.
func (f *Forwarder) Run(ctx context.Context, changes <-chan segment.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			f.forward(ctx, c)
		}
	}
}

func (f *Forwarder) forward(ctx context.Context, c segment.Change) {
	for _, s := range f.sinks {
		sendCtx, cancel := context.WithTimeout(ctx, f.timeout)
		err := s.Send(sendCtx, c)
		cancel()
		if err != nil {
			telemetry.EventsPublished.WithLabelValues(s.Name(), "error").Inc()
			f.log.Warn().Err(err).Str("sink", s.Name()).Str("event", string(c.Type)).Str("segment_id", c.Segment.ID).Msg("event not forwarded")
			continue
		}
		telemetry.EventsPublished.WithLabelValues(s.Name(), "ok").Inc()
	}
}

// WebhookSink hands changes to a webhook dispatcher queue.
type WebhookSink struct {
	d *webhook.Dispatcher
}

func NewWebhookSink(d *webhook.Dispatcher) *WebhookSink {
	return &WebhookSink{d: d}
}

func (s *WebhookSink) Name() string { return s.d.Name() }

func (s *WebhookSink) Send(_ context.Context, c segment.Change) error {
	return s.d.Dispatch(webhook.NewEvent(c))
}

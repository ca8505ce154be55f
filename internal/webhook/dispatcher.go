package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/telemetry"
)

const (
	// queueSize is the buffer size for the event queue
	queueSize = 1000

	// maxResponseBodySize limits how much of a failed response body is logged
	maxResponseBodySize = 1024
)

// Options configures a Dispatcher.
type Options struct {
	Secret          string
	MaxRetries      uint
	Timeout         time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Client          *http.Client
	Logger          zerolog.Logger
}

// Dispatcher delivers events to endpoints from a single background worker.
type Dispatcher struct {
	endpoints []Endpoint
	opts      Options
	client    *http.Client
	log       zerolog.Logger
	queue     chan Event
	done      chan struct{}
	closed    int32 // atomic flag to prevent double-close
	now       func() time.Time
}

// NewDispatcher creates a new webhook dispatcher.
func NewDispatcher(endpoints []Endpoint, opts Options) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = time.Second
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = 30 * time.Second
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &Dispatcher{
		endpoints: endpoints,
		opts:      opts,
		client:    client,
		log:       opts.Logger.With().Str("component", "webhook").Logger(),
		queue:     make(chan Event, queueSize),
		done:      make(chan struct{}),
		now:       time.Now,
	}
}

// Start begins processing events from the queue.
func (d *Dispatcher) Start() {
	go d.worker()
}

// Close drains the queue and waits for pending deliveries.
// Close is safe to call multiple times - subsequent calls are no-ops.
func (d *Dispatcher) Close() error {
	if !atomic.CompareAndSwapInt32(&d.closed, 0, 1) {
		return nil
	}
	close(d.queue)
	<-d.done
	return nil
}

// Name identifies the dispatcher as an event sink.
func (d *Dispatcher) Name() string { return "webhook" }

// Dispatch queues an event for delivery without blocking the caller. Events
// are dropped when the queue is full.
func (d *Dispatcher) Dispatch(event Event) error {
	if atomic.LoadInt32(&d.closed) == 1 {
		return fmt.Errorf("webhook dispatcher closed")
	}
	select {
	case d.queue <- event:
		d.log.Debug().Str("event", event.Type).Str("segment_id", event.Resource.ID).Int("queue_size", len(d.queue)).Msg("event queued")
		return nil
	default:
		telemetry.WebhookDeliveries.WithLabelValues("dropped").Inc()
		d.log.Error().Str("event", event.Type).Str("segment_id", event.Resource.ID).Int("queue_capacity", queueSize).Msg("webhook queue full, dropping event")
		return fmt.Errorf("webhook queue full")
	}
}

func (d *Dispatcher) worker() {
	defer close(d.done)

	for event := range d.queue {
		for _, ep := range d.endpoints {
			if !ep.wants(event.Type) {
				continue
			}
			d.deliverWithRetry(context.Background(), ep, event)
		}
	}
}

// deliverWithRetry posts event to ep, retrying 5xx, 429 and transport errors
// with exponential backoff. Other 4xx responses are permanent failures.
func (d *Dispatcher) deliverWithRetry(ctx context.Context, ep Endpoint, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		d.log.Error().Err(err).Str("event", event.Type).Msg("failed to marshal webhook payload")
		return
	}

	attempt := 0
	op := func() (int, error) {
		attempt++
		return d.deliver(ctx, ep, event, payload)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.opts.InitialInterval
	b.MaxInterval = d.opts.MaxInterval

	status, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(d.opts.MaxRetries+1),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			telemetry.WebhookDeliveries.WithLabelValues("retry").Inc()
			d.log.Warn().Err(err).Str("url", ep.URL).Str("event", event.Type).Int("attempt", attempt).Dur("retry_in", next).Msg("webhook delivery failed")
		}),
	)
	if err != nil {
		telemetry.WebhookDeliveries.WithLabelValues("failed").Inc()
		d.log.Error().Err(err).Str("url", ep.URL).Str("event", event.Type).Int("attempts", attempt).Msg("webhook delivery failed permanently")
		return
	}
	telemetry.WebhookDeliveries.WithLabelValues("delivered").Inc()
	d.log.Info().Str("url", ep.URL).Str("event", event.Type).Int("status", status).Int("attempts", attempt).Msg("webhook delivered")
}

func (d *Dispatcher) deliver(ctx context.Context, ep Endpoint, event Event, payload []byte) (int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, ep.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Segments-Event", event.Type)
	req.Header.Set("X-Segments-Delivery", event.ID)
	if d.opts.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(payload, d.opts.Secret, d.now()))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	err = fmt.Errorf("endpoint returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return resp.StatusCode, err
	}
	return resp.StatusCode, backoff.Permanent(err)
}

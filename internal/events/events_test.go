package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/segment"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/store"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/webhook"
)

type recordingSink struct {
	name string
	err  error
	mu   sync.Mutex
	got  []segment.Change
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Send(_ context.Context, c segment.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, c)
	return s.err
}

func (s *recordingSink) changes() []segment.Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]segment.Change(nil), s.got...)
}

func change(t segment.ChangeType, id string) segment.Change {
	return segment.Change{Type: t, Segment: store.Segment{ID: id, Name: id}, At: time.Unix(1700000000, 0).UTC()}
}

func TestForwarder_FansOutInOrder(t *testing.T) {
	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b"}
	f := NewForwarder(zerolog.Nop(), time.Second, a, b)
	assert.Equal(t, 2, f.Sinks())

	ch := make(chan segment.Change, 3)
	ch <- change(segment.ChangeCreated, "s1")
	ch <- change(segment.ChangeUpdated, "s1")
	ch <- change(segment.ChangeDeleted, "s1")
	close(ch)

	f.Run(context.Background(), ch)

	for _, s := range []*recordingSink{a, b} {
		got := s.changes()
		require.Len(t, got, 3)
		assert.Equal(t, segment.ChangeCreated, got[0].Type)
		assert.Equal(t, segment.ChangeUpdated, got[1].Type)
		assert.Equal(t, segment.ChangeDeleted, got[2].Type)
	}
}

func TestForwarder_FailingSinkDoesNotStopOthers(t *testing.T) {
	bad := &recordingSink{name: "bad", err: errors.New("boom")}
	good := &recordingSink{name: "good"}
	f := NewForwarder(zerolog.Nop(), time.Second, bad, good)

	ch := make(chan segment.Change, 2)
	ch <- change(segment.ChangeCreated, "s1")
	ch <- change(segment.ChangeCreated, "s2")
	close(ch)
	f.Run(context.Background(), ch)

	assert.Len(t, bad.changes(), 2)
	assert.Len(t, good.changes(), 2)
}

func TestForwarder_StopsOnCancel(t *testing.T) {
	f := NewForwarder(zerolog.Nop(), 0, &recordingSink{name: "a"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.Run(ctx, make(chan segment.Change))
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestForwarder_WithRegistrySubscription(t *testing.T) {
	n := segment.NewNotifier()
	sub, unsub := n.Subscribe(8)
	sink := &recordingSink{name: "rec"}
	f := NewForwarder(zerolog.Nop(), time.Second, sink)

	done := make(chan struct{})
	go func() {
		f.Run(context.Background(), sub)
		close(done)
	}()
	n.Publish(change(segment.ChangeActivated, "s1"))
	unsub()
	<-done

	got := sink.changes()
	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].Segment.ID)
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher_Send(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w}
	assert.Equal(t, "kafka", p.Name())

	c := change(segment.ChangeRecounted, "seg-9")
	require.NoError(t, p.Send(context.Background(), c))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "seg-9", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event", msg.Headers[0].Key)
	assert.Equal(t, "segment.recounted", string(msg.Headers[0].Value))

	var decoded segment.Change
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, c.Type, decoded.Type)
	assert.Equal(t, "seg-9", decoded.Segment.ID)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_WrapsWriteError(t *testing.T) {
	cause := errors.New("broker down")
	p := &KafkaPublisher{writer: &fakeWriter{err: cause}}
	err := p.Send(context.Background(), change(segment.ChangeCreated, "s"))
	assert.ErrorIs(t, err, cause)
}

func TestNewKafkaPublisher_ConfiguresWriter(t *testing.T) {
	p := NewKafkaPublisher([]string{"localhost:9092"}, "segment-changes")
	w, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "segment-changes", w.Topic)
	require.NoError(t, p.Close())
}

func TestWebhookSink_Dispatches(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	d := webhook.NewDispatcher([]webhook.Endpoint{{URL: srv.URL}}, webhook.Options{Logger: zerolog.Nop()})
	d.Start()
	s := NewWebhookSink(d)
	assert.Equal(t, "webhook", s.Name())
	require.NoError(t, s.Send(context.Background(), change(segment.ChangeCreated, "s1")))
	require.NoError(t, d.Close())

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/tbourn/go-leaderboard-backend/internal/config"
	"github.com/tbourn/go-leaderboard-backend/internal/domain"
)

func window(ids ...string) []domain.RankedEntry {
	out := make([]domain.RankedEntry, len(ids))
	for i, id := range ids {
		out[i] = domain.RankedEntry{Rank: int64(i + 1), Entry: domain.Entry{UserID: id, Score: int64(100 - i)}}
	}
	return out
}

func recv(t *testing.T, s *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		if !ok {
			t.Fatalf("subscription closed unexpectedly (%s)", s.Reason())
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return Event{}
}

func TestHub_PublishAndPersonalize(t *testing.T) {
	h := NewHub(Options{Buffer: 4, MaxPerIdentity: 2}, zerolog.Nop())
	anon, err := h.Subscribe("10.0.0.1", "")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	me, _ := h.Subscribe("bob", "bob")

	h.PublishSnapshot(window("alice", "bob"))

	a := recv(t, anon)
	if a.Type != EventSnapshot || len(a.Entries) != 2 || a.You != nil || a.Seq == 0 {
		t.Fatalf("anonymous event unexpected: %+v", a)
	}
	b := recv(t, me)
	if b.You == nil || b.You.UserID != "bob" || b.You.Rank != 2 {
		t.Fatalf("personalized event unexpected: %+v", b)
	}
}

func TestHub_NewSubscriberGetsLatestSnapshot(t *testing.T) {
	h := NewHub(Options{Buffer: 4, MaxPerIdentity: 1}, zerolog.Nop())
	h.PublishSnapshot(window("a"))
	h.PublishSnapshot(window("b"))
	s, _ := h.Subscribe("x", "")
	ev := recv(t, s)
	if ev.Entries[0].UserID != "b" {
		t.Fatalf("expected latest snapshot, got %+v", ev)
	}
}

func TestHub_AdmissionLimitPerIdentity(t *testing.T) {
	h := NewHub(Options{Buffer: 1, MaxPerIdentity: 2}, zerolog.Nop())
	s1, _ := h.Subscribe("ip", "")
	if _, err := h.Subscribe("ip", ""); err != nil {
		t.Fatalf("second subscription: %v", err)
	}
	if _, err := h.Subscribe("ip", ""); !errors.Is(err, ErrTooManySubscribers) {
		t.Fatalf("third subscription err = %v; want ErrTooManySubscribers", err)
	}
	if _, err := h.Subscribe("other", ""); err != nil {
		t.Fatalf("other identity should be admitted: %v", err)
	}
	h.Unsubscribe(s1)
	h.Unsubscribe(s1)
	if _, err := h.Subscribe("ip", ""); err != nil {
		t.Fatalf("slot should free after unsubscribe: %v", err)
	}
	if s1.Reason() != ReasonUnsubscribed {
		t.Fatalf("reason = %q", s1.Reason())
	}
}

func TestHub_DropOldestKeepsNewest(t *testing.T) {
	h := NewHub(Options{Buffer: 2, MaxPerIdentity: 1, Policy: config.OverflowDropOldest}, zerolog.Nop())
	s, _ := h.Subscribe("slow", "")
	for _, id := range []string{"a", "b", "c", "d"} {
		h.PublishSnapshot(window(id))
	}
	first, second := recv(t, s), recv(t, s)
	if first.Entries[0].UserID != "c" || second.Entries[0].UserID != "d" {
		t.Fatalf("expected the two newest events, got %s,%s", first.Entries[0].UserID, second.Entries[0].UserID)
	}
	if h.Len() != 1 {
		t.Fatalf("drop_oldest must keep the subscription")
	}
}

func TestHub_DisconnectPolicyClosesSlowSubscriber(t *testing.T) {
	h := NewHub(Options{Buffer: 1, MaxPerIdentity: 1, Policy: config.OverflowDisconnect}, zerolog.Nop())
	s, _ := h.Subscribe("slow", "")
	h.PublishSnapshot(window("a"))
	h.PublishSnapshot(window("b"))

	if h.Len() != 0 {
		t.Fatalf("slow subscriber should be removed")
	}
	<-s.Events() // buffered "a"
	if _, ok := <-s.Events(); ok {
		t.Fatalf("channel should be closed")
	}
	if s.Reason() != ReasonSlowConsumer {
		t.Fatalf("reason = %q; want %q", s.Reason(), ReasonSlowConsumer)
	}
	if _, err := h.Subscribe("slow", ""); err != nil {
		t.Fatalf("identity slot should be released: %v", err)
	}
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	h := NewHub(Options{Buffer: 1, MaxPerIdentity: 1}, zerolog.Nop())
	_, _ = h.Subscribe("never-reads", "")
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			h.PublishSnapshot(window("x"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Publish blocked on a slow subscriber")
	}
}

func TestHub_HeartbeatForIdleSubscribers(t *testing.T) {
	h := NewHub(Options{Buffer: 4, MaxPerIdentity: 1, Heartbeat: 20 * time.Millisecond}, zerolog.Nop())
	s, _ := h.Subscribe("idle", "")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { h.Run(ctx); close(done) }()

	ev := recv(t, s)
	if ev.Type != EventHeartbeat {
		t.Fatalf("expected heartbeat, got %+v", ev)
	}
	cancel()
	<-done
	if _, err := h.Subscribe("late", ""); !errors.Is(err, ErrClosed) {
		t.Fatalf("Subscribe after Run exit err = %v; want ErrClosed", err)
	}
	for range s.Events() {
	}
	if s.Reason() != ReasonShutdown {
		t.Fatalf("reason = %q; want %q", s.Reason(), ReasonShutdown)
	}
}

type recordingSink struct {
	mu  sync.Mutex
	got []Event
}

func (r *recordingSink) Send(ev Event) {
	r.mu.Lock()
	r.got = append(r.got, ev)
	r.mu.Unlock()
}

func TestHub_SinksReceiveSnapshotsOnly(t *testing.T) {
	sink := &recordingSink{}
	h := NewHub(Options{}, zerolog.Nop(), sink)
	h.PublishSnapshot(window("a"))
	h.Publish(Event{Type: EventHeartbeat})
	if len(sink.got) != 1 || sink.got[0].Type != EventSnapshot {
		t.Fatalf("sink events unexpected: %+v", sink.got)
	}
}

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
	fail   error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeWriter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func TestKafkaSink_WritesQueuedEvents(t *testing.T) {
	w := &fakeWriter{}
	k := newKafkaSinkWithWriter(w, zerolog.Nop())
	k.Start(context.Background())

	h := NewHub(Options{}, zerolog.Nop(), k)
	h.PublishSnapshot(window("a", "b"))

	deadline := time.Now().Add(time.Second)
	for w.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := k.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if w.count() != 1 || !w.closed {
		t.Fatalf("writer state unexpected: msgs=%d closed=%v", w.count(), w.closed)
	}
	if string(w.msgs[0].Key) != EventSnapshot || len(w.msgs[0].Headers) != 1 {
		t.Fatalf("message unexpected: %+v", w.msgs[0])
	}
}

func TestKafkaSink_FullQueueDrops(t *testing.T) {
	k := newKafkaSinkWithWriter(&fakeWriter{}, zerolog.Nop())
	// not started: nothing drains the queue
	for i := 0; i < kafkaQueueSize+10; i++ {
		k.Send(Event{Type: EventSnapshot})
	}
	if len(k.queue) != kafkaQueueSize {
		t.Fatalf("queue len = %d; want %d", len(k.queue), kafkaQueueSize)
	}
	if err := k.Stop(); err != nil {
		t.Fatalf("Stop without Start: %v", err)
	}
}

func TestNewKafkaSink_Validation(t *testing.T) {
	if _, err := NewKafkaSink(config.KafkaConfig{}, zerolog.Nop()); err == nil {
		t.Fatalf("expected error without brokers")
	}
	k, err := NewKafkaSink(config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t"}, zerolog.Nop())
	if err != nil || k == nil {
		t.Fatalf("NewKafkaSink: %v", err)
	}
	_ = k.Stop()
}

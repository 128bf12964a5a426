// Package stream fans leaderboard changes out to live subscribers.
//
// Every subscription owns a bounded channel. Publish never blocks: when a
// subscriber's buffer is full the hub either evicts that subscriber's oldest
// queued event (drop_oldest) or closes the subscription (disconnect). Delivery
// is best effort; a subscriber that reconnects receives the latest snapshot
// first.
package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-leaderboard-backend/internal/config"
	"github.com/tbourn/go-leaderboard-backend/internal/domain"
	"github.com/tbourn/go-leaderboard-backend/internal/observability"
)

// Event types.
const (
	EventSnapshot  = "snapshot"
	EventHeartbeat = "heartbeat"
)

// Close reasons reported by Subscription.Reason.
const (
	ReasonSlowConsumer = "slow_consumer"
	ReasonUnsubscribed = "unsubscribed"
	ReasonShutdown     = "shutdown"
)

var (
	// ErrTooManySubscribers is returned when an identity already holds the
	// maximum number of concurrent subscriptions.
	ErrTooManySubscribers = errors.New("too many live subscriptions for this identity")
	// ErrClosed is returned by Subscribe after Close.
	ErrClosed = errors.New("stream hub closed")
)

// Event is one message on the live channel.
type Event struct {
	Type    string               `json:"type"`
	Seq     uint64               `json:"seq"`
	At      time.Time            `json:"at"`
	Entries []domain.RankedEntry `json:"entries,omitempty"`
	You     *domain.RankedEntry  `json:"you,omitempty"`
}

// Sink receives every published ranking event. Send must not block.
type Sink interface {
	Send(Event)
}

// Options configures a Hub.
type Options struct {
	Buffer         int
	Policy         string // config.OverflowDropOldest or config.OverflowDisconnect
	MaxPerIdentity int
	Heartbeat      time.Duration
}

// Subscription is one live consumer.
type Subscription struct {
	ID       string
	Identity string
	UserID   string

	mu       sync.Mutex
	ch       chan Event
	closed   bool
	reason   string
	lastSend atomic.Int64
}

// Events yields delivered events; it is closed when the subscription ends.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Reason tells why the subscription ended.
func (s *Subscription) Reason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

func (s *Subscription) personalize(ev Event) Event {
	if s.UserID == "" || ev.Type != EventSnapshot {
		return ev
	}
	for i := range ev.Entries {
		if ev.Entries[i].UserID == s.UserID {
			you := ev.Entries[i]
			ev.You = &you
			break
		}
	}
	return ev
}

// offer enqueues ev without blocking. It reports whether an event was lost
// and whether the subscription was closed as a result.
func (s *Subscription) offer(ev Event, policy string) (dropped, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, false
	}
	select {
	case s.ch <- ev:
		s.lastSend.Store(time.Now().UnixNano())
		return false, false
	default:
	}
	if policy == config.OverflowDisconnect {
		s.closeLocked(ReasonSlowConsumer)
		return true, true
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- ev:
		s.lastSend.Store(time.Now().UnixNano())
	default:
	}
	return true, false
}

func (s *Subscription) closeLocked(reason string) {
	if s.closed {
		return
	}
	s.closed = true
	s.reason = reason
	close(s.ch)
}

func (s *Subscription) close(reason string) {
	s.mu.Lock()
	s.closeLocked(reason)
	s.mu.Unlock()
}

// Hub keeps the set of live subscriptions.
type Hub struct {
	opts  Options
	log   zerolog.Logger
	sinks []Sink

	mu         sync.RWMutex
	subs       map[string]*Subscription
	perID      map[string]int
	last       *Event
	closed     bool
	seq        atomic.Uint64
	closedOnce sync.Once
}

// NewHub builds a hub. Zero options fall back to small safe defaults.
func NewHub(opts Options, log zerolog.Logger, sinks ...Sink) *Hub {
	if opts.Buffer < 1 {
		opts.Buffer = 16
	}
	if opts.MaxPerIdentity < 1 {
		opts.MaxPerIdentity = 1
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 15 * time.Second
	}
	if opts.Policy != config.OverflowDisconnect {
		opts.Policy = config.OverflowDropOldest
	}
	return &Hub{
		opts:  opts,
		log:   log.With().Str("component", "stream_hub").Logger(),
		sinks: sinks,
		subs:  make(map[string]*Subscription),
		perID: make(map[string]int),
	}
}

// Subscribe registers a subscription for identity (the admission key: user
// id or client address). userID, when set, personalizes snapshots. The
// latest snapshot, if any, is queued immediately.
func (h *Hub) Subscribe(identity, userID string) (*Subscription, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	sub := &Subscription{
		ID:       id,
		Identity: identity,
		UserID:   userID,
		ch:       make(chan Event, h.opts.Buffer),
	}
	sub.lastSend.Store(time.Now().UnixNano())

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	if h.perID[identity] >= h.opts.MaxPerIdentity {
		h.mu.Unlock()
		return nil, ErrTooManySubscribers
	}
	h.perID[identity]++
	h.subs[id] = sub
	last := h.last
	h.mu.Unlock()

	observability.StreamSubscribers.Inc()
	if last != nil {
		sub.offer(sub.personalize(*last), h.opts.Policy)
	}
	h.log.Debug().Str("subscription", id).Str("identity", identity).Msg("subscribed")
	return sub, nil
}

// Unsubscribe ends sub. It is safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.remove(sub, ReasonUnsubscribed)
}

func (h *Hub) remove(sub *Subscription, reason string) {
	h.mu.Lock()
	if _, ok := h.subs[sub.ID]; !ok {
		h.mu.Unlock()
		sub.close(reason)
		return
	}
	delete(h.subs, sub.ID)
	if h.perID[sub.Identity] <= 1 {
		delete(h.perID, sub.Identity)
	} else {
		h.perID[sub.Identity]--
	}
	h.mu.Unlock()

	sub.close(reason)
	observability.StreamSubscribers.Dec()
}

// Publish delivers ev to every subscription and sink without blocking.
func (h *Hub) Publish(ev Event) {
	ev.Seq = h.seq.Add(1)
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	if ev.Type == EventSnapshot {
		snap := ev
		h.last = &snap
	}
	subs := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		dropped, closed := s.offer(s.personalize(ev), h.opts.Policy)
		if dropped {
			observability.StreamDropped.WithLabelValues(h.opts.Policy).Inc()
		}
		if closed {
			h.log.Warn().Str("subscription", s.ID).Str("identity", s.Identity).Msg("slow subscriber disconnected")
			h.remove(s, ReasonSlowConsumer)
		}
	}
	if ev.Type == EventSnapshot {
		for _, sk := range h.sinks {
			sk.Send(ev)
		}
	}
}

// PublishSnapshot publishes the given ranked window.
func (h *Hub) PublishSnapshot(entries []domain.RankedEntry) {
	h.Publish(Event{Type: EventSnapshot, Entries: entries})
}

// Len is the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Run sends heartbeats to subscriptions idle for the heartbeat interval
// until ctx is done, then closes the hub.
func (h *Hub) Run(ctx context.Context) {
	tick := h.opts.Heartbeat / 2
	if tick <= 0 {
		tick = h.opts.Heartbeat
	}
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			h.Close()
			return
		case now := <-t.C:
			h.heartbeat(now)
		}
	}
}

func (h *Hub) heartbeat(now time.Time) {
	h.mu.RLock()
	idle := make([]*Subscription, 0)
	for _, s := range h.subs {
		if now.UnixNano()-s.lastSend.Load() >= int64(h.opts.Heartbeat) {
			idle = append(idle, s)
		}
	}
	h.mu.RUnlock()
	if len(idle) == 0 {
		return
	}
	ev := Event{Type: EventHeartbeat, Seq: h.seq.Add(1), At: now.UTC()}
	for _, s := range idle {
		if _, closed := s.offer(ev, h.opts.Policy); closed {
			h.remove(s, ReasonSlowConsumer)
		}
	}
}

// Close ends every subscription and refuses new ones.
func (h *Hub) Close() {
	h.closedOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		subs := h.subs
		h.subs = make(map[string]*Subscription)
		h.perID = make(map[string]int)
		h.mu.Unlock()
		for _, s := range subs {
			s.close(ReasonShutdown)
			observability.StreamSubscribers.Dec()
		}
	})
}

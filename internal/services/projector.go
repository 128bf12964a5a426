// Package services – Projector
//
// Projector pushes committed ledger entries into the in-memory ranking index
// after the fact. Enqueue never blocks the score path: when the queue is full
// the update is dropped and counted, and the reconciler repairs the index on
// its next pass. After each applied update the visible top window is compared
// with the last broadcast one and a snapshot is published when it changed.
package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-leaderboard-backend/internal/domain"
	"github.com/tbourn/go-leaderboard-backend/internal/observability"
	"github.com/tbourn/go-leaderboard-backend/internal/ranking"
)

// RankIndex is the projection contract the projector, reader and reconciler
// rely on. ranking.Guarded implements it.
type RankIndex interface {
	Upsert(e domain.Entry) (bool, error)
	Remove(userID string) error
	TopN(n int) ([]domain.Entry, error)
	Lookup(userID string) (domain.RankedEntry, bool, error)
	Members() ([]string, error)
	Available() bool
	Rebuild(ctx context.Context, load ranking.Loader) error
}

// Broadcaster receives ranked windows for live subscribers.
type Broadcaster interface {
	PublishSnapshot(entries []domain.RankedEntry)
}

// ProjectorOptions tunes a Projector.
type ProjectorOptions struct {
	Queue      int
	MaxRetries int
	Backoff    time.Duration
	Window     int
}

// Projector applies entries to the index asynchronously.
type Projector struct {
	Index RankIndex
	Hub   Broadcaster
	Log   zerolog.Logger
	opts  ProjectorOptions

	queue chan domain.Entry
	mu    sync.Mutex
	last  []domain.Entry
}

// NewProjector builds a Projector. hub may be nil.
func NewProjector(idx RankIndex, hub Broadcaster, opts ProjectorOptions, log zerolog.Logger) *Projector {
	if opts.Queue < 1 {
		opts.Queue = 1024
	}
	if opts.Window < 1 {
		opts.Window = 10
	}
	return &Projector{
		Index: idx,
		Hub:   hub,
		Log:   log.With().Str("component", "projector").Logger(),
		opts:  opts,
		queue: make(chan domain.Entry, opts.Queue),
	}
}

// Enqueue schedules e for projection. It reports false when the update was
// dropped because the queue is full.
func (p *Projector) Enqueue(e domain.Entry) bool {
	select {
	case p.queue <- e:
		return true
	default:
		observability.ProjectorDropped.Inc()
		p.Log.Warn().Str("user_id", e.UserID).Msg("projector queue full, update dropped")
		return false
	}
}

// Run drains the queue until ctx is done.
func (p *Projector) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-p.queue:
			p.apply(ctx, e)
		}
	}
}

func (p *Projector) apply(ctx context.Context, e domain.Entry) {
	backoff := p.opts.Backoff
	var err error
	for attempt := 0; attempt <= p.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		var changed bool
		changed, err = p.Index.Upsert(e)
		if err == nil {
			if changed {
				p.Refresh()
			}
			return
		}
	}
	observability.ProjectorFailures.Inc()
	p.Log.Error().Err(err).Str("user_id", e.UserID).Int64("score", e.Score).Msg("index update abandoned")
}

// Refresh publishes the current top window if it differs from the last
// published one. The reconciler calls it after a rebuild. Reading the window
// and publishing it happen under one lock, so snapshots leave in the order
// they were read.
func (p *Projector) Refresh() {
	if p.Hub == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	top, err := p.Index.TopN(p.opts.Window)
	if err != nil || sameWindow(p.last, top) {
		return
	}
	p.last = top
	p.Hub.PublishSnapshot(domain.Rank(top))
}

func sameWindow(a, b []domain.Entry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

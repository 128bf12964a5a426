package ranking

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/tbourn/go-leaderboard-backend/internal/domain"
)

// ErrUnavailable is returned while the index has not finished its first
// load or is being rebuilt. Readers fall back to the ledger.
var ErrUnavailable = errors.New("ranking index unavailable")

// Loader produces the complete, ordered leaderboard from the source of truth.
type Loader func(ctx context.Context) ([]domain.Entry, error)

// Guarded wraps an Index with an availability flag.
type Guarded struct {
	idx     *Index
	ready   atomic.Bool
	rebuild atomic.Bool
}

// NewGuarded returns an unavailable, empty index. Call Rebuild (or Reset)
// to make it serve reads.
func NewGuarded() *Guarded {
	return &Guarded{idx: New()}
}

// Available reports whether reads are served from memory.
func (g *Guarded) Available() bool {
	return g.ready.Load() && !g.rebuild.Load()
}

// MarkUnavailable takes the index out of service until the next Reset or
// Rebuild.
func (g *Guarded) MarkUnavailable() { g.ready.Store(false) }

// Upsert forwards to the underlying index.
func (g *Guarded) Upsert(e domain.Entry) (bool, error) {
	if !g.Available() {
		return false, ErrUnavailable
	}
	return g.idx.Upsert(e), nil
}

// Remove forwards to the underlying index.
func (g *Guarded) Remove(userID string) error {
	if !g.Available() {
		return ErrUnavailable
	}
	g.idx.Remove(userID)
	return nil
}

// TopN forwards to the underlying index.
func (g *Guarded) TopN(n int) ([]domain.Entry, error) {
	if !g.Available() {
		return nil, ErrUnavailable
	}
	return g.idx.TopN(n), nil
}

// Lookup returns the ranked entry for userID.
func (g *Guarded) Lookup(userID string) (domain.RankedEntry, bool, error) {
	if !g.Available() {
		return domain.RankedEntry{}, false, ErrUnavailable
	}
	e, ok := g.idx.Get(userID)
	if !ok {
		return domain.RankedEntry{}, false, nil
	}
	r, ok := g.idx.RankOf(userID)
	if !ok {
		// removed between the two reads
		return domain.RankedEntry{}, false, nil
	}
	return domain.RankedEntry{Rank: r, Entry: e}, true, nil
}

// Members forwards to the underlying index.
func (g *Guarded) Members() ([]string, error) {
	if !g.Available() {
		return nil, ErrUnavailable
	}
	return g.idx.Members(), nil
}

// Len returns the number of ranked users, regardless of availability.
func (g *Guarded) Len() int { return g.idx.Len() }

// Reset replaces the content and marks the index available.
func (g *Guarded) Reset(entries []domain.Entry) {
	g.idx.Reset(entries)
	g.ready.Store(true)
}

// Rebuild takes the index out of service, reloads it from load and puts it
// back. On failure the previous content stays in place and availability is
// restored to what it was.
func (g *Guarded) Rebuild(ctx context.Context, load Loader) error {
	if !g.rebuild.CompareAndSwap(false, true) {
		return errors.New("ranking: rebuild already in progress")
	}
	defer g.rebuild.Store(false)

	entries, err := load(ctx)
	if err != nil {
		return err
	}
	g.Reset(entries)
	return nil
}

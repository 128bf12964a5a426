// Package ranking holds the in-memory leaderboard projection: a skip list
// ordered by (score DESC, watermark ASC, user ASC) whose forward links carry
// span counters, so rank lookups and top-N range reads are logarithmic.
//
// The projection is disposable. It is only written by the projector and the
// reconciler and can be rebuilt from the ledger at any time.
package ranking

import (
	"math/rand/v2"
	"sync"

	"github.com/tbourn/go-leaderboard-backend/internal/domain"
)

const (
	maxLevel = 32
	levelP   = 0.25
)

type link struct {
	next *node
	span int64 // number of level-0 hops covered by next
}

type node struct {
	entry  domain.Entry
	levels []link
}

// Index is a concurrency-safe ranked set of leaderboard entries, one per user.
type Index struct {
	mu     sync.RWMutex
	head   *node
	level  int
	length int64
	byUser map[string]domain.Entry
}

// New returns an empty Index.
func New() *Index {
	idx := &Index{}
	idx.clear()
	return idx
}

func (x *Index) clear() {
	x.head = &node{levels: make([]link, maxLevel)}
	x.level = 1
	x.length = 0
	x.byUser = make(map[string]domain.Entry)
}

// Len returns the number of ranked users.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return int(x.length)
}

// Upsert places e at its ordered position, replacing any previous entry for
// the same user. It reports whether the stored entry changed.
func (x *Index) Upsert(e domain.Entry) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.upsertLocked(e)
}

func (x *Index) upsertLocked(e domain.Entry) bool {
	if old, ok := x.byUser[e.UserID]; ok {
		// stale or repeated update for this user
		if old == e || old.Watermark > e.Watermark {
			return false
		}
		x.delete(old)
	}
	x.insert(e)
	x.byUser[e.UserID] = e
	return true
}

// Remove drops userID from the index. It reports whether it was present.
func (x *Index) Remove(userID string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	old, ok := x.byUser[userID]
	if !ok {
		return false
	}
	x.delete(old)
	delete(x.byUser, userID)
	return true
}

// Get returns the stored entry for userID.
func (x *Index) Get(userID string) (domain.Entry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	e, ok := x.byUser[userID]
	return e, ok
}

// RankOf returns the 1-based rank of userID.
func (x *Index) RankOf(userID string) (int64, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	e, ok := x.byUser[userID]
	if !ok {
		return 0, false
	}
	return x.rank(e), true
}

// TopN returns up to n leading entries in rank order.
func (x *Index) TopN(n int) []domain.Entry {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	if int64(n) > x.length {
		n = int(x.length)
	}
	out := make([]domain.Entry, 0, n)
	for cur := x.head.levels[0].next; cur != nil && len(out) < n; cur = cur.levels[0].next {
		out = append(out, cur.entry)
	}
	return out
}

// Members returns every ranked user id in rank order.
func (x *Index) Members() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]string, 0, x.length)
	for cur := x.head.levels[0].next; cur != nil; cur = cur.levels[0].next {
		out = append(out, cur.entry.UserID)
	}
	return out
}

// Reset replaces the whole content with entries. Later duplicates of a user
// win over earlier ones.
func (x *Index) Reset(entries []domain.Entry) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.clear()
	for _, e := range entries {
		x.upsertLocked(e)
	}
}

func randomLevel() int {
	lvl := 1
	for lvl < maxLevel && rand.Float64() < levelP {
		lvl++
	}
	return lvl
}

func (x *Index) insert(e domain.Entry) {
	var (
		update [maxLevel]*node
		rank   [maxLevel]int64
	)
	cur := x.head
	for i := x.level - 1; i >= 0; i-- {
		if i < x.level-1 {
			rank[i] = rank[i+1]
		}
		for cur.levels[i].next != nil && domain.Ahead(cur.levels[i].next.entry, e) {
			rank[i] += cur.levels[i].span
			cur = cur.levels[i].next
		}
		update[i] = cur
	}

	lvl := randomLevel()
	if lvl > x.level {
		for i := x.level; i < lvl; i++ {
			rank[i] = 0
			update[i] = x.head
			update[i].levels[i].span = x.length
		}
		x.level = lvl
	}

	n := &node{entry: e, levels: make([]link, lvl)}
	for i := 0; i < lvl; i++ {
		n.levels[i].next = update[i].levels[i].next
		update[i].levels[i].next = n
		n.levels[i].span = update[i].levels[i].span - (rank[0] - rank[i])
		update[i].levels[i].span = rank[0] - rank[i] + 1
	}
	for i := lvl; i < x.level; i++ {
		update[i].levels[i].span++
	}
	x.length++
}

func (x *Index) delete(e domain.Entry) {
	var update [maxLevel]*node
	cur := x.head
	for i := x.level - 1; i >= 0; i-- {
		for cur.levels[i].next != nil && domain.Ahead(cur.levels[i].next.entry, e) {
			cur = cur.levels[i].next
		}
		update[i] = cur
	}
	target := cur.levels[0].next
	if target == nil || target.entry != e {
		return
	}
	for i := 0; i < x.level; i++ {
		if update[i].levels[i].next == target {
			update[i].levels[i].span += target.levels[i].span - 1
			update[i].levels[i].next = target.levels[i].next
		} else {
			update[i].levels[i].span--
		}
	}
	for x.level > 1 && x.head.levels[x.level-1].next == nil {
		x.level--
	}
	x.length--
}

func (x *Index) rank(e domain.Entry) int64 {
	var r int64
	cur := x.head
	for i := x.level - 1; i >= 0; i-- {
		for cur.levels[i].next != nil && !domain.Ahead(e, cur.levels[i].next.entry) {
			r += cur.levels[i].span
			cur = cur.levels[i].next
		}
		if cur != x.head && cur.entry.UserID == e.UserID {
			return r
		}
	}
	return 0
}

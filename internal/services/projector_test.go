package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-leaderboard-backend/internal/domain"
	"github.com/tbourn/go-leaderboard-backend/internal/ranking"
)

// flakyIndex fails the first `fails` upserts.
type flakyIndex struct {
	*ranking.Guarded
	mu    sync.Mutex
	fails int
	calls int
}

func (f *flakyIndex) Upsert(e domain.Entry) (bool, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.fails
	f.mu.Unlock()
	if fail {
		return false, errors.New("index hiccup")
	}
	return f.Guarded.Upsert(e)
}

func readyIndex() *ranking.Guarded {
	g := ranking.NewGuarded()
	g.Reset(nil)
	return g
}

func TestProjector_EnqueueDropsWhenFull(t *testing.T) {
	p := NewProjector(readyIndex(), nil, ProjectorOptions{Queue: 1}, zerolog.Nop())
	if !p.Enqueue(domain.Entry{UserID: "a", Score: 1}) {
		t.Fatalf("first enqueue must succeed")
	}
	if p.Enqueue(domain.Entry{UserID: "b", Score: 1}) {
		t.Fatalf("enqueue on a full queue must drop")
	}
}

func TestProjector_RetriesThenApplies(t *testing.T) {
	idx := &flakyIndex{Guarded: readyIndex(), fails: 2}
	hub := &recordingHub{}
	p := NewProjector(idx, hub, ProjectorOptions{MaxRetries: 2, Backoff: time.Millisecond}, zerolog.Nop())

	p.apply(context.Background(), domain.Entry{UserID: "a", Score: 5, Watermark: 1})
	if idx.calls != 3 {
		t.Fatalf("calls = %d; want 3", idx.calls)
	}
	if re, ok, _ := idx.Lookup("a"); !ok || re.Score != 5 {
		t.Fatalf("entry not applied after retries: %+v", re)
	}
	if hub.len() != 1 {
		t.Fatalf("snapshots = %d; want 1", hub.len())
	}
}

func TestProjector_GivesUpAfterMaxRetries(t *testing.T) {
	idx := &flakyIndex{Guarded: readyIndex(), fails: 10}
	hub := &recordingHub{}
	p := NewProjector(idx, hub, ProjectorOptions{MaxRetries: 1, Backoff: time.Millisecond}, zerolog.Nop())

	p.apply(context.Background(), domain.Entry{UserID: "a", Score: 5})
	if idx.calls != 2 {
		t.Fatalf("calls = %d; want 2", idx.calls)
	}
	if _, ok, _ := idx.Lookup("a"); ok {
		t.Fatalf("abandoned update must not be visible")
	}
	if hub.len() != 0 {
		t.Fatalf("no snapshot expected, got %d", hub.len())
	}
}

func TestProjector_RefreshOnlyOnWindowChange(t *testing.T) {
	idx := readyIndex()
	hub := &recordingHub{}
	p := NewProjector(idx, hub, ProjectorOptions{Window: 2}, zerolog.Nop())

	p.apply(context.Background(), domain.Entry{UserID: "a", Score: 30, Watermark: 1})
	p.apply(context.Background(), domain.Entry{UserID: "b", Score: 20, Watermark: 2})
	if hub.len() != 2 {
		t.Fatalf("snapshots = %d; want 2", hub.len())
	}
	// below the visible window
	p.apply(context.Background(), domain.Entry{UserID: "c", Score: 1, Watermark: 3})
	p.Refresh()
	if hub.len() != 2 {
		t.Fatalf("unchanged window published again: %d", hub.len())
	}

	p.apply(context.Background(), domain.Entry{UserID: "c", Score: 99, Watermark: 4})
	if hub.len() != 3 {
		t.Fatalf("snapshots = %d; want 3", hub.len())
	}
	last := hub.snaps[2]
	if len(last) != 2 || last[0].UserID != "c" || last[0].Rank != 1 || last[1].UserID != "a" {
		t.Fatalf("last snapshot = %+v", last)
	}
}

func TestProjector_RunDrainsUntilCancel(t *testing.T) {
	idx := readyIndex()
	p := NewProjector(idx, nil, ProjectorOptions{}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { p.Run(ctx); close(done) }()

	p.Enqueue(domain.Entry{UserID: "a", Score: 7, Watermark: 1})
	deadline := time.Now().Add(time.Second)
	for {
		if _, ok, _ := idx.Lookup("a"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("projector did not apply queued entry")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done
}

func TestProjector_ConcurrentRefreshEndsOnLatestWindow(t *testing.T) {
	idx := readyIndex()
	hub := &recordingHub{}
	p := NewProjector(idx, hub, ProjectorOptions{Window: 3}, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 1; i <= 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = idx.Upsert(domain.Entry{UserID: fmt.Sprintf("u%02d", i), Score: int64(i), Watermark: int64(i)})
			p.Refresh()
		}(i)
	}
	wg.Wait()

	want, _ := idx.TopN(3)
	hub.mu.Lock()
	defer hub.mu.Unlock()
	if len(hub.snaps) == 0 {
		t.Fatalf("no snapshot published")
	}
	last := hub.snaps[len(hub.snaps)-1]
	if len(last) != len(want) {
		t.Fatalf("last snapshot = %+v; want %+v", last, want)
	}
	for i := range want {
		if last[i].Entry != want[i] {
			t.Fatalf("last snapshot = %+v; want %+v", last, want)
		}
	}
}

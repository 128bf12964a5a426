package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-leaderboard-backend/internal/config"
	"github.com/tbourn/go-leaderboard-backend/internal/domain"
	"github.com/tbourn/go-leaderboard-backend/internal/ranking"
	"github.com/tbourn/go-leaderboard-backend/internal/repo"
	"github.com/tbourn/go-leaderboard-backend/internal/token"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var testTimeouts = config.PipelineConfig{
	ValidateTimeout: time.Second,
	AdmitTimeout:    2 * time.Second,
	LedgerTimeout:   5 * time.Second,
	LockTimeout:     2 * time.Second,
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	sqlDB, _ := db.DB()
	// single connection: the in-memory database lives as long as it is open
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newSigner(t *testing.T) *token.Signer {
	t.Helper()
	s, err := token.NewSigner(testSecret, nil, time.Hour)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return s
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fixture wires the whole pipeline on one in-memory database.
type fixture struct {
	db        *gorm.DB
	signer    *token.Signer
	clock     *fakeClock
	guard     *Guard
	ledger    *Ledger
	index     *ranking.Guarded
	hub       *recordingHub
	projector *Projector
	scores    *ScoreService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	log := zerolog.Nop()
	f := &fixture{
		db:     db,
		signer: newSigner(t),
		clock:  newClock(),
		guard:  NewGuard(db, log),
		ledger: NewLedger(db, testTimeouts.LockTimeout, log),
		index:  ranking.NewGuarded(),
		hub:    &recordingHub{},
	}
	f.index.Reset(nil)
	f.projector = NewProjector(f.index, f.hub, ProjectorOptions{Queue: 64, MaxRetries: 2, Backoff: time.Millisecond, Window: 3}, log)
	f.scores = NewScoreService(f.signer, f.guard, f.ledger, f.projector, testTimeouts, log)
	f.scores.Now = f.clock.Now
	return f
}

func (f *fixture) issue(t *testing.T, actionID, userID string, maxScore int64) string {
	t.Helper()
	tok, _, err := f.signer.Issue(actionID, userID, maxScore, 10*time.Minute, f.clock.Now())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return tok
}

// drain applies every queued projector update synchronously.
func (f *fixture) drain() {
	for {
		select {
		case e := <-f.projector.queue:
			f.projector.apply(context.Background(), e)
		default:
			return
		}
	}
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

type recordingHub struct {
	mu    sync.Mutex
	snaps [][]domain.RankedEntry
}

func (h *recordingHub) PublishSnapshot(entries []domain.RankedEntry) {
	h.mu.Lock()
	h.snaps = append(h.snaps, entries)
	h.mu.Unlock()
}

func (h *recordingHub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.snaps)
}

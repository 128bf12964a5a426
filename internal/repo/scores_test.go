package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tbourn/go-leaderboard-backend/internal/domain"
)

func TestEnsureAndLockScoreRecord(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := LockScoreRecord(ctx, db, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("lock before ensure err = %v; want ErrNotFound", err)
	}
	if err := EnsureScoreRecord(ctx, db, "u1", now); err != nil {
		t.Fatalf("EnsureScoreRecord: %v", err)
	}
	if err := SaveScore(ctx, db, "u1", 40, 7, now); err != nil {
		t.Fatalf("SaveScore: %v", err)
	}
	// A second ensure must not reset the row.
	if err := EnsureScoreRecord(ctx, db, "u1", now); err != nil {
		t.Fatalf("EnsureScoreRecord again: %v", err)
	}
	rec, err := LockScoreRecord(ctx, db, "u1")
	if err != nil {
		t.Fatalf("LockScoreRecord: %v", err)
	}
	if rec.TotalScore != 40 || rec.RankWatermark != 7 {
		t.Fatalf("record unexpected: %+v", rec)
	}
}

func TestCountAhead_TieBreak(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	rows := []domain.ScoreRecord{
		{UserID: "A", TotalScore: 1000, RankWatermark: 10, UpdatedAt: now},
		{UserID: "B", TotalScore: 1000, RankWatermark: 12, UpdatedAt: now},
		{UserID: "C", TotalScore: 1000, RankWatermark: 12, UpdatedAt: now},
		{UserID: "D", TotalScore: 2000, RankWatermark: 99, UpdatedAt: now},
	}
	if err := db.Create(&rows).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	want := map[string]int64{"D": 0, "A": 1, "B": 2, "C": 3}
	for _, r := range rows {
		n, err := CountAhead(ctx, db, r.Entry())
		if err != nil {
			t.Fatalf("CountAhead: %v", err)
		}
		if n != want[r.UserID] {
			t.Fatalf("CountAhead(%s) = %d; want %d", r.UserID, n, want[r.UserID])
		}
	}

	top, err := TopScores(ctx, db, 3)
	if err != nil {
		t.Fatalf("TopScores: %v", err)
	}
	if len(top) != 3 || top[0].UserID != "D" || top[1].UserID != "A" || top[2].UserID != "B" {
		t.Fatalf("TopScores order unexpected: %+v", top)
	}
}

func TestTopScores_SkipsZeroRecords(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_ = EnsureScoreRecord(ctx, db, "zero", time.Now().UTC())
	top, err := TopScores(ctx, db, 10)
	if err != nil || len(top) != 0 {
		t.Fatalf("TopScores = %+v,%v; want empty", top, err)
	}
}

func TestScanScores_VisitsAll(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	for i := 0; i < 25; i++ {
		rec := domain.ScoreRecord{UserID: fmt.Sprintf("u%02d", i), TotalScore: int64(i + 1), UpdatedAt: now}
		if err := db.Create(&rec).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	seen := map[string]bool{}
	batches := 0
	err := ScanScores(ctx, db, 10, func(rows []domain.ScoreRecord) error {
		batches++
		for _, r := range rows {
			seen[r.UserID] = true
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ScanScores: %v", err)
	}
	if len(seen) != 25 || batches != 3 {
		t.Fatalf("seen=%d batches=%d; want 25,3", len(seen), batches)
	}

	boom := errors.New("boom")
	if err := ScanScores(ctx, db, 10, func([]domain.ScoreRecord) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("callback error not propagated: %v", err)
	}
}

func TestExistingUsers_Batches(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	ids := make([]string, 0, existsBatch+10)
	for i := 0; i < existsBatch+10; i++ {
		id := fmt.Sprintf("user-%04d", i)
		ids = append(ids, id)
		if i%2 == 0 {
			if err := EnsureScoreRecord(ctx, db, id, now); err != nil {
				t.Fatalf("seed: %v", err)
			}
		}
	}
	found, err := ExistingUsers(ctx, db, ids)
	if err != nil {
		t.Fatalf("ExistingUsers: %v", err)
	}
	if len(found) != (existsBatch+10+1)/2 {
		t.Fatalf("found %d; want %d", len(found), (existsBatch+10+1)/2)
	}
	if _, ok := found["user-0001"]; ok {
		t.Fatalf("odd ids should not exist")
	}
}

func TestScoreEvents_UniqueFingerprint_AndListing(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	for i, fp := range []string{"f1", "f2", "f3"} {
		ev := &domain.ScoreEvent{
			ID: fmt.Sprintf("e%d", i), UserID: "u1", TokenFingerprint: fp, ActionID: "a",
			Delta: 10, ScoreBefore: int64(i * 10), ScoreAfter: int64(i*10 + 10), CreatedAt: now,
		}
		if err := InsertScoreEvent(ctx, db, ev); err != nil {
			t.Fatalf("InsertScoreEvent: %v", err)
		}
	}
	dup := &domain.ScoreEvent{ID: "e9", UserID: "u1", TokenFingerprint: "f1", ActionID: "a", Delta: 1, CreatedAt: now}
	if err := InsertScoreEvent(ctx, db, dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate fingerprint err = %v; want ErrDuplicate", err)
	}

	evs, err := ListScoreEvents(ctx, db, "u1", 2)
	if err != nil {
		t.Fatalf("ListScoreEvents: %v", err)
	}
	if len(evs) != 2 || evs[0].ScoreAfter != 30 || evs[1].ScoreAfter != 20 {
		t.Fatalf("events unexpected: %+v", evs)
	}
}

// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for score records
// and the append-only score event history.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-leaderboard-backend/internal/domain"
)

// orderKey is the leaderboard ordering expressed in SQL.
const orderKey = "total_score DESC, rank_watermark ASC, user_id ASC"

// existsBatch bounds the IN list of ExistingUsers.
const existsBatch = 500

// EnsureScoreRecord inserts a zero record for userID unless one exists.
func EnsureScoreRecord(ctx context.Context, tx *gorm.DB, userID string, now time.Time) error {
	rec := domain.ScoreRecord{UserID: userID, UpdatedAt: now}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rec).Error
}

// LockScoreRecord loads userID's record for update. On PostgreSQL the row is
// locked with SELECT ... FOR UPDATE; SQLite serializes writers itself.
func LockScoreRecord(ctx context.Context, tx *gorm.DB, userID string) (*domain.ScoreRecord, error) {
	q := tx.WithContext(ctx)
	if IsPostgres(tx) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var rec domain.ScoreRecord
	err := q.Where("user_id = ?", userID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// SaveScore writes the new total and watermark of userID.
func SaveScore(ctx context.Context, tx *gorm.DB, userID string, total, watermark int64, now time.Time) error {
	return tx.WithContext(ctx).
		Model(&domain.ScoreRecord{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"total_score":    total,
			"rank_watermark": watermark,
			"updated_at":     now,
		}).Error
}

// InsertScoreEvent appends ev to the history. A second event for the same
// token fingerprint fails with ErrDuplicate.
func InsertScoreEvent(ctx context.Context, tx *gorm.DB, ev *domain.ScoreEvent) error {
	if err := tx.WithContext(ctx).Create(ev).Error; err != nil {
		if IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// CountAhead counts records ranked strictly before e.
func CountAhead(ctx context.Context, db *gorm.DB, e domain.Entry) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM score_records
		 WHERE total_score > ?
		    OR (total_score = ? AND (rank_watermark < ? OR (rank_watermark = ? AND user_id < ?)))`,
		e.Score, e.Score, e.Watermark, e.Watermark, e.UserID,
	).Scan(&n).Error
	return n, err
}

// GetScoreRecord returns the record for userID or ErrNotFound.
func GetScoreRecord(ctx context.Context, db *gorm.DB, userID string) (*domain.ScoreRecord, error) {
	var rec domain.ScoreRecord
	err := db.WithContext(ctx).Where("user_id = ?", userID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// TopScores returns up to n records in leaderboard order. Users that were
// created but never credited are skipped.
func TopScores(ctx context.Context, db *gorm.DB, n int) ([]domain.ScoreRecord, error) {
	var out []domain.ScoreRecord
	err := db.WithContext(ctx).
		Where("total_score > 0").
		Order(orderKey).
		Limit(n).
		Find(&out).Error
	return out, err
}

// ScanScores walks every credited record in primary-key batches.
func ScanScores(ctx context.Context, db *gorm.DB, batch int, fn func([]domain.ScoreRecord) error) error {
	if batch <= 0 {
		batch = 1000
	}
	var rows []domain.ScoreRecord
	res := db.WithContext(ctx).
		Where("total_score > 0").
		FindInBatches(&rows, batch, func(_ *gorm.DB, _ int) error {
			return fn(rows)
		})
	return res.Error
}

// ExistingUsers returns which of userIDs have a score record.
func ExistingUsers(ctx context.Context, db *gorm.DB, userIDs []string) (map[string]struct{}, error) {
	out := make(map[string]struct{}, len(userIDs))
	for start := 0; start < len(userIDs); start += existsBatch {
		end := min(start+existsBatch, len(userIDs))
		var found []string
		err := db.WithContext(ctx).
			Model(&domain.ScoreRecord{}).
			Where("user_id IN ?", userIDs[start:end]).
			Pluck("user_id", &found).Error
		if err != nil {
			return nil, err
		}
		for _, id := range found {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

// ListScoreEvents returns userID's most recent events, newest first.
// score_after strictly increases per user, so it orders by commit.
func ListScoreEvents(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.ScoreEvent, error) {
	var out []domain.ScoreEvent
	q := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("score_after DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

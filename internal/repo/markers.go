// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for consumed
// action-token markers, the durable exactly-once gate of the score pipeline.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-leaderboard-backend/internal/domain"
)

// InsertMarker claims a token fingerprint with a single INSERT and returns
// ErrDuplicate when the fingerprint is already taken.
func InsertMarker(ctx context.Context, db *gorm.DB, m *domain.ConsumedToken) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		if IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetMarker returns the marker for fingerprint or ErrNotFound.
func GetMarker(ctx context.Context, db *gorm.DB, fingerprint string) (*domain.ConsumedToken, error) {
	var m domain.ConsumedToken
	err := db.WithContext(ctx).Where("token_fingerprint = ?", fingerprint).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CompleteMarker stores the committed result on a pending marker. It must run
// inside the transaction that applies the score so both commit together.
// Returns ErrNotFound when no pending marker exists for fingerprint.
func CompleteMarker(ctx context.Context, tx *gorm.DB, fingerprint string, score, rank int64, at time.Time) error {
	res := tx.WithContext(ctx).
		Model(&domain.ConsumedToken{}).
		Where("token_fingerprint = ? AND completed_at IS NULL", fingerprint).
		Updates(map[string]any{
			"result_score": score,
			"result_rank":  rank,
			"completed_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePendingMarker removes a marker that never completed, reporting
// whether a row was removed. Completed markers are left untouched.
func DeletePendingMarker(ctx context.Context, db *gorm.DB, fingerprint string) (bool, error) {
	res := db.WithContext(ctx).
		Where("token_fingerprint = ? AND completed_at IS NULL", fingerprint).
		Delete(&domain.ConsumedToken{})
	return res.RowsAffected > 0, res.Error
}

// PruneMarkers deletes markers whose token expired before now. Expired tokens
// are rejected by validation, so their markers no longer guard anything.
func PruneMarkers(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&domain.ConsumedToken{})
	return res.RowsAffected, res.Error
}

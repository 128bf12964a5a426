// Package domain defines the persistence models for score records, the
// append-only score event history and consumed action-token markers. These
// types are mapped with GORM and shared across the repository, service and
// ranking layers.
package domain

import "time"

// ScoreRecord is the authoritative total for one user.
//
// Fields:
//   - UserID: stable identifier of the player; primary key.
//   - TotalScore: running total, never decreases.
//   - RankWatermark: unix nanoseconds of the last increase; earlier wins ties.
//   - UpdatedAt: wall-clock time of the last mutation.
type ScoreRecord struct {
	UserID        string    `json:"user_id"         gorm:"type:varchar(64);primaryKey"`
	TotalScore    int64     `json:"total_score"     gorm:"not null;default:0;index:idx_score_order,priority:1,sort:desc"`
	RankWatermark int64     `json:"rank_watermark"  gorm:"not null;default:0;index:idx_score_order,priority:2"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for ScoreRecord.
func (ScoreRecord) TableName() string { return "score_records" }

// Entry projects the record onto its leaderboard ordering key.
func (r ScoreRecord) Entry() Entry {
	return Entry{UserID: r.UserID, Score: r.TotalScore, Watermark: r.RankWatermark}
}

// ScoreEvent is one applied increase. Rows are only ever inserted, in the
// same transaction that mutates the owning ScoreRecord.
type ScoreEvent struct {
	ID               string    `json:"id"                gorm:"type:char(36);primaryKey"`
	UserID           string    `json:"user_id"           gorm:"type:varchar(64);not null;index:idx_user_events,priority:1"`
	TokenFingerprint string    `json:"-"                 gorm:"type:char(64);not null;uniqueIndex"`
	ActionID         string    `json:"action_id"         gorm:"type:varchar(128);not null"`
	Delta            int64     `json:"delta"             gorm:"not null;check:delta > 0"`
	ScoreBefore      int64     `json:"score_before"      gorm:"not null"`
	ScoreAfter       int64     `json:"score_after"       gorm:"not null"`
	CreatedAt        time.Time `json:"created_at"        gorm:"not null;index:idx_user_events,priority:2"`
}

// TableName returns the database table name for ScoreEvent.
func (ScoreEvent) TableName() string { return "score_events" }

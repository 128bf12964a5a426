package domain

import "time"

// ConsumedToken marks an action token as spent. The primary key is the
// token fingerprint, so the insert itself is the exactly-once gate.
//
// CompletedAt stays NULL while the admitted request is still in flight;
// once the ledger commits it holds the cached result replayed to duplicates.
type ConsumedToken struct {
	Fingerprint string     `gorm:"column:token_fingerprint;type:char(64);primaryKey"`
	UserID      string     `gorm:"type:varchar(64);not null"`
	ActionID    string     `gorm:"type:varchar(128);not null"`
	ExpiresAt   time.Time  `gorm:"not null;index"`
	CreatedAt   time.Time  `gorm:"not null"`
	ResultScore int64      `gorm:"not null;default:0"`
	ResultRank  int64      `gorm:"not null;default:0"`
	CompletedAt *time.Time
}

// TableName implements the GORM tabler interface.
func (ConsumedToken) TableName() string { return "consumed_tokens" }

// Completed reports whether the owning request committed its result.
func (m ConsumedToken) Completed() bool { return m.CompletedAt != nil }

// Package services – Ledger
//
// Ledger is the single writable source of truth for scores. ApplyDelta is
// all-or-nothing: the total, the watermark, the score event and the marker
// completion commit in one transaction, or nothing does.
//
// Writers for the same user are serialized by an in-process keyed lock taken
// before the transaction begins; on PostgreSQL the row is additionally locked
// with SELECT ... FOR UPDATE so multiple replicas stay correct.
package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-leaderboard-backend/internal/domain"
	"github.com/tbourn/go-leaderboard-backend/internal/observability"
	"github.com/tbourn/go-leaderboard-backend/internal/repo"
)

// Mutation is one requested score increase.
type Mutation struct {
	UserID      string
	ActionID    string
	Fingerprint string
	Delta       int64
	MaxScore    int64
	Now         time.Time
}

// Applied is the committed outcome of a Mutation.
type Applied struct {
	Result
	ScoreBefore int64
	Watermark   int64
}

// Entry is the leaderboard key of the mutated user after commit.
func (a Applied) Entry(userID string) domain.Entry {
	return domain.Entry{UserID: userID, Score: a.NewTotalScore, Watermark: a.Watermark}
}

// Ledger owns score records and their event history.
type Ledger struct {
	DB          *gorm.DB
	Locks       *KeyedLock
	LockTimeout time.Duration
	Log         zerolog.Logger
}

// NewLedger constructs a Ledger with its own lock table.
func NewLedger(db *gorm.DB, lockTimeout time.Duration, log zerolog.Logger) *Ledger {
	return &Ledger{
		DB:          db,
		Locks:       NewKeyedLock(),
		LockTimeout: lockTimeout,
		Log:         log.With().Str("component", "ledger").Logger(),
	}
}

// ApplyDelta adds m.Delta to m.UserID's total and returns the new total and
// authoritative rank. The marker for m.Fingerprint must be pending.
func (l *Ledger) ApplyDelta(ctx context.Context, m Mutation) (Applied, error) {
	ctx, span := otel.Tracer("services/Ledger").Start(ctx, "ApplyDelta",
		trace.WithAttributes(
			attribute.String("user.id", m.UserID),
			attribute.Int64("score.delta", m.Delta),
		),
	)
	defer span.End()

	if m.Delta < 1 || m.Delta > m.MaxScore {
		return Applied{}, ErrDeltaOutOfRange
	}
	if m.Now.IsZero() {
		m.Now = time.Now().UTC()
	}

	start := time.Now()
	defer func() { observability.LedgerApplySeconds.Observe(time.Since(start).Seconds()) }()

	release, err := l.Locks.Acquire(ctx, m.UserID, l.LockTimeout)
	if err != nil {
		span.SetStatus(codes.Error, "lock")
		return Applied{}, fmt.Errorf("%w: %w", ErrLedgerBusy, err)
	}
	defer release()

	var out Applied
	err = l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.EnsureScoreRecord(ctx, tx, m.UserID, m.Now); err != nil {
			return err
		}
		rec, err := repo.LockScoreRecord(ctx, tx, m.UserID)
		if err != nil {
			return err
		}
		if rec.TotalScore > math.MaxInt64-m.Delta {
			return ErrScoreOverflow
		}

		total := rec.TotalScore + m.Delta
		wm := m.Now.UnixNano()
		if wm <= rec.RankWatermark {
			wm = rec.RankWatermark + 1
		}
		if err := repo.SaveScore(ctx, tx, m.UserID, total, wm, m.Now); err != nil {
			return err
		}

		ev := &domain.ScoreEvent{
			ID:               uuid.NewString(),
			UserID:           m.UserID,
			TokenFingerprint: m.Fingerprint,
			ActionID:         m.ActionID,
			Delta:            m.Delta,
			ScoreBefore:      rec.TotalScore,
			ScoreAfter:       total,
			CreatedAt:        m.Now,
		}
		if err := repo.InsertScoreEvent(ctx, tx, ev); err != nil {
			return err
		}

		ahead, err := repo.CountAhead(ctx, tx, domain.Entry{UserID: m.UserID, Score: total, Watermark: wm})
		if err != nil {
			return err
		}
		rank := ahead + 1

		if err := repo.CompleteMarker(ctx, tx, m.Fingerprint, total, rank, m.Now); err != nil {
			return err
		}

		out = Applied{
			Result:      Result{NewTotalScore: total, Rank: rank},
			ScoreBefore: rec.TotalScore,
			Watermark:   wm,
		}
		return nil
	})
	if err != nil {
		err = ledgerErr(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply")
		return Applied{}, err
	}
	span.SetAttributes(attribute.Int64("score.total", out.NewTotalScore), attribute.Int64("score.rank", out.Rank))
	return out, nil
}

func ledgerErr(err error) error {
	switch {
	case errors.Is(err, ErrScoreOverflow):
		return err
	case errors.Is(err, repo.ErrNotFound), errors.Is(err, repo.ErrDuplicate):
		// no pending marker, or an event already exists for this token
		return fmt.Errorf("%w: %w", ErrNotAdmitted, err)
	default:
		return storageErr(err)
	}
}

// Get returns the stored record for userID.
func (l *Ledger) Get(ctx context.Context, userID string) (*domain.ScoreRecord, error) {
	rec, err := repo.GetScoreRecord(ctx, l.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotRanked
	}
	if err != nil {
		return nil, storageErr(err)
	}
	return rec, nil
}

// RankOf computes userID's rank directly from the ledger.
func (l *Ledger) RankOf(ctx context.Context, userID string) (domain.RankedEntry, error) {
	rec, err := l.Get(ctx, userID)
	if err != nil {
		return domain.RankedEntry{}, err
	}
	if rec.TotalScore == 0 {
		return domain.RankedEntry{}, ErrUserNotRanked
	}
	ahead, err := repo.CountAhead(ctx, l.DB, rec.Entry())
	if err != nil {
		return domain.RankedEntry{}, storageErr(err)
	}
	return domain.RankedEntry{Rank: ahead + 1, Entry: rec.Entry()}, nil
}

// TopN returns up to n leading entries straight from the ledger.
func (l *Ledger) TopN(ctx context.Context, n int) ([]domain.Entry, error) {
	recs, err := repo.TopScores(ctx, l.DB, n)
	if err != nil {
		return nil, storageErr(err)
	}
	out := make([]domain.Entry, len(recs))
	for i, r := range recs {
		out[i] = r.Entry()
	}
	return out, nil
}

// Scan walks every credited record in batches of at most batch entries.
// Batches are not in rank order.
func (l *Ledger) Scan(ctx context.Context, batch int, fn func([]domain.Entry) error) error {
	err := repo.ScanScores(ctx, l.DB, batch, func(recs []domain.ScoreRecord) error {
		entries := make([]domain.Entry, len(recs))
		for i, r := range recs {
			entries[i] = r.Entry()
		}
		return fn(entries)
	})
	if err != nil {
		return storageErr(err)
	}
	return nil
}

// LoadAll returns every credited entry; it is the index's rebuild source.
func (l *Ledger) LoadAll(ctx context.Context) ([]domain.Entry, error) {
	var all []domain.Entry
	err := l.Scan(ctx, 1000, func(batch []domain.Entry) error {
		all = append(all, batch...)
		return nil
	})
	return all, err
}

// Existing returns which of userIDs have a score record.
func (l *Ledger) Existing(ctx context.Context, userIDs []string) (map[string]struct{}, error) {
	found, err := repo.ExistingUsers(ctx, l.DB, userIDs)
	if err != nil {
		return nil, storageErr(err)
	}
	return found, nil
}

// History returns userID's latest score events, newest first.
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]domain.ScoreEvent, error) {
	evs, err := repo.ListScoreEvents(ctx, l.DB, userID, limit)
	if err != nil {
		return nil, storageErr(err)
	}
	return evs, nil
}

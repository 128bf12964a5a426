// Package services – Guard
//
// Guard is the durable exactly-once gate of the score pipeline. Admission is
// a single INSERT keyed by the token fingerprint; the database's primary key
// decides the race, never a read-then-write. The admitted request later
// completes the marker inside the ledger transaction, which turns the marker
// into the cached answer for every duplicate.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-leaderboard-backend/internal/domain"
	"github.com/tbourn/go-leaderboard-backend/internal/observability"
	"github.com/tbourn/go-leaderboard-backend/internal/repo"
)

// Result is the outcome of an applied submission, replayed verbatim to
// duplicates of the same token.
type Result struct {
	NewTotalScore int64 `json:"new_total_score"`
	Rank          int64 `json:"rank"`
}

// Admission is the Guard's verdict. When Admitted is false the token was
// already consumed and Result holds the cached answer.
type Admission struct {
	Admitted bool
	Result   Result
}

// Guard records consumed action tokens.
type Guard struct {
	DB  *gorm.DB
	Log zerolog.Logger
}

// NewGuard constructs a Guard.
func NewGuard(db *gorm.DB, log zerolog.Logger) *Guard {
	return &Guard{DB: db, Log: log.With().Str("component", "guard").Logger()}
}

// Admit claims fingerprint. It returns Admitted for the first caller, the
// cached result for a completed duplicate and ErrPendingRetry while the
// first caller has not committed yet.
func (g *Guard) Admit(ctx context.Context, fingerprint, userID, actionID string, expiresAt time.Time) (Admission, error) {
	ctx, span := otel.Tracer("services/Guard").Start(ctx, "Admit",
		trace.WithAttributes(attribute.String("user.id", userID), attribute.String("action.id", actionID)),
	)
	defer span.End()

	m := &domain.ConsumedToken{
		Fingerprint: fingerprint,
		UserID:      userID,
		ActionID:    actionID,
		ExpiresAt:   expiresAt,
		CreatedAt:   time.Now().UTC(),
	}
	err := repo.InsertMarker(ctx, g.DB, m)
	if err == nil {
		return Admission{Admitted: true}, nil
	}
	if !errors.Is(err, repo.ErrDuplicate) {
		return Admission{}, storageErr(err)
	}

	prev, err := repo.GetMarker(ctx, g.DB, fingerprint)
	if errors.Is(err, repo.ErrNotFound) {
		// released between our insert and lookup; the caller may retry
		return Admission{}, ErrPendingRetry
	}
	if err != nil {
		return Admission{}, storageErr(err)
	}
	if !prev.Completed() {
		return Admission{}, ErrPendingRetry
	}
	return Admission{Result: Result{NewTotalScore: prev.ResultScore, Rank: prev.ResultRank}}, nil
}

// Release frees a marker whose request failed before committing. Completed
// markers are never released, so calling Release after an ambiguous commit
// error is safe.
func (g *Guard) Release(ctx context.Context, fingerprint string) error {
	removed, err := repo.DeletePendingMarker(ctx, g.DB, fingerprint)
	if err != nil {
		return storageErr(err)
	}
	if removed {
		g.Log.Debug().Str("fingerprint", shortFP(fingerprint)).Msg("released pending marker")
	}
	return nil
}

// Prune deletes markers of tokens that expired before now.
func (g *Guard) Prune(ctx context.Context, now time.Time) (int64, error) {
	n, err := repo.PruneMarkers(ctx, g.DB, now)
	if err != nil {
		return 0, storageErr(err)
	}
	observability.MarkersPruned.Add(float64(n))
	return n, nil
}

// RunPruner calls Prune every interval until ctx is done.
func (g *Guard) RunPruner(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := g.Prune(ctx, time.Now().UTC())
			if err != nil {
				g.Log.Warn().Err(err).Msg("marker prune failed")
				continue
			}
			if n > 0 {
				g.Log.Info().Int64("pruned", n).Msg("expired markers pruned")
			}
		}
	}
}

// storageErr maps a raw storage error onto the pipeline's transient errors.
func storageErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded), repo.IsBusy(err):
		return fmt.Errorf("%w: %w", ErrLedgerBusy, err)
	default:
		return fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
	}
}

func shortFP(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

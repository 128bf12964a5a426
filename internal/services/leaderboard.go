// Package services – LeaderboardService
//
// Reads are served from the in-memory index first. When the index reports
// itself unavailable (not loaded yet or rebuilding) the read falls back to
// the ledger and logs a warning; the response names the store that served it.
package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-leaderboard-backend/internal/domain"
	"github.com/tbourn/go-leaderboard-backend/internal/observability"
	"github.com/tbourn/go-leaderboard-backend/internal/ranking"
)

// Board is a ranked page together with the store that produced it.
type Board struct {
	Entries []domain.RankedEntry
	Source  string
}

// Standing is one user's position.
type Standing struct {
	Entry  domain.RankedEntry
	Source string
}

// LeaderboardService answers ranking reads.
type LeaderboardService struct {
	Index    RankIndex
	Ledger   *Ledger
	MaxLimit int
	Log      zerolog.Logger
}

// NewLeaderboardService wires a LeaderboardService.
func NewLeaderboardService(idx RankIndex, ledger *Ledger, maxLimit int, log zerolog.Logger) *LeaderboardService {
	return &LeaderboardService{
		Index:    idx,
		Ledger:   ledger,
		MaxLimit: maxLimit,
		Log:      log.With().Str("component", "leaderboard").Logger(),
	}
}

func (s *LeaderboardService) clamp(limit int) int {
	if limit < 1 {
		limit = 10
	}
	if s.MaxLimit > 0 && limit > s.MaxLimit {
		limit = s.MaxLimit
	}
	return limit
}

// Top returns the first limit ranked entries.
func (s *LeaderboardService) Top(ctx context.Context, limit int) (Board, error) {
	limit = s.clamp(limit)
	ctx, span := otel.Tracer("services/LeaderboardService").Start(ctx, "Top",
		trace.WithAttributes(attribute.Int("leaderboard.limit", limit)),
	)
	defer span.End()

	entries, err := s.Index.TopN(limit)
	if err == nil {
		observability.LeaderboardReads.WithLabelValues(observability.ReadSourceIndex).Inc()
		span.SetAttributes(attribute.String("leaderboard.source", observability.ReadSourceIndex))
		return Board{Entries: domain.Rank(entries), Source: observability.ReadSourceIndex}, nil
	}
	if !errors.Is(err, ranking.ErrUnavailable) {
		return Board{}, err
	}

	s.Log.Warn().Msg("ranking index unavailable, serving top from ledger")
	entries, err = s.Ledger.TopN(ctx, limit)
	if err != nil {
		return Board{}, err
	}
	observability.LeaderboardReads.WithLabelValues(observability.ReadSourceLedger).Inc()
	span.SetAttributes(attribute.String("leaderboard.source", observability.ReadSourceLedger))
	return Board{Entries: domain.Rank(entries), Source: observability.ReadSourceLedger}, nil
}

// Rank returns userID's current position or ErrUserNotRanked.
func (s *LeaderboardService) Rank(ctx context.Context, userID string) (Standing, error) {
	ctx, span := otel.Tracer("services/LeaderboardService").Start(ctx, "Rank",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	re, ok, err := s.Index.Lookup(userID)
	if err == nil {
		observability.LeaderboardReads.WithLabelValues(observability.ReadSourceIndex).Inc()
		if !ok {
			return Standing{}, ErrUserNotRanked
		}
		return Standing{Entry: re, Source: observability.ReadSourceIndex}, nil
	}
	if !errors.Is(err, ranking.ErrUnavailable) {
		return Standing{}, err
	}

	s.Log.Warn().Str("user_id", userID).Msg("ranking index unavailable, serving rank from ledger")
	re, err = s.Ledger.RankOf(ctx, userID)
	if err != nil {
		return Standing{}, err
	}
	observability.LeaderboardReads.WithLabelValues(observability.ReadSourceLedger).Inc()
	return Standing{Entry: re, Source: observability.ReadSourceLedger}, nil
}

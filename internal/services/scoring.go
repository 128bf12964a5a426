// Package services – ScoreService
//
// ScoreService runs the score-update pipeline for one submission:
//
//	validate token -> admit (exactly once) -> apply delta -> project -> broadcast
//
// Each stage carries its own deadline. A failure before the ledger commits
// releases the consumption marker so the same token can be retried; a
// duplicate of a committed submission receives the original answer.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-leaderboard-backend/internal/config"
	"github.com/tbourn/go-leaderboard-backend/internal/domain"
	"github.com/tbourn/go-leaderboard-backend/internal/observability"
	"github.com/tbourn/go-leaderboard-backend/internal/token"
)

// TokenVerifier checks action tokens. *token.Signer implements it.
type TokenVerifier interface {
	Validate(raw, authUserID string, now time.Time) (token.Claims, error)
}

// TokenIssuer signs action tokens for trusted callers.
type TokenIssuer interface {
	Issue(actionID, userID string, maxScore int64, ttl time.Duration, now time.Time) (string, time.Time, error)
}

// Submission is one score-increase request from an authenticated user.
type Submission struct {
	UserID string
	Token  string
	Delta  int64
}

// Outcome is what the caller sees. Replayed is set when Result is the cached
// answer of an earlier submission of the same token.
type Outcome struct {
	Result
	Replayed bool
}

// ScoreService orchestrates the score pipeline.
type ScoreService struct {
	Tokens    TokenVerifier
	Guard     *Guard
	Ledger    *Ledger
	Projector *Projector
	Timeouts  config.PipelineConfig
	Log       zerolog.Logger

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// NewScoreService wires a ScoreService.
func NewScoreService(tokens TokenVerifier, guard *Guard, ledger *Ledger, proj *Projector, timeouts config.PipelineConfig, log zerolog.Logger) *ScoreService {
	return &ScoreService{
		Tokens:    tokens,
		Guard:     guard,
		Ledger:    ledger,
		Projector: proj,
		Timeouts:  timeouts,
		Log:       log.With().Str("component", "score_service").Logger(),
	}
}

func (s *ScoreService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// Submit applies sub exactly once per token.
func (s *ScoreService) Submit(ctx context.Context, sub Submission) (Outcome, error) {
	ctx, span := otel.Tracer("services/ScoreService").Start(ctx, "Submit",
		trace.WithAttributes(
			attribute.String("user.id", sub.UserID),
			attribute.Int64("score.delta", sub.Delta),
		),
	)
	defer span.End()

	out, outcome, err := s.submit(ctx, sub)
	observability.ScoreSubmissions.WithLabelValues(outcome).Inc()
	span.SetAttributes(attribute.String("score.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	return out, err
}

func (s *ScoreService) submit(ctx context.Context, sub Submission) (Outcome, string, error) {
	now := s.now()

	// 1. validate
	vctx, cancel := withTimeout(ctx, s.Timeouts.ValidateTimeout)
	claims, err := s.Tokens.Validate(sub.Token, sub.UserID, now)
	if err == nil {
		err = vctx.Err()
	}
	cancel()
	if err != nil {
		return Outcome{}, classify(err), err
	}
	if sub.Delta < 1 || sub.Delta > claims.MaxScore {
		return Outcome{}, observability.OutcomeRejected, ErrDeltaOutOfRange
	}
	fp := claims.Fingerprint

	// 2. admit
	actx, cancel := withTimeout(ctx, s.Timeouts.AdmitTimeout)
	adm, err := s.Guard.Admit(actx, fp, claims.UserID, claims.ActionID, claims.ExpiresAt)
	cancel()
	if err != nil {
		return Outcome{}, classify(err), err
	}
	if !adm.Admitted {
		s.Log.Debug().Str("user_id", sub.UserID).Str("action_id", claims.ActionID).Msg("replayed submission")
		return Outcome{Result: adm.Result, Replayed: true}, observability.OutcomeReplayed, nil
	}

	// 3. apply
	lctx, cancel := withTimeout(ctx, s.Timeouts.LedgerTimeout)
	applied, err := s.Ledger.ApplyDelta(lctx, Mutation{
		UserID:      claims.UserID,
		ActionID:    claims.ActionID,
		Fingerprint: fp,
		Delta:       sub.Delta,
		MaxScore:    claims.MaxScore,
		Now:         now,
	})
	cancel()
	if err != nil {
		s.release(ctx, fp)
		s.Log.Warn().Err(err).Str("user_id", sub.UserID).Str("action_id", claims.ActionID).Msg("score not applied")
		return Outcome{}, classify(err), err
	}

	// 4. project (and broadcast, from the projector)
	if s.Projector != nil {
		s.Projector.Enqueue(applied.Entry(claims.UserID))
	}
	s.Log.Info().
		Str("user_id", claims.UserID).
		Str("action_id", claims.ActionID).
		Int64("delta", sub.Delta).
		Int64("total", applied.NewTotalScore).
		Int64("rank", applied.Rank).
		Msg("score applied")
	return Outcome{Result: applied.Result}, observability.OutcomeApplied, nil
}

// release frees the marker of a failed attempt. It runs detached from the
// request context, which may already be past its deadline.
func (s *ScoreService) release(ctx context.Context, fp string) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.releaseTimeout())
	defer cancel()
	if err := s.Guard.Release(rctx, fp); err != nil {
		// marker stays pending until the token expires and is pruned
		s.Log.Error().Err(err).Str("fingerprint", shortFP(fp)).Msg("marker release failed")
	}
}

func (s *ScoreService) releaseTimeout() time.Duration {
	if s.Timeouts.AdmitTimeout > 0 {
		return s.Timeouts.AdmitTimeout
	}
	return 2 * time.Second
}

// History returns the caller's own score events.
func (s *ScoreService) History(ctx context.Context, userID string, limit int) ([]domain.ScoreEvent, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	return s.Ledger.History(ctx, userID, limit)
}

// IssueService signs action tokens for trusted internal callers.
type IssueService struct {
	Tokens TokenIssuer
	Now    func() time.Time
}

// Issue signs a token for (actionID, userID, maxScore) valid for ttl.
func (s *IssueService) Issue(actionID, userID string, maxScore int64, ttl time.Duration) (string, time.Time, error) {
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}
	return s.Tokens.Issue(actionID, userID, maxScore, ttl, now)
}

func classify(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeApplied
	case IsRejection(err):
		return observability.OutcomeRejected
	case errors.Is(err, ErrPendingRetry):
		return observability.OutcomePending
	case errors.Is(err, ErrLedgerBusy), errors.Is(err, context.DeadlineExceeded):
		return observability.OutcomeBusy
	default:
		return observability.OutcomeFailed
	}
}

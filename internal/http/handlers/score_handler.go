// Score HTTP handlers.
//
// This file exposes the score pipeline and its audit trail:
//   - POST /scores                      (submit a proof-gated score increase)
//   - GET  /users/{id}/score-events     (the caller's own audit history)
//
// Handlers are transport-thin: they bind input, call application services,
// and translate results and service errors into HTTP responses.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-leaderboard-backend/internal/domain"
	"github.com/tbourn/go-leaderboard-backend/internal/http/middleware"
	"github.com/tbourn/go-leaderboard-backend/internal/services"
	"github.com/tbourn/go-leaderboard-backend/internal/stream"
	"github.com/tbourn/go-leaderboard-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// ScoreService runs the score pipeline and serves the audit trail.
type ScoreService interface {
	// Submit applies a score increase at most once per action token.
	Submit(ctx context.Context, sub services.Submission) (services.Outcome, error)
	// History returns the user's own score events, newest first.
	History(ctx context.Context, userID string, limit int) ([]domain.ScoreEvent, error)
}

// TokenIssuer signs action tokens for trusted internal callers.
type TokenIssuer interface {
	Issue(actionID, userID string, maxScore int64, ttl time.Duration) (string, time.Time, error)
}

// LeaderboardService answers ranking reads.
type LeaderboardService interface {
	Top(ctx context.Context, limit int) (services.Board, error)
	Rank(ctx context.Context, userID string) (services.Standing, error)
}

// StreamHub admits live subscribers.
type StreamHub interface {
	Subscribe(identity, userID string) (*stream.Subscription, error)
	Unsubscribe(sub *stream.Subscription)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints. Services are injected as interfaces to
// keep transport concerns apart from the pipeline.
type Handlers struct {
	scores ScoreService
	issuer TokenIssuer
	board  LeaderboardService
	hub    StreamHub
	limits Limits
}

// Limits bounds list endpoints.
type Limits struct {
	LeaderboardMax int // LEADERBOARD_MAX_LIMIT
	HistoryMax     int
}

// New constructs a Handlers bound to the given services.
func New(scores ScoreService, issuer TokenIssuer, board LeaderboardService, hub StreamHub, limits Limits) *Handlers {
	if limits.LeaderboardMax < 1 {
		limits.LeaderboardMax = 100
	}
	if limits.HistoryMax < 1 {
		limits.HistoryMax = 200
	}
	return &Handlers{scores: scores, issuer: issuer, board: board, hub: hub, limits: limits}
}

//
// DTOs
//

// SubmitScoreRequest is the JSON payload of a score submission.
type SubmitScoreRequest struct {
	// ActionToken is the signed proof issued for the completed action.
	ActionToken string `json:"action_token" binding:"required" example:"djF8bWF0Y2gtNDJ8dXNlci03fDUwfDE3MzU3MzI4MDA.3q2-7w"`
	// ScoreDelta is the requested increase, 1..max_score of the token.
	ScoreDelta int64 `json:"score_delta" example:"50"`
}

// ScoreResponse is the committed (or replayed) result of a submission.
type ScoreResponse struct {
	NewTotalScore int64 `json:"new_total_score" example:"1250"`
	Rank          int64 `json:"rank" example:"3"`
}

// ScoreEventsResponse wraps a page of audit rows.
type ScoreEventsResponse struct {
	UserID string              `json:"user_id" example:"user-7"`
	Events []domain.ScoreEvent `json:"events"`
}

// HeaderReplayed marks a response served from an earlier submission.
const HeaderReplayed = "Idempotent-Replayed"

//
// Handlers
//

// SubmitScore godoc
// @ID          submitScore
// @Summary     Submit a score increase
// @Description Validates the action token, consumes it exactly once and applies the delta. A repeated submission of a consumed token returns the original result with Idempotent-Replayed: true.
// @Tags        Scores
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Authenticated user id (set by the gateway)"  example(user-7)
// @Param       body       body    handlers.SubmitScoreRequest  true  "Score submission"
//
// @Success     200  {object}  handlers.ScoreResponse
// @Header      200  {string}  Idempotent-Replayed  "true when the result is a replay"
// @Failure     202  {object}  handlers.ErrorResponse  "Same token in flight, retry"
// @Failure     400  {object}  handlers.ErrorResponse  "Malformed token or body"
// @Failure     401  {object}  handlers.ErrorResponse  "Forged or expired token"
// @Failure     403  {object}  handlers.ErrorResponse  "Token issued to another user"
// @Failure     422  {object}  handlers.ErrorResponse  "Delta out of range or overflow"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     503  {object}  handlers.ErrorResponse  "Ledger busy or unavailable"
// @Router      /scores [post]
func (h *Handlers) SubmitScore(c *gin.Context) {
	uid, present := middleware.UserID(c)
	if !present {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "missing "+middleware.HeaderUserID)
		return
	}

	var req SubmitScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body: action_token is required")
		return
	}

	out, err := h.scores.Submit(c.Request.Context(), services.Submission{
		UserID: uid,
		Token:  req.ActionToken,
		Delta:  req.ScoreDelta,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if out.Replayed {
		c.Header(HeaderReplayed, "true")
	}
	ok(c, http.StatusOK, ScoreResponse{NewTotalScore: out.NewTotalScore, Rank: out.Rank})
}

// ListScoreEvents godoc
// @ID          listScoreEvents
// @Summary     List own score events
// @Description Returns the caller's score audit trail, newest first. Users may only read their own history.
// @Tags        Scores
// @Produce     json
//
// @Param       X-User-ID  header  string  true   "Authenticated user id"  example(user-7)
// @Param       id         path    string  true   "User id"                example(user-7)
// @Param       limit      query   int     false  "Rows to return"         minimum(1) maximum(200) default(50)
//
// @Success     200  {object}  handlers.ScoreEventsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad limit"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the caller's history"
// @Failure     503  {object}  handlers.ErrorResponse  "Ledger unavailable"
// @Router      /users/{id}/score-events [get]
func (h *Handlers) ListScoreEvents(c *gin.Context) {
	target := c.Param("id")
	uid, present := middleware.UserID(c)
	if !present {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "missing "+middleware.HeaderUserID)
		return
	}
	if uid != target {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "score history is only visible to its owner")
		return
	}
	limit, valid := utils.ParseLimit(c.Query("limit"), 50, h.limits.HistoryMax)
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "limit must be a positive integer")
		return
	}

	events, err := h.scores.History(c.Request.Context(), uid, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if events == nil {
		events = []domain.ScoreEvent{}
	}
	ok(c, http.StatusOK, ScoreEventsResponse{UserID: uid, Events: events})
}

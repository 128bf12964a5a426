// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are stable, lowercase snake_case strings returned in the `code` field
// of every error envelope. Clients branch on the code, not on the message:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "token_expired",
//	  "message": "action token has expired"
//	}
//
// writeError maps service errors to a status and code in one place, so the
// score, leaderboard and audit endpoints report the same failure the same way.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-leaderboard-backend/internal/services"
	"github.com/tbourn/go-leaderboard-backend/internal/stream"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"

	// Token rejections.
	ErrCodeTokenMalformed    = "token_malformed"
	ErrCodeTokenForged       = "token_forged"
	ErrCodeTokenExpired      = "token_expired"
	ErrCodeTokenUserMismatch = "token_user_mismatch"
	ErrCodeInvalidClaims     = "invalid_claims"

	// Score pipeline.
	ErrCodeDeltaOutOfRange   = "delta_out_of_range"
	ErrCodeScoreOverflow     = "score_overflow"
	ErrCodePendingRetry      = "pending_retry"
	ErrCodeLedgerBusy        = "ledger_busy"
	ErrCodeLedgerUnavailable = "ledger_unavailable"

	// Live stream.
	ErrCodeTooManySubscribers = "too_many_subscribers"
	ErrCodeStreamClosed       = "stream_closed"
)

// retryAfterSeconds is advertised on transient failures.
const retryAfterSeconds = "1"

// writeError translates err into the error envelope.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrTokenMalformed):
		fail(c, http.StatusBadRequest, ErrCodeTokenMalformed, "action token is malformed")
	case errors.Is(err, services.ErrTokenForged):
		fail(c, http.StatusUnauthorized, ErrCodeTokenForged, "action token signature is invalid")
	case errors.Is(err, services.ErrTokenExpired):
		fail(c, http.StatusUnauthorized, ErrCodeTokenExpired, "action token has expired")
	case errors.Is(err, services.ErrTokenUserMismatch):
		fail(c, http.StatusForbidden, ErrCodeTokenUserMismatch, "action token belongs to another user")
	case errors.Is(err, services.ErrInvalidClaims):
		fail(c, http.StatusBadRequest, ErrCodeInvalidClaims, err.Error())
	case errors.Is(err, services.ErrDeltaOutOfRange):
		fail(c, http.StatusUnprocessableEntity, ErrCodeDeltaOutOfRange, "score_delta must be between 1 and the token's max_score")
	case errors.Is(err, services.ErrScoreOverflow):
		fail(c, http.StatusUnprocessableEntity, ErrCodeScoreOverflow, "score total would overflow")

	case errors.Is(err, services.ErrPendingRetry):
		c.Header("Retry-After", retryAfterSeconds)
		fail(c, http.StatusAccepted, ErrCodePendingRetry, "a submission with this token is in progress, retry shortly")
	case errors.Is(err, services.ErrLedgerBusy), errors.Is(err, context.DeadlineExceeded):
		c.Header("Retry-After", retryAfterSeconds)
		fail(c, http.StatusServiceUnavailable, ErrCodeLedgerBusy, "score ledger is busy, retry with the same token")
	case errors.Is(err, services.ErrLedgerUnavailable):
		c.Header("Retry-After", retryAfterSeconds)
		fail(c, http.StatusServiceUnavailable, ErrCodeLedgerUnavailable, "score ledger is unavailable, retry with the same token")

	case errors.Is(err, services.ErrUserNotRanked):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "user has no score")
	case errors.Is(err, stream.ErrTooManySubscribers):
		fail(c, http.StatusTooManyRequests, ErrCodeTooManySubscribers, err.Error())
	case errors.Is(err, stream.ErrClosed):
		fail(c, http.StatusServiceUnavailable, ErrCodeStreamClosed, "live stream is shutting down")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
		_ = c.Error(err)
	}
}

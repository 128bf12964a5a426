// Package services holds the score-update pipeline and leaderboard reads.
// This file centralizes the service-level error values so that handlers can
// map them to HTTP results consistently with errors.Is.
//
// Errors fall into two classes: rejections, which are final for the given
// token and delta, and transient failures, which the caller may retry with
// the same token because nothing was committed.
package services

import (
	"errors"

	"github.com/tbourn/go-leaderboard-backend/internal/token"
)

// Token rejections, re-exported from the token package.
var (
	ErrTokenMalformed    = token.ErrMalformed
	ErrTokenForged       = token.ErrForged
	ErrTokenExpired      = token.ErrExpired
	ErrTokenUserMismatch = token.ErrUserMismatch
	ErrInvalidClaims     = token.ErrInvalidClaims
)

// Pipeline errors.
var (
	// ErrDeltaOutOfRange is returned when the requested delta is not in
	// [1, max_score] of the presented token.
	ErrDeltaOutOfRange = errors.New("score delta out of range")

	// ErrScoreOverflow is returned when applying the delta would overflow
	// the stored total.
	ErrScoreOverflow = errors.New("score total would overflow")

	// ErrPendingRetry is returned to a duplicate submission while the first
	// submission with the same token is still in flight.
	ErrPendingRetry = errors.New("submission with this token is in progress")

	// ErrLedgerBusy is returned when the per-user lock or the database could
	// not be acquired within the deadline.
	ErrLedgerBusy = errors.New("score ledger busy")

	// ErrLedgerUnavailable wraps any other storage failure.
	ErrLedgerUnavailable = errors.New("score ledger unavailable")

	// ErrNotAdmitted is returned by the ledger when no pending consumption
	// marker exists for the mutation's fingerprint.
	ErrNotAdmitted = errors.New("token was not admitted")

	// ErrUserNotRanked is returned by rank lookups for users without a score.
	ErrUserNotRanked = errors.New("user has no score")
)

// IsRejection reports whether err is a final rejection of the submission.
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrTokenMalformed, ErrTokenForged, ErrTokenExpired, ErrTokenUserMismatch,
		ErrDeltaOutOfRange, ErrScoreOverflow,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsRetryable reports whether the caller may resubmit the same token.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPendingRetry) ||
		errors.Is(err, ErrLedgerBusy) ||
		errors.Is(err, ErrLedgerUnavailable)
}

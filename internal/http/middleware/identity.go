// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file carries the caller identity established by the gateway. The
// service does not authenticate end users itself: the X-User-ID header is set
// by a trusted edge after authentication and is copied into the Gin context
// under "userID" for handlers, the rate limiter and the access log.
//
// The internal issuance surface is guarded separately by a shared secret in
// X-Internal-Key.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderUserID carries the authenticated user id from the gateway.
	HeaderUserID = "X-User-ID"
	// HeaderInternalKey carries the shared secret of trusted internal callers.
	HeaderInternalKey = "X-Internal-Key"

	ctxKeyUserID = "userID"
)

// IdentityOptions configures Identity.
type IdentityOptions struct {
	// Required rejects requests without a user id with 401.
	Required bool
	// MaxLen caps the accepted id length. Values <= 0 default to 64.
	MaxLen int
	// Pattern restricts allowed characters. Defaults to ^[A-Za-z0-9._:@-]+$.
	Pattern *regexp.Regexp
}

var defaultUserIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:@-]+$`)

// Identity validates X-User-ID and stores it in the context.
//
// An absent header is an anonymous request unless opts.Required is set. A
// present but malformed header is always rejected with 400.
func Identity(opts IdentityOptions) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 64
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultUserIDPattern
	}

	return func(c *gin.Context) {
		uid := c.GetHeader(HeaderUserID)
		if uid == "" {
			if opts.Required {
				abortJSON(c, http.StatusUnauthorized, "unauthorized", "missing "+HeaderUserID)
				return
			}
			c.Next()
			return
		}
		if len(uid) > maxLen || !pat.MatchString(uid) {
			abortJSON(c, http.StatusBadRequest, "bad_request", "invalid "+HeaderUserID)
			return
		}
		c.Set(ctxKeyUserID, uid)
		c.Next()
	}
}

// UserID returns the identity stored by Identity.
func UserID(c *gin.Context) (string, bool) {
	s, _ := c.Value(ctxKeyUserID).(string)
	return s, s != ""
}

// InternalKey admits only requests whose X-Internal-Key equals secret.
// An empty secret disables the route entirely.
func InternalKey(secret string) gin.HandlerFunc {
	want := []byte(secret)
	return func(c *gin.Context) {
		if len(want) == 0 {
			abortJSON(c, http.StatusNotFound, "not_found", "route not found")
			return
		}
		got := []byte(c.GetHeader(HeaderInternalKey))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			abortJSON(c, http.StatusForbidden, "forbidden", "invalid internal key")
			return
		}
		c.Next()
	}
}

// abortJSON writes the standard error envelope from middleware, which cannot
// import the handlers package.
func abortJSON(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       code,
		"message":    msg,
	})
}

package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// IssueTokenRequest is the payload of the internal issuance endpoint.
type IssueTokenRequest struct {
	ActionID   string `json:"action_id" binding:"required,max=128" example:"match-42"`
	UserID     string `json:"user_id" binding:"required,max=64" example:"user-7"`
	MaxScore   int64  `json:"max_score" binding:"required,min=1" example:"50"`
	TTLSeconds int64  `json:"ttl_seconds" binding:"required,min=1" example:"300"`
}

// IssueTokenResponse carries a signed action token.
type IssueTokenResponse struct {
	ActionToken string    `json:"action_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// IssueToken godoc
// @ID          issueToken
// @Summary     Issue an action token
// @Description Signs a single-use action token authorizing up to max_score points for user_id. Only trusted internal callers holding the issuer key may call it.
// @Tags        Internal
// @Accept      json
// @Produce     json
//
// @Param       X-Internal-Key  header  string  true  "Issuer shared secret"
// @Param       body            body    handlers.IssueTokenRequest  true  "Token claims"
//
// @Success     201  {object}  handlers.IssueTokenResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid claims"
// @Failure     403  {object}  handlers.ErrorResponse  "Bad issuer key"
// @Router      /internal/tokens [post]
func (h *Handlers) IssueToken(c *gin.Context) {
	var req IssueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "action_id, user_id, max_score and ttl_seconds are required")
		return
	}
	ttl := time.Duration(req.TTLSeconds) * time.Second
	tok, exp, err := h.issuer.Issue(strings.TrimSpace(req.ActionID), strings.TrimSpace(req.UserID), req.MaxScore, ttl)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusCreated, IssueTokenResponse{ActionToken: tok, ExpiresAt: exp})
}

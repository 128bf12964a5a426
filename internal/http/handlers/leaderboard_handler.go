// Leaderboard HTTP handlers.
//
//   - GET /leaderboard                 (top entries)
//   - GET /leaderboard/users/{id}      (one user's standing)
//   - GET /leaderboard/stream          (server-sent events, see stream_handler.go)
//
// Every read names the store that served it in `source`: "index" for the
// in-memory ranking, "ledger" when the index was unavailable.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-leaderboard-backend/internal/domain"
	"github.com/tbourn/go-leaderboard-backend/internal/utils"
)

// LeaderboardResponse is a ranked page.
type LeaderboardResponse struct {
	Entries []domain.RankedEntry `json:"entries"`
	Source  string               `json:"source" example:"index"`
}

// StandingResponse is one user's position.
type StandingResponse struct {
	UserID string `json:"user_id" example:"user-7"`
	Rank   int64  `json:"rank" example:"3"`
	Score  int64  `json:"score" example:"1250"`
	Source string `json:"source" example:"index"`
}

// GetLeaderboard godoc
// @ID          getLeaderboard
// @Summary     Top of the leaderboard
// @Description Returns the highest ranked users. Equal scores are ordered by who reached the score first.
// @Tags        Leaderboard
// @Produce     json
//
// @Param       limit  query  int  false  "Entries to return"  minimum(1) default(10)
//
// @Success     200  {object}  handlers.LeaderboardResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad limit"
// @Failure     503  {object}  handlers.ErrorResponse  "Ledger unavailable"
// @Router      /leaderboard [get]
func (h *Handlers) GetLeaderboard(c *gin.Context) {
	limit, valid := utils.ParseLimit(c.Query("limit"), 10, h.limits.LeaderboardMax)
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "limit must be a positive integer")
		return
	}
	board, err := h.board.Top(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	entries := board.Entries
	if entries == nil {
		entries = []domain.RankedEntry{}
	}
	ok(c, http.StatusOK, LeaderboardResponse{Entries: entries, Source: board.Source})
}

// GetUserRank godoc
// @ID          getUserRank
// @Summary     One user's rank
// @Tags        Leaderboard
// @Produce     json
//
// @Param       id  path  string  true  "User id"  example(user-7)
//
// @Success     200  {object}  handlers.StandingResponse
// @Failure     404  {object}  handlers.ErrorResponse  "User has no score"
// @Failure     503  {object}  handlers.ErrorResponse  "Ledger unavailable"
// @Router      /leaderboard/users/{id} [get]
func (h *Handlers) GetUserRank(c *gin.Context) {
	st, err := h.board.Rank(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, StandingResponse{
		UserID: st.Entry.UserID,
		Rank:   st.Entry.Rank,
		Score:  st.Entry.Score,
		Source: st.Source,
	})
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-leaderboard-backend/internal/http/middleware"
)

// StreamLeaderboard godoc
// @ID          streamLeaderboard
// @Summary     Live leaderboard (SSE)
// @Description Server-sent events. The latest snapshot is sent on connect, then every change of the top window. Heartbeats keep idle connections open. With X-User-ID, events carry the caller's own position in `you` when it is inside the window. A slow reader is dropped with a final `close` event.
// @Tags        Leaderboard
// @Produce     text/event-stream
//
// @Param       X-User-ID  header  string  false  "Optional identity for personalization"  example(user-7)
//
// @Success     200  {string}  string  "event stream"
// @Failure     429  {object}  handlers.ErrorResponse  "Too many live subscriptions"
// @Failure     503  {object}  handlers.ErrorResponse  "Shutting down"
// @Router      /leaderboard/stream [get]
func (h *Handlers) StreamLeaderboard(c *gin.Context) {
	uid, _ := middleware.UserID(c)
	identity := "ip:" + c.ClientIP()
	if uid != "" {
		identity = "user:" + uid
	}

	sub, err := h.hub.Subscribe(identity, uid)
	if err != nil {
		writeError(c, err)
		return
	}
	defer h.hub.Unsubscribe(sub)

	hdr := c.Writer.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-sub.Events():
			if !open {
				c.SSEvent("close", gin.H{"reason": sub.Reason()})
				c.Writer.Flush()
				return
			}
			c.SSEvent(ev.Type, ev)
			c.Writer.Flush()
		}
	}
}

package handler

import (
	"log/slog"
	"time"

	"github.com/2026musik-code/autoscrip/internal/session"
	"github.com/gin-gonic/gin"
)

const DefaultHeartbeat = 15 * time.Second

type SessionHandler struct {
	registry  *session.Registry
	heartbeat time.Duration
}

func NewSessionHandler(registry *session.Registry, heartbeat time.Duration) *SessionHandler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &SessionHandler{registry: registry, heartbeat: heartbeat}
}

// Events streams a session's log and status events as server-sent events.
// The stream ends after the terminal status event, when the caller goes
// away, or when another caller attaches to the same session id.
func (h *SessionHandler) Events(ctx *gin.Context) {
	id := ctx.Param("id")
	sub := h.registry.Attach(id)
	defer h.registry.Detach(sub)

	slog.Debug("Session subscriber attached", "session_id", id)

	ctx.Header("Cache-Control", "no-cache")
	ctx.Header("Connection", "keep-alive")
	ctx.Header("X-Accel-Buffering", "no")
	ctx.SSEvent("attached", gin.H{"sessionId": id})

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()
	reqCtx := ctx.Request.Context()

	for h.pump(ctx, sub, heartbeat.C, reqCtx.Done()) {
	}

	slog.Debug("Session subscriber detached", "session_id", id, "dropped", sub.Dropped())
}

// pump writes every queued event and then waits for more. It reports
// whether the stream should stay open.
func (h *SessionHandler) pump(ctx *gin.Context, sub *session.Subscriber, heartbeat <-chan time.Time, gone <-chan struct{}) bool {
	for {
		ev, ok := sub.TryNext()
		if !ok {
			break
		}
		ctx.SSEvent(string(ev.Type), ev)
		if ev.Type == session.EventStatus {
			ctx.Writer.Flush()
			return false
		}
	}
	ctx.Writer.Flush()

	select {
	case <-sub.Ready():
	case <-heartbeat:
		_, _ = ctx.Writer.WriteString(": heartbeat\n\n")
	case <-sub.Done():
		return false
	case <-gone:
		return false
	}
	return true
}

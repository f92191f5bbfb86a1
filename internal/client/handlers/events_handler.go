package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
)

const eventWriteTimeout = 5 * time.Second

type EventsHandler struct {
	svc SyncService
}

func NewEventsHandler(svc SyncService) *EventsHandler {
	return &EventsHandler{svc: svc}
}

// Events godoc
//
//	@Summary		Stream sync events
//	@Description	Websocket stream of per-path status changes, one JSON SyncFileStatus per message
//	@Tags			sync
//	@Router			/v1/events [get]
func (h *EventsHandler) Events(c *gin.Context) {
	if h.svc == nil {
		abortNotReady(c)
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("events websocket accept", "error", err)
		return
	}
	defer conn.CloseNow()

	// the client never sends; CloseRead handles pings and cancels ctx on close
	ctx := conn.CloseRead(c.Request.Context())

	status := h.svc.Status()
	events := status.Subscribe()
	defer status.Unsubscribe(events)

	slog.Debug("events subscriber connected", "remote", c.ClientIP())
	defer slog.Debug("events subscriber disconnected", "remote", c.ClientIP())

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "shutting down")
				return
			}
			if err := writeEvent(ctx, conn, toFileStatus(event.Path, event.Status)); err != nil {
				slog.Debug("events write", "error", err)
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}

package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventsHandler_StreamsStatusChanges(t *testing.T) {
	svc := newFakeService()
	r := gin.New()
	r.GET("/v1/events", NewEventsHandler(svc).Events)

	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/events", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	// the server subscribes after the handshake, so keep publishing until a message lands
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				svc.status.SetError("photos/cat.jpg", errors.New("boom"))
			}
		}
	}()

	var event SyncFileStatus
	require.NoError(t, wsjson.Read(ctx, conn, &event))

	assert.Equal(t, "photos/cat.jpg", event.Path)
	assert.Equal(t, "error", event.State)
	assert.Equal(t, "boom", event.Error)
	assert.Positive(t, event.ErrorCount)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
}

func TestEventsHandler_ClosesOnShutdown(t *testing.T) {
	svc := newFakeService()
	r := gin.New()
	r.GET("/v1/events", NewEventsHandler(svc).Events)

	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/events", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	// closing the status before the subscription is made leaves a live
	// subscriber, so close repeatedly until the server hangs up
	go func() {
		for ctx.Err() == nil {
			svc.status.Close()
			time.Sleep(20 * time.Millisecond)
		}
	}()

	_, _, err = conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}

func TestEventsHandler_NoEngine(t *testing.T) {
	r := gin.New()
	r.GET("/v1/events", NewEventsHandler(nil).Events)

	w := doRequest(r, http.MethodGet, "/v1/events")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

package http

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sketchd/internal/events"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10
	wsBuffer    = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The API binds to loopback by default; origin checks belong to the proxy.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleEvents streams a session's events as JSON text frames until the
// client disconnects.
func (s *Server) handleEvents(c echo.Context) error {
	if s.nc == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "event streaming requires NATS")
	}
	ctx := c.Request().Context()
	sess, err := s.sessions.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	msgs := make(chan *nats.Msg, wsBuffer)
	sub, err := s.nc.ChanSubscribe(events.SessionWildcard(s.prefix, sess.ID), msgs)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "subscribing to session events")
	}
	defer func() { _ = sub.Unsubscribe() }()

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the failure response.
		return nil
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	// Reads only service control frames; any error means the client left.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingEvery)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-gone:
			return nil
		case msg := <-msgs:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg.Data); err != nil {
				s.logger.Debug(ctx, "event stream closed", zap.Error(err))
				return nil
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}

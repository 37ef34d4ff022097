package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"VolDesk/internal/store"
	xlogger "VolDesk/pkg/logger"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
)

// StreamHandler serves the live change feed over WebSocket. Each connection
// gets its own subscription starting from "now"; events arrive in commit
// order and carry an explicit gap marker when the subscriber fell behind.
type StreamHandler struct {
	logger   *xlogger.Logger
	store    *store.Store
	upgrader websocket.Upgrader
}

func NewStreamHandler(logger *xlogger.Logger, st *store.Store) *StreamHandler {
	return &StreamHandler{
		logger: logger,
		store:  st,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Origin policy is enforced by the CORS middleware.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *StreamHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.Stream)
}

func (h *StreamHandler) Stream(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return err
	}

	sub := h.store.Subscribe()
	defer sub.Close()
	defer conn.Close()

	h.logger.Debug("websocket subscriber connected",
		xlogger.String("remote", conn.RemoteAddr().String()))

	done := make(chan struct{})

	// Read loop only consumes control frames and detects disconnect.
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return nil
		case <-c.Request().Context().Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("websocket write failed", xlogger.Error(err))
				return nil
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"flight-map-dashboard/internal/geo"
	"flight-map-dashboard/internal/refresh"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// viewportMessage is what the page sends whenever the map settles.
type viewportMessage struct {
	Bounds *geo.Bounds `json:"bounds"`
}

// handleWebSocket runs one map session: the page sends its bounds, the
// refresh trigger pushes a full frame on every tick and viewport change.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.metrics.SessionOpened()
	defer s.metrics.SessionClosed()
	s.logger.Debug("Map session opened from %s", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates := make(chan geo.Bounds)
	go s.readViewport(ctx, cancel, conn, updates)
	go s.keepAlive(ctx, conn)

	s.trigger.Run(ctx, updates, func(f refresh.Frame) {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(f); err != nil {
			s.logger.Debug("Map session write failed: %v", err)
			cancel()
		}
	})

	s.logger.Debug("Map session from %s closed", r.RemoteAddr)
}

// readViewport forwards bounds from the page until the connection drops.
// It owns updates and closes it on return.
func (s *Server) readViewport(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, updates chan<- geo.Bounds) {
	defer close(updates)
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("Map session read failed: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg viewportMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Bounds == nil {
			s.logger.Debug("Ignoring viewport message %q: %v", data, err)
			continue
		}

		select {
		case updates <- *msg.Bounds:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

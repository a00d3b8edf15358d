package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mattjoyce/unitd/internal/auth"
)

const (
	ttyWriteWait  = 10 * time.Second
	ttyPongWait   = 60 * time.Second
	ttyPingPeriod = (ttyPongWait * 9) / 10
	ttyMaxFrame   = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Access is gated by bearer tokens, not by origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleTTY attaches a websocket to the session terminal. Output is sent as
// text frames after the scrollback replay. Input and resize frames require
// the tty:rw scope and are dropped otherwise.
func (s *Server) handleTTY(w http.ResponseWriter, r *http.Request) {
	if s.deps.Terminal == nil {
		s.writeError(w, http.StatusServiceUnavailable, "terminal not attached")
		return
	}
	principal, _ := auth.FromContext(r.Context())
	canWrite := principal.Can(auth.GrantTTYWrite) && s.deps.Input != nil

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("tty upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	replay, output, detach := s.deps.Terminal.Attach()
	defer detach()

	done := make(chan struct{})
	go s.readTTY(conn, canWrite, done)

	_ = conn.SetWriteDeadline(time.Now().Add(ttyWriteWait))
	if replay != "" {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(replay)); err != nil {
			return
		}
	}

	ping := time.NewTicker(ttyPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case text, ok := <-output:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(ttyWriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(ttyWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(ttyWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) readTTY(conn *websocket.Conn, canWrite bool, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(ttyMaxFrame)
	_ = conn.SetReadDeadline(time.Now().Add(ttyPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(ttyPongWait))
	})

	for {
		var frame TTYFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("tty read failed", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(ttyPongWait))
		if !canWrite {
			continue
		}
		switch frame.Type {
		case "input":
			if frame.Data != "" {
				s.deps.Input.Keystroke(frame.Data)
			}
		case "resize":
			if frame.Cols > 0 && frame.Rows > 0 {
				s.deps.Input.Resize(frame.Cols, frame.Rows)
			}
		default:
			s.logger.Debug("ignoring tty frame", "type", frame.Type)
		}
	}
}

package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	// Only non-browser clients, which send no Origin, may subscribe.
	CheckOrigin: func(r *http.Request) bool { return r.Header.Get("Origin") == "" },
}

// LockEvent is pushed to the prompt UI for every lock target.
type LockEvent struct {
	Type      string       `json:"type"`
	Package   domain.AppID `json:"package,omitempty"`
	Timestamp int64        `json:"timestamp"`
	Error     string       `json:"error,omitempty"`
}

// ClientMessage is sent by the prompt UI over the event socket.
type ClientMessage struct {
	Type    string       `json:"type"` // unlock | ping
	Package domain.AppID `json:"package,omitempty"`
}

// lockConn serializes writes to one websocket.
type lockConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (lc *lockConn) send(ev LockEvent) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	ev.Timestamp = time.Now().Unix()
	if err := lc.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return lc.conn.WriteJSON(ev)
}

// lockEvents attaches the connection as the prompt listener until it closes.
func (s *Server) lockEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	lc := &lockConn{conn: conn}
	s.logger.Info("prompt UI connected", zap.String("remote", conn.RemoteAddr().String()))
	detach := s.prompts.Attach(func(target domain.AppID) error {
		return lc.send(LockEvent{Type: "lock", Package: target})
	})
	defer func() {
		detach()
		s.logger.Info("prompt UI disconnected")
	}()

	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case "unlock":
			if err := s.engine.UnlockSucceeded(msg.Package); err != nil {
				_ = lc.send(LockEvent{Type: "error", Error: err.Error()})
				continue
			}
			_ = lc.send(LockEvent{Type: "unlocked", Package: msg.Package})
		case "ping":
			_ = lc.send(LockEvent{Type: "pong"})
		default:
			_ = lc.send(LockEvent{Type: "error", Error: "unknown message type"})
		}
	}
}

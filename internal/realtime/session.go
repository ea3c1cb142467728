package realtime

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"violation-service/internal/metrics"
	"violation-service/internal/models"
	rt "violation-service/pkg/realtime"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 90 * time.Second
	maxMessageSize = 64 << 10
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Identity is established upstream; any origin may connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Session is one websocket connection and the channels it listens on.
type Session struct {
	hub   *Hub
	conn  *websocket.Conn
	actor models.Actor
	send  chan []byte
	done  chan struct{}
	once  sync.Once
	subs  map[rt.Channel]struct{} // guarded by hub.mu
}

// Serve upgrades the request and runs the session until the peer goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, actor models.Actor) error {
	if h.Connections(actor.UserID) >= h.maxConns {
		return ErrTooManyConnections
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	s := &Session{
		hub:   h,
		conn:  conn,
		actor: actor,
		send:  make(chan []byte, sendBuffer),
		done:  make(chan struct{}),
		subs:  make(map[rt.Channel]struct{}),
	}
	if err := h.register(s); err != nil {
		// Lost a race with another session of the same user after the
		// upgrade; the HTTP response is gone, so close with a reason.
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()),
			time.Now().Add(writeWait))
		conn.Close()
		return nil
	}
	go s.writePump(h.pingInterval)
	s.readPump()
	return nil
}

// enqueue never blocks the hub; a session that cannot keep up is closed and
// its client falls back to polling until it reconnects.
func (s *Session) enqueue(data []byte) {
	select {
	case <-s.done:
	case s.send <- data:
	default:
		metrics.SlowClientsDropped.Inc()
		s.hub.logger.Warnf("Send buffer full for user %d, closing session", s.actor.UserID)
		go s.close()
	}
}

func (s *Session) close() {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

func (s *Session) readPump() {
	defer func() {
		s.hub.unregister(s)
		s.close()
	}()
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.hub.logger.Warnf("Websocket read error for user %d: %v", s.actor.UserID, err)
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		s.handle(data)
	}
}

func (s *Session) handle(data []byte) {
	var f rt.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		s.control(rt.Envelope{Op: rt.OpError, Error: "malformed frame"})
		return
	}
	switch f.Op {
	case rt.OpPing:
		s.control(rt.Envelope{Op: rt.OpPong})
	case rt.OpSubscribe, rt.OpUnsubscribe:
		ch, err := rt.ParseChannel(string(f.Channel))
		if err != nil {
			s.control(rt.Envelope{Op: rt.OpError, Channel: f.Channel, Error: err.Error()})
			return
		}
		if f.Op == rt.OpUnsubscribe {
			s.hub.unsubscribe(s, ch)
			s.control(rt.Envelope{Op: rt.OpAck, Channel: ch})
			return
		}
		if err := s.hub.subscribe(s, ch); err != nil {
			s.control(rt.Envelope{Op: rt.OpError, Channel: ch, Error: err.Error()})
			return
		}
		s.control(rt.Envelope{Op: rt.OpAck, Channel: ch})
	default:
		s.control(rt.Envelope{Op: rt.OpError, Error: "unknown op " + f.Op})
	}
}

func (s *Session) control(env rt.Envelope) {
	env.SentAt = time.Now().UTC()
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	s.enqueue(data)
}

func (s *Session) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.close()
	}()
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					s.hub.logger.Warnf("Failed to write to user %d: %v", s.actor.UserID, err)
				}
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

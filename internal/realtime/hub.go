// Package realtime fans lifecycle and campus events out to websocket
// sessions subscribed to named channels, and relays them between service
// instances through an optional backplane.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"violation-service/internal/apperr"
	"violation-service/internal/logging"
	"violation-service/internal/metrics"
	"violation-service/internal/models"
	"violation-service/internal/utils"
	rt "violation-service/pkg/realtime"
)

// ErrTooManyConnections is returned when a user already holds the maximum
// number of sessions.
var ErrTooManyConnections = errors.New("too many connections for user")

type seqKey struct {
	channel rt.Channel
	event   rt.EventKind
}

// Hub tracks sessions per user and per channel. Events published through one
// hub carry that hub's origin and a sequence number that increases per
// (channel, event), so subscribers can discard replays.
type Hub struct {
	logger       *logging.Logger
	origin       string
	maxConns     int
	pingInterval time.Duration

	mu       sync.RWMutex
	sessions map[int64]map[*Session]struct{}
	channels map[rt.Channel]map[*Session]struct{}

	// seqMu also orders local fan-out so that deliveries on one key leave in
	// sequence order.
	seqMu sync.Mutex
	seq   map[seqKey]uint64

	backplane Backplane
}

func NewHub(logger *logging.Logger, maxConns int, pingInterval time.Duration) *Hub {
	if maxConns <= 0 {
		maxConns = 10
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Hub{
		logger:       logger,
		origin:       uuid.NewString(),
		maxConns:     maxConns,
		pingInterval: pingInterval,
		sessions:     make(map[int64]map[*Session]struct{}),
		channels:     make(map[rt.Channel]map[*Session]struct{}),
		seq:          make(map[seqKey]uint64),
	}
}

// Origin identifies this hub in envelopes it stamps.
func (h *Hub) Origin() string { return h.origin }

// Publish stamps and fans out one event to local subscribers, then relays it
// to the backplane when one is attached.
func (h *Hub) Publish(ctx context.Context, channel rt.Channel, event rt.EventKind, payload interface{}) error {
	if !channel.Accepts(event) {
		return fmt.Errorf("event %s is not carried on channel %s", event, channel)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", event, err)
	}

	h.seqMu.Lock()
	key := seqKey{channel: channel, event: event}
	h.seq[key]++
	env := rt.Envelope{
		Channel: channel,
		Event:   event,
		Origin:  h.origin,
		Seq:     h.seq[key],
		Payload: raw,
		SentAt:  time.Now().UTC(),
	}
	h.deliver(env)
	h.seqMu.Unlock()

	metrics.EventsPublished.WithLabelValues(string(event)).Inc()

	if h.backplane == nil {
		return nil
	}
	err = utils.Retry(ctx, h.logger, 3, 200*time.Millisecond, func() error {
		return h.backplane.Publish(ctx, env)
	})
	if err != nil {
		return &apperr.TransportError{Op: "backplane publish", Err: err}
	}
	return nil
}

// deliverRemote fans out an envelope received from the backplane. Our own
// envelopes were already delivered by Publish.
func (h *Hub) deliverRemote(env rt.Envelope) {
	if env.Origin == h.origin {
		return
	}
	if !env.Channel.Accepts(env.Event) {
		h.logger.Warnf("Dropping remote event %s on channel %s", env.Event, env.Channel)
		return
	}
	h.deliver(env)
}

func (h *Hub) deliver(env rt.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		h.logger.Errorf("Failed to encode envelope for %s/%s: %v", env.Channel, env.Event, err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.channels[env.Channel] {
		s.enqueue(data)
	}
}

// Attach starts relaying through b until ctx is done.
func (h *Hub) Attach(ctx context.Context, b Backplane) {
	h.backplane = b
	go b.Run(ctx, h.deliverRemote)
}

func (h *Hub) register(s *Session) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	userID := s.actor.UserID
	if len(h.sessions[userID]) >= h.maxConns {
		h.logger.Warnf("Max connections reached for user %d", userID)
		return ErrTooManyConnections
	}
	if h.sessions[userID] == nil {
		h.sessions[userID] = make(map[*Session]struct{})
	}
	h.sessions[userID][s] = struct{}{}
	metrics.ActiveConnections.Inc()
	h.logger.Infof("Added websocket session for user %d (total: %d)", userID, len(h.sessions[userID]))
	return nil
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	userID := s.actor.UserID
	conns, ok := h.sessions[userID]
	if !ok {
		return
	}
	if _, ok := conns[s]; !ok {
		return
	}
	delete(conns, s)
	if len(conns) == 0 {
		delete(h.sessions, userID)
	}
	for ch := range s.subs {
		h.removeLocked(ch, s)
	}
	metrics.ActiveConnections.Dec()
	h.logger.Infof("Removed websocket session for user %d (remaining: %d)", userID, len(conns))
}

func (h *Hub) subscribe(s *Session, ch rt.Channel) error {
	if !CanSubscribe(s.actor, ch) {
		return apperr.Forbidden("%s %d may not subscribe to %s", s.actor.Role, s.actor.UserID, ch)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.channels[ch] == nil {
		h.channels[ch] = make(map[*Session]struct{})
	}
	h.channels[ch][s] = struct{}{}
	s.subs[ch] = struct{}{}
	return nil
}

func (h *Hub) unsubscribe(s *Session, ch rt.Channel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(s.subs, ch)
	h.removeLocked(ch, s)
}

func (h *Hub) removeLocked(ch rt.Channel, s *Session) {
	subs := h.channels[ch]
	delete(subs, s)
	if len(subs) == 0 {
		delete(h.channels, ch)
	}
}

// Subscribers returns how many sessions listen on ch.
func (h *Hub) Subscribers(ch rt.Channel) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[ch])
}

// Connections returns how many sessions userID holds.
func (h *Hub) Connections(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID])
}

// CanSubscribe decides channel access by role. Administrators see every
// channel, security staff their own feed, owners only their private channel.
func CanSubscribe(actor models.Actor, ch rt.Channel) bool {
	switch actor.Role {
	case models.RoleAdmin:
		return true
	case models.RoleSecurity:
		return ch == rt.SecurityChannel
	case models.RoleOwner:
		id, ok := ch.OwnerID()
		return ok && id == actor.UserID
	}
	return false
}

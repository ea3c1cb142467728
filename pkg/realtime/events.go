// Package realtime is the client side of the campus event stream: a closed set
// of channels and event kinds, interchangeable push and polling transports, a
// subscription manager multiplexing views over one connection, and the
// reconciler that replaces incremental state with authoritative snapshots
// whenever push delivery is degraded.
package realtime

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ChannelKind groups channels that carry the same event kinds.
type ChannelKind string

const (
	KindAdmin    ChannelKind = "admin"
	KindSecurity ChannelKind = "security"
	KindOwner    ChannelKind = "owner"
)

// Channel names one logical topic, e.g. "admin" or "owner:42".
type Channel string

const (
	AdminChannel    Channel = "admin"
	SecurityChannel Channel = "security"
)

// OwnerChannel is the private channel of one vehicle owner.
func OwnerChannel(userID int64) Channel {
	return Channel(string(KindOwner) + ":" + strconv.FormatInt(userID, 10))
}

// ParseChannel validates a channel name received from the wire.
func ParseChannel(s string) (Channel, error) {
	switch Channel(s) {
	case AdminChannel, SecurityChannel:
		return Channel(s), nil
	}
	rest, ok := strings.CutPrefix(s, string(KindOwner)+":")
	if !ok {
		return "", fmt.Errorf("unknown channel %q", s)
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return "", fmt.Errorf("invalid owner channel %q", s)
	}
	return Channel(s), nil
}

func (c Channel) Kind() ChannelKind {
	if strings.HasPrefix(string(c), string(KindOwner)+":") {
		return KindOwner
	}
	return ChannelKind(c)
}

// OwnerID returns the user id of an owner channel.
func (c Channel) OwnerID() (int64, bool) {
	rest, ok := strings.CutPrefix(string(c), string(KindOwner)+":")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	return id, err == nil
}

// EventKind names an event carried on a channel.
type EventKind string

const (
	EventStatsRefresh        EventKind = "stats_refresh"
	EventVehiclePending      EventKind = "vehicle_pending"
	EventViolationCreated    EventKind = "violation_created"
	EventViolationUpdated    EventKind = "violation_updated"
	EventContestSubmitted    EventKind = "contest_submitted"
	EventContestReviewed     EventKind = "contest_reviewed"
	EventEntryExit           EventKind = "entry_exit"
	EventAccessLog           EventKind = "access_log"
	EventNotificationCreated EventKind = "notification_created"
	EventVehicleApproval     EventKind = "vehicle_approval"
	EventRFIDAssigned        EventKind = "rfid_assigned"
)

var channelEvents = map[ChannelKind][]EventKind{
	KindAdmin: {
		EventStatsRefresh,
		EventVehiclePending,
		EventViolationCreated,
		EventViolationUpdated,
		EventContestSubmitted,
		EventContestReviewed,
	},
	KindSecurity: {
		EventEntryExit,
		EventAccessLog,
		EventViolationCreated,
		EventViolationUpdated,
	},
	KindOwner: {
		EventNotificationCreated,
		EventViolationUpdated,
		EventContestReviewed,
		EventVehicleApproval,
		EventRFIDAssigned,
	},
}

// Events lists the event kinds the channel carries.
func (c Channel) Events() []EventKind {
	return append([]EventKind(nil), channelEvents[c.Kind()]...)
}

// Accepts reports whether ev belongs to the channel's event set.
func (c Channel) Accepts(ev EventKind) bool {
	for _, k := range channelEvents[c.Kind()] {
		if k == ev {
			return true
		}
	}
	return false
}

// Wire ops. Clients send subscribe, unsubscribe and ping; the server answers
// with ack, error and pong.
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpPing        = "ping"
	OpAck         = "ack"
	OpError       = "error"
	OpPong        = "pong"
)

// Frame is a client-to-server control message.
type Frame struct {
	Op      string  `json:"op"`
	Channel Channel `json:"channel,omitempty"`
}

// Envelope is a server-to-client message. Event envelopes carry Event, Origin
// and Seq; control envelopes carry Op and optionally Error.
type Envelope struct {
	Channel Channel         `json:"channel,omitempty"`
	Event   EventKind       `json:"event,omitempty"`
	Origin  string          `json:"origin,omitempty"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	SentAt  time.Time       `json:"sent_at"`
	Op      string          `json:"op,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// IsControl reports whether the envelope is an ack, error or pong.
func (e Envelope) IsControl() bool { return e.Op != "" }

// EventPayload carries the identifying fields every event has, enough for a
// handler to apply an incremental update without refetching.
type EventPayload struct {
	EntityID    string          `json:"entity_id,omitempty"`
	OwnerID     int64           `json:"owner_id,omitempty"`
	Status      string          `json:"status,omitempty"`
	ViolationID string          `json:"violation_id,omitempty"`
	Count       *int            `json:"count,omitempty"`
	Entity      json.RawMessage `json:"entity,omitempty"`
}

// NewPayload builds an EventPayload, encoding entity as the embedded record.
func NewPayload(entityID string, ownerID int64, status string, entity interface{}) (EventPayload, error) {
	p := EventPayload{EntityID: entityID, OwnerID: ownerID, Status: status}
	if entity != nil {
		raw, err := json.Marshal(entity)
		if err != nil {
			return p, fmt.Errorf("failed to encode event entity: %w", err)
		}
		p.Entity = raw
	}
	return p, nil
}

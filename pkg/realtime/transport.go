package realtime

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// ConnState is the health of a transport's underlying connection.
type ConnState string

const (
	Connected ConnState = "connected"
	Degraded  ConnState = "degraded"
)

// ChannelTransport delivers channel events to local subscribers over one
// shared connection. Deliveries for one (channel, event) from one origin
// arrive in emission order. Delivery is at-least-once.
type ChannelTransport interface {
	// Subscribe registers deliver for every envelope on channel. The returned
	// func removes it; calling it more than once is a no-op.
	Subscribe(channel Channel, deliver func(Envelope)) (unsubscribe func(), err error)
	State() ConnState
	// OnStateChange registers fn for connected/degraded transitions. Going
	// degraded is reported here, never as an error.
	OnStateChange(fn func(ConnState)) (remove func())
	Close() error
}

// Logger is the logging surface the client needs. *logrus.Logger and
// *logrus.Entry satisfy it.
type Logger interface {
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

func defaultLogger(l Logger) Logger {
	if l != nil {
		return l
	}
	return logrus.StandardLogger()
}

// registry holds the per-channel deliver funcs and state listeners shared by
// the transport implementations.
type registry struct {
	mu        sync.Mutex
	nextID    int
	channels  map[Channel]map[int]func(Envelope)
	listeners map[int]func(ConnState)
}

func newRegistry() *registry {
	return &registry{
		channels:  map[Channel]map[int]func(Envelope){},
		listeners: map[int]func(ConnState){},
	}
}

// add reports whether this is the channel's first subscriber.
func (r *registry) add(ch Channel, deliver func(Envelope)) (id int, first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	subs, ok := r.channels[ch]
	if !ok {
		subs = map[int]func(Envelope){}
		r.channels[ch] = subs
	}
	subs[r.nextID] = deliver
	return r.nextID, !ok
}

// remove reports whether the channel has no subscribers left.
func (r *registry) remove(ch Channel, id int) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs, ok := r.channels[ch]
	if !ok {
		return false
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(r.channels, ch)
		return true
	}
	return false
}

func (r *registry) subscribed() []Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Channel, 0, len(r.channels))
	for ch := range r.channels {
		out = append(out, ch)
	}
	return out
}

func (r *registry) deliver(env Envelope) {
	r.mu.Lock()
	subs := make([]func(Envelope), 0, len(r.channels[env.Channel]))
	for _, fn := range r.channels[env.Channel] {
		subs = append(subs, fn)
	}
	r.mu.Unlock()
	for _, fn := range subs {
		fn(env)
	}
}

func (r *registry) onState(fn func(ConnState)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.listeners[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.listeners, id)
			r.mu.Unlock()
		})
	}
}

func (r *registry) notify(s ConnState) {
	r.mu.Lock()
	fns := make([]func(ConnState), 0, len(r.listeners))
	for _, fn := range r.listeners {
		fns = append(fns, fn)
	}
	r.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

// SelectOptions configures Select.
type SelectOptions struct {
	URL string
	WS  WSOptions
}

// Select returns a live websocket transport when the endpoint is reachable
// and a polling-only transport otherwise. Callers depend on ChannelTransport
// either way.
func Select(ctx context.Context, opts SelectOptions) ChannelTransport {
	if opts.URL != "" {
		t, err := DialWS(ctx, opts.URL, opts.WS)
		if err == nil {
			return t
		}
		defaultLogger(opts.WS.Logger).Warnf("Live transport unavailable, falling back to polling: %v", err)
	}
	return NewPollingTransport()
}

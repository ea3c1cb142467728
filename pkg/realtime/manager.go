package realtime

import (
	"fmt"
	"sync"
	"time"

	"violation-service/pkg/clock"
)

// Handlers maps each event kind a view cares about to its handler.
type Handlers map[EventKind]func(Envelope)

// SubscribeOptions enables the polling fallback for one subscription. A nil
// Fallback means the view only reacts to pushes.
type SubscribeOptions struct {
	Fallback     Snapshot
	PollInterval time.Duration
	Jitter       time.Duration
	StaleAfter   int
	OnStale      func(stale bool)
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Clock  clock.Clock
	Logger Logger
	// Int63n draws poll jitter; defaults to math/rand.
	Int63n func(n int64) int64
}

// Manager lets independent views share one transport. Every Subscribe call
// gets its own handle, handlers and reconciler, so views on the same channel
// never fire each other's handlers. Resubscription after a reconnect is done
// by the transport and is invisible here.
type Manager struct {
	transport ChannelTransport
	opts      ManagerOptions

	mu     sync.Mutex
	closed bool
	subs   map[*Subscription]struct{}
}

func NewManager(t ChannelTransport, opts ManagerOptions) *Manager {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	opts.Logger = defaultLogger(opts.Logger)
	return &Manager{transport: t, opts: opts, subs: map[*Subscription]struct{}{}}
}

// Subscribe mounts a view on channel. Every handler key must be an event the
// channel carries.
func (m *Manager) Subscribe(ch Channel, handlers Handlers, opts SubscribeOptions) (*Subscription, error) {
	if _, err := ParseChannel(string(ch)); err != nil {
		return nil, err
	}
	hs := make(Handlers, len(handlers))
	for ev, fn := range handlers {
		if !ch.Accepts(ev) {
			return nil, fmt.Errorf("channel %s does not carry %s", ch, ev)
		}
		if fn != nil {
			hs[ev] = fn
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	s := &Subscription{
		manager:  m,
		channel:  ch,
		handlers: hs,
		lastSeq:  map[seqKey]uint64{},
	}
	unsub, err := m.transport.Subscribe(ch, s.deliver)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", ch, err)
	}
	s.unsubscribe = unsub
	if opts.Fallback != nil {
		s.reconciler = NewReconciler(m.transport, opts.Fallback, ReconcilerOptions{
			Interval:   opts.PollInterval,
			Jitter:     opts.Jitter,
			StaleAfter: opts.StaleAfter,
			OnStale:    opts.OnStale,
			Clock:      m.opts.Clock,
			Int63n:     m.opts.Int63n,
		})
	}
	m.subs[s] = struct{}{}
	return s, nil
}

// Len returns the number of mounted subscriptions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Close unmounts every subscription. The transport is left open; it is owned
// by the caller.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	subs := make([]*Subscription, 0, len(m.subs))
	for s := range m.subs {
		subs = append(subs, s)
	}
	m.mu.Unlock()
	for _, s := range subs {
		s.Close()
	}
}

func (m *Manager) forget(s *Subscription) {
	m.mu.Lock()
	delete(m.subs, s)
	m.mu.Unlock()
}

type seqKey struct {
	origin string
	event  EventKind
}

// Subscription is one mounted view.
type Subscription struct {
	manager     *Manager
	channel     Channel
	handlers    Handlers
	unsubscribe func()
	reconciler  *Reconciler

	mu      sync.Mutex
	closed  bool
	lastSeq map[seqKey]uint64
	once    sync.Once

	// running is read-held for the duration of each handler call.
	running sync.RWMutex
}

func (s *Subscription) Channel() Channel { return s.channel }

// Stale reports whether the fallback poll has been failing. Always false
// without a fallback.
func (s *Subscription) Stale() bool {
	return s.reconciler != nil && s.reconciler.Stale()
}

// Polling reports whether the fallback poll is currently active.
func (s *Subscription) Polling() bool {
	return s.reconciler != nil && s.reconciler.Polling()
}

// Close unmounts the view: no handler is invoked and no snapshot is applied
// after it returns. It waits for handler calls already in progress, so a
// handler must not close its own subscription or the manager.
// Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.running.Lock()
		s.running.Unlock()

		s.unsubscribe()
		if s.reconciler != nil {
			s.reconciler.Close()
		}
		s.manager.forget(s)
	})
}

// deliver drops events for other channels, events without a handler and
// replays that do not advance the (origin, event) sequence.
func (s *Subscription) deliver(env Envelope) {
	if env.Channel != s.channel {
		return
	}
	h, ok := s.handlers[env.Event]
	if !ok {
		return
	}
	s.running.RLock()
	defer s.running.RUnlock()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if env.Origin != "" && env.Seq > 0 {
		k := seqKey{origin: env.Origin, event: env.Event}
		if env.Seq <= s.lastSeq[k] {
			s.mu.Unlock()
			s.manager.opts.Logger.Debugf("Dropping replay of %s seq %d on %s", env.Event, env.Seq, env.Channel)
			return
		}
		s.lastSeq[k] = env.Seq
	}
	s.mu.Unlock()
	h(env)
}

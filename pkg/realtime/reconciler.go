package realtime

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"violation-service/pkg/clock"
)

// Snapshot fetches authoritative state. The returned apply func commits it to
// the caller's aggregate and runs only if the owning subscription is still
// polling when the fetch completes.
type Snapshot func(ctx context.Context) (apply func(), err error)

// ReconcilerOptions configures the fallback poll.
type ReconcilerOptions struct {
	Interval time.Duration
	// Jitter is the upper bound of the random delay added to each interval.
	Jitter time.Duration
	// StaleAfter consecutive failed polls mark the data stale.
	StaleAfter int
	// OnStale is told when data becomes stale and when a poll succeeds again.
	OnStale func(stale bool)
	Clock   clock.Clock
	// Int63n draws the jitter; defaults to math/rand.
	Int63n func(n int64) int64
}

func (o *ReconcilerOptions) applyDefaults() {
	if o.Interval <= 0 {
		o.Interval = 10 * time.Second
	}
	if o.Jitter < 0 {
		o.Jitter = 0
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = 3
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Int63n == nil {
		o.Int63n = rand.Int63n
	}
}

// Reconciler polls a snapshot while its transport is degraded. The poll timer
// is cancelled as soon as the transport reports connected, and an in-flight
// fetch is aborted on reconnect or Close; a fetch that completes after either
// is discarded.
//
// apply and OnStale run with the reconciler's lock held and must not call
// back into it.
type Reconciler struct {
	transport ChannelTransport
	fetch     Snapshot
	opts      ReconcilerOptions

	mu       sync.Mutex
	gen      uint64
	timer    clock.Timer
	inflight context.CancelFunc
	closed   bool
	failures int
	stale    bool

	removeListener func()
	once           sync.Once
}

func NewReconciler(t ChannelTransport, fetch Snapshot, opts ReconcilerOptions) *Reconciler {
	opts.applyDefaults()
	r := &Reconciler{transport: t, fetch: fetch, opts: opts}
	r.removeListener = t.OnStateChange(r.onState)
	r.onState(t.State())
	return r
}

// onState may see a Degraded that was overtaken by a reconnect, so the live
// transport state wins.
func (r *Reconciler) onState(s ConnState) {
	if s == Degraded && r.transport.State() == Connected {
		s = Connected
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	switch s {
	case Connected:
		r.stopLocked()
	case Degraded:
		if r.timer == nil && r.inflight == nil {
			r.scheduleLocked()
		}
	}
}

// Polling reports whether a poll is scheduled or in flight.
func (r *Reconciler) Polling() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timer != nil || r.inflight != nil
}

// Stale reports whether the last StaleAfter polls all failed.
func (r *Reconciler) Stale() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stale
}

// Close stops polling and aborts any in-flight fetch. Safe to call more than
// once.
func (r *Reconciler) Close() {
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.stopLocked()
		r.mu.Unlock()
		r.removeListener()
	})
}

func (r *Reconciler) delay() time.Duration {
	d := r.opts.Interval
	if r.opts.Jitter > 0 {
		d += time.Duration(r.opts.Int63n(int64(r.opts.Jitter) + 1))
	}
	return d
}

func (r *Reconciler) scheduleLocked() {
	gen := r.gen
	r.timer = r.opts.Clock.AfterFunc(r.delay(), func() { r.poll(gen) })
}

func (r *Reconciler) stopLocked() {
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	if r.inflight != nil {
		r.inflight()
		r.inflight = nil
	}
}

func (r *Reconciler) poll(gen uint64) {
	connected := r.transport.State() == Connected
	r.mu.Lock()
	if r.closed || gen != r.gen {
		r.mu.Unlock()
		return
	}
	if connected {
		r.stopLocked()
		r.mu.Unlock()
		return
	}
	r.timer = nil
	ctx, cancel := context.WithCancel(context.Background())
	r.inflight = cancel
	r.mu.Unlock()

	apply, err := r.fetch(ctx)
	cancel()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || gen != r.gen {
		return
	}
	r.inflight = nil
	if err != nil {
		r.failures++
		if r.failures >= r.opts.StaleAfter && !r.stale {
			r.setStaleLocked(true)
		}
	} else {
		if apply != nil {
			apply()
		}
		r.failures = 0
		if r.stale {
			r.setStaleLocked(false)
		}
	}
	r.scheduleLocked()
}

func (r *Reconciler) setStaleLocked(stale bool) {
	r.stale = stale
	if r.opts.OnStale != nil {
		r.opts.OnStale(stale)
	}
}

package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"violation-service/pkg/clock"
)

// ErrClosed is returned when subscribing on a closed transport.
var ErrClosed = errors.New("transport closed")

const wsWriteWait = 10 * time.Second

// WSOptions configures the live websocket transport.
type WSOptions struct {
	Header     http.Header
	Dialer     *websocket.Dialer
	Clock      clock.Clock
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Logger     Logger
}

func (o *WSOptions) applyDefaults() {
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.MinBackoff <= 0 {
		o.MinBackoff = 500 * time.Millisecond
	}
	if o.MaxBackoff < o.MinBackoff {
		o.MaxBackoff = 30 * time.Second
	}
	o.Logger = defaultLogger(o.Logger)
}

// WSTransport multiplexes every channel subscription of a session over one
// websocket. When the connection drops it reports Degraded, redials with
// bounded exponential backoff and resubscribes every live channel before
// reporting Connected again.
type WSTransport struct {
	url  string
	opts WSOptions
	reg  *registry

	// mu guards conn, state and closed, and serializes writes.
	mu     sync.Mutex
	conn   *websocket.Conn
	state  ConnState
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

var _ ChannelTransport = (*WSTransport)(nil)

// DialWS connects to url and starts the read loop. It fails if the first dial
// fails; reconnects after that are handled internally.
func DialWS(ctx context.Context, url string, opts WSOptions) (*WSTransport, error) {
	opts.applyDefaults()
	conn, _, err := opts.Dialer.DialContext(ctx, url, opts.Header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	t := &WSTransport{
		url:   url,
		opts:  opts,
		reg:   newRegistry(),
		conn:  conn,
		state: Connected,
		done:  make(chan struct{}),
	}
	t.ctx, t.cancel = context.WithCancel(context.Background())
	go t.run(conn)
	return t, nil
}

func (t *WSTransport) State() ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *WSTransport) OnStateChange(fn func(ConnState)) func() {
	return t.reg.onState(fn)
}

func (t *WSTransport) Subscribe(ch Channel, deliver func(Envelope)) (func(), error) {
	if _, err := ParseChannel(string(ch)); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}
	id, first := t.reg.add(ch, deliver)
	if first {
		t.writeLocked(Frame{Op: OpSubscribe, Channel: ch})
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if t.reg.remove(ch, id) {
				t.writeLocked(Frame{Op: OpUnsubscribe, Channel: ch})
			}
		})
	}, nil
}

// Close tears down the connection and stops reconnecting. It waits for the
// read loop to exit.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	t.cancel()
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}
	<-t.done
	return nil
}

// writeLocked sends a control frame on the current connection. A failed write
// closes the connection so the read loop notices and reconnects.
func (t *WSTransport) writeLocked(f Frame) {
	if t.conn == nil {
		return
	}
	if err := writeFrame(t.conn, f); err != nil {
		t.opts.Logger.Debugf("Failed to send %s for %s: %v", f.Op, f.Channel, err)
		_ = t.conn.Close()
	}
}

func writeFrame(conn *websocket.Conn, f Frame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(f)
}

func (t *WSTransport) run(conn *websocket.Conn) {
	defer close(t.done)
	for conn != nil {
		t.read(conn)
		if !t.degrade(conn) {
			return
		}
		conn = t.reconnect()
	}
}

func (t *WSTransport) read(conn *websocket.Conn) {
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			t.opts.Logger.Debugf("Realtime connection lost: %v", err)
			return
		}
		if env.IsControl() {
			if env.Op == OpError {
				t.opts.Logger.Warnf("Server rejected frame for %s: %s", env.Channel, env.Error)
			}
			continue
		}
		t.reg.deliver(env)
	}
}

// degrade reports false when the transport was closed on purpose.
func (t *WSTransport) degrade(conn *websocket.Conn) bool {
	_ = conn.Close()
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	t.conn = nil
	t.state = Degraded
	t.mu.Unlock()
	t.reg.notify(Degraded)
	return true
}

// reconnect redials until it succeeds or the transport is closed, returning
// nil in the latter case.
func (t *WSTransport) reconnect() *websocket.Conn {
	for attempt := 0; ; attempt++ {
		select {
		case <-t.ctx.Done():
			return nil
		case <-t.opts.Clock.After(t.backoff(attempt)):
		}

		conn, _, err := t.opts.Dialer.DialContext(t.ctx, t.url, t.opts.Header)
		if err != nil {
			t.opts.Logger.Debugf("Reconnect attempt %d failed: %v", attempt+1, err)
			continue
		}

		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			_ = conn.Close()
			return nil
		}
		resubscribed := true
		for _, ch := range t.reg.subscribed() {
			if err := writeFrame(conn, Frame{Op: OpSubscribe, Channel: ch}); err != nil {
				resubscribed = false
				break
			}
		}
		if !resubscribed {
			t.mu.Unlock()
			_ = conn.Close()
			continue
		}
		t.conn = conn
		t.state = Connected
		t.mu.Unlock()

		t.reg.notify(Connected)
		return conn
	}
}

func (t *WSTransport) backoff(attempt int) time.Duration {
	if attempt > 16 {
		return t.opts.MaxBackoff
	}
	d := t.opts.MinBackoff << attempt
	if d > t.opts.MaxBackoff || d <= 0 {
		return t.opts.MaxBackoff
	}
	return d
}

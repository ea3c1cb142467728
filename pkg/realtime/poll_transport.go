package realtime

import "sync"

// PollingTransport is the transport used when no live endpoint is reachable.
// It never delivers events and always reports Degraded, so every subscription
// that opted into fallback is served by its Reconciler alone.
type PollingTransport struct {
	reg *registry

	mu     sync.Mutex
	closed bool
}

var _ ChannelTransport = (*PollingTransport)(nil)

func NewPollingTransport() *PollingTransport {
	return &PollingTransport{reg: newRegistry()}
}

func (t *PollingTransport) Subscribe(ch Channel, deliver func(Envelope)) (func(), error) {
	if _, err := ParseChannel(string(ch)); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}
	id, _ := t.reg.add(ch, deliver)
	var once sync.Once
	return func() {
		once.Do(func() { t.reg.remove(ch, id) })
	}, nil
}

func (t *PollingTransport) State() ConnState { return Degraded }

func (t *PollingTransport) OnStateChange(fn func(ConnState)) func() {
	return t.reg.onState(fn)
}

func (t *PollingTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

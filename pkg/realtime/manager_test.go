package realtime

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"violation-service/pkg/clock"
)

func envelope(ch Channel, ev EventKind, origin string, seq uint64) Envelope {
	return Envelope{Channel: ch, Event: ev, Origin: origin, Seq: seq}
}

func TestViewsOnSameChannelDoNotCrossFire(t *testing.T) {
	tr := newMockTransport(Connected)
	m := NewManager(tr, ManagerOptions{})
	defer m.Close()

	var bell, dashboard []EventKind
	_, err := m.Subscribe(AdminChannel, Handlers{
		EventContestSubmitted: func(e Envelope) { bell = append(bell, e.Event) },
	}, SubscribeOptions{})
	require.NoError(t, err)
	_, err = m.Subscribe(AdminChannel, Handlers{
		EventStatsRefresh:     func(e Envelope) { dashboard = append(dashboard, e.Event) },
		EventContestSubmitted: func(e Envelope) { dashboard = append(dashboard, e.Event) },
	}, SubscribeOptions{})
	require.NoError(t, err)

	tr.push(envelope(AdminChannel, EventStatsRefresh, "a", 1))
	tr.push(envelope(AdminChannel, EventContestSubmitted, "a", 1))
	tr.push(envelope(SecurityChannel, EventEntryExit, "a", 1))

	assert.Equal(t, []EventKind{EventContestSubmitted}, bell)
	assert.Equal(t, []EventKind{EventStatsRefresh, EventContestSubmitted}, dashboard)
}

func TestReplaysAreDroppedPerOrigin(t *testing.T) {
	tr := newMockTransport(Connected)
	m := NewManager(tr, ManagerOptions{})
	defer m.Close()

	var seen []uint64
	_, err := m.Subscribe(OwnerChannel(42), Handlers{
		EventNotificationCreated: func(e Envelope) { seen = append(seen, e.Seq) },
	}, SubscribeOptions{})
	require.NoError(t, err)

	ch := OwnerChannel(42)
	tr.push(envelope(ch, EventNotificationCreated, "node-a", 1))
	tr.push(envelope(ch, EventNotificationCreated, "node-a", 2))
	tr.push(envelope(ch, EventNotificationCreated, "node-a", 2))
	tr.push(envelope(ch, EventNotificationCreated, "node-a", 1))
	tr.push(envelope(ch, EventNotificationCreated, "node-b", 1))
	tr.push(envelope(ch, EventNotificationCreated, "", 0))

	assert.Equal(t, []uint64{1, 2, 1, 0}, seen)
}

func TestCloseIsFinalAndIdempotent(t *testing.T) {
	tr := newMockTransport(Connected)
	m := NewManager(tr, ManagerOptions{})

	var calls int32
	sub, err := m.Subscribe(SecurityChannel, Handlers{
		EventEntryExit: func(Envelope) { atomic.AddInt32(&calls, 1) },
	}, SubscribeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, tr.subscribers(SecurityChannel))

	tr.push(envelope(SecurityChannel, EventEntryExit, "a", 1))
	sub.Close()
	sub.Close()
	tr.push(envelope(SecurityChannel, EventEntryExit, "a", 2))

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	assert.Zero(t, tr.subscribers(SecurityChannel))
	assert.Zero(t, m.Len())
}

func TestSubscribeRejectsForeignEvents(t *testing.T) {
	m := NewManager(newMockTransport(Connected), ManagerOptions{})
	defer m.Close()

	_, err := m.Subscribe(SecurityChannel, Handlers{EventContestSubmitted: func(Envelope) {}}, SubscribeOptions{})
	assert.Error(t, err)

	_, err = m.Subscribe(Channel("lobby"), Handlers{}, SubscribeOptions{})
	assert.Error(t, err)
}

func TestSubscriptionFallbackFollowsTransport(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	tr := newMockTransport(Connected)
	m := NewManager(tr, ManagerOptions{Clock: clk, Int63n: func(int64) int64 { return 0 }})

	stats := NewStore(func(s string) string { return s })
	stats.Apply("drifted")
	var polls int32
	sub, err := m.Subscribe(AdminChannel, Handlers{
		EventStatsRefresh: func(Envelope) {},
	}, SubscribeOptions{
		PollInterval: interval,
		Jitter:       jitter,
		Fallback: SnapshotInto(stats, func(context.Context) ([]string, error) {
			atomic.AddInt32(&polls, 1)
			return []string{"pending", "contested"}, nil
		}),
	})
	require.NoError(t, err)
	assert.False(t, sub.Polling())

	tr.set(Degraded)
	assert.True(t, sub.Polling())
	clk.Advance(interval)
	assert.EqualValues(t, 1, atomic.LoadInt32(&polls))
	assert.Equal(t, []string{"contested", "pending"}, stats.List(), "snapshot overwrites local state")

	tr.set(Connected)
	clk.Advance(5 * interval)
	assert.EqualValues(t, 1, atomic.LoadInt32(&polls))

	tr.set(Degraded)
	sub.Close()
	clk.Advance(5 * interval)
	assert.EqualValues(t, 1, atomic.LoadInt32(&polls))
	assert.Zero(t, clk.Pending())
}

func TestManagerCloseUnmountsAll(t *testing.T) {
	tr := newMockTransport(Degraded)
	clk := clock.NewFake(time.Unix(0, 0))
	m := NewManager(tr, ManagerOptions{Clock: clk})

	for i := 0; i < 3; i++ {
		_, err := m.Subscribe(OwnerChannel(int64(i+1)), Handlers{}, SubscribeOptions{
			Fallback:     func(context.Context) (func(), error) { return nil, nil },
			PollInterval: interval,
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, clk.Pending())

	m.Close()
	assert.Zero(t, m.Len())
	assert.Zero(t, clk.Pending())

	_, err := m.Subscribe(AdminChannel, Handlers{}, SubscribeOptions{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCloseWaitsForRunningHandler(t *testing.T) {
	tr := newMockTransport(Connected)
	m := NewManager(tr, ManagerOptions{})
	defer m.Close()

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	var calls int32
	sub, err := m.Subscribe(SecurityChannel, Handlers{
		EventEntryExit: func(Envelope) {
			atomic.AddInt32(&calls, 1)
			entered <- struct{}{}
			<-release
		},
	}, SubscribeOptions{})
	require.NoError(t, err)

	go tr.push(envelope(SecurityChannel, EventEntryExit, "a", 1))
	<-entered

	var closed int32
	go func() {
		sub.Close()
		atomic.StoreInt32(&closed, 1)
	}()
	assert.Never(t, func() bool { return atomic.LoadInt32(&closed) == 1 }, 50*time.Millisecond, 5*time.Millisecond)

	close(release)
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&closed) == 1 }, time.Second, time.Millisecond)

	tr.push(envelope(SecurityChannel, EventEntryExit, "a", 2))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

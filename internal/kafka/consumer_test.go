package kafka

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"violation-service/internal/apperr"
	"violation-service/internal/logging"
	"violation-service/internal/models"
)

type handlerFunc func(ctx context.Context, ev models.CampusEvent) error

func (f handlerFunc) HandleExternal(ctx context.Context, ev models.CampusEvent) error { return f(ctx, ev) }

func newTestConsumer(h EventHandler) *Consumer {
	return &Consumer{handler: h, logger: logging.Nop(), retryDelay: time.Millisecond}
}

func TestDecode(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"rfid_assigned","user_id":7,"entity_id":"veh-1","occurred_at":"2026-03-02T09:30:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, models.CampusRFIDAssigned, ev.Type)
	assert.Equal(t, int64(7), ev.UserID)

	_, err = Decode([]byte(`{"user_id":7}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestProcessHandsEventToHandler(t *testing.T) {
	var got []models.CampusEvent
	c := newTestConsumer(handlerFunc(func(_ context.Context, ev models.CampusEvent) error {
		got = append(got, ev)
		return nil
	}))

	require.NoError(t, c.process(context.Background(), []byte(`{"type":"entry_exit","entity_id":"gate-1"}`)))
	require.Len(t, got, 1)
	assert.Equal(t, "gate-1", got[0].EntityID)

	assert.Error(t, c.process(context.Background(), []byte(`{`)))
	assert.Len(t, got, 1)
}

func TestProcessRetriesStoreFailures(t *testing.T) {
	calls := 0
	c := newTestConsumer(handlerFunc(func(context.Context, models.CampusEvent) error {
		calls++
		if calls < 3 {
			return apperr.Persistence("record", errors.New("connection reset"))
		}
		return nil
	}))
	require.NoError(t, c.process(context.Background(), []byte(`{"type":"rfid_assigned","user_id":1}`)))
	assert.Equal(t, 3, calls)
}

func TestProcessDoesNotRetryInvalidEvents(t *testing.T) {
	calls := 0
	c := newTestConsumer(handlerFunc(func(context.Context, models.CampusEvent) error {
		calls++
		return apperr.Validation("type", "unknown campus event")
	}))
	err := c.process(context.Background(), []byte(`{"type":"parking_full"}`))
	assert.True(t, apperr.IsValidation(err))
	assert.Equal(t, 1, calls)
}

type brokenReader struct {
	fetches int32
}

func (r *brokenReader) FetchMessage(context.Context) (kafka.Message, error) {
	atomic.AddInt32(&r.fetches, 1)
	return kafka.Message{}, errors.New("dial tcp: connection refused")
}

func (r *brokenReader) CommitMessages(context.Context, ...kafka.Message) error { return nil }

func (r *brokenReader) Close() error { return nil }

func TestStartBacksOffWhenBrokerIsDown(t *testing.T) {
	reader := &brokenReader{}
	c := newTestConsumer(handlerFunc(func(context.Context, models.CampusEvent) error { return nil }))
	c.reader = reader
	c.retryDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	c.Start(ctx, &wg)

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&reader.fetches) == 1 }, time.Second, time.Millisecond)
	assert.Never(t, func() bool { return atomic.LoadInt32(&reader.fetches) > 1 }, 50*time.Millisecond, 5*time.Millisecond)

	cancel()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop while waiting to retry")
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&reader.fetches))
}

func TestWaitStopsOnCancel(t *testing.T) {
	c := newTestConsumer(nil)
	c.retryDelay = 5 * time.Millisecond
	assert.True(t, c.wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.retryDelay = time.Hour
	assert.False(t, c.wait(ctx))
}

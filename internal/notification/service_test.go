package notification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"violation-service/internal/apperr"
	"violation-service/internal/db"
	"violation-service/internal/db/memory"
	"violation-service/internal/logging"
	"violation-service/internal/models"
	rt "violation-service/pkg/realtime"
)

type published struct {
	channel rt.Channel
	event   rt.EventKind
	payload interface{}
}

type recorder struct {
	mu   sync.Mutex
	msgs []published
}

func (r *recorder) Publish(_ context.Context, ch rt.Channel, ev rt.EventKind, payload interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, published{channel: ch, event: ev, payload: payload})
	return nil
}

func (r *recorder) all() []published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]published(nil), r.msgs...)
}

type staffRecorder struct {
	mu    sync.Mutex
	texts []string
}

func (s *staffRecorder) NotifyStaff(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return nil
}

func (s *staffRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.texts)
}

func newEmitter(t *testing.T) (*Emitter, *memory.Store, *recorder) {
	t.Helper()
	store := memory.New()
	rec := &recorder{}
	return New(store, rec, logging.Nop(), Options{}), store, rec
}

func TestNotifyWritesRowAndQueuesPush(t *testing.T) {
	e, store, rec := newEmitter(t)
	ctx := context.Background()

	var b Batch
	err := store.WithTx(ctx, func(tx db.Tx) error {
		_, err := e.Notify(ctx, tx, &b, 42, models.NotifyViolationIssued, "v1", "Violation issued", "A violation was recorded.")
		return err
	})
	require.NoError(t, err)
	assert.Empty(t, rec.all(), "nothing is pushed before Dispatch")

	e.Dispatch(&b)
	msgs := rec.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, rt.OwnerChannel(42), msgs[0].channel)
	assert.Equal(t, rt.EventNotificationCreated, msgs[0].event)

	list, err := e.List(ctx, models.Actor{UserID: 42, Role: models.RoleOwner}, false, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.NotifyViolationIssued, list[0].Type)
	assert.False(t, list[0].IsRead)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	e, store, _ := newEmitter(t)
	ctx := context.Background()
	owner := models.Actor{UserID: 42, Role: models.RoleOwner}

	var b Batch
	var n models.Notification
	require.NoError(t, store.WithTx(ctx, func(tx db.Tx) error {
		var err error
		n, err = e.Notify(ctx, tx, &b, owner.UserID, models.NotifyAppealSubmitted, "c1", "t", "m")
		return err
	}))

	for i := 0; i < 2; i++ {
		require.NoError(t, e.MarkRead(ctx, owner, n.ID))
		got, err := store.GetNotification(ctx, n.ID)
		require.NoError(t, err)
		assert.True(t, got.IsRead)
	}

	err := e.MarkRead(ctx, models.Actor{UserID: 7, Role: models.RoleOwner}, n.ID)
	assert.True(t, apperr.IsNotFound(err))

	count, err := e.UnreadCount(ctx, owner)
	require.NoError(t, err)
	assert.Zero(t, count)

	changed, err := e.MarkAllRead(ctx, owner)
	require.NoError(t, err)
	assert.Zero(t, changed)
}

func TestWorkersKeepPerChannelOrder(t *testing.T) {
	e, _, rec := newEmitter(t)
	var wg sync.WaitGroup
	e.Start(&wg)
	defer func() {
		e.Stop()
		wg.Wait()
	}()

	var b Batch
	for i := 0; i < 50; i++ {
		b.Push(rt.AdminChannel, rt.EventStatsRefresh, i)
		b.Push(rt.SecurityChannel, rt.EventEntryExit, i)
	}
	e.Dispatch(&b)

	require.Eventually(t, func() bool { return len(rec.all()) == 100 }, 2*time.Second, 5*time.Millisecond)
	next := map[rt.Channel]int{}
	for _, m := range rec.all() {
		assert.Equal(t, next[m.channel], m.payload, "out of order on %s", m.channel)
		next[m.channel]++
	}
}

func TestDispatchDropsWhenQueueFull(t *testing.T) {
	store := memory.New()
	rec := &recorder{}
	e := New(store, rec, logging.Nop(), Options{QueueSize: 1, Workers: 1})
	// Shards without workers: the single slot fills and the rest are dropped.
	e.shards = []chan Message{make(chan Message, 1)}

	var b Batch
	b.Push(rt.AdminChannel, rt.EventStatsRefresh, 1)
	b.Push(rt.AdminChannel, rt.EventStatsRefresh, 2)
	e.Dispatch(&b)
	assert.Len(t, e.shards[0], 1)
}

func TestStaffMirror(t *testing.T) {
	e, _, _ := newEmitter(t)
	staff := &staffRecorder{}
	e.SetStaffNotifier(staff)

	var b Batch
	b.Staff("New appeal on violation v1")
	e.Dispatch(&b)
	require.Eventually(t, func() bool { return staff.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestHandleExternalUserEvents(t *testing.T) {
	tests := []struct {
		typ        models.CampusEventType
		notify     models.NotificationType
		wantEvents []rt.EventKind
	}{
		{models.CampusVehicleApproved, models.NotifyVehicleApproved, []rt.EventKind{rt.EventNotificationCreated, rt.EventVehicleApproval, rt.EventVehiclePending}},
		{models.CampusVehicleRejected, models.NotifyVehicleRejected, []rt.EventKind{rt.EventNotificationCreated, rt.EventVehicleApproval, rt.EventVehiclePending}},
		{models.CampusRFIDAssigned, models.NotifyRFIDAssigned, []rt.EventKind{rt.EventNotificationCreated, rt.EventRFIDAssigned}},
		{models.CampusAccountStatusChanged, models.NotifyAccountStatusChanged, []rt.EventKind{rt.EventNotificationCreated}},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			e, store, rec := newEmitter(t)
			ctx := context.Background()
			err := e.HandleExternal(ctx, models.CampusEvent{Type: tt.typ, UserID: 9, EntityID: "veh-1", Status: "active"})
			require.NoError(t, err)

			list, err := store.ListNotifications(ctx, models.NotificationFilter{UserID: 9})
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, tt.notify, list[0].Type)
			assert.NotEmpty(t, list[0].Message)

			var got []rt.EventKind
			for _, m := range rec.all() {
				got = append(got, m.event)
			}
			assert.Equal(t, tt.wantEvents, got)
		})
	}
}

func TestHandleExternalStaffOnlyEvents(t *testing.T) {
	e, store, rec := newEmitter(t)
	ctx := context.Background()

	require.NoError(t, e.HandleExternal(ctx, models.CampusEvent{Type: models.CampusEntryExit, EntityID: "gate-2"}))
	require.NoError(t, e.HandleExternal(ctx, models.CampusEvent{Type: models.CampusAccessLog, EntityID: "log-1"}))
	require.NoError(t, e.HandleExternal(ctx, models.CampusEvent{Type: models.CampusVehiclePending}))

	msgs := rec.all()
	require.Len(t, msgs, 3)
	assert.Equal(t, rt.SecurityChannel, msgs[0].channel)
	assert.Equal(t, rt.EventAccessLog, msgs[1].event)
	assert.Equal(t, rt.AdminChannel, msgs[2].channel)

	stats, err := store.DashboardStats(ctx)
	require.NoError(t, err)
	assert.Empty(t, stats.ViolationsByStatus)
}

func TestHandleExternalRejectsBadEvents(t *testing.T) {
	e, _, rec := newEmitter(t)
	ctx := context.Background()

	err := e.HandleExternal(ctx, models.CampusEvent{Type: "parking_full"})
	assert.True(t, apperr.IsValidation(err))

	err = e.HandleExternal(ctx, models.CampusEvent{Type: models.CampusRFIDAssigned})
	assert.True(t, apperr.IsValidation(err))
	assert.Empty(t, rec.all())
}

func TestHandleExternalPersistenceFailurePushesNothing(t *testing.T) {
	e, store, rec := newEmitter(t)
	store.FailOn("InsertNotification", assert.AnError)

	err := e.HandleExternal(context.Background(), models.CampusEvent{Type: models.CampusRFIDAssigned, UserID: 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, rec.all())
}

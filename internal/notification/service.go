package notification

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"violation-service/internal/db"
	"violation-service/internal/logging"
	"violation-service/internal/metrics"
	"violation-service/internal/models"
	rt "violation-service/pkg/realtime"
)

// Publisher pushes one event to the subscribers of a channel.
type Publisher interface {
	Publish(ctx context.Context, channel rt.Channel, event rt.EventKind, payload interface{}) error
}

// StaffNotifier mirrors selected events to the security office.
type StaffNotifier interface {
	NotifyStaff(ctx context.Context, text string) error
}

// Message is a push event waiting for dispatch.
type Message struct {
	Channel rt.Channel
	Event   rt.EventKind
	Payload interface{}
}

// Batch collects the push side effects of one transaction. Nothing in a
// batch leaves the process until the transaction has committed.
type Batch struct {
	messages []Message
	staff    []string
}

func (b *Batch) Push(channel rt.Channel, event rt.EventKind, payload interface{}) {
	b.messages = append(b.messages, Message{Channel: channel, Event: event, Payload: payload})
}

// Staff queues a text for the security office mirror.
func (b *Batch) Staff(text string) {
	b.staff = append(b.staff, text)
}

func (b *Batch) Messages() []Message { return b.messages }

// Options sizes the dispatch pool.
type Options struct {
	QueueSize int
	Workers   int
}

// Emitter writes Notification rows inside lifecycle transactions and pushes
// the resulting events after commit. Pushes for one channel always go through
// the same worker, which keeps them in emission order.
type Emitter struct {
	store  db.Store
	pub    Publisher
	staff  StaffNotifier
	logger *logging.Logger
	now    func() time.Time
	opts   Options

	shards []chan Message
	ctx    context.Context
	cancel context.CancelFunc
	wg     *sync.WaitGroup
}

func New(store db.Store, pub Publisher, logger *logging.Logger, opts Options) *Emitter {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 500
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Emitter{
		store:  store,
		pub:    pub,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetStaffNotifier enables the staff mirror.
func (e *Emitter) SetStaffNotifier(s StaffNotifier) { e.staff = s }

// SetClock replaces the time source used for created_at.
func (e *Emitter) SetClock(now func() time.Time) { e.now = now }

// Start launches the dispatch workers. Before Start, Dispatch publishes
// inline on the caller's goroutine.
func (e *Emitter) Start(wg *sync.WaitGroup) {
	e.wg = wg
	e.shards = make([]chan Message, e.opts.Workers)
	for i := range e.shards {
		e.shards[i] = make(chan Message, e.opts.QueueSize)
		e.wg.Add(1)
		go e.worker(i, e.shards[i])
	}
}

// Stop cancels the workers. Queued messages not yet published are dropped;
// clients recover them through snapshot polling.
func (e *Emitter) Stop() {
	e.cancel()
}

func (e *Emitter) worker(id int, queue <-chan Message) {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			e.logger.Infof("Dispatch worker %d stopped", id)
			return
		case msg := <-queue:
			e.publish(msg)
		}
	}
}

func (e *Emitter) publish(msg Message) {
	if err := e.pub.Publish(e.ctx, msg.Channel, msg.Event, msg.Payload); err != nil {
		metrics.DispatchFailed.Inc()
		e.logger.Errorf("Failed to publish %s on %s: %v", msg.Event, msg.Channel, err)
	}
}

func (e *Emitter) shardFor(ch rt.Channel) chan Message {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ch))
	return e.shards[h.Sum32()%uint32(len(e.shards))]
}

// Dispatch hands a committed batch to the workers.
func (e *Emitter) Dispatch(b *Batch) {
	if b == nil {
		return
	}
	for _, msg := range b.messages {
		if e.shards == nil {
			e.publish(msg)
			continue
		}
		select {
		case e.shardFor(msg.Channel) <- msg:
		default:
			metrics.DispatchDropped.Inc()
			e.logger.Errorf("Queue full, dropping %s on %s", msg.Event, msg.Channel)
		}
	}
	if e.staff == nil {
		return
	}
	for _, text := range b.staff {
		go func(text string) {
			if err := e.staff.NotifyStaff(e.ctx, text); err != nil {
				e.logger.Warnf("Failed to mirror to staff chat: %v", err)
			}
		}(text)
	}
}

// Notify writes exactly one notification for userID within tx and queues its
// push to the user's channel on b.
func (e *Emitter) Notify(ctx context.Context, tx db.Tx, b *Batch, userID int64, typ models.NotificationType, entityID, title, message string) (models.Notification, error) {
	n := models.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Message:   message,
		EntityID:  entityID,
		CreatedAt: e.now(),
	}
	if err := tx.InsertNotification(ctx, n); err != nil {
		return models.Notification{}, err
	}
	metrics.NotificationsCreated.WithLabelValues(string(typ)).Inc()

	payload, err := rt.NewPayload(n.ID, userID, string(typ), n)
	if err != nil {
		return models.Notification{}, err
	}
	b.Push(rt.OwnerChannel(userID), rt.EventNotificationCreated, payload)
	return n, nil
}

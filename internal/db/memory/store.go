// Package memory provides an in-memory Store used by tests and by ephemeral
// runs with STORE_DRIVER=memory.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"violation-service/internal/db"
	"violation-service/internal/models"
)

var _ db.Store = (*Store)(nil)

type state struct {
	violations    map[string]models.Violation
	contests      map[string]models.Contest
	notifications map[string]models.Notification
	statusLog     []models.StatusLog
}

func newState() state {
	return state{
		violations:    map[string]models.Violation{},
		contests:      map[string]models.Contest{},
		notifications: map[string]models.Notification{},
	}
}

func (s state) clone() state {
	c := newState()
	for k, v := range s.violations {
		c.violations[k] = v
	}
	for k, v := range s.contests {
		c.contests[k] = v
	}
	for k, v := range s.notifications {
		c.notifications[k] = v
	}
	c.statusLog = append(c.statusLog, s.statusLog...)
	return c
}

// Store keeps all rows in process memory. Transactions are serialized: each
// WithTx works on a cloned state that replaces the live one only when the
// callback succeeds.
type Store struct {
	mu    sync.Mutex // serializes writers
	data  sync.RWMutex
	state state

	failMu sync.Mutex
	fail   map[string]error
}

func New() *Store {
	return &Store{state: newState(), fail: map[string]error{}}
}

// FailOn makes the named Tx method return err until cleared with a nil err.
func (s *Store) FailOn(method string, err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	if err == nil {
		delete(s.fail, method)
		return
	}
	s.fail[method] = err
}

func (s *Store) injected(method string) error {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	return s.fail[method]
}

func (s *Store) WithTx(ctx context.Context, fn func(db.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.data.RLock()
	work := s.state.clone()
	s.data.RUnlock()

	if err := fn(&tx{store: s, state: &work}); err != nil {
		return err
	}

	s.data.Lock()
	s.state = work
	s.data.Unlock()
	return nil
}

func (s *Store) Close() {}

func (s *Store) GetViolation(_ context.Context, id string) (models.Violation, error) {
	s.data.RLock()
	defer s.data.RUnlock()
	v, ok := s.state.violations[id]
	if !ok {
		return models.Violation{}, db.ErrNotFound
	}
	return v, nil
}

func (s *Store) ListViolations(_ context.Context, f models.ViolationFilter) ([]models.Violation, error) {
	s.data.RLock()
	list := []models.Violation{}
	for _, v := range s.state.violations {
		if f.Status != "" && v.Status != f.Status {
			continue
		}
		if f.OwnerID != 0 && v.OwnerID != f.OwnerID {
			continue
		}
		list = append(list, v)
	}
	s.data.RUnlock()
	sort.Slice(list, func(i, j int) bool { return newer(list[i].CreatedAt, list[j].CreatedAt, list[i].ID, list[j].ID) })
	return page(list, f.Limit, f.Offset), nil
}

func (s *Store) GetContest(_ context.Context, id string) (models.Contest, error) {
	s.data.RLock()
	defer s.data.RUnlock()
	c, ok := s.state.contests[id]
	if !ok {
		return models.Contest{}, db.ErrNotFound
	}
	return c, nil
}

func (s *Store) ListContests(_ context.Context, f models.ContestFilter) ([]models.Contest, error) {
	s.data.RLock()
	list := []models.Contest{}
	for _, c := range s.state.contests {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.OwnerID != 0 && c.OwnerID != f.OwnerID {
			continue
		}
		list = append(list, c)
	}
	s.data.RUnlock()
	sort.Slice(list, func(i, j int) bool { return newer(list[i].SubmittedAt, list[j].SubmittedAt, list[i].ID, list[j].ID) })
	return page(list, f.Limit, f.Offset), nil
}

func (s *Store) StatusHistory(_ context.Context, entity, id string) ([]models.StatusLog, error) {
	s.data.RLock()
	defer s.data.RUnlock()
	history := []models.StatusLog{}
	for _, l := range s.state.statusLog {
		if l.Entity == entity && l.EntityID == id {
			history = append(history, l)
		}
	}
	return history, nil
}

func (s *Store) DashboardStats(_ context.Context) (models.DashboardStats, error) {
	s.data.RLock()
	defer s.data.RUnlock()
	stats := models.DashboardStats{
		ViolationsByStatus: map[models.ViolationStatus]int{},
		ContestsByStatus:   map[models.ContestStatus]int{},
	}
	for _, v := range s.state.violations {
		stats.ViolationsByStatus[v.Status]++
	}
	for _, c := range s.state.contests {
		stats.ContestsByStatus[c.Status]++
		if c.Status.Active() {
			stats.PendingContests++
		}
	}
	return stats, nil
}

func (s *Store) GetNotification(_ context.Context, id string) (models.Notification, error) {
	s.data.RLock()
	defer s.data.RUnlock()
	n, ok := s.state.notifications[id]
	if !ok {
		return models.Notification{}, db.ErrNotFound
	}
	return n, nil
}

func (s *Store) ListNotifications(_ context.Context, f models.NotificationFilter) ([]models.Notification, error) {
	s.data.RLock()
	list := []models.Notification{}
	for _, n := range s.state.notifications {
		if n.UserID != f.UserID || (f.UnreadOnly && n.IsRead) {
			continue
		}
		list = append(list, n)
	}
	s.data.RUnlock()
	sort.Slice(list, func(i, j int) bool { return newer(list[i].CreatedAt, list[j].CreatedAt, list[i].ID, list[j].ID) })
	return page(list, f.Limit, f.Offset), nil
}

func (s *Store) CountUnread(_ context.Context, userID int64) (int, error) {
	s.data.RLock()
	defer s.data.RUnlock()
	count := 0
	for _, n := range s.state.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (s *Store) MarkNotificationRead(_ context.Context, userID int64, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Lock()
	defer s.data.Unlock()
	n, ok := s.state.notifications[id]
	if !ok || n.UserID != userID {
		return db.ErrNotFound
	}
	n.IsRead = true
	s.state.notifications[id] = n
	return nil
}

func (s *Store) MarkAllNotificationsRead(_ context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Lock()
	defer s.data.Unlock()
	var flipped int64
	for id, n := range s.state.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			s.state.notifications[id] = n
			flipped++
		}
	}
	return flipped, nil
}

// tx applies writes to a private copy of the state.
type tx struct {
	store *Store
	state *state
}

func (t *tx) LockViolation(_ context.Context, id string) (models.Violation, error) {
	if err := t.store.injected("LockViolation"); err != nil {
		return models.Violation{}, err
	}
	v, ok := t.state.violations[id]
	if !ok {
		return models.Violation{}, db.ErrNotFound
	}
	return v, nil
}

func (t *tx) InsertViolation(_ context.Context, v models.Violation) error {
	if err := t.store.injected("InsertViolation"); err != nil {
		return err
	}
	v.ContestID = ""
	v.UpdatedAt = v.CreatedAt
	t.state.violations[v.ID] = v
	return nil
}

func (t *tx) UpdateViolationStatus(_ context.Context, id string, from, to models.ViolationStatus, contestID string, resolvedAt *time.Time) error {
	if err := t.store.injected("UpdateViolationStatus"); err != nil {
		return err
	}
	v, ok := t.state.violations[id]
	if !ok || v.Status != from {
		return db.ErrStale
	}
	v.Status = to
	if contestID != "" {
		v.ContestID = contestID
	}
	if resolvedAt != nil {
		at := *resolvedAt
		v.ResolvedAt = &at
	}
	v.UpdatedAt = time.Now().UTC()
	t.state.violations[id] = v
	return nil
}

func (t *tx) ActiveContest(_ context.Context, violationID string) (models.Contest, bool, error) {
	if err := t.store.injected("ActiveContest"); err != nil {
		return models.Contest{}, false, err
	}
	for _, c := range t.state.contests {
		if c.ViolationID == violationID && c.Status.Active() {
			return c, true, nil
		}
	}
	return models.Contest{}, false, nil
}

func (t *tx) GetContest(_ context.Context, id string) (models.Contest, error) {
	if err := t.store.injected("GetContest"); err != nil {
		return models.Contest{}, err
	}
	c, ok := t.state.contests[id]
	if !ok {
		return models.Contest{}, db.ErrNotFound
	}
	return c, nil
}

func (t *tx) InsertContest(ctx context.Context, c models.Contest) error {
	if err := t.store.injected("InsertContest"); err != nil {
		return err
	}
	if _, ok := t.state.violations[c.ViolationID]; !ok {
		return db.ErrNotFound
	}
	if c.Status.Active() {
		if _, active, _ := t.ActiveContest(ctx, c.ViolationID); active {
			return db.ErrDuplicateActive
		}
	}
	t.state.contests[c.ID] = c
	return nil
}

func (t *tx) UpdateContestReview(_ context.Context, c models.Contest, expected models.ContestStatus) error {
	if err := t.store.injected("UpdateContestReview"); err != nil {
		return err
	}
	cur, ok := t.state.contests[c.ID]
	if !ok || cur.Status != expected {
		return db.ErrStale
	}
	cur.Status = c.Status
	cur.ReviewerID = c.ReviewerID
	cur.ReviewNotes = c.ReviewNotes
	cur.ReviewedAt = c.ReviewedAt
	t.state.contests[c.ID] = cur
	return nil
}

func (t *tx) InsertNotification(_ context.Context, n models.Notification) error {
	if err := t.store.injected("InsertNotification"); err != nil {
		return err
	}
	n.IsRead = false
	t.state.notifications[n.ID] = n
	return nil
}

func (t *tx) InsertStatusLog(_ context.Context, l models.StatusLog) error {
	if err := t.store.injected("InsertStatusLog"); err != nil {
		return err
	}
	t.state.statusLog = append(t.state.statusLog, l)
	return nil
}

// newer orders rows newest first with the id as a stable tie-break.
func newer(a, b time.Time, aID, bID string) bool {
	if a.Equal(b) {
		return aID > bID
	}
	return a.After(b)
}

func page[T any](list []T, limit, offset int) []T {
	limit = db.Limit(limit)
	if offset < 0 {
		offset = 0
	}
	if offset >= len(list) {
		return list[:0]
	}
	end := offset + limit
	if end > len(list) {
		end = len(list)
	}
	return list[offset:end]
}

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"violation-service/internal/apperr"
	"violation-service/internal/db"
	"violation-service/internal/evidence"
	"violation-service/internal/logging"
	"violation-service/internal/metrics"
	"violation-service/internal/models"
	"violation-service/internal/notification"
	rt "violation-service/pkg/realtime"
)

const (
	entityViolation = "violation"
	entityContest   = "contest"
)

// Engine applies every violation and contest mutation. Each operation runs in
// one store transaction that also writes the status log and the affected
// user's notification; pushes leave only after commit.
type Engine struct {
	store    db.Store
	emitter  *notification.Emitter
	evidence evidence.Store
	logger   *logging.Logger
	now      func() time.Time
}

func NewEngine(store db.Store, emitter *notification.Emitter, blobs evidence.Store, logger *logging.Logger) *Engine {
	return &Engine{
		store:    store,
		emitter:  emitter,
		evidence: blobs,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source for review and resolution timestamps.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// CreateViolation records a new pending violation on behalf of staff.
func (e *Engine) CreateViolation(ctx context.Context, actor models.Actor, in models.ViolationCreate) (v models.Violation, err error) {
	defer observe("create_violation", &err)

	if !actor.IsStaff() {
		return v, apperr.Forbidden("only staff may record violations")
	}
	switch {
	case strings.TrimSpace(in.VehicleID) == "":
		return v, apperr.Validation("vehicle_id", "is required")
	case strings.TrimSpace(in.ViolationTypeID) == "":
		return v, apperr.Validation("violation_type_id", "is required")
	case in.OwnerID <= 0:
		return v, apperr.Validation("owner_id", "must be a positive user id")
	}

	now := e.now()
	v = models.Violation{
		ID:              uuid.NewString(),
		VehicleID:       strings.TrimSpace(in.VehicleID),
		OwnerID:         in.OwnerID,
		ViolationTypeID: strings.TrimSpace(in.ViolationTypeID),
		ReporterID:      actor.UserID,
		Status:          models.ViolationPending,
		Description:     in.Description,
		Location:        in.Location,
		EvidenceURL:     in.EvidenceURL,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var b notification.Batch
	err = e.store.WithTx(ctx, func(tx db.Tx) error {
		if err := tx.InsertViolation(ctx, v); err != nil {
			return err
		}
		if err := e.log(ctx, tx, entityViolation, v.ID, "", string(v.Status), "", actor.UserID); err != nil {
			return err
		}
		_, err := e.emitter.Notify(ctx, tx, &b, v.OwnerID, models.NotifyViolationIssued, v.ID,
			"Violation issued", violationIssuedMessage(v))
		return err
	})
	if err != nil {
		return models.Violation{}, wrap("create violation", err)
	}

	if payload, perr := violationPayload(v); perr != nil {
		e.logger.Errorf("Failed to build payload for violation %s: %v", v.ID, perr)
	} else {
		b.Push(rt.AdminChannel, rt.EventViolationCreated, payload)
		b.Push(rt.SecurityChannel, rt.EventViolationCreated, payload)
		b.Push(rt.OwnerChannel(v.OwnerID), rt.EventViolationUpdated, payload)
	}
	b.Push(rt.AdminChannel, rt.EventStatsRefresh, rt.EventPayload{EntityID: v.ID})
	e.emitter.Dispatch(&b)

	e.logger.Infof("Violation %s recorded for vehicle %s by %d", v.ID, v.VehicleID, actor.UserID)
	return v, nil
}

// SubmitAppeal files the owner's contest against a pending violation. The
// contest insert and the violation moving to contested commit together.
func (e *Engine) SubmitAppeal(ctx context.Context, actor models.Actor, violationID, explanation string, files []evidence.File) (c models.Contest, err error) {
	defer observe("submit_appeal", &err)

	explanation = strings.TrimSpace(explanation)
	if explanation == "" {
		return c, apperr.Validation("explanation", "must not be empty")
	}
	if _, err := evidence.Validate(files); err != nil {
		return c, err
	}

	v, err := e.store.GetViolation(ctx, violationID)
	if err != nil {
		return c, lookup(entityViolation, violationID, err)
	}
	if actor.UserID != v.OwnerID {
		return c, apperr.Forbidden("only the vehicle owner may appeal violation %s", violationID)
	}
	if v.Status != models.ViolationPending {
		return c, apperr.Validation("violation", "violation %s is %s; only pending violations can be appealed", v.ID, v.Status)
	}

	var attached *models.Evidence
	if len(files) > 0 {
		attached, err = evidence.Upload(ctx, e.evidence, v.ID, files)
		if err != nil {
			return c, wrap("upload evidence", err)
		}
	}

	now := e.now()
	c = models.Contest{
		ID:          uuid.NewString(),
		ViolationID: v.ID,
		OwnerID:     v.OwnerID,
		Status:      models.ContestPending,
		Explanation: explanation,
		Evidence:    attached,
		SubmittedAt: now,
	}

	var b notification.Batch
	err = e.store.WithTx(ctx, func(tx db.Tx) error {
		locked, err := tx.LockViolation(ctx, v.ID)
		if err != nil {
			return lookup(entityViolation, v.ID, err)
		}
		if locked.Status != models.ViolationPending {
			return apperr.Validation("violation", "violation %s is %s; only pending violations can be appealed", v.ID, locked.Status)
		}
		if _, active, err := tx.ActiveContest(ctx, v.ID); err != nil {
			return err
		} else if active {
			return apperr.Validation("violation", "violation %s already has an active appeal", v.ID)
		}
		next, err := NextViolationStatus(v.ID, locked.Status, EventContest)
		if err != nil {
			return err
		}

		if err := tx.InsertContest(ctx, c); err != nil {
			if errors.Is(err, db.ErrDuplicateActive) {
				return apperr.Validation("violation", "violation %s already has an active appeal", v.ID)
			}
			return err
		}
		if err := tx.UpdateViolationStatus(ctx, v.ID, locked.Status, next, c.ID, nil); err != nil {
			if errors.Is(err, db.ErrStale) {
				return apperr.Validation("violation", "violation %s is no longer pending", v.ID)
			}
			return err
		}
		if err := e.log(ctx, tx, entityContest, c.ID, "", string(c.Status), "", actor.UserID); err != nil {
			return err
		}
		if err := e.log(ctx, tx, entityViolation, v.ID, string(locked.Status), string(next), "appeal "+c.ID, actor.UserID); err != nil {
			return err
		}
		v = locked
		v.Status = next
		v.ContestID = c.ID
		v.UpdatedAt = now

		_, err = e.emitter.Notify(ctx, tx, &b, v.OwnerID, models.NotifyAppealSubmitted, c.ID,
			"Appeal submitted", appealSubmittedMessage(v))
		return err
	})
	if err != nil {
		if attached != nil {
			if derr := e.evidence.Delete(context.WithoutCancel(ctx), attached.Key); derr != nil {
				e.logger.Warnf("Failed to remove orphaned evidence %s: %v", attached.Key, derr)
			}
		}
		return models.Contest{}, wrap("submit appeal", err)
	}

	if cp, err := contestPayload(c); err == nil {
		b.Push(rt.AdminChannel, rt.EventContestSubmitted, cp)
	}
	e.pushViolationUpdated(&b, v)
	b.Staff(fmt.Sprintf("New appeal %s on violation %s (vehicle %s): %s", c.ID, v.ID, v.VehicleID, c.Explanation))
	e.emitter.Dispatch(&b)

	e.logger.Infof("Appeal %s submitted on violation %s by %d", c.ID, v.ID, actor.UserID)
	return c, nil
}

// Review applies an administrator's decision to a contest. The status change
// is a compare-and-swap on contest_status: of two racing reviews exactly one
// wins and the other gets a StateConflictError.
func (e *Engine) Review(ctx context.Context, actor models.Actor, contestID string, action models.ReviewAction, notes string) (c models.Contest, err error) {
	defer observe("review", &err)

	if !actor.IsAdmin() {
		return c, apperr.Forbidden("only administrators may review appeals")
	}
	notes = strings.TrimSpace(notes)

	var (
		b       notification.Batch
		v       models.Violation
		changed bool
		vMoved  bool
	)
	err = e.store.WithTx(ctx, func(tx db.Tx) error {
		cur, err := tx.GetContest(ctx, contestID)
		if err != nil {
			return lookup(entityContest, contestID, err)
		}
		next, err := NextContestStatus(cur.ID, cur.Status, action)
		if err != nil {
			return err
		}
		c = cur
		if next == cur.Status && notes == cur.ReviewNotes {
			return nil
		}

		v, err = tx.LockViolation(ctx, cur.ViolationID)
		if err != nil {
			return lookup(entityViolation, cur.ViolationID, err)
		}
		vNext, err := NextViolationStatus(v.ID, v.Status, ViolationEventFor(action))
		if err != nil {
			return err
		}

		now := e.now()
		reviewer := actor.UserID
		c.Status = next
		c.ReviewerID = &reviewer
		c.ReviewNotes = notes
		c.ReviewedAt = &now
		if err := tx.UpdateContestReview(ctx, c, cur.Status); err != nil {
			if errors.Is(err, db.ErrStale) {
				return apperr.Conflict(entityContest, cur.ID, string(cur.Status), string(action))
			}
			return err
		}
		if err := e.log(ctx, tx, entityContest, c.ID, string(cur.Status), string(c.Status), notes, actor.UserID); err != nil {
			return err
		}

		if vNext != v.Status {
			var resolvedAt *time.Time
			if vNext.Terminal() {
				resolvedAt = &now
			}
			if err := tx.UpdateViolationStatus(ctx, v.ID, v.Status, vNext, "", resolvedAt); err != nil {
				if errors.Is(err, db.ErrStale) {
					return apperr.Conflict(entityViolation, v.ID, string(v.Status), string(action))
				}
				return err
			}
			if err := e.log(ctx, tx, entityViolation, v.ID, string(v.Status), string(vNext), "appeal "+string(next), actor.UserID); err != nil {
				return err
			}
			v.Status = vNext
			v.ResolvedAt = resolvedAt
			v.UpdatedAt = now
			vMoved = true
		}

		typ, title := models.NotifyAppealUnderReview, "Appeal under review"
		if next.Terminal() {
			typ, title = models.NotifyAppealResolved, "Appeal "+string(next)
		}
		changed = true
		_, err = e.emitter.Notify(ctx, tx, &b, c.OwnerID, typ, c.ID, title, appealReviewedMessage(c, v))
		return err
	})
	if err != nil {
		return models.Contest{}, wrap("review appeal", err)
	}
	if !changed {
		return c, nil
	}

	if cp, err := contestPayload(c); err == nil {
		b.Push(rt.OwnerChannel(c.OwnerID), rt.EventContestReviewed, cp)
		b.Push(rt.AdminChannel, rt.EventContestReviewed, cp)
	}
	if vMoved {
		e.pushViolationUpdated(&b, v)
	}
	b.Push(rt.AdminChannel, rt.EventStatsRefresh, rt.EventPayload{EntityID: c.ID, Status: string(c.Status)})
	e.emitter.Dispatch(&b)

	e.logger.Infof("Appeal %s reviewed by %d: %s", c.ID, actor.UserID, c.Status)
	return c, nil
}

// RejectViolation withdraws a pending violation outright. No contest is
// involved and the violation becomes terminal.
func (e *Engine) RejectViolation(ctx context.Context, actor models.Actor, violationID, reason string) (v models.Violation, err error) {
	defer observe("reject_violation", &err)

	if !actor.IsAdmin() {
		return v, apperr.Forbidden("only administrators may reject violations")
	}
	reason = strings.TrimSpace(reason)

	var b notification.Batch
	err = e.store.WithTx(ctx, func(tx db.Tx) error {
		cur, err := tx.LockViolation(ctx, violationID)
		if err != nil {
			return lookup(entityViolation, violationID, err)
		}
		next, err := NextViolationStatus(cur.ID, cur.Status, EventReject)
		if err != nil {
			return err
		}
		now := e.now()
		if err := tx.UpdateViolationStatus(ctx, cur.ID, cur.Status, next, "", &now); err != nil {
			if errors.Is(err, db.ErrStale) {
				return apperr.Conflict(entityViolation, cur.ID, string(cur.Status), string(EventReject))
			}
			return err
		}
		if err := e.log(ctx, tx, entityViolation, cur.ID, string(cur.Status), string(next), reason, actor.UserID); err != nil {
			return err
		}
		v = cur
		v.Status = next
		v.ResolvedAt = &now
		v.UpdatedAt = now
		_, err = e.emitter.Notify(ctx, tx, &b, v.OwnerID, models.NotifyViolationRejected, v.ID,
			"Violation withdrawn", violationRejectedMessage(v, reason))
		return err
	})
	if err != nil {
		return models.Violation{}, wrap("reject violation", err)
	}

	e.pushViolationUpdated(&b, v)
	b.Push(rt.AdminChannel, rt.EventStatsRefresh, rt.EventPayload{EntityID: v.ID, Status: string(v.Status)})
	e.emitter.Dispatch(&b)

	e.logger.Infof("Violation %s rejected by %d", v.ID, actor.UserID)
	return v, nil
}

func (e *Engine) pushViolationUpdated(b *notification.Batch, v models.Violation) {
	payload, err := violationPayload(v)
	if err != nil {
		e.logger.Errorf("Failed to build payload for violation %s: %v", v.ID, err)
		return
	}
	b.Push(rt.OwnerChannel(v.OwnerID), rt.EventViolationUpdated, payload)
	b.Push(rt.AdminChannel, rt.EventViolationUpdated, payload)
	b.Push(rt.SecurityChannel, rt.EventViolationUpdated, payload)
}

func (e *Engine) log(ctx context.Context, tx db.Tx, entity, id, from, to, note string, by int64) error {
	return tx.InsertStatusLog(ctx, models.StatusLog{
		ID:        uuid.NewString(),
		Entity:    entity,
		EntityID:  id,
		OldStatus: from,
		NewStatus: to,
		Note:      note,
		ChangedBy: by,
		CreatedAt: e.now(),
	})
}

// buildPayload encodes push payloads; replaced in tests.
var buildPayload = rt.NewPayload

func violationPayload(v models.Violation) (rt.EventPayload, error) {
	p, err := buildPayload(v.ID, v.OwnerID, string(v.Status), v)
	p.ViolationID = v.ID
	return p, err
}

func contestPayload(c models.Contest) (rt.EventPayload, error) {
	p, err := buildPayload(c.ID, c.OwnerID, string(c.Status), c)
	p.ViolationID = c.ViolationID
	return p, err
}

// lookup translates a missing row into NotFoundError.
func lookup(entity, id string, err error) error {
	if errors.Is(err, db.ErrNotFound) {
		return apperr.NotFound(entity, id)
	}
	return err
}

// wrap passes typed errors through and reports anything else as a store
// failure; the transaction has already rolled back.
func wrap(op string, err error) error {
	if apperr.IsValidation(err) || apperr.IsConflict(err) || apperr.IsNotFound(err) || apperr.IsForbidden(err) {
		return err
	}
	return apperr.Persistence(op, err)
}

func observe(op string, err *error) {
	outcome := "ok"
	if *err != nil {
		outcome = apperr.Code(*err)
	}
	metrics.Transitions.WithLabelValues(op, outcome).Inc()
}

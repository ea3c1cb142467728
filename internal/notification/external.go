package notification

import (
	"context"
	"fmt"

	"violation-service/internal/apperr"
	"violation-service/internal/db"
	"violation-service/internal/metrics"
	"violation-service/internal/models"
	rt "violation-service/pkg/realtime"
)

type userEvent struct {
	notify models.NotificationType
	title  string
	push   rt.EventKind // owner channel event besides notification_created, if any
}

var userEvents = map[models.CampusEventType]userEvent{
	models.CampusVehicleApproved:      {notify: models.NotifyVehicleApproved, title: "Vehicle approved", push: rt.EventVehicleApproval},
	models.CampusVehicleRejected:      {notify: models.NotifyVehicleRejected, title: "Vehicle registration rejected", push: rt.EventVehicleApproval},
	models.CampusRFIDAssigned:         {notify: models.NotifyRFIDAssigned, title: "RFID sticker assigned", push: rt.EventRFIDAssigned},
	models.CampusAccountStatusChanged: {notify: models.NotifyAccountStatusChanged, title: "Account status changed"},
}

// HandleExternal turns a campus event into its notification and pushes.
// Events that affect one user produce exactly one notification; gate
// activity only refreshes staff dashboards.
func (e *Emitter) HandleExternal(ctx context.Context, ev models.CampusEvent) error {
	err := e.handleExternal(ctx, ev)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.ExternalEvents.WithLabelValues(string(ev.Type), outcome).Inc()
	return err
}

func (e *Emitter) handleExternal(ctx context.Context, ev models.CampusEvent) error {
	payload := rt.EventPayload{EntityID: ev.EntityID, OwnerID: ev.UserID, Status: ev.Status, Count: ev.Count, Entity: ev.Data}

	if spec, ok := userEvents[ev.Type]; ok {
		if ev.UserID <= 0 {
			return apperr.Validation("user_id", "%s event requires a user", ev.Type)
		}
		var b Batch
		err := e.store.WithTx(ctx, func(tx db.Tx) error {
			_, err := e.Notify(ctx, tx, &b, ev.UserID, spec.notify, ev.EntityID, spec.title, externalMessage(ev))
			return err
		})
		if err != nil {
			return apperr.Persistence("record "+string(ev.Type), err)
		}
		if spec.push != "" {
			b.Push(rt.OwnerChannel(ev.UserID), spec.push, payload)
		}
		if ev.Type == models.CampusVehicleApproved || ev.Type == models.CampusVehicleRejected {
			b.Push(rt.AdminChannel, rt.EventVehiclePending, payload)
		}
		e.Dispatch(&b)
		return nil
	}

	var b Batch
	switch ev.Type {
	case models.CampusEntryExit:
		b.Push(rt.SecurityChannel, rt.EventEntryExit, payload)
	case models.CampusAccessLog:
		b.Push(rt.SecurityChannel, rt.EventAccessLog, payload)
	case models.CampusVehiclePending:
		b.Push(rt.AdminChannel, rt.EventVehiclePending, payload)
	default:
		return apperr.Validation("type", "unknown campus event %q", ev.Type)
	}
	e.Dispatch(&b)
	return nil
}

func externalMessage(ev models.CampusEvent) string {
	if ev.Message != "" {
		return ev.Message
	}
	switch ev.Type {
	case models.CampusVehicleApproved:
		return fmt.Sprintf("Your vehicle %s has been approved for campus access.", ev.EntityID)
	case models.CampusVehicleRejected:
		return fmt.Sprintf("Your vehicle %s registration was rejected.", ev.EntityID)
	case models.CampusRFIDAssigned:
		return fmt.Sprintf("An RFID sticker has been assigned to vehicle %s.", ev.EntityID)
	default:
		return fmt.Sprintf("Your account status is now %s.", ev.Status)
	}
}

package models

import "time"

// NotificationType represents the kind of notification.
type NotificationType string

const (
	NotifyVehicleApproved      NotificationType = "vehicle_approved"
	NotifyVehicleRejected      NotificationType = "vehicle_rejected"
	NotifyRFIDAssigned         NotificationType = "rfid_assigned"
	NotifyAccountStatusChanged NotificationType = "account_status_changed"
	NotifyViolationIssued      NotificationType = "violation_issued"
	NotifyViolationRejected    NotificationType = "violation_rejected"
	NotifyAppealSubmitted      NotificationType = "appeal_submitted"
	NotifyAppealUnderReview    NotificationType = "appeal_under_review"
	NotifyAppealResolved       NotificationType = "appeal_resolved"
)

// Notification is an in-app message for a single user. IsRead only ever moves
// from false to true.
type Notification struct {
	ID        string           `json:"id"`
	UserID    int64            `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	EntityID  string           `json:"entity_id,omitempty"`
	IsRead    bool             `json:"is_read"`
	CreatedAt time.Time        `json:"created_at"`
}

// NotificationFilter narrows a user's notification listing.
type NotificationFilter struct {
	UserID     int64
	UnreadOnly bool
	Limit      int
	Offset     int
}

package models

import (
	"encoding/json"
	"time"
)

// CampusEventType names an event produced by the registration, gate and
// account services and consumed from kafka.
type CampusEventType string

const (
	CampusVehicleApproved      CampusEventType = "vehicle_approved"
	CampusVehicleRejected      CampusEventType = "vehicle_rejected"
	CampusVehiclePending       CampusEventType = "vehicle_pending"
	CampusRFIDAssigned         CampusEventType = "rfid_assigned"
	CampusAccountStatusChanged CampusEventType = "account_status_changed"
	CampusEntryExit            CampusEventType = "entry_exit"
	CampusAccessLog            CampusEventType = "access_log"
)

// CampusEvent is the kafka message body.
type CampusEvent struct {
	Type       CampusEventType `json:"type"`
	UserID     int64           `json:"user_id,omitempty"`
	EntityID   string          `json:"entity_id,omitempty"`
	Status     string          `json:"status,omitempty"`
	Message    string          `json:"message,omitempty"`
	Count      *int            `json:"count,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

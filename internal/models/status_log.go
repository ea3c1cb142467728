package models

import "time"

// StatusLog records one status change of a violation or contest.
type StatusLog struct {
	ID        string    `json:"id"`
	Entity    string    `json:"entity"` // "violation" or "contest"
	EntityID  string    `json:"entity_id"`
	OldStatus string    `json:"old_status,omitempty"`
	NewStatus string    `json:"new_status"`
	Note      string    `json:"note,omitempty"`
	ChangedBy int64     `json:"changed_by"`
	CreatedAt time.Time `json:"created_at"`
}

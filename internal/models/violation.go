package models

import "time"

type ViolationStatus string

const (
	ViolationPending   ViolationStatus = "pending"
	ViolationContested ViolationStatus = "contested"
	ViolationResolved  ViolationStatus = "resolved"
	ViolationClosed    ViolationStatus = "closed"
	ViolationRejected  ViolationStatus = "rejected"
)

// Valid reports whether s is one of the known violation statuses.
func (s ViolationStatus) Valid() bool {
	switch s {
	case ViolationPending, ViolationContested, ViolationResolved, ViolationClosed, ViolationRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition is permitted from s.
func (s ViolationStatus) Terminal() bool {
	return s == ViolationResolved || s == ViolationClosed || s == ViolationRejected
}

// Violation is a recorded infraction tied to a vehicle. OwnerID is the
// vehicle owner at the time the violation was recorded, as supplied by the
// vehicle directory.
type Violation struct {
	ID              string          `json:"id"`
	VehicleID       string          `json:"vehicle_id"`
	OwnerID         int64           `json:"owner_id"`
	ViolationTypeID string          `json:"violation_type_id"`
	ReporterID      int64           `json:"reporter_id"`
	Status          ViolationStatus `json:"status"`
	Description     string          `json:"description"`
	Location        string          `json:"location"`
	EvidenceURL     string          `json:"evidence_url,omitempty"`
	ContestID       string          `json:"contest_id,omitempty"` // latest contest, if any
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
}

// ViolationCreate is the input for recording a new violation.
type ViolationCreate struct {
	VehicleID       string `json:"vehicle_id" binding:"required"`
	OwnerID         int64  `json:"owner_id" binding:"required"`
	ViolationTypeID string `json:"violation_type_id" binding:"required"`
	Description     string `json:"description"`
	Location        string `json:"location"`
	EvidenceURL     string `json:"evidence_url,omitempty"`
}

// ViolationFilter narrows violation listings. Zero values mean "any".
type ViolationFilter struct {
	Status  ViolationStatus
	OwnerID int64
	Limit   int
	Offset  int
}

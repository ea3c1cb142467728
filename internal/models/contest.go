package models

import "time"

type ContestStatus string

const (
	ContestPending     ContestStatus = "pending"
	ContestUnderReview ContestStatus = "under_review"
	ContestApproved    ContestStatus = "approved"
	ContestDenied      ContestStatus = "denied"
)

func (s ContestStatus) Valid() bool {
	switch s {
	case ContestPending, ContestUnderReview, ContestApproved, ContestDenied:
		return true
	}
	return false
}

// Active reports whether the contest still awaits a decision.
func (s ContestStatus) Active() bool {
	return s == ContestPending || s == ContestUnderReview
}

func (s ContestStatus) Terminal() bool {
	return s == ContestApproved || s == ContestDenied
}

// ReviewAction is what an administrator can do to an active contest.
type ReviewAction string

const (
	ActionApprove     ReviewAction = "approve"
	ActionDeny        ReviewAction = "deny"
	ActionUnderReview ReviewAction = "under_review"
)

func (a ReviewAction) Valid() bool {
	return a == ActionApprove || a == ActionDeny || a == ActionUnderReview
}

// Evidence describes the single file attached to a contest.
type Evidence struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Contest is an owner's appeal against a violation.
type Contest struct {
	ID          string        `json:"id"`
	ViolationID string        `json:"violation_id"`
	OwnerID     int64         `json:"owner_id"`
	Status      ContestStatus `json:"contest_status"`
	Explanation string        `json:"explanation"`
	Evidence    *Evidence     `json:"evidence,omitempty"`
	ReviewerID  *int64        `json:"reviewer_id,omitempty"`
	ReviewNotes string        `json:"review_notes,omitempty"`
	SubmittedAt time.Time     `json:"submitted_at"`
	ReviewedAt  *time.Time    `json:"reviewed_at,omitempty"`
}

// ContestFilter narrows contest listings. Zero values mean "any".
type ContestFilter struct {
	Status  ContestStatus
	OwnerID int64
	Limit   int
	Offset  int
}

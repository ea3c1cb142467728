package models

import "time"

// DashboardStats is the authoritative snapshot served to dashboards and used
// by polling clients to reconcile drift.
type DashboardStats struct {
	ViolationsByStatus map[ViolationStatus]int `json:"violations_by_status"`
	ContestsByStatus   map[ContestStatus]int   `json:"contests_by_status"`
	PendingContests    int                     `json:"pending_contests"`
	GeneratedAt        time.Time               `json:"generated_at"`
}

package models

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleSecurity Role = "security"
	RoleOwner    Role = "owner"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleSecurity || r == RoleOwner
}

// Actor is the caller identity supplied by the upstream auth provider.
type Actor struct {
	UserID int64
	Role   Role
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// IsStaff reports whether the actor may record violations.
func (a Actor) IsStaff() bool { return a.Role == RoleAdmin || a.Role == RoleSecurity }

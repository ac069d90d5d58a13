package models

import "time"

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleUser      Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleModerator, RoleUser:
		return true
	}
	return false
}

// RoleAssignment marks a principal as holding a role. The presence of the row
// is the membership flag; revoking deletes it.
type RoleAssignment struct {
	Principal  Principal `gorm:"primaryKey;size:128"`
	Role       Role      `gorm:"primaryKey;size:16"`
	AssignedBy Principal `gorm:"size:128"`
	CreatedAt  time.Time
}

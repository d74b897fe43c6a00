package domain

import (
	"fmt"
	"time"
)

// Role enumerates account roles.
type Role string

const (
	RoleCitizen    Role = "citizen"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

// ParseRole validates a role name.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleCitizen, RoleAdmin, RoleSuperadmin:
		return Role(raw), nil
	}
	return "", fmt.Errorf("unknown role %q", raw)
}

// User is an account: citizens report, admins work their department, the superadmin arbitrates.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	Department   *Category
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID     string
	Role       Role
	Department *Category
}

// ActorFor builds the actor view of a user.
func ActorFor(user *User) Actor {
	return Actor{UserID: user.ID, Role: user.Role, Department: user.Department}
}

// Covers reports whether the actor may work on complaints routed to the given department.
func (a Actor) Covers(c *Complaint) bool {
	switch a.Role {
	case RoleSuperadmin:
		return true
	case RoleAdmin:
		return a.Department != nil && *a.Department == c.RoutedTo()
	default:
		return a.UserID == c.ReporterID
	}
}

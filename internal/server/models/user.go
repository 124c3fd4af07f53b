// Package models defines server-side data models persisted in the database.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Role is the closed set of organisational roles. Each role maps to a fixed
// weight and weights strictly order roles.
type Role string

const (
	RoleManagement Role = "management"
	RoleDeveloper  Role = "developer"
	RoleStaff      Role = "staff"
	RoleTrialStaff Role = "trial_staff"
)

var roleWeights = map[Role]int{
	RoleManagement: 100,
	RoleDeveloper:  80,
	RoleStaff:      50,
	RoleTrialStaff: 20,
}

// Roles lists every role from heaviest to lightest.
func Roles() []Role {
	return []Role{RoleManagement, RoleDeveloper, RoleStaff, RoleTrialStaff}
}

// Weight returns the role's weight, or 0 for an unknown role.
func (r Role) Weight() int { return roleWeights[r] }

func (r Role) Valid() bool {
	_, ok := roleWeights[r]
	return ok
}

// ParseRole accepts a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// DefaultRole is assigned when a whitelisted user completes signup.
const DefaultRole = RoleStaff

type UserStatus string

const (
	UserActive  UserStatus = "active"
	UserBanned  UserStatus = "banned"
	UserTimeout UserStatus = "timeout"
)

type User struct {
	ID           string
	Email        string
	DisplayName  string
	PfpURL       string
	Role         Role
	RoleWeight   int
	Status       UserStatus
	TimeoutUntil *time.Time
	// PublicKey is the user's age X25519 recipient, used to seal chat keys.
	PublicKey string
	CreatedAt time.Time
}

// EffectiveStatus derives the status at now. A timeout whose deadline has
// passed reads as active even if the stored status still says timeout.
func (u *User) EffectiveStatus(now time.Time) UserStatus {
	switch u.Status {
	case UserBanned:
		return UserBanned
	case UserTimeout:
		if u.TimeoutUntil != nil && u.TimeoutUntil.After(now) {
			return UserTimeout
		}
		return UserActive
	default:
		return UserActive
	}
}

// Restricted reports whether the user is banned or still timed out at now.
func (u *User) Restricted(now time.Time) bool {
	return u.EffectiveStatus(now) != UserActive
}

// Identity is the authenticated caller as supplied by the identity provider.
type Identity struct {
	UserID string
	Email  string
}

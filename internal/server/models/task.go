package models

import (
	"net/mail"
	"strings"
	"time"
)

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

func (s TaskStatus) rank() int {
	switch s {
	case TaskPending:
		return 0
	case TaskInProgress:
		return 1
	case TaskCompleted:
		return 2
	default:
		return -1
	}
}

func (s TaskStatus) Valid() bool { return s.rank() >= 0 }

// CanTransitionTo allows only forward moves.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	return s.Valid() && next.Valid() && next.rank() > s.rank()
}

type Task struct {
	ID               string
	Title            string
	Description      string
	AssignedBy       string
	TargetRoleWeight int
	Status           TaskStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type WhitelistEntry struct {
	ID        string
	Email     string
	AddedBy   string
	CreatedAt time.Time
}

// NormalizeEmail trims and lower-cases an address for whitelist matching.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidEmail reports whether s parses as a bare address.
func ValidEmail(s string) bool {
	a, err := mail.ParseAddress(s)
	return err == nil && a.Address == s
}

package models

import "time"

type ChatType string

const (
	ChatDM    ChatType = "dm"
	ChatGroup ChatType = "group"
)

type Chat struct {
	ID               string
	Type             ChatType
	Name             string
	Description      string
	PfpURL           string
	CurrentEpoch     int64
	LastSequence     int64
	StorageUsedBytes int64
	CreatedAt        time.Time
	DeletedAt        *time.Time
}

type GroupRole string

const (
	GroupOwner  GroupRole = "owner"
	GroupAdmin  GroupRole = "admin"
	GroupMember GroupRole = "member"
)

type Participant struct {
	ChatID    string
	UserID    string
	GroupRole GroupRole
	// FirstEpoch is the oldest key epoch the participant may unwrap.
	FirstEpoch int64
	JoinedAt   time.Time
}

// EffectiveFirstEpoch treats an unset FirstEpoch as the chat's first epoch.
func (p *Participant) EffectiveFirstEpoch() int64 {
	if p == nil || p.FirstEpoch < 1 {
		return 1
	}
	return p.FirstEpoch
}

// IsModerator reports whether the participant may kick members.
func (p *Participant) IsModerator() bool {
	return p != nil && (p.GroupRole == GroupOwner || p.GroupRole == GroupAdmin)
}

// DMKey returns the canonical key for the unordered pair of users.
func DMKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleWeights_StrictlyOrdered(t *testing.T) {
	roles := Roles()
	for i := 1; i < len(roles); i++ {
		assert.Greater(t, roles[i-1].Weight(), roles[i].Weight(), "%s must outweigh %s", roles[i-1], roles[i])
	}
	assert.Equal(t, 100, RoleManagement.Weight())
	assert.Equal(t, 50, DefaultRole.Weight())
	assert.Zero(t, Role("janitor").Weight())
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("  Developer ")
	require.NoError(t, err)
	assert.Equal(t, RoleDeveloper, r)

	_, err = ParseRole("admin")
	assert.Error(t, err)
}

func TestUser_EffectiveStatus(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Minute)
	past := now.Add(-time.Second)

	tests := []struct {
		name string
		user User
		want UserStatus
	}{
		{"active", User{Status: UserActive}, UserActive},
		{"banned", User{Status: UserBanned}, UserBanned},
		{"timeout running", User{Status: UserTimeout, TimeoutUntil: &future}, UserTimeout},
		{"timeout elapsed", User{Status: UserTimeout, TimeoutUntil: &past}, UserActive},
		{"timeout at deadline", User{Status: UserTimeout, TimeoutUntil: &now}, UserActive},
		{"timeout without deadline", User{Status: UserTimeout}, UserActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.user.EffectiveStatus(now))
			assert.Equal(t, tt.want != UserActive, tt.user.Restricted(now))
		})
	}
}

func TestMessage_ExpiredAt(t *testing.T) {
	now := time.Now()
	exp := now.Add(5 * time.Second)
	m := Message{IsDisappearing: true, ExpiresAt: &exp}

	assert.False(t, m.ExpiredAt(now.Add(4*time.Second)))
	assert.True(t, m.ExpiredAt(exp))
	assert.True(t, m.ExpiredAt(now.Add(70*time.Second)))

	plain := Message{ExpiresAt: &exp}
	assert.False(t, plain.ExpiredAt(now.Add(time.Hour)))
}

func TestTaskStatus_ForwardOnly(t *testing.T) {
	assert.True(t, TaskPending.CanTransitionTo(TaskInProgress))
	assert.True(t, TaskPending.CanTransitionTo(TaskCompleted))
	assert.True(t, TaskInProgress.CanTransitionTo(TaskCompleted))
	assert.False(t, TaskCompleted.CanTransitionTo(TaskPending))
	assert.False(t, TaskInProgress.CanTransitionTo(TaskInProgress))
	assert.False(t, TaskPending.CanTransitionTo("archived"))
}

func TestDMKey_Unordered(t *testing.T) {
	assert.Equal(t, DMKey("a", "b"), DMKey("b", "a"))
	assert.NotEqual(t, DMKey("a", "b"), DMKey("a", "c"))
}

func TestEmailHelpers(t *testing.T) {
	assert.Equal(t, "bob@example.com", NormalizeEmail("  Bob@Example.COM "))
	assert.True(t, ValidEmail("bob@example.com"))
	assert.False(t, ValidEmail("Bob <bob@example.com>"))
	assert.False(t, ValidEmail("nope"))
}

func TestParticipant_IsModerator(t *testing.T) {
	var nilP *Participant
	assert.False(t, nilP.IsModerator())
	assert.True(t, (&Participant{GroupRole: GroupOwner}).IsModerator())
	assert.True(t, (&Participant{GroupRole: GroupAdmin}).IsModerator())
	assert.False(t, (&Participant{GroupRole: GroupMember}).IsModerator())
}

func TestParticipant_EffectiveFirstEpoch(t *testing.T) {
	var nilP *Participant
	assert.EqualValues(t, 1, nilP.EffectiveFirstEpoch())
	assert.EqualValues(t, 1, (&Participant{}).EffectiveFirstEpoch())
	assert.EqualValues(t, 4, (&Participant{FirstEpoch: 4}).EffectiveFirstEpoch())
}

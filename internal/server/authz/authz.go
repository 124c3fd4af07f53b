// Package authz is the central gate for privileged operations. Decisions are
// a pure function of the actor, the action, the target and the current time;
// the package keeps no state of its own.
package authz

import (
	"time"

	"github.com/dmitrijs2005/arcticchat/internal/common"
	"github.com/dmitrijs2005/arcticchat/internal/server/models"
	"github.com/jonboulle/clockwork"
)

type Action string

const (
	ActionBan       Action = "ban"
	ActionTimeout   Action = "timeout"
	ActionReinstate Action = "reinstate"
	ActionSetRole   Action = "set_role"

	ActionAssignTask Action = "assign_task"
	ActionViewTask   Action = "view_task"
	ActionUpdateTask Action = "update_task"

	ActionWhitelistAdd    Action = "whitelist_add"
	ActionWhitelistRemove Action = "whitelist_remove"
	ActionWhitelistView   Action = "whitelist_view"

	ActionRotateKey      Action = "rotate_key"
	ActionCreateGroup    Action = "create_group"
	ActionOpenDM         Action = "open_dm"
	ActionAddParticipant Action = "add_participant"
	ActionKick           Action = "kick"
	ActionLeave          Action = "leave"
	ActionPromote        Action = "promote"
	ActionDemote         Action = "demote"

	ActionSendMessage   Action = "send_message"
	ActionReadChat      Action = "read_chat"
	ActionFetchKey      Action = "fetch_key"
	ActionAckMessage    Action = "ack_message"
	ActionDeleteMessage Action = "delete_message"
	ActionUploadMedia   Action = "upload_media"

	ActionReadOwnStatus Action = "read_own_status"
)

// Reason codes are stable machine strings suitable for audit logs.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonUnauthenticated     Reason = "unauthenticated"
	ReasonInsufficientWeight  Reason = "insufficient_weight"
	ReasonActorBanned         Reason = "actor_banned"
	ReasonActorTimedOut       Reason = "actor_timed_out"
	ReasonNotGroupModerator   Reason = "not_group_moderator"
	ReasonSelfAction          Reason = "self_action"
	ReasonNotSelf             Reason = "not_self"
	ReasonNotParticipant      Reason = "not_participant"
	ReasonBelowTaskWeight     Reason = "below_task_weight"
	ReasonBelowAdminThreshold Reason = "below_admin_threshold"
	ReasonNotOwner            Reason = "not_owner"
	ReasonDMChat              Reason = "dm_chat"
	ReasonMissingTarget       Reason = "missing_target"
	ReasonUnknownAction       Reason = "unknown_action"
)

// DefaultAdminWeightThreshold: whitelist mutation requires a weight above it.
const DefaultAdminWeightThreshold = 50

// Target carries whatever the action is aimed at. Only the fields relevant to
// the action need to be set.
type Target struct {
	// User is the user acted upon. For kick, promote and demote it is the
	// user behind TargetMembership.
	User *models.User
	Chat *models.Chat
	// ActorMembership is the actor's participant row in Chat, nil if none.
	ActorMembership *models.Participant
	// TargetMembership is the target user's participant row in Chat.
	TargetMembership *models.Participant
	Task             *models.Task
	Message          *models.Message
	// NewRole is the role requested by SetRole.
	NewRole models.Role
	// Epoch is the key epoch requested by FetchKey.
	Epoch int64
}

type Decision struct {
	Allowed bool
	Reason  Reason
}

func allow() Decision             { return Decision{Allowed: true} }
func deny(reason Reason) Decision { return Decision{Reason: reason} }

// Err converts a denial into a *common.AuthorizationDeniedError.
func (d Decision) Err(action Action) error {
	if d.Allowed {
		return nil
	}
	return &common.AuthorizationDeniedError{Action: string(action), Reason: string(d.Reason)}
}

// Policy holds tunables of the rule set.
type Policy struct {
	AdminWeightThreshold int
}

// Authorize evaluates action for actor against target at now.
func Authorize(actor *models.User, action Action, target Target, now time.Time, p Policy) Decision {
	if actor == nil {
		return deny(ReasonUnauthenticated)
	}

	if action == ActionReadOwnStatus {
		if target.User != nil && target.User.ID != actor.ID {
			return deny(ReasonNotSelf)
		}
		return allow()
	}

	switch actor.EffectiveStatus(now) {
	case models.UserBanned:
		return deny(ReasonActorBanned)
	case models.UserTimeout:
		return deny(ReasonActorTimedOut)
	}

	switch action {
	case ActionBan, ActionTimeout, ActionReinstate:
		return outranks(actor, target.User)

	case ActionSetRole:
		if d := outranks(actor, target.User); !d.Allowed {
			return d
		}
		if target.NewRole.Weight() >= actor.RoleWeight {
			return deny(ReasonInsufficientWeight)
		}
		return allow()

	case ActionAssignTask:
		if target.Task == nil {
			return deny(ReasonMissingTarget)
		}
		if actor.RoleWeight <= p.AdminWeightThreshold {
			return deny(ReasonBelowAdminThreshold)
		}
		if actor.RoleWeight < target.Task.TargetRoleWeight {
			return deny(ReasonInsufficientWeight)
		}
		return allow()

	case ActionViewTask, ActionUpdateTask:
		if target.Task == nil {
			return deny(ReasonMissingTarget)
		}
		if actor.RoleWeight < target.Task.TargetRoleWeight {
			return deny(ReasonBelowTaskWeight)
		}
		return allow()

	case ActionWhitelistAdd, ActionWhitelistRemove, ActionWhitelistView:
		return aboveThreshold(actor, p)

	case ActionCreateGroup:
		return allow()

	case ActionOpenDM:
		if target.User == nil {
			return deny(ReasonMissingTarget)
		}
		if target.User.ID == actor.ID {
			return deny(ReasonSelfAction)
		}
		return allow()

	case ActionRotateKey:
		if target.Chat == nil {
			return deny(ReasonMissingTarget)
		}
		if target.ActorMembership.IsModerator() {
			return allow()
		}
		if aboveThreshold(actor, p).Allowed {
			return allow()
		}
		if target.Chat.Type == models.ChatDM && target.ActorMembership != nil {
			return allow()
		}
		if target.ActorMembership == nil {
			return deny(ReasonNotParticipant)
		}
		return deny(ReasonNotGroupModerator)

	case ActionAddParticipant:
		return groupModerator(target)

	case ActionKick:
		if d := groupModerator(target); !d.Allowed {
			return d
		}
		if target.TargetMembership == nil {
			return deny(ReasonNotParticipant)
		}
		if target.TargetMembership.UserID == actor.ID {
			return deny(ReasonSelfAction)
		}
		if target.TargetMembership.IsModerator() && target.ActorMembership.GroupRole != models.GroupOwner {
			return deny(ReasonNotOwner)
		}
		return outranks(actor, target.User)

	case ActionPromote, ActionDemote:
		if d := groupChat(target); !d.Allowed {
			return d
		}
		if target.ActorMembership == nil {
			return deny(ReasonNotParticipant)
		}
		if target.ActorMembership.GroupRole != models.GroupOwner {
			return deny(ReasonNotOwner)
		}
		if target.TargetMembership == nil {
			return deny(ReasonNotParticipant)
		}
		if target.TargetMembership.UserID == actor.ID {
			return deny(ReasonSelfAction)
		}
		return outranks(actor, target.User)

	case ActionLeave, ActionSendMessage, ActionReadChat:
		if target.Chat == nil {
			return deny(ReasonMissingTarget)
		}
		if target.ActorMembership == nil {
			return deny(ReasonNotParticipant)
		}
		return allow()

	case ActionFetchKey:
		if target.Chat == nil {
			return deny(ReasonMissingTarget)
		}
		if target.ActorMembership == nil || target.Epoch < target.ActorMembership.EffectiveFirstEpoch() {
			return deny(ReasonNotParticipant)
		}
		return allow()

	case ActionAckMessage:
		if target.Message == nil || target.Chat == nil {
			return deny(ReasonMissingTarget)
		}
		if target.ActorMembership == nil || target.Message.KeyEpoch < target.ActorMembership.EffectiveFirstEpoch() {
			return deny(ReasonNotParticipant)
		}
		return allow()

	case ActionDeleteMessage:
		if target.Message == nil || target.Chat == nil {
			return deny(ReasonMissingTarget)
		}
		if target.ActorMembership == nil {
			return deny(ReasonNotParticipant)
		}
		if target.Message.SenderID == actor.ID || target.ActorMembership.IsModerator() {
			return allow()
		}
		return deny(ReasonNotGroupModerator)

	case ActionUploadMedia:
		if target.Chat == nil {
			return allow()
		}
		if target.ActorMembership == nil {
			return deny(ReasonNotParticipant)
		}
		return allow()
	}

	return deny(ReasonUnknownAction)
}

func outranks(actor, target *models.User) Decision {
	if target == nil {
		return deny(ReasonMissingTarget)
	}
	if target.ID == actor.ID {
		return deny(ReasonSelfAction)
	}
	if actor.RoleWeight <= target.RoleWeight {
		return deny(ReasonInsufficientWeight)
	}
	return allow()
}

func aboveThreshold(actor *models.User, p Policy) Decision {
	if actor.RoleWeight <= p.AdminWeightThreshold {
		return deny(ReasonBelowAdminThreshold)
	}
	return allow()
}

func groupChat(target Target) Decision {
	if target.Chat == nil {
		return deny(ReasonMissingTarget)
	}
	if target.Chat.Type != models.ChatGroup {
		return deny(ReasonDMChat)
	}
	return allow()
}

func groupModerator(target Target) Decision {
	if d := groupChat(target); !d.Allowed {
		return d
	}
	if target.ActorMembership == nil {
		return deny(ReasonNotParticipant)
	}
	if !target.ActorMembership.IsModerator() {
		return deny(ReasonNotGroupModerator)
	}
	return allow()
}

// Engine binds Authorize to a clock and a policy.
type Engine struct {
	clock  clockwork.Clock
	policy Policy
}

func NewEngine(clock clockwork.Clock, policy Policy) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{clock: clock, policy: policy}
}

func (e *Engine) Authorize(actor *models.User, action Action, target Target) Decision {
	return Authorize(actor, action, target, e.clock.Now(), e.policy)
}

// Check returns nil when allowed and a typed denial otherwise.
func (e *Engine) Check(actor *models.User, action Action, target Target) error {
	return e.Authorize(actor, action, target).Err(action)
}

func (e *Engine) Now() time.Time { return e.clock.Now() }

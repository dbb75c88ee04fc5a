// Package authz is the single source of permission decisions for group,
// role, membership and message operations.
//
// Evaluate is pure: callers resolve the actor's membership and roles and
// pass them in. Rules, in priority order:
//
//   - the group owner is allowed every action;
//   - an actor without a membership is denied with ReasonNotMember;
//   - role-gated actions are allowed when any held role carries the flag.
package authz

import (
	"github.com/mahaj/groupchat/pkg/apperr"
	"github.com/mahaj/groupchat/pkg/model"
)

type Action int

const (
	// ActionView covers reading group details, members and history.
	ActionView Action = iota
	ActionSendMessage
	// ActionModifyMessage covers editing and deleting a message.
	ActionModifyMessage
	ActionReact
	ActionManageRoles
	ActionInviteMember
	ActionRemoveMember
	ActionDeleteGroup
	// ActionBypassSlowMode exempts moderators from the slow-mode limiter.
	ActionBypassSlowMode
)

func (a Action) String() string {
	switch a {
	case ActionView:
		return "view group"
	case ActionSendMessage:
		return "send messages"
	case ActionModifyMessage:
		return "modify this message"
	case ActionReact:
		return "react"
	case ActionManageRoles:
		return "manage roles"
	case ActionInviteMember:
		return "invite members"
	case ActionRemoveMember:
		return "remove members"
	case ActionDeleteGroup:
		return "delete the group"
	case ActionBypassSlowMode:
		return "bypass slow mode"
	default:
		return "unknown action"
	}
}

type Reason int

const (
	ReasonNone Reason = iota
	ReasonNotMember
	ReasonMissingPermission
	ReasonOwnerOnly
)

func (r Reason) String() string {
	switch r {
	case ReasonNotMember:
		return "not a member"
	case ReasonMissingPermission:
		return "missing permission"
	case ReasonOwnerOnly:
		return "owner only"
	default:
		return "none"
	}
}

// Decision is the outcome of an evaluation.
type Decision struct {
	Allowed bool
	Reason  Reason
	// Owner is set when the decision was granted by group ownership.
	Owner bool
}

// Subject is an actor as seen from one group.
type Subject struct {
	UserID string
	// Membership is nil when the actor is not a member.
	Membership *model.Membership
	// Roles are the resolved roles named by Membership.Roles.
	Roles []model.Role
}

// Request describes one authorization question.
type Request struct {
	Action Action
	Actor  Subject
	Group  *model.Group
	// Author is the sender of the message targeted by ActionModifyMessage.
	Author string
}

func allow() Decision { return Decision{Allowed: true} }
func deny(r Reason) Decision { return Decision{Reason: r} }
func allowIf(ok bool) Decision {
	if ok {
		return allow()
	}
	return deny(ReasonMissingPermission)
}

// Evaluate decides whether req.Actor may perform req.Action in req.Group.
func Evaluate(req Request) Decision {
	if req.Group.IsOwner(req.Actor.UserID) {
		return Decision{Allowed: true, Owner: true}
	}
	if req.Actor.Membership == nil || req.Actor.Membership.GroupID != req.Group.ID {
		return deny(ReasonNotMember)
	}

	switch req.Action {
	case ActionView, ActionReact:
		return allow()
	case ActionSendMessage:
		return allowIf(canSend(req))
	case ActionModifyMessage:
		own := req.Author != "" && req.Author == req.Actor.UserID
		return allowIf((own && canSend(req)) || req.Actor.holds(model.PermManageMessages))
	case ActionManageRoles:
		return allowIf(req.Actor.holds(model.PermManageRoles))
	case ActionInviteMember, ActionRemoveMember:
		return allowIf(req.Actor.holds(model.PermKickMembers))
	case ActionBypassSlowMode:
		return allowIf(req.Actor.holds(model.PermManageMessages))
	case ActionDeleteGroup:
		return deny(ReasonOwnerOnly)
	}
	return deny(ReasonMissingPermission)
}

func canSend(req Request) bool {
	return req.Group.Settings.MessagePermissions == model.MessagesAll ||
		req.Actor.holds(model.PermSendMessages)
}

// holds reports whether any role held by the membership carries perm.
// Roles not named by the membership are ignored.
func (s Subject) holds(perm model.Permission) bool {
	if s.Membership == nil {
		return false
	}
	for _, r := range s.Roles {
		if r.Permissions.Has(perm) && s.Membership.HasRole(r.ID) {
			return true
		}
	}
	return false
}

// Check evaluates req and converts a denial into a classified error.
func Check(req Request) error {
	d := Evaluate(req)
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case ReasonNotMember:
		return apperr.New(apperr.NotAMember, "you are not a member of this group")
	case ReasonOwnerOnly:
		return apperr.Forbiddenf("only the group owner may %s", req.Action)
	default:
		return apperr.Forbiddenf("you do not have permission to %s", req.Action)
	}
}

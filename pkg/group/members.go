package group

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mahaj/groupchat/pkg/apperr"
	"github.com/mahaj/groupchat/pkg/authz"
	"github.com/mahaj/groupchat/pkg/model"
	"github.com/mahaj/groupchat/pkg/store"
)

type InviteStatus string

const (
	// InviteAdded means the member was added right away (open groups).
	InviteAdded InviteStatus = "added"
	// InviteSent means a group_invite notification awaits the invitee.
	InviteSent InviteStatus = "invited"
)

type InviteInput struct {
	UserID string `json:"userId"`
	// RoleID defaults to the group's default role.
	RoleID string `json:"roleId"`
}

type InviteResult struct {
	Status       InviteStatus        `json:"status"`
	Membership   *model.Membership   `json:"membership,omitempty"`
	Notification *model.Notification `json:"notification,omitempty"`
}

func (s *Service) newMembership(groupID, userID, roleID string) *model.Membership {
	return &model.Membership{
		ID:       uuid.NewString(),
		GroupID:  groupID,
		UserID:   userID,
		Roles:    []string{roleID},
		JoinedAt: s.now(),
		Settings: model.MemberSettings{Notifications: model.NotifyAll},
	}
}

// role resolves roleID within the group, reporting a role of another group
// or a missing one as an invalid reference.
func (s *Service) role(ctx context.Context, groupID, roleID string) (*model.Role, error) {
	r, err := s.groups.GetRole(ctx, groupID, roleID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.InvalidRef("role %s does not belong to this group", roleID)
	}
	if err != nil {
		return nil, store.Classify(err, "role")
	}
	return r, nil
}

// Invite adds in.UserID to an open group or sends a group_invite
// notification for an invite-only group.
func (s *Service) Invite(ctx context.Context, userID, groupID string, in InviteInput) (*InviteResult, error) {
	if in.UserID == "" {
		return nil, apperr.Invalid("userId is required")
	}
	g, _, err := s.dir.AuthorizeGroup(ctx, authz.ActionInviteMember, groupID, userID)
	if err != nil {
		return nil, err
	}
	if g.Settings.JoinMode == model.JoinApproval {
		return nil, apperr.New(apperr.NotImplemented, "approval join mode is not implemented")
	}

	roleID := in.RoleID
	if roleID == "" {
		roleID = g.Settings.DefaultRole
	}
	r, err := s.role(ctx, groupID, roleID)
	if err != nil {
		return nil, err
	}
	existing, err := s.dir.Membership(ctx, groupID, in.UserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Conflictf("user is already a member of this group")
	}

	switch g.Settings.JoinMode {
	case model.JoinOpen:
		m := s.newMembership(groupID, in.UserID, r.ID)
		if err := s.members.InsertMembership(ctx, m); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return nil, apperr.Conflictf("user is already a member of this group")
			}
			return nil, store.Classify(err, "membership")
		}
		s.log.Info("member added", "group", groupID, "user", in.UserID, "role", r.ID, "by", userID)
		return &InviteResult{Status: InviteAdded, Membership: m}, nil

	case model.JoinInvite:
		n, err := s.notes.CreateUnique(ctx, in.UserID, model.NotificationGroupInvite, model.NotificationPayload{
			RequesterID: userID,
			GroupID:     groupID,
			RoleID:      r.ID,
			Content:     fmt.Sprintf("You have been invited to %s as %s", g.Name, r.Name),
		}, inviteKey(groupID, in.UserID))
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.Conflictf("user already has a pending invite to this group")
		}
		if err != nil {
			return nil, err
		}
		s.log.Info("invite sent", "group", groupID, "user", in.UserID, "role", r.ID, "by", userID)
		return &InviteResult{Status: InviteSent, Notification: n}, nil
	}
	return nil, apperr.Invalid("unknown join mode %q", g.Settings.JoinMode)
}

// inviteKey is held by a pending invite until it is accepted, so a group
// has at most one open invite per user.
func inviteKey(groupID, userID string) string {
	return "invite:" + groupID + ":" + userID
}

// Join accepts a pending invite to an invite-only group. inviteID selects a
// specific invite; when empty the newest unconsumed one is used.
func (s *Service) Join(ctx context.Context, userID, groupID, inviteID string) (*model.Membership, error) {
	g, err := s.dir.Group(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g.Settings.JoinMode != model.JoinInvite {
		return nil, apperr.Invalid("this group can only be joined by invitation")
	}
	existing, err := s.dir.Membership(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Conflictf("you are already a member of this group")
	}

	invite, err := s.invites.FindInvite(ctx, userID, groupID, inviteID)
	if errors.Is(err, store.ErrNotFound) {
		// A concurrent join may have consumed the invite since the check above.
		if m, err := s.dir.Membership(ctx, groupID, userID); err == nil && m != nil {
			return nil, apperr.Conflictf("you are already a member of this group")
		}
		return nil, apperr.NotFoundf("invite not found")
	}
	if err != nil {
		return nil, store.Classify(err, "notification")
	}
	r, err := s.role(ctx, groupID, invite.Payload.RoleID)
	if err != nil {
		return nil, err
	}

	m := s.newMembership(groupID, userID, r.ID)
	switch err := s.members.AcceptInvite(ctx, m, invite.ID); {
	case errors.Is(err, store.ErrDuplicate):
		return nil, apperr.Conflictf("you are already a member of this group")
	case errors.Is(err, store.ErrNotFound):
		return nil, apperr.NotFoundf("invite not found")
	case err != nil:
		return nil, store.Classify(err, "membership")
	}
	s.log.Info("invite accepted", "group", groupID, "user", userID, "role", r.ID)
	return m, nil
}

// RemoveMember deletes target's membership. The owner cannot be removed.
func (s *Service) RemoveMember(ctx context.Context, userID, groupID, target string) error {
	g, _, err := s.dir.AuthorizeGroup(ctx, authz.ActionRemoveMember, groupID, userID)
	if err != nil {
		return err
	}
	if g.IsOwner(target) {
		return apperr.Forbiddenf("the group owner cannot be removed")
	}
	if err := s.members.DeleteMembership(ctx, groupID, target); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFoundf("user is not a member of this group")
		}
		return store.Classify(err, "membership")
	}
	s.log.Info("member removed", "group", groupID, "user", target, "by", userID)
	return nil
}

// Members lists the group's memberships to one of its members.
func (s *Service) Members(ctx context.Context, userID, groupID string) ([]model.Membership, error) {
	if _, _, err := s.dir.AuthorizeGroup(ctx, authz.ActionView, groupID, userID); err != nil {
		return nil, err
	}
	return s.dir.Members(ctx, groupID)
}

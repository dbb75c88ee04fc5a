// Package directory resolves who belongs to a group and with which roles,
// and answers authorization questions through authz.
package directory

import (
	"context"
	"errors"

	"github.com/mahaj/groupchat/pkg/apperr"
	"github.com/mahaj/groupchat/pkg/authz"
	"github.com/mahaj/groupchat/pkg/model"
	"github.com/mahaj/groupchat/pkg/store"
)

type Directory struct {
	groups  store.Groups
	members store.Memberships
}

func New(groups store.Groups, members store.Memberships) *Directory {
	return &Directory{groups: groups, members: members}
}

// Group loads a group, classifying a miss as NotFound.
func (d *Directory) Group(ctx context.Context, groupID string) (*model.Group, error) {
	g, err := d.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, store.Classify(err, "group")
	}
	return g, nil
}

// Membership returns the user's membership, or nil when there is none.
func (d *Directory) Membership(ctx context.Context, groupID, userID string) (*model.Membership, error) {
	m, err := d.members.GetMembership(ctx, groupID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Classify(err, "membership")
	}
	return m, nil
}

// Subject resolves userID's membership and roles in group.
func (d *Directory) Subject(ctx context.Context, group *model.Group, userID string) (authz.Subject, error) {
	s := authz.Subject{UserID: userID}
	m, err := d.Membership(ctx, group.ID, userID)
	if err != nil || m == nil {
		return s, err
	}
	s.Membership = m
	if len(m.Roles) == 0 {
		return s, nil
	}
	roles, err := d.groups.ListRoles(ctx, group.ID)
	if err != nil {
		return s, store.Classify(err, "role")
	}
	for _, r := range roles {
		if m.HasRole(r.ID) {
			s.Roles = append(s.Roles, r)
		}
	}
	return s, nil
}

// Authorize checks action for userID in an already loaded group. author is
// the sender of the targeted message for authz.ActionModifyMessage.
func (d *Directory) Authorize(ctx context.Context, action authz.Action, group *model.Group, userID, author string) (authz.Subject, error) {
	s, err := d.Subject(ctx, group, userID)
	if err != nil {
		return s, err
	}
	return s, authz.Check(authz.Request{Action: action, Actor: s, Group: group, Author: author})
}

// AuthorizeGroup loads the group and checks action for userID.
func (d *Directory) AuthorizeGroup(ctx context.Context, action authz.Action, groupID, userID string) (*model.Group, authz.Subject, error) {
	g, err := d.Group(ctx, groupID)
	if err != nil {
		return nil, authz.Subject{}, err
	}
	s, err := d.Authorize(ctx, action, g, userID, "")
	if err != nil {
		return nil, s, err
	}
	return g, s, nil
}

// Can reports whether userID may perform action without turning a denial
// into an error.
func (d *Directory) Can(ctx context.Context, action authz.Action, group *model.Group, userID string) (bool, error) {
	s, err := d.Subject(ctx, group, userID)
	if err != nil {
		return false, err
	}
	return authz.Evaluate(authz.Request{Action: action, Actor: s, Group: group}).Allowed, nil
}

// IsMember reports whether userID holds a membership in groupID.
func (d *Directory) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	m, err := d.Membership(ctx, groupID, userID)
	return m != nil, err
}

// RequireMembers fails with InvalidReference naming the first user that is
// not a member of the group.
func (d *Directory) RequireMembers(ctx context.Context, groupID string, userIDs []string) error {
	for _, id := range userIDs {
		ok, err := d.IsMember(ctx, groupID, id)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.InvalidRef("mentioned user %s is not a member of this group", id)
		}
	}
	return nil
}

// Members lists the group's memberships.
func (d *Directory) Members(ctx context.Context, groupID string) ([]model.Membership, error) {
	ms, err := d.members.ListMembers(ctx, groupID)
	if err != nil {
		return nil, store.Classify(err, "membership")
	}
	return ms, nil
}

// GroupIDs lists the groups userID belongs to; realtime sessions subscribe
// to one room per entry.
func (d *Directory) GroupIDs(ctx context.Context, userID string) ([]string, error) {
	ms, err := d.members.ListMembershipsForUser(ctx, userID)
	if err != nil {
		return nil, store.Classify(err, "membership")
	}
	ids := make([]string, 0, len(ms))
	for _, m := range ms {
		ids = append(ids, m.GroupID)
	}
	return ids, nil
}

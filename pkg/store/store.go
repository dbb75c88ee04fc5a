// Package store declares the persistence boundary of the group chat core.
//
// Implementations validate documents on the way in and out and report
// missing rows with ErrNotFound and unique-key violations with ErrDuplicate.
package store

import (
	"context"
	"errors"

	"github.com/mahaj/groupchat/pkg/apperr"
	"github.com/mahaj/groupchat/pkg/model"
)

var (
	ErrNotFound  = errors.New("store: not found")
	ErrDuplicate = errors.New("store: duplicate key")
)

// Classify maps store sentinels and document validation failures onto
// apperr kinds. what names the entity in the resulting message.
// Already classified errors pass through unchanged.
func Classify(err error, what string) error {
	var ae *apperr.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ae):
		return err
	case errors.Is(err, ErrNotFound):
		return apperr.NotFoundf("%s not found", what)
	case errors.Is(err, ErrDuplicate):
		return apperr.Wrap(apperr.Conflict, err, "%s already exists", what)
	case errors.Is(err, model.ErrInvalidDocument):
		return apperr.Wrap(apperr.InvalidInput, err, "%s", err.Error())
	}
	return apperr.Wrap(apperr.Internal, err, "%s storage failure", what)
}

// Page is an offset window over an ordered result.
type Page struct {
	Offset int
	Limit  int
}

// GroupSeed is everything created together with a new group.
type GroupSeed struct {
	Group      model.Group
	Roles      []model.Role
	Owner      model.Membership
	KeyStorage model.KeyStorage
}

type Groups interface {
	// CreateGroup persists the seed as one unit: either every record is
	// visible afterwards or none is.
	CreateGroup(ctx context.Context, seed GroupSeed) error
	GetGroup(ctx context.Context, groupID string) (*model.Group, error)
	ListGroupsForUser(ctx context.Context, userID string) ([]model.Group, error)
	// DeleteGroup removes notifications referencing the group, memberships,
	// roles, key storage and finally the group itself.
	DeleteGroup(ctx context.Context, groupID string) error

	CreateRole(ctx context.Context, r *model.Role) error
	GetRole(ctx context.Context, groupID, roleID string) (*model.Role, error)
	ListRoles(ctx context.Context, groupID string) ([]model.Role, error)
	UpdateRole(ctx context.Context, r *model.Role) error
	// DeleteRole removes the role and pulls it out of every membership.
	DeleteRole(ctx context.Context, groupID, roleID string) error

	GetKeyStorage(ctx context.Context, groupID string) (*model.KeyStorage, error)
}

type Memberships interface {
	GetMembership(ctx context.Context, groupID, userID string) (*model.Membership, error)
	// InsertMembership fails with ErrDuplicate when (group, user) exists.
	InsertMembership(ctx context.Context, m *model.Membership) error
	// AcceptInvite inserts the membership, consumes the invite and adds
	// the member's key slot as one unit.
	AcceptInvite(ctx context.Context, m *model.Membership, inviteID string) error
	DeleteMembership(ctx context.Context, groupID, userID string) error
	ListMembers(ctx context.Context, groupID string) ([]model.Membership, error)
	ListMembershipsForUser(ctx context.Context, userID string) ([]model.Membership, error)
}

type Messages interface {
	InsertMessage(ctx context.Context, m *model.Message) error
	GetMessage(ctx context.Context, messageID string) (*model.Message, error)
	UpdateMessage(ctx context.Context, m *model.Message) error
	// DeleteMessage removes the message's reactions, then the message.
	DeleteMessage(ctx context.Context, messageID string) error
	// ListMessages returns a group's messages newest first and the total count.
	ListMessages(ctx context.Context, groupID string, page Page) ([]model.Message, int64, error)
	DeleteGroupMessages(ctx context.Context, groupID string) error

	// InsertReaction fails with ErrDuplicate when (message, user) exists.
	InsertReaction(ctx context.Context, r *model.Reaction) error
	ListReactions(ctx context.Context, messageID string) ([]model.Reaction, error)
}

// NotificationFilter narrows a notification listing.
type NotificationFilter struct {
	Read *bool
	Page Page
}

type Notifications interface {
	// InsertNotification fails with ErrDuplicate when DedupeKey was seen.
	InsertNotification(ctx context.Context, n *model.Notification) error
	GetNotification(ctx context.Context, userID, notificationID string) (*model.Notification, error)
	// FindInvite returns an unconsumed group invite for the user; inviteID
	// narrows the lookup when non-empty.
	FindInvite(ctx context.Context, userID, groupID, inviteID string) (*model.Notification, error)
	ListNotifications(ctx context.Context, userID string, f NotificationFilter) ([]model.Notification, int64, error)
	SetRead(ctx context.Context, userID, notificationID string, read bool) (*model.Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
}

type Preferences interface {
	// GetPreferences returns the stored preferences or the defaults.
	GetPreferences(ctx context.Context, userID string) (*model.UserPrefs, error)
	SavePreferences(ctx context.Context, p *model.UserPrefs) error
}

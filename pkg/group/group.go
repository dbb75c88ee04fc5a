// Package group owns the lifecycle of groups, their roles and their
// memberships. Every operation is authorized through the directory before
// anything is written.
package group

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mahaj/groupchat/pkg/apperr"
	"github.com/mahaj/groupchat/pkg/authz"
	"github.com/mahaj/groupchat/pkg/directory"
	"github.com/mahaj/groupchat/pkg/model"
	"github.com/mahaj/groupchat/pkg/store"
)

const (
	adminRoleName   = "Administrator"
	adminRoleColor  = "#FF0000"
	memberRoleName  = "Member"
	memberRoleColor = "#000000"
)

// Notifier creates the invite notification of the invite join mode. A
// dedupe key already held by a pending notification fails with an error
// wrapping store.ErrDuplicate.
type Notifier interface {
	CreateUnique(ctx context.Context, userID string, typ model.NotificationType, payload model.NotificationPayload, dedupeKey string) (*model.Notification, error)
}

// Stores are the persistence ports the service writes through.
type Stores struct {
	Groups        store.Groups
	Memberships   store.Memberships
	Messages      store.Messages
	Notifications store.Notifications
}

type Service struct {
	groups   store.Groups
	members  store.Memberships
	messages store.Messages
	invites  store.Notifications
	dir      *directory.Directory
	notes    Notifier
	log      *slog.Logger
	now      func() time.Time
}

func NewService(st Stores, dir *directory.Directory, notes Notifier, log *slog.Logger) *Service {
	return &Service{
		groups:   st.Groups,
		members:  st.Memberships,
		messages: st.Messages,
		invites:  st.Notifications,
		dir:      dir,
		notes:    notes,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateInput describes a new group. Empty optional fields take the
// defaults: open join mode, everyone may post, no slow mode.
type CreateInput struct {
	Name               string                   `json:"name"`
	Description        string                   `json:"description"`
	Type               model.GroupType          `json:"type"`
	Avatar             string                   `json:"avatar"`
	JoinMode           model.JoinMode           `json:"joinMode"`
	MessagePermissions model.MessagePermissions `json:"messagePermissions"`
	SlowMode           int                      `json:"slowMode"`
}

func (in *CreateInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.JoinMode == "" {
		in.JoinMode = model.JoinOpen
	}
	if in.MessagePermissions == "" {
		in.MessagePermissions = model.MessagesAll
	}
	switch {
	case in.Name == "":
		return apperr.Invalid("name is required")
	case !in.Type.Valid():
		return apperr.Invalid("type must be one of private, public, channel")
	case !in.JoinMode.Valid():
		return apperr.Invalid("joinMode must be one of open, approval, invite")
	case !in.MessagePermissions.Valid():
		return apperr.Invalid("messagePermissions must be one of all, moderators")
	case in.SlowMode < 0:
		return apperr.Invalid("slowMode must not be negative")
	}
	return nil
}

// Create makes a group owned by creator together with its administrator
// and default roles, the owner membership and an empty key storage.
func (s *Service) Create(ctx context.Context, creator string, in CreateInput) (*model.Group, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	now := s.now()
	groupID := uuid.NewString()

	admin := model.Role{
		ID:          uuid.NewString(),
		GroupID:     groupID,
		Name:        adminRoleName,
		Color:       adminRoleColor,
		Permissions: model.AdministratorPermissions(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	def := model.Role{
		ID:          uuid.NewString(),
		GroupID:     groupID,
		Name:        memberRoleName,
		Color:       memberRoleColor,
		Permissions: model.DefaultPermissions(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	seed := store.GroupSeed{
		Group: model.Group{
			ID:          groupID,
			Name:        in.Name,
			Description: in.Description,
			Type:        in.Type,
			Avatar:      in.Avatar,
			OwnerID:     creator,
			Settings: model.GroupSettings{
				JoinMode:           in.JoinMode,
				MessagePermissions: in.MessagePermissions,
				SlowMode:           in.SlowMode,
				DefaultRole:        def.ID,
			},
			CreatedAt: now,
		},
		Roles: []model.Role{admin, def},
		Owner: model.Membership{
			ID:       uuid.NewString(),
			GroupID:  groupID,
			UserID:   creator,
			Roles:    []string{admin.ID},
			JoinedAt: now,
			Settings: model.MemberSettings{Notifications: model.NotifyAll},
		},
		KeyStorage: model.KeyStorage{
			ID:        uuid.NewString(),
			GroupID:   groupID,
			Slots:     map[string]string{},
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	if err := s.groups.CreateGroup(ctx, seed); err != nil {
		return nil, store.Classify(err, "group")
	}
	s.log.Info("group created", "group", groupID, "owner", creator, "join_mode", in.JoinMode)
	return &seed.Group, nil
}

// Get returns the group to one of its members.
func (s *Service) Get(ctx context.Context, userID, groupID string) (*model.Group, error) {
	g, _, err := s.dir.AuthorizeGroup(ctx, authz.ActionView, groupID, userID)
	return g, err
}

// ListForUser returns the groups userID belongs to.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]model.Group, error) {
	groups, err := s.groups.ListGroupsForUser(ctx, userID)
	if err != nil {
		return nil, store.Classify(err, "group")
	}
	if groups == nil {
		groups = []model.Group{}
	}
	return groups, nil
}

// Delete removes the group and everything hanging off it. Only the owner
// may delete a group.
func (s *Service) Delete(ctx context.Context, userID, groupID string) error {
	if _, _, err := s.dir.AuthorizeGroup(ctx, authz.ActionDeleteGroup, groupID, userID); err != nil {
		return err
	}
	if err := s.messages.DeleteGroupMessages(ctx, groupID); err != nil {
		return store.Classify(err, "message")
	}
	if err := s.groups.DeleteGroup(ctx, groupID); err != nil {
		s.log.Error("group cascade interrupted after messages were removed", "group", groupID, "error", err)
		return store.Classify(err, "group")
	}
	s.log.Info("group deleted", "group", groupID, "by", userID)
	return nil
}

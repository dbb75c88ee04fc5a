package group

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/mahaj/groupchat/pkg/apperr"
	"github.com/mahaj/groupchat/pkg/authz"
	"github.com/mahaj/groupchat/pkg/model"
	"github.com/mahaj/groupchat/pkg/store"
)

type RoleInput struct {
	Name        string            `json:"name"`
	Color       string            `json:"color"`
	Permissions model.Permissions `json:"permissions"`
}

// RolePatch changes only the fields that are set.
type RolePatch struct {
	Name        *string                `json:"name,omitempty"`
	Color       *string                `json:"color,omitempty"`
	Permissions *model.PermissionPatch `json:"permissions,omitempty"`
}

func (s *Service) Roles(ctx context.Context, userID, groupID string) ([]model.Role, error) {
	if _, _, err := s.dir.AuthorizeGroup(ctx, authz.ActionView, groupID, userID); err != nil {
		return nil, err
	}
	roles, err := s.groups.ListRoles(ctx, groupID)
	if err != nil {
		return nil, store.Classify(err, "role")
	}
	return roles, nil
}

func (s *Service) CreateRole(ctx context.Context, userID, groupID string, in RoleInput) (*model.Role, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Invalid("name is required")
	}
	color := in.Color
	if color == "" {
		color = memberRoleColor
	}
	if !model.ValidColor(color) {
		return nil, apperr.Invalid("color must be a hex color")
	}
	if _, _, err := s.dir.AuthorizeGroup(ctx, authz.ActionManageRoles, groupID, userID); err != nil {
		return nil, err
	}

	now := s.now()
	r := &model.Role{
		ID:          uuid.NewString(),
		GroupID:     groupID,
		Name:        name,
		Color:       color,
		Permissions: in.Permissions,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.groups.CreateRole(ctx, r); err != nil {
		return nil, store.Classify(err, "role")
	}
	return r, nil
}

func (s *Service) UpdateRole(ctx context.Context, userID, groupID, roleID string, patch RolePatch) (*model.Role, error) {
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, apperr.Invalid("name must not be empty")
	}
	if patch.Color != nil && !model.ValidColor(*patch.Color) {
		return nil, apperr.Invalid("color must be a hex color")
	}
	if _, _, err := s.dir.AuthorizeGroup(ctx, authz.ActionManageRoles, groupID, userID); err != nil {
		return nil, err
	}
	r, err := s.groups.GetRole(ctx, groupID, roleID)
	if err != nil {
		return nil, store.Classify(err, "role")
	}

	if patch.Name != nil {
		r.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Color != nil {
		r.Color = *patch.Color
	}
	if patch.Permissions != nil {
		r.Permissions = r.Permissions.Apply(*patch.Permissions)
	}
	r.UpdatedAt = s.now()
	if err := s.groups.UpdateRole(ctx, r); err != nil {
		return nil, store.Classify(err, "role")
	}
	return r, nil
}

// DeleteRole removes a role from the group and from every membership. The
// group's default role cannot be deleted.
func (s *Service) DeleteRole(ctx context.Context, userID, groupID, roleID string) error {
	g, _, err := s.dir.AuthorizeGroup(ctx, authz.ActionManageRoles, groupID, userID)
	if err != nil {
		return err
	}
	if _, err := s.groups.GetRole(ctx, groupID, roleID); err != nil {
		return store.Classify(err, "role")
	}
	if roleID == g.Settings.DefaultRole {
		return apperr.Forbiddenf("the default role cannot be deleted")
	}
	if err := s.groups.DeleteRole(ctx, groupID, roleID); err != nil {
		return store.Classify(err, "role")
	}
	s.log.Info("role deleted", "group", groupID, "role", roleID, "by", userID)
	return nil
}

package sqlstore

import (
	"context"

	"gorm.io/gorm"

	"github.com/mahaj/groupchat/pkg/model"
	"github.com/mahaj/groupchat/pkg/store"
)

func (s *Store) CreateGroup(ctx context.Context, seed store.GroupSeed) error {
	if err := seed.Group.Validate(); err != nil {
		return err
	}
	for i := range seed.Roles {
		if err := seed.Roles[i].Validate(); err != nil {
			return err
		}
	}
	if err := seed.Owner.Validate(); err != nil {
		return err
	}
	if err := seed.KeyStorage.Validate(); err != nil {
		return err
	}

	return translate(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&seed.Group).Error; err != nil {
			return err
		}
		if len(seed.Roles) > 0 {
			if err := tx.Create(&seed.Roles).Error; err != nil {
				return err
			}
		}
		if err := tx.Create(&seed.Owner).Error; err != nil {
			return err
		}
		return tx.Create(&seed.KeyStorage).Error
	}))
}

func (s *Store) GetGroup(ctx context.Context, groupID string) (*model.Group, error) {
	var g model.Group
	if err := s.db.WithContext(ctx).Where("id = ?", groupID).First(&g).Error; err != nil {
		return nil, translate(err)
	}
	if err := check(&g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Store) ListGroupsForUser(ctx context.Context, userID string) ([]model.Group, error) {
	var groups []model.Group
	err := s.db.WithContext(ctx).
		Joins("JOIN memberships ON memberships.group_id = groups.id").
		Where("memberships.user_id = ?", userID).
		Order("groups.created_at").
		Find(&groups).Error
	if err != nil {
		return nil, translate(err)
	}
	return groups, checkAll(groups)
}

// DeleteGroup removes children before the parent inside one transaction.
func (s *Store) DeleteGroup(ctx context.Context, groupID string) error {
	return translate(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", groupID).First(&model.Group{}).Error; err != nil {
			return err
		}
		steps := []struct {
			model any
			where string
		}{
			{&model.Notification{}, "payload_group_id = ?"},
			{&model.Membership{}, "group_id = ?"},
			{&model.Role{}, "group_id = ?"},
			{&model.KeyStorage{}, "group_id = ?"},
			{&model.Group{}, "id = ?"},
		}
		for _, step := range steps {
			if err := tx.Where(step.where, groupID).Delete(step.model).Error; err != nil {
				return err
			}
		}
		return nil
	}))
}

func (s *Store) CreateRole(ctx context.Context, r *model.Role) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return translate(s.db.WithContext(ctx).Create(r).Error)
}

func (s *Store) GetRole(ctx context.Context, groupID, roleID string) (*model.Role, error) {
	var r model.Role
	if err := s.db.WithContext(ctx).Where("id = ? AND group_id = ?", roleID, groupID).First(&r).Error; err != nil {
		return nil, translate(err)
	}
	if err := check(&r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) ListRoles(ctx context.Context, groupID string) ([]model.Role, error) {
	var roles []model.Role
	if err := s.db.WithContext(ctx).Where("group_id = ?", groupID).Order("created_at").Find(&roles).Error; err != nil {
		return nil, translate(err)
	}
	return roles, checkAll(roles)
}

func (s *Store) UpdateRole(ctx context.Context, r *model.Role) error {
	if err := r.Validate(); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&model.Role{}).
		Where("id = ? AND group_id = ?", r.ID, r.GroupID).
		Select("name", "color", "perm_send_messages", "perm_manage_messages", "perm_manage_roles",
			"perm_manage_channels", "perm_kick_members", "perm_ban_members", "perm_mention_everyone",
			"perm_attach_files", "perm_voice_chat", "updated_at").
		Updates(r)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteRole pulls the role out of every membership before removing it, so
// no membership is left referencing a missing role.
func (s *Store) DeleteRole(ctx context.Context, groupID, roleID string) error {
	return translate(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND group_id = ?", roleID, groupID).First(&model.Role{}).Error; err != nil {
			return err
		}
		var members []model.Membership
		if err := tx.Where("group_id = ?", groupID).Find(&members).Error; err != nil {
			return err
		}
		for i := range members {
			if !members[i].RemoveRole(roleID) {
				continue
			}
			if err := tx.Model(&members[i]).Update("roles", members[i].Roles).Error; err != nil {
				return err
			}
		}
		return tx.Where("id = ?", roleID).Delete(&model.Role{}).Error
	}))
}

func (s *Store) GetKeyStorage(ctx context.Context, groupID string) (*model.KeyStorage, error) {
	var k model.KeyStorage
	if err := s.db.WithContext(ctx).Where("group_id = ?", groupID).First(&k).Error; err != nil {
		return nil, translate(err)
	}
	if err := check(&k); err != nil {
		return nil, err
	}
	return &k, nil
}

package sqlstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mahaj/groupchat/pkg/model"
	"github.com/mahaj/groupchat/pkg/store"
)

func (s *Store) GetMembership(ctx context.Context, groupID, userID string) (*model.Membership, error) {
	var m model.Membership
	if err := s.db.WithContext(ctx).Where("group_id = ? AND user_id = ?", groupID, userID).First(&m).Error; err != nil {
		return nil, translate(err)
	}
	if err := check(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// InsertMembership relies on the (group_id, user_id) unique index; a second
// insert for the same pair fails with store.ErrDuplicate.
func (s *Store) InsertMembership(ctx context.Context, m *model.Membership) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return translate(s.db.WithContext(ctx).Create(m).Error)
}

// AcceptInvite creates the membership, consumes the invite and opens a key
// slot for the new member in one transaction. Consuming releases the
// invite's dedupe key so the user can be invited again later.
func (s *Store) AcceptInvite(ctx context.Context, m *model.Membership, inviteID string) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return translate(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		res := tx.Model(&model.Notification{}).
			Where("id = ? AND user_id = ? AND type = ? AND payload_group_id = ? AND consumed_at IS NULL",
				inviteID, m.UserID, model.NotificationGroupInvite, m.GroupID).
			Updates(map[string]any{"read": true, "consumed_at": time.Now().UTC(), "dedupe_key": nil})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return store.ErrNotFound
		}

		var keys model.KeyStorage
		err := tx.Where("group_id = ?", m.GroupID).First(&keys).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if keys.Slots == nil {
			keys.Slots = map[string]string{}
		}
		keys.Slots[m.UserID] = ""
		return tx.Model(&keys).Select("slots", "updated_at").Updates(&keys).Error
	}))
}

func (s *Store) DeleteMembership(ctx context.Context, groupID, userID string) error {
	res := s.db.WithContext(ctx).Where("group_id = ? AND user_id = ?", groupID, userID).Delete(&model.Membership{})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListMembers(ctx context.Context, groupID string) ([]model.Membership, error) {
	var members []model.Membership
	if err := s.db.WithContext(ctx).Where("group_id = ?", groupID).Order("joined_at").Find(&members).Error; err != nil {
		return nil, translate(err)
	}
	return members, checkAll(members)
}

func (s *Store) ListMembershipsForUser(ctx context.Context, userID string) ([]model.Membership, error) {
	var members []model.Membership
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("joined_at").Find(&members).Error; err != nil {
		return nil, translate(err)
	}
	return members, checkAll(members)
}

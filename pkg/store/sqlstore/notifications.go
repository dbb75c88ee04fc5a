package sqlstore

import (
	"context"

	"gorm.io/gorm"

	"github.com/mahaj/groupchat/pkg/model"
	"github.com/mahaj/groupchat/pkg/store"
)

// InsertNotification fails with store.ErrDuplicate when a notification with
// the same dedupe key already exists.
func (s *Store) InsertNotification(ctx context.Context, n *model.Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}
	return translate(s.db.WithContext(ctx).Create(n).Error)
}

func (s *Store) GetNotification(ctx context.Context, userID, id string) (*model.Notification, error) {
	var n model.Notification
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&n).Error; err != nil {
		return nil, translate(err)
	}
	if err := check(&n); err != nil {
		return nil, err
	}
	return &n, nil
}

// FindInvite returns the newest unconsumed group invite for the user. A
// non-empty inviteID narrows the lookup to that notification.
func (s *Store) FindInvite(ctx context.Context, userID, groupID, inviteID string) (*model.Notification, error) {
	q := s.db.WithContext(ctx).
		Where("user_id = ? AND type = ? AND payload_group_id = ? AND consumed_at IS NULL",
			userID, model.NotificationGroupInvite, groupID)
	if inviteID != "" {
		q = q.Where("id = ?", inviteID)
	}
	var n model.Notification
	if err := q.Order("created_at desc").First(&n).Error; err != nil {
		return nil, translate(err)
	}
	if err := check(&n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string, f store.NotificationFilter) ([]model.Notification, int64, error) {
	base := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&model.Notification{}).Where("user_id = ?", userID)
		if f.Read != nil {
			q = q.Where("read = ?", *f.Read)
		}
		return q
	}
	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}
	var out []model.Notification
	if err := applyPage(base().Order("created_at desc"), f.Page).Find(&out).Error; err != nil {
		return nil, 0, translate(err)
	}
	return out, total, checkAll(out)
}

func (s *Store) SetRead(ctx context.Context, userID, id string, read bool) (*model.Notification, error) {
	res := s.db.WithContext(ctx).Model(&model.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("read", read)
	if res.Error != nil {
		return nil, translate(res.Error)
	}
	return s.GetNotification(ctx, userID, id)
}

func (s *Store) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&model.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true)
	return res.RowsAffected, translate(res.Error)
}

func (s *Store) CountUnread(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&n).Error
	return n, translate(err)
}

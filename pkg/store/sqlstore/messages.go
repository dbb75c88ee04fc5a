package sqlstore

import (
	"context"

	"gorm.io/gorm"

	"github.com/mahaj/groupchat/pkg/model"
	"github.com/mahaj/groupchat/pkg/store"
)

func (s *Store) InsertMessage(ctx context.Context, m *model.Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return translate(s.db.WithContext(ctx).Create(m).Error)
}

func (s *Store) GetMessage(ctx context.Context, messageID string) (*model.Message, error) {
	var m model.Message
	if err := s.db.WithContext(ctx).Where("id = ?", messageID).First(&m).Error; err != nil {
		return nil, translate(err)
	}
	if err := check(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// UpdateMessage rewrites the payload and edit marker of an existing message.
func (s *Store) UpdateMessage(ctx context.Context, m *model.Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&model.Message{}).
		Where("id = ?", m.ID).
		Select("payload_type", "payload_body", "payload_format", "payload_attachments",
			"payload_reply_to", "edited_is_edited", "edited_edited_at", "updated_at").
		Updates(m)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteMessage removes the message's reactions before the message itself.
func (s *Store) DeleteMessage(ctx context.Context, messageID string) error {
	return translate(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", messageID).Delete(&model.Reaction{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", messageID).Delete(&model.Message{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return store.ErrNotFound
		}
		return nil
	}))
}

// ListMessages returns a page of the group's messages, newest first, and the
// total count.
func (s *Store) ListMessages(ctx context.Context, groupID string, page store.Page) ([]model.Message, int64, error) {
	db := s.db.WithContext(ctx)
	var total int64
	if err := db.Model(&model.Message{}).Where("group_id = ?", groupID).Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}
	var msgs []model.Message
	q := applyPage(db.Where("group_id = ?", groupID).Order("seq desc"), page)
	if err := q.Find(&msgs).Error; err != nil {
		return nil, 0, translate(err)
	}
	return msgs, total, checkAll(msgs)
}

func (s *Store) DeleteGroupMessages(ctx context.Context, groupID string) error {
	return translate(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ?", groupID).Delete(&model.Reaction{}).Error; err != nil {
			return err
		}
		return tx.Where("group_id = ?", groupID).Delete(&model.Message{}).Error
	}))
}

// InsertReaction fails with store.ErrDuplicate when the user already reacted
// to the message.
func (s *Store) InsertReaction(ctx context.Context, r *model.Reaction) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return translate(s.db.WithContext(ctx).Create(r).Error)
}

func (s *Store) ListReactions(ctx context.Context, messageID string) ([]model.Reaction, error) {
	var out []model.Reaction
	if err := s.db.WithContext(ctx).Where("message_id = ?", messageID).Order("created_at").Find(&out).Error; err != nil {
		return nil, translate(err)
	}
	return out, checkAll(out)
}

package sqlstore

import (
	"context"
	"errors"

	"gorm.io/gorm/clause"

	"github.com/mahaj/groupchat/pkg/model"
	"github.com/mahaj/groupchat/pkg/store"
)

func (s *Store) GetPreferences(ctx context.Context, userID string) (*model.UserPrefs, error) {
	var p model.UserPrefs
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error
	if errors.Is(translate(err), store.ErrNotFound) {
		return &model.UserPrefs{UserID: userID, Notifications: model.NotifyAll}, nil
	}
	if err != nil {
		return nil, translate(err)
	}
	if err := check(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) SavePreferences(ctx context.Context, p *model.UserPrefs) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return translate(s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(p).Error)
}

// Package notify materialises per-user notifications and pushes them to the
// recipient's personal room.
//
// Side-effect notifications (mentions, reactions) travel as Jobs through a
// Dispatcher and may be delivered more than once; each Job carries a
// deterministic key stored as the notification's dedupe key, so a repeated
// delivery inserts nothing and pushes nothing.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mahaj/groupchat/pkg/apperr"
	"github.com/mahaj/groupchat/pkg/metrics"
	"github.com/mahaj/groupchat/pkg/model"
	"github.com/mahaj/groupchat/pkg/realtime"
	"github.com/mahaj/groupchat/pkg/store"
)

// Pusher delivers an event to a user's personal room.
type Pusher interface {
	ToUser(ctx context.Context, userID, name string, payload any) error
}

type Service struct {
	notes   store.Notifications
	prefs   store.Preferences
	push    Pusher
	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewService(notes store.Notifications, prefs store.Preferences, push Pusher, log *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{notes: notes, prefs: prefs, push: push, log: log, metrics: m}
}

// Create stores a notification for userID and pushes notification.created.
// It returns nil without error when the recipient's preference suppresses
// the type or when dedupeKey was already used.
func (s *Service) Create(ctx context.Context, userID string, typ model.NotificationType, payload model.NotificationPayload, dedupeKey string) (*model.Notification, error) {
	n, err := s.create(ctx, userID, typ, payload, dedupeKey)
	if errors.Is(err, store.ErrDuplicate) {
		s.log.Debug("duplicate notification ignored", "user", userID, "key", dedupeKey)
		return nil, nil
	}
	return n, err
}

// CreateUnique is Create for a notification whose dedupe key guards a
// pending state, such as an open invite. A key still in use is a Conflict
// wrapping store.ErrDuplicate.
func (s *Service) CreateUnique(ctx context.Context, userID string, typ model.NotificationType, payload model.NotificationPayload, dedupeKey string) (*model.Notification, error) {
	n, err := s.create(ctx, userID, typ, payload, dedupeKey)
	if errors.Is(err, store.ErrDuplicate) {
		return nil, apperr.Wrap(apperr.Conflict, err, "a %s notification is already pending", typ)
	}
	return n, err
}

func (s *Service) create(ctx context.Context, userID string, typ model.NotificationType, payload model.NotificationPayload, dedupeKey string) (*model.Notification, error) {
	prefs, err := s.prefs.GetPreferences(ctx, userID)
	if err != nil {
		s.metrics.Notification(string(typ), metrics.OutcomeFailed)
		return nil, store.Classify(err, "preferences")
	}
	if !typ.AllowedBy(prefs.Notifications) {
		s.metrics.Notification(string(typ), metrics.OutcomeSuppressed)
		s.log.Debug("notification suppressed by preference", "user", userID, "type", typ)
		return nil, nil
	}

	n := &model.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      typ,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if dedupeKey != "" {
		n.DedupeKey = &dedupeKey
	}
	if err := s.notes.InsertNotification(ctx, n); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			s.metrics.Notification(string(typ), metrics.OutcomeDuplicate)
			return nil, store.ErrDuplicate
		}
		s.metrics.Notification(string(typ), metrics.OutcomeFailed)
		return nil, store.Classify(err, "notification")
	}
	s.metrics.Notification(string(typ), metrics.OutcomeCreated)

	if err := s.push.ToUser(ctx, userID, realtime.EventNotificationCreated, n); err != nil {
		s.log.Warn("failed to push notification", "user", userID, "notification", n.ID, "error", err)
	}
	return n, nil
}

// Deliver materialises a dispatched job.
func (s *Service) Deliver(ctx context.Context, job Job) error {
	_, err := s.Create(ctx, job.Recipient, job.Type, job.Payload, job.Key)
	return err
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// ListResult is one page of a user's notifications.
type ListResult struct {
	Items  []model.Notification `json:"items"`
	Total  int64                `json:"total"`
	Offset int                  `json:"offset"`
	Limit  int                  `json:"limit"`
}

// List returns the user's notifications newest first. read filters by read
// state when non-nil. A zero limit selects DefaultPageSize and limits are
// capped at MaxPageSize.
func (s *Service) List(ctx context.Context, userID string, read *bool, page store.Page) (*ListResult, error) {
	if page.Limit < 0 || page.Offset < 0 {
		return nil, apperr.Invalid("limit and offset must not be negative")
	}
	switch {
	case page.Limit == 0:
		page.Limit = DefaultPageSize
	case page.Limit > MaxPageSize:
		page.Limit = MaxPageSize
	}
	items, total, err := s.notes.ListNotifications(ctx, userID, store.NotificationFilter{Read: read, Page: page})
	if err != nil {
		return nil, store.Classify(err, "notification")
	}
	if items == nil {
		items = []model.Notification{}
	}
	return &ListResult{Items: items, Total: total, Offset: page.Offset, Limit: page.Limit}, nil
}

// SetRead updates the read flag of one of the user's notifications.
func (s *Service) SetRead(ctx context.Context, userID, id string, read bool) (*model.Notification, error) {
	n, err := s.notes.SetRead(ctx, userID, id, read)
	if err != nil {
		return nil, store.Classify(err, "notification")
	}
	return n, nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.notes.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, store.Classify(err, "notification")
	}
	return n, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int64, error) {
	n, err := s.notes.CountUnread(ctx, userID)
	if err != nil {
		return 0, store.Classify(err, "notification")
	}
	return n, nil
}

// Preferences returns the user's notification preferences.
func (s *Service) Preferences(ctx context.Context, userID string) (*model.UserPrefs, error) {
	p, err := s.prefs.GetPreferences(ctx, userID)
	if err != nil {
		return nil, store.Classify(err, "preferences")
	}
	return p, nil
}

// SetPreferences stores the user's global notification level.
func (s *Service) SetPreferences(ctx context.Context, userID string, level model.NotificationLevel) (*model.UserPrefs, error) {
	if !level.Valid() {
		return nil, apperr.Invalid("notifications must be one of all, mentions, none")
	}
	p := &model.UserPrefs{UserID: userID, Notifications: level, UpdatedAt: time.Now().UTC()}
	if err := s.prefs.SavePreferences(ctx, p); err != nil {
		return nil, store.Classify(err, "preferences")
	}
	return p, nil
}

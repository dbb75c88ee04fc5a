package model

import (
	"fmt"
	"time"
)

type NotificationType string

const (
	NotificationContactRequest NotificationType = "contact_request"
	NotificationMention        NotificationType = "mention"
	NotificationGroupInvite    NotificationType = "group_invite"
	NotificationReaction       NotificationType = "reaction"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationContactRequest, NotificationMention, NotificationGroupInvite, NotificationReaction:
		return true
	}
	return false
}

type NotificationPayload struct {
	RequesterID string `gorm:"type:varchar(64)" json:"requesterId,omitempty"`
	GroupID     string `gorm:"type:varchar(36);index" json:"groupId,omitempty"`
	RoleID      string `gorm:"type:varchar(36)" json:"roleId,omitempty"`
	MessageID   string `gorm:"type:varchar(36)" json:"messageId,omitempty"`
	Content     string `json:"content,omitempty"`
}

// Notification is a durable per-user notice. DedupeKey, when set, is unique
// so a redelivered job cannot create a second record. ConsumedAt is set
// once a group invite has been accepted; the read flag does not affect it.
type Notification struct {
	ID         string              `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID     string              `gorm:"type:varchar(64);not null;index:idx_notification_user_created,priority:1" json:"userId"`
	Type       NotificationType    `gorm:"type:varchar(32);not null" json:"type"`
	Payload    NotificationPayload `gorm:"embedded;embeddedPrefix:payload_" json:"payload"`
	Read       bool                `gorm:"not null;default:false" json:"read"`
	DedupeKey  *string             `gorm:"uniqueIndex" json:"-"`
	ConsumedAt *time.Time          `gorm:"index" json:"consumedAt,omitempty"`
	CreatedAt  time.Time           `gorm:"index:idx_notification_user_created,priority:2,sort:desc" json:"createdAt"`
}

func (n *Notification) Validate() error {
	switch {
	case n.ID == "":
		return invalid("notification", "id is required")
	case n.UserID == "":
		return invalid("notification", "recipient is required")
	case !n.Type.Valid():
		return invalid("notification", fmt.Sprintf("unknown type %q", n.Type))
	case n.Type == NotificationGroupInvite && (n.Payload.GroupID == "" || n.Payload.RoleID == ""):
		return invalid("notification", "group invite requires group and role")
	}
	return nil
}

// AllowedBy reports whether a recipient with the given global level should
// receive a notification of this type.
func (t NotificationType) AllowedBy(level NotificationLevel) bool {
	switch level {
	case NotifyNone:
		return false
	case NotifyMentions:
		return t != NotificationReaction
	}
	return true
}

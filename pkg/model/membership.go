package model

import (
	"slices"
	"time"

	"gorm.io/datatypes"
)

type NotificationLevel string

const (
	NotifyAll      NotificationLevel = "all"
	NotifyMentions NotificationLevel = "mentions"
	NotifyNone     NotificationLevel = "none"
)

func (l NotificationLevel) Valid() bool {
	switch l {
	case NotifyAll, NotifyMentions, NotifyNone:
		return true
	}
	return false
}

type MemberSettings struct {
	Notifications NotificationLevel `gorm:"type:varchar(16);not null;default:'all'" json:"notifications"`
	Hidden        bool              `gorm:"not null;default:false" json:"hidden"`
}

// Membership links one user to one group. (GroupID, UserID) is unique.
type Membership struct {
	ID       string                      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	GroupID  string                      `gorm:"type:varchar(36);not null;uniqueIndex:idx_membership_group_user" json:"groupId"`
	UserID   string                      `gorm:"type:varchar(64);not null;uniqueIndex:idx_membership_group_user;index" json:"userId"`
	Roles    datatypes.JSONSlice[string] `json:"roles"`
	JoinedAt time.Time                   `json:"joinedAt"`
	Settings MemberSettings              `gorm:"embedded;embeddedPrefix:settings_" json:"settings"`
}

// HasRole reports whether the membership holds roleID.
func (m *Membership) HasRole(roleID string) bool {
	return slices.Contains(m.Roles, roleID)
}

// RemoveRole drops roleID from the role set and reports whether it was held.
func (m *Membership) RemoveRole(roleID string) bool {
	i := slices.Index(m.Roles, roleID)
	if i < 0 {
		return false
	}
	m.Roles = slices.Delete(m.Roles, i, i+1)
	return true
}

func (m *Membership) Validate() error {
	switch {
	case m.ID == "":
		return invalid("membership", "id is required")
	case m.GroupID == "":
		return invalid("membership", "group is required")
	case m.UserID == "":
		return invalid("membership", "user is required")
	case m.Settings.Notifications != "" && !m.Settings.Notifications.Valid():
		return invalid("membership", "unknown notification level")
	}
	return nil
}

// UserPrefs is the notification preference record of a user.
type UserPrefs struct {
	UserID        string            `gorm:"primaryKey;type:varchar(64)" json:"userId"`
	Notifications NotificationLevel `gorm:"type:varchar(16);not null;default:'all'" json:"notifications"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

func (UserPrefs) TableName() string { return "user_preferences" }

func (p *UserPrefs) Validate() error {
	switch {
	case p.UserID == "":
		return invalid("preferences", "user is required")
	case !p.Notifications.Valid():
		return invalid("preferences", "unknown notification level")
	}
	return nil
}

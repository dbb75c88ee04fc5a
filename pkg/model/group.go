package model

import (
	"fmt"
	"time"
)

type GroupType string

const (
	GroupPrivate GroupType = "private"
	GroupPublic  GroupType = "public"
	GroupChannel GroupType = "channel"
)

type JoinMode string

const (
	JoinOpen     JoinMode = "open"
	JoinApproval JoinMode = "approval"
	JoinInvite   JoinMode = "invite"
)

type MessagePermissions string

const (
	MessagesAll        MessagePermissions = "all"
	MessagesModerators MessagePermissions = "moderators"
)

// GroupSettings controls how members join and post.
type GroupSettings struct {
	JoinMode           JoinMode           `gorm:"type:varchar(16);not null" json:"joinMode"`
	MessagePermissions MessagePermissions `gorm:"type:varchar(16);not null" json:"messagePermissions"`
	SlowMode           int                `gorm:"not null;default:0" json:"slowMode"`
	DefaultRole        string             `gorm:"type:varchar(36);not null" json:"defaultRole"`
}

// Group is a chat room owned by a single user.
type Group struct {
	ID          string        `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name        string        `gorm:"not null;index" json:"name"`
	Description string        `json:"description"`
	Type        GroupType     `gorm:"type:varchar(16);not null" json:"type"`
	Avatar      string        `json:"avatar,omitempty"`
	OwnerID     string        `gorm:"type:varchar(64);not null;index" json:"ownerId"`
	Settings    GroupSettings `gorm:"embedded;embeddedPrefix:settings_" json:"settings"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// IsOwner reports whether userID created the group.
func (g *Group) IsOwner(userID string) bool {
	return g != nil && userID != "" && g.OwnerID == userID
}

func (t GroupType) Valid() bool {
	switch t {
	case GroupPrivate, GroupPublic, GroupChannel:
		return true
	}
	return false
}

func (m JoinMode) Valid() bool {
	switch m {
	case JoinOpen, JoinApproval, JoinInvite:
		return true
	}
	return false
}

func (p MessagePermissions) Valid() bool {
	switch p {
	case MessagesAll, MessagesModerators:
		return true
	}
	return false
}

// Validate rejects a group missing any required field.
func (g *Group) Validate() error {
	switch {
	case g.ID == "":
		return invalid("group", "id is required")
	case g.Name == "":
		return invalid("group", "name is required")
	case !g.Type.Valid():
		return invalid("group", fmt.Sprintf("unknown type %q", g.Type))
	case g.OwnerID == "":
		return invalid("group", "owner is required")
	case !g.Settings.JoinMode.Valid():
		return invalid("group", fmt.Sprintf("unknown join mode %q", g.Settings.JoinMode))
	case !g.Settings.MessagePermissions.Valid():
		return invalid("group", fmt.Sprintf("unknown message permissions %q", g.Settings.MessagePermissions))
	case g.Settings.SlowMode < 0:
		return invalid("group", "slow mode must not be negative")
	case g.Settings.DefaultRole == "":
		return invalid("group", "default role is required")
	}
	return nil
}

// KeyStorage is the per-group placeholder for member key slots.
type KeyStorage struct {
	ID        string            `gorm:"primaryKey;type:varchar(36)" json:"id"`
	GroupID   string            `gorm:"type:varchar(36);not null;uniqueIndex" json:"groupId"`
	Slots     map[string]string `gorm:"serializer:json" json:"slots"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

func (k *KeyStorage) Validate() error {
	switch {
	case k.ID == "":
		return invalid("key storage", "id is required")
	case k.GroupID == "":
		return invalid("key storage", "group is required")
	}
	return nil
}

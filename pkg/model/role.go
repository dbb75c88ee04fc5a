package model

import (
	"regexp"
	"time"
)

// Permission names a single role capability.
type Permission string

const (
	PermSendMessages    Permission = "sendMessages"
	PermManageMessages  Permission = "manageMessages"
	PermManageRoles     Permission = "manageRoles"
	PermManageChannels  Permission = "manageChannels"
	PermKickMembers     Permission = "kickMembers"
	PermBanMembers      Permission = "banMembers"
	PermMentionEveryone Permission = "mentionEveryone"
	PermAttachFiles     Permission = "attachFiles"
	PermVoiceChat       Permission = "voiceChat"
)

type Permissions struct {
	SendMessages    bool `json:"sendMessages"`
	ManageMessages  bool `json:"manageMessages"`
	ManageRoles     bool `json:"manageRoles"`
	ManageChannels  bool `json:"manageChannels"`
	KickMembers     bool `json:"kickMembers"`
	BanMembers      bool `json:"banMembers"`
	MentionEveryone bool `json:"mentionEveryone"`
	AttachFiles     bool `json:"attachFiles"`
	VoiceChat       bool `json:"voiceChat"`
}

// Has reports whether the permission flag is set.
func (p Permissions) Has(perm Permission) bool {
	switch perm {
	case PermSendMessages:
		return p.SendMessages
	case PermManageMessages:
		return p.ManageMessages
	case PermManageRoles:
		return p.ManageRoles
	case PermManageChannels:
		return p.ManageChannels
	case PermKickMembers:
		return p.KickMembers
	case PermBanMembers:
		return p.BanMembers
	case PermMentionEveryone:
		return p.MentionEveryone
	case PermAttachFiles:
		return p.AttachFiles
	case PermVoiceChat:
		return p.VoiceChat
	}
	return false
}

// AdministratorPermissions grants every flag.
func AdministratorPermissions() Permissions {
	return Permissions{
		SendMessages:    true,
		ManageMessages:  true,
		ManageRoles:     true,
		ManageChannels:  true,
		KickMembers:     true,
		BanMembers:      true,
		MentionEveryone: true,
		AttachFiles:     true,
		VoiceChat:       true,
	}
}

// DefaultPermissions is the flag set of the seed role new members receive.
func DefaultPermissions() Permissions {
	return Permissions{
		SendMessages: true,
		AttachFiles:  true,
		VoiceChat:    true,
	}
}

// PermissionPatch is a partial update; nil fields keep their current value.
type PermissionPatch struct {
	SendMessages    *bool `json:"sendMessages,omitempty"`
	ManageMessages  *bool `json:"manageMessages,omitempty"`
	ManageRoles     *bool `json:"manageRoles,omitempty"`
	ManageChannels  *bool `json:"manageChannels,omitempty"`
	KickMembers     *bool `json:"kickMembers,omitempty"`
	BanMembers      *bool `json:"banMembers,omitempty"`
	MentionEveryone *bool `json:"mentionEveryone,omitempty"`
	AttachFiles     *bool `json:"attachFiles,omitempty"`
	VoiceChat       *bool `json:"voiceChat,omitempty"`
}

// Apply returns p with every non-nil field of patch applied.
func (p Permissions) Apply(patch PermissionPatch) Permissions {
	set := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	set(&p.SendMessages, patch.SendMessages)
	set(&p.ManageMessages, patch.ManageMessages)
	set(&p.ManageRoles, patch.ManageRoles)
	set(&p.ManageChannels, patch.ManageChannels)
	set(&p.KickMembers, patch.KickMembers)
	set(&p.BanMembers, patch.BanMembers)
	set(&p.MentionEveryone, patch.MentionEveryone)
	set(&p.AttachFiles, patch.AttachFiles)
	set(&p.VoiceChat, patch.VoiceChat)
	return p
}

// Role is a named permission set scoped to one group.
type Role struct {
	ID          string      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	GroupID     string      `gorm:"type:varchar(36);not null;index" json:"groupId"`
	Name        string      `gorm:"not null" json:"name"`
	Color       string      `gorm:"type:varchar(7)" json:"color"`
	Permissions Permissions `gorm:"embedded;embeddedPrefix:perm_" json:"permissions"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

var hexColor = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// ValidColor reports whether c is a #RGB or #RRGGBB color.
func ValidColor(c string) bool {
	return hexColor.MatchString(c)
}

func (r *Role) Validate() error {
	switch {
	case r.ID == "":
		return invalid("role", "id is required")
	case r.GroupID == "":
		return invalid("role", "group is required")
	case r.Name == "":
		return invalid("role", "name is required")
	case r.Color != "" && !ValidColor(r.Color):
		return invalid("role", "color must be a hex color")
	}
	return nil
}

package model

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageVoice MessageType = "voice"
	MessageImage MessageType = "image"
	MessageVideo MessageType = "video"
	MessageFile  MessageType = "file"
	MessagePoll  MessageType = "poll"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageVoice, MessageImage, MessageVideo, MessageFile, MessagePoll:
		return true
	}
	return false
}

// Span is a byte-offset range [Start, End) into a message body.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type LinkSpan struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	URL   string `json:"url"`
}

type MentionSpan struct {
	Start  int    `json:"start"`
	End    int    `json:"end"`
	UserID string `json:"userId"`
}

// Format carries inline formatting of a message body.
type Format struct {
	Bold     []Span        `json:"bold,omitempty"`
	Italic   []Span        `json:"italic,omitempty"`
	Links    []LinkSpan    `json:"links,omitempty"`
	Mentions []MentionSpan `json:"mentions,omitempty"`
}

// MentionedUsers returns the distinct mentioned user ids in first-seen order.
func (f Format) MentionedUsers() []string {
	seen := make(map[string]struct{}, len(f.Mentions))
	out := make([]string, 0, len(f.Mentions))
	for _, m := range f.Mentions {
		if _, ok := seen[m.UserID]; ok {
			continue
		}
		seen[m.UserID] = struct{}{}
		out = append(out, m.UserID)
	}
	return out
}

// Check validates every span against a body of bodyLen bytes.
func (f Format) Check(bodyLen int) error {
	in := func(start, end int) bool {
		return start >= 0 && start <= end && end <= bodyLen
	}
	for _, s := range f.Bold {
		if !in(s.Start, s.End) {
			return invalid("format", fmt.Sprintf("bold span [%d,%d) out of range", s.Start, s.End))
		}
	}
	for _, s := range f.Italic {
		if !in(s.Start, s.End) {
			return invalid("format", fmt.Sprintf("italic span [%d,%d) out of range", s.Start, s.End))
		}
	}
	for _, l := range f.Links {
		if !in(l.Start, l.End) {
			return invalid("format", fmt.Sprintf("link span [%d,%d) out of range", l.Start, l.End))
		}
		if l.URL == "" {
			return invalid("format", "link span requires a url")
		}
	}
	for _, m := range f.Mentions {
		if !in(m.Start, m.End) {
			return invalid("format", fmt.Sprintf("mention span [%d,%d) out of range", m.Start, m.End))
		}
		if m.UserID == "" {
			return invalid("format", "mention span requires a user")
		}
	}
	return nil
}

// Payload is the user-authored content of a message.
type Payload struct {
	Type        MessageType                 `gorm:"type:varchar(16);not null" json:"type"`
	Body        string                      `json:"body"`
	Format      datatypes.JSONType[Format]  `json:"format"`
	Attachments datatypes.JSONSlice[string] `json:"attachments"`
	ReplyTo     string                      `gorm:"type:varchar(36)" json:"replyTo,omitempty"`
}

func (p *Payload) Validate() error {
	if !p.Type.Valid() {
		return invalid("message", fmt.Sprintf("unknown type %q", p.Type))
	}
	return p.Format.Data().Check(len(p.Body))
}

type EditInfo struct {
	IsEdited bool       `gorm:"not null;default:false" json:"isEdited"`
	EditedAt *time.Time `json:"editedAt,omitempty"`
}

// Message is a posted chat message. Seq orders messages within a group.
type Message struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	GroupID   string    `gorm:"type:varchar(36);not null;index:idx_message_group_seq,priority:1" json:"groupId"`
	Seq       int64     `gorm:"not null;index:idx_message_group_seq,priority:2,sort:desc" json:"seq"`
	SenderID  string    `gorm:"type:varchar(64);not null;index" json:"senderId"`
	Payload   Payload   `gorm:"embedded;embeddedPrefix:payload_" json:"payload"`
	Edited    EditInfo  `gorm:"embedded;embeddedPrefix:edited_" json:"edited"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (m *Message) Validate() error {
	switch {
	case m.ID == "":
		return invalid("message", "id is required")
	case m.GroupID == "":
		return invalid("message", "group is required")
	case m.SenderID == "":
		return invalid("message", "sender is required")
	}
	return m.Payload.Validate()
}

// Reaction is a single user's reaction to a message. (MessageID, UserID) is unique.
type Reaction struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	MessageID string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_reaction_message_user" json:"messageId"`
	GroupID   string    `gorm:"type:varchar(36);not null;index" json:"groupId"`
	UserID    string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_reaction_message_user" json:"userId"`
	Reaction  string    `gorm:"not null" json:"reaction"`
	CreatedAt time.Time `json:"createdAt"`
}

func (r *Reaction) Validate() error {
	switch {
	case r.ID == "":
		return invalid("reaction", "id is required")
	case r.MessageID == "":
		return invalid("reaction", "message is required")
	case r.GroupID == "":
		return invalid("reaction", "group is required")
	case r.UserID == "":
		return invalid("reaction", "user is required")
	case r.Reaction == "":
		return invalid("reaction", "reaction is required")
	}
	return nil
}

// Package message implements the message lifecycle: post, edit, delete and
// react. Each mutation is broadcast to the group room after it is stored;
// mention and reaction notifications leave through a notify.Dispatcher.
package message

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/mahaj/groupchat/pkg/apperr"
	"github.com/mahaj/groupchat/pkg/authz"
	"github.com/mahaj/groupchat/pkg/directory"
	"github.com/mahaj/groupchat/pkg/model"
	"github.com/mahaj/groupchat/pkg/notify"
	"github.com/mahaj/groupchat/pkg/realtime"
	"github.com/mahaj/groupchat/pkg/snowflake"
	"github.com/mahaj/groupchat/pkg/store"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// Broadcaster publishes group-scoped events.
type Broadcaster interface {
	ToGroup(ctx context.Context, groupID, name string, payload any) error
}

type Service struct {
	messages store.Messages
	dir      *directory.Directory
	fanout   Broadcaster
	jobs     notify.Dispatcher
	seq      *snowflake.Node
	slow     *slowMode
	log      *slog.Logger
	now      func() time.Time
}

func NewService(messages store.Messages, dir *directory.Directory, fanout Broadcaster, jobs notify.Dispatcher, seq *snowflake.Node, log *slog.Logger) *Service {
	return &Service{
		messages: messages,
		dir:      dir,
		fanout:   fanout,
		jobs:     jobs,
		seq:      seq,
		slow:     newSlowMode(),
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Input is the content of a new message.
type Input struct {
	Type        model.MessageType `json:"type"`
	Body        string            `json:"body"`
	Format      model.Format      `json:"format"`
	Attachments []string          `json:"attachments"`
	ReplyTo     string            `json:"replyTo"`
}

// Patch is a partial edit; nil fields keep their current value. An empty
// ReplyTo clears the reply reference.
type Patch struct {
	Type        *model.MessageType `json:"type"`
	Body        *string            `json:"body"`
	Format      *model.Format      `json:"format"`
	Attachments []string           `json:"attachments"`
	ReplyTo     *string            `json:"replyTo"`
}

type Page struct {
	Items  []model.Message `json:"items"`
	Total  int64           `json:"total"`
	Offset int             `json:"offset"`
	Limit  int             `json:"limit"`
}

func validPayload(p *model.Payload) error {
	if err := p.Validate(); err != nil {
		return apperr.Wrap(apperr.InvalidInput, err, "%s", strings.TrimPrefix(err.Error(), model.ErrInvalidDocument.Error()+": "))
	}
	return nil
}

// message loads a message, classifying a miss as NotFound.
func (s *Service) message(ctx context.Context, messageID string) (*model.Message, error) {
	m, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return nil, store.Classify(err, "message")
	}
	return m, nil
}

// checkReply ensures replyTo names a message of groupID.
func (s *Service) checkReply(ctx context.Context, groupID, replyTo string) error {
	if replyTo == "" {
		return nil
	}
	m, err := s.messages.GetMessage(ctx, replyTo)
	if errors.Is(err, store.ErrNotFound) || (err == nil && m.GroupID != groupID) {
		return apperr.InvalidRef("reply target %s is not a message of this group", replyTo)
	}
	if err != nil {
		return store.Classify(err, "message")
	}
	return nil
}

// Create posts a message to groupID as userID.
func (s *Service) Create(ctx context.Context, userID, groupID string, in Input) (*model.Message, error) {
	if in.Type == "" {
		in.Type = model.MessageText
	}
	payload := model.Payload{
		Type:        in.Type,
		Body:        in.Body,
		Format:      datatypes.NewJSONType(in.Format),
		Attachments: datatypes.NewJSONSlice(nonNil(in.Attachments)),
		ReplyTo:     in.ReplyTo,
	}
	if err := validPayload(&payload); err != nil {
		return nil, err
	}

	g, _, err := s.dir.AuthorizeGroup(ctx, authz.ActionSendMessage, groupID, userID)
	if err != nil {
		return nil, err
	}
	mentioned := in.Format.MentionedUsers()
	if err := s.dir.RequireMembers(ctx, groupID, mentioned); err != nil {
		return nil, err
	}
	if err := s.checkReply(ctx, groupID, in.ReplyTo); err != nil {
		return nil, err
	}
	if err := s.throttle(ctx, g, userID); err != nil {
		return nil, err
	}

	now := s.now()
	m := &model.Message{
		ID:        uuid.NewString(),
		GroupID:   groupID,
		Seq:       s.seq.Generate(),
		SenderID:  userID,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.messages.InsertMessage(ctx, m); err != nil {
		return nil, store.Classify(err, "message")
	}

	s.broadcast(ctx, groupID, realtime.EventMessageCreated, m)
	s.notifyMentions(ctx, g, m, userID, mentioned, "You were mentioned in a message in %s")
	return m, nil
}

func (s *Service) throttle(ctx context.Context, g *model.Group, userID string) error {
	if g.Settings.SlowMode <= 0 {
		return nil
	}
	exempt, err := s.dir.Can(ctx, authz.ActionBypassSlowMode, g, userID)
	if err != nil {
		return err
	}
	if exempt {
		return nil
	}
	if !s.slow.allow(g.ID, userID, time.Duration(g.Settings.SlowMode)*time.Second, s.now()) {
		return apperr.New(apperr.RateLimited, "slow mode is on: one message every %d seconds", g.Settings.SlowMode)
	}
	return nil
}

// Edit applies patch to a message. Only mentions absent from the previous
// version produce notifications.
func (s *Service) Edit(ctx context.Context, userID, messageID string, patch Patch) (*model.Message, error) {
	m, err := s.message(ctx, messageID)
	if err != nil {
		return nil, err
	}
	g, err := s.dir.Group(ctx, m.GroupID)
	if err != nil {
		return nil, err
	}
	if _, err := s.dir.Authorize(ctx, authz.ActionModifyMessage, g, userID, m.SenderID); err != nil {
		return nil, err
	}

	before := m.Payload.Format.Data().MentionedUsers()
	next := m.Payload
	if patch.Type != nil {
		next.Type = *patch.Type
	}
	if patch.Body != nil {
		next.Body = *patch.Body
	}
	if patch.Format != nil {
		next.Format = datatypes.NewJSONType(*patch.Format)
	}
	if patch.Attachments != nil {
		next.Attachments = datatypes.NewJSONSlice(patch.Attachments)
	}
	if patch.ReplyTo != nil {
		next.ReplyTo = *patch.ReplyTo
	}
	if err := validPayload(&next); err != nil {
		return nil, err
	}

	var added []string
	for _, id := range next.Format.Data().MentionedUsers() {
		if !slices.Contains(before, id) {
			added = append(added, id)
		}
	}
	if err := s.dir.RequireMembers(ctx, m.GroupID, added); err != nil {
		return nil, err
	}
	if next.ReplyTo != m.Payload.ReplyTo {
		if next.ReplyTo == m.ID {
			return nil, apperr.InvalidRef("a message cannot reply to itself")
		}
		if err := s.checkReply(ctx, m.GroupID, next.ReplyTo); err != nil {
			return nil, err
		}
	}

	now := s.now()
	m.Payload = next
	m.Edited = model.EditInfo{IsEdited: true, EditedAt: &now}
	m.UpdatedAt = now
	if err := s.messages.UpdateMessage(ctx, m); err != nil {
		return nil, store.Classify(err, "message")
	}

	s.broadcast(ctx, m.GroupID, realtime.EventMessageUpdated, m)
	s.notifyMentions(ctx, g, m, userID, added, "You were mentioned in an edited message in %s")
	return m, nil
}

// Delete removes a message and its reactions.
func (s *Service) Delete(ctx context.Context, userID, messageID string) error {
	m, err := s.message(ctx, messageID)
	if err != nil {
		return err
	}
	g, err := s.dir.Group(ctx, m.GroupID)
	if err != nil {
		return err
	}
	if _, err := s.dir.Authorize(ctx, authz.ActionModifyMessage, g, userID, m.SenderID); err != nil {
		return err
	}
	if err := s.messages.DeleteMessage(ctx, messageID); err != nil {
		return store.Classify(err, "message")
	}
	s.broadcast(ctx, m.GroupID, realtime.EventMessageDeleted, map[string]string{"messageId": messageID})
	return nil
}

// React records userID's single reaction to a message.
func (s *Service) React(ctx context.Context, userID, messageID, reaction string) (*model.Reaction, error) {
	reaction = strings.TrimSpace(reaction)
	if reaction == "" {
		return nil, apperr.Invalid("reaction is required")
	}
	m, err := s.message(ctx, messageID)
	if err != nil {
		return nil, err
	}
	g, err := s.dir.Group(ctx, m.GroupID)
	if err != nil {
		return nil, err
	}
	if _, err := s.dir.Authorize(ctx, authz.ActionReact, g, userID, ""); err != nil {
		return nil, err
	}

	r := &model.Reaction{
		ID:        uuid.NewString(),
		MessageID: m.ID,
		GroupID:   m.GroupID,
		UserID:    userID,
		Reaction:  reaction,
		CreatedAt: s.now(),
	}
	if err := s.messages.InsertReaction(ctx, r); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.Conflictf("you have already reacted to this message")
		}
		return nil, store.Classify(err, "reaction")
	}

	s.broadcast(ctx, m.GroupID, realtime.EventReactionCreated, r)
	if m.SenderID != userID {
		s.dispatch(ctx, notify.Job{
			Key:       notify.ReactionKey(r.ID),
			Recipient: m.SenderID,
			Type:      model.NotificationReaction,
			Payload: model.NotificationPayload{
				RequesterID: userID,
				GroupID:     m.GroupID,
				MessageID:   m.ID,
				Content:     fmt.Sprintf("Someone reacted %s to your message in %s", reaction, g.Name),
			},
		})
	}
	return r, nil
}

// Get returns one message to a member of its group.
func (s *Service) Get(ctx context.Context, userID, messageID string) (*model.Message, error) {
	m, err := s.message(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.dir.AuthorizeGroup(ctx, authz.ActionView, m.GroupID, userID); err != nil {
		return nil, err
	}
	return m, nil
}

// Reactions lists the reactions of a message to a member of its group.
func (s *Service) Reactions(ctx context.Context, userID, messageID string) ([]model.Reaction, error) {
	m, err := s.Get(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	rs, err := s.messages.ListReactions(ctx, m.ID)
	if err != nil {
		return nil, store.Classify(err, "reaction")
	}
	if rs == nil {
		rs = []model.Reaction{}
	}
	return rs, nil
}

// List returns a page of the group's history, newest first.
func (s *Service) List(ctx context.Context, userID, groupID string, offset, limit int) (*Page, error) {
	if offset < 0 {
		return nil, apperr.Invalid("offset must not be negative")
	}
	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}
	if _, _, err := s.dir.AuthorizeGroup(ctx, authz.ActionView, groupID, userID); err != nil {
		return nil, err
	}
	items, total, err := s.messages.ListMessages(ctx, groupID, store.Page{Offset: offset, Limit: limit})
	if err != nil {
		return nil, store.Classify(err, "message")
	}
	if items == nil {
		items = []model.Message{}
	}
	return &Page{Items: items, Total: total, Offset: offset, Limit: limit}, nil
}

// broadcast publishes after a committed write. A failed publish does not
// undo the write.
func (s *Service) broadcast(ctx context.Context, groupID, event string, payload any) {
	if err := s.fanout.ToGroup(ctx, groupID, event, payload); err != nil {
		s.log.Warn("failed to broadcast", "group", groupID, "event", event, "error", err)
	}
}

// notifyMentions queues one mention notification per user, skipping the
// actor who wrote the mention and the message's author.
func (s *Service) notifyMentions(ctx context.Context, g *model.Group, m *model.Message, actor string, users []string, format string) {
	jobs := make([]notify.Job, 0, len(users))
	for _, id := range users {
		if id == actor || id == m.SenderID {
			continue
		}
		jobs = append(jobs, notify.Job{
			Key:       notify.MentionKey(m.ID, id),
			Recipient: id,
			Type:      model.NotificationMention,
			Payload: model.NotificationPayload{
				RequesterID: actor,
				GroupID:     m.GroupID,
				MessageID:   m.ID,
				Content:     fmt.Sprintf(format, g.Name),
			},
		})
	}
	s.dispatch(ctx, jobs...)
}

func (s *Service) dispatch(ctx context.Context, jobs ...notify.Job) {
	if len(jobs) == 0 {
		return
	}
	if err := s.jobs.Dispatch(ctx, jobs...); err != nil {
		s.log.Error("failed to dispatch notification jobs", "count", len(jobs), "first", jobs[0].Key, "error", err)
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Package scyllastore keeps messages and reactions in ScyllaDB. Messages are
// stored by id and indexed per group by their snowflake sequence, newest
// first; reaction uniqueness uses a lightweight transaction.
package scyllastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"gorm.io/datatypes"

	"github.com/mahaj/groupchat/pkg/db"
	"github.com/mahaj/groupchat/pkg/model"
	"github.com/mahaj/groupchat/pkg/store"
)

// Schema is the CQL needed by Store, in creation order.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		id text PRIMARY KEY,
		group_id text,
		seq bigint,
		sender_id text,
		type text,
		body text,
		format text,
		attachments list<text>,
		reply_to text,
		is_edited boolean,
		edited_at timestamp,
		created_at timestamp,
		updated_at timestamp
	)`,
	`CREATE TABLE IF NOT EXISTS messages_by_group (
		group_id text,
		seq bigint,
		message_id text,
		PRIMARY KEY (group_id, seq)
	) WITH CLUSTERING ORDER BY (seq DESC)`,
	`CREATE TABLE IF NOT EXISTS reactions (
		message_id text,
		user_id text,
		id text,
		group_id text,
		reaction text,
		created_at timestamp,
		PRIMARY KEY (message_id, user_id)
	)`,
}

type Store struct {
	session *db.Session
}

var _ store.Messages = (*Store)(nil)

func New(session *db.Session) *Store {
	return &Store{session: session}
}

// CreateSchema creates the tables in the session's keyspace.
func CreateSchema(ctx context.Context, session *db.Session) error {
	for _, stmt := range Schema {
		if err := session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

const messageColumns = `id, group_id, seq, sender_id, type, body, format, attachments, reply_to,
	is_edited, edited_at, created_at, updated_at`

func (s *Store) InsertMessage(ctx context.Context, m *model.Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	format, err := json.Marshal(m.Payload.Format.Data())
	if err != nil {
		return err
	}

	b := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	b.Query(`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.GroupID, m.Seq, m.SenderID, string(m.Payload.Type), m.Payload.Body, string(format),
		[]string(m.Payload.Attachments), m.Payload.ReplyTo, m.Edited.IsEdited, m.Edited.EditedAt,
		m.CreatedAt, m.UpdatedAt)
	b.Query(`INSERT INTO messages_by_group (group_id, seq, message_id) VALUES (?, ?, ?)`,
		m.GroupID, m.Seq, m.ID)
	return s.session.ExecuteBatch(b)
}

func (s *Store) GetMessage(ctx context.Context, messageID string) (*model.Message, error) {
	var (
		m           model.Message
		typ, format string
		attachments []string
		editedAt    time.Time
	)
	err := s.session.Query(`SELECT `+messageColumns+` FROM messages WHERE id = ?`, messageID).
		WithContext(ctx).
		Scan(&m.ID, &m.GroupID, &m.Seq, &m.SenderID, &typ, &m.Payload.Body, &format, &attachments,
			&m.Payload.ReplyTo, &m.Edited.IsEdited, &editedAt, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	m.Payload.Type = model.MessageType(typ)
	m.Payload.Attachments = attachments
	if !editedAt.IsZero() {
		m.Edited.EditedAt = &editedAt
	}
	var f model.Format
	if format != "" {
		if err := json.Unmarshal([]byte(format), &f); err != nil {
			return nil, fmt.Errorf("scyllastore: message %s format: %w", messageID, err)
		}
	}
	m.Payload.Format = datatypes.NewJSONType(f)

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("scyllastore: stored record rejected: %w", err)
	}
	return &m, nil
}

func (s *Store) UpdateMessage(ctx context.Context, m *model.Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	format, err := json.Marshal(m.Payload.Format.Data())
	if err != nil {
		return err
	}
	m.UpdatedAt = time.Now().UTC()

	applied, err := s.session.Query(`UPDATE messages SET type = ?, body = ?, format = ?, attachments = ?,
		reply_to = ?, is_edited = ?, edited_at = ?, updated_at = ? WHERE id = ? IF EXISTS`,
		string(m.Payload.Type), m.Payload.Body, string(format), []string(m.Payload.Attachments),
		m.Payload.ReplyTo, m.Edited.IsEdited, m.Edited.EditedAt, m.UpdatedAt, m.ID).
		WithContext(ctx).
		MapScanCAS(map[string]interface{}{})
	if err != nil {
		return err
	}
	if !applied {
		return store.ErrNotFound
	}
	return nil
}

// DeleteMessage drops the reaction partition, the message row and its
// group index entry in one logged batch.
func (s *Store) DeleteMessage(ctx context.Context, messageID string) error {
	m, err := s.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	b := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	b.Query(`DELETE FROM reactions WHERE message_id = ?`, m.ID)
	b.Query(`DELETE FROM messages WHERE id = ?`, m.ID)
	b.Query(`DELETE FROM messages_by_group WHERE group_id = ? AND seq = ?`, m.GroupID, m.Seq)
	return s.session.ExecuteBatch(b)
}

// ListMessages walks the group index newest first. CQL has no OFFSET, so
// the first page.Offset rows are skipped client side.
func (s *Store) ListMessages(ctx context.Context, groupID string, page store.Page) ([]model.Message, int64, error) {
	var total int64
	if err := s.session.Query(`SELECT COUNT(*) FROM messages_by_group WHERE group_id = ?`, groupID).
		WithContext(ctx).Scan(&total); err != nil {
		return nil, 0, err
	}

	iter := s.session.Query(`SELECT message_id FROM messages_by_group WHERE group_id = ?`, groupID).
		WithContext(ctx).Iter()
	var (
		ids     []string
		id      string
		skipped int
	)
	for iter.Scan(&id) {
		if skipped < page.Offset {
			skipped++
			continue
		}
		ids = append(ids, id)
		if page.Limit > 0 && len(ids) == page.Limit {
			break
		}
	}
	if err := iter.Close(); err != nil {
		return nil, 0, err
	}

	msgs := make([]model.Message, 0, len(ids))
	for _, id := range ids {
		m, err := s.GetMessage(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, 0, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, total, nil
}

func (s *Store) DeleteGroupMessages(ctx context.Context, groupID string) error {
	iter := s.session.Query(`SELECT message_id FROM messages_by_group WHERE group_id = ?`, groupID).
		WithContext(ctx).Iter()
	var ids []string
	var id string
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		return err
	}

	for _, id := range ids {
		b := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
		b.Query(`DELETE FROM reactions WHERE message_id = ?`, id)
		b.Query(`DELETE FROM messages WHERE id = ?`, id)
		if err := s.session.ExecuteBatch(b); err != nil {
			return fmt.Errorf("delete message %s: %w", id, err)
		}
	}
	return s.session.Query(`DELETE FROM messages_by_group WHERE group_id = ?`, groupID).
		WithContext(ctx).Exec()
}

// InsertReaction uses INSERT ... IF NOT EXISTS so two concurrent reactions
// by one user on one message resolve to a single row.
func (s *Store) InsertReaction(ctx context.Context, r *model.Reaction) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	applied, err := s.session.Query(`INSERT INTO reactions (message_id, user_id, id, group_id, reaction, created_at)
		VALUES (?, ?, ?, ?, ?, ?) IF NOT EXISTS`,
		r.MessageID, r.UserID, r.ID, r.GroupID, r.Reaction, r.CreatedAt).
		WithContext(ctx).
		MapScanCAS(map[string]interface{}{})
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("%w: reaction by %s on %s", store.ErrDuplicate, r.UserID, r.MessageID)
	}
	return nil
}

func (s *Store) ListReactions(ctx context.Context, messageID string) ([]model.Reaction, error) {
	iter := s.session.Query(`SELECT id, message_id, group_id, user_id, reaction, created_at
		FROM reactions WHERE message_id = ?`, messageID).WithContext(ctx).Iter()
	var out []model.Reaction
	var r model.Reaction
	for iter.Scan(&r.ID, &r.MessageID, &r.GroupID, &r.UserID, &r.Reaction, &r.CreatedAt) {
		out = append(out, r)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

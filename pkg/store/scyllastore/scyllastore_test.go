package scyllastore

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/groupchat/pkg/db"
	"github.com/mahaj/groupchat/pkg/logger"
	"github.com/mahaj/groupchat/pkg/model"
	"github.com/mahaj/groupchat/pkg/store"
)

// setupStore connects to the cluster named by SCYLLA_HOSTS; the tests are
// skipped without one.
func setupStore(t *testing.T) *Store {
	t.Helper()
	hosts := os.Getenv("SCYLLA_HOSTS")
	if hosts == "" {
		t.Skip("SCYLLA_HOSTS not set")
	}
	ctx := context.Background()
	list := strings.Split(hosts, ",")
	require.NoError(t, db.CreateKeyspace(ctx, list, "groupchat_test", 1))
	session, err := db.NewSession(list, "groupchat_test", logger.Discard())
	require.NoError(t, err)
	t.Cleanup(session.Close)
	require.NoError(t, CreateSchema(ctx, session))
	return New(session)
}

func TestMessageLifecycle(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	groupID := uuid.NewString()

	var ids []string
	for seq := int64(1); seq <= 3; seq++ {
		m := &model.Message{ID: uuid.NewString(), GroupID: groupID, Seq: seq, SenderID: "alice",
			Payload: model.Payload{Type: model.MessageText, Body: "hi"}}
		require.NoError(t, s.InsertMessage(ctx, m))
		ids = append(ids, m.ID)
	}

	msgs, total, err := s.ListMessages(ctx, groupID, store.Page{Offset: 1, Limit: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, msgs, 1)
	assert.Equal(t, ids[1], msgs[0].ID)

	m, err := s.GetMessage(ctx, ids[0])
	require.NoError(t, err)
	m.Payload.Body = "edited"
	m.Edited.IsEdited = true
	require.NoError(t, s.UpdateMessage(ctx, m))

	r := &model.Reaction{ID: uuid.NewString(), MessageID: ids[0], GroupID: groupID, UserID: "bob", Reaction: "+1"}
	require.NoError(t, s.InsertReaction(ctx, r))
	r.ID = uuid.NewString()
	assert.ErrorIs(t, s.InsertReaction(ctx, r), store.ErrDuplicate)

	require.NoError(t, s.DeleteMessage(ctx, ids[0]))
	_, err = s.GetMessage(ctx, ids[0])
	assert.ErrorIs(t, err, store.ErrNotFound)
	reactions, err := s.ListReactions(ctx, ids[0])
	require.NoError(t, err)
	assert.Empty(t, reactions)

	require.NoError(t, s.DeleteGroupMessages(ctx, groupID))
	_, total, err = s.ListMessages(ctx, groupID, store.Page{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestUpdateMissingMessage(t *testing.T) {
	s := setupStore(t)
	m := &model.Message{ID: uuid.NewString(), GroupID: "g", SenderID: "alice",
		Payload: model.Payload{Type: model.MessageText}}
	assert.ErrorIs(t, s.UpdateMessage(context.Background(), m), store.ErrNotFound)
}

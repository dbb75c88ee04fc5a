package directory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/groupchat/pkg/apperr"
	"github.com/mahaj/groupchat/pkg/authz"
	"github.com/mahaj/groupchat/pkg/model"
	"github.com/mahaj/groupchat/pkg/store"
	"github.com/mahaj/groupchat/pkg/store/sqlstore"
)

type fixture struct {
	dir   *Directory
	db    *sqlstore.Store
	group model.Group
	admin model.Role
	def   model.Role
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := sqlstore.Open("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	groupID := uuid.NewString()
	admin := model.Role{ID: uuid.NewString(), GroupID: groupID, Name: "Admin", Permissions: model.AdministratorPermissions()}
	def := model.Role{ID: uuid.NewString(), GroupID: groupID, Name: "Member", Permissions: model.DefaultPermissions()}
	group := model.Group{ID: groupID, Name: "g", Type: model.GroupPrivate, OwnerID: "owner",
		Settings: model.GroupSettings{JoinMode: model.JoinOpen, MessagePermissions: model.MessagesModerators, DefaultRole: def.ID}}
	require.NoError(t, db.CreateGroup(context.Background(), store.GroupSeed{
		Group: group,
		Roles: []model.Role{admin, def},
		Owner: model.Membership{ID: uuid.NewString(), GroupID: groupID, UserID: "owner", Roles: []string{admin.ID},
			Settings: model.MemberSettings{Notifications: model.NotifyAll}},
		KeyStorage: model.KeyStorage{ID: uuid.NewString(), GroupID: groupID},
	}))
	return &fixture{dir: New(db, db), db: db, group: group, admin: admin, def: def}
}

func (f *fixture) join(t *testing.T, userID string, roles ...string) {
	t.Helper()
	require.NoError(t, f.db.InsertMembership(context.Background(), &model.Membership{
		ID: uuid.NewString(), GroupID: f.group.ID, UserID: userID, Roles: roles,
		Settings: model.MemberSettings{Notifications: model.NotifyAll},
	}))
}

func TestSubjectResolvesRoles(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.join(t, "bob", f.def.ID)

	s, err := f.dir.Subject(ctx, &f.group, "bob")
	require.NoError(t, err)
	require.NotNil(t, s.Membership)
	require.Len(t, s.Roles, 1)
	assert.Equal(t, f.def.ID, s.Roles[0].ID)

	s, err = f.dir.Subject(ctx, &f.group, "stranger")
	require.NoError(t, err)
	assert.Nil(t, s.Membership)
}

func TestAuthorizeGroup(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.join(t, "bob")

	_, _, err := f.dir.AuthorizeGroup(ctx, authz.ActionSendMessage, f.group.ID, "bob")
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))

	_, _, err = f.dir.AuthorizeGroup(ctx, authz.ActionView, f.group.ID, "stranger")
	assert.Equal(t, apperr.NotAMember, apperr.KindOf(err))

	_, _, err = f.dir.AuthorizeGroup(ctx, authz.ActionView, "missing", "bob")
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))

	g, _, err := f.dir.AuthorizeGroup(ctx, authz.ActionDeleteGroup, f.group.ID, "owner")
	require.NoError(t, err)
	assert.Equal(t, f.group.ID, g.ID)
}

func TestCan(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.join(t, "mod", f.admin.ID)
	f.join(t, "bob", f.def.ID)

	ok, err := f.dir.Can(ctx, authz.ActionBypassSlowMode, &f.group, "mod")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.dir.Can(ctx, authz.ActionBypassSlowMode, &f.group, "bob")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRequireMembers(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.join(t, "bob")

	assert.NoError(t, f.dir.RequireMembers(ctx, f.group.ID, []string{"owner", "bob"}))
	err := f.dir.RequireMembers(ctx, f.group.ID, []string{"bob", "carol"})
	assert.Equal(t, apperr.InvalidReference, apperr.KindOf(err))
	assert.Contains(t, apperr.MessageOf(err), "carol")
}

func TestGroupIDs(t *testing.T) {
	f := setup(t)
	f.join(t, "bob")
	ids, err := f.dir.GroupIDs(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{f.group.ID}, ids)
}

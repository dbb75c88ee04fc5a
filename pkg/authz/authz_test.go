package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"

	"github.com/mahaj/groupchat/pkg/apperr"
	"github.com/mahaj/groupchat/pkg/model"
)

func testGroup(perms model.MessagePermissions) *model.Group {
	return &model.Group{
		ID:      "g1",
		OwnerID: "owner",
		Settings: model.GroupSettings{
			JoinMode:           model.JoinOpen,
			MessagePermissions: perms,
			DefaultRole:        "default",
		},
	}
}

func member(userID string, roles ...model.Role) Subject {
	ids := make(datatypes.JSONSlice[string], 0, len(roles))
	for _, r := range roles {
		ids = append(ids, r.ID)
	}
	return Subject{
		UserID:     userID,
		Membership: &model.Membership{ID: "m-" + userID, GroupID: "g1", UserID: userID, Roles: ids},
		Roles:      roles,
	}
}

func role(id string, p model.Permissions) model.Role {
	return model.Role{ID: id, GroupID: "g1", Name: id, Permissions: p}
}

func TestOwnerAlwaysAllowed(t *testing.T) {
	g := testGroup(model.MessagesModerators)
	// Owner without membership or roles.
	owner := Subject{UserID: "owner"}
	for _, a := range []Action{
		ActionView, ActionSendMessage, ActionModifyMessage, ActionReact, ActionManageRoles,
		ActionInviteMember, ActionRemoveMember, ActionDeleteGroup, ActionBypassSlowMode,
	} {
		d := Evaluate(Request{Action: a, Actor: owner, Group: g, Author: "someone-else"})
		assert.True(t, d.Allowed, a.String())
		assert.True(t, d.Owner, a.String())
	}
}

func TestNonMemberIsDistinctFromForbidden(t *testing.T) {
	g := testGroup(model.MessagesAll)
	d := Evaluate(Request{Action: ActionView, Actor: Subject{UserID: "stranger"}, Group: g})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonNotMember, d.Reason)

	err := Check(Request{Action: ActionView, Actor: Subject{UserID: "stranger"}, Group: g})
	assert.Equal(t, apperr.NotAMember, apperr.KindOf(err))

	err = Check(Request{Action: ActionManageRoles, Actor: member("u"), Group: g})
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))
}

func TestMembershipOfAnotherGroupIsNotMembership(t *testing.T) {
	g := testGroup(model.MessagesAll)
	s := member("u")
	s.Membership.GroupID = "other"
	assert.Equal(t, ReasonNotMember, Evaluate(Request{Action: ActionView, Actor: s, Group: g}).Reason)
}

func TestSendMessage(t *testing.T) {
	sender := role("speaker", model.Permissions{SendMessages: true})

	assert.True(t, Evaluate(Request{Action: ActionSendMessage, Actor: member("u"), Group: testGroup(model.MessagesAll)}).Allowed)

	moderated := testGroup(model.MessagesModerators)
	assert.False(t, Evaluate(Request{Action: ActionSendMessage, Actor: member("u"), Group: moderated}).Allowed)
	assert.True(t, Evaluate(Request{Action: ActionSendMessage, Actor: member("u", sender), Group: moderated}).Allowed)
}

func TestAnyRoleGrants(t *testing.T) {
	g := testGroup(model.MessagesAll)
	plain := role("plain", model.Permissions{})
	kicker := role("kicker", model.Permissions{KickMembers: true})

	s := member("u", plain, kicker)
	assert.True(t, Evaluate(Request{Action: ActionInviteMember, Actor: s, Group: g}).Allowed)
	assert.True(t, Evaluate(Request{Action: ActionRemoveMember, Actor: s, Group: g}).Allowed)
	assert.False(t, Evaluate(Request{Action: ActionManageRoles, Actor: s, Group: g}).Allowed)
}

func TestRolesNotHeldAreIgnored(t *testing.T) {
	g := testGroup(model.MessagesAll)
	s := member("u")
	s.Roles = []model.Role{role("admin", model.AdministratorPermissions())}
	assert.False(t, Evaluate(Request{Action: ActionManageRoles, Actor: s, Group: g}).Allowed)
}

func TestModifyMessage(t *testing.T) {
	moderated := testGroup(model.MessagesModerators)
	speaker := role("speaker", model.Permissions{SendMessages: true})
	mod := role("mod", model.Permissions{ManageMessages: true})

	tests := []struct {
		name    string
		actor   Subject
		author  string
		allowed bool
	}{
		{"sender with send right", member("u", speaker), "u", true},
		{"demoted sender", member("u"), "u", false},
		{"role-less member on another's message", member("u"), "v", false},
		{"speaker on another's message", member("u", speaker), "v", false},
		{"moderator on another's message", member("u", mod), "v", true},
		{"owner on another's message", Subject{UserID: "owner"}, "v", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(Request{Action: ActionModifyMessage, Actor: tt.actor, Group: moderated, Author: tt.author})
			assert.Equal(t, tt.allowed, d.Allowed)
		})
	}
}

func TestDeleteGroupIsOwnerOnly(t *testing.T) {
	g := testGroup(model.MessagesAll)
	admin := role("admin", model.AdministratorPermissions())
	d := Evaluate(Request{Action: ActionDeleteGroup, Actor: member("u", admin), Group: g})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonOwnerOnly, d.Reason)
}

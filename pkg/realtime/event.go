// Package realtime fans lifecycle events out to websocket sessions.
//
// Events are addressed to rooms: one per group and one per user. Services
// publish through a Fanout; every gateway process runs a Hub that
// subscribes to the rooms its local sessions are in, so an event reaches
// every subscriber whichever instance it is connected to.
package realtime

import (
	"encoding/json"
	"strings"
)

// Server events.
const (
	EventMessageCreated      = "message.created"
	EventMessageUpdated      = "message.updated"
	EventMessageDeleted      = "message.deleted"
	EventReactionCreated     = "reaction.created"
	EventNotificationCreated = "notification.created"
	EventConnected           = "connected"
	EventJoinedGroup         = "joinedGroup"
	EventLeftGroup           = "leftGroup"
	EventError               = "error"
)

// Client requests.
const (
	RequestJoinGroup  = "joinGroup"
	RequestLeaveGroup = "leaveGroup"
)

const (
	groupPrefix = "group:"
	userPrefix  = "user:"
)

func GroupRoom(groupID string) string { return groupPrefix + groupID }
func UserRoom(userID string) string   { return userPrefix + userID }

// GroupOf returns the group id of a group room.
func GroupOf(room string) (string, bool) {
	if !strings.HasPrefix(room, groupPrefix) {
		return "", false
	}
	return strings.TrimPrefix(room, groupPrefix), true
}

// Event is the frame written to sessions and carried by the broker.
type Event struct {
	ID   string          `json:"id"`
	Name string          `json:"event"`
	Room string          `json:"room,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ErrorData is the payload of an error event.
type ErrorData struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// Request is a frame sent by a client.
type Request struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

func newEvent(id, name, room string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{ID: id, Name: name, Room: room, Data: data}, nil
}

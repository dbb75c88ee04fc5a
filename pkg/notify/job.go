package notify

import (
	"context"

	"github.com/mahaj/groupchat/pkg/model"
)

// Job asks for one notification to be created.
type Job struct {
	Key       string                    `json:"key"`
	Recipient string                    `json:"recipient"`
	Type      model.NotificationType    `json:"type"`
	Payload   model.NotificationPayload `json:"payload"`
}

// MentionKey identifies the mention notification of userID in messageID.
func MentionKey(messageID, userID string) string {
	return "mention:" + messageID + ":" + userID
}

// ReactionKey identifies the notification sent for a reaction.
func ReactionKey(reactionID string) string {
	return "reaction:" + reactionID
}

// Dispatcher hands jobs to a Handler, at least once each.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobs ...Job) error
}

// Handler materialises a job. An error asks for redelivery.
type Handler interface {
	Deliver(ctx context.Context, job Job) error
}

package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mahaj/groupchat/pkg/auth"
)

// Members answers the membership questions a gateway asks.
type Members interface {
	GroupIDs(ctx context.Context, userID string) ([]string, error)
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
}

// Gateway upgrades HTTP requests into hub sessions.
type Gateway struct {
	hub      *Hub
	verifier auth.Verifier
	members  Members
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// NewGateway builds a gateway. An empty origins list accepts any origin.
func NewGateway(hub *Hub, verifier auth.Verifier, members Members, origins []string, log *slog.Logger) *Gateway {
	return &Gateway{
		hub:      hub,
		verifier: verifier,
		members:  members,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				return slices.Contains(origins, r.Header.Get("Origin"))
			},
		},
	}
}

// ServeHTTP authenticates the token, upgrades the connection and subscribes
// the session to its personal room and every group it belongs to. A bad
// token still gets upgraded so the client receives an error event before
// the connection is closed.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, authErr := g.verifier.ValidateToken(auth.TokenFromRequest(r))

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	if authErr != nil {
		msg := "invalid token"
		switch {
		case errors.Is(authErr, auth.ErrMissingToken):
			msg = "missing token"
		case errors.Is(authErr, auth.ErrExpiredToken):
			msg = "token has expired"
		}
		g.log.Info("rejecting websocket session", "reason", msg, "remote", r.RemoteAddr)
		reject(conn, http.StatusUnauthorized, msg)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	groupIDs, err := g.members.GroupIDs(ctx, claims.UserID)
	if err != nil {
		g.log.Error("failed to list groups for session", "user", claims.UserID, "error", err)
		reject(conn, http.StatusInternalServerError, "failed to load memberships")
		return
	}

	client := newClient(g.hub, conn, g.members, claims.UserID, groupIDs, g.log)
	if err := g.register(ctx, client); err != nil {
		g.log.Error("failed to register session", "user", claims.UserID, "error", err)
		reject(conn, http.StatusServiceUnavailable, "failed to subscribe")
		return
	}
	client.reply(EventConnected, map[string]any{"userId": claims.UserID, "groups": groupIDs})

	go client.writePump()
	go client.readPump()
}

// register subscribes client through the hub. When it fails the client is
// unregistered too, since Run may have applied the registration after ctx
// expired.
func (g *Gateway) register(ctx context.Context, client *Client) error {
	err := g.hub.Register(ctx, client)
	if err != nil {
		g.hub.Unregister(client)
	}
	return err
}

// reject writes an error event and closes the connection with a policy
// violation close frame.
func reject(conn *websocket.Conn, status int, msg string) {
	defer conn.Close()
	deadline := time.Now().Add(writeWait)
	ev, err := newEvent("", EventError, "", ErrorData{Message: msg, Status: status})
	if err == nil {
		conn.SetWriteDeadline(deadline)
		_ = conn.WriteJSON(ev)
	}
	code := websocket.ClosePolicyViolation
	if status >= http.StatusInternalServerError {
		code = websocket.CloseInternalServerErr
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, msg), deadline)
}

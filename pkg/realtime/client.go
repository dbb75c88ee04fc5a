package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Time allowed for a joinGroup membership lookup.
	requestTimeout = 5 * time.Second
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub     *Hub
	members Members
	log     *slog.Logger

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound frames.
	send chan []byte
	done chan struct{}
	once sync.Once

	UserID string

	// Group rooms joined on registration.
	initial []string
	// Guarded by hub.mu.
	rooms map[string]bool
}

func newClient(h *Hub, conn *websocket.Conn, members Members, userID string, groupIDs []string, log *slog.Logger) *Client {
	c := &Client{
		hub:     h,
		members: members,
		log:     log,
		conn:    conn,
		send:    make(chan []byte, 256),
		done:    make(chan struct{}),
		UserID:  userID,
		rooms:   make(map[string]bool),
	}
	for _, id := range groupIDs {
		c.initial = append(c.initial, GroupRoom(id))
	}
	return c
}

// enqueue queues a frame without blocking. A client that cannot keep up is
// disconnected.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.log.Warn("send buffer full, closing session", "user", c.UserID)
		c.shutdown()
		return false
	}
}

func (c *Client) shutdown() {
	c.once.Do(func() { close(c.done) })
}

// reply writes a direct event to this session only.
func (c *Client) reply(name string, payload any) {
	ev, err := newEvent("", name, "", payload)
	if err != nil {
		c.log.Error("failed to encode reply", "event", name, "error", err)
		return
	}
	frame, _ := json.Marshal(ev)
	c.enqueue(frame)
}

func (c *Client) replyError(status int, msg string) {
	c.reply(EventError, ErrorData{Message: msg, Status: status})
}

// readPump pumps requests from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read failed", "user", c.UserID, "error", err)
			}
			return
		}

		var req Request
		if err := json.Unmarshal(message, &req); err != nil {
			c.replyError(http.StatusBadRequest, "malformed request")
			continue
		}
		c.handle(req)
	}
}

func (c *Client) handle(req Request) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	switch req.Event {
	case RequestJoinGroup:
		if req.Data == "" {
			c.replyError(http.StatusBadRequest, "group id is required")
			return
		}
		ok, err := c.members.IsMember(ctx, req.Data, c.UserID)
		if err != nil {
			c.log.Error("membership lookup failed", "group", req.Data, "user", c.UserID, "error", err)
			c.replyError(http.StatusInternalServerError, "failed to join group")
			return
		}
		if !ok {
			c.replyError(http.StatusForbidden, "you are not a member of this group")
			return
		}
		if err := c.hub.Join(ctx, c, GroupRoom(req.Data)); err != nil {
			c.log.Error("failed to join room", "group", req.Data, "user", c.UserID, "error", err)
			c.replyError(http.StatusInternalServerError, "failed to join group")
			return
		}
		c.reply(EventJoinedGroup, map[string]string{"groupId": req.Data})

	case RequestLeaveGroup:
		if err := c.hub.Leave(ctx, c, GroupRoom(req.Data)); err != nil {
			c.log.Error("failed to leave room", "group", req.Data, "user", c.UserID, "error", err)
			c.replyError(http.StatusInternalServerError, "failed to leave group")
			return
		}
		c.reply(EventLeftGroup, map[string]string{"groupId": req.Data})

	default:
		c.replyError(http.StatusBadRequest, "unknown event "+req.Event)
	}
}

// writePump pumps frames from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("websocket write failed", "user", c.UserID, "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

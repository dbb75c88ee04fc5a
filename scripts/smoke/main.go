// Command smoke drives a running API through an invite, join, mention and
// reaction round trip. The API must run with DEV_LOGIN enabled.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/mahaj/groupchat/pkg/api"
	"github.com/mahaj/groupchat/pkg/group"
	"github.com/mahaj/groupchat/pkg/message"
	"github.com/mahaj/groupchat/pkg/model"
	"github.com/mahaj/groupchat/pkg/notify"
)

type client struct {
	addr  string
	token string
}

func (c *client) call(method, path string, body, out any) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			log.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.addr+path, r)
	if err != nil {
		log.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		log.Fatalf("%s %s: %d %s", method, path, resp.StatusCode, raw)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			log.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
}

func login(addr, userID string) *client {
	c := &client{addr: addr}
	var tok api.TokenResponse
	c.call(http.MethodPost, "/auth/token", api.TokenRequest{UserID: userID}, &tok)
	c.token = tok.Token
	return c
}

func main() {
	addr := flag.String("addr", "http://localhost:8080", "api base url")
	flag.Parse()

	alice := login(*addr, "smoke-alice")
	bob := login(*addr, "smoke-bob")
	log.Println("logged in as smoke-alice and smoke-bob")

	var g model.Group
	alice.call(http.MethodPost, "/groups", group.CreateInput{Name: "smoke test", JoinMode: model.JoinInvite}, &g)
	log.Printf("created group %s", g.ID)

	var inv group.InviteResult
	alice.call(http.MethodPost, "/groups/"+g.ID+"/invite", group.InviteInput{UserID: "smoke-bob"}, &inv)
	if inv.Notification == nil {
		log.Fatal("invite produced no notification; check smoke-bob's preferences")
	}
	bob.call(http.MethodPost, "/groups/"+g.ID+"/join", api.JoinRequest{NotificationID: inv.Notification.ID}, nil)
	log.Println("smoke-bob joined through the invite")

	body := "hi @smoke-bob"
	var m model.Message
	alice.call(http.MethodPost, "/groups/"+g.ID+"/messages", message.Input{
		Body: body,
		Format: model.Format{Mentions: []model.MentionSpan{
			{Start: 3, End: len(body), UserID: "smoke-bob"},
		}},
	}, &m)
	bob.call(http.MethodPost, "/messages/"+m.ID+"/reactions", api.ReactionRequest{Reaction: "👍"}, nil)

	var page message.Page
	bob.call(http.MethodGet, "/groups/"+g.ID+"/messages?limit=10", nil, &page)
	var notes notify.ListResult
	bob.call(http.MethodGet, "/users/me/notifications", nil, &notes)
	fmt.Printf("messages: %d, smoke-bob notifications: %d\n", page.Total, notes.Total)

	alice.call(http.MethodDelete, "/groups/"+g.ID, nil, nil)
	log.Println("smoke test passed")
}

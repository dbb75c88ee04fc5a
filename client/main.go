// Command client is an interactive terminal client. It prints every event
// the gateway pushes and posts typed lines as messages to the current group.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mahaj/groupchat/pkg/api"
	"github.com/mahaj/groupchat/pkg/message"
	"github.com/mahaj/groupchat/pkg/model"
	"github.com/mahaj/groupchat/pkg/realtime"
)

func login(apiAddr, userID string) (string, error) {
	reqBody, _ := json.Marshal(api.TokenRequest{UserID: userID})
	resp, err := http.Post(apiAddr+"/auth/token", "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("login failed: %s", string(body))
	}

	var loginResp api.TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return "", err
	}
	return loginResp.Token, nil
}

func post(apiAddr, token, groupID, text string) error {
	body, _ := json.Marshal(message.Input{Body: text})
	req, err := http.NewRequest(http.MethodPost, apiAddr+"/groups/"+groupID+"/messages", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("send failed: %s", strings.TrimSpace(string(b)))
	}
	return nil
}

func render(ev realtime.Event) {
	switch ev.Name {
	case realtime.EventMessageCreated, realtime.EventMessageUpdated:
		var m model.Message
		if err := json.Unmarshal(ev.Data, &m); err == nil {
			mark := ""
			if m.Edited.IsEdited {
				mark = " (edited)"
			}
			fmt.Printf("\r[%s] %s: %s%s\n> ", m.GroupID, m.SenderID, m.Payload.Body, mark)
			return
		}
	case realtime.EventNotificationCreated:
		var n model.Notification
		if err := json.Unmarshal(ev.Data, &n); err == nil {
			fmt.Printf("\r* %s from %s: %s\n> ", n.Type, n.Payload.RequesterID, n.Payload.Content)
			return
		}
	}
	fmt.Printf("\r%s %s\n> ", ev.Name, ev.Data)
}

func main() {
	serverAddr := flag.String("addr", "localhost:8081", "gateway service address")
	apiAddr := flag.String("api", "http://localhost:8080", "api service address")
	userID := flag.String("user", "user1", "user id")
	groupID := flag.String("group", "", "group to post typed lines to")
	flag.Parse()

	log.Printf("Logging in as %s...", *userID)
	token, err := login(*apiAddr, *userID)
	if err != nil {
		log.Fatal("Login failed:", err)
	}

	u := url.URL{Scheme: "ws", Host: *serverAddr, Path: "/ws"}
	log.Printf("connecting to %s", u.String())

	header := http.Header{}
	header.Add("Authorization", "Bearer "+token)
	c, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer c.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var ev realtime.Event
			if err := c.ReadJSON(&ev); err != nil {
				log.Println("read:", err)
				return
			}
			render(ev)
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	// /join <id> and /leave <id> switch rooms; /group <id> picks where
	// plain lines are posted.
	current := *groupID
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Print("> ")
		for scanner.Scan() {
			text := strings.TrimSpace(scanner.Text())
			cmd, arg, _ := strings.Cut(text, " ")
			switch {
			case text == "":
			case text == "/quit":
				interrupt <- os.Interrupt
				return
			case cmd == "/join" || cmd == "/leave":
				event := realtime.RequestJoinGroup
				if cmd == "/leave" {
					event = realtime.RequestLeaveGroup
				}
				if err := c.WriteJSON(realtime.Request{Event: event, Data: arg}); err != nil {
					log.Println("write:", err)
					return
				}
			case cmd == "/group":
				current = arg
			case current == "":
				fmt.Println("no group selected, use /group <id>")
			default:
				if err := post(*apiAddr, token, current, text); err != nil {
					fmt.Println(err)
				}
			}
			fmt.Print("> ")
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("interrupt")

			// Cleanly close the connection by sending a close message and then
			// waiting (with timeout) for the server to close the connection.
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("write close:", err)
				return
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}

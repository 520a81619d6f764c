package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirechat-rooms/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	base := flag.String("addr", "http://localhost:8080", "server base URL")
	user := flag.String("user", "tester", "username to register and log in as")
	password := flag.String("password", "tester-pass", "password for the user")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	creds := map[string]string{"username": *user, "password": *password}
	if status, err := post(ctx, *base+"/api/register", "", creds, nil); err != nil {
		return fmt.Errorf("register: %w", err)
	} else if status != http.StatusCreated && status != http.StatusConflict {
		return fmt.Errorf("register: unexpected status %d", status)
	}

	var login struct {
		Token string `json:"token"`
	}
	if status, err := post(ctx, *base+"/api/login", "", creds, &login); err != nil {
		return fmt.Errorf("login: %w", err)
	} else if status != http.StatusOK {
		return fmt.Errorf("login: unexpected status %d", status)
	}
	defer func() {
		if _, err := post(context.Background(), *base+"/api/logout", login.Token, nil, nil); err != nil {
			log.Printf("logout: %v", err)
		}
	}()

	wsURL := strings.Replace(*base, "http", "ws", 1) + "/ws?token=" + login.Token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	payload, err := json.Marshal(proto.SendMessageData{Username: *user, Message: *text})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Event: proto.InboundSendMessage, Data: payload}); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	for {
		var outbound struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		fmt.Printf("Received %s: %s\n", outbound.Event, outbound.Data)

		switch outbound.Event {
		case "receive_message":
			var msg proto.MessagePayload
			if err := json.Unmarshal(outbound.Data, &msg); err == nil && msg.Username == *user && msg.Message == *text {
				fmt.Println("Smoke test passed")
				return nil
			}
		case "error":
			return errors.New("server returned an error event")
		}
	}
}

func post(ctx context.Context, url, token string, body, out any) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

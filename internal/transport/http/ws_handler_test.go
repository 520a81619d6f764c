package http

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-rooms/internal/core"
	"github.com/vovakirdan/wirechat-rooms/internal/proto"
)

func TestWebSocketRejectsBadTokens(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "alice")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	base := strings.Replace(env.ts.URL, "http", "ws", 1) + "/ws"

	_, resp, err := websocket.Dial(ctx, base, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	env.dial(t, token)
	_, resp, err = websocket.Dial(ctx, base+"?token="+token, nil)
	require.Error(t, err, "one connection per session")
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestWebSocketBearerHeader(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "alice")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, strings.Replace(env.ts.URL, "http", "ws", 1)+"/ws", &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token}},
	})
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	env.waitMembers(t, core.UserRoom("alice"), 1)
}

func TestWebSocketUpgradeDeliversEvents(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, env.signup(t, "alice"))
	env.waitMembers(t, core.CommonRoom, 1)

	alice, err := env.store.GetUserByUsername(context.Background(), "alice")
	require.NoError(t, err)
	sess, ok := env.registry.Session(alice.ID)
	require.True(t, ok)
	assert.NotEmpty(t, sess.ConnID())

	env.router.Publish(core.CommonRoom, &core.Event{
		Name: core.EventStatus,
		Data: proto.StatusPayload{Msg: "welcome"},
	})

	var status proto.StatusPayload
	require.Equal(t, core.EventStatus, readEvent(t, conn, &status))
	assert.Equal(t, "welcome", status.Msg)
}

func TestChannelMessageScenario(t *testing.T) {
	env := newTestEnv(t)
	alice := env.dial(t, env.signup(t, "alice"))
	bob := env.dial(t, env.signup(t, "bob"))
	env.waitMembers(t, core.CommonRoom, 2)

	send(t, alice, proto.InboundSendMessage, proto.SendMessageData{Username: "alice", Message: "hello"})

	for _, conn := range []*websocket.Conn{alice, bob} {
		var msg proto.MessagePayload
		require.Equal(t, core.EventReceiveMessage, readEvent(t, conn, &msg))
		assert.Equal(t, "alice", msg.Username)
		assert.Equal(t, "hello", msg.Message)
	}

	msgs, err := env.store.ListChannel(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Body)
	assert.Equal(t, "alice", msgs[0].Username)
}

func TestPrivateMessageScenario(t *testing.T) {
	env := newTestEnv(t)
	alice := env.dial(t, env.signup(t, "alice"))
	bob := env.dial(t, env.signup(t, "bob"))
	env.waitMembers(t, core.CommonRoom, 2)

	var status proto.StatusPayload
	send(t, alice, proto.InboundJoinPrivate, proto.PrivatePairData{Sender: "alice", Recipient: "bob"})
	require.Equal(t, core.EventStatus, readEvent(t, alice, &status))
	assert.Equal(t, "alice has joined the private chat.", status.Msg)
	aliceRoom := status.Room

	send(t, bob, proto.InboundJoinPrivate, proto.PrivatePairData{Sender: "bob", Recipient: "alice"})
	require.Equal(t, core.EventStatus, readEvent(t, bob, &status))
	assert.Equal(t, aliceRoom, status.Room, "both sides resolve the same room")
	require.Equal(t, core.EventStatus, readEvent(t, alice, &status))
	assert.Equal(t, "bob has joined the private chat.", status.Msg)

	send(t, alice, proto.InboundSendPrivateMessage, proto.PrivateMessageData{Sender: "alice", Recipient: "bob", Message: "lunch?"})

	var pm proto.PrivateMessagePayload
	require.Equal(t, core.EventReceivePrivateMessage, readEvent(t, bob, &pm))
	assert.Equal(t, "alice", pm.Sender)
	assert.Equal(t, "lunch?", pm.Message)
	require.Equal(t, core.EventPrivateMessageRequest, readEvent(t, bob, &pm))
	assert.Equal(t, "alice", pm.Sender)
	require.Equal(t, core.EventReceivePrivateMessage, readEvent(t, alice, &pm))
}

func TestWebSocketErrorEvents(t *testing.T) {
	env := newTestEnv(t)
	alice := env.dial(t, env.signup(t, "alice"))
	env.waitMembers(t, core.CommonRoom, 1)

	var payload proto.ErrorPayload
	send(t, alice, proto.InboundSendMessage, proto.SendMessageData{Username: "bob", Message: "spoof"})
	require.Equal(t, core.EventError, readEvent(t, alice, &payload))
	assert.Equal(t, core.ErrCodeForbidden, payload.Code)

	send(t, alice, proto.InboundSendMessage, proto.SendMessageData{Username: "alice"})
	require.Equal(t, core.EventError, readEvent(t, alice, &payload))
	assert.Equal(t, core.ErrCodeValidation, payload.Code)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, alice.Write(ctx, websocket.MessageText, []byte("{not json")))
	require.Equal(t, core.EventError, readEvent(t, alice, &payload))
	assert.Equal(t, core.ErrCodeBadRequest, payload.Code)

	// Connection still usable.
	send(t, alice, proto.InboundSendMessage, proto.SendMessageData{Username: "alice", Message: "still here"})
	require.Equal(t, core.EventReceiveMessage, readEvent(t, alice, nil))
}

func TestDisconnectReleasesSession(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, env.signup(t, "alice"))
	env.waitMembers(t, core.CommonRoom, 1)

	conn.Close(websocket.StatusNormalClosure, "bye")

	require.Eventually(t, func() bool { return env.registry.Online() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, env.router.Members(core.CommonRoom))
	assert.Equal(t, 0, env.router.Members(core.UserRoom("alice")))

	user, err := env.store.GetUserByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, user.ActiveSession)

	env.login(t, "alice", "password1")
}

func TestWebSocketIdleExpiry(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, env.signup(t, "alice"))
	env.waitMembers(t, core.CommonRoom, 1)

	env.clock.Advance(16 * time.Minute)
	send(t, conn, proto.InboundJoin, proto.RoomData{Room: "lobby"})

	var payload proto.ErrorPayload
	require.Equal(t, core.EventError, readEvent(t, conn, &payload))
	assert.Equal(t, core.ErrCodeSessionExpired, payload.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
	assert.Equal(t, 0, env.router.Members("lobby"))

	env.login(t, "alice", "password1")
}

func TestLoginExpiresIdleSocket(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, env.signup(t, "alice"))
	env.waitMembers(t, core.CommonRoom, 1)

	env.clock.Advance(16 * time.Minute)
	token := env.login(t, "alice", "password1")

	var payload proto.ErrorPayload
	require.Equal(t, core.EventError, readEvent(t, conn, &payload))
	assert.Equal(t, core.ErrCodeSessionExpired, payload.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))

	// Tearing down the old socket leaves the new session alone.
	resp := env.do(t, http.MethodGet, "/api/messages", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	env.dial(t, token)
	env.waitMembers(t, core.CommonRoom, 1)
}

func TestLogoutClosesSocket(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "alice")
	conn := env.dial(t, token)
	env.waitMembers(t, core.CommonRoom, 1)

	resp := env.do(t, http.MethodPost, "/api/logout", token, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-rooms/internal/auth"
	"github.com/vovakirdan/wirechat-rooms/internal/blob"
	"github.com/vovakirdan/wirechat-rooms/internal/chat"
	"github.com/vovakirdan/wirechat-rooms/internal/config"
	"github.com/vovakirdan/wirechat-rooms/internal/core"
	"github.com/vovakirdan/wirechat-rooms/internal/presence"
	"github.com/vovakirdan/wirechat-rooms/internal/proto"
	"github.com/vovakirdan/wirechat-rooms/internal/service/session"
	"github.com/vovakirdan/wirechat-rooms/internal/store/sqlite"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	ts       *httptest.Server
	server   *Server
	store    *sqlite.SQLiteStore
	router   *core.Router
	registry *presence.Registry
	clock    *testClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)

	logger := zerolog.Nop()
	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.UploadDir = t.TempDir()
	cfg.MaxUploadBytes = 1 << 20

	clock := &testClock{now: time.Now()}
	router := core.NewRouter(&logger)
	registry := presence.NewRegistry(st, router, presence.Config{
		IdleTimeout: cfg.SessionIdleTimeout,
		EventBuffer: cfg.EventBuffer,
		Now:         clock.Now,
	}, &logger)
	authSvc := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	})
	blobs, err := blob.NewDirStore(cfg.UploadDir, "/uploads", &logger)
	require.NoError(t, err)

	server := NewServer(Deps{
		Sessions:   session.New(authSvc, registry, &logger),
		Auth:       authSvc,
		Registry:   registry,
		Dispatcher: chat.NewDispatcher(st, st, router, chat.Options{MaxMessageLength: cfg.MaxMessageLength}, &logger),
		Store:      st,
		Blobs:      blobs,
	}, &cfg, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(func() {
		ts.Close()
		_ = st.Close()
	})

	return &testEnv{ts: ts, server: server, store: st, router: router, registry: registry, clock: clock}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) register(t *testing.T, username, password string) {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/register", "", CredentialsRequest{Username: username, Password: password})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func (e *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/login", "", CredentialsRequest{Username: username, Password: password})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out AuthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

// signup registers and logs in username.
func (e *testEnv) signup(t *testing.T, username string) string {
	t.Helper()
	e.register(t, username, "password1")
	return e.login(t, username, "password1")
}

func (e *testEnv) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

// waitMembers blocks until room has n members; the server joins default
// rooms right after the handshake.
func (e *testEnv) waitMembers(t *testing.T, room string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return e.router.Members(room) == n }, 2*time.Second, 5*time.Millisecond)
}

type wireEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, proto.Inbound{Event: event, Data: raw}))
}

func readEvent(t *testing.T, conn *websocket.Conn, into any) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var ev wireEvent
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	if into != nil {
		require.NoError(t, json.Unmarshal(ev.Data, into))
	}
	return ev.Event
}

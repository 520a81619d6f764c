package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-rooms/internal/core"
	"github.com/vovakirdan/wirechat-rooms/internal/proto"
)

func decodeError(t *testing.T, resp *http.Response) ErrorResponse {
	t.Helper()
	var out ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/register", "", CredentialsRequest{Username: "a", Password: "password1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, core.ErrCodeValidation, decodeError(t, resp).Code)

	env.register(t, "alice", "password1")
	resp = env.do(t, http.MethodPost, "/api/register", "", CredentialsRequest{Username: "alice", Password: "password1"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/register", "", map[string]string{"username": "bob"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLoginWhileLoggedInIsRejected(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "alice")

	resp := env.do(t, http.MethodPost, "/api/login", "", CredentialsRequest{Username: "alice", Password: "password1"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, core.ErrCodeAlreadyLoggedIn, decodeError(t, resp).Code)

	resp = env.do(t, http.MethodPost, "/api/login", "", CredentialsRequest{Username: "alice", Password: "wrong-one"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/logout", token, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// The old token died with its session.
	resp = env.do(t, http.MethodGet, "/api/messages", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	env.login(t, "alice", "password1")
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/messages", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/messages", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIdleSessionExpires(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "alice")

	env.clock.Advance(10 * time.Minute)
	resp := env.do(t, http.MethodGet, "/api/messages", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	env.clock.Advance(16 * time.Minute)
	resp = env.do(t, http.MethodGet, "/api/messages", token, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, core.ErrCodeSessionExpired, decodeError(t, resp).Code)

	// Expiry released the session, so logging in works again.
	env.login(t, "alice", "password1")
}

func TestLoginAfterIdleExpiryWithoutOldToken(t *testing.T) {
	env := newTestEnv(t)
	stale := env.signup(t, "alice")

	env.clock.Advance(16 * time.Minute)
	token := env.login(t, "alice", "password1")

	resp := env.do(t, http.MethodGet, "/api/messages", stale, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = env.do(t, http.MethodGet, "/api/messages", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoginAfterIdlePersistedToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "alice", "password1")

	// A token left behind by a previous process, with nobody reattaching.
	alice, err := env.store.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, env.store.ClaimSession(ctx, alice.ID, "left-over", env.clock.Now()))

	resp := env.do(t, http.MethodPost, "/api/login", "", CredentialsRequest{Username: "alice", Password: "password1"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	env.clock.Advance(16 * time.Minute)
	env.login(t, "alice", "password1")
}

func TestHistoryMarksRead(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signup(t, "alice")
	bobToken := env.signup(t, "bob")

	alice, err := env.store.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	bob, err := env.store.GetUserByUsername(ctx, "bob")
	require.NoError(t, err)

	_, err = env.store.AppendChannel(ctx, alice.ID, "morning", nil)
	require.NoError(t, err)
	_, err = env.store.AppendPrivate(ctx, alice.ID, bob.ID, "psst", nil)
	require.NoError(t, err)

	resp := env.do(t, http.MethodGet, "/api/messages", bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var channel []proto.MessagePayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&channel))
	require.Len(t, channel, 1)
	assert.Equal(t, "alice", channel[0].Username)
	assert.Equal(t, "morning", channel[0].Message)

	resp = env.do(t, http.MethodGet, "/api/private/alice", bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var private []proto.PrivateMessagePayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&private))
	require.Len(t, private, 1)
	assert.Equal(t, "psst", private[0].Message)
	assert.Equal(t, "bob", private[0].Recipient)

	msgs, err := env.store.ListChannel(ctx)
	require.NoError(t, err)
	assert.NotNil(t, msgs[0].ReadAt)
	pms, err := env.store.ListPrivate(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.NotNil(t, pms[0].ReadAt)

	resp = env.do(t, http.MethodGet, "/api/private/nobody", bobToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func upload(t *testing.T, env *testEnv, token, filename string, content []byte) *http.Response {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, env.ts.URL+"/api/upload", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := env.ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestUpload(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "alice")

	resp := upload(t, env, token, "Cat.PNG", []byte("png-bytes"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out UploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "image", out.Kind)

	resp = env.do(t, http.MethodGet, out.URL, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	resp = upload(t, env, token, "tool.exe", []byte("MZ"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, core.ErrCodeValidation, decodeError(t, resp).Code)
}

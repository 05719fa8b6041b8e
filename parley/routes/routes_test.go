package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/parley/config"
	"parley/parley/services/feed"
	"parley/parley/sources/psql/psqltest"
	"parley/parley/utils/types"
)

type gateway struct {
	srv *httptest.Server
	hub *feed.Hub
}

func newGateway(t *testing.T, mutate func(*config.Config)) *gateway {
	t.Helper()
	cfg := config.Config{
		JWTSecret:   "test-secret",
		AllowGuests: true,
		GuestUserID: "guest",
		PublicURL:   "http://gateway.test",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	hub := feed.NewHub()
	router, err := Gateway(cfg, psqltest.Open(t), hub)
	require.NoError(t, err)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &gateway{srv: srv, hub: hub}
}

func (g *gateway) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, g.srv.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := g.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (g *gateway) devLogin(t *testing.T, email string) string {
	t.Helper()
	var tok types.TokenResponse
	require.Equal(t, http.StatusOK, g.do(t, http.MethodPost, "/auth/token", "", types.DevLoginRequest{Email: email}, &tok))
	require.NotEmpty(t, tok.Token)
	return tok.Token
}

func TestHealth(t *testing.T) {
	g := newGateway(t, nil)
	var body map[string]string
	assert.Equal(t, http.StatusOK, g.do(t, http.MethodGet, "/health", "", nil, &body))
	assert.Equal(t, "ok", body["status"])
}

func TestGuestConversationFlow(t *testing.T) {
	g := newGateway(t, nil)

	var created types.CreateConversationResponse
	require.Equal(t, http.StatusCreated, g.do(t, http.MethodPost, "/conversations", "", types.CreateConversationRequest{UserID: "guest"}, &created))
	require.NotEmpty(t, created.ID)

	for _, text := range []string{"hello", "hi there"} {
		role := types.RoleUser
		if text == "hi there" {
			role = types.RoleAI
		}
		var stored types.Message
		status := g.do(t, http.MethodPost, "/messages", "", types.Message{ConversationID: created.ID, UserID: "guest", Role: role, Message: text}, &stored)
		require.Equal(t, http.StatusCreated, status)
		assert.NotEmpty(t, stored.ID)
	}

	var history []types.Message
	require.Equal(t, http.StatusOK, g.do(t, http.MethodGet, "/conversations/"+created.ID+"/messages", "", nil, &history))
	require.Len(t, history, 2)
	assert.Equal(t, "hello", history[0].Message)
	assert.Equal(t, "hi there", history[1].Message)
}

func TestMessageErrors(t *testing.T) {
	g := newGateway(t, nil)
	var created types.CreateConversationResponse
	require.Equal(t, http.StatusCreated, g.do(t, http.MethodPost, "/conversations", "", types.CreateConversationRequest{UserID: "guest"}, &created))

	var e types.ErrorResponse
	status := g.do(t, http.MethodPost, "/messages", "", types.Message{ConversationID: created.ID, UserID: "guest", Role: types.RoleUser}, &e)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation", e.Code)

	status = g.do(t, http.MethodPost, "/messages", "", types.Message{ConversationID: "missing", UserID: "guest", Role: types.RoleUser, Message: "x"}, &e)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", e.Code)

	status = g.do(t, http.MethodPost, "/messages", "", types.Message{ConversationID: created.ID, UserID: "someone", Role: types.RoleUser, Message: "x"}, &e)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", e.Code)

	status = g.do(t, http.MethodPost, "/conversations", "", types.CreateConversationRequest{}, &e)
	assert.Equal(t, http.StatusBadRequest, status)

	var history []types.Message
	require.Equal(t, http.StatusOK, g.do(t, http.MethodGet, "/conversations/"+created.ID+"/messages", "", nil, &history))
	assert.Empty(t, history)
}

func TestUserConversationsArePrivate(t *testing.T) {
	g := newGateway(t, func(c *config.Config) { c.DevLogin = true })
	alice := g.devLogin(t, "alice@example.com")
	bob := g.devLogin(t, "bob@example.com")

	var me types.Identity
	require.Equal(t, http.StatusOK, g.do(t, http.MethodGet, "/auth/me", alice, nil, &me))

	var created types.CreateConversationResponse
	require.Equal(t, http.StatusCreated, g.do(t, http.MethodPost, "/conversations", alice, types.CreateConversationRequest{UserID: me.ID}, &created))

	path := "/conversations/" + created.ID + "/messages"
	assert.Equal(t, http.StatusOK, g.do(t, http.MethodGet, path, alice, nil, nil))
	assert.Equal(t, http.StatusNotFound, g.do(t, http.MethodGet, path, bob, nil, nil))
	assert.Equal(t, http.StatusNotFound, g.do(t, http.MethodGet, path, "", nil, nil))

	// the realtime feed applies the same check before upgrading
	_, err := feed.NewRemote(g.srv.URL, func() string { return bob }).Subscribe(context.Background(), created.ID)
	assert.Error(t, err)
}

func TestDevLoginDisabled(t *testing.T) {
	g := newGateway(t, nil)
	var e types.ErrorResponse
	assert.Equal(t, http.StatusForbidden, g.do(t, http.MethodPost, "/auth/token", "", types.DevLoginRequest{Email: "a@example.com"}, &e))
}

func TestGuestsDisabled(t *testing.T) {
	g := newGateway(t, func(c *config.Config) { c.AllowGuests = false })
	var e types.ErrorResponse
	assert.Equal(t, http.StatusUnauthorized, g.do(t, http.MethodPost, "/conversations", "", types.CreateConversationRequest{UserID: "guest"}, &e))
	assert.Equal(t, "unauthorized", e.Code)
}

func fakeProvider(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "good-code", r.Form.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sub":"123","email":"ada@example.com","name":"Ada"}`))
	})
	return httptest.NewServer(mux)
}

func TestOAuthSignInAndLogout(t *testing.T) {
	provider := fakeProvider(t)
	defer provider.Close()
	g := newGateway(t, func(c *config.Config) {
		c.OAuthClientID = "cid"
		c.OAuthClientSecret = "secret"
		c.OAuthAuthURL = provider.URL + "/authorize"
		c.OAuthTokenURL = provider.URL + "/token"
		c.OAuthUserInfoURL = provider.URL + "/userinfo"
	})
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}

	redirect := "http://127.0.0.1:4567/callback"
	resp, err := client.Get(g.srv.URL + "/auth/login?redirect_to=" + url.QueryEscape(redirect))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	consent, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(consent.String(), provider.URL+"/authorize"))
	assert.Equal(t, "http://gateway.test/auth/callback", consent.Query().Get("redirect_uri"))
	state := consent.Query().Get("state")
	require.NotEmpty(t, state)

	resp, err = client.Get(g.srv.URL + "/auth/callback?code=good-code&state=" + url.QueryEscape(state))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	back, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:4567", back.Host)
	token := back.Query().Get("token")
	require.NotEmpty(t, token)

	var me types.Identity
	require.Equal(t, http.StatusOK, g.do(t, http.MethodGet, "/auth/me", token, nil, &me))
	assert.Equal(t, "ada@example.com", me.Email)
	assert.Equal(t, "Ada", me.Name)

	assert.Equal(t, http.StatusNoContent, g.do(t, http.MethodPost, "/auth/logout", token, nil, nil))
	assert.Equal(t, http.StatusUnauthorized, g.do(t, http.MethodGet, "/auth/me", token, nil, nil))
}

func TestOAuthRejectsForeignRedirect(t *testing.T) {
	g := newGateway(t, func(c *config.Config) { c.OAuthClientID = "cid" })
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}

	resp, err := client.Get(g.srv.URL + "/auth/login?redirect_to=" + url.QueryEscape("https://evil.example/steal"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = client.Get(g.srv.URL + "/auth/callback?code=x&state=forged")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRealtimeDeliversRESTInserts(t *testing.T) {
	g := newGateway(t, nil)
	var a, b types.CreateConversationResponse
	require.Equal(t, http.StatusCreated, g.do(t, http.MethodPost, "/conversations", "", types.CreateConversationRequest{UserID: "guest"}, &a))
	require.Equal(t, http.StatusCreated, g.do(t, http.MethodPost, "/conversations", "", types.CreateConversationRequest{UserID: "guest"}, &b))

	sub, err := feed.NewRemote(g.srv.URL, nil).Subscribe(context.Background(), a.ID)
	require.NoError(t, err)
	defer sub.Close()
	require.Eventually(t, func() bool { return g.hub.Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	post := func(conversationID, text string) {
		msg := types.Message{ConversationID: conversationID, UserID: "guest", Role: types.RoleUser, Message: text, ClientNonce: text}
		require.Equal(t, http.StatusCreated, g.do(t, http.MethodPost, "/messages", "", msg, nil))
	}
	post(b.ID, "elsewhere")
	post(a.ID, "here")

	select {
	case msg := <-sub.Events():
		assert.Equal(t, "here", msg.Message)
		assert.Equal(t, "here", msg.ClientNonce)
		assert.NotEmpty(t, msg.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no realtime event")
	}
}

func TestRealtimeRequiresConversation(t *testing.T) {
	g := newGateway(t, nil)
	var e types.ErrorResponse
	assert.Equal(t, http.StatusBadRequest, g.do(t, http.MethodGet, "/realtime/ws", "", nil, &e))
	assert.Equal(t, http.StatusNotFound, g.do(t, http.MethodGet, "/realtime/ws?conversation_id=missing", "", nil, &e))
}

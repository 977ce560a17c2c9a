package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/example/jwtauth/internal/clock"
	cfg "github.com/example/jwtauth/internal/config"
	"github.com/example/jwtauth/internal/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	clientID     = "my_client_username"
	clientSecret = "my_client_password"
)

type testServer struct {
	app     *App
	clock   *clock.Fake
	handler http.Handler
}

func testConfig() *cfg.Config {
	return &cfg.Config{
		Port:           "8080",
		DBAdapter:      "memory",
		LogLevel:       "info",
		JwtSecret:      "foobar",
		TokenTTL:       12 * time.Hour,
		ResourceID:     "my_resource_id",
		RequiredScope:  "foobar_scope",
		AllowedOrigins: []string{"*"},
	}
}

func newTestServer(t *testing.T, c *cfg.Config) *testServer {
	t.Helper()
	reg := credentials.DemoRegistry()
	reg.Clients = append(reg.Clients, credentials.ClientApplication{
		ID:          "other",
		Secret:      "other-secret",
		GrantTypes:  []string{credentials.GrantPassword},
		Scopes:      []string{"other_scope"},
		ResourceIDs: []string{"my_resource_id"},
	})
	clk := clock.NewFake(time.Unix(1700000000, 0))
	app, err := newApp(c, NewMemoryDB(reg), clk, zap.NewNop().Sugar())
	require.NoError(t, err)
	return &testServer{app: app, clock: clk, handler: app.routes()}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func passwordGrant(user, password, scope string) url.Values {
	return url.Values{
		"grant_type": {"password"},
		"username":   {user},
		"password":   {password},
		"client_id":  {clientID},
		"scope":      {scope},
	}
}

func tokenRequest(form url.Values, id, secret string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if id != "" {
		req.SetBasicAuth(id, secret)
	}
	return req
}

func foobarRequest(accessToken string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/foobar", nil)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func (s *testServer) issue(t *testing.T) string {
	t.Helper()
	rec := s.do(tokenRequest(passwordGrant("hdampf", "wert123$", "foobar_scope"), clientID, clientSecret))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody(t, rec)["access_token"].(string)
}

func TestFoobarWithoutToken(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := s.do(foobarRequest(""))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "no_token", decodeBody(t, rec)["error"])
	assert.Equal(t, `Bearer realm="my_resource_id"`, rec.Header().Get("WWW-Authenticate"))
}

func TestTokenWithoutClientAuth(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := s.do(tokenRequest(passwordGrant("hdampf", "wert123$", "foobar_scope"), "", ""))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_client", decodeBody(t, rec)["error"])
	assert.Equal(t, `Basic realm="oauth2/client"`, rec.Header().Get("WWW-Authenticate"))
}

func TestTokenWithoutParameters(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := s.do(tokenRequest(url.Values{}, clientID, clientSecret))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeBody(t, rec)["error"])
}

func TestTokenMissingUsername(t *testing.T) {
	s := newTestServer(t, testConfig())
	form := passwordGrant("hdampf", "wert123$", "foobar_scope")
	form.Del("username")

	rec := s.do(tokenRequest(form, clientID, clientSecret))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeBody(t, rec)["error"])
}

func TestTokenBadCredentials(t *testing.T) {
	s := newTestServer(t, testConfig())

	tests := []struct {
		name   string
		req    *http.Request
		status int
		code   string
	}{
		{"wrong client secret", tokenRequest(passwordGrant("hdampf", "wert123$", "foobar_scope"), clientID, "nope"), http.StatusUnauthorized, "invalid_client"},
		{"unknown client", tokenRequest(passwordGrant("hdampf", "wert123$", "foobar_scope"), "ghost", "nope"), http.StatusUnauthorized, "invalid_client"},
		{"wrong password", tokenRequest(passwordGrant("hdampf", "nope", "foobar_scope"), clientID, clientSecret), http.StatusUnauthorized, "invalid_grant"},
		{"unknown user", tokenRequest(passwordGrant("ghost", "wert123$", "foobar_scope"), clientID, clientSecret), http.StatusUnauthorized, "invalid_grant"},
		{"unknown scope", tokenRequest(passwordGrant("hdampf", "wert123$", "admin_scope"), clientID, clientSecret), http.StatusBadRequest, "invalid_scope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(tt.req)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decodeBody(t, rec)["error"])
			assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
		})
	}
}

func TestTokenUnsupportedGrant(t *testing.T) {
	s := newTestServer(t, testConfig())
	form := passwordGrant("hdampf", "wert123$", "foobar_scope")
	form.Set("grant_type", "client_credentials")

	rec := s.do(tokenRequest(form, clientID, clientSecret))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unsupported_grant_type", decodeBody(t, rec)["error"])
}

func TestPasswordGrantLifecycle(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := s.do(tokenRequest(passwordGrant("hdampf", "wert123$", "foobar_scope"), clientID, clientSecret))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	body := decodeBody(t, rec)
	assert.Equal(t, "bearer", body["token_type"])
	assert.Equal(t, "foobar_scope", body["scope"])
	assert.EqualValues(t, 43200, body["expires_in"])
	assert.NotEmpty(t, body["jti"])
	accessToken := body["access_token"].(string)
	assert.True(t, strings.HasPrefix(accessToken, "eyJhbGciOiJIUzI1NiJ9."), accessToken)

	// reuse within the lifetime
	s.clock.Advance(12*time.Hour - time.Second)
	rec = s.do(foobarRequest(accessToken))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "hello OAuth2!", rec.Body.String())

	s.clock.Advance(time.Second)
	rec = s.do(foobarRequest(accessToken))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	errBody := decodeBody(t, rec)
	assert.Equal(t, "invalid_token", errBody["error"])
	assert.Equal(t, "Access token expired: 2023-11-15T10:13:20Z", errBody["error_description"])
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="invalid_token"`)
}

func TestTokenViaQueryString(t *testing.T) {
	s := newTestServer(t, testConfig())
	req := httptest.NewRequest(http.MethodGet, "/oauth/token?"+passwordGrant("fschmidt", "wert123$", "foobar_scope").Encode(), nil)
	req.SetBasicAuth(clientID, clientSecret)

	rec := s.do(req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "bearer", decodeBody(t, rec)["token_type"])
}

func TestFoobarRejectsBadTokens(t *testing.T) {
	s := newTestServer(t, testConfig())
	valid := s.issue(t)
	last := "A"
	if strings.HasSuffix(valid, "A") {
		last = "E"
	}
	tampered := valid[:len(valid)-1] + last

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{"basic scheme", "Basic Zm9vOmJhcg==", "no_token"},
		{"empty bearer", "Bearer ", "no_token"},
		{"garbage", "Bearer not.a.token", "invalid_token"},
		{"tampered", "Bearer " + tampered, "invalid_token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/foobar", nil)
			req.Header.Set("Authorization", tt.header)
			rec := s.do(req)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, tt.code, decodeBody(t, rec)["error"])
		})
	}
}

func TestFoobarInsufficientScope(t *testing.T) {
	s := newTestServer(t, testConfig())
	form := passwordGrant("hdampf", "wert123$", "other_scope")
	form.Set("client_id", "other")

	rec := s.do(tokenRequest(form, "other", "other-secret"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	accessToken := decodeBody(t, rec)["access_token"].(string)

	rec = s.do(foobarRequest(accessToken))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "insufficient_scope", decodeBody(t, rec)["error"])
}

func TestFoobarTokenFromAnotherKey(t *testing.T) {
	s := newTestServer(t, testConfig())
	c := testConfig()
	c.JwtSecret = "another-secret"
	foreign := newTestServer(t, c)

	rec := s.do(foobarRequest(foreign.issue(t)))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_token", decodeBody(t, rec)["error"])
}

func TestCheckToken(t *testing.T) {
	s := newTestServer(t, testConfig())
	accessToken := s.issue(t)

	check := func(id, secret, tok string) *httptest.ResponseRecorder {
		form := url.Values{"token": {tok}}
		req := httptest.NewRequest(http.MethodPost, "/oauth/check_token", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if id != "" {
			req.SetBasicAuth(id, secret)
		}
		return s.do(req)
	}

	rec := check(clientID, clientSecret, accessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["active"])
	assert.Equal(t, "hdampf", body["sub"])
	assert.Equal(t, "hdampf", body["user_name"])
	assert.Equal(t, clientID, body["client_id"])
	assert.Equal(t, []interface{}{"foobar_scope"}, body["scope"])
	assert.Equal(t, []interface{}{"ROLE_ADMIN", "ROLE_USER"}, body["authorities"])

	rec = check(clientID, clientSecret, "not.a.token")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]interface{}{"active": false}, decodeBody(t, rec))

	s.clock.Advance(12 * time.Hour)
	rec = check(clientID, clientSecret, accessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["active"])

	rec = check("", "", accessToken)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_client", decodeBody(t, rec)["error"])

	rec = check(clientID, "wrong", accessToken)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = check(clientID, clientSecret, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeBody(t, rec)["error"])
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])

	rec = s.do(httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["ready"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig())
	accessToken := s.issue(t)
	s.do(foobarRequest(accessToken))
	s.do(foobarRequest(""))
	s.do(tokenRequest(passwordGrant("hdampf", "nope", "foobar_scope"), clientID, clientSecret))

	rec := s.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	b, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	out := string(b)
	assert.Contains(t, out, `jwtauth_tokens_issued_total{client="my_client_username"} 1`)
	assert.Contains(t, out, `jwtauth_token_requests_rejected_total{error="invalid_grant"} 1`)
	assert.Contains(t, out, `jwtauth_access_decisions_total{result="allowed"} 1`)
	assert.Contains(t, out, `jwtauth_access_decisions_total{result="no_token"} 1`)
}

func TestNewAppRejectsEmptySecret(t *testing.T) {
	c := testConfig()
	c.JwtSecret = ""
	_, err := newApp(c, NewMemoryDB(credentials.DemoRegistry()), clock.Real(), zap.NewNop().Sugar())
	require.Error(t, err)
}

func TestNewAppRejectsBrokenRegistry(t *testing.T) {
	reg := credentials.DemoRegistry()
	reg.Users = append(reg.Users, reg.Users[0])
	_, err := newApp(testConfig(), NewMemoryDB(reg), clock.Real(), zap.NewNop().Sugar())
	require.Error(t, err)
}

package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(tokenURL, userInfoURL string) Config {
	return Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		AuthURL:      "https://sso.example.gov/authorize",
		TokenURL:     tokenURL,
		UserInfoURL:  userInfoURL,
		RedirectURI:  "https://idm.example.gov/api/auth/oidc/callback",
		Scopes:       []string{"openid", "email"},
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := testConfig("https://sso.example.gov/token", "https://sso.example.gov/userinfo")
	require.NoError(t, cfg.Validate())

	missing := cfg
	missing.ClientSecret = ""
	assert.Error(t, missing.Validate())
}

func TestClient_BuildAuthURL(t *testing.T) {
	client, err := NewClient(testConfig("https://sso.example.gov/token", "https://sso.example.gov/userinfo"))
	require.NoError(t, err)

	raw, err := client.BuildAuthURL("signed-state")
	require.NoError(t, err)

	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	q := parsed.Query()
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "signed-state", q.Get("state"))
	assert.Equal(t, "openid email", q.Get("scope"))
}

func TestClient_Exchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "auth-code", r.PostForm.Get("code"))
		json.NewEncoder(w).Encode(TokenResponse{AccessToken: "access-token", TokenType: "Bearer"})
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL, srv.URL))
	require.NoError(t, err)

	tok, err := client.Exchange(context.Background(), "auth-code")
	require.NoError(t, err)
	assert.Equal(t, "access-token", tok.AccessToken)
}

func TestClient_ExchangeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL, srv.URL))
	require.NoError(t, err)

	_, err = client.Exchange(context.Background(), "bad-code")
	assert.Error(t, err)
}

func TestClient_FetchUserInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]string{"sub": "subject-1", "email": "alice@agency.gov"})
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL, srv.URL))
	require.NoError(t, err)

	info, err := client.FetchUserInfo(context.Background(), "access-token")
	require.NoError(t, err)
	assert.Equal(t, "subject-1", info.SubjectID)
	assert.Equal(t, "alice@agency.gov", info.Email)
}

func TestClient_FetchUserInfoMissingSubject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"email": "alice@agency.gov"})
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL, srv.URL))
	require.NoError(t, err)

	_, err = client.FetchUserInfo(context.Background(), "access-token")
	assert.Error(t, err)
}

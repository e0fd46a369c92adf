package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

func TestLoginCallbackRecordsUser(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "g-access", "token_type": "Bearer", "expires_in": 3600})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer g-access", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "123", "email": "a@b.test", "name": "Ada", "picture": "https://img.test/a"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	users := repository.NewMemoryUserRepository(nil)
	svc := newAuthService(&oauth2.Config{
		ClientID:     "id",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"},
	}, users, option.WithEndpoint(srv.URL+"/"))

	userID, err := svc.LoginCallback(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, "google-123", userID)

	u, err := users.GetByID(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, "a@b.test", u.Email)
	assert.Equal(t, "Ada", u.DisplayName)

	assert.Contains(t, svc.AuthURL("xyz"), "state=xyz")
}

func TestLoginCallbackNeedsCode(t *testing.T) {
	svc := newAuthService(&oauth2.Config{ClientID: "id", ClientSecret: "s"}, repository.NewMemoryUserRepository(nil))
	_, err := svc.LoginCallback(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

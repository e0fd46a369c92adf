package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	cfg "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	goauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// AuthService signs users in with Google.
type AuthService interface {
	AuthURL(state string) string
	// LoginCallback exchanges the authorization code, records the Google
	// identity and returns the user id.
	LoginCallback(ctx context.Context, code string) (string, error)
}

type authService struct {
	oauth *oauth2.Config
	u     repository.UserRepository
	opts  []option.ClientOption
}

func NewAuthService(c *cfg.Config, u repository.UserRepository) AuthService {
	return newAuthService(&oauth2.Config{
		ClientID:     c.OAuth.GoogleClientID,
		ClientSecret: c.OAuth.GoogleClientSecret,
		RedirectURL:  c.FrontendURL + "/login/callback",
		Scopes:       []string{goauth2.UserinfoEmailScope, goauth2.UserinfoProfileScope},
		Endpoint:     google.Endpoint,
	}, u)
}

func newAuthService(oauth *oauth2.Config, u repository.UserRepository, opts ...option.ClientOption) *authService {
	return &authService{oauth: oauth, u: u, opts: opts}
}

func (s *authService) AuthURL(state string) string {
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

func (s *authService) LoginCallback(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", invalidf("authorization code is missing")
	}
	if s.oauth.ClientID == "" || s.oauth.ClientSecret == "" {
		err := errors.New("OAuth2 configuration is incomplete")
		slog.Info(err.Error())
		return "", err
	}

	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("exchanging authorization code: %w", err)
	}

	opts := append([]option.ClientOption{option.WithTokenSource(s.oauth.TokenSource(ctx, token))}, s.opts...)
	svc, err := goauth2.NewService(ctx, opts...)
	if err != nil {
		return "", err
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("reading google profile: %w", err)
	}
	if info.Id == "" {
		return "", errors.New("google profile has no id")
	}

	user := &models.User{
		ID:          "google-" + info.Id,
		Email:       info.Email,
		DisplayName: info.Name,
		PhotoURL:    info.Picture,
	}
	if err := s.u.Upsert(ctx, user); err != nil {
		return "", err
	}
	return user.ID, nil
}

package publisher

import (
	"context"
	"errors"
	"log/slog"

	"github.com/maheshrc27/crosspost/internal/models"
	"golang.org/x/oauth2"
)

func oauthConfig(clientID, clientSecret string, endpoint oauth2.Endpoint, tokenURL string, scopes ...string) *oauth2.Config {
	if tokenURL != "" {
		endpoint.TokenURL = tokenURL
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       scopes,
		Endpoint:     endpoint,
	}
}

// refreshOAuth trades a refresh token at the provider's token endpoint.
func refreshOAuth(ctx context.Context, platform models.Platform, conf *oauth2.Config, opts Options, refreshToken string) (*TokenResult, error) {
	if conf.ClientID == "" || conf.ClientSecret == "" {
		return nil, NewError(KindConfiguration, platform, "oauth client is not configured")
	}
	if refreshToken == "" {
		return nil, NewError(KindAuth, platform, "account has no refresh token")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, opts.HTTPClient)
	opts.Limiter.Take()

	token, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		slog.Info(err.Error())
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			kind := StatusKind(re.Response.StatusCode)
			if kind == KindPermanent {
				// invalid_grant and friends: the user has to reconnect.
				kind = KindAuth
			}
			return nil, Wrap(kind, platform, err)
		}
		return nil, Wrap(KindTransient, platform, err)
	}

	refreshed := token.RefreshToken
	if refreshed == "" {
		refreshed = refreshToken
	}
	return &TokenResult{AccessToken: token.AccessToken, RefreshToken: refreshed, ExpiresAt: token.Expiry}, nil
}

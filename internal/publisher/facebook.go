package publisher

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
)

const (
	facebookBaseURL     = "https://graph.facebook.com"
	facebookVersion     = "/v21.0"
	facebookLimit       = 63206
	facebookPhotoLimit  = 10
	facebookLongLivedIn = 60 * 24 * time.Hour
)

// Facebook publishes to a page feed. PlatformAccountID is the page id and the
// access token is a page token.
type Facebook struct {
	api       apiClient
	appID     string
	appSecret string
}

func NewFacebook(opts Options, appID, appSecret string) *Facebook {
	return &Facebook{
		api:       apiClient{platform: models.PlatformFacebook, opts: opts.withDefaults(facebookBaseURL)},
		appID:     appID,
		appSecret: appSecret,
	}
}

func (p *Facebook) Platform() models.Platform { return models.PlatformFacebook }

func (p *Facebook) CharacterLimit() int { return facebookLimit }

func (p *Facebook) ValidateContent(post *models.Post) ValidationResult {
	v := validator{platform: models.PlatformFacebook}
	text := v.text(post, facebookLimit)

	images, videos := v.media(post.Media)
	switch {
	case strings.TrimSpace(text) == "" && len(post.Media) == 0:
		v.addf("facebook posts need text or media")
	case videos > 1:
		v.addf("facebook posts hold a single video")
	case videos == 1 && images > 0:
		v.addf("facebook posts cannot mix a video with images")
	case images > facebookPhotoLimit:
		v.addf("facebook posts hold at most %d photos, got %d", facebookPhotoLimit, images)
	}
	return v.result()
}

func (p *Facebook) Publish(ctx context.Context, post *models.Post, account *models.SocialAccount) (*Result, error) {
	if err := ValidationFailure(p.Platform(), p.ValidateContent(post)); err != nil {
		return nil, err
	}

	message := post.Content.TextFor(models.PlatformFacebook)
	token := account.AccessToken
	page := facebookVersion + "/" + account.PlatformAccountID

	switch {
	case len(post.Media) == 0:
		return p.publishFeed(ctx, page, map[string]interface{}{"message": message}, token)

	case isVideo(post.Media[0]):
		var video idResponse
		payload := map[string]interface{}{"file_url": post.Media[0].URL, "description": message}
		if _, err := p.api.post(ctx, page+"/videos", payload, token, &video); err != nil {
			return nil, err
		}
		id, err := video.require(p.Platform())
		if err != nil {
			return nil, err
		}
		return &Result{RemoteID: id, VideoID: id, PublishedAt: p.api.opts.Now()}, nil

	case len(post.Media) == 1:
		var photo idResponse
		payload := map[string]interface{}{"url": post.Media[0].URL, "caption": message}
		if _, err := p.api.post(ctx, page+"/photos", payload, token, &photo); err != nil {
			return nil, err
		}
		id := photo.PostID
		if id == "" {
			var err error
			if id, err = photo.require(p.Platform()); err != nil {
				return nil, err
			}
		}
		return &Result{RemoteID: id, PublishedAt: p.api.opts.Now()}, nil

	default:
		// Multi-photo posts attach photos uploaded unpublished.
		attached := make([]map[string]string, 0, len(post.Media))
		for _, item := range post.Media {
			var photo idResponse
			payload := map[string]interface{}{"url": item.URL, "published": false}
			if _, err := p.api.post(ctx, page+"/photos", payload, token, &photo); err != nil {
				return nil, err
			}
			id, err := photo.require(p.Platform())
			if err != nil {
				return nil, err
			}
			attached = append(attached, map[string]string{"media_fbid": id})
		}
		return p.publishFeed(ctx, page, map[string]interface{}{"message": message, "attached_media": attached}, token)
	}
}

func (p *Facebook) publishFeed(ctx context.Context, page string, payload map[string]interface{}, token string) (*Result, error) {
	var feed idResponse
	if _, err := p.api.post(ctx, page+"/feed", payload, token, &feed); err != nil {
		return nil, err
	}
	id, err := feed.require(p.Platform())
	if err != nil {
		return nil, err
	}
	return &Result{RemoteID: id, PublishedAt: p.api.opts.Now()}, nil
}

// RefreshToken exchanges the stored token for a fresh long-lived one.
func (p *Facebook) RefreshToken(ctx context.Context, account *models.SocialAccount) (*TokenResult, error) {
	if p.appID == "" || p.appSecret == "" {
		return nil, NewError(KindConfiguration, p.Platform(), "facebook app credentials are not configured")
	}

	token := account.RefreshToken
	if token == "" {
		token = account.AccessToken
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	query := url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {p.appID},
		"client_secret":     {p.appSecret},
		"fb_exchange_token": {token},
	}
	if err := p.api.get(ctx, facebookVersion+"/oauth/access_token", query, "", &result); err != nil {
		return nil, err
	}
	if result.AccessToken == "" {
		return nil, NewError(KindAuth, p.Platform(), "refresh returned no access token")
	}

	expiresIn := time.Second * time.Duration(result.ExpiresIn)
	if expiresIn <= 0 {
		expiresIn = facebookLongLivedIn
	}
	return &TokenResult{
		AccessToken:  result.AccessToken,
		RefreshToken: result.AccessToken,
		ExpiresAt:    p.api.opts.Now().Add(expiresIn),
	}, nil
}

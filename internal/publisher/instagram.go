package publisher

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
)

const (
	instagramBaseURL      = "https://graph.instagram.com"
	instagramVersion      = "/v21.0"
	instagramLimit        = 2200
	instagramCarouselSize = 10
)

// Instagram publishes through the Instagram Graph content publishing flow:
// create a media container, wait for it, then publish it.
type Instagram struct {
	api apiClient
}

func NewInstagram(opts Options) *Instagram {
	return &Instagram{api: apiClient{platform: models.PlatformInstagram, opts: opts.withDefaults(instagramBaseURL)}}
}

func (p *Instagram) Platform() models.Platform { return models.PlatformInstagram }

func (p *Instagram) CharacterLimit() int { return instagramLimit }

func (p *Instagram) ValidateContent(post *models.Post) ValidationResult {
	v := validator{platform: models.PlatformInstagram}
	v.text(post, instagramLimit)

	switch n := len(post.Media); {
	case n == 0:
		v.addf("instagram requires at least one image or video")
	case n > instagramCarouselSize:
		v.addf("instagram carousels hold at most %d items, got %d", instagramCarouselSize, n)
	}
	v.media(post.Media)
	return v.result()
}

func (p *Instagram) Publish(ctx context.Context, post *models.Post, account *models.SocialAccount) (*Result, error) {
	if err := ValidationFailure(p.Platform(), p.ValidateContent(post)); err != nil {
		return nil, err
	}

	caption := post.Content.TextFor(models.PlatformInstagram)
	token := account.AccessToken
	mediaPath := instagramVersion + "/" + account.PlatformAccountID + "/media"

	var containerID string
	var err error
	if len(post.Media) == 1 {
		containerID, err = p.createContainer(ctx, mediaPath, post.Media[0], caption, false, token)
	} else {
		containerID, err = p.createCarousel(ctx, mediaPath, post.Media, caption, token)
	}
	if err != nil {
		return nil, err
	}

	var published idResponse
	_, err = p.api.post(ctx, instagramVersion+"/"+account.PlatformAccountID+"/media_publish",
		map[string]string{"creation_id": containerID}, token, &published)
	if err != nil {
		return nil, err
	}
	id, err := published.require(p.Platform())
	if err != nil {
		return nil, err
	}

	return &Result{RemoteID: id, PublishedAt: p.api.opts.Now()}, nil
}

func (p *Instagram) createContainer(ctx context.Context, mediaPath string, item models.MediaItem, caption string, carouselItem bool, token string) (string, error) {
	payload := map[string]interface{}{}
	if caption != "" {
		payload["caption"] = caption
	}
	if carouselItem {
		payload["is_carousel_item"] = true
	}

	video := isVideo(item)
	if video {
		payload["video_url"] = item.URL
		if carouselItem {
			payload["media_type"] = "VIDEO"
		} else {
			payload["media_type"] = "REELS"
		}
	} else {
		payload["image_url"] = item.URL
	}

	var container idResponse
	if _, err := p.api.post(ctx, mediaPath, payload, token, &container); err != nil {
		return "", err
	}
	id, err := container.require(p.Platform())
	if err != nil {
		return "", err
	}

	if video {
		if err := p.api.waitForContainer(ctx, instagramVersion+"/"+id, "status_code", token); err != nil {
			return "", err
		}
	}
	return id, nil
}

func (p *Instagram) createCarousel(ctx context.Context, mediaPath string, items []models.MediaItem, caption, token string) (string, error) {
	children := make([]string, 0, len(items))
	for _, item := range items {
		id, err := p.createContainer(ctx, mediaPath, item, "", true, token)
		if err != nil {
			return "", err
		}
		children = append(children, id)
	}

	payload := map[string]interface{}{
		"media_type": "CAROUSEL",
		"caption":    caption,
		"children":   strings.Join(children, ","),
	}
	var container idResponse
	if _, err := p.api.post(ctx, mediaPath, payload, token, &container); err != nil {
		return "", err
	}
	return container.require(p.Platform())
}

// RefreshToken extends a long-lived Instagram token. The same token doubles
// as the refresh token.
func (p *Instagram) RefreshToken(ctx context.Context, account *models.SocialAccount) (*TokenResult, error) {
	token := account.RefreshToken
	if token == "" {
		token = account.AccessToken
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	query := url.Values{"grant_type": {"ig_refresh_token"}}
	if err := p.api.get(ctx, "/refresh_access_token", query, token, &result); err != nil {
		return nil, err
	}
	if result.AccessToken == "" {
		return nil, NewError(KindAuth, p.Platform(), "refresh returned no access token")
	}

	return &TokenResult{
		AccessToken:  result.AccessToken,
		RefreshToken: result.AccessToken,
		ExpiresAt:    p.api.opts.Now().Add(time.Second * time.Duration(result.ExpiresIn)),
	}, nil
}

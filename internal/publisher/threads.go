package publisher

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
)

const (
	threadsBaseURL      = "https://graph.threads.net"
	threadsVersion      = "/v1.0"
	threadsLimit        = 500
	threadsCarouselSize = 20
)

type Threads struct {
	api apiClient
}

func NewThreads(opts Options) *Threads {
	return &Threads{api: apiClient{platform: models.PlatformThreads, opts: opts.withDefaults(threadsBaseURL)}}
}

func (p *Threads) Platform() models.Platform { return models.PlatformThreads }

func (p *Threads) CharacterLimit() int { return threadsLimit }

func (p *Threads) ValidateContent(post *models.Post) ValidationResult {
	v := validator{platform: models.PlatformThreads}
	text := v.text(post, threadsLimit)

	if strings.TrimSpace(text) == "" && len(post.Media) == 0 {
		v.addf("threads posts need text or media")
	}
	if n := len(post.Media); n > threadsCarouselSize {
		v.addf("threads carousels hold at most %d items, got %d", threadsCarouselSize, n)
	}
	v.media(post.Media)
	return v.result()
}

func (p *Threads) Publish(ctx context.Context, post *models.Post, account *models.SocialAccount) (*Result, error) {
	if err := ValidationFailure(p.Platform(), p.ValidateContent(post)); err != nil {
		return nil, err
	}

	text := post.Content.TextFor(models.PlatformThreads)
	token := account.AccessToken
	user := threadsVersion + "/" + account.PlatformAccountID

	var (
		containerID string
		err         error
	)
	switch len(post.Media) {
	case 0:
		containerID, err = p.createContainer(ctx, user, map[string]interface{}{"media_type": "TEXT", "text": text}, false, token)
	case 1:
		payload := mediaPayload(post.Media[0])
		payload["text"] = text
		containerID, err = p.createContainer(ctx, user, payload, isVideo(post.Media[0]), token)
	default:
		children := make([]string, 0, len(post.Media))
		for _, item := range post.Media {
			payload := mediaPayload(item)
			payload["is_carousel_item"] = true
			id, err := p.createContainer(ctx, user, payload, isVideo(item), token)
			if err != nil {
				return nil, err
			}
			children = append(children, id)
		}
		payload := map[string]interface{}{"media_type": "CAROUSEL", "text": text, "children": strings.Join(children, ",")}
		containerID, err = p.createContainer(ctx, user, payload, false, token)
	}
	if err != nil {
		return nil, err
	}

	var published idResponse
	if _, err := p.api.post(ctx, user+"/threads_publish", map[string]string{"creation_id": containerID}, token, &published); err != nil {
		return nil, err
	}
	id, err := published.require(p.Platform())
	if err != nil {
		return nil, err
	}
	return &Result{RemoteID: id, PublishedAt: p.api.opts.Now()}, nil
}

func mediaPayload(item models.MediaItem) map[string]interface{} {
	if isVideo(item) {
		return map[string]interface{}{"media_type": "VIDEO", "video_url": item.URL}
	}
	return map[string]interface{}{"media_type": "IMAGE", "image_url": item.URL}
}

func (p *Threads) createContainer(ctx context.Context, user string, payload map[string]interface{}, wait bool, token string) (string, error) {
	var container idResponse
	if _, err := p.api.post(ctx, user+"/threads", payload, token, &container); err != nil {
		return "", err
	}
	id, err := container.require(p.Platform())
	if err != nil {
		return "", err
	}
	if wait {
		if err := p.api.waitForContainer(ctx, threadsVersion+"/"+id, "status", token); err != nil {
			return "", err
		}
	}
	return id, nil
}

func (p *Threads) RefreshToken(ctx context.Context, account *models.SocialAccount) (*TokenResult, error) {
	token := account.RefreshToken
	if token == "" {
		token = account.AccessToken
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	query := url.Values{"grant_type": {"th_refresh_token"}}
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

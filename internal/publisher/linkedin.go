package publisher

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/maheshrc27/crosspost/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/linkedin"
)

const (
	linkedinBaseURL       = "https://api.linkedin.com"
	linkedinLimit         = 3000
	linkedinUploadRequest = "com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"
)

// LinkedIn shares to a member or organization feed through the UGC posts API.
type LinkedIn struct {
	api   apiClient
	oauth *oauth2.Config
}

func NewLinkedIn(opts Options, clientID, clientSecret string) *LinkedIn {
	opts = opts.withDefaults(linkedinBaseURL)
	return &LinkedIn{
		api: apiClient{
			platform: models.PlatformLinkedIn,
			opts:     opts,
			bearer:   true,
			header:   http.Header{"X-Restli-Protocol-Version": {"2.0.0"}},
		},
		oauth: oauthConfig(clientID, clientSecret, linkedin.Endpoint, opts.TokenURL, "w_member_social"),
	}
}

func (p *LinkedIn) Platform() models.Platform { return models.PlatformLinkedIn }

func (p *LinkedIn) CharacterLimit() int { return linkedinLimit }

func (p *LinkedIn) ValidateContent(post *models.Post) ValidationResult {
	v := validator{platform: models.PlatformLinkedIn}
	text := v.text(post, linkedinLimit)

	if strings.TrimSpace(text) == "" && len(post.Media) == 0 {
		v.addf("linkedin posts need text or media")
	}
	if len(post.Media) > 1 {
		v.addf("linkedin posts hold a single image or video")
	}
	v.media(post.Media)
	return v.result()
}

// author accepts a bare member id or a full person/organization URN.
func author(account *models.SocialAccount) string {
	if strings.HasPrefix(account.PlatformAccountID, "urn:li:") {
		return account.PlatformAccountID
	}
	return "urn:li:person:" + account.PlatformAccountID
}

func (p *LinkedIn) Publish(ctx context.Context, post *models.Post, account *models.SocialAccount) (*Result, error) {
	if err := ValidationFailure(p.Platform(), p.ValidateContent(post)); err != nil {
		return nil, err
	}

	owner := author(account)
	token := account.AccessToken

	content := map[string]interface{}{
		"shareCommentary":    map[string]string{"text": post.Content.TextFor(models.PlatformLinkedIn)},
		"shareMediaCategory": "NONE",
	}
	if len(post.Media) == 1 {
		item := post.Media[0]
		asset, err := p.upload(ctx, owner, item, token)
		if err != nil {
			return nil, err
		}
		category := "IMAGE"
		if isVideo(item) {
			category = "VIDEO"
		}
		content["shareMediaCategory"] = category
		content["media"] = []map[string]string{{"status": "READY", "media": asset}}
	}

	payload := map[string]interface{}{
		"author":          owner,
		"lifecycleState":  "PUBLISHED",
		"specificContent": map[string]interface{}{"com.linkedin.ugc.ShareContent": content},
		"visibility":      map[string]string{"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC"},
	}

	var created idResponse
	header, err := p.api.post(ctx, "/v2/ugcPosts", payload, token, &created)
	if err != nil {
		return nil, err
	}
	id := created.ID
	if id == "" {
		id = header.Get("X-RestLi-Id")
	}
	if id == "" {
		return nil, NewError(KindPermanent, p.Platform(), "no id returned from linkedin")
	}
	return &Result{RemoteID: id, PublishedAt: p.api.opts.Now()}, nil
}

// upload registers an asset and streams the media bytes from their public
// URL into the upload URL LinkedIn hands back.
func (p *LinkedIn) upload(ctx context.Context, owner string, item models.MediaItem, token string) (string, error) {
	recipe := "urn:li:digitalmediaRecipe:feedshare-image"
	if isVideo(item) {
		recipe = "urn:li:digitalmediaRecipe:feedshare-video"
	}

	var registered struct {
		Value struct {
			UploadMechanism map[string]struct {
				UploadURL string `json:"uploadUrl"`
			} `json:"uploadMechanism"`
			Asset string `json:"asset"`
		} `json:"value"`
	}
	payload := map[string]interface{}{
		"registerUploadRequest": map[string]interface{}{
			"recipes": []string{recipe},
			"owner":   owner,
			"serviceRelationships": []map[string]string{
				{"relationshipType": "OWNER", "identifier": "urn:li:userGeneratedContent"},
			},
		},
	}
	if _, err := p.api.post(ctx, "/v2/assets?action=registerUpload", payload, token, &registered); err != nil {
		return "", err
	}

	uploadURL := registered.Value.UploadMechanism[linkedinUploadRequest].UploadURL
	if uploadURL == "" || registered.Value.Asset == "" {
		return "", NewError(KindPermanent, p.Platform(), "register upload returned no upload url")
	}

	src, err := http.NewRequestWithContext(ctx, http.MethodGet, item.URL, nil)
	if err != nil {
		return "", Wrap(KindPermanent, p.Platform(), err)
	}
	resp, err := p.api.opts.HTTPClient.Do(src)
	if err != nil {
		return "", Wrap(KindTransient, p.Platform(), fmt.Errorf("error downloading media: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", NewError(StatusKind(resp.StatusCode), p.Platform(), "error downloading media: status %d", resp.StatusCode)
	}

	put, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, resp.Body)
	if err != nil {
		return "", Wrap(KindPermanent, p.Platform(), err)
	}
	put.ContentLength = resp.ContentLength
	put.Header.Set("Authorization", "Bearer "+token)
	put.Header.Set("Content-Type", item.MimeType)
	if _, err := p.api.do(put, nil); err != nil {
		return "", err
	}

	return registered.Value.Asset, nil
}

func (p *LinkedIn) RefreshToken(ctx context.Context, account *models.SocialAccount) (*TokenResult, error) {
	return refreshOAuth(ctx, p.Platform(), p.oauth, p.api.opts, account.RefreshToken)
}

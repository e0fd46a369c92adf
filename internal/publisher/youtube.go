package publisher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/maheshrc27/crosspost/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const (
	youtubeLimit      = 5000
	youtubeTitleLimit = 100
	youtubeTagsLimit  = 500
	youtubeCategory   = "22"
)

// YouTube uploads a single video through the Data API. When BaseURL is set
// it replaces the API endpoint.
type YouTube struct {
	opts  Options
	oauth *oauth2.Config
}

func NewYouTube(opts Options, clientID, clientSecret string) *YouTube {
	opts = opts.withDefaults("")
	return &YouTube{
		opts:  opts,
		oauth: oauthConfig(clientID, clientSecret, google.Endpoint, opts.TokenURL, youtube.YoutubeUploadScope),
	}
}

func (p *YouTube) Platform() models.Platform { return models.PlatformYouTube }

func (p *YouTube) CharacterLimit() int { return youtubeLimit }

// metadata resolves title, description and tags. Without an explicit title
// the first line of the description is used.
func metadata(post *models.Post) (title, description string, tags []string) {
	description = post.Content.TextFor(models.PlatformYouTube)
	if o := post.Content.PlatformOverrides; o != nil && o.YouTube != nil {
		title = strings.TrimSpace(o.YouTube.Title)
		tags = o.YouTube.Tags
	}
	if title == "" {
		title = strings.TrimSpace(strings.SplitN(description, "\n", 2)[0])
		if utf8.RuneCountInString(title) > youtubeTitleLimit {
			title = string([]rune(title)[:youtubeTitleLimit])
		}
	}
	return title, description, tags
}

func (p *YouTube) ValidateContent(post *models.Post) ValidationResult {
	v := validator{platform: models.PlatformYouTube}
	v.text(post, youtubeLimit)

	title, _, tags := metadata(post)
	switch {
	case title == "":
		v.addf("youtube videos need a title")
	case utf8.RuneCountInString(title) > youtubeTitleLimit:
		v.addf("youtube titles allow %d characters", youtubeTitleLimit)
	case strings.ContainsAny(title, "<>"):
		v.addf("youtube titles cannot contain < or >")
	}

	var tagChars int
	for _, t := range tags {
		tagChars += utf8.RuneCountInString(t)
	}
	if tagChars > youtubeTagsLimit {
		v.addf("youtube tags allow %d characters in total", youtubeTagsLimit)
	}

	_, videos := v.media(post.Media)
	if len(post.Media) != 1 || videos != 1 {
		v.addf("youtube requires exactly one video")
	}
	return v.result()
}

func (p *YouTube) service(ctx context.Context, accessToken string) (*youtube.Service, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.opts.HTTPClient)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))

	clientOpts := []option.ClientOption{option.WithHTTPClient(client)}
	if p.opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(p.opts.BaseURL))
	}
	return youtube.NewService(ctx, clientOpts...)
}

func (p *YouTube) Publish(ctx context.Context, post *models.Post, account *models.SocialAccount) (*Result, error) {
	if err := ValidationFailure(p.Platform(), p.ValidateContent(post)); err != nil {
		return nil, err
	}

	service, err := p.service(ctx, account.AccessToken)
	if err != nil {
		return nil, Wrap(KindConfiguration, p.Platform(), err)
	}

	// Stream the source straight into the upload instead of spooling it to
	// a temporary file.
	source, err := http.NewRequestWithContext(ctx, http.MethodGet, post.Media[0].URL, nil)
	if err != nil {
		return nil, Wrap(KindPermanent, p.Platform(), err)
	}
	resp, err := p.opts.HTTPClient.Do(source)
	if err != nil {
		return nil, Wrap(KindTransient, p.Platform(), fmt.Errorf("error downloading video: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, NewError(StatusKind(resp.StatusCode), p.Platform(), "error downloading video: status %d", resp.StatusCode)
	}

	title, description, tags := metadata(post)
	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       title,
			Description: description,
			Tags:        tags,
			CategoryId:  youtubeCategory,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: "public",
		},
	}

	p.opts.Limiter.Take()
	uploaded, err := service.Videos.Insert([]string{"snippet", "status"}, video).
		Media(resp.Body, googleapi.ContentType(post.Media[0].MimeType)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classifyGoogle(err)
	}

	return &Result{RemoteID: uploaded.Id, VideoID: uploaded.Id, PublishedAt: p.opts.Now()}, nil
}

func classifyGoogle(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return Wrap(KindTransient, models.PlatformYouTube, err)
	}

	kind := StatusKind(gerr.Code)
	if gerr.Code == http.StatusForbidden {
		for _, item := range gerr.Errors {
			switch item.Reason {
			case "quotaExceeded", "rateLimitExceeded", "userRateLimitExceeded", "uploadLimitExceeded":
				kind = KindTransient
			}
		}
	}

	msg := gerr.Message
	if msg == "" {
		msg = gerr.Error()
	}
	return &Error{Kind: kind, Platform: models.PlatformYouTube, Message: msg, Err: err}
}

func (p *YouTube) RefreshToken(ctx context.Context, account *models.SocialAccount) (*TokenResult, error) {
	return refreshOAuth(ctx, p.Platform(), p.oauth, p.opts, account.RefreshToken)
}

package models

import "time"

type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
	PlatformYouTube   Platform = "youtube"
	PlatformThreads   Platform = "threads"
	PlatformLinkedIn  Platform = "linkedin"
)

var KnownPlatforms = []Platform{
	PlatformInstagram, PlatformFacebook, PlatformYouTube, PlatformThreads, PlatformLinkedIn,
}

func (p Platform) Valid() bool {
	for _, k := range KnownPlatforms {
		if p == k {
			return true
		}
	}
	return false
}

type PostStatus string

const (
	PostStatusDraft      PostStatus = "draft"
	PostStatusScheduled  PostStatus = "scheduled"
	PostStatusPublishing PostStatus = "publishing"
	PostStatusPublished  PostStatus = "published"
	PostStatusPartial    PostStatus = "partial"
	PostStatusFailed     PostStatus = "failed"
)

// Valid reports whether s is one of the known post statuses.
func (s PostStatus) Valid() bool {
	switch s {
	case PostStatusDraft, PostStatusScheduled, PostStatusPublishing,
		PostStatusPublished, PostStatusPartial, PostStatusFailed:
		return true
	}
	return false
}

type PublishStatus string

const (
	PublishStatusSuccess PublishStatus = "success"
	PublishStatusFailed  PublishStatus = "failed"
)

type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

type YouTubeMetadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

type PlatformOverrides struct {
	Instagram string           `json:"instagram,omitempty"`
	Facebook  string           `json:"facebook,omitempty"`
	YouTube   *YouTubeMetadata `json:"youtube,omitempty"`
	Threads   string           `json:"threads,omitempty"`
	LinkedIn  string           `json:"linkedin,omitempty"`
}

type PostContent struct {
	Text              string             `json:"text"`
	PlatformOverrides *PlatformOverrides `json:"platformOverrides,omitempty"`
}

// TextFor returns the text that is sent to the given platform: the override
// when one is set, the post text otherwise. For YouTube the override
// description stands in for the text.
func (c PostContent) TextFor(p Platform) string {
	o := c.PlatformOverrides
	if o == nil {
		return c.Text
	}

	var override string
	switch p {
	case PlatformInstagram:
		override = o.Instagram
	case PlatformFacebook:
		override = o.Facebook
	case PlatformThreads:
		override = o.Threads
	case PlatformLinkedIn:
		override = o.LinkedIn
	case PlatformYouTube:
		if o.YouTube != nil {
			override = o.YouTube.Description
		}
	}

	if override != "" {
		return override
	}
	return c.Text
}

type MediaItem struct {
	MediaID      string    `json:"mediaId,omitempty"`
	URL          string    `json:"url"`
	Type         MediaType `json:"type"`
	MimeType     string    `json:"mimeType"`
	SizeBytes    int64     `json:"sizeBytes"`
	ThumbnailURL string    `json:"thumbnailUrl"`
}

type PublishResult struct {
	Status      PublishStatus `json:"status"`
	PostID      string        `json:"postId,omitempty"`
	VideoID     string        `json:"videoId,omitempty"`
	Error       string        `json:"error,omitempty"`
	ErrorKind   string        `json:"errorKind,omitempty"`
	Retryable   bool          `json:"retryable,omitempty"`
	PublishedAt *time.Time    `json:"publishedAt,omitempty"`
	AttemptedAt time.Time     `json:"attemptedAt"`
}

func (r PublishResult) Succeeded() bool {
	return r.Status == PublishStatusSuccess
}

type Post struct {
	ID              string                     `json:"id"`
	UserID          string                     `json:"userId"`
	Content         PostContent                `json:"content"`
	Media           []MediaItem                `json:"media"`
	TargetPlatforms []Platform                 `json:"targetPlatforms"`
	ScheduledAt     time.Time                  `json:"scheduledAt"`
	Status          PostStatus                 `json:"status"`
	PublishResults  map[Platform]PublishResult `json:"publishResults"`
	RetryCount      int                        `json:"retryCount"`
	DispatchTaskID  string                     `json:"dispatchTaskId,omitempty"`
	Version         int64                      `json:"version"`
	CreatedAt       time.Time                  `json:"createdAt"`
	UpdatedAt       time.Time                  `json:"updatedAt"`
}

// Succeeded reports whether the platform already holds a success result.
func (p *Post) Succeeded(platform Platform) bool {
	r, ok := p.PublishResults[platform]
	return ok && r.Succeeded()
}

// Dispatched reports whether a dispatch round has already run for the post.
// Such a post keeps its content and targets until it is rescheduled clean.
func (p *Post) Dispatched() bool {
	return len(p.PublishResults) > 0 || p.RetryCount > 0
}

// Clone returns a deep copy so callers can mutate lifecycle fields without
// touching a shared record.
func (p *Post) Clone() *Post {
	c := *p
	c.Media = append([]MediaItem(nil), p.Media...)
	c.TargetPlatforms = append([]Platform(nil), p.TargetPlatforms...)
	if p.Content.PlatformOverrides != nil {
		o := *p.Content.PlatformOverrides
		if o.YouTube != nil {
			yt := *o.YouTube
			yt.Tags = append([]string(nil), o.YouTube.Tags...)
			o.YouTube = &yt
		}
		c.Content.PlatformOverrides = &o
	}
	c.PublishResults = make(map[Platform]PublishResult, len(p.PublishResults))
	for k, v := range p.PublishResults {
		c.PublishResults[k] = v
	}
	return &c
}

package repository

import (
	"context"
	"errors"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	ErrPostNotFound    = errors.New("post not found")
	ErrMediaNotFound   = errors.New("media not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrAccountNotFound = errors.New("social account not found")

	// ErrConflict is returned when a guarded write finds the record in a
	// different status or version than the caller expected.
	ErrConflict = errors.New("record was modified concurrently")

	ErrMediaInUse = errors.New("media is used by posts")
)

type PostOrder int

const (
	OrderCreatedDesc PostOrder = iota
	OrderScheduledAsc
)

type PostFilter struct {
	UserID        string
	Status        models.PostStatus
	ScheduledFrom time.Time
	ScheduledTo   time.Time
	OrderBy       PostOrder
	Limit         int
}

type PostRepository interface {
	Create(ctx context.Context, post *models.Post) (string, error)
	GetByID(ctx context.Context, id string) (*models.Post, error)
	List(ctx context.Context, filter PostFilter) ([]*models.Post, error)
	// UpdateContent rewrites content, media and target platforms while the
	// post is still draft or scheduled and no dispatch round has run for it.
	UpdateContent(ctx context.Context, post *models.Post) error
	// CompareAndSwap writes the lifecycle fields of post only if the stored
	// record still has the expected status and post.Version. On success the
	// version on post is advanced.
	CompareAndSwap(ctx context.Context, post *models.Post, expected models.PostStatus) error
	// Claim moves a post from `from` to publishing, guarded by version. A
	// non-zero staleBefore additionally requires updated_at < staleBefore.
	Claim(ctx context.Context, id string, from models.PostStatus, version int64, staleBefore time.Time) (*models.Post, error)
	// SetPublishResult records one platform outcome of an in-flight dispatch
	// and refreshes updated_at. It does not advance the version.
	SetPublishResult(ctx context.Context, id string, platform models.Platform, result models.PublishResult) error
	// Heartbeat refreshes updated_at of a publishing post still at version,
	// keeping a long dispatch round from looking stale. ErrConflict means the
	// claim is gone.
	Heartbeat(ctx context.Context, id string, version int64) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Post, error)
	ListStale(ctx context.Context, before time.Time, limit int) ([]*models.Post, error)
	Remove(ctx context.Context, id string) error
}

type MediaRepository interface {
	Create(ctx context.Context, m *models.Media) (string, error)
	GetByID(ctx context.Context, id string) (*models.Media, error)
	ListByUserID(ctx context.Context, userID string) ([]*models.Media, error)
	AddUsage(ctx context.Context, mediaID, postID string) error
	RemoveUsage(ctx context.Context, mediaID, postID string) error
	// Remove deletes the record. Referenced media is refused with
	// ErrMediaInUse unless force is set; the returned ids are the posts that
	// referenced it.
	Remove(ctx context.Context, id string, force bool) ([]string, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	Upsert(ctx context.Context, u *models.User) error
	UpdateSettings(ctx context.Context, id, displayName string, settings models.UserSettings) error
}

type SocialAccountRepository interface {
	Create(ctx context.Context, sa *models.SocialAccount) (string, error)
	GetByID(ctx context.Context, id string) (*models.SocialAccount, error)
	GetActive(ctx context.Context, userID string, platform models.Platform) (*models.SocialAccount, error)
	ListByUserID(ctx context.Context, userID string) ([]*models.SocialAccount, error)
	ListExpiring(ctx context.Context, before time.Time) ([]*models.SocialAccount, error)
	SetToken(ctx context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error
	Deactivate(ctx context.Context, id string) error
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
	Remove(ctx context.Context, id string) error
}

func newID() (string, error) {
	return gonanoid.New()
}

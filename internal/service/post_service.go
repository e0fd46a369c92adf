package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/transfer"
)

// Lifecycle moves posts between states. It is implemented by the engine.
type Lifecycle interface {
	Schedule(ctx context.Context, postID string, at time.Time) (*models.Post, error)
	Cancel(ctx context.Context, postID string) (*models.Post, error)
	Reschedule(ctx context.Context, postID string, at time.Time) (*models.Post, error)
}

const scheduleLayout = "2006-01-02T15:04"

type PostService interface {
	CreatePost(ctx context.Context, userID string, pc *transfer.PostCreation) (*models.Post, error)
	UpdatePost(ctx context.Context, userID, postID string, pu *transfer.PostUpdate) (*models.Post, error)
	PostInfo(ctx context.Context, userID, postID string) (*models.Post, error)
	List(ctx context.Context, userID string, status models.PostStatus) ([]*models.Post, error)
	// Range returns posts scheduled in [from, to], earliest first.
	Range(ctx context.Context, userID string, from, to time.Time) ([]*models.Post, error)
	Remove(ctx context.Context, userID, postID string) error

	Schedule(ctx context.Context, userID, postID, scheduledTime string) (*models.Post, error)
	Cancel(ctx context.Context, userID, postID string) (*models.Post, error)
	Reschedule(ctx context.Context, userID, postID, scheduledTime string) (*models.Post, error)
}

type postService struct {
	pr    repository.PostRepository
	ma    repository.MediaRepository
	users repository.UserRepository
	lc    Lifecycle
}

func NewPostService(
	pr repository.PostRepository,
	ma repository.MediaRepository,
	users repository.UserRepository,
	lc Lifecycle) PostService {
	return &postService{
		pr:    pr,
		ma:    ma,
		users: users,
		lc:    lc,
	}
}

func (s *postService) CreatePost(ctx context.Context, userID string, pc *transfer.PostCreation) (*models.Post, error) {
	if pc == nil {
		return nil, invalidf("post creation data is missing")
	}
	if err := checkPlatforms(pc.TargetPlatforms); err != nil {
		return nil, err
	}
	if strings.TrimSpace(pc.Text) == "" && len(pc.MediaIDs) == 0 {
		return nil, invalidf("a post needs text or media")
	}

	var at time.Time
	if pc.ScheduledTime != "" {
		if len(pc.TargetPlatforms) == 0 {
			return nil, invalidf("a scheduled post needs at least one target platform")
		}
		var err error
		if at, err = s.parseTime(ctx, userID, pc.ScheduledTime); err != nil {
			return nil, err
		}
	}

	media, err := s.resolveMedia(ctx, userID, pc.MediaIDs)
	if err != nil {
		return nil, err
	}

	post := &models.Post{
		UserID: userID,
		Content: models.PostContent{
			Text:              pc.Text,
			PlatformOverrides: pc.PlatformOverrides,
		},
		Media:           media,
		TargetPlatforms: dedupe(pc.TargetPlatforms),
		Status:          models.PostStatusDraft,
	}
	if _, err := s.pr.Create(ctx, post); err != nil {
		return nil, fmt.Errorf("error creating post: %w", err)
	}
	s.addUsage(ctx, post.ID, media)

	if pc.ScheduledTime == "" {
		return post, nil
	}
	return s.lc.Schedule(ctx, post.ID, at)
}

func (s *postService) UpdatePost(ctx context.Context, userID, postID string, pu *transfer.PostUpdate) (*models.Post, error) {
	post, err := s.owned(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	if post.Status != models.PostStatusDraft && post.Status != models.PostStatusScheduled {
		return nil, invalidf("a %s post can no longer be edited", post.Status)
	}
	if post.Dispatched() {
		return nil, invalidf("post %s was already sent to some platforms and can no longer be edited", post.ID)
	}

	if pu.Text != nil {
		post.Content.Text = *pu.Text
	}
	if pu.PlatformOverrides != nil {
		post.Content.PlatformOverrides = pu.PlatformOverrides
	}
	if pu.TargetPlatforms != nil {
		if err := checkPlatforms(pu.TargetPlatforms); err != nil {
			return nil, err
		}
		post.TargetPlatforms = dedupe(pu.TargetPlatforms)
	}
	if post.Status == models.PostStatusScheduled && len(post.TargetPlatforms) == 0 {
		return nil, invalidf("a scheduled post needs at least one target platform")
	}

	previous := post.Media
	if pu.MediaIDs != nil {
		media, err := s.resolveMedia(ctx, userID, pu.MediaIDs)
		if err != nil {
			return nil, err
		}
		post.Media = media
	}

	if err := s.pr.UpdateContent(ctx, post); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("post %s changed while editing: %w", postID, err)
		}
		return nil, err
	}

	if pu.MediaIDs != nil {
		s.removeUsage(ctx, post.ID, previous)
		s.addUsage(ctx, post.ID, post.Media)
	}
	return post, nil
}

func (s *postService) PostInfo(ctx context.Context, userID, postID string) (*models.Post, error) {
	return s.owned(ctx, userID, postID)
}

func (s *postService) List(ctx context.Context, userID string, status models.PostStatus) ([]*models.Post, error) {
	if status != "" && !status.Valid() {
		return nil, invalidf("unknown status %q", status)
	}
	return s.pr.List(ctx, repository.PostFilter{
		UserID:  userID,
		Status:  status,
		OrderBy: repository.OrderCreatedDesc,
	})
}

func (s *postService) Range(ctx context.Context, userID string, from, to time.Time) ([]*models.Post, error) {
	if to.Before(from) {
		return nil, invalidf("range end is before its start")
	}
	return s.pr.List(ctx, repository.PostFilter{
		UserID:        userID,
		ScheduledFrom: from,
		ScheduledTo:   to,
		OrderBy:       repository.OrderScheduledAsc,
	})
}

func (s *postService) Remove(ctx context.Context, userID, postID string) error {
	post, err := s.owned(ctx, userID, postID)
	if err != nil {
		return err
	}
	if post.Status == models.PostStatusPublishing {
		return ErrPostBusy
	}
	if post.Status == models.PostStatusScheduled {
		if _, err := s.lc.Cancel(ctx, postID); err != nil {
			return s.lifecycleError(err)
		}
	}

	if err := s.pr.Remove(ctx, postID); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return ErrPostBusy
		}
		return err
	}
	s.removeUsage(ctx, postID, post.Media)

	slog.Info("post removed", "post_id", postID, "user_id", userID)
	return nil
}

func (s *postService) Schedule(ctx context.Context, userID, postID, scheduledTime string) (*models.Post, error) {
	at, err := s.parseTime(ctx, userID, scheduledTime)
	if err != nil {
		return nil, err
	}
	if _, err := s.owned(ctx, userID, postID); err != nil {
		return nil, err
	}
	post, err := s.lc.Schedule(ctx, postID, at)
	return post, s.lifecycleError(err)
}

func (s *postService) Cancel(ctx context.Context, userID, postID string) (*models.Post, error) {
	if _, err := s.owned(ctx, userID, postID); err != nil {
		return nil, err
	}
	post, err := s.lc.Cancel(ctx, postID)
	return post, s.lifecycleError(err)
}

func (s *postService) Reschedule(ctx context.Context, userID, postID, scheduledTime string) (*models.Post, error) {
	at, err := s.parseTime(ctx, userID, scheduledTime)
	if err != nil {
		return nil, err
	}
	if _, err := s.owned(ctx, userID, postID); err != nil {
		return nil, err
	}
	post, err := s.lc.Reschedule(ctx, postID, at)
	return post, s.lifecycleError(err)
}

// owned loads a post and hides posts of other users behind not found.
func (s *postService) owned(ctx context.Context, userID, postID string) (*models.Post, error) {
	if postID == "" {
		return nil, invalidf("post id is required")
	}
	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.UserID != userID {
		return nil, repository.ErrPostNotFound
	}
	return post, nil
}

func (s *postService) lifecycleError(err error) error {
	if errors.Is(err, repository.ErrConflict) {
		return fmt.Errorf("%w: %w", ErrPostBusy, err)
	}
	return err
}

// parseTime reads a wall clock time in the user's timezone. Values with an
// explicit offset are taken as is. An empty value means now.
func (s *postService) parseTime(ctx context.Context, userID, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}

	loc := time.UTC
	user, err := s.users.GetByID(ctx, userID)
	switch {
	case err == nil:
		loc = user.Location()
	case !errors.Is(err, repository.ErrUserNotFound):
		return time.Time{}, err
	}

	t, err := time.ParseInLocation(scheduleLayout, value, loc)
	if err != nil {
		return time.Time{}, invalidf("invalid scheduled time %q", value)
	}
	return t.UTC(), nil
}

func (s *postService) resolveMedia(ctx context.Context, userID string, ids []string) ([]models.MediaItem, error) {
	items := make([]models.MediaItem, 0, len(ids))
	for _, id := range ids {
		m, err := s.ma.GetByID(ctx, id)
		if errors.Is(err, repository.ErrMediaNotFound) || (err == nil && m.UserID != userID) {
			return nil, invalidf("media %s does not exist", id)
		}
		if err != nil {
			return nil, err
		}
		items = append(items, m.Item())
	}
	return items, nil
}

func (s *postService) addUsage(ctx context.Context, postID string, media []models.MediaItem) {
	for _, m := range media {
		if err := s.ma.AddUsage(ctx, m.MediaID, postID); err != nil {
			slog.Warn("recording media usage failed", "media_id", m.MediaID, "post_id", postID, "error", err)
		}
	}
}

func (s *postService) removeUsage(ctx context.Context, postID string, media []models.MediaItem) {
	for _, m := range media {
		if m.MediaID == "" {
			continue
		}
		if err := s.ma.RemoveUsage(ctx, m.MediaID, postID); err != nil && !errors.Is(err, repository.ErrMediaNotFound) {
			slog.Warn("clearing media usage failed", "media_id", m.MediaID, "post_id", postID, "error", err)
		}
	}
}

func checkPlatforms(platforms []models.Platform) error {
	for _, p := range platforms {
		if !p.Valid() {
			return invalidf("unknown platform %q", p)
		}
	}
	return nil
}

func dedupe(platforms []models.Platform) []models.Platform {
	seen := make(map[models.Platform]bool, len(platforms))
	out := make([]models.Platform, 0, len(platforms))
	for _, p := range platforms {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

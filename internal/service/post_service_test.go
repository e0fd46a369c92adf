package service

import (
	"context"
	"testing"
	"time"

	"github.com/maheshrc27/crosspost/internal/engine"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePostDraft(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.upload(t, "user-1")

	post, err := e.svc.CreatePost(ctx, "user-1", &transfer.PostCreation{
		Text:            "hello",
		MediaIDs:        []string{m.ID},
		TargetPlatforms: []models.Platform{models.PlatformInstagram, models.PlatformInstagram},
	})
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusDraft, post.Status)
	assert.Equal(t, []models.Platform{models.PlatformInstagram}, post.TargetPlatforms)
	require.Len(t, post.Media, 1)
	assert.Equal(t, m.URL, post.Media[0].URL)
	assert.Empty(t, e.queue.Tasks())

	stored, err := e.media.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{post.ID}, stored.UsedInPosts)
}

func TestCreatePostScheduledInUserTimezone(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.users.Upsert(ctx, &models.User{
		ID:       "user-1",
		Settings: models.UserSettings{Timezone: "America/New_York"},
	}))

	post, err := e.svc.CreatePost(ctx, "user-1", &transfer.PostCreation{
		Text:            "hello",
		TargetPlatforms: []models.Platform{models.PlatformFacebook},
		ScheduledTime:   "2026-01-10T09:00",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusScheduled, post.Status)
	assert.Equal(t, time.Date(2026, 1, 10, 14, 0, 0, 0, time.UTC), post.ScheduledAt)

	tasks := e.queue.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, post.ID, tasks[0].PostID)
	assert.Equal(t, post.DispatchTaskID, tasks[0].TaskID)
}

func TestCreatePostRejections(t *testing.T) {
	e := newEnv(t)
	other := e.upload(t, "user-2")

	cases := map[string]*transfer.PostCreation{
		"missing":          nil,
		"empty":            {TargetPlatforms: []models.Platform{models.PlatformFacebook}},
		"unknown platform": {Text: "x", TargetPlatforms: []models.Platform{"myspace"}},
		"no targets":       {Text: "x", ScheduledTime: "2026-01-10T09:00"},
		"bad time":         {Text: "x", TargetPlatforms: []models.Platform{models.PlatformFacebook}, ScheduledTime: "tomorrow"},
		"foreign media":    {Text: "x", MediaIDs: []string{other.ID}},
	}
	for name, pc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := e.svc.CreatePost(context.Background(), "user-1", pc)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestUpdatePostSwapsMediaUsage(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	first := e.upload(t, "user-1")
	second := e.upload(t, "user-1")

	post, err := e.svc.CreatePost(ctx, "user-1", &transfer.PostCreation{Text: "a", MediaIDs: []string{first.ID}})
	require.NoError(t, err)

	text := "b"
	updated, err := e.svc.UpdatePost(ctx, "user-1", post.ID, &transfer.PostUpdate{
		Text:     &text,
		MediaIDs: []string{second.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, "b", updated.Content.Text)
	assert.Equal(t, int64(1), updated.Version)

	m1, err := e.media.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Empty(t, m1.UsedInPosts)
	m2, err := e.media.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{post.ID}, m2.UsedInPosts)
}

func TestUpdatePostAfterPublishIsRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	post := &models.Post{UserID: "user-1", Status: models.PostStatusPublished}
	_, err := e.posts.Create(ctx, post)
	require.NoError(t, err)

	text := "late"
	_, err = e.svc.UpdatePost(ctx, "user-1", post.ID, &transfer.PostUpdate{Text: &text})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpdatePostAwaitingRetryIsRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	post, err := e.svc.CreatePost(ctx, "user-1", &transfer.PostCreation{
		Text:            "hello",
		TargetPlatforms: []models.Platform{models.PlatformFacebook, models.PlatformThreads},
		ScheduledTime:   "2026-01-05T12:00:00Z",
	})
	require.NoError(t, err)

	// The first round published to facebook and left threads for a retry.
	claimed, err := e.posts.Claim(ctx, post.ID, models.PostStatusScheduled, post.Version, time.Time{})
	require.NoError(t, err)
	published := start
	claimed.Status = models.PostStatusScheduled
	claimed.RetryCount = 1
	claimed.ScheduledAt = start.Add(time.Minute)
	claimed.PublishResults = map[models.Platform]models.PublishResult{
		models.PlatformFacebook: {Status: models.PublishStatusSuccess, PostID: "fb-1", PublishedAt: &published},
		models.PlatformThreads:  {Status: models.PublishStatusFailed, ErrorKind: "transient", Retryable: true},
	}
	require.NoError(t, e.posts.CompareAndSwap(ctx, claimed, models.PostStatusPublishing))

	text := "edited"
	_, err = e.svc.UpdatePost(ctx, "user-1", post.ID, &transfer.PostUpdate{
		Text:            &text,
		TargetPlatforms: []models.Platform{models.PlatformThreads},
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	stored, err := e.posts.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", stored.Content.Text)
	assert.Equal(t, []models.Platform{models.PlatformFacebook, models.PlatformThreads}, stored.TargetPlatforms)
	for platform := range stored.PublishResults {
		assert.Contains(t, stored.TargetPlatforms, platform)
	}

	// The repository refuses the write too.
	stored.Content.Text = "edited"
	assert.ErrorIs(t, e.posts.UpdateContent(ctx, stored), repository.ErrConflict)
}

func TestPostsOfOtherUsersAreHidden(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	post, err := e.svc.CreatePost(ctx, "user-1", &transfer.PostCreation{Text: "mine"})
	require.NoError(t, err)

	_, err = e.svc.PostInfo(ctx, "user-2", post.ID)
	assert.ErrorIs(t, err, repository.ErrPostNotFound)
	assert.ErrorIs(t, e.svc.Remove(ctx, "user-2", post.ID), repository.ErrPostNotFound)
	_, err = e.svc.Schedule(ctx, "user-2", post.ID, "")
	assert.ErrorIs(t, err, repository.ErrPostNotFound)
}

func TestScheduleCancelAndRemove(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.upload(t, "user-1")
	post, err := e.svc.CreatePost(ctx, "user-1", &transfer.PostCreation{
		Text:            "hello",
		MediaIDs:        []string{m.ID},
		TargetPlatforms: []models.Platform{models.PlatformFacebook},
	})
	require.NoError(t, err)

	scheduled, err := e.svc.Schedule(ctx, "user-1", post.ID, "2026-01-06T10:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusScheduled, scheduled.Status)

	canceled, err := e.svc.Cancel(ctx, "user-1", post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusDraft, canceled.Status)
	assert.Equal(t, []string{scheduled.DispatchTaskID}, e.queue.Canceled())

	_, err = e.svc.Schedule(ctx, "user-1", post.ID, "")
	require.NoError(t, err)
	require.NoError(t, e.svc.Remove(ctx, "user-1", post.ID))

	_, err = e.posts.GetByID(ctx, post.ID)
	assert.ErrorIs(t, err, repository.ErrPostNotFound)
	stored, err := e.media.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.UsedInPosts)
	assert.Len(t, e.queue.Canceled(), 2)
}

func TestRemovePublishingPostIsBusy(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	post, err := e.svc.CreatePost(ctx, "user-1", &transfer.PostCreation{
		Text:            "hello",
		TargetPlatforms: []models.Platform{models.PlatformFacebook},
		ScheduledTime:   "2026-01-05T12:00:00Z",
	})
	require.NoError(t, err)
	_, err = e.posts.Claim(ctx, post.ID, models.PostStatusScheduled, post.Version, time.Time{})
	require.NoError(t, err)

	assert.ErrorIs(t, e.svc.Remove(ctx, "user-1", post.ID), ErrPostBusy)
	_, err = e.svc.Cancel(ctx, "user-1", post.ID)
	var te *engine.TransitionError
	assert.ErrorAs(t, err, &te)
}

func TestRescheduleOnlyAfterOutcome(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	post, err := e.svc.CreatePost(ctx, "user-1", &transfer.PostCreation{Text: "hello", TargetPlatforms: []models.Platform{models.PlatformFacebook}})
	require.NoError(t, err)

	_, err = e.svc.Reschedule(ctx, "user-1", post.ID, "")
	var te *engine.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, models.PostStatusDraft, te.From)
}

func TestListAndRange(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	later, err := e.svc.CreatePost(ctx, "user-1", &transfer.PostCreation{
		Text: "later", TargetPlatforms: []models.Platform{models.PlatformFacebook}, ScheduledTime: "2026-01-08T09:00:00Z",
	})
	require.NoError(t, err)
	sooner, err := e.svc.CreatePost(ctx, "user-1", &transfer.PostCreation{
		Text: "sooner", TargetPlatforms: []models.Platform{models.PlatformFacebook}, ScheduledTime: "2026-01-06T09:00:00Z",
	})
	require.NoError(t, err)
	_, err = e.svc.CreatePost(ctx, "user-1", &transfer.PostCreation{Text: "draft"})
	require.NoError(t, err)

	scheduled, err := e.svc.List(ctx, "user-1", models.PostStatusScheduled)
	require.NoError(t, err)
	assert.Len(t, scheduled, 2)

	_, err = e.svc.List(ctx, "user-1", "bogus")
	assert.ErrorIs(t, err, ErrInvalidInput)

	week, err := e.svc.Range(ctx, "user-1", start, start.Add(7*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, week, 2)
	assert.Equal(t, sooner.ID, week[0].ID)
	assert.Equal(t, later.ID, week[1].ID)

	_, err = e.svc.Range(ctx, "user-1", start, start.Add(-time.Hour))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

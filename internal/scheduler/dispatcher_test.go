package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/maheshrc27/crosspost/internal/engine"
	"github.com/maheshrc27/crosspost/internal/engine/enginetest"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/publisher"
	"github.com/maheshrc27/crosspost/internal/publisher/publishertest"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	clock *enginetest.Clock
	posts repository.PostRepository
	ig    *publishertest.Publisher
	fb    *publishertest.Publisher
	deps  engine.Deps
	eng   *engine.Engine
}

func newFixture(t *testing.T, posts func(repository.PostRepository) repository.PostRepository) *fixture {
	t.Helper()
	f := &fixture{
		clock: enginetest.NewClock(start),
		ig:    publishertest.New(models.PlatformInstagram, 2200),
		fb:    publishertest.New(models.PlatformFacebook, 63206),
	}
	f.posts = repository.NewMemoryPostRepository(f.clock.Now)
	if posts != nil {
		f.posts = posts(f.posts)
	}
	f.deps = engine.Deps{
		Posts:      f.posts,
		Publishers: publisher.NewRegistry(f.ig, f.fb),
		Credentials: enginetest.NewCredentials(
			enginetest.Account("user-1", models.PlatformInstagram),
			enginetest.Account("user-1", models.PlatformFacebook),
		),
		Policy: engine.DefaultPolicy(),
		Now:    f.clock.Now,
	}
	f.eng = engine.New(f.deps)
	return f
}

func (f *fixture) dispatcher(onError func(error)) *Dispatcher {
	return NewDispatcher(f.posts, f.eng, Options{Now: f.clock.Now, OnError: onError})
}

func (f *fixture) create(t *testing.T, at time.Time, platforms ...models.Platform) *models.Post {
	t.Helper()
	post := &models.Post{
		UserID:          "user-1",
		Content:         models.PostContent{Text: "hello"},
		TargetPlatforms: platforms,
		ScheduledAt:     at,
		Status:          models.PostStatusScheduled,
	}
	_, err := f.posts.Create(context.Background(), post)
	require.NoError(t, err)
	return post
}

func TestRunOnceIsIdempotentUnderConcurrency(t *testing.T) {
	f := newFixture(t, nil)
	post := f.create(t, start.Add(-time.Second), models.PlatformInstagram)
	f.ig.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(&publisher.Result{RemoteID: "ig-1"}, nil)

	var wg sync.WaitGroup
	reports := make([]*Report, 8)
	for i := range reports {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := f.dispatcher(nil).RunOnce(context.Background())
			assert.NoError(t, err)
			reports[i] = r
		}(i)
	}
	wg.Wait()

	claimed := 0
	for _, r := range reports {
		claimed += r.Claimed
	}
	assert.Equal(t, 1, claimed)
	assert.Equal(t, []string{post.ID}, f.ig.Published())

	stored, err := f.posts.GetByID(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPublished, stored.Status)
}

func TestRunOnceLeavesFuturePosts(t *testing.T) {
	f := newFixture(t, nil)
	f.create(t, start.Add(time.Hour), models.PlatformInstagram)

	r, err := f.dispatcher(nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, r.Due)
	assert.Empty(t, f.ig.Published())
}

func TestRunOnceReclaimsStalePublishing(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	post := f.create(t, start, models.PlatformInstagram, models.PlatformFacebook)

	// A dispatcher claimed the post, recorded instagram and crashed.
	claimed, err := f.posts.Claim(ctx, post.ID, models.PostStatusScheduled, post.Version, time.Time{})
	require.NoError(t, err)
	published := start
	require.NoError(t, f.posts.SetPublishResult(ctx, claimed.ID, models.PlatformInstagram, models.PublishResult{
		Status:      models.PublishStatusSuccess,
		PostID:      "ig-1",
		PublishedAt: &published,
	}))

	f.clock.Advance(5 * time.Minute)
	r, err := f.dispatcher(nil).RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, r.Stale, "not stale yet")

	f.clock.Advance(6 * time.Minute)
	f.fb.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(&publisher.Result{RemoteID: "fb-1"}, nil).Once()
	r, err = f.dispatcher(nil).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Stale)
	assert.Equal(t, 1, r.Claimed)
	require.Len(t, r.Outcomes, 1)
	assert.Equal(t, []models.Platform{models.PlatformFacebook}, r.Outcomes[0].Attempted)

	assert.Empty(t, f.ig.Published())
	stored, err := f.posts.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPublished, stored.Status)
	assert.Equal(t, "ig-1", stored.PublishResults[models.PlatformInstagram].PostID)
}

func TestRunOnceKeepsLongRoundClaimed(t *testing.T) {
	f := newFixture(t, nil)
	f.deps.Policy.Heartbeat = 5 * time.Millisecond
	f.eng = engine.New(f.deps)
	ctx := context.Background()
	post := f.create(t, start, models.PlatformInstagram)

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	f.ig.On("Publish", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			select {
			case entered <- struct{}{}:
			default:
			}
			<-release
		}).
		Return(&publisher.Result{RemoteID: "ig-1"}, nil)

	first := make(chan *Report, 1)
	go func() {
		r, err := f.dispatcher(nil).RunOnce(ctx)
		assert.NoError(t, err)
		first <- r
	}()
	<-entered

	// The upload outlasts the stale threshold while the round is alive.
	f.clock.Advance(11 * time.Minute)
	require.Eventually(t, func() bool {
		stored, err := f.posts.GetByID(ctx, post.ID)
		return err == nil && stored.UpdatedAt.Equal(f.clock.Now())
	}, time.Second, 5*time.Millisecond)

	r, err := f.dispatcher(nil).RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, r.Stale)
	assert.Zero(t, r.Claimed)

	close(release)
	done := <-first
	assert.Equal(t, 1, done.Claimed)
	assert.Equal(t, []string{post.ID}, f.ig.Published())

	stored, err := f.posts.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPublished, stored.Status)
}

// failingResults refuses result writes for one post.
type failingResults struct {
	repository.PostRepository
	postID string
}

var errWrite = errors.New("write refused")

func (r *failingResults) SetPublishResult(ctx context.Context, id string, platform models.Platform, result models.PublishResult) error {
	if id == r.postID {
		return errWrite
	}
	return r.PostRepository.SetPublishResult(ctx, id, platform, result)
}

func TestRunOnceContinuesAfterGatewayFailure(t *testing.T) {
	failing := &failingResults{}
	f := newFixture(t, func(inner repository.PostRepository) repository.PostRepository {
		failing.PostRepository = inner
		return failing
	})
	ctx := context.Background()
	bad := f.create(t, start, models.PlatformInstagram)
	good := f.create(t, start, models.PlatformInstagram)
	failing.postID = bad.ID
	f.ig.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(&publisher.Result{RemoteID: "ig"}, nil)

	var (
		mu   sync.Mutex
		errs []error
	)
	r, err := f.dispatcher(func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}).RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, r.Claimed)
	assert.Equal(t, 1, r.Failed)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], errWrite)

	stored, err := f.posts.GetByID(ctx, good.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPublished, stored.Status)
}

func TestDispatchPost(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	post := f.create(t, start.Add(time.Minute), models.PlatformInstagram)
	f.ig.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(&publisher.Result{RemoteID: "ig-1"}, nil)
	d := f.dispatcher(nil)

	out, err := d.DispatchPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Nil(t, out, "handle fired early")

	f.clock.Advance(time.Minute)
	out, err = d.DispatchPost(ctx, post.ID)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, models.PostStatusPublished, out.Status)

	out, err = d.DispatchPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Nil(t, out, "handle fired twice")

	out, err = d.DispatchPost(ctx, "gone")
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Len(t, f.ig.Published(), 1)
}

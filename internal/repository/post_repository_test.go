package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var postRowColumns = []string{"id", "user_id", "content", "media", "target_platforms", "scheduled_at", "status",
	"publish_results", "retry_count", "dispatch_task_id", "version", "created_at", "updated_at"}

func newMockPostRepository(t *testing.T) (PostRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostRepository(db), mock
}

func TestPostRepositoryClaim(t *testing.T) {
	repo, mock := newMockPostRepository(t)
	scheduledAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(postRowColumns).AddRow(
		"p1", "u1", []byte(`{"text":"hi"}`), []byte(`[]`), "{instagram,facebook}", scheduledAt, "publishing",
		[]byte(`{"instagram":{"status":"success","postId":"ig-1","attemptedAt":"2024-05-01T12:00:00Z"}}`),
		1, "dispatch:p1:3", int64(4), scheduledAt, scheduledAt,
	)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE posts")).
		WithArgs(sqlmock.AnyArg(), "p1", "scheduled", int64(3), nil).
		WillReturnRows(rows)

	post, err := repo.Claim(context.Background(), "p1", models.PostStatusScheduled, 3, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, models.PostStatusPublishing, post.Status)
	assert.Equal(t, int64(4), post.Version)
	assert.Equal(t, []models.Platform{models.PlatformInstagram, models.PlatformFacebook}, post.TargetPlatforms)
	assert.True(t, post.Succeeded(models.PlatformInstagram))
	assert.Equal(t, "hi", post.Content.Text)
	assert.Equal(t, scheduledAt, post.ScheduledAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepositoryClaimConflict(t *testing.T) {
	repo, mock := newMockPostRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE posts")).
		WillReturnRows(sqlmock.NewRows(postRowColumns))

	_, err := repo.Claim(context.Background(), "p1", models.PostStatusPublishing, 3, time.Now())
	assert.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepositoryCompareAndSwap(t *testing.T) {
	repo, mock := newMockPostRepository(t)
	post := &models.Post{
		ID:             "p1",
		Status:         models.PostStatusPartial,
		PublishResults: map[models.Platform]models.PublishResult{},
		Version:        4,
	}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE posts")).
		WithArgs("partial", sqlmock.AnyArg(), 0, nil, "", sqlmock.AnyArg(), "p1", "publishing", int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.CompareAndSwap(context.Background(), post, models.PostStatusPublishing))
	assert.Equal(t, int64(5), post.Version)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE posts")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.CompareAndSwap(context.Background(), post, models.PostStatusPublishing), ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepositorySetPublishResult(t *testing.T) {
	repo, mock := newMockPostRepository(t)

	mock.ExpectExec(regexp.QuoteMeta("jsonb_set")).
		WithArgs("facebook", sqlmock.AnyArg(), sqlmock.AnyArg(), "p1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("jsonb_set")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	result := models.PublishResult{Status: models.PublishStatusFailed, Error: "rate limited", Retryable: true}
	require.NoError(t, repo.SetPublishResult(context.Background(), "p1", models.PlatformFacebook, result))
	assert.ErrorIs(t, repo.SetPublishResult(context.Background(), "p1", models.PlatformFacebook, result), ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepositoryHeartbeat(t *testing.T) {
	repo, mock := newMockPostRepository(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE posts SET updated_at = $1 WHERE id = $2 AND version = $3 AND status = 'publishing'")).
		WithArgs(sqlmock.AnyArg(), "p1", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE posts SET updated_at")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Heartbeat(context.Background(), "p1", 7))
	assert.ErrorIs(t, repo.Heartbeat(context.Background(), "p1", 7), ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepositoryUpdateContentSkipsDispatchedPosts(t *testing.T) {
	repo, mock := newMockPostRepository(t)
	post := &models.Post{ID: "p1", Version: 2, TargetPlatforms: []models.Platform{models.PlatformThreads}}

	mock.ExpectExec(regexp.QuoteMeta("AND retry_count = 0 AND publish_results = '{}'::jsonb")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.UpdateContent(context.Background(), post), ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepositoryRemove(t *testing.T) {
	repo, mock := newMockPostRepository(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM posts WHERE id = $1 AND status <> 'publishing'")).
		WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Remove(ctx, "p1"))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM posts")).
		WithArgs("p2").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM posts WHERE id = $1)")).
		WithArgs("p2").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	assert.ErrorIs(t, repo.Remove(ctx, "p2"), ErrConflict)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM posts")).
		WithArgs("gone").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	assert.ErrorIs(t, repo.Remove(ctx, "gone"), ErrPostNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepositoryGetByIDNotFound(t *testing.T) {
	repo, mock := newMockPostRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM posts WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(postRowColumns))

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrPostNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepositoryListBuildsFilter(t *testing.T) {
	repo, mock := newMockPostRepository(t)
	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1 AND status = $2 AND scheduled_at >= $3 AND scheduled_at <= $4 ORDER BY scheduled_at ASC LIMIT $5")).
		WithArgs("u1", "scheduled", from, to, 20).
		WillReturnRows(sqlmock.NewRows(postRowColumns))

	posts, err := repo.List(context.Background(), PostFilter{
		UserID:        "u1",
		Status:        models.PostStatusScheduled,
		ScheduledFrom: from,
		ScheduledTo:   to,
		OrderBy:       OrderScheduledAsc,
		Limit:         20,
	})
	require.NoError(t, err)
	assert.Empty(t, posts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMediaRepositoryRemoveInUse(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewMediaRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT used_in_posts FROM media WHERE id = $1 FOR UPDATE")).
		WithArgs("m1").
		WillReturnRows(sqlmock.NewRows([]string{"used_in_posts"}).AddRow("{p1,p2}"))
	mock.ExpectRollback()

	refs, err := repo.Remove(context.Background(), "m1", false)
	assert.ErrorIs(t, err, ErrMediaInUse)
	assert.Equal(t, []string{"p1", "p2"}, refs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMediaRepositoryRemoveForced(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewMediaRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT used_in_posts FROM media")).
		WithArgs("m1").
		WillReturnRows(sqlmock.NewRows([]string{"used_in_posts"}).AddRow("{p1}"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM media WHERE id = $1")).
		WithArgs("m1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	refs, err := repo.Remove(context.Background(), "m1", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, refs)
	require.NoError(t, mock.ExpectationsWereMet())
}

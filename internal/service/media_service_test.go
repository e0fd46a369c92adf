package service

import (
	"context"
	"errors"
	"testing"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadDetectsType(t *testing.T) {
	e := newEnv(t)
	var progress []int
	m, err := e.files.Upload(context.Background(), "user-1", "dir/../photo.png", png, func(p int) {
		progress = append(progress, p)
	})
	require.NoError(t, err)

	assert.Equal(t, models.MediaTypeImage, m.Type)
	assert.Equal(t, "image/png", m.MimeType)
	assert.Equal(t, m.URL, m.ThumbnailURL)
	assert.Regexp(t, `^media/user-1/[^/]+_photo\.png$`, m.StoragePath)
	assert.Contains(t, e.store.objects, m.StoragePath)
	assert.Equal(t, []int{100}, progress)
}

func TestUploadRejections(t *testing.T) {
	e := newEnv(t)
	cases := map[string][]byte{
		"empty":   nil,
		"unknown": []byte("just some text"),
		"pdf":     []byte("%PDF-1.7 rest of file"),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := e.files.Upload(context.Background(), "user-1", "f", data, nil)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
	assert.Empty(t, e.store.objects)
}

func TestUploadStoreFailure(t *testing.T) {
	e := newEnv(t)
	e.store.fail = errors.New("bucket offline")

	_, err := e.files.Upload(context.Background(), "user-1", "photo.png", png, nil)
	assert.EqualError(t, err, "bucket offline")

	list, err := e.files.List(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRemoveMedia(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.upload(t, "user-1")
	post, err := e.svc.CreatePost(ctx, "user-1", &transfer.PostCreation{MediaIDs: []string{m.ID}})
	require.NoError(t, err)

	_, err = e.files.Remove(ctx, "user-2", m.ID, true)
	assert.ErrorIs(t, err, repository.ErrMediaNotFound)

	refs, err := e.files.Remove(ctx, "user-1", m.ID, false)
	assert.ErrorIs(t, err, repository.ErrMediaInUse)
	assert.Equal(t, []string{post.ID}, refs)
	assert.Contains(t, e.store.objects, m.StoragePath)

	refs, err = e.files.Remove(ctx, "user-1", m.ID, true)
	require.NoError(t, err)
	assert.Equal(t, []string{post.ID}, refs)
	assert.NotContains(t, e.store.objects, m.StoragePath)

	// The post keeps its copy of the media item.
	stored, err := e.posts.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Media, 1)
}

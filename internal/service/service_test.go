package service

import (
	"context"
	"testing"
	"time"

	"github.com/maheshrc27/crosspost/internal/engine"
	"github.com/maheshrc27/crosspost/internal/engine/enginetest"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)

// png is the smallest header filetype recognizes as image/png.
var png = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 0x49, 0x48, 0x44, 0x52}

type env struct {
	clock *enginetest.Clock
	queue *enginetest.Queue
	posts repository.PostRepository
	media repository.MediaRepository
	users repository.UserRepository
	store *memoryStore
	svc   PostService
	files MediaService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		clock: enginetest.NewClock(start),
		queue: &enginetest.Queue{},
		store: newMemoryStore(),
	}
	e.posts = repository.NewMemoryPostRepository(e.clock.Now)
	e.media = repository.NewMemoryMediaRepository(e.clock.Now)
	e.users = repository.NewMemoryUserRepository(e.clock.Now)

	eng := engine.New(engine.Deps{
		Posts:  e.posts,
		Queue:  e.queue,
		Policy: engine.DefaultPolicy(),
		Now:    e.clock.Now,
	})
	e.svc = NewPostService(e.posts, e.media, e.users, eng)
	e.files = NewMediaService(e.media, e.store)
	return e
}

func (e *env) upload(t *testing.T, userID string) *models.Media {
	t.Helper()
	m, err := e.files.Upload(context.Background(), userID, "photo.png", png, nil)
	require.NoError(t, err)
	return m
}

// memoryStore is a BlobStore kept in a map.
type memoryStore struct {
	objects map[string][]byte
	fail    error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: make(map[string][]byte)}
}

func (s *memoryStore) Upload(ctx context.Context, ownerID, name, contentType string, data []byte, progress func(int)) (*StoredObject, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	key, err := objectPath(ownerID, name)
	if err != nil {
		return nil, err
	}
	s.objects[key] = data
	if progress != nil {
		progress(100)
	}
	return &StoredObject{URL: "https://cdn.test/" + key, Path: key}, nil
}

func (s *memoryStore) Delete(ctx context.Context, key string) error {
	delete(s.objects, key)
	return nil
}

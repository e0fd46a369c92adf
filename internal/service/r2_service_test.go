package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type request struct {
	method string
	path   string
	body   []byte
}

func fakeBucket(t *testing.T) (*r2Store, func() []request) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []request
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		seen = append(seen, request{method: r.Method, path: r.URL.Path, body: body})
		mu.Unlock()
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		BaseEndpoint: aws.String(srv.URL),
		Region:       "auto",
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("key", "secret", ""),
	})
	store := newR2Store(client, "media-bucket", "https://cdn.test/")
	return store, func() []request {
		mu.Lock()
		defer mu.Unlock()
		return append([]request(nil), seen...)
	}
}

func TestR2StoreUploadAndDelete(t *testing.T) {
	store, requests := fakeBucket(t)
	ctx := context.Background()

	var progress []int
	obj, err := store.Upload(ctx, "user-1", "clip.mp4", "video/mp4", []byte("movie bytes"), func(p int) {
		progress = append(progress, p)
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/"+obj.Path, obj.URL)
	require.NotEmpty(t, progress)
	assert.Equal(t, 100, progress[len(progress)-1])
	assert.IsNonDecreasing(t, progress)

	require.NoError(t, store.Delete(ctx, obj.Path))

	reqs := requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, http.MethodPut, reqs[0].method)
	assert.Equal(t, "/media-bucket/"+obj.Path, reqs[0].path)
	assert.Equal(t, []byte("movie bytes"), reqs[0].body)
	assert.Equal(t, http.MethodDelete, reqs[1].method)
}

func TestObjectPathSanitizesName(t *testing.T) {
	p, err := objectPath("user-1", `C:\Users\me\cat.jpg`)
	require.NoError(t, err)
	assert.Regexp(t, `^media/user-1/[^/]+_cat\.jpg$`, p)

	p, err = objectPath("user-1", "")
	require.NoError(t, err)
	assert.Regexp(t, `_upload$`, p)
}

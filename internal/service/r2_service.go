package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	cfg "github.com/maheshrc27/crosspost/configs"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

type StoredObject struct {
	URL  string
	Path string
}

// BlobStore keeps uploaded media. Progress, when set, receives the percentage
// of data sent so far.
type BlobStore interface {
	Upload(ctx context.Context, ownerID, name, contentType string, data []byte, progress func(percent int)) (*StoredObject, error)
	Delete(ctx context.Context, path string) error
}

type r2Store struct {
	client    *s3.Client
	bucket    string
	publicURL string
}

// NewR2Store returns a BlobStore backed by a Cloudflare R2 bucket.
func NewR2Store(ctx context.Context, r2 cfg.R2) (BlobStore, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(r2.AccessKey, r2.SecretKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", r2.AccountID))
	})
	return newR2Store(client, r2.BucketName, r2.PublicURL), nil
}

func newR2Store(client *s3.Client, bucket, publicURL string) *r2Store {
	return &r2Store{client: client, bucket: bucket, publicURL: strings.TrimRight(publicURL, "/")}
}

// objectPath builds media/<owner>/<nanoid>_<name>.
func objectPath(ownerID, name string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", err
	}
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "upload"
	}
	return fmt.Sprintf("media/%s/%s_%s", ownerID, id, name), nil
}

func (r *r2Store) Upload(ctx context.Context, ownerID, name, contentType string, data []byte, progress func(percent int)) (*StoredObject, error) {
	key, err := objectPath(ownerID, name)
	if err != nil {
		return nil, err
	}

	body := &progressReader{r: bytes.NewReader(data), total: int64(len(data)), report: progress}
	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("uploading %s: %w", key, err)
	}
	body.finish()

	return &StoredObject{URL: r.publicURL + "/" + key, Path: key}, nil
}

func (r *r2Store) Delete(ctx context.Context, key string) error {
	_, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// progressReader reports read progress. It stays seekable because the SDK
// rewinds bodies to sign and retry requests; a rewind restarts the count.
type progressReader struct {
	r      *bytes.Reader
	total  int64
	read   int64
	last   int
	report func(int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	p.emit()
	return n, err
}

func (p *progressReader) Seek(offset int64, whence int) (int64, error) {
	pos, err := p.r.Seek(offset, whence)
	if err == nil {
		p.read = pos
	}
	return pos, err
}

func (p *progressReader) emit() {
	if p.report == nil || p.total == 0 {
		return
	}
	pct := int(p.read * 100 / p.total)
	if pct > p.last {
		p.last = pct
		p.report(pct)
	}
}

func (p *progressReader) finish() {
	if p.report != nil && p.last < 100 {
		p.last = 100
		p.report(100)
	}
}

var _ io.ReadSeeker = (*progressReader)(nil)

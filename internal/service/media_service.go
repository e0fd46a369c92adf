package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
)

const MaxUploadBytes = 100 * 1024 * 1024

var allowedUploads = map[string]models.MediaType{
	"jpg":  models.MediaTypeImage,
	"png":  models.MediaTypeImage,
	"webp": models.MediaTypeImage,
	"mp4":  models.MediaTypeVideo,
	"mov":  models.MediaTypeVideo,
}

type MediaService interface {
	Upload(ctx context.Context, userID, name string, data []byte, progress func(percent int)) (*models.Media, error)
	List(ctx context.Context, userID string) ([]*models.Media, error)
	// Remove deletes a media record and its blob. Referenced media is only
	// removed when force is set; the ids of the posts left referencing it are
	// returned either way.
	Remove(ctx context.Context, userID, mediaID string, force bool) ([]string, error)
}

type mediaService struct {
	media repository.MediaRepository
	store BlobStore
}

func NewMediaService(media repository.MediaRepository, store BlobStore) MediaService {
	return &mediaService{media: media, store: store}
}

func (s *mediaService) Upload(ctx context.Context, userID, name string, data []byte, progress func(percent int)) (*models.Media, error) {
	if len(data) == 0 {
		return nil, invalidf("file is empty")
	}
	if len(data) > MaxUploadBytes {
		return nil, invalidf("file exceeds %d MB", MaxUploadBytes/1024/1024)
	}

	kind, err := filetype.Match(data)
	if err != nil || kind == types.Unknown {
		return nil, invalidf("unsupported file type")
	}
	mediaType, ok := allowedUploads[kind.Extension]
	if !ok {
		return nil, invalidf("file type %s is not allowed", kind.Extension)
	}

	obj, err := s.store.Upload(ctx, userID, name, kind.MIME.Value, data, progress)
	if err != nil {
		return nil, err
	}

	m := &models.Media{
		UserID:       userID,
		URL:          obj.URL,
		StoragePath:  obj.Path,
		Type:         mediaType,
		MimeType:     kind.MIME.Value,
		SizeBytes:    int64(len(data)),
		OriginalName: name,
		UploadedAt:   time.Now().UTC(),
	}
	if mediaType == models.MediaTypeImage {
		m.ThumbnailURL = obj.URL
	}

	if _, err := s.media.Create(ctx, m); err != nil {
		if derr := s.store.Delete(ctx, obj.Path); derr != nil {
			slog.Warn("deleting orphaned upload failed", "path", obj.Path, "error", derr)
		}
		return nil, fmt.Errorf("saving media record: %w", err)
	}
	return m, nil
}

func (s *mediaService) List(ctx context.Context, userID string) ([]*models.Media, error) {
	return s.media.ListByUserID(ctx, userID)
}

func (s *mediaService) Remove(ctx context.Context, userID, mediaID string, force bool) ([]string, error) {
	m, err := s.media.GetByID(ctx, mediaID)
	if err != nil {
		return nil, err
	}
	if m.UserID != userID {
		return nil, repository.ErrMediaNotFound
	}

	orphaned, err := s.media.Remove(ctx, mediaID, force)
	if err != nil {
		return orphaned, err
	}
	if len(orphaned) > 0 {
		slog.Info("media removed while referenced", "media_id", mediaID, "posts", orphaned)
	}

	if err := s.store.Delete(ctx, m.StoragePath); err != nil {
		slog.Warn("deleting media blob failed", "path", m.StoragePath, "error", err)
	}
	return orphaned, nil
}

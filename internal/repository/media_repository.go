package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/crosspost/internal/models"
)

type mediaRepository struct {
	db *sql.DB
}

func NewMediaRepository(db *sql.DB) MediaRepository {
	return &mediaRepository{db: db}
}

const mediaColumns = `id, user_id, url, thumbnail_url, storage_path, type, mime_type, size_bytes,
	original_name, uploaded_at, used_in_posts`

func scanMedia(row rowScanner) (*models.Media, error) {
	var (
		m         models.Media
		mediaType string
	)
	err := row.Scan(&m.ID, &m.UserID, &m.URL, &m.ThumbnailURL, &m.StoragePath, &mediaType, &m.MimeType,
		&m.SizeBytes, &m.OriginalName, &m.UploadedAt, pq.Array(&m.UsedInPosts))
	if err != nil {
		return nil, err
	}
	m.Type = models.MediaType(mediaType)
	if m.UsedInPosts == nil {
		m.UsedInPosts = []string{}
	}
	return &m, nil
}

func (r *mediaRepository) Create(ctx context.Context, m *models.Media) (string, error) {
	if m.ID == "" {
		id, err := newID()
		if err != nil {
			return "", err
		}
		m.ID = id
	}
	if m.UploadedAt.IsZero() {
		m.UploadedAt = time.Now().UTC()
	}
	if m.UsedInPosts == nil {
		m.UsedInPosts = []string{}
	}

	query := `
		INSERT INTO media (` + mediaColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query, m.ID, m.UserID, m.URL, m.ThumbnailURL, m.StoragePath,
		string(m.Type), m.MimeType, m.SizeBytes, m.OriginalName, m.UploadedAt, pq.Array(m.UsedInPosts))
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}
	return m.ID, nil
}

func (r *mediaRepository) GetByID(ctx context.Context, id string) (*models.Media, error) {
	query := `SELECT ` + mediaColumns + ` FROM media WHERE id = $1`
	m, err := scanMedia(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMediaNotFound
		}
		slog.Info(err.Error())
		return nil, err
	}
	return m, nil
}

func (r *mediaRepository) ListByUserID(ctx context.Context, userID string) ([]*models.Media, error) {
	query := `SELECT ` + mediaColumns + ` FROM media WHERE user_id = $1 ORDER BY uploaded_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var media []*models.Media
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		media = append(media, m)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return media, nil
}

func (r *mediaRepository) AddUsage(ctx context.Context, mediaID, postID string) error {
	query := `
		UPDATE media
		SET used_in_posts = CASE
			WHEN $2 = ANY(used_in_posts) THEN used_in_posts
			ELSE array_append(used_in_posts, $2)
		END
		WHERE id = $1
	`
	return r.execUsage(ctx, query, mediaID, postID)
}

func (r *mediaRepository) RemoveUsage(ctx context.Context, mediaID, postID string) error {
	query := `UPDATE media SET used_in_posts = array_remove(used_in_posts, $2) WHERE id = $1`
	return r.execUsage(ctx, query, mediaID, postID)
}

func (r *mediaRepository) execUsage(ctx context.Context, query, mediaID, postID string) error {
	result, err := r.db.ExecContext(ctx, query, mediaID, postID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected == 0 {
		return ErrMediaNotFound
	}
	return nil
}

func (r *mediaRepository) Remove(ctx context.Context, id string, force bool) ([]string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer tx.Rollback()

	var usedIn []string
	err = tx.QueryRowContext(ctx, `SELECT used_in_posts FROM media WHERE id = $1 FOR UPDATE`, id).
		Scan(pq.Array(&usedIn))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMediaNotFound
		}
		slog.Info(err.Error())
		return nil, err
	}
	if len(usedIn) > 0 && !force {
		return usedIn, ErrMediaInUse
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM media WHERE id = $1`, id); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return usedIn, nil
}

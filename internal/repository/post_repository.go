package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/crosspost/internal/models"
)

const postColumns = `id, user_id, content, media, target_platforms, scheduled_at, status,
	publish_results, retry_count, dispatch_task_id, version, created_at, updated_at`

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*models.Post, error) {
	var (
		post        models.Post
		content     []byte
		media       []byte
		results     []byte
		platforms   []string
		scheduledAt sql.NullTime
		status      string
	)

	err := row.Scan(&post.ID, &post.UserID, &content, &media, pq.Array(&platforms), &scheduledAt,
		&status, &results, &post.RetryCount, &post.DispatchTaskID, &post.Version, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(content, &post.Content); err != nil {
		return nil, fmt.Errorf("decoding content of post %s: %w", post.ID, err)
	}
	if len(media) > 0 {
		if err := json.Unmarshal(media, &post.Media); err != nil {
			return nil, fmt.Errorf("decoding media of post %s: %w", post.ID, err)
		}
	}
	post.PublishResults = make(map[models.Platform]models.PublishResult)
	if len(results) > 0 {
		if err := json.Unmarshal(results, &post.PublishResults); err != nil {
			return nil, fmt.Errorf("decoding publish results of post %s: %w", post.ID, err)
		}
	}

	post.TargetPlatforms = make([]models.Platform, 0, len(platforms))
	for _, p := range platforms {
		post.TargetPlatforms = append(post.TargetPlatforms, models.Platform(p))
	}
	if scheduledAt.Valid {
		post.ScheduledAt = scheduledAt.Time
	}
	post.Status = models.PostStatus(status)

	return &post, nil
}

func platformStrings(platforms []models.Platform) []string {
	out := make([]string, 0, len(platforms))
	for _, p := range platforms {
		out = append(out, string(p))
	}
	return out
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) (string, error) {
	if post.ID == "" {
		id, err := newID()
		if err != nil {
			return "", err
		}
		post.ID = id
	}
	if post.PublishResults == nil {
		post.PublishResults = make(map[models.Platform]models.PublishResult)
	}
	if post.Media == nil {
		post.Media = []models.MediaItem{}
	}

	content, err := json.Marshal(post.Content)
	if err != nil {
		return "", err
	}
	media, err := json.Marshal(post.Media)
	if err != nil {
		return "", err
	}
	results, err := json.Marshal(post.PublishResults)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO posts (id, user_id, content, media, target_platforms, scheduled_at, status,
			publish_results, retry_count, dispatch_task_id, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, $11, $11)
	`
	_, err = r.db.ExecContext(ctx, query, post.ID, post.UserID, content, media,
		pq.Array(platformStrings(post.TargetPlatforms)), nullTime(post.ScheduledAt), string(post.Status),
		results, post.RetryCount, post.DispatchTaskID, now)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	post.Version = 0
	post.CreatedAt = now
	post.UpdatedAt = now
	return post.ID, nil
}

func (r *postRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`

	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPostNotFound
		}
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

func (r *postRepository) List(ctx context.Context, filter PostFilter) ([]*models.Post, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if !filter.ScheduledFrom.IsZero() {
		add("scheduled_at >= $%d", filter.ScheduledFrom)
	}
	if !filter.ScheduledTo.IsZero() {
		add("scheduled_at <= $%d", filter.ScheduledTo)
	}

	query := `SELECT ` + postColumns + ` FROM posts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	switch filter.OrderBy {
	case OrderScheduledAsc:
		query += ` ORDER BY scheduled_at ASC`
	default:
		query += ` ORDER BY created_at DESC`
	}
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	return r.query(ctx, query, args...)
}

func (r *postRepository) query(ctx context.Context, query string, args ...any) ([]*models.Post, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return posts, nil
}

func (r *postRepository) UpdateContent(ctx context.Context, post *models.Post) error {
	content, err := json.Marshal(post.Content)
	if err != nil {
		return err
	}
	media, err := json.Marshal(post.Media)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	query := `
		UPDATE posts
		SET content = $1,
			media = $2,
			target_platforms = $3,
			updated_at = $4,
			version = version + 1
		WHERE id = $5 AND version = $6 AND status IN ('draft', 'scheduled')
			AND retry_count = 0 AND publish_results = '{}'::jsonb
	`
	result, err := r.db.ExecContext(ctx, query, content, media, pq.Array(platformStrings(post.TargetPlatforms)),
		now, post.ID, post.Version)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if err := expectOneRow(result); err != nil {
		return err
	}

	post.Version++
	post.UpdatedAt = now
	return nil
}

func (r *postRepository) CompareAndSwap(ctx context.Context, post *models.Post, expected models.PostStatus) error {
	results, err := json.Marshal(post.PublishResults)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	query := `
		UPDATE posts
		SET status = $1,
			publish_results = $2,
			retry_count = $3,
			scheduled_at = $4,
			dispatch_task_id = $5,
			updated_at = $6,
			version = version + 1
		WHERE id = $7 AND status = $8 AND version = $9
	`
	result, err := r.db.ExecContext(ctx, query, string(post.Status), results, post.RetryCount,
		nullTime(post.ScheduledAt), post.DispatchTaskID, now, post.ID, string(expected), post.Version)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if err := expectOneRow(result); err != nil {
		return err
	}

	post.Version++
	post.UpdatedAt = now
	return nil
}

func (r *postRepository) Claim(ctx context.Context, id string, from models.PostStatus, version int64, staleBefore time.Time) (*models.Post, error) {
	query := `
		UPDATE posts
		SET status = 'publishing',
			updated_at = $1,
			version = version + 1
		WHERE id = $2 AND status = $3 AND version = $4
			AND ($5::timestamptz IS NULL OR updated_at < $5)
		RETURNING ` + postColumns

	post, err := scanPost(r.db.QueryRowContext(ctx, query, time.Now().UTC(), id, string(from), version, nullTime(staleBefore)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConflict
		}
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

func (r *postRepository) SetPublishResult(ctx context.Context, id string, platform models.Platform, result models.PublishResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}

	query := `
		UPDATE posts
		SET publish_results = jsonb_set(COALESCE(publish_results, '{}'::jsonb), ARRAY[$1::text], $2::jsonb, true),
			updated_at = $3
		WHERE id = $4 AND status = 'publishing'
	`
	res, err := r.db.ExecContext(ctx, query, string(platform), payload, time.Now().UTC(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return expectOneRow(res)
}

func (r *postRepository) Heartbeat(ctx context.Context, id string, version int64) error {
	query := `UPDATE posts SET updated_at = $1 WHERE id = $2 AND version = $3 AND status = 'publishing'`
	res, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id, version)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return expectOneRow(res)
}

func (r *postRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + `
		FROM posts
		WHERE status = 'scheduled' AND scheduled_at <= $1
		ORDER BY scheduled_at ASC
		LIMIT $2`
	return r.query(ctx, query, now, limit)
}

func (r *postRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + `
		FROM posts
		WHERE status = 'publishing' AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2`
	return r.query(ctx, query, before, limit)
}

func (r *postRepository) Remove(ctx context.Context, id string) error {
	query := `DELETE FROM posts WHERE id = $1 AND status <> 'publishing'`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if err := expectOneRow(result); !errors.Is(err, ErrConflict) {
		return err
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM posts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrPostNotFound
	}
	return ErrConflict
}

func expectOneRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected != 1 {
		return ErrConflict
	}
	return nil
}

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

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var (
		user      models.User
		platforms []string
	)
	query := `
		SELECT id, email, display_name, photo_url, timezone, default_platforms, created_at, updated_at
		FROM users WHERE id = $1
	`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&user.ID, &user.Email, &user.DisplayName, &user.PhotoURL,
		&user.Settings.Timezone, pq.Array(&platforms), &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		slog.Info(err.Error())
		return nil, err
	}

	user.Settings.DefaultPlatforms = make([]models.Platform, 0, len(platforms))
	for _, p := range platforms {
		user.Settings.DefaultPlatforms = append(user.Settings.DefaultPlatforms, models.Platform(p))
	}
	return &user, nil
}

// Upsert creates the profile on first sign-in and refreshes identity fields
// afterwards. Settings are only written on insert.
func (r *userRepository) Upsert(ctx context.Context, u *models.User) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO users (id, email, display_name, photo_url, timezone, default_platforms, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (id) DO UPDATE
		SET email = EXCLUDED.email,
			display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), users.display_name),
			photo_url = COALESCE(NULLIF(EXCLUDED.photo_url, ''), users.photo_url),
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query, u.ID, u.Email, u.DisplayName, u.PhotoURL,
		u.Settings.Timezone, pq.Array(platformStrings(u.Settings.DefaultPlatforms)), now)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *userRepository) UpdateSettings(ctx context.Context, id, displayName string, settings models.UserSettings) error {
	query := `
		UPDATE users
		SET display_name = COALESCE(NULLIF($1, ''), display_name),
			timezone = $2,
			default_platforms = $3,
			updated_at = $4
		WHERE id = $5
	`
	result, err := r.db.ExecContext(ctx, query, displayName, settings.Timezone,
		pq.Array(platformStrings(settings.DefaultPlatforms)), time.Now().UTC(), id)
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
		return ErrUserNotFound
	}
	return nil
}

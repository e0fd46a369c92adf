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

type socialAccountRepository struct {
	db *sql.DB
}

func NewSocialAccountRepository(db *sql.DB) SocialAccountRepository {
	return &socialAccountRepository{db: db}
}

const accountColumns = `id, user_id, platform, platform_account_id, account_name, profile_pic_url,
	access_token, refresh_token, token_expires_at, scopes, is_active, connected_at, last_used_at`

func scanAccount(row rowScanner) (*models.SocialAccount, error) {
	var (
		sa        models.SocialAccount
		platform  string
		expiresAt sql.NullTime
		lastUsed  sql.NullTime
	)
	err := row.Scan(&sa.ID, &sa.UserID, &platform, &sa.PlatformAccountID, &sa.AccountName, &sa.ProfilePicURL,
		&sa.AccessToken, &sa.RefreshToken, &expiresAt, pq.Array(&sa.Scopes), &sa.IsActive, &sa.ConnectedAt, &lastUsed)
	if err != nil {
		return nil, err
	}
	sa.Platform = models.Platform(platform)
	if expiresAt.Valid {
		sa.TokenExpiresAt = expiresAt.Time
	}
	if lastUsed.Valid {
		sa.LastUsedAt = lastUsed.Time
	}
	return &sa, nil
}

func (r *socialAccountRepository) Create(ctx context.Context, sa *models.SocialAccount) (string, error) {
	if sa.ID == "" {
		id, err := newID()
		if err != nil {
			return "", err
		}
		sa.ID = id
	}
	if sa.ConnectedAt.IsZero() {
		sa.ConnectedAt = time.Now().UTC()
	}

	// Reconnecting the same platform account replaces its tokens.
	query := `
		INSERT INTO social_accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (user_id, platform, platform_account_id) DO UPDATE
		SET account_name = EXCLUDED.account_name,
			profile_pic_url = EXCLUDED.profile_pic_url,
			access_token = EXCLUDED.access_token,
			refresh_token = COALESCE(NULLIF(EXCLUDED.refresh_token, ''), social_accounts.refresh_token),
			token_expires_at = EXCLUDED.token_expires_at,
			scopes = EXCLUDED.scopes,
			is_active = TRUE
		RETURNING id
	`
	var id string
	err := r.db.QueryRowContext(ctx, query,
		sa.ID,
		sa.UserID,
		string(sa.Platform),
		sa.PlatformAccountID,
		sa.AccountName,
		sa.ProfilePicURL,
		sa.AccessToken,
		sa.RefreshToken,
		nullTime(sa.TokenExpiresAt),
		pq.Array(sa.Scopes),
		true,
		sa.ConnectedAt,
		nullTime(sa.LastUsedAt),
	).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	sa.ID = id
	sa.IsActive = true
	return id, nil
}

func (r *socialAccountRepository) GetByID(ctx context.Context, id string) (*models.SocialAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM social_accounts WHERE id = $1`
	sa, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		slog.Info(err.Error())
		return nil, err
	}
	return sa, nil
}

func (r *socialAccountRepository) GetActive(ctx context.Context, userID string, platform models.Platform) (*models.SocialAccount, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM social_accounts
		WHERE user_id = $1 AND platform = $2 AND is_active
		ORDER BY connected_at DESC
		LIMIT 1
	`
	sa, err := scanAccount(r.db.QueryRowContext(ctx, query, userID, string(platform)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		slog.Info(err.Error())
		return nil, err
	}
	return sa, nil
}

func (r *socialAccountRepository) ListByUserID(ctx context.Context, userID string) ([]*models.SocialAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM social_accounts WHERE user_id = $1 ORDER BY connected_at DESC`
	return r.list(ctx, query, userID)
}

// ListExpiring returns active accounts whose token expires before the given
// instant, including already expired ones.
func (r *socialAccountRepository) ListExpiring(ctx context.Context, before time.Time) ([]*models.SocialAccount, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM social_accounts
		WHERE is_active AND token_expires_at IS NOT NULL AND token_expires_at < $1
		ORDER BY token_expires_at ASC
	`
	return r.list(ctx, query, before)
}

func (r *socialAccountRepository) list(ctx context.Context, query string, args ...any) ([]*models.SocialAccount, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.SocialAccount
	for rows.Next() {
		sa, err := scanAccount(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		accounts = append(accounts, sa)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return accounts, nil
}

func (r *socialAccountRepository) SetToken(ctx context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error {
	query := `
		UPDATE social_accounts
		SET
			access_token = COALESCE(NULLIF($2, ''), access_token),
			refresh_token = COALESCE(NULLIF($3, ''), refresh_token),
			token_expires_at = COALESCE($4, token_expires_at),
			is_active = TRUE
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, accessToken, refreshToken, nullTime(expiresAt))
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return r.expectAccount(result)
}

func (r *socialAccountRepository) Deactivate(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE social_accounts SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return r.expectAccount(result)
}

func (r *socialAccountRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `UPDATE social_accounts SET last_used_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return r.expectAccount(result)
}

func (r *socialAccountRepository) Remove(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM social_accounts WHERE id = $1`, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return r.expectAccount(result)
}

func (r *socialAccountRepository) expectAccount(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

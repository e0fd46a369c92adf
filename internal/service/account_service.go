package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/publisher"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/transfer"
	"github.com/maheshrc27/crosspost/pkg/utils"
)

// AccountService manages connected social accounts. Tokens are stored
// encrypted; every account it returns to a publisher carries them in clear.
type AccountService interface {
	Connect(ctx context.Context, userID string, in *transfer.AccountConnection) (*models.SocialAccount, error)
	List(ctx context.Context, userID string) ([]*models.SocialAccount, error)
	Disconnect(ctx context.Context, userID, accountID string) error

	Credential(ctx context.Context, userID string, platform models.Platform) (*models.SocialAccount, error)
	SaveToken(ctx context.Context, account *models.SocialAccount, token *publisher.TokenResult) error
	MarkUsed(ctx context.Context, account *models.SocialAccount) error

	// Expiring returns the active accounts whose token expires before the
	// given time.
	Expiring(ctx context.Context, before time.Time) ([]*models.SocialAccount, error)
	Deactivate(ctx context.Context, account *models.SocialAccount) error
}

type accountService struct {
	accounts repository.SocialAccountRepository
	cipher   *utils.Cipher
	now      func() time.Time
}

func NewAccountService(accounts repository.SocialAccountRepository, cipher *utils.Cipher) AccountService {
	return &accountService{accounts: accounts, cipher: cipher, now: time.Now}
}

func (s *accountService) Connect(ctx context.Context, userID string, in *transfer.AccountConnection) (*models.SocialAccount, error) {
	if in == nil {
		return nil, invalidf("connection data is missing")
	}
	if !in.Platform.Valid() {
		return nil, invalidf("unknown platform %q", in.Platform)
	}
	if in.PlatformAccountID == "" || in.AccessToken == "" {
		return nil, invalidf("platform account id and access token are required")
	}

	access, err := s.cipher.Encrypt(in.AccessToken)
	if err != nil {
		return nil, err
	}
	refresh, err := s.cipher.Encrypt(in.RefreshToken)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sa := &models.SocialAccount{
		UserID:            userID,
		Platform:          in.Platform,
		PlatformAccountID: in.PlatformAccountID,
		AccountName:       in.AccountName,
		ProfilePicURL:     in.ProfilePicURL,
		AccessToken:       access,
		RefreshToken:      refresh,
		TokenExpiresAt:    in.ExpiresAt(now),
		Scopes:            in.Scopes,
		IsActive:          true,
		ConnectedAt:       now,
	}
	id, err := s.accounts.Create(ctx, sa)
	if err != nil {
		return nil, fmt.Errorf("saving %s account: %w", in.Platform, err)
	}
	sa.ID = id

	slog.Info("social account connected", "user_id", userID, "platform", in.Platform, "account_id", id)
	return redact(sa), nil
}

func (s *accountService) List(ctx context.Context, userID string) ([]*models.SocialAccount, error) {
	accounts, err := s.accounts.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i, a := range accounts {
		accounts[i] = redact(a)
	}
	return accounts, nil
}

func (s *accountService) Disconnect(ctx context.Context, userID, accountID string) error {
	sa, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if sa.UserID != userID {
		return repository.ErrAccountNotFound
	}
	return s.accounts.Remove(ctx, accountID)
}

func (s *accountService) Credential(ctx context.Context, userID string, platform models.Platform) (*models.SocialAccount, error) {
	sa, err := s.accounts.GetActive(ctx, userID, platform)
	if err != nil {
		return nil, err
	}
	return s.decrypt(sa)
}

func (s *accountService) SaveToken(ctx context.Context, account *models.SocialAccount, token *publisher.TokenResult) error {
	access, err := s.cipher.Encrypt(token.AccessToken)
	if err != nil {
		return err
	}
	refresh, err := s.cipher.Encrypt(token.RefreshToken)
	if err != nil {
		return err
	}
	return s.accounts.SetToken(ctx, account.ID, access, refresh, token.ExpiresAt)
}

func (s *accountService) MarkUsed(ctx context.Context, account *models.SocialAccount) error {
	return s.accounts.TouchLastUsed(ctx, account.ID, s.now().UTC())
}

func (s *accountService) Expiring(ctx context.Context, before time.Time) ([]*models.SocialAccount, error) {
	accounts, err := s.accounts.ListExpiring(ctx, before)
	if err != nil {
		return nil, err
	}

	out := make([]*models.SocialAccount, 0, len(accounts))
	for _, sa := range accounts {
		plain, err := s.decrypt(sa)
		if err != nil {
			slog.Warn("skipping account with unreadable tokens", "account_id", sa.ID, "error", err)
			continue
		}
		out = append(out, plain)
	}
	return out, nil
}

func (s *accountService) Deactivate(ctx context.Context, account *models.SocialAccount) error {
	return s.accounts.Deactivate(ctx, account.ID)
}

func (s *accountService) decrypt(sa *models.SocialAccount) (*models.SocialAccount, error) {
	access, err := s.cipher.Decrypt(sa.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("decrypting access token of %s: %w", sa.ID, err)
	}
	refresh, err := s.cipher.Decrypt(sa.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("decrypting refresh token of %s: %w", sa.ID, err)
	}
	plain := *sa
	plain.AccessToken = access
	plain.RefreshToken = refresh
	return &plain, nil
}

func redact(sa *models.SocialAccount) *models.SocialAccount {
	c := *sa
	c.AccessToken = ""
	c.RefreshToken = ""
	return &c
}

package service

import (
	"context"
	"strings"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/transfer"
)

type UserService interface {
	GetUserInfo(ctx context.Context, id string) (*models.User, error)
	// Sync records the identity the auth provider vouched for.
	Sync(ctx context.Context, u *models.User) error
	UpdateSettings(ctx context.Context, id string, in *transfer.SettingsUpdate) (*models.User, error)
}

type userService struct {
	u repository.UserRepository
}

func NewUserService(u repository.UserRepository) UserService {
	return &userService{u: u}
}

func (s *userService) GetUserInfo(ctx context.Context, id string) (*models.User, error) {
	return s.u.GetByID(ctx, id)
}

func (s *userService) Sync(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		return invalidf("user id is required")
	}
	return s.u.Upsert(ctx, u)
}

func (s *userService) UpdateSettings(ctx context.Context, id string, in *transfer.SettingsUpdate) (*models.User, error) {
	user, err := s.u.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	displayName := user.DisplayName
	if in.DisplayName != nil {
		displayName = strings.TrimSpace(*in.DisplayName)
	}

	settings := user.Settings
	if in.Timezone != nil {
		tz := strings.TrimSpace(*in.Timezone)
		if _, err := time.LoadLocation(tz); err != nil || tz == "" {
			return nil, invalidf("unknown timezone %q", tz)
		}
		settings.Timezone = tz
	}
	if in.DefaultPlatforms != nil {
		for _, p := range in.DefaultPlatforms {
			if !p.Valid() {
				return nil, invalidf("unknown platform %q", p)
			}
		}
		settings.DefaultPlatforms = in.DefaultPlatforms
	}

	if err := s.u.UpdateSettings(ctx, id, displayName, settings); err != nil {
		return nil, err
	}
	user.DisplayName = displayName
	user.Settings = settings
	return user, nil
}

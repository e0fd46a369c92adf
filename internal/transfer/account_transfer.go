package transfer

import (
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
)

// AccountConnection carries the tokens a completed OAuth flow produced.
type AccountConnection struct {
	Platform          models.Platform `json:"platform"`
	PlatformAccountID string          `json:"platformAccountId"`
	AccountName       string          `json:"accountName"`
	ProfilePicURL     string          `json:"profilePicUrl"`
	AccessToken       string          `json:"accessToken"`
	RefreshToken      string          `json:"refreshToken"`
	ExpiresIn         int             `json:"expiresIn"`
	Scopes            []string        `json:"scopes"`
}

func (c *AccountConnection) ExpiresAt(now time.Time) time.Time {
	if c.ExpiresIn <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(c.ExpiresIn) * time.Second)
}

package models

import (
	"time"
)

type SocialAccount struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	Platform          Platform  `json:"platform"`
	PlatformAccountID string    `json:"platformAccountId"`
	AccountName       string    `json:"accountName"`
	ProfilePicURL     string    `json:"profilePicUrl"`
	AccessToken       string    `json:"-"`
	RefreshToken      string    `json:"-"`
	TokenExpiresAt    time.Time `json:"tokenExpiresAt"`
	Scopes            []string  `json:"scopes"`
	IsActive          bool      `json:"isActive"`
	ConnectedAt       time.Time `json:"connectedAt"`
	LastUsedAt        time.Time `json:"lastUsedAt"`
}

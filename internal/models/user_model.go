package models

import "time"

type UserSettings struct {
	Timezone         string     `json:"timezone"`
	DefaultPlatforms []Platform `json:"defaultPlatforms"`
}

type User struct {
	ID          string       `json:"id"`
	Email       string       `json:"email"`
	DisplayName string       `json:"displayName"`
	PhotoURL    string       `json:"photoURL"`
	Settings    UserSettings `json:"settings"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Location resolves the user's timezone, falling back to UTC when unset or
// unknown.
func (u *User) Location() *time.Location {
	if u == nil || u.Settings.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(u.Settings.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

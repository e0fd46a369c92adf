package transfer

import "github.com/maheshrc27/crosspost/internal/models"

type SettingsUpdate struct {
	DisplayName      *string           `json:"displayName,omitempty"`
	Timezone         *string           `json:"timezone,omitempty"`
	DefaultPlatforms []models.Platform `json:"defaultPlatforms,omitempty"`
}

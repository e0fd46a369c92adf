package transfer

import "github.com/maheshrc27/crosspost/internal/models"

// PostCreation is the body of a create request. An empty ScheduledTime
// creates a draft.
type PostCreation struct {
	Text              string                    `json:"text"`
	PlatformOverrides *models.PlatformOverrides `json:"platformOverrides,omitempty"`
	MediaIDs          []string                  `json:"mediaIds"`
	TargetPlatforms   []models.Platform         `json:"targetPlatforms"`
	// ScheduledTime is "2006-01-02T15:04" in the user's timezone, or RFC 3339.
	ScheduledTime string `json:"scheduledTime"`
}

type PostUpdate struct {
	Text              *string                   `json:"text,omitempty"`
	PlatformOverrides *models.PlatformOverrides `json:"platformOverrides,omitempty"`
	MediaIDs          []string                  `json:"mediaIds,omitempty"`
	TargetPlatforms   []models.Platform         `json:"targetPlatforms,omitempty"`
}

type ScheduleRequest struct {
	ScheduledTime string `json:"scheduledTime"`
}

type PostRange struct {
	From string `query:"from"`
	To   string `query:"to"`
}

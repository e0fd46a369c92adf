package models

import "time"

// Media is a reusable upload. UsedInPosts is a usage index kept by whoever
// attaches or detaches the media; it does not imply ownership.
type Media struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnailUrl"`
	StoragePath  string    `json:"storagePath"`
	Type         MediaType `json:"type"`
	MimeType     string    `json:"mimeType"`
	SizeBytes    int64     `json:"sizeBytes"`
	OriginalName string    `json:"originalName"`
	UploadedAt   time.Time `json:"uploadedAt"`
	UsedInPosts  []string  `json:"usedInPosts"`
}

func (m *Media) Item() MediaItem {
	return MediaItem{
		MediaID:      m.ID,
		URL:          m.URL,
		Type:         m.Type,
		MimeType:     m.MimeType,
		SizeBytes:    m.SizeBytes,
		ThumbnailURL: m.ThumbnailURL,
	}
}

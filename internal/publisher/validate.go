package publisher

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/maheshrc27/crosspost/internal/models"
)

var allowedMimeTypes = map[string]models.MediaType{
	"image/jpeg":      models.MediaTypeImage,
	"image/png":       models.MediaTypeImage,
	"image/webp":      models.MediaTypeImage,
	"video/mp4":       models.MediaTypeVideo,
	"video/quicktime": models.MediaTypeVideo,
}

// validator collects rule violations for a single platform.
type validator struct {
	platform models.Platform
	errors   []string
}

func (v *validator) addf(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *validator) result() ValidationResult {
	return ValidationResult{Valid: len(v.errors) == 0, Errors: v.errors}
}

// text enforces the character limit on the text the platform receives,
// counted in runes.
func (v *validator) text(post *models.Post, limit int) string {
	text := post.Content.TextFor(v.platform)
	if n := utf8.RuneCountInString(text); n > limit {
		v.addf("text is %d characters, %s allows %d", n, v.platform, limit)
	}
	return text
}

func (v *validator) media(items []models.MediaItem) (images, videos int) {
	for i, m := range items {
		if m.URL == "" {
			v.addf("media %d has no url", i+1)
		}
		kind, ok := allowedMimeTypes[strings.ToLower(m.MimeType)]
		if !ok {
			v.addf("media %d has unsupported type %q", i+1, m.MimeType)
			continue
		}
		if m.Type != "" && m.Type != kind {
			v.addf("media %d is declared %s but has type %s", i+1, m.Type, m.MimeType)
		}
		switch kind {
		case models.MediaTypeImage:
			images++
		case models.MediaTypeVideo:
			videos++
		}
	}
	return images, videos
}

// ValidateText is the rule every platform shares: the effective text must fit
// the character limit.
func ValidateText(post *models.Post, platform models.Platform, limit int) ValidationResult {
	v := validator{platform: platform}
	v.text(post, limit)
	return v.result()
}

// ValidationFailure turns a failed result into the error recorded for the
// platform. It returns nil for a valid result.
func ValidationFailure(platform models.Platform, res ValidationResult) error {
	if res.Valid {
		return nil
	}
	return NewError(KindValidation, platform, "%s", strings.Join(res.Errors, "; "))
}

func isVideo(m models.MediaItem) bool {
	return allowedMimeTypes[strings.ToLower(m.MimeType)] == models.MediaTypeVideo
}

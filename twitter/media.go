package twitter

import (
	"fmt"
	"nofuture/models"
	"regexp"

	"github.com/samber/lo"
)

// Link appended upstream to posts that carried media
var shortLinkSuffix = regexp.MustCompile(`https://t\.co/[^ ]+$`)

// Sanitize strips the trailing short link from posts that have media
func Sanitize(text string, mediaCount int) string {
	if mediaCount == 0 {
		return text
	}
	return shortLinkSuffix.ReplaceAllString(text, "")
}

// SourceURL is the canonical link to a post
func SourceURL(username string, platformID int64) string {
	return fmt.Sprintf("https://twitter.com/%s/status/%d", username, platformID)
}

func bitrateKey(v apiVariant) int64 {
	if v.BitRate == nil {
		return -1
	}
	return *v.BitRate
}

// bestVariant picks the highest bitrate. Variants without a bitrate lose to
// any that has one, and the last of equal candidates wins.
func bestVariant(variants []apiVariant) apiVariant {
	return lo.MaxBy(variants, func(candidate apiVariant, current apiVariant) bool {
		return bitrateKey(candidate) >= bitrateKey(current)
	})
}

func resolveMedia(m apiMedia) (models.Attachment, error) {
	switch m.Type {
	case "photo":
		if m.Url == nil || *m.Url == "" {
			return nil, fmt.Errorf("%w: photo %s has no url", ErrUpstreamFormat, m.MediaKey)
		}
		return models.Photo{Url: *m.Url}, nil
	case "video", "animated_gif":
		if len(m.Variants) == 0 {
			return nil, fmt.Errorf("%w: video %s has no variants", ErrUpstreamFormat, m.MediaKey)
		}
		return models.Video{Url: bestVariant(m.Variants).Url}, nil
	}
	return nil, fmt.Errorf("%w: unknown media type %q", ErrUpstreamFormat, m.Type)
}

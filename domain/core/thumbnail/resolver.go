// Package thumbnail derives a preview image reference from a video link.
package thumbnail

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/jclararobles/AppListVideos/domain/core/entities"
)

// DefaultInstagramPlaceholder is the bundled image shown for Instagram links.
const DefaultInstagramPlaceholder = "asset://instagram_thumbnail.jpg"

// ErrNotResolvable is returned when no thumbnail can be derived.
var ErrNotResolvable = errors.New("thumbnail not resolvable")

// Matches watch?v=, youtu.be/, /embed/, /v/ and youtube.com/<a>/<b>/ forms.
var youtubeIDPattern = regexp.MustCompile(`(?:youtube\.com/(?:[^/]+/[^/]+/|(?:v|embed)/|.*[?&]v=)|youtu\.be/)([^"&?/ ]{11})`)

// Resolver maps a (url, platform) pair to a thumbnail reference.
// The zero value uses DefaultInstagramPlaceholder.
type Resolver struct {
	InstagramPlaceholder string
}

// NewResolver returns a resolver using placeholder for Instagram links,
// or the default when placeholder is empty.
func NewResolver(placeholder string) Resolver {
	return Resolver{InstagramPlaceholder: placeholder}
}

// Resolve is pure: it never performs network access.
func (r Resolver) Resolve(url string, platform entities.Platform) (string, error) {
	switch platform {
	case entities.PlatformYouTube:
		id, ok := ExtractYouTubeID(url)
		if !ok {
			return "", fmt.Errorf("%w: no YouTube video id in %q", ErrNotResolvable, url)
		}
		return "https://img.youtube.com/vi/" + id + "/0.jpg", nil
	case entities.PlatformInstagram:
		if r.InstagramPlaceholder == "" {
			return DefaultInstagramPlaceholder, nil
		}
		return r.InstagramPlaceholder, nil
	default:
		return "", fmt.Errorf("%w: unsupported platform %q", ErrNotResolvable, platform)
	}
}

// ExtractYouTubeID returns the 11 character video id of a YouTube link.
func ExtractYouTubeID(url string) (string, bool) {
	m := youtubeIDPattern.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Resolve uses the zero Resolver.
func Resolve(url string, platform entities.Platform) (string, error) {
	return Resolver{}.Resolve(url, platform)
}

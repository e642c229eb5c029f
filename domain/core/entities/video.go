package entities

import (
	"strings"
	"time"
)

// Platform identifies where a video link is hosted
type Platform string

const (
	PlatformYouTube   Platform = "YouTube"
	PlatformInstagram Platform = "Instagram"
)

// ParsePlatform accepts the canonical names case-insensitively
func ParsePlatform(s string) (Platform, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "youtube":
		return PlatformYouTube, true
	case "instagram":
		return PlatformInstagram, true
	default:
		return "", false
	}
}

// String implements fmt.Stringer
func (p Platform) String() string {
	return string(p)
}

// Video is one user-submitted link.
// All fields are fixed at creation except the favorite flag.
type Video struct {
	id           string
	ownerID      string
	title        string
	description  string
	url          string
	platform     Platform
	thumbnailURL string
	isFavorite   bool
	createdAt    time.Time
}

// VideoFields carries the values of a Video for construction
type VideoFields struct {
	ID           string
	OwnerID      string
	Title        string
	Description  string
	URL          string
	Platform     Platform
	ThumbnailURL string
	IsFavorite   bool
	CreatedAt    time.Time
}

// NewVideo builds a not yet persisted video. The id is assigned by the store.
func NewVideo(ownerID, title, description, url string, platform Platform, thumbnailURL string, createdAt time.Time) Video {
	return Video{
		ownerID:      ownerID,
		title:        title,
		description:  description,
		url:          url,
		platform:     platform,
		thumbnailURL: thumbnailURL,
		createdAt:    createdAt,
	}
}

// ReconstructVideo rebuilds a video from stored values
func ReconstructVideo(f VideoFields) Video {
	return Video{
		id:           f.ID,
		ownerID:      f.OwnerID,
		title:        f.Title,
		description:  f.Description,
		url:          f.URL,
		platform:     f.Platform,
		thumbnailURL: f.ThumbnailURL,
		isFavorite:   f.IsFavorite,
		createdAt:    f.CreatedAt,
	}
}

func (v Video) ID() string           { return v.id }
func (v Video) OwnerID() string      { return v.ownerID }
func (v Video) Title() string        { return v.title }
func (v Video) Description() string  { return v.description }
func (v Video) URL() string          { return v.url }
func (v Video) Platform() Platform   { return v.platform }
func (v Video) ThumbnailURL() string { return v.thumbnailURL }
func (v Video) IsFavorite() bool     { return v.isFavorite }
func (v Video) CreatedAt() time.Time { return v.createdAt }

// Fields exposes the video's values
func (v Video) Fields() VideoFields {
	return VideoFields{
		ID:           v.id,
		OwnerID:      v.ownerID,
		Title:        v.title,
		Description:  v.description,
		URL:          v.url,
		Platform:     v.platform,
		ThumbnailURL: v.thumbnailURL,
		IsFavorite:   v.isFavorite,
		CreatedAt:    v.createdAt,
	}
}

// WithID returns a copy carrying the store-assigned id
func (v Video) WithID(id string) Video {
	v.id = id
	return v
}

// WithFavorite returns a copy with the favorite flag set
func (v Video) WithFavorite(isFavorite bool) Video {
	v.isFavorite = isFavorite
	return v
}

// Package dto holds the JSON shapes shared by the REST and websocket
// surfaces.
package dto

import (
	"time"

	"github.com/jclararobles/AppListVideos/application/livesync"
	"github.com/jclararobles/AppListVideos/domain/core/entities"
	"github.com/jclararobles/AppListVideos/domain/core/thumbnail"
)

// VideoResponse is the wire form of a video
type VideoResponse struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	URL          string `json:"url"`
	Platform     string `json:"platform"`
	ThumbnailURL string `json:"thumbnailUrl"`
	EmbedURL     string `json:"embedUrl,omitempty"`
	IsFavorite   bool   `json:"isFavorite"`
	CreatedAt    string `json:"createdAt,omitempty"`
}

// ListResponse is the wire form of a list with its embedded video snapshots
type ListResponse struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Videos    []VideoResponse `json:"videos"`
	CreatedAt string          `json:"createdAt,omitempty"`
}

// SnapshotResponse is a cached live sync view
type SnapshotResponse struct {
	Kind      string          `json:"kind"`
	Screen    string          `json:"screen"`
	Version   uint64          `json:"version"`
	UpdatedAt string          `json:"updatedAt,omitempty"`
	Videos    []VideoResponse `json:"videos,omitempty"`
	Lists     []ListResponse  `json:"lists,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func FromVideo(v entities.Video) VideoResponse {
	return VideoResponse{
		ID:           v.ID(),
		Title:        v.Title(),
		Description:  v.Description(),
		URL:          v.URL(),
		Platform:     v.Platform().String(),
		ThumbnailURL: v.ThumbnailURL(),
		EmbedURL:     embedURL(v),
		IsFavorite:   v.IsFavorite(),
		CreatedAt:    formatTime(v.CreatedAt()),
	}
}

// embedURL is the player URL for YouTube videos, empty otherwise
func embedURL(v entities.Video) string {
	if v.Platform() != entities.PlatformYouTube {
		return ""
	}
	id, ok := thumbnail.ExtractYouTubeID(v.URL())
	if !ok {
		return ""
	}
	return "https://www.youtube.com/embed/" + id
}

func FromVideos(videos []entities.Video) []VideoResponse {
	out := make([]VideoResponse, len(videos))
	for i, v := range videos {
		out[i] = FromVideo(v)
	}
	return out
}

func FromList(l entities.List) ListResponse {
	return ListResponse{
		ID:        l.ID(),
		Title:     l.Title(),
		Videos:    FromVideos(l.Videos()),
		CreatedAt: formatTime(l.CreatedAt()),
	}
}

func FromLists(lists []entities.List) []ListResponse {
	out := make([]ListResponse, len(lists))
	for i, l := range lists {
		out[i] = FromList(l)
	}
	return out
}

// FromSnapshot converts a cached view
func FromSnapshot(s livesync.Snapshot) SnapshotResponse {
	resp := SnapshotResponse{
		Kind:      string(s.Key.Kind),
		Screen:    s.Key.Screen,
		Version:   s.Version,
		UpdatedAt: formatTime(s.UpdatedAt),
	}
	switch s.Key.Kind {
	case livesync.KindVideos:
		resp.Videos = FromVideos(s.Videos)
	case livesync.KindLists:
		resp.Lists = FromLists(s.Lists)
	}
	return resp
}

package events

import "time"

// Source is the EventBridge source name for events raised by this module.
const Source = "applistvideos.sync"

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetOwnerID() string
	GetTimestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	OwnerID     string    `json:"owner_id"`
	Timestamp   time.Time `json:"timestamp"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetOwnerID() string      { return e.OwnerID }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }

func newBase(id, eventType, ownerID string, at time.Time) BaseEvent {
	return BaseEvent{AggregateID: id, EventType: eventType, OwnerID: ownerID, Timestamp: at}
}

// Video Events

// VideoAdded is raised when a video link is registered
type VideoAdded struct {
	BaseEvent
	Platform     string `json:"platform"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// NewVideoAdded creates a VideoAdded event
func NewVideoAdded(videoID, ownerID, platform, url, thumbnailURL string, at time.Time) VideoAdded {
	return VideoAdded{
		BaseEvent:    newBase(videoID, "video.added", ownerID, at),
		Platform:     platform,
		URL:          url,
		ThumbnailURL: thumbnailURL,
	}
}

// VideoFavoriteToggled is raised after the favorite flag was written
type VideoFavoriteToggled struct {
	BaseEvent
	IsFavorite bool `json:"is_favorite"`
}

// NewVideoFavoriteToggled creates a VideoFavoriteToggled event
func NewVideoFavoriteToggled(videoID, ownerID string, isFavorite bool, at time.Time) VideoFavoriteToggled {
	return VideoFavoriteToggled{
		BaseEvent:  newBase(videoID, "video.favorite_toggled", ownerID, at),
		IsFavorite: isFavorite,
	}
}

// VideoDeleted is raised when a video is removed from the catalog.
// Lists that embedded it are not touched.
type VideoDeleted struct {
	BaseEvent
}

// NewVideoDeleted creates a VideoDeleted event
func NewVideoDeleted(videoID, ownerID string, at time.Time) VideoDeleted {
	return VideoDeleted{BaseEvent: newBase(videoID, "video.deleted", ownerID, at)}
}

// List Events

// ListCreated is raised when a list is written with its embedded snapshots
type ListCreated struct {
	BaseEvent
	Title    string   `json:"title"`
	VideoIDs []string `json:"video_ids"`
}

// NewListCreated creates a ListCreated event
func NewListCreated(listID, ownerID, title string, videoIDs []string, at time.Time) ListCreated {
	return ListCreated{
		BaseEvent: newBase(listID, "list.created", ownerID, at),
		Title:     title,
		VideoIDs:  videoIDs,
	}
}

// ListDeleted is raised when a list is removed
type ListDeleted struct {
	BaseEvent
}

// NewListDeleted creates a ListDeleted event
func NewListDeleted(listID, ownerID string, at time.Time) ListDeleted {
	return ListDeleted{BaseEvent: newBase(listID, "list.deleted", ownerID, at)}
}

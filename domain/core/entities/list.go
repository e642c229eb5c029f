package entities

import "time"

// List is a named grouping of videos.
//
// Membership is a point-in-time snapshot: videos holds full copies taken when
// the list was created, not references. Later changes to, or deletion of, a
// source video never reach the list.
type List struct {
	id        string
	ownerID   string
	title     string
	videos    []Video
	createdAt time.Time
}

// NewList builds a not yet persisted list embedding copies of videos
func NewList(ownerID, title string, videos []Video, createdAt time.Time) List {
	return List{
		ownerID:   ownerID,
		title:     title,
		videos:    append([]Video(nil), videos...),
		createdAt: createdAt,
	}
}

// ReconstructList rebuilds a list from stored values
func ReconstructList(id, ownerID, title string, videos []Video, createdAt time.Time) List {
	l := NewList(ownerID, title, videos, createdAt)
	l.id = id
	return l
}

func (l List) ID() string           { return l.id }
func (l List) OwnerID() string      { return l.ownerID }
func (l List) Title() string        { return l.title }
func (l List) CreatedAt() time.Time { return l.createdAt }

// Videos returns a copy of the embedded snapshots in list order
func (l List) Videos() []Video {
	return append([]Video(nil), l.videos...)
}

// VideoIDs returns the ids of the embedded snapshots in list order
func (l List) VideoIDs() []string {
	ids := make([]string, len(l.videos))
	for i, v := range l.videos {
		ids[i] = v.id
	}
	return ids
}

// WithID returns a copy carrying the store-assigned id
func (l List) WithID(id string) List {
	l.id = id
	return l
}

package entities

import (
	"encoding/json"
	"fmt"
	"time"
)

// Stored field names. They mirror the documents the mobile client wrote.
const (
	FieldID           = "id"
	FieldOwnerID      = "ownerId"
	FieldTitle        = "title"
	FieldDescription  = "description"
	FieldURL          = "url"
	FieldPlatform     = "platform"
	FieldThumbnailURL = "thumbnailUrl"
	FieldIsFavorite   = "isFavorite"
	FieldCreatedAt    = "createdAt"
	FieldVideos       = "videos"
)

type videoDocument struct {
	ID           string `json:"id,omitempty"`
	OwnerID      string `json:"ownerId"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	URL          string `json:"url"`
	Platform     string `json:"platform"`
	ThumbnailURL string `json:"thumbnailUrl"`
	IsFavorite   bool   `json:"isFavorite"`
	CreatedAt    string `json:"createdAt"`
}

type listDocument struct {
	OwnerID   string          `json:"ownerId"`
	Title     string          `json:"title"`
	Videos    []videoDocument `json:"videos"`
	CreatedAt string          `json:"createdAt,omitempty"`
}

// Document encodes the video for the remote store. The id is not part of a
// top-level record; it is included when the video is embedded in a list.
func (v Video) Document() map[string]interface{} {
	return map[string]interface{}{
		FieldOwnerID:      v.ownerID,
		FieldTitle:        v.title,
		FieldDescription:  v.description,
		FieldURL:          v.url,
		FieldPlatform:     string(v.platform),
		FieldThumbnailURL: v.thumbnailURL,
		FieldIsFavorite:   v.isFavorite,
		FieldCreatedAt:    formatTime(v.createdAt),
	}
}

func (v Video) embedded() map[string]interface{} {
	doc := v.Document()
	doc[FieldID] = v.id
	return doc
}

// Document encodes the list with full copies of its videos
func (l List) Document() map[string]interface{} {
	videos := make([]interface{}, len(l.videos))
	for i, v := range l.videos {
		videos[i] = v.embedded()
	}
	return map[string]interface{}{
		FieldOwnerID:   l.ownerID,
		FieldTitle:     l.title,
		FieldVideos:    videos,
		FieldCreatedAt: formatTime(l.createdAt),
	}
}

// VideoFromDocument decodes a stored video record
func VideoFromDocument(id string, doc map[string]interface{}) (Video, error) {
	var d videoDocument
	if err := decode(doc, &d); err != nil {
		return Video{}, fmt.Errorf("decode video %s: %w", id, err)
	}
	d.ID = id
	return d.video()
}

// ListFromDocument decodes a stored list record including its snapshots
func ListFromDocument(id string, doc map[string]interface{}) (List, error) {
	var d listDocument
	if err := decode(doc, &d); err != nil {
		return List{}, fmt.Errorf("decode list %s: %w", id, err)
	}
	videos := make([]Video, 0, len(d.Videos))
	for _, vd := range d.Videos {
		v, err := vd.video()
		if err != nil {
			return List{}, fmt.Errorf("decode list %s: %w", id, err)
		}
		videos = append(videos, v)
	}
	createdAt, err := parseTime(d.CreatedAt)
	if err != nil {
		return List{}, fmt.Errorf("decode list %s: %w", id, err)
	}
	return ReconstructList(id, d.OwnerID, d.Title, videos, createdAt), nil
}

func (d videoDocument) video() (Video, error) {
	createdAt, err := parseTime(d.CreatedAt)
	if err != nil {
		return Video{}, err
	}
	// Unknown platforms are kept verbatim rather than rejected on read.
	platform, ok := ParsePlatform(d.Platform)
	if !ok {
		platform = Platform(d.Platform)
	}
	return ReconstructVideo(VideoFields{
		ID:           d.ID,
		OwnerID:      d.OwnerID,
		Title:        d.Title,
		Description:  d.Description,
		URL:          d.URL,
		Platform:     platform,
		ThumbnailURL: d.ThumbnailURL,
		IsFavorite:   d.IsFavorite,
		CreatedAt:    createdAt,
	}), nil
}

// decode maps a loosely typed document onto a struct. Documents come from
// several stores whose decoders produce different concrete types.
func decode(doc map[string]interface{}, target interface{}) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid createdAt %q: %w", s, err)
	}
	return t, nil
}

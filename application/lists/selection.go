package lists

import "github.com/jclararobles/AppListVideos/domain/core/entities"

// Selection is the pending set of videos picked on the create-list screen.
// It behaves as an ordered set keyed by video id. Not safe for concurrent
// use.
type Selection struct {
	videos []entities.Video
}

// NewSelection returns an empty selection
func NewSelection() *Selection {
	return &Selection{}
}

// Toggle selects v when absent and deselects it when present. Reselecting
// appends a fresh copy at the end. It reports whether v is selected
// afterwards.
func (s *Selection) Toggle(v entities.Video) bool {
	if i := s.index(v.ID()); i >= 0 {
		s.videos = append(s.videos[:i], s.videos[i+1:]...)
		return false
	}
	s.videos = append(s.videos, v)
	return true
}

// Contains reports whether id is selected
func (s *Selection) Contains(id string) bool {
	return s.index(id) >= 0
}

// Videos returns the selected videos in selection order
func (s *Selection) Videos() []entities.Video {
	return append([]entities.Video(nil), s.videos...)
}

// Len returns the number of selected videos
func (s *Selection) Len() int {
	return len(s.videos)
}

// Clear empties the selection
func (s *Selection) Clear() {
	s.videos = nil
}

func (s *Selection) index(id string) int {
	for i, v := range s.videos {
		if v.ID() == id {
			return i
		}
	}
	return -1
}

package catalog

import "strings"

// AddVideoInput is what the add-video form submits
type AddVideoInput struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description" validate:"required"`
	URL         string `json:"url" validate:"required"`
	Platform    string `json:"platform" validate:"required"`
}

// Surrounding whitespace is not content
func (in AddVideoInput) normalized() AddVideoInput {
	return AddVideoInput{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		URL:         strings.TrimSpace(in.URL),
		Platform:    strings.TrimSpace(in.Platform),
	}
}

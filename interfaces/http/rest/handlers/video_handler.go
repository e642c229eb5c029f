package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jclararobles/AppListVideos/application/catalog"
	"github.com/jclararobles/AppListVideos/interfaces/http/dto"
)

// VideoHandler exposes the video catalog
type VideoHandler struct {
	catalog *catalog.Manager
	logger  *zap.Logger
}

// NewVideoHandler creates a new video handler
func NewVideoHandler(catalog *catalog.Manager, logger *zap.Logger) *VideoHandler {
	return &VideoHandler{catalog: catalog, logger: logger}
}

// ToggleFavoriteRequest carries the favorite flag the client last saw
type ToggleFavoriteRequest struct {
	Current bool `json:"current"`
}

// ListVideos handles GET /videos, optionally ?favorites=true
func (h *VideoHandler) ListVideos(w http.ResponseWriter, r *http.Request) {
	favoritesOnly := false
	if raw := r.URL.Query().Get("favorites"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid favorites parameter")
			return
		}
		favoritesOnly = parsed
	}

	list := h.catalog.List
	if favoritesOnly {
		list = h.catalog.Favorites
	}
	videos, err := list(r.Context())
	if err != nil {
		respondAppError(w, h.logger, "Failed to list videos", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"videos": dto.FromVideos(videos),
		"count":  len(videos),
	})
}

// AddVideo handles POST /videos
func (h *VideoHandler) AddVideo(w http.ResponseWriter, r *http.Request) {
	var req catalog.AddVideoInput
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	video, err := h.catalog.Add(r.Context(), req)
	if err != nil {
		respondAppError(w, h.logger, "Failed to add video", err)
		return
	}
	respondJSON(w, http.StatusCreated, dto.FromVideo(video))
}

// GetVideo handles GET /videos/{videoID}
func (h *VideoHandler) GetVideo(w http.ResponseWriter, r *http.Request) {
	video, err := h.catalog.Get(r.Context(), chi.URLParam(r, "videoID"))
	if err != nil {
		respondAppError(w, h.logger, "Failed to get video", err)
		return
	}
	respondJSON(w, http.StatusOK, dto.FromVideo(video))
}

// ToggleFavorite handles POST /videos/{videoID}/favorite
func (h *VideoHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	var req ToggleFavoriteRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := h.catalog.ToggleFavorite(r.Context(), chi.URLParam(r, "videoID"), req.Current); err != nil {
		respondAppError(w, h.logger, "Failed to toggle favorite", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteVideo handles DELETE /videos/{videoID}
func (h *VideoHandler) DeleteVideo(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), chi.URLParam(r, "videoID")); err != nil {
		respondAppError(w, h.logger, "Failed to delete video", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

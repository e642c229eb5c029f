package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jclararobles/AppListVideos/application/lists"
	"github.com/jclararobles/AppListVideos/interfaces/http/dto"
	appErrors "github.com/jclararobles/AppListVideos/pkg/errors"
)

// ListHandler exposes list management
type ListHandler struct {
	lists  *lists.Manager
	logger *zap.Logger
}

// NewListHandler creates a new list handler
func NewListHandler(lists *lists.Manager, logger *zap.Logger) *ListHandler {
	return &ListHandler{lists: lists, logger: logger}
}

// CreateListRequest names the videos to snapshot into the new list, in
// selection order.
type CreateListRequest struct {
	Title    string   `json:"title"`
	VideoIDs []string `json:"videoIds"`
}

// ListLists handles GET /lists
func (h *ListHandler) ListLists(w http.ResponseWriter, r *http.Request) {
	all, err := h.lists.ListAll(r.Context())
	if err != nil {
		respondAppError(w, h.logger, "Failed to list lists", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"lists": dto.FromLists(all),
		"count": len(all),
	})
}

// ListCandidates handles GET /lists/candidates
func (h *ListHandler) ListCandidates(w http.ResponseWriter, r *http.Request) {
	videos, err := h.lists.ListCandidateVideos(r.Context())
	if err != nil {
		respondAppError(w, h.logger, "Failed to list candidate videos", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"videos": dto.FromVideos(videos),
		"count":  len(videos),
	})
}

// CreateList handles POST /lists. The selection is resolved against the
// caller's current catalog so each entry is snapshotted as it is now.
func (h *ListHandler) CreateList(w http.ResponseWriter, r *http.Request) {
	var req CreateListRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	selection := lists.NewSelection()
	if len(req.VideoIDs) > 0 {
		candidates, err := h.lists.ListCandidateVideos(r.Context())
		if err != nil {
			respondAppError(w, h.logger, "Failed to load candidate videos", err)
			return
		}
		byID := make(map[string]int, len(candidates))
		for i, v := range candidates {
			byID[v.ID()] = i
		}
		for _, id := range req.VideoIDs {
			i, ok := byID[id]
			if !ok {
				respondAppError(w, h.logger, "Unknown video in selection", appErrors.NewNotFoundError("videos", id))
				return
			}
			if !selection.Contains(id) {
				selection.Toggle(candidates[i])
			}
		}
	}

	list, err := h.lists.Create(r.Context(), req.Title, selection.Videos())
	if err != nil {
		respondAppError(w, h.logger, "Failed to create list", err)
		return
	}
	respondJSON(w, http.StatusCreated, dto.FromList(list))
}

// GetList handles GET /lists/{listID}
func (h *ListHandler) GetList(w http.ResponseWriter, r *http.Request) {
	list, err := h.lists.Get(r.Context(), chi.URLParam(r, "listID"))
	if err != nil {
		respondAppError(w, h.logger, "Failed to get list", err)
		return
	}
	respondJSON(w, http.StatusOK, dto.FromList(list))
}

// DeleteList handles DELETE /lists/{listID}
func (h *ListHandler) DeleteList(w http.ResponseWriter, r *http.Request) {
	if err := h.lists.Delete(r.Context(), chi.URLParam(r, "listID")); err != nil {
		respondAppError(w, h.logger, "Failed to delete list", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

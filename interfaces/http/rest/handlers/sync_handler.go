package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jclararobles/AppListVideos/application/livesync"
	"github.com/jclararobles/AppListVideos/infrastructure/identity"
	"github.com/jclararobles/AppListVideos/interfaces/http/dto"
	appErrors "github.com/jclararobles/AppListVideos/pkg/errors"
)

// SyncHandler serves the live sync cache over plain HTTP for clients that
// cannot hold a websocket.
type SyncHandler struct {
	subscriber *livesync.Subscriber
	logger     *zap.Logger
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(subscriber *livesync.Subscriber, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{subscriber: subscriber, logger: logger}
}

func (h *SyncHandler) key(r *http.Request) (livesync.Key, error) {
	owner, ok := identity.FromContext(r.Context())
	if !ok {
		return livesync.Key{}, appErrors.NewUnauthenticatedError("")
	}
	kind := livesync.Kind(chi.URLParam(r, "kind"))
	if kind != livesync.KindVideos && kind != livesync.KindLists {
		return livesync.Key{}, appErrors.NewNotFoundError("sync kind", string(kind))
	}
	return livesync.Key{Kind: kind, OwnerID: owner, Screen: chi.URLParam(r, "screen")}, nil
}

// GetSnapshot handles GET /sync/{kind}/{screen}. A view kept current by a
// live lease is returned as is; any other key is read directly.
func (h *SyncHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	key, err := h.key(r)
	if err != nil {
		respondAppError(w, h.logger, "Invalid sync key", err)
		return
	}
	if snap, ok := h.subscriber.Snapshot(key); ok {
		respondJSON(w, http.StatusOK, dto.FromSnapshot(snap))
		return
	}
	h.refresh(w, r, key)
}

// Refresh handles POST /sync/{kind}/{screen}/refresh
func (h *SyncHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	key, err := h.key(r)
	if err != nil {
		respondAppError(w, h.logger, "Invalid sync key", err)
		return
	}
	h.refresh(w, r, key)
}

func (h *SyncHandler) refresh(w http.ResponseWriter, r *http.Request, key livesync.Key) {
	snap, err := h.subscriber.Refresh(r.Context(), key)
	if err != nil {
		respondAppError(w, h.logger, "Failed to refresh sync view", err)
		return
	}
	respondJSON(w, http.StatusOK, dto.FromSnapshot(snap))
}

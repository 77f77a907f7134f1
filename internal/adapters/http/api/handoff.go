package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lumora/collector/internal/adapters/repository"
	"github.com/lumora/collector/internal/domain/model"
)

// HandoffSource exposes the package queue to the downstream consumer.
type HandoffSource interface {
	NextPendingHandoff(ctx context.Context) (model.HandoffPackage, error)
	ConsumeHandoff(ctx context.Context, packageID string) error
}

// HandoffHandler serves the pending package and its consumption
// transition.
type HandoffHandler struct {
	source HandoffSource
}

// NewHandoffHandler creates a new handoff handler.
func NewHandoffHandler(source HandoffSource) *HandoffHandler {
	return &HandoffHandler{source: source}
}

// HandleNext handles GET /handoff/next: the oldest pending package, or
// 404 when none is queued.
func (h *HandoffHandler) HandleNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	pkg, err := h.source.NextPendingHandoff(r.Context())
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", errors.New("no pending package"))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	writeJSON(w, http.StatusOK, pkg)
}

type consumeRequest struct {
	PackageID string `json:"package_id"`
}

// HandleConsume handles POST /handoff/consume: transitions a pending
// package to consumed.
func (h *HandoffHandler) HandleConsume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req consumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PackageID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	err := h.source.ConsumeHandoff(r.Context(), req.PackageID)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", errors.New("no such pending package"))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "consumed"})
}

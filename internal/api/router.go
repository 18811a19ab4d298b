// Package api exposes the suggest/commit loop over HTTP.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"calassist/internal/models"
)

// Controller is the subset of the loop the handlers need.
type Controller interface {
	Suggest(ctx context.Context, req models.SuggestRequest) *models.SuggestResponse
	Commit(ctx context.Context, plan models.CommitPlan) *models.CommitResult
}

// Handler holds the HTTP handlers.
type Handler struct {
	logger     *slog.Logger
	controller Controller
}

// NewRouter wires the routes. Suggestion and commit never surface backend
// failures as HTTP errors; only malformed requests get a non-200 status.
func NewRouter(logger *slog.Logger, controller Controller) *mux.Router {
	h := &Handler{logger: logger, controller: controller}

	r := mux.NewRouter()
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.HandleFunc("/events/suggest", h.suggest).Methods(http.MethodPost)
	r.HandleFunc("/events/sync", h.sync).Methods(http.MethodPost)
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) suggest(w http.ResponseWriter, r *http.Request) {
	var req models.SuggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Instruction) == "" {
		h.writeError(w, http.StatusBadRequest, "instruction is required")
		return
	}
	h.writeJSON(w, http.StatusOK, h.controller.Suggest(r.Context(), req))
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	var plan models.CommitPlan
	if err := json.NewDecoder(r.Body).Decode(&plan); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for _, item := range plan.Items {
		if item.Event == nil {
			h.writeError(w, http.StatusBadRequest, "plan item is missing its event")
			return
		}
	}
	h.writeJSON(w, http.StatusOK, h.controller.Commit(r.Context(), plan))
}

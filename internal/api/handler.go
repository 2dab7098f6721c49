// Package api provides the HTTP command surface: starting watches and
// reading game status. It is routing only; all behavior lives in the
// registry.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/elektro-code/CatanTournamentBot/internal/notify"
	"github.com/elektro-code/CatanTournamentBot/internal/registry"
	"github.com/elektro-code/CatanTournamentBot/internal/score"
)

// Watchers is the registry surface the handlers need.
type Watchers interface {
	StartWatch(ctx context.Context, id, channel string) error
	IsActive(id string) bool
	CurrentStatus(id string) (score.Table, bool)
	LookupCompleted(ctx context.Context, id string) (registry.Completion, bool)
}

// Handler serves the command surface.
type Handler struct {
	reg            Watchers
	defaultChannel string
	log            *zap.Logger
}

// NewHandler creates a Handler.
func NewHandler(reg Watchers, defaultChannel string, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{reg: reg, defaultChannel: defaultChannel, log: log.Named("api")}
}

// Routes builds the router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/watch/{id}", h.watch)
	r.Get("/status/{id}", h.status)
	return r
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// gameID normalizes the id path segment; a leading # from chat-style
// input is stripped.
func gameID(r *http.Request) string {
	return strings.TrimPrefix(chi.URLParam(r, "id"), "#")
}

func (h *Handler) watch(w http.ResponseWriter, r *http.Request) {
	id := gameID(r)
	if id == "" {
		Error(w, http.StatusBadRequest, "game id required")
		return
	}
	channel := r.URL.Query().Get("channel")
	if channel == "" {
		channel = h.defaultChannel
	}

	err := h.reg.StartWatch(r.Context(), id, channel)
	switch {
	case errors.Is(err, registry.ErrAlreadyActive):
		Error(w, http.StatusConflict, "already watching game "+id)
	case errors.Is(err, registry.ErrAlreadyCompleted):
		Error(w, http.StatusConflict, "game "+id+" is already in completed history")
	case err != nil:
		h.log.Error("start watch failed", zap.String("game", id), zap.Error(err))
		Error(w, http.StatusInternalServerError, "failed to start watch")
	default:
		JSON(w, http.StatusAccepted, map[string]string{
			"game_id": id,
			"status":  "watching",
			"channel": channel,
		})
	}
}

type statusResponse struct {
	GameID    string           `json:"game_id"`
	Status    string           `json:"status"`
	Scores    score.Table      `json:"scores,omitempty"`
	Standings []score.Standing `json:"standings,omitempty"`
	Partial   bool             `json:"partial,omitempty"`
	Message   string           `json:"message"`
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	id := gameID(r)

	if h.reg.IsActive(id) {
		resp := statusResponse{GameID: id, Status: "active"}
		if table, ok := h.reg.CurrentStatus(id); ok {
			resp.Scores = table
			resp.Message = notify.FormatStatus(id, table)
		} else {
			resp.Message = "Game " + id + " is active, but no state is available yet."
		}
		JSON(w, http.StatusOK, resp)
		return
	}

	if c, ok := h.reg.LookupCompleted(r.Context(), id); ok {
		resp := statusResponse{
			GameID:    id,
			Status:    "completed",
			Standings: c.Standings,
			Partial:   c.Partial,
		}
		if c.Partial {
			resp.Message = notify.FormatPartial(id)
		} else {
			resp.Message = notify.FormatFinal(id, c.Standings)
		}
		JSON(w, http.StatusOK, resp)
		return
	}

	Error(w, http.StatusNotFound, "game "+id+" is neither active nor in history")
}

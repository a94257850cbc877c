// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/okian/gambit/internal/domain/model"
)

// GamesHandler handles game and label requests.
type GamesHandler struct {
	deps Dependencies
}

// NewGamesHandler creates a new games handler.
func NewGamesHandler(deps Dependencies) *GamesHandler {
	return &GamesHandler{deps: deps}
}

// labelRequest mirrors the schema for POST /games/{id}/labels.
type labelRequest struct {
	Kind        string `json:"kind" validate:"required,oneof=nag comment opening theme mask motif endgame custom"`
	Value       string `json:"value" validate:"required"`
	PositionFEN string `json:"position_fen"`
	HalfMove    *int   `json:"half_move" validate:"omitempty,gte=1"`
	CreatedBy   string `json:"created_by" validate:"omitempty,oneof=operator engine heuristic user"`
}

type labelResponse struct {
	ID          int64     `json:"id"`
	GameID      string    `json:"game_id"`
	Kind        string    `json:"kind"`
	Value       string    `json:"value"`
	PositionFEN string    `json:"position_fen,omitempty"`
	HalfMove    *int      `json:"half_move,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

func toLabelResponse(l model.Label) labelResponse {
	return labelResponse{
		ID:          l.ID,
		GameID:      l.GameID,
		Kind:        string(l.Kind),
		Value:       l.Value,
		PositionFEN: l.PositionFEN,
		HalfMove:    l.HalfMove,
		CreatedBy:   string(l.CreatedBy),
		CreatedAt:   l.CreatedAt,
	}
}

// HandleGames dispatches /games/{id} and /games/{id}/labels.
func (h *GamesHandler) HandleGames(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/games/")
	parts := strings.Split(path, "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		h.handleGame(w, r, parts[0])
	case len(parts) == 2 && parts[0] != "" && parts[1] == "labels":
		h.handleLabels(w, r, parts[0])
	default:
		http.NotFound(w, r)
	}
}

// handleGame serves GET and DELETE for a single game.
func (h *GamesHandler) handleGame(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		game, err := h.deps.Game(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toGameResponse(game))
	case http.MethodDelete:
		if err := h.deps.DeleteGame(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		http.NotFound(w, r)
	}
}

// handleLabels serves the append and list operations of a game's
// annotation layer.
func (h *GamesHandler) handleLabels(w http.ResponseWriter, r *http.Request, gameID string) {
	const op = "api.game_labels"
	switch r.Method {
	case http.MethodPost:
		var req labelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		id, err := h.deps.AttachLabel(r.Context(), model.Label{
			GameID:      gameID,
			Kind:        model.LabelKind(req.Kind),
			Value:       req.Value,
			PositionFEN: req.PositionFEN,
			HalfMove:    req.HalfMove,
			CreatedBy:   model.Attribution(req.CreatedBy),
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]int64{"id": id})

	case http.MethodGet:
		kind := model.LabelKind(r.URL.Query().Get("kind"))
		labels, err := h.deps.Labels(r.Context(), gameID, kind)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		out := make([]labelResponse, len(labels))
		for i, l := range labels {
			out[i] = toLabelResponse(l)
		}
		writeJSON(w, http.StatusOK, out)

	default:
		http.NotFound(w, r)
	}
}

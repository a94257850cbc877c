// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/okian/gambit/internal/domain/model"
)

// PlayersHandler handles player stat and opening reference requests.
type PlayersHandler struct {
	deps Dependencies
}

// NewPlayersHandler creates a new players handler.
func NewPlayersHandler(deps Dependencies) *PlayersHandler {
	return &PlayersHandler{deps: deps}
}

// playerStatResponse is the read shape of a player rollup. Engine
// fields stay null until engine labels exist for the player.
type playerStatResponse struct {
	PlayerName    string             `json:"player_name"`
	TotalGames    int                `json:"total_games"`
	Wins          int                `json:"wins"`
	Draws         int                `json:"draws"`
	Losses        int                `json:"losses"`
	AvgCPL        *float64           `json:"avg_cpl"`
	BlunderRate   *float64           `json:"blunder_rate"`
	BestMoveRate  *float64           `json:"best_move_rate"`
	MostPlayedECO string             `json:"most_played_eco,omitempty"`
	ThemeRates    map[string]float64 `json:"theme_rates,omitempty"`
	AnalyzedAt    time.Time          `json:"analyzed_at"`
}

func toPlayerStatResponse(s model.PlayerStat) playerStatResponse {
	return playerStatResponse{
		PlayerName:    s.PlayerName,
		TotalGames:    s.TotalGames,
		Wins:          s.Wins,
		Draws:         s.Draws,
		Losses:        s.Losses,
		AvgCPL:        s.AvgCPL,
		BlunderRate:   s.BlunderRate,
		BestMoveRate:  s.BestMoveRate,
		MostPlayedECO: s.MostPlayedECO,
		ThemeRates:    s.ThemeRates,
		AnalyzedAt:    s.AnalyzedAt,
	}
}

// HandlePlayerStats handles GET /players/{name}/stats requests.
func (h *PlayersHandler) HandlePlayerStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/players/")
	name, ok := strings.CutSuffix(path, "/stats")
	if !ok || name == "" || strings.Contains(name, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}

	stat, err := h.deps.PlayerStat(r.Context(), name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlayerStatResponse(stat))
}

type openingResponse struct {
	ECO      string `json:"eco"`
	Name     string `json:"name"`
	MovesSAN string `json:"moves_san"`
	FEN      string `json:"fen,omitempty"`
}

// HandleOpening handles GET /openings/{eco} requests.
func (h *PlayersHandler) HandleOpening(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	eco := strings.TrimPrefix(r.URL.Path, "/openings/")
	if eco == "" || strings.Contains(eco, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	opening, err := h.deps.Opening(r.Context(), strings.ToUpper(eco))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, openingResponse{
		ECO:      opening.ECO,
		Name:     opening.Name,
		MovesSAN: opening.MovesSAN,
		FEN:      opening.FEN,
	})
}

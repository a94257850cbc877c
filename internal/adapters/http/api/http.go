// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/okian/gambit/internal/adapters/repository"
	service "github.com/okian/gambit/internal/app"
	"github.com/okian/gambit/internal/domain/model"
	"github.com/okian/gambit/internal/domain/notation"
	"github.com/okian/gambit/internal/domain/query"
)

// Dependencies required by HTTP handlers. Using an interface bundle
// keeps the handler layer loosely coupled to the service package.
type Dependencies interface {
	// Enqueue pushes a record for async ingestion. accepted is false
	// on backpressure; duplicate marks a record seen before.
	Enqueue(ctx context.Context, rec model.Record) (accepted, duplicate bool)

	// IngestBatch ingests records synchronously and reports per-batch
	// outcome counts.
	IngestBatch(ctx context.Context, records []model.Record) (model.BatchSummary, error)

	Game(ctx context.Context, id string) (model.Game, error)
	DeleteGame(ctx context.Context, id string) error
	AttachLabel(ctx context.Context, l model.Label) (int64, error)
	Labels(ctx context.Context, gameID string, kind model.LabelKind) ([]model.Label, error)
	Search(ctx context.Context, req query.Request) (query.Response, error)
	PlayerStat(ctx context.Context, player string) (model.PlayerStat, error)
	Opening(ctx context.Context, eco string) (model.Opening, error)
}

// validate checks request payload constraints declared as struct tags.
var validate = validator.New()

// Server wires HTTP routes for the corpus API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	recordsHandler *RecordsHandler
	gamesHandler   *GamesHandler
	searchHandler  *SearchHandler
	playersHandler *PlayersHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
		recordsHandler: NewRecordsHandler(deps),
		gamesHandler:   NewGamesHandler(deps),
		searchHandler:  NewSearchHandler(deps),
		playersHandler: NewPlayersHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/records", MetricsMiddleware(s.recordsHandler.HandlePostRecord, "records"))
	mux.HandleFunc("/batches", MetricsMiddleware(s.recordsHandler.HandlePostBatch, "batches"))
	mux.HandleFunc("/search", MetricsMiddleware(s.searchHandler.HandleSearch, "search"))
	mux.HandleFunc("/games/", MetricsMiddleware(s.gamesHandler.HandleGames, "games"))
	mux.HandleFunc("/players/", MetricsMiddleware(s.playersHandler.HandlePlayerStats, "players"))
	mux.HandleFunc("/openings/", MetricsMiddleware(s.playersHandler.HandleOpening, "openings"))
}

// recordRequest mirrors the ingest schema for POST /records and the
// elements of POST /batches.
type recordRequest struct {
	Source   string `json:"source"`
	Event    string `json:"event"`
	Site     string `json:"site"`
	Date     string `json:"date" validate:"omitempty"`
	Round    string `json:"round"`
	White    string `json:"white" validate:"required"`
	Black    string `json:"black" validate:"required"`
	Result   string `json:"result" validate:"required,oneof=1-0 0-1 1/2-1/2 *"`
	WhiteElo int    `json:"white_elo" validate:"omitempty,gte=0,lte=4000"`
	BlackElo int    `json:"black_elo" validate:"omitempty,gte=0,lte=4000"`
	ECO      string `json:"eco" validate:"omitempty,len=3"`
	PGNText  string `json:"pgn_text"`
	MoveText string `json:"move_text" validate:"required"`
}

func (r recordRequest) toRecord() model.Record {
	return model.Record{
		Source:   r.Source,
		Event:    r.Event,
		Site:     r.Site,
		Date:     notation.ParseDate(r.Date),
		Round:    r.Round,
		White:    r.White,
		Black:    r.Black,
		Result:   r.Result,
		WhiteElo: r.WhiteElo,
		BlackElo: r.BlackElo,
		ECO:      r.ECO,
		PGNText:  r.PGNText,
		MoveText: r.MoveText,
	}
}

type batchRequest struct {
	Records []recordRequest `json:"records" validate:"required,min=1,max=10000,dive"`
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// gameResponse is the read shape of a stored game.
type gameResponse struct {
	ID        string    `json:"id"`
	Source    string    `json:"source,omitempty"`
	Event     string    `json:"event,omitempty"`
	Site      string    `json:"site,omitempty"`
	Date      string    `json:"date,omitempty"`
	Round     string    `json:"round,omitempty"`
	White     string    `json:"white"`
	Black     string    `json:"black"`
	Result    string    `json:"result"`
	WhiteElo  int       `json:"white_elo,omitempty"`
	BlackElo  int       `json:"black_elo,omitempty"`
	ECO       string    `json:"eco,omitempty"`
	MovesSAN  string    `json:"moves_san"`
	MoveCount int       `json:"move_count"`
	CreatedAt time.Time `json:"created_at"`
}

func toGameResponse(g model.Game) gameResponse {
	date := ""
	if !g.Date.IsZero() {
		date = g.Date.Format("2006-01-02")
	}
	return gameResponse{
		ID:        g.ID,
		Source:    g.Source,
		Event:     g.Event,
		Site:      g.Site,
		Date:      date,
		Round:     g.Round,
		White:     g.White,
		Black:     g.Black,
		Result:    g.Result,
		WhiteElo:  g.WhiteElo,
		BlackElo:  g.BlackElo,
		ECO:       g.ECO,
		MovesSAN:  g.MovesSAN,
		MoveCount: g.MoveCount,
		CreatedAt: g.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError translates sentinel errors from lower layers into
// HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, notation.ErrMalformedRecord),
		errors.Is(err, service.ErrInvalidLabel),
		errors.Is(err, query.ErrBadCursor),
		errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, repository.ErrDuplicateGame):
		writeError(w, http.StatusConflict, "duplicate", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

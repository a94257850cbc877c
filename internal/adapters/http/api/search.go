// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/okian/gambit/internal/adapters/repository"
	"github.com/okian/gambit/internal/domain/model"
	"github.com/okian/gambit/internal/domain/notation"
	"github.com/okian/gambit/internal/domain/query"
)

// SearchHandler handles hybrid search requests.
type SearchHandler struct {
	deps Dependencies
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(deps Dependencies) *SearchHandler {
	return &SearchHandler{deps: deps}
}

// searchRequest mirrors the schema for POST /search.
type searchRequest struct {
	White        string  `json:"white"`
	Black        string  `json:"black"`
	Player       string  `json:"player"`
	Event        string  `json:"event"`
	Site         string  `json:"site"`
	Round        string  `json:"round"`
	Result       string  `json:"result" validate:"omitempty,oneof=1-0 0-1 1/2-1/2 *"`
	ECO          string  `json:"eco"`
	DateFrom     string  `json:"date_from" validate:"omitempty,datetime=2006-01-02"`
	DateTo       string  `json:"date_to" validate:"omitempty,datetime=2006-01-02"`
	MovesContain string  `json:"moves_contain"`
	Labels       []struct {
		Kind  string `json:"kind" validate:"required,oneof=nag comment opening theme mask motif endgame custom"`
		Value string `json:"value" validate:"required"`
	} `json:"labels" validate:"omitempty,dive"`
	Text   string    `json:"text"`
	Vector []float32 `json:"vector"`
	Model  string    `json:"model"`
	Limit  int       `json:"limit" validate:"omitempty,gte=1,lte=1000"`
	Cursor string    `json:"cursor"`
}

func (r searchRequest) toQuery() query.Request {
	req := query.Request{
		Filter: repository.GameFilter{
			White:        r.White,
			Black:        r.Black,
			Player:       r.Player,
			Event:        r.Event,
			Site:         r.Site,
			Round:        r.Round,
			Result:       r.Result,
			ECO:          r.ECO,
			DateFrom:     notation.ParseDate(r.DateFrom),
			DateTo:       notation.ParseDate(r.DateTo),
			MovesContain: r.MovesContain,
		},
		Text:   r.Text,
		Vector: r.Vector,
		Model:  r.Model,
		Limit:  r.Limit,
		Cursor: r.Cursor,
	}
	for _, lf := range r.Labels {
		req.Labels = append(req.Labels, query.LabelFilter{
			Kind:  model.LabelKind(lf.Kind),
			Value: lf.Value,
		})
	}
	return req
}

type searchHit struct {
	Game     gameResponse `json:"game"`
	Score    float64      `json:"score"`
	Semantic bool         `json:"semantic"`
}

type searchResponse struct {
	Hits            []searchHit `json:"hits"`
	NextCursor      string      `json:"next_cursor,omitempty"`
	SemanticSkipped bool        `json:"semantic_skipped"`
}

// HandleSearch handles POST /search requests.
func (h *SearchHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	const op = "api.search"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	resp, err := h.deps.Search(r.Context(), req.toQuery())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out := searchResponse{
		Hits:            make([]searchHit, len(resp.Hits)),
		NextCursor:      resp.NextCursor,
		SemanticSkipped: resp.SemanticSkipped,
	}
	for i, hit := range resp.Hits {
		out.Hits[i] = searchHit{
			Game:     toGameResponse(hit.Game),
			Score:    hit.Score,
			Semantic: hit.Semantic,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

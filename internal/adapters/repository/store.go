// Package repository implements durable, deduplicated storage for
// games, labels, embeddings, player stats and opening reference data.
package repository

import (
	"context"
	"time"

	"github.com/okian/gambit/internal/domain/model"
)

// GameFilter selects games by exact or partial header fields. Zero
// values mean "no constraint". Player matches either side by
// substring; ECO matches by prefix so "B" covers all Sicilians.
type GameFilter struct {
	White        string
	Black        string
	Player       string
	Event        string
	Site         string
	Round        string
	Result       string
	ECO          string
	DateFrom     time.Time
	DateTo       time.Time
	MovesContain string // substring match over the normalized SAN sequence
	Limit        int
	Offset       int
}

// Empty reports whether the filter constrains nothing.
func (f GameFilter) Empty() bool {
	return f.White == "" && f.Black == "" && f.Player == "" &&
		f.Event == "" && f.Site == "" && f.Round == "" &&
		f.Result == "" && f.ECO == "" &&
		f.DateFrom.IsZero() && f.DateTo.IsZero() &&
		f.MovesContain == ""
}

// Store provides read/write access to the corpus.
type Store interface {
	// PutGame inserts a new game. A dedup-key collision returns the
	// existing game's id together with ErrDuplicateGame; callers treat
	// that as "already present" and continue with the idempotent parts
	// of ingestion.
	PutGame(ctx context.Context, g model.Game) (string, error)

	// GetGame returns a game by id, or ErrNotFound.
	GetGame(ctx context.Context, id string) (model.Game, error)

	// FindGames returns games matching the filter, most recently
	// created first.
	FindGames(ctx context.Context, f GameFilter) ([]model.Game, error)

	// FindGameIDs is FindGames reduced to identifiers, for the query
	// planner's candidate sets.
	FindGameIDs(ctx context.Context, f GameFilter) ([]string, error)

	// DeleteGame removes a game and, inside the same transaction, all
	// of its labels and embeddings. After it returns no read can
	// observe the game or its dependents.
	DeleteGame(ctx context.Context, id string) error

	// CountGames returns the total number of stored games.
	CountGames(ctx context.Context) (int, error)

	// AttachLabel appends a label. Returns ErrNotFound when the game
	// does not exist. There is no uniqueness check: labels are
	// append-only and duplicates are tolerated.
	AttachLabel(ctx context.Context, l model.Label) (int64, error)

	// QueryLabels returns labels by kind, optionally narrowed by value
	// and game id. The (kind, value) pair is the indexed access path.
	QueryLabels(ctx context.Context, kind model.LabelKind, value, gameID string) ([]model.Label, error)

	// LabelGameIDs returns the distinct game ids carrying a
	// (kind, value) label, for candidate-set intersection.
	LabelGameIDs(ctx context.Context, kind model.LabelKind, value string) ([]string, error)

	// UpsertEmbedding replaces any prior vector for the same
	// (owner, model) pair.
	UpsertEmbedding(ctx context.Context, e model.Embedding) error

	// GetEmbedding returns the vector for (ownerID, model), or
	// ErrNotFound.
	GetEmbedding(ctx context.Context, ownerID, embedModel string) (model.Embedding, error)

	// ListEmbeddings returns all embeddings of one (model, ownerKind)
	// namespace, for index rebuilds.
	ListEmbeddings(ctx context.Context, embedModel string, kind model.OwnerKind) ([]model.Embedding, error)

	// UpsertPlayerStat atomically replaces a player's rollup. A write
	// whose computation started before the persisted row's returns
	// ErrStaleAggregation and leaves the row untouched.
	UpsertPlayerStat(ctx context.Context, stat model.PlayerStat, startedAt time.Time) error

	// GetPlayerStat returns the cached rollup, or ErrNotFound.
	GetPlayerStat(ctx context.Context, player string) (model.PlayerStat, error)

	// GamesOfPlayer returns all games where the player appears as
	// either side, for stat recomputation.
	GamesOfPlayer(ctx context.Context, player string) ([]model.Game, error)

	// LoadOpenings bulk-loads opening reference rows, replacing
	// existing codes.
	LoadOpenings(ctx context.Context, openings []model.Opening) error

	// GetOpening returns the opening for an ECO code, or ErrNotFound.
	GetOpening(ctx context.Context, eco string) (model.Opening, error)

	Close() error
}

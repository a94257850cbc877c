// Package stats recomputes per-player rollups from stored games and
// engine labels.
//
// Rollups are derived data: nothing here is authoritative, and every
// field can be rebuilt by a full recompute. Writes go through the
// store's stale-write guard, so two overlapping recomputes for the
// same player resolve to the fresher one and the loser retries.
package stats

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/gambit/internal/adapters/repository"
	"github.com/okian/gambit/internal/domain/model"
	"github.com/okian/gambit/pkg/logger"
	"github.com/okian/gambit/pkg/metrics"
)

// Engine label conventions. Engine analysis lands in the annotation
// layer as ordinary labels; the aggregator only reads them back.
const (
	// cplPrefix marks a centipawn-loss label value, e.g. "cpl=34".
	cplPrefix = "cpl="

	nagBlunder   = "$4"
	nagGoodMove  = "$1"
	nagBrilliant = "$3"
)

// Store is the slice of the repository the aggregator needs.
type Store interface {
	GamesOfPlayer(ctx context.Context, player string) ([]model.Game, error)
	QueryLabels(ctx context.Context, kind model.LabelKind, value, gameID string) ([]model.Label, error)
	UpsertPlayerStat(ctx context.Context, stat model.PlayerStat, startedAt time.Time) error
}

// Aggregator recomputes and persists player rollups.
type Aggregator struct {
	store       Store
	maxRetries  int
	parallelism int
	log         logger.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithMaxRetries bounds how often a recompute retries after losing a
// concurrent-write race.
func WithMaxRetries(n int) Option {
	return func(a *Aggregator) {
		if n >= 0 {
			a.maxRetries = n
		}
	}
}

// WithParallelism bounds concurrent per-player recomputes in
// RecomputeAll.
func WithParallelism(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.parallelism = n
		}
	}
}

// NewAggregator creates an aggregator over the store.
func NewAggregator(store Store, opts ...Option) (*Aggregator, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	a := &Aggregator{
		store:       store,
		maxRetries:  3,
		parallelism: 8,
		log:         logger.Named("stats"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Recompute rebuilds one player's rollup from scratch and persists
// it. When the persisted row turns out to be fresher (another
// recompute finished in between), the whole computation reruns so a
// lost update can never be forced in.
func (a *Aggregator) Recompute(ctx context.Context, player string) error {
	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		startedAt := time.Now().UTC()
		stat, err := a.compute(ctx, player)
		if err != nil {
			return err
		}

		err = a.store.UpsertPlayerStat(ctx, stat, startedAt)
		if err == nil {
			metrics.RecordStatsRecompute()
			return nil
		}
		if !errors.Is(err, repository.ErrStaleAggregation) {
			return err
		}
		metrics.RecordStatsConflict()
		a.log.Debug(ctx, "stat write lost a concurrency race, recomputing",
			logger.String("player", player),
			logger.Int("attempt", attempt+1))
		lastErr = err
	}
	return fmt.Errorf("recompute for %s gave up after %d retries: %w", player, a.maxRetries, lastErr)
}

// RecomputeAll fans recomputation out across players. One player's
// failure never blocks the others; all failures come back joined.
func (a *Aggregator) RecomputeAll(ctx context.Context, players []string) error {
	var g errgroup.Group
	g.SetLimit(a.parallelism)

	var mu sync.Mutex
	var errs []error
	for _, player := range players {
		player := player
		g.Go(func() error {
			if err := a.Recompute(ctx, player); err != nil {
				a.log.Error(ctx, "player recompute failed",
					logger.String("player", player),
					logger.Error(err))
				mu.Lock()
				errs = append(errs, fmt.Errorf("player %s: %w", player, err))
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait() //nolint:errcheck // goroutines never return errors, failures are collected above
	return errors.Join(errs...)
}

// compute derives the rollup without writing anything.
func (a *Aggregator) compute(ctx context.Context, player string) (model.PlayerStat, error) {
	games, err := a.store.GamesOfPlayer(ctx, player)
	if err != nil {
		return model.PlayerStat{}, fmt.Errorf("load games failed: %w", err)
	}

	stat := model.PlayerStat{
		PlayerName: player,
		TotalGames: len(games),
		AnalyzedAt: time.Now().UTC(),
	}

	var (
		cplSum     float64
		cplCount   int
		moveCount  int
		blunders   int
		bestMoves  int
		nagLabeled bool
		ecoCounts  = map[string]int{}
		themeGames = map[string]int{}
	)

	for i := range games {
		g := &games[i]
		asWhite := g.White == player

		switch g.Result {
		case model.ResultWhiteWins:
			if asWhite {
				stat.Wins++
			} else {
				stat.Losses++
			}
		case model.ResultBlackWins:
			if asWhite {
				stat.Losses++
			} else {
				stat.Wins++
			}
		case model.ResultDraw:
			stat.Draws++
		}

		if g.ECO != "" {
			ecoCounts[g.ECO]++
		}
		moveCount += playerHalfMoves(g.MoveCount, asWhite)

		if err := a.scanEngineLabels(ctx, g.ID, asWhite,
			&cplSum, &cplCount, &blunders, &bestMoves, &nagLabeled); err != nil {
			return model.PlayerStat{}, err
		}
		if err := a.scanThemes(ctx, g.ID, themeGames); err != nil {
			return model.PlayerStat{}, err
		}
	}

	if cplCount > 0 {
		avg := cplSum / float64(cplCount)
		stat.AvgCPL = &avg
	}
	if nagLabeled && moveCount > 0 {
		br := float64(blunders) / float64(moveCount)
		bm := float64(bestMoves) / float64(moveCount)
		stat.BlunderRate = &br
		stat.BestMoveRate = &bm
	}
	stat.MostPlayedECO = mostPlayed(ecoCounts)
	if len(themeGames) > 0 && len(games) > 0 {
		stat.ThemeRates = make(model.ThemeRates, len(themeGames))
		for theme, n := range themeGames {
			stat.ThemeRates[theme] = float64(n) / float64(len(games))
		}
	}
	return stat, nil
}

// scanEngineLabels folds one game's engine annotations into the
// running counters, keeping only half-moves played by the player's
// side.
func (a *Aggregator) scanEngineLabels(ctx context.Context, gameID string, asWhite bool,
	cplSum *float64, cplCount, blunders, bestMoves *int, nagLabeled *bool) error {
	nags, err := a.store.QueryLabels(ctx, model.LabelNAG, "", gameID)
	if err != nil {
		return fmt.Errorf("load nag labels failed: %w", err)
	}
	for _, l := range nags {
		if l.CreatedBy != model.ByEngine || !playerMove(l.HalfMove, asWhite) {
			continue
		}
		*nagLabeled = true
		switch l.Value {
		case nagBlunder:
			*blunders++
		case nagGoodMove, nagBrilliant:
			*bestMoves++
		}
	}

	customs, err := a.store.QueryLabels(ctx, model.LabelCustom, "", gameID)
	if err != nil {
		return fmt.Errorf("load custom labels failed: %w", err)
	}
	for _, l := range customs {
		if l.CreatedBy != model.ByEngine || !playerMove(l.HalfMove, asWhite) {
			continue
		}
		if !strings.HasPrefix(l.Value, cplPrefix) {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimPrefix(l.Value, cplPrefix), 64)
		if err != nil {
			a.log.Warn(ctx, "skipping unparseable cpl label",
				logger.String("gameID", gameID),
				logger.String("value", l.Value))
			continue
		}
		*cplSum += v
		*cplCount++
	}
	return nil
}

// scanThemes counts games carrying each known theme label.
func (a *Aggregator) scanThemes(ctx context.Context, gameID string, themeGames map[string]int) error {
	themes, err := a.store.QueryLabels(ctx, model.LabelTheme, "", gameID)
	if err != nil {
		return fmt.Errorf("load theme labels failed: %w", err)
	}
	seen := map[string]struct{}{}
	for _, l := range themes {
		if !knownTheme(l.Value) {
			continue
		}
		if _, dup := seen[l.Value]; dup {
			continue
		}
		seen[l.Value] = struct{}{}
		themeGames[l.Value]++
	}
	return nil
}

// playerMove reports whether a half-move index belongs to the side
// the player was on. Half-moves are 1-based with white moving first,
// so white owns the odd indices. Whole-game labels (nil index) count
// for both.
func playerMove(halfMove *int, asWhite bool) bool {
	if halfMove == nil {
		return true
	}
	if asWhite {
		return *halfMove%2 == 1
	}
	return *halfMove%2 == 0
}

// playerHalfMoves splits a game's half-move total by side.
func playerHalfMoves(moveCount int, asWhite bool) int {
	if asWhite {
		return (moveCount + 1) / 2
	}
	return moveCount / 2
}

// mostPlayed returns the modal key; ties break to the lexicographically
// smallest code so repeated recomputes are deterministic.
func mostPlayed(counts map[string]int) string {
	if len(counts) == 0 {
		return ""
	}
	codes := make([]string, 0, len(counts))
	for eco := range counts {
		codes = append(codes, eco)
	}
	sort.Strings(codes)
	best, bestN := "", -1
	for _, eco := range codes {
		if counts[eco] > bestN {
			best, bestN = eco, counts[eco]
		}
	}
	return best
}

func knownTheme(v string) bool {
	for _, t := range model.KnownThemes {
		if t == v {
			return true
		}
	}
	return false
}

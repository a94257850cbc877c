package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/okian/gambit/internal/domain/model"
)

// UpsertPlayerStat replaces a player's rollup atomically. The row
// carries the start time of the computation that produced it; a write
// whose computation started earlier than the persisted one is
// rejected with ErrStaleAggregation so a lost update can never
// overwrite fresher data. Callers resolve the conflict by recomputing,
// never by forcing a known-stale value in.
func (s *SQLiteStore) UpsertPlayerStat(ctx context.Context, stat model.PlayerStat, startedAt time.Time) error {
	if err := stat.ThemeRates.Validate(); err != nil {
		return fmt.Errorf("invalid theme rates: %w", err)
	}
	themes, err := json.Marshal(stat.ThemeRates)
	if err != nil {
		return fmt.Errorf("marshal theme rates failed: %w", err)
	}
	if stat.AnalyzedAt.IsZero() {
		stat.AnalyzedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO player_stats (player_name, total_games, wins, draws, losses,
			avg_cpl, blunder_rate, best_move_rate, most_played_eco, theme_rates,
			started_at, analyzed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(player_name) DO UPDATE SET
			total_games = excluded.total_games,
			wins = excluded.wins,
			draws = excluded.draws,
			losses = excluded.losses,
			avg_cpl = excluded.avg_cpl,
			blunder_rate = excluded.blunder_rate,
			best_move_rate = excluded.best_move_rate,
			most_played_eco = excluded.most_played_eco,
			theme_rates = excluded.theme_rates,
			started_at = excluded.started_at,
			analyzed_at = excluded.analyzed_at
		 WHERE excluded.started_at >= player_stats.started_at`,
		stat.PlayerName, stat.TotalGames, stat.Wins, stat.Draws, stat.Losses,
		stat.AvgCPL, stat.BlunderRate, stat.BestMoveRate, stat.MostPlayedECO,
		string(themes), startedAt, stat.AnalyzedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert player stat failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected failed: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("player %s: %w", stat.PlayerName, ErrStaleAggregation)
	}
	return nil
}

// GetPlayerStat returns the cached rollup for a player.
func (s *SQLiteStore) GetPlayerStat(ctx context.Context, player string) (model.PlayerStat, error) {
	var (
		stat   model.PlayerStat
		themes string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT player_name, total_games, wins, draws, losses,
			avg_cpl, blunder_rate, best_move_rate, most_played_eco, theme_rates, analyzed_at
		 FROM player_stats WHERE player_name = ?`,
		player,
	).Scan(&stat.PlayerName, &stat.TotalGames, &stat.Wins, &stat.Draws, &stat.Losses,
		&stat.AvgCPL, &stat.BlunderRate, &stat.BestMoveRate, &stat.MostPlayedECO,
		&themes, &stat.AnalyzedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PlayerStat{}, fmt.Errorf("player %s: %w", player, ErrNotFound)
	}
	if err != nil {
		return model.PlayerStat{}, fmt.Errorf("get player stat failed: %w", err)
	}
	if themes != "" && themes != "{}" {
		if err := json.Unmarshal([]byte(themes), &stat.ThemeRates); err != nil {
			return model.PlayerStat{}, fmt.Errorf("unmarshal theme rates failed: %w", err)
		}
	}
	return stat, nil
}

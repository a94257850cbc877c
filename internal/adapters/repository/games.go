package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/okian/gambit/internal/domain/model"
)

// dateLayout is the canonical storage format for game dates; the
// empty string stands for an unknown date. ISO ordering makes range
// predicates plain string comparisons.
const dateLayout = "2006-01-02"

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func parseStoredDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

const gameColumns = `id, source, event, site, date, round, white, black,
	result, white_elo, black_elo, eco, pgn_text, moves_san, move_count, created_at`

// PutGame inserts a new game row. The UNIQUE index on the dedup tuple
// resolves concurrent puts of the same game to exactly one row; the
// loser receives the winner's id together with ErrDuplicateGame.
func (s *SQLiteStore) PutGame(ctx context.Context, g model.Game) (string, error) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO games (`+gameColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Source, g.Event, g.Site, formatDate(g.Date), g.Round,
		g.White, g.Black, g.Result, g.WhiteElo, g.BlackElo, g.ECO,
		g.PGNText, g.MovesSAN, g.MoveCount, g.CreatedAt,
	)
	if err == nil {
		return g.ID, nil
	}

	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique {
		var existing string
		lookupErr := s.db.QueryRowContext(ctx,
			`SELECT id FROM games WHERE white = ? AND black = ? AND date = ? AND round = ? AND event = ?`,
			g.White, g.Black, formatDate(g.Date), g.Round, g.Event,
		).Scan(&existing)
		if lookupErr != nil {
			return "", fmt.Errorf("dedup lookup failed: %w", lookupErr)
		}
		return existing, ErrDuplicateGame
	}
	return "", fmt.Errorf("insert game failed: %w", err)
}

// GetGame returns a game by id.
func (s *SQLiteStore) GetGame(ctx context.Context, id string) (model.Game, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+gameColumns+` FROM games WHERE id = ?`, id)
	g, err := scanGame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Game{}, fmt.Errorf("game %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Game{}, fmt.Errorf("get game failed: %w", err)
	}
	return g, nil
}

// FindGames returns games matching the filter, most recently created
// first with id as the final tie-break for deterministic pagination.
func (s *SQLiteStore) FindGames(ctx context.Context, f GameFilter) ([]model.Game, error) {
	query, args := buildGameQuery(gameColumns, f)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find games failed: %w", err)
	}
	defer rows.Close()

	var games []model.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return games, nil
}

// FindGameIDs returns only the identifiers of matching games.
func (s *SQLiteStore) FindGameIDs(ctx context.Context, f GameFilter) ([]string, error) {
	query, args := buildGameQuery("id", f)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find game ids failed: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return ids, nil
}

// buildGameQuery assembles the dynamic WHERE clause shared by
// FindGames and FindGameIDs.
func buildGameQuery(columns string, f GameFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, vals ...any) {
		conds = append(conds, cond)
		args = append(args, vals...)
	}

	if f.White != "" {
		add("white = ?", f.White)
	}
	if f.Black != "" {
		add("black = ?", f.Black)
	}
	if f.Player != "" {
		like := "%" + f.Player + "%"
		add("(white LIKE ? OR black LIKE ?)", like, like)
	}
	if f.Event != "" {
		add("event = ?", f.Event)
	}
	if f.Site != "" {
		add("site = ?", f.Site)
	}
	if f.Round != "" {
		add("round = ?", f.Round)
	}
	if f.Result != "" {
		add("result = ?", f.Result)
	}
	if f.ECO != "" {
		add("eco LIKE ?", f.ECO+"%")
	}
	if !f.DateFrom.IsZero() {
		add("date >= ?", formatDate(f.DateFrom))
	}
	if !f.DateTo.IsZero() {
		add("date != '' AND date <= ?", formatDate(f.DateTo))
	}
	if f.MovesContain != "" {
		add("instr(moves_san, ?) > 0", f.MovesContain)
	}

	query := "SELECT " + columns + " FROM games"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, f.Offset)
	}
	return query, args
}

// DeleteGame removes the game together with all of its labels and
// embeddings in a single transaction, so no read can ever observe an
// orphaned dependent.
func (s *SQLiteStore) DeleteGame(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM embeddings WHERE owner_id = ? AND owner_kind = ?`,
		id, model.OwnerGame); err != nil {
		return fmt.Errorf("delete embeddings failed: %w", err)
	}

	// Labels fall with the game via the FK cascade.
	res, err := tx.ExecContext(ctx, `DELETE FROM games WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete game failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected failed: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("game %s: %w", id, ErrNotFound)
	}
	return tx.Commit()
}

// CountGames returns the number of stored games.
func (s *SQLiteStore) CountGames(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM games`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count games failed: %w", err)
	}
	return n, nil
}

// GamesOfPlayer returns every game where the player appears as either
// side, by exact name.
func (s *SQLiteStore) GamesOfPlayer(ctx context.Context, player string) ([]model.Game, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+gameColumns+` FROM games WHERE white = ? OR black = ? ORDER BY created_at DESC, id ASC`,
		player, player)
	if err != nil {
		return nil, fmt.Errorf("games of player failed: %w", err)
	}
	defer rows.Close()

	var games []model.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return games, nil
}

// rowScanner lets scanGame work for both QueryRow and Query results.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (model.Game, error) {
	var (
		g    model.Game
		date string
	)
	err := row.Scan(
		&g.ID, &g.Source, &g.Event, &g.Site, &date, &g.Round,
		&g.White, &g.Black, &g.Result, &g.WhiteElo, &g.BlackElo,
		&g.ECO, &g.PGNText, &g.MovesSAN, &g.MoveCount, &g.CreatedAt,
	)
	if err != nil {
		return model.Game{}, err
	}
	g.Date = parseStoredDate(date)
	return g, nil
}

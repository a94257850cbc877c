package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/okian/gambit/internal/domain/model"
)

// AttachLabel appends a label row. Labels are append-only: there is
// no uniqueness constraint, and corrections are modeled as new labels
// plus out-of-band cleanup, never in-place edits.
func (s *SQLiteStore) AttachLabel(ctx context.Context, l model.Label) (int64, error) {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	if l.CreatedBy == "" {
		l.CreatedBy = model.ByOperator
	}

	var fen any
	if l.PositionFEN != "" {
		fen = l.PositionFEN
	}
	var halfMove any
	if l.HalfMove != nil {
		halfMove = *l.HalfMove
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO labels (game_id, kind, value, position_fen, half_move, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.GameID, l.Kind, l.Value, fen, halfMove, l.CreatedBy, l.CreatedAt,
	)
	if err != nil {
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintForeignKey {
			return 0, fmt.Errorf("game %s: %w", l.GameID, ErrNotFound)
		}
		return 0, fmt.Errorf("attach label failed: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id failed: %w", err)
	}
	return id, nil
}

// QueryLabels returns labels by kind, optionally narrowed by value
// and game id. The (kind, value) pair rides the compound index; it is
// the primary access pattern for thematic and motif search.
func (s *SQLiteStore) QueryLabels(ctx context.Context, kind model.LabelKind, value, gameID string) ([]model.Label, error) {
	conds := []string{"kind = ?"}
	args := []any{kind}
	if value != "" {
		conds = append(conds, "value = ?")
		args = append(args, value)
	}
	if gameID != "" {
		conds = append(conds, "game_id = ?")
		args = append(args, gameID)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, game_id, kind, value, position_fen, half_move, created_by, created_at
		 FROM labels WHERE `+strings.Join(conds, " AND ")+` ORDER BY id ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query labels failed: %w", err)
	}
	defer rows.Close()

	var labels []model.Label
	for rows.Next() {
		l, err := scanLabel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		labels = append(labels, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return labels, nil
}

// LabelGameIDs returns the distinct game ids carrying a (kind, value)
// label, for the query planner's candidate intersection.
func (s *SQLiteStore) LabelGameIDs(ctx context.Context, kind model.LabelKind, value string) ([]string, error) {
	query := `SELECT DISTINCT game_id FROM labels WHERE kind = ?`
	args := []any{kind}
	if value != "" {
		query += ` AND value = ?`
		args = append(args, value)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("label game ids failed: %w", err)
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

func scanLabel(rows *sql.Rows) (model.Label, error) {
	var (
		l        model.Label
		fen      sql.NullString
		halfMove sql.NullInt64
	)
	err := rows.Scan(&l.ID, &l.GameID, &l.Kind, &l.Value, &fen, &halfMove, &l.CreatedBy, &l.CreatedAt)
	if err != nil {
		return model.Label{}, err
	}
	if fen.Valid {
		l.PositionFEN = fen.String
	}
	if halfMove.Valid {
		hm := int(halfMove.Int64)
		l.HalfMove = &hm
	}
	return l, nil
}

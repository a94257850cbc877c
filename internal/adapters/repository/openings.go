package repository

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/okian/gambit/internal/domain/model"
)

// LoadOpenings bulk-loads opening reference data. Openings are
// read-mostly: loaded once at startup and updated rarely out-of-band,
// so a full replace per code is fine.
func (s *SQLiteStore) LoadOpenings(ctx context.Context, openings []model.Opening) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO openings (eco, name, moves_san, fen) VALUES (?, ?, ?, ?)
		 ON CONFLICT(eco) DO UPDATE SET
			name = excluded.name,
			moves_san = excluded.moves_san,
			fen = excluded.fen`)
	if err != nil {
		return fmt.Errorf("prepare failed: %w", err)
	}
	defer stmt.Close()

	for _, o := range openings {
		if o.ECO == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, o.ECO, o.Name, o.MovesSAN, o.FEN); err != nil {
			return fmt.Errorf("load opening %s failed: %w", o.ECO, err)
		}
	}
	return tx.Commit()
}

// LoadOpeningsFile reads an ECO reference file and loads it. Each
// non-blank, non-comment line carries tab-separated columns:
// eco, name, moves (SAN), optional fen. Returns how many openings
// were loaded.
func (s *SQLiteStore) LoadOpeningsFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open openings file: %w", err)
	}
	defer f.Close()

	openings, err := parseOpenings(f)
	if err != nil {
		return 0, fmt.Errorf("parse openings file %s: %w", path, err)
	}
	if err := s.LoadOpenings(ctx, openings); err != nil {
		return 0, err
	}
	return len(openings), nil
}

func parseOpenings(r io.Reader) ([]model.Opening, error) {
	var out []model.Opening
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) < 3 {
			return nil, fmt.Errorf("line %d: want eco<TAB>name<TAB>moves, got %d columns", line, len(fields))
		}
		o := model.Opening{
			ECO:      strings.TrimSpace(fields[0]),
			Name:     strings.TrimSpace(fields[1]),
			MovesSAN: strings.TrimSpace(fields[2]),
		}
		if len(fields) > 3 {
			o.FEN = strings.TrimSpace(fields[3])
		}
		out = append(out, o)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetOpening returns the opening for an exact ECO code.
func (s *SQLiteStore) GetOpening(ctx context.Context, eco string) (model.Opening, error) {
	var o model.Opening
	err := s.db.QueryRowContext(ctx,
		`SELECT eco, name, moves_san, fen FROM openings WHERE eco = ?`, eco,
	).Scan(&o.ECO, &o.Name, &o.MovesSAN, &o.FEN)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Opening{}, fmt.Errorf("opening %s: %w", eco, ErrNotFound)
	}
	if err != nil {
		return model.Opening{}, fmt.Errorf("get opening failed: %w", err)
	}
	return o, nil
}

package repository

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/okian/gambit/internal/domain/model"
)

// UpsertEmbedding replaces any prior vector for the same
// (owner, model) pair. The primary key makes the replace atomic, so
// concurrent upserts leave exactly one final vector with
// last-writer-wins semantics based on completion order.
func (s *SQLiteStore) UpsertEmbedding(ctx context.Context, e model.Embedding) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if !e.OwnerKind.Valid() {
		return fmt.Errorf("invalid owner kind %q", e.OwnerKind)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO embeddings (owner_id, owner_kind, model, vector, dim, source_text, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(owner_id, model) DO UPDATE SET
			owner_kind = excluded.owner_kind,
			vector = excluded.vector,
			dim = excluded.dim,
			source_text = excluded.source_text,
			created_at = excluded.created_at`,
		e.OwnerID, e.OwnerKind, e.Model, encodeVector(e.Vector), len(e.Vector),
		e.SourceText, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert embedding failed: %w", err)
	}
	return nil
}

// GetEmbedding returns the stored vector for (ownerID, model).
func (s *SQLiteStore) GetEmbedding(ctx context.Context, ownerID, embedModel string) (model.Embedding, error) {
	var (
		e    model.Embedding
		blob []byte
		dim  int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT owner_id, owner_kind, model, vector, dim, source_text, created_at
		 FROM embeddings WHERE owner_id = ? AND model = ?`,
		ownerID, embedModel,
	).Scan(&e.OwnerID, &e.OwnerKind, &e.Model, &blob, &dim, &e.SourceText, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Embedding{}, fmt.Errorf("embedding %s/%s: %w", ownerID, embedModel, ErrNotFound)
	}
	if err != nil {
		return model.Embedding{}, fmt.Errorf("get embedding failed: %w", err)
	}
	e.Vector = decodeVector(blob, dim)
	return e, nil
}

// ListEmbeddings returns every embedding of one (model, ownerKind)
// namespace. The vector index manager calls this during rebuilds.
func (s *SQLiteStore) ListEmbeddings(ctx context.Context, embedModel string, kind model.OwnerKind) ([]model.Embedding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT owner_id, owner_kind, model, vector, dim, source_text, created_at
		 FROM embeddings WHERE model = ? AND owner_kind = ?`,
		embedModel, kind,
	)
	if err != nil {
		return nil, fmt.Errorf("list embeddings failed: %w", err)
	}
	defer rows.Close()

	var all []model.Embedding
	for rows.Next() {
		var (
			e    model.Embedding
			blob []byte
			dim  int
		)
		if err := rows.Scan(&e.OwnerID, &e.OwnerKind, &e.Model, &blob, &dim, &e.SourceText, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		e.Vector = decodeVector(blob, dim)
		all = append(all, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return all, nil
}

// encodeVector packs a float32 vector as a little-endian blob.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector unpacks a little-endian blob into dim float32 values.
func decodeVector(buf []byte, dim int) []float32 {
	if dim <= 0 || len(buf) < 4*dim {
		return nil
	}
	v := make([]float32, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}

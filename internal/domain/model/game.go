// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"
)

// Record represents one parsed game record handed to the ingestion
// pipeline. Header fields mirror the PGN tag pairs extracted by the
// external parser; MoveText still carries inline comments and NAGs.
type Record struct {
	Source   string    // originating file or batch identifier
	Event    string    // tournament or match name
	Site     string    // location
	Date     time.Time // zero value when the PGN date was unknown
	Round    string
	White    string
	Black    string
	Result   string // "1-0", "0-1", "1/2-1/2" or "*"
	WhiteElo int    // 0 when unrated
	BlackElo int    // 0 when unrated
	ECO      string // opening classification code
	PGNText  string // full original notation text
	MoveText string // movetext section, annotations included
}

// DedupKey returns the natural uniqueness key for a game:
// (white, black, date, round, event). The corpus store enforces the
// same tuple with a UNIQUE index; this key is only used for the cheap
// in-memory pre-check.
func (r Record) DedupKey() string {
	return dedupKey(r.White, r.Black, r.Date, r.Round, r.Event)
}

// Game is a stored chess game row.
type Game struct {
	ID        string // uuid assigned at insert
	Source    string
	Event     string
	Site      string
	Date      time.Time
	Round     string
	White     string
	Black     string
	Result    string
	WhiteElo  int
	BlackElo  int
	ECO       string
	PGNText   string
	MovesSAN  string // normalized space-separated SAN sequence
	MoveCount int
	CreatedAt time.Time
}

// DedupKey returns the natural uniqueness key of the stored game.
func (g Game) DedupKey() string {
	return dedupKey(g.White, g.Black, g.Date, g.Round, g.Event)
}

// Players returns both player names.
func (g Game) Players() []string {
	return []string{g.White, g.Black}
}

func dedupKey(white, black string, date time.Time, round, event string) string {
	d := ""
	if !date.IsZero() {
		d = date.Format("2006.01.02")
	}
	return strings.Join([]string{white, black, d, round, event}, "\x1f")
}

// GameResult helpers used by the stats aggregator.
const (
	ResultWhiteWins = "1-0"
	ResultBlackWins = "0-1"
	ResultDraw      = "1/2-1/2"
	ResultUnknown   = "*"
)

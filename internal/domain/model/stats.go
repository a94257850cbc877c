package model

import (
	"fmt"
	"time"
)

// PlayerStat is a cached per-player rollup. It is derived data only:
// every field is reconstructible from game and label rows, and
// AnalyzedAt bounds how stale the row may be.
type PlayerStat struct {
	PlayerName    string
	TotalGames    int
	Wins          int
	Draws         int
	Losses        int
	AvgCPL        *float64 // nil until engine labels exist for the player
	BlunderRate   *float64
	BestMoveRate  *float64 // top-engine-move match rate
	MostPlayedECO string
	ThemeRates    ThemeRates // per-theme error frequency
	AnalyzedAt    time.Time
}

// ThemeRates maps a theme key to a numeric rate. It replaces the old
// untyped JSONB blob with an explicit map validated at the write
// boundary.
type ThemeRates map[string]float64

// KnownThemes is the closed key set accepted by ThemeRates.Validate.
var KnownThemes = []string{
	"opening", "middlegame", "endgame",
	"tactics", "king_safety", "pawn_structure", "time_trouble",
}

// Validate rejects unknown keys and rates outside [0, 1].
func (t ThemeRates) Validate() error {
	for key, rate := range t {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("theme %q: rate %v out of range [0,1]", key, rate)
		}
		known := false
		for _, k := range KnownThemes {
			if k == key {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("unknown theme key %q", key)
		}
	}
	return nil
}

// Opening is static reference data mapping an ECO code to its
// canonical name, defining move sequence and resulting position.
type Opening struct {
	ECO      string
	Name     string
	MovesSAN string
	FEN      string
}

package model

import "time"

// LabelKind enumerates the fixed set of annotation types.
type LabelKind string

const (
	LabelNAG     LabelKind = "nag"     // numeric annotation glyph, e.g. "$2"
	LabelComment LabelKind = "comment" // free-text commentary
	LabelOpening LabelKind = "opening" // opening classification
	LabelTheme   LabelKind = "theme"   // thematic tag, e.g. "king_hunt"
	LabelMask    LabelKind = "mask"    // positional mask
	LabelMotif   LabelKind = "motif"   // tactical motif
	LabelEndgame LabelKind = "endgame" // endgame classification
	LabelCustom  LabelKind = "custom"
)

// Valid reports whether k is one of the enumerated kinds.
func (k LabelKind) Valid() bool {
	switch k {
	case LabelNAG, LabelComment, LabelOpening, LabelTheme,
		LabelMask, LabelMotif, LabelEndgame, LabelCustom:
		return true
	}
	return false
}

// Attribution records who or what produced a label.
type Attribution string

const (
	ByOperator  Attribution = "operator"
	ByEngine    Attribution = "engine"
	ByHeuristic Attribution = "heuristic"
	ByUser      Attribution = "user"
)

// Valid reports whether a is a known attribution.
func (a Attribution) Valid() bool {
	switch a {
	case ByOperator, ByEngine, ByHeuristic, ByUser:
		return true
	}
	return false
}

// Label is a single typed annotation attached to a game, optionally
// scoped to one position. Labels are append-only: corrections are new
// labels, never in-place edits, so the audit history survives.
type Label struct {
	ID          int64
	GameID      string
	Kind        LabelKind
	Value       string
	PositionFEN string // "" means the label applies to the whole game
	HalfMove    *int   // nil means the label applies to the whole game
	CreatedBy   Attribution
	CreatedAt   time.Time
}

// WholeGame reports whether the label has no position scope.
func (l Label) WholeGame() bool {
	return l.PositionFEN == "" && l.HalfMove == nil
}

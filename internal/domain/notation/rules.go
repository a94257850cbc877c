package notation

import "context"

// RulesEngine replays a move sequence and returns the canonical FEN
// after each half-move. It is an optional external collaborator used
// only to validate a label's position reference at ingestion time;
// the store itself never checks board legality.
type RulesEngine interface {
	LegalPositions(ctx context.Context, movesSAN []string) ([]string, error)
}

// Package notation normalizes movetext handed over by the external
// PGN parser and extracts the inline annotations it leaves in place.
//
// Parsing raw PGN is out of scope; the input here is already the
// movetext section of a single game. This package strips it down to a
// clean space-separated SAN sequence and lifts comments and NAGs out
// as typed annotations with half-move indices.
package notation

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/okian/gambit/internal/domain/model"
)

// Annotation is an inline marker extracted from movetext.
type Annotation struct {
	Kind     model.LabelKind // LabelNAG or LabelComment
	Value    string
	HalfMove int // 1-based index of the move the marker follows; 0 = before any move
}

// resultTokens terminate movetext and are never moves.
var resultTokens = map[string]bool{
	"1-0": true, "0-1": true, "1/2-1/2": true, "*": true,
}

// suffixNAGs maps SAN suffix glyphs to their numeric annotation codes.
var suffixNAGs = map[string]string{
	"!":  "$1",
	"?":  "$2",
	"!!": "$3",
	"??": "$4",
	"!?": "$5",
	"?!": "$6",
}

// Normalize strips comments, variations, NAGs, move numbers and the
// result token from movetext, returning the space-separated SAN
// sequence and its half-move count.
func Normalize(moveText string) (string, int) {
	moves := splitMoves(moveText)
	return strings.Join(moves, " "), len(moves)
}

// ExtractAnnotations returns the inline comments and NAG markers of
// the movetext. Each annotation carries the half-move index of the
// move it follows, matching the label position convention.
func ExtractAnnotations(moveText string) []Annotation {
	var anns []Annotation
	halfMove := 0
	for _, tok := range tokenize(moveText) {
		switch tok.kind {
		case tokenMove:
			halfMove++
		case tokenComment:
			text := strings.TrimSpace(tok.text)
			if text != "" {
				anns = append(anns, Annotation{Kind: model.LabelComment, Value: text, HalfMove: halfMove})
			}
		case tokenNAG:
			anns = append(anns, Annotation{Kind: model.LabelNAG, Value: tok.text, HalfMove: halfMove})
		}
	}
	return anns
}

// splitMoves returns only the SAN tokens of the movetext, suffix
// glyphs removed.
func splitMoves(moveText string) []string {
	var moves []string
	for _, tok := range tokenize(moveText) {
		if tok.kind == tokenMove {
			moves = append(moves, tok.text)
		}
	}
	return moves
}

type tokenKind int

const (
	tokenMove tokenKind = iota
	tokenComment
	tokenNAG
)

type token struct {
	kind tokenKind
	text string
}

// tokenize walks the movetext once. Variations in parentheses are
// skipped entirely, including anything nested inside them.
func tokenize(moveText string) []token {
	var out []token
	s := moveText
	depth := 0
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == '(':
			depth++
			i++
		case c == ')':
			if depth > 0 {
				depth--
			}
			i++
		case c == '{':
			end := strings.IndexByte(s[i:], '}')
			if end < 0 {
				end = len(s) - i - 1
			}
			if depth == 0 {
				out = append(out, token{kind: tokenComment, text: s[i+1 : i+end]})
			}
			i += end + 1
		case unicode.IsSpace(rune(c)):
			i++
		default:
			j := i
			for j < len(s) && !unicode.IsSpace(rune(s[j])) && s[j] != '{' && s[j] != '(' && s[j] != ')' {
				j++
			}
			word := s[i:j]
			i = j
			if depth > 0 {
				continue
			}
			if t, ok := classify(word); ok {
				out = append(out, t...)
			}
		}
	}
	return out
}

// classify turns one whitespace-delimited word into zero or more
// tokens. A move with a suffix glyph ("Qxf7!?") yields both the move
// and the glyph's NAG code.
func classify(word string) ([]token, bool) {
	if word == "" || resultTokens[word] {
		return nil, false
	}
	if strings.HasPrefix(word, "$") {
		if _, err := strconv.Atoi(word[1:]); err == nil {
			return []token{{kind: tokenNAG, text: word}}, true
		}
		return nil, false
	}
	// Move numbers: "1.", "1...", also glued forms like "12.e4".
	trimmed := strings.TrimLeft(word, "0123456789")
	trimmed = strings.TrimLeft(trimmed, ".")
	if trimmed == "" {
		return nil, false
	}
	// Split trailing annotation glyphs off the SAN.
	san := strings.TrimRight(trimmed, "!?")
	if san == "" {
		return nil, false
	}
	toks := []token{{kind: tokenMove, text: san}}
	if glyph := trimmed[len(san):]; glyph != "" {
		if nag, ok := suffixNAGs[glyph]; ok {
			toks = append(toks, token{kind: tokenNAG, text: nag})
		}
	}
	return toks, true
}

// ParseDate parses a PGN date tag. Unknown segments ("????.??.??")
// yield the zero time.
func ParseDate(s string) time.Time {
	if s == "" || strings.HasPrefix(s, "?") {
		return time.Time{}
	}
	for _, layout := range []string{"2006.01.02", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ParseElo parses a rating tag, returning 0 for anything non-numeric.
func ParseElo(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// ValidateRecord rejects records the corpus cannot represent: a
// missing player name, a missing result, or an empty move list.
// Rejection applies to the single record only, never the batch.
func ValidateRecord(r model.Record) error {
	switch {
	case strings.TrimSpace(r.White) == "":
		return fmt.Errorf("%w: missing white player", ErrMalformedRecord)
	case strings.TrimSpace(r.Black) == "":
		return fmt.Errorf("%w: missing black player", ErrMalformedRecord)
	case strings.TrimSpace(r.Result) == "":
		return fmt.Errorf("%w: missing result", ErrMalformedRecord)
	}
	if _, count := Normalize(r.MoveText); count == 0 {
		return fmt.Errorf("%w: empty move list", ErrMalformedRecord)
	}
	return nil
}

package notation

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/gambit/internal/domain/model"
)

func TestNormalize_StripsNumbersAndResult(t *testing.T) {
	moves, count := Normalize("1. e4 e5 2. Nf3 Nc6 3. Bb5 a6 1-0")
	if moves != "e4 e5 Nf3 Nc6 Bb5 a6" {
		t.Errorf("unexpected moves: %q", moves)
	}
	if count != 6 {
		t.Errorf("expected 6 half-moves, got %d", count)
	}
}

func TestNormalize_StripsCommentsNAGsVariations(t *testing.T) {
	text := "1. e4 {best by test} e5 2. Nf3 $2 (2. f4 {the King's Gambit} exf4) Nc6 *"
	moves, count := Normalize(text)
	if moves != "e4 e5 Nf3 Nc6" {
		t.Errorf("unexpected moves: %q", moves)
	}
	if count != 4 {
		t.Errorf("expected 4 half-moves, got %d", count)
	}
}

func TestNormalize_SuffixGlyphs(t *testing.T) {
	moves, _ := Normalize("1. e4 e5 2. Qh5?! Nc6 3. Qxf7+?? Kxf7")
	if moves != "e4 e5 Qh5 Nc6 Qxf7+ Kxf7" {
		t.Errorf("unexpected moves: %q", moves)
	}
}

func TestExtractAnnotations(t *testing.T) {
	text := "1. e4 {solid} e5 2. Qh5?! Nc6 3. Bc4 $4 g6"
	anns := ExtractAnnotations(text)

	if len(anns) != 3 {
		t.Fatalf("expected 3 annotations, got %d: %v", len(anns), anns)
	}

	if anns[0].Kind != model.LabelComment || anns[0].Value != "solid" || anns[0].HalfMove != 1 {
		t.Errorf("unexpected comment annotation: %+v", anns[0])
	}
	if anns[1].Kind != model.LabelNAG || anns[1].Value != "$6" || anns[1].HalfMove != 3 {
		t.Errorf("unexpected suffix NAG: %+v", anns[1])
	}
	if anns[2].Kind != model.LabelNAG || anns[2].Value != "$4" || anns[2].HalfMove != 5 {
		t.Errorf("unexpected explicit NAG: %+v", anns[2])
	}
}

func TestExtractAnnotations_IgnoresVariationContent(t *testing.T) {
	text := "1. e4 (1. d4 {queen's pawn} d5 $1) e5"
	anns := ExtractAnnotations(text)
	if len(anns) != 0 {
		t.Errorf("expected no annotations from variations, got %v", anns)
	}
}

func TestParseDate(t *testing.T) {
	if d := ParseDate("1960.03.01"); d != time.Date(1960, 3, 1, 0, 0, 0, 0, time.UTC) {
		t.Errorf("unexpected date: %v", d)
	}
	if d := ParseDate("????.??.??"); !d.IsZero() {
		t.Errorf("expected zero time for unknown date, got %v", d)
	}
	if d := ParseDate(""); !d.IsZero() {
		t.Errorf("expected zero time for empty date, got %v", d)
	}
}

func TestParseElo(t *testing.T) {
	if n := ParseElo("2785"); n != 2785 {
		t.Errorf("expected 2785, got %d", n)
	}
	if n := ParseElo(""); n != 0 {
		t.Errorf("expected 0 for empty, got %d", n)
	}
	if n := ParseElo("unrated"); n != 0 {
		t.Errorf("expected 0 for non-numeric, got %d", n)
	}
}

func TestValidateRecord(t *testing.T) {
	good := model.Record{White: "Tal", Black: "Botvinnik", Result: "1-0", MoveText: "1. e4 e5"}
	if err := ValidateRecord(good); err != nil {
		t.Errorf("expected valid record, got %v", err)
	}

	cases := []model.Record{
		{Black: "Botvinnik", Result: "1-0", MoveText: "1. e4"},
		{White: "Tal", Result: "1-0", MoveText: "1. e4"},
		{White: "Tal", Black: "Botvinnik", MoveText: "1. e4"},
		{White: "Tal", Black: "Botvinnik", Result: "*", MoveText: "{no moves} *"},
	}
	for i, r := range cases {
		if err := ValidateRecord(r); !errors.Is(err, ErrMalformedRecord) {
			t.Errorf("case %d: expected ErrMalformedRecord, got %v", i, err)
		}
	}
}

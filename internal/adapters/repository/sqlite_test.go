package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/okian/gambit/internal/domain/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testGame(white, black string) model.Game {
	return model.Game{
		Source:    "test.pgn",
		Event:     "WCC",
		Site:      "Moscow",
		Date:      time.Date(1960, 3, 1, 0, 0, 0, 0, time.UTC),
		Round:     "1",
		White:     white,
		Black:     black,
		Result:    model.ResultWhiteWins,
		WhiteElo:  2700,
		BlackElo:  2690,
		ECO:       "B10",
		PGNText:   "1. e4 c6 1-0",
		MovesSAN:  "e4 c6",
		MoveCount: 2,
	}
}

func TestPutGame_Duplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.PutGame(ctx, testGame("Tal", "Botvinnik"))
	if err != nil {
		t.Fatalf("first put failed: %v", err)
	}

	id2, err := s.PutGame(ctx, testGame("Tal", "Botvinnik"))
	if !errors.Is(err, ErrDuplicateGame) {
		t.Fatalf("expected ErrDuplicateGame, got %v", err)
	}
	if id2 != id1 {
		t.Errorf("duplicate put returned id %s, want existing %s", id2, id1)
	}

	n, err := s.CountGames(ctx)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 game, got %d", n)
	}
}

func TestPutGame_ConcurrentSameKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	ids := make([]string, workers)
	dups := make([]bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := s.PutGame(ctx, testGame("Tal", "Botvinnik"))
			if errors.Is(err, ErrDuplicateGame) {
				dups[i] = true
			} else if err != nil {
				t.Errorf("worker %d: unexpected error %v", i, err)
				return
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := range dups {
		if !dups[i] {
			winners++
		}
		if ids[i] != ids[0] {
			t.Errorf("worker %d resolved to id %s, want %s", i, ids[i], ids[0])
		}
	}
	if winners != 1 {
		t.Errorf("expected exactly 1 winning insert, got %d", winners)
	}
}

func TestFindGames_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	g1 := testGame("Tal", "Botvinnik")
	g2 := testGame("Fischer", "Spassky")
	g2.Event = "WCh 1972"
	g2.Date = time.Date(1972, 7, 11, 0, 0, 0, 0, time.UTC)
	g2.ECO = "C95"
	g2.MovesSAN = "e4 e5 Nf3"
	g2.MoveCount = 3

	if _, err := s.PutGame(ctx, g1); err != nil {
		t.Fatal(err)
	}
	if _, err := s.PutGame(ctx, g2); err != nil {
		t.Fatal(err)
	}

	got, err := s.FindGames(ctx, GameFilter{White: "Tal"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].White != "Tal" {
		t.Errorf("white filter: got %v", got)
	}

	got, err = s.FindGames(ctx, GameFilter{Player: "spass"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Black != "Spassky" {
		t.Errorf("player substring filter: got %v", got)
	}

	got, err = s.FindGames(ctx, GameFilter{ECO: "C"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ECO != "C95" {
		t.Errorf("eco prefix filter: got %v", got)
	}

	got, err = s.FindGames(ctx, GameFilter{
		DateFrom: time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
		DateTo:   time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].White != "Fischer" {
		t.Errorf("date range filter: got %v", got)
	}

	got, err = s.FindGames(ctx, GameFilter{MovesContain: "e5 Nf3"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].White != "Fischer" {
		t.Errorf("move substring filter: got %v", got)
	}
}

func TestDeleteGame_Cascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.PutGame(ctx, testGame("Tal", "Botvinnik"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.AttachLabel(ctx, model.Label{
		GameID: id, Kind: model.LabelTheme, Value: "king_hunt", CreatedBy: model.ByUser,
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertEmbedding(ctx, model.Embedding{
		OwnerID: id, OwnerKind: model.OwnerGame, Model: "m1",
		Vector: []float32{1, 0, 0}, SourceText: "Tal vs Botvinnik",
	}); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteGame(ctx, id); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if _, err := s.GetGame(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for game, got %v", err)
	}
	labels, err := s.QueryLabels(ctx, model.LabelTheme, "", id)
	if err != nil {
		t.Fatal(err)
	}
	if len(labels) != 0 {
		t.Errorf("expected no labels after cascade, got %v", labels)
	}
	if _, err := s.GetEmbedding(ctx, id, "m1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for embedding, got %v", err)
	}

	if err := s.DeleteGame(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestAttachLabel_MissingGame(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AttachLabel(ctx, model.Label{
		GameID: "nope", Kind: model.LabelTheme, Value: "fork",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAttachLabel_MissingGame_PooledConnections(t *testing.T) {
	// A file-backed store runs a real connection pool; the foreign-key
	// pragma must hold on every connection, not just the first one.
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "corpus.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.AttachLabel(ctx, model.Label{
				GameID: "nope", Kind: model.LabelTheme, Value: "fork",
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("worker %d: expected ErrNotFound, got %v", i, err)
		}
	}
}

func TestQueryLabels_ByKindValue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.PutGame(ctx, testGame("Tal", "Botvinnik"))
	if err != nil {
		t.Fatal(err)
	}
	hm := 7
	for _, l := range []model.Label{
		{GameID: id, Kind: model.LabelTheme, Value: "king_hunt"},
		{GameID: id, Kind: model.LabelTheme, Value: "sacrifice"},
		{GameID: id, Kind: model.LabelNAG, Value: "$3", HalfMove: &hm},
	} {
		if _, err := s.AttachLabel(ctx, l); err != nil {
			t.Fatal(err)
		}
	}

	labels, err := s.QueryLabels(ctx, model.LabelTheme, "king_hunt", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(labels) != 1 || labels[0].Value != "king_hunt" || !labels[0].WholeGame() {
		t.Errorf("unexpected labels: %+v", labels)
	}

	nags, err := s.QueryLabels(ctx, model.LabelNAG, "", id)
	if err != nil {
		t.Fatal(err)
	}
	if len(nags) != 1 || nags[0].HalfMove == nil || *nags[0].HalfMove != 7 {
		t.Errorf("unexpected nag labels: %+v", nags)
	}

	ids, err := s.LabelGameIDs(ctx, model.LabelTheme, "sacrifice")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != id {
		t.Errorf("unexpected label game ids: %v", ids)
	}
}

func TestUpsertEmbedding_Replaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.PutGame(ctx, testGame("Tal", "Botvinnik"))
	if err != nil {
		t.Fatal(err)
	}

	first := model.Embedding{OwnerID: id, OwnerKind: model.OwnerGame, Model: "m1", Vector: []float32{1, 2, 3}}
	second := model.Embedding{OwnerID: id, OwnerKind: model.OwnerGame, Model: "m1", Vector: []float32{4, 5, 6}}
	if err := s.UpsertEmbedding(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertEmbedding(ctx, second); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetEmbedding(ctx, id, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Vector) != 3 || got.Vector[0] != 4 {
		t.Errorf("expected replaced vector, got %v", got.Vector)
	}

	all, err := s.ListEmbeddings(ctx, "m1", model.OwnerGame)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("expected exactly one vector for (owner, model), got %d", len(all))
	}
}

func TestUpsertPlayerStat_StaleGuard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	fresh := model.PlayerStat{PlayerName: "Tal", TotalGames: 10, Wins: 6, Draws: 3, Losses: 1}
	stale := model.PlayerStat{PlayerName: "Tal", TotalGames: 9, Wins: 5, Draws: 3, Losses: 1}

	if err := s.UpsertPlayerStat(ctx, fresh, now); err != nil {
		t.Fatalf("fresh upsert failed: %v", err)
	}

	err := s.UpsertPlayerStat(ctx, stale, now.Add(-time.Minute))
	if !errors.Is(err, ErrStaleAggregation) {
		t.Fatalf("expected ErrStaleAggregation, got %v", err)
	}

	got, err := s.GetPlayerStat(ctx, "Tal")
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalGames != 10 || got.Wins != 6 {
		t.Errorf("stale write overwrote fresh row: %+v", got)
	}
}

func TestPlayerStat_ThemeRatesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cpl := 34.5
	stat := model.PlayerStat{
		PlayerName: "Tal", TotalGames: 3, Wins: 2, Draws: 0, Losses: 1,
		AvgCPL:     &cpl,
		ThemeRates: model.ThemeRates{"tactics": 0.1, "endgame": 0.4},
	}
	if err := s.UpsertPlayerStat(ctx, stat, time.Now().UTC()); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetPlayerStat(ctx, "Tal")
	if err != nil {
		t.Fatal(err)
	}
	if got.AvgCPL == nil || *got.AvgCPL != 34.5 {
		t.Errorf("avg cpl round trip failed: %v", got.AvgCPL)
	}
	if got.ThemeRates["endgame"] != 0.4 {
		t.Errorf("theme rates round trip failed: %v", got.ThemeRates)
	}

	bad := stat
	bad.ThemeRates = model.ThemeRates{"voodoo": 0.2}
	if err := s.UpsertPlayerStat(ctx, bad, time.Now().UTC()); err == nil {
		t.Error("expected validation error for unknown theme key")
	}
}

func TestOpenings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.LoadOpenings(ctx, []model.Opening{
		{ECO: "B10", Name: "Caro-Kann Defence", MovesSAN: "e4 c6"},
		{ECO: "C95", Name: "Ruy Lopez, Breyer", MovesSAN: "e4 e5 Nf3"},
	})
	if err != nil {
		t.Fatal(err)
	}

	o, err := s.GetOpening(ctx, "B10")
	if err != nil {
		t.Fatal(err)
	}
	if o.Name != "Caro-Kann Defence" {
		t.Errorf("unexpected opening: %+v", o)
	}

	// Reloading the same code replaces, never duplicates.
	if err := s.LoadOpenings(ctx, []model.Opening{{ECO: "B10", Name: "Caro-Kann"}}); err != nil {
		t.Fatal(err)
	}
	o, err = s.GetOpening(ctx, "B10")
	if err != nil {
		t.Fatal(err)
	}
	if o.Name != "Caro-Kann" {
		t.Errorf("expected replaced opening, got %+v", o)
	}

	if _, err := s.GetOpening(ctx, "Z99"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadOpeningsFile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "eco.tsv")
	content := "# ECO reference\n" +
		"B10\tCaro-Kann Defence\te4 c6\n" +
		"\n" +
		"C60\tRuy Lopez\te4 e5 Nf3 Nc6 Bb5\trnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	n, err := s.LoadOpeningsFile(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 openings loaded, got %d", n)
	}

	o, err := s.GetOpening(ctx, "C60")
	if err != nil {
		t.Fatal(err)
	}
	if o.Name != "Ruy Lopez" || o.FEN == "" {
		t.Errorf("unexpected opening: %+v", o)
	}

	bad := filepath.Join(t.TempDir(), "bad.tsv")
	if err := os.WriteFile(bad, []byte("B10 Caro-Kann e4 c6\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadOpeningsFile(ctx, bad); err == nil {
		t.Error("expected error for space-separated line")
	}

	if _, err := s.LoadOpeningsFile(ctx, filepath.Join(t.TempDir(), "missing.tsv")); err == nil {
		t.Error("expected error for missing file")
	}
}

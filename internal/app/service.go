// Package service provides the core corpus service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/gambit/internal/adapters/embedder"
	taskqueue "github.com/okian/gambit/internal/adapters/mq/queue"
	workerpool "github.com/okian/gambit/internal/adapters/mq/worker"
	"github.com/okian/gambit/internal/adapters/repository"
	"github.com/okian/gambit/internal/adapters/vectorindex"
	"github.com/okian/gambit/internal/domain/dedupe"
	"github.com/okian/gambit/internal/domain/model"
	"github.com/okian/gambit/internal/domain/notation"
	"github.com/okian/gambit/internal/domain/query"
	"github.com/okian/gambit/internal/domain/stats"
	"github.com/okian/gambit/pkg/logger"
	"github.com/okian/gambit/pkg/metrics"
)

// Service wires the corpus store, ingestion pipeline, embedding index,
// stats aggregator and query planner behind one API surface.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	provider   embedder.Provider
	deduper    dedupe.Deduper
	queue      *taskqueue.InMemoryQueue
	workerPool *workerpool.Pool
	index      *vectorindex.Manager
	aggregator *stats.Aggregator
	planner    *query.Planner
	rules      notation.RulesEngine // optional position validation

	// Configuration
	workerCount    int
	queueSize      int
	dedupeSize     int
	searchMaxLimit int
	indexOpts      []vectorindex.Option

	// State
	started bool
	stopCh  chan struct{}

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the corpus store. Required.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithEmbedder sets the embedding provider. Required.
func WithEmbedder(p embedder.Provider) Option {
	return func(s *Service) {
		s.provider = p
	}
}

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the ingestion queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the dedup-key cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithSearchMaxLimit caps the page size of search responses.
func WithSearchMaxLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.searchMaxLimit = n
		}
	}
}

// WithIndexOptions forwards options to the vector index manager.
func WithIndexOptions(opts ...vectorindex.Option) Option {
	return func(s *Service) {
		s.indexOpts = opts
	}
}

// WithRulesEngine wires an optional move-replay engine used to
// validate label position references.
func WithRulesEngine(r notation.RulesEngine) Option {
	return func(s *Service) {
		s.rules = r
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:    runtime.NumCPU() * 2,
		queueSize:      100000,
		dedupeSize:     50000,
		searchMaxLimit: 100,
		stopCh:         make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.store == nil {
		return fmt.Errorf("store is required")
	}
	if s.provider == nil {
		return fmt.Errorf("embedding provider is required")
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting corpus service...")

	s.deduper = dedupe.NewKeyCache(
		dedupe.WithMaxSize(s.dedupeSize),
	)
	s.queue = taskqueue.NewInMemoryQueue(
		taskqueue.WithCapacity(s.queueSize),
		taskqueue.WithBufferSize(s.queueSize),
	)

	index, err := vectorindex.NewManager(s.store.ListEmbeddings, s.indexOpts...)
	if err != nil {
		return fmt.Errorf("create index manager failed: %w", err)
	}
	s.index = index
	gameNS := vectorindex.Key{Model: s.provider.Model(), Kind: model.OwnerGame}
	if err := s.index.Warm(ctx, gameNS); err != nil {
		return fmt.Errorf("warm index failed: %w", err)
	}
	s.index.Start(ctx)

	s.aggregator, err = stats.NewAggregator(s.store)
	if err != nil {
		return fmt.Errorf("create aggregator failed: %w", err)
	}
	s.planner, err = query.NewPlanner(s.store, s.index,
		query.WithEmbedder(s.provider),
		query.WithMaxLimit(s.searchMaxLimit),
	)
	if err != nil {
		return fmt.Errorf("create planner failed: %w", err)
	}

	s.workerPool = workerpool.NewPool(s.workerCount, s.queue, s, s)
	s.workerPool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "corpus service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.String("embedModel", s.provider.Model()),
	)

	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping corpus service...")

	if s.workerPool != nil {
		s.workerPool.Stop()
	}
	if s.index != nil {
		s.index.Stop()
	}
	if s.queue != nil {
		_ = s.queue.Close()
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error(ctx, "error closing store", logger.Error(err))
	}

	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}

	s.started = false
	s.logger.Info(ctx, "corpus service stopped")
}

// Enqueue submits a record for asynchronous ingestion. The dedup-key
// cache only flags a probable duplicate in the ack; the record is
// queued either way, because a duplicate still re-runs the annotation
// and embedding steps against the stored game. Keys are recorded by
// the ingest itself once the record is safely in the store, never
// here, so a record that later fails can always be resubmitted.
// accepted is false only on queue backpressure.
func (s *Service) Enqueue(ctx context.Context, rec model.Record) (accepted, duplicate bool) {
	duplicate = s.deduper.Seen(ctx, rec.DedupKey())

	ok := s.queue.Enqueue(ctx, taskqueue.Task{Kind: taskqueue.TaskIngest, Record: rec})
	if !ok {
		return false, false
	}
	metrics.UpdateQueueSize(s.queue.Len(ctx))
	return true, duplicate
}

// IngestBatch ingests records synchronously and reports the per-batch
// outcome. A bad record counts against the summary, never aborts the
// batch. Embedding work is queued; stats recomputation for every
// touched player is scheduled once the batch completes.
func (s *Service) IngestBatch(ctx context.Context, records []model.Record) (model.BatchSummary, error) {
	summary := model.BatchSummary{Submitted: len(records)}
	playerSet := make(map[string]struct{})

	for i, rec := range records {
		game, err := s.IngestRecord(ctx, rec)
		switch {
		case errors.Is(err, repository.ErrDuplicateGame):
			// Merged into the stored game; its embedding still
			// refreshes like a fresh ingest.
			summary.Duplicates++
			if s.queueEmbed(ctx, game.ID, rec.MoveText) {
				summary.PendingEmbedding++
			}
		case errors.Is(err, notation.ErrMalformedRecord):
			summary.Malformed++
			summary.Failures = append(summary.Failures, model.RecordFailure{Index: i, Reason: err.Error()})
		case err != nil:
			summary.Failures = append(summary.Failures, model.RecordFailure{Index: i, Reason: err.Error()})
		default:
			summary.Succeeded++
			playerSet[game.White] = struct{}{}
			playerSet[game.Black] = struct{}{}

			if s.queueEmbed(ctx, game.ID, rec.MoveText) {
				summary.PendingEmbedding++
			}
		}
	}

	for p := range playerSet {
		summary.Players = append(summary.Players, p)
	}
	sort.Strings(summary.Players)

	if len(summary.Players) > 0 {
		players := summary.Players
		go func() {
			if err := s.aggregator.RecomputeAll(context.Background(), players); err != nil {
				s.logger.Error(context.Background(), "batch stats recompute failed", logger.Error(err))
			}
		}()
	}
	return summary, nil
}

// queueEmbed hands a stored game to the embedding workers. A rejected
// task is logged, not an error; the pending sweep catches up later.
func (s *Service) queueEmbed(ctx context.Context, gameID, sourceText string) bool {
	queued := s.queue.Enqueue(ctx, taskqueue.Task{
		Kind:       taskqueue.TaskEmbed,
		GameID:     gameID,
		SourceText: sourceText,
	})
	if !queued {
		s.logger.Warn(ctx, "embedding task rejected by queue, game stored without vector",
			logger.String("gameID", gameID))
	}
	return queued
}

// IngestRecord validates, normalizes and stores one record together
// with its inline annotations. A dedup-key collision attaches the
// record's annotations to the already-stored game and returns that
// game with ErrDuplicateGame; the caller decides whether that is an
// error.
func (s *Service) IngestRecord(ctx context.Context, rec model.Record) (model.Game, error) {
	start := time.Now()
	defer func() {
		metrics.RecordIngestLatency(float64(time.Since(start).Milliseconds()))
	}()

	if err := notation.ValidateRecord(rec); err != nil {
		metrics.RecordRecordMalformed()
		return model.Game{}, err
	}

	movesSAN, moveCount := notation.Normalize(rec.MoveText)
	game := model.Game{
		ID:        uuid.NewString(),
		Source:    rec.Source,
		Event:     rec.Event,
		Site:      rec.Site,
		Date:      rec.Date,
		Round:     rec.Round,
		White:     rec.White,
		Black:     rec.Black,
		Result:    rec.Result,
		WhiteElo:  rec.WhiteElo,
		BlackElo:  rec.BlackElo,
		ECO:       rec.ECO,
		PGNText:   rec.PGNText,
		MovesSAN:  movesSAN,
		MoveCount: moveCount,
		CreatedAt: time.Now().UTC(),
	}

	id, err := s.store.PutGame(ctx, game)
	if errors.Is(err, repository.ErrDuplicateGame) {
		metrics.RecordGameDuplicate()
		s.deduper.SeenAndRecord(ctx, game.DedupKey())
		existing, getErr := s.store.GetGame(ctx, id)
		if getErr != nil {
			return model.Game{}, fmt.Errorf("load existing duplicate failed: %w", getErr)
		}
		// A duplicate put merges into the stored game: annotations in
		// the resubmitted movetext still land there, append-only.
		s.annotate(ctx, existing, rec)
		return existing, err
	}
	if err != nil {
		return model.Game{}, fmt.Errorf("store game failed: %w", err)
	}
	game.ID = id
	s.deduper.SeenAndRecord(ctx, game.DedupKey())
	metrics.RecordGameIngested()

	s.annotate(ctx, game, rec)
	return game, nil
}

// annotate runs the label extraction step for one stored game: inline
// movetext annotations plus the opening label from the record's ECO.
func (s *Service) annotate(ctx context.Context, game model.Game, rec model.Record) {
	s.attachInlineAnnotations(ctx, game, rec.MoveText)
	if rec.ECO != "" {
		s.attach(ctx, model.Label{
			GameID:    game.ID,
			Kind:      model.LabelOpening,
			Value:     rec.ECO,
			CreatedBy: model.ByHeuristic,
		})
	}
}

// attachInlineAnnotations lifts the comments and NAG markers the
// source movetext carried into label rows. An individual attach
// failure is logged and skipped; annotations never fail an ingest.
func (s *Service) attachInlineAnnotations(ctx context.Context, game model.Game, moveText string) {
	for _, ann := range notation.ExtractAnnotations(moveText) {
		l := model.Label{
			GameID:    game.ID,
			Kind:      ann.Kind,
			Value:     ann.Value,
			CreatedBy: model.ByOperator,
		}
		if ann.HalfMove > 0 {
			hm := ann.HalfMove
			l.HalfMove = &hm
		}
		s.attach(ctx, l)
	}
}

func (s *Service) attach(ctx context.Context, l model.Label) {
	if _, err := s.store.AttachLabel(ctx, l); err != nil {
		s.logger.Warn(ctx, "attach label failed",
			logger.String("gameID", l.GameID),
			logger.String("kind", string(l.Kind)),
			logger.Error(err))
		return
	}
	metrics.RecordLabelAttached(string(l.Kind))
}

// EmbedGame computes the semantic vector for a stored game, persists
// it and publishes it to the index overlay. An unavailable provider
// surfaces as embedder.ErrUnavailable so the worker can requeue.
func (s *Service) EmbedGame(ctx context.Context, gameID, sourceText string) error {
	if sourceText == "" {
		game, err := s.store.GetGame(ctx, gameID)
		if err != nil {
			return fmt.Errorf("load game for embedding failed: %w", err)
		}
		sourceText = game.MovesSAN
	}

	vec, err := s.provider.Embed(ctx, sourceText)
	if err != nil {
		return fmt.Errorf("embed game %s failed: %w", gameID, err)
	}

	e := model.Embedding{
		OwnerID:    gameID,
		OwnerKind:  model.OwnerGame,
		Model:      s.provider.Model(),
		Vector:     vec,
		SourceText: sourceText,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.UpsertEmbedding(ctx, e); err != nil {
		return fmt.Errorf("persist embedding failed: %w", err)
	}
	s.index.Upsert(e)
	metrics.RecordEmbeddingComputed()
	return nil
}

// Game returns a stored game by id.
func (s *Service) Game(ctx context.Context, id string) (model.Game, error) {
	return s.store.GetGame(ctx, id)
}

// DeleteGame removes a game with its labels and embeddings, masks its
// vector in the index and releases its dedup key so the same game can
// be re-ingested.
func (s *Service) DeleteGame(ctx context.Context, id string) error {
	game, err := s.store.GetGame(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteGame(ctx, id); err != nil {
		return err
	}
	s.index.Remove(vectorindex.Key{Model: s.provider.Model(), Kind: model.OwnerGame}, id)
	s.deduper.Unrecord(ctx, game.DedupKey())
	return nil
}

// AttachLabel validates and appends one label. The target game must
// exist and a half-move reference must fall inside the game; with a
// rules engine wired, a position FEN must additionally match the
// board after that half-move.
func (s *Service) AttachLabel(ctx context.Context, l model.Label) (int64, error) {
	if !l.Kind.Valid() {
		return 0, fmt.Errorf("%w: unknown kind %q", ErrInvalidLabel, l.Kind)
	}
	if l.CreatedBy != "" && !l.CreatedBy.Valid() {
		return 0, fmt.Errorf("%w: unknown attribution %q", ErrInvalidLabel, l.CreatedBy)
	}

	game, err := s.store.GetGame(ctx, l.GameID)
	if err != nil {
		return 0, err
	}
	if l.HalfMove != nil {
		if *l.HalfMove < 1 || *l.HalfMove > game.MoveCount {
			return 0, fmt.Errorf("%w: half-move %d outside game of %d half-moves",
				ErrInvalidLabel, *l.HalfMove, game.MoveCount)
		}
		if l.PositionFEN != "" && s.rules != nil {
			positions, err := s.rules.LegalPositions(ctx, strings.Fields(game.MovesSAN))
			if err != nil {
				return 0, fmt.Errorf("replay moves failed: %w", err)
			}
			if *l.HalfMove > len(positions) || positions[*l.HalfMove-1] != l.PositionFEN {
				return 0, fmt.Errorf("%w: position does not match half-move %d",
					ErrInvalidLabel, *l.HalfMove)
			}
		}
	}

	id, err := s.store.AttachLabel(ctx, l)
	if err != nil {
		return 0, err
	}
	metrics.RecordLabelAttached(string(l.Kind))
	return id, nil
}

// Labels returns a game's labels, optionally restricted to one kind.
func (s *Service) Labels(ctx context.Context, gameID string, kind model.LabelKind) ([]model.Label, error) {
	if _, err := s.store.GetGame(ctx, gameID); err != nil {
		return nil, err
	}
	if kind != "" {
		if !kind.Valid() {
			return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidLabel, kind)
		}
		return s.store.QueryLabels(ctx, kind, "", gameID)
	}

	var all []model.Label
	for _, k := range []model.LabelKind{
		model.LabelNAG, model.LabelComment, model.LabelOpening, model.LabelTheme,
		model.LabelMask, model.LabelMotif, model.LabelEndgame, model.LabelCustom,
	} {
		labels, err := s.store.QueryLabels(ctx, k, "", gameID)
		if err != nil {
			return nil, err
		}
		all = append(all, labels...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all, nil
}

// Search runs one hybrid query through the planner.
func (s *Service) Search(ctx context.Context, req query.Request) (query.Response, error) {
	s.mu.RLock()
	planner := s.planner
	s.mu.RUnlock()
	if planner == nil {
		return query.Response{}, ErrNotStarted
	}
	return planner.Search(ctx, req)
}

// PlayerStat returns a player's cached rollup, computing it on first
// access for players that have games but no stat row yet.
func (s *Service) PlayerStat(ctx context.Context, player string) (model.PlayerStat, error) {
	stat, err := s.store.GetPlayerStat(ctx, player)
	if err == nil {
		return stat, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return model.PlayerStat{}, err
	}

	games, err := s.store.GamesOfPlayer(ctx, player)
	if err != nil {
		return model.PlayerStat{}, err
	}
	if len(games) == 0 {
		return model.PlayerStat{}, fmt.Errorf("player %s: %w", player, repository.ErrNotFound)
	}
	if err := s.aggregator.Recompute(ctx, player); err != nil {
		return model.PlayerStat{}, err
	}
	return s.store.GetPlayerStat(ctx, player)
}

// RecomputeStats rebuilds one player's rollup immediately.
func (s *Service) RecomputeStats(ctx context.Context, player string) error {
	return s.aggregator.Recompute(ctx, player)
}

// Opening returns the reference data for an ECO code.
func (s *Service) Opening(ctx context.Context, eco string) (model.Opening, error) {
	return s.store.GetOpening(ctx, eco)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	out := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		out["queueLength"] = queueLen
		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.workerCount)

		if total, err := s.store.CountGames(ctx); err == nil {
			out["totalGames"] = total
			metrics.UpdateTotalGames(total)
		}
		gameNS := vectorindex.Key{Model: s.provider.Model(), Kind: model.OwnerGame}
		out["indexedVectors"] = s.index.Len(gameNS)
		out["dedupeEntries"] = s.deduper.Size()
		out["embedModel"] = s.provider.Model()
	}

	return out
}

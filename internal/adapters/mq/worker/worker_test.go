package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	embedderr "github.com/okian/gambit/internal/adapters/embedder"
	queue "github.com/okian/gambit/internal/adapters/mq/queue"
	worker "github.com/okian/gambit/internal/adapters/mq/worker"
	"github.com/okian/gambit/internal/adapters/repository"
	model "github.com/okian/gambit/internal/domain/model"
	"github.com/okian/gambit/internal/domain/notation"
	logging "github.com/okian/gambit/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing.
type mockQueue struct {
	taskChan   chan queue.Task
	closeError error
	mu         sync.Mutex
	requeued   []queue.Task
}

func newMockQueue() *mockQueue {
	return &mockQueue{
		taskChan: make(chan queue.Task, 32),
	}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan queue.Task {
	return mq.taskChan
}

func (mq *mockQueue) Enqueue(ctx context.Context, t queue.Task) bool { //nolint:gocritic // hugeParam: Task must be passed by value for channel semantics
	mq.mu.Lock()
	mq.requeued = append(mq.requeued, t)
	mq.mu.Unlock()
	return true
}

func (mq *mockQueue) Close() error {
	close(mq.taskChan)
	return mq.closeError
}

func (mq *mockQueue) addTask(t queue.Task) { //nolint:gocritic // hugeParam: Task must be passed by value for channel semantics
	mq.taskChan <- t
}

func (mq *mockQueue) requeuedTasks() []queue.Task {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	return append([]queue.Task(nil), mq.requeued...)
}

type mockIngester struct {
	errors map[string]error
	mu     sync.RWMutex
	games  map[string]model.Game
}

func newMockIngester() *mockIngester {
	return &mockIngester{
		errors: make(map[string]error),
		games:  make(map[string]model.Game),
	}
}

func (mi *mockIngester) IngestRecord(ctx context.Context, rec model.Record) (model.Game, error) {
	mi.mu.Lock()
	defer mi.mu.Unlock()

	if err, exists := mi.errors[rec.White]; exists {
		if errors.Is(err, repository.ErrDuplicateGame) {
			// Duplicates merge into the already-stored game.
			return mi.games[rec.White], err
		}
		return model.Game{}, err
	}
	g := model.Game{
		ID:     uuid.NewString(),
		White:  rec.White,
		Black:  rec.Black,
		Result: rec.Result,
	}
	mi.games[rec.White] = g
	return g, nil
}

func (mi *mockIngester) setError(white string, err error) {
	mi.mu.Lock()
	defer mi.mu.Unlock()
	mi.errors[white] = err
}

func (mi *mockIngester) getGame(white string) (model.Game, bool) {
	mi.mu.RLock()
	defer mi.mu.RUnlock()
	g, exists := mi.games[white]
	return g, exists
}

type mockEmbedder struct {
	errors   map[string]error
	mu       sync.RWMutex
	embedded map[string]int
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{
		errors:   make(map[string]error),
		embedded: make(map[string]int),
	}
}

func (me *mockEmbedder) EmbedGame(ctx context.Context, gameID, sourceText string) error {
	me.mu.Lock()
	defer me.mu.Unlock()

	if err, exists := me.errors[gameID]; exists {
		return err
	}
	me.embedded[gameID]++
	return nil
}

func (me *mockEmbedder) setError(gameID string, err error) {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.errors[gameID] = err
}

func (me *mockEmbedder) wasEmbedded(gameID string) bool {
	return me.embedCount(gameID) > 0
}

func (me *mockEmbedder) embedCount(gameID string) int {
	me.mu.RLock()
	defer me.mu.RUnlock()
	return me.embedded[gameID]
}

func ingestTask(white string) queue.Task {
	return queue.Task{
		Kind: queue.TaskIngest,
		Record: model.Record{
			White:    white,
			Black:    "opponent",
			Result:   model.ResultWhiteWins,
			MoveText: "1. e4 e5 2. Nf3",
		},
	}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a new InMemoryWorker", t, func() {
		// Initialize logging for tests
		_ = logging.Init()

		q := newMockQueue()
		ingester := newMockIngester()
		emb := newMockEmbedder()

		convey.Convey("When creating a worker with default options", func() {
			w := worker.NewInMemoryWorker(q, ingester, emb)

			convey.Convey("Then it should be created successfully", func() {
				convey.So(w, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When creating a worker with custom options", func() {
			w := worker.NewInMemoryWorker(
				q, ingester, emb,
				worker.WithName("test-worker"),
			)

			convey.Convey("Then it should be created successfully", func() {
				convey.So(w, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When running a worker", func() {
			w := worker.NewInMemoryWorker(q, ingester, emb)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go w.Run(ctx)
			time.Sleep(10 * time.Millisecond)

			convey.Convey("And when processing an ingest task", func() {
				q.addTask(ingestTask("Tal"))
				time.Sleep(50 * time.Millisecond)

				convey.Convey("Then it should store and embed the game", func() {
					game, stored := ingester.getGame("Tal")
					convey.So(stored, convey.ShouldBeTrue)
					convey.So(emb.wasEmbedded(game.ID), convey.ShouldBeTrue)
				})
			})

			convey.Convey("And when the record duplicates a stored game", func() {
				q.addTask(ingestTask("Fischer"))
				time.Sleep(50 * time.Millisecond)
				ingester.setError("Fischer", repository.ErrDuplicateGame)
				q.addTask(ingestTask("Fischer"))
				time.Sleep(50 * time.Millisecond)

				convey.Convey("Then the stored game is embedded again, no retry queued", func() {
					game, stored := ingester.getGame("Fischer")
					convey.So(stored, convey.ShouldBeTrue)
					convey.So(emb.embedCount(game.ID), convey.ShouldEqual, 2)
					convey.So(len(q.requeuedTasks()), convey.ShouldEqual, 0)
				})
			})

			convey.Convey("And when the record is malformed", func() {
				ingester.setError("Broken", notation.ErrMalformedRecord)
				q.addTask(ingestTask("Broken"))
				time.Sleep(50 * time.Millisecond)

				convey.Convey("Then the task is dropped quietly", func() {
					_, stored := ingester.getGame("Broken")
					convey.So(stored, convey.ShouldBeFalse)
					convey.So(len(q.requeuedTasks()), convey.ShouldEqual, 0)
				})
			})

			convey.Convey("And when shutting down", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer shutdownCancel()

				err := w.Shutdown(shutdownCtx)

				convey.Convey("Then it should shutdown gracefully", func() {
					convey.So(err, convey.ShouldBeNil)
				})
			})
		})

		convey.Convey("When context is cancelled", func() {
			w := worker.NewInMemoryWorker(q, ingester, emb)
			ctx, cancel := context.WithCancel(context.Background())

			go w.Run(ctx)
			time.Sleep(10 * time.Millisecond)
			cancel()
			time.Sleep(50 * time.Millisecond)

			convey.Convey("Then worker should stop", func() {
				convey.So(true, convey.ShouldBeTrue)
			})
		})
	})
}

func TestWorkerEmbeddingRetry(t *testing.T) {
	convey.Convey("Given a worker whose embedder is unavailable", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		ingester := newMockIngester()
		emb := newMockEmbedder()

		w := worker.NewInMemoryWorker(q, ingester, emb)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go w.Run(ctx)
		time.Sleep(10 * time.Millisecond)

		convey.Convey("When an embed retry task fails transiently", func() {
			emb.setError("game-x", fmt.Errorf("wrapped: %w", embedderr.ErrUnavailable))
			q.addTask(queue.Task{Kind: queue.TaskEmbed, GameID: "game-x", SourceText: "e4", Attempt: 0})
			time.Sleep(50 * time.Millisecond)

			convey.Convey("Then a retry with an incremented attempt is requeued", func() {
				requeued := q.requeuedTasks()
				convey.So(len(requeued), convey.ShouldEqual, 1)
				convey.So(requeued[0].Kind, convey.ShouldEqual, queue.TaskEmbed)
				convey.So(requeued[0].GameID, convey.ShouldEqual, "game-x")
				convey.So(requeued[0].Attempt, convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When the retry budget is exhausted", func() {
			emb.setError("game-y", embedderr.ErrUnavailable)
			q.addTask(queue.Task{Kind: queue.TaskEmbed, GameID: "game-y", SourceText: "e4", Attempt: 4})
			time.Sleep(50 * time.Millisecond)

			convey.Convey("Then no further retry is queued", func() {
				convey.So(len(q.requeuedTasks()), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When the embedder rejects the input permanently", func() {
			emb.setError("game-z", errors.New("vector store corrupted"))
			q.addTask(queue.Task{Kind: queue.TaskEmbed, GameID: "game-z", SourceText: "e4", Attempt: 0})
			time.Sleep(50 * time.Millisecond)

			convey.Convey("Then the task is not retried", func() {
				convey.So(len(q.requeuedTasks()), convey.ShouldEqual, 0)
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a new WorkerPool", t, func() {
		// Initialize logging for tests
		_ = logging.Init()

		q := newMockQueue()
		ingester := newMockIngester()
		emb := newMockEmbedder()

		convey.Convey("When creating a worker pool with default count", func() {
			pool := worker.NewPool(0, q, ingester, emb)

			convey.Convey("Then it should be created successfully", func() {
				convey.So(pool, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When creating a worker pool with custom count", func() {
			workerCount := 3
			pool := worker.NewPool(workerCount, q, ingester, emb)

			convey.Convey("Then it should be created successfully", func() {
				convey.So(pool, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When starting a worker pool", func() {
			pool := worker.NewPool(2, q, ingester, emb)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			pool.Start(ctx)
			time.Sleep(20 * time.Millisecond)

			convey.Convey("And when processing multiple records", func() {
				whites := []string{"Tal", "Fischer", "Karpov"}
				for _, w := range whites {
					q.addTask(ingestTask(w))
				}
				time.Sleep(100 * time.Millisecond)

				convey.Convey("Then all records should be stored and embedded", func() {
					for _, white := range whites {
						game, stored := ingester.getGame(white)
						convey.So(stored, convey.ShouldBeTrue)
						convey.So(emb.wasEmbedded(game.ID), convey.ShouldBeTrue)
					}
				})
			})

			convey.Convey("And when shutting down", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
				defer shutdownCancel()

				err := pool.Shutdown(shutdownCtx)

				convey.Convey("Then it should shutdown gracefully", func() {
					convey.So(err, convey.ShouldBeNil)
				})
			})
		})

		convey.Convey("When stopping a worker pool", func() {
			pool := worker.NewPool(2, q, ingester, emb)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			pool.Start(ctx)
			time.Sleep(20 * time.Millisecond)
			pool.Stop()
			time.Sleep(50 * time.Millisecond)

			convey.Convey("Then all workers should be stopped", func() {
				convey.So(true, convey.ShouldBeTrue)
			})
		})
	})
}

func TestWorkerConcurrency(t *testing.T) {
	convey.Convey("Given a worker pool with multiple workers", t, func() {
		// Initialize logging for tests
		_ = logging.Init()

		q := newMockQueue()
		ingester := newMockIngester()
		emb := newMockEmbedder()

		pool := worker.NewPool(4, q, ingester, emb)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		pool.Start(ctx)
		time.Sleep(20 * time.Millisecond)

		convey.Convey("When processing many concurrent records", func() {
			const taskCount = 100
			var wg sync.WaitGroup

			for i := 0; i < 5; i++ {
				wg.Add(1)
				go func(producerID int) {
					defer wg.Done()
					for j := 0; j < taskCount/5; j++ {
						q.addTask(ingestTask(fmt.Sprintf("white-%d-%d", producerID, j)))
					}
				}(i)
			}

			wg.Wait()
			time.Sleep(200 * time.Millisecond)

			convey.Convey("Then all records should be processed", func() {
				processedCount := 0
				for i := 0; i < 5; i++ {
					for j := 0; j < taskCount/5; j++ {
						if _, stored := ingester.getGame(fmt.Sprintf("white-%d-%d", i, j)); stored {
							processedCount++
						}
					}
				}
				convey.So(processedCount, convey.ShouldEqual, taskCount)
			})
		})
	})
}

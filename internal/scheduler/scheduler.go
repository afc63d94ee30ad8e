// Package scheduler drives cards through the pipeline: it watches the
// collection for cards in auto-dispatch statuses and runs their stage
// handlers under a hard concurrency cap, applying the resulting lifecycle
// event when each run completes.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/slabworks/gradepipe/internal/lifecycle"
	"github.com/slabworks/gradepipe/internal/model"
	"github.com/slabworks/gradepipe/internal/stages"
)

// DefaultConcurrencyLimit bounds simultaneous calls against the analysis
// service. A hard cap, not a target.
const DefaultConcurrencyLimit = 2

// StageRunner executes the stage handler for a card's status.
type StageRunner interface {
	Run(ctx context.Context, card model.Card, progress stages.Progress) (lifecycle.Update, error)
}

// Hooks connect the scheduler to the collection owner. The scheduler never
// holds the collection itself; it observes through View and mutates through
// Apply so every completion merges against the current collection, not the
// snapshot it dispatched from.
type Hooks struct {
	// View returns the live collection.
	View func() []model.Card

	// Apply applies a lifecycle event to the card with the given id. The
	// owner is responsible for discarding events for deleted cards, for
	// marking the card dirty, and for triggering persistence.
	Apply func(id string, ev lifecycle.Event)

	// Note publishes transient progress text for a card. May be nil.
	Note func(id, note string)
}

// Config tunes the scheduler.
type Config struct {
	// ConcurrencyLimit caps in-flight stage calls. Defaults to
	// DefaultConcurrencyLimit.
	ConcurrencyLimit int

	// SweepInterval is the periodic re-scan that catches deferred work
	// even without a mutation signal. Defaults to 15s.
	SweepInterval time.Duration
}

// Scheduler owns the in-flight set. All bookkeeping happens under one mutex
// so the cap is never exceeded, not even transiently, and the same card is
// never dispatched twice concurrently.
type Scheduler struct {
	runner StageRunner
	hooks  Hooks
	limit  int
	sweep  time.Duration

	mu       sync.Mutex
	inFlight map[string]struct{}

	wake chan struct{}
	wg   sync.WaitGroup
}

// New creates a scheduler.
func New(runner StageRunner, hooks Hooks, cfg Config) *Scheduler {
	limit := cfg.ConcurrencyLimit
	if limit <= 0 {
		limit = DefaultConcurrencyLimit
	}
	sweep := cfg.SweepInterval
	if sweep <= 0 {
		sweep = 15 * time.Second
	}
	return &Scheduler{
		runner:   runner,
		hooks:    hooks,
		limit:    limit,
		sweep:    sweep,
		inFlight: make(map[string]struct{}),
		wake:     make(chan struct{}, 1),
	}
}

// Start runs the dispatch loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.sweep)
		defer ticker.Stop()

		s.Tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
				s.Tick(ctx)
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
}

// Wait blocks until the dispatch loop and all in-flight stage calls finish.
// Call after cancelling the Start context.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Notify signals that the collection changed and a re-scan is worthwhile.
// Never blocks.
func (s *Scheduler) Notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// InFlight returns the current number of in-flight stage calls.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}

// Tick scans the collection and dispatches eligible cards up to capacity.
// Safe to call from any goroutine.
func (s *Scheduler) Tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	cards := s.hooks.View()

	s.mu.Lock()
	var dispatch []model.Card
	for _, card := range cards {
		if len(s.inFlight)+len(dispatch) >= s.limit {
			break
		}
		if !card.Status.AutoDispatch() {
			continue
		}
		if _, busy := s.inFlight[card.ID]; busy {
			continue
		}
		s.inFlight[card.ID] = struct{}{}
		dispatch = append(dispatch, card)
	}
	s.mu.Unlock()

	for _, card := range dispatch {
		s.wg.Add(1)
		go s.process(ctx, card)
	}
}

func (s *Scheduler) process(ctx context.Context, card model.Card) {
	defer s.wg.Done()

	log := zap.L().With(
		zap.String("card_id", card.ID),
		zap.String("stage", string(card.Status)),
	)
	log.Info("stage dispatched")

	progress := func(note string) {
		if s.hooks.Note != nil {
			s.hooks.Note(card.ID, note)
		}
	}

	start := time.Now()
	update, err := s.runner.Run(ctx, card, progress)

	// Stage failures never propagate past this point; they become a
	// lifecycle event like any other outcome.
	var ev lifecycle.Event
	if err != nil {
		log.Warn("stage failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		ev = lifecycle.StageFailed{Err: err}
	} else {
		log.Info("stage complete", zap.Duration("elapsed", time.Since(start)))
		ev = lifecycle.StageSucceeded{Update: update}
	}

	s.hooks.Apply(card.ID, ev)

	s.mu.Lock()
	delete(s.inFlight, card.ID)
	s.mu.Unlock()

	// The completed transition may have made more work eligible.
	s.Notify()
}

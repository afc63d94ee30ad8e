package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slabworks/gradepipe/internal/lifecycle"
	"github.com/slabworks/gradepipe/internal/model"
	"github.com/slabworks/gradepipe/internal/stages"
)

// fakeOwner is a minimal collection owner applying lifecycle events.
type fakeOwner struct {
	mu    sync.Mutex
	cards []model.Card
}

func (o *fakeOwner) view() []model.Card {
	o.mu.Lock()
	defer o.mu.Unlock()
	return model.CloneCards(o.cards)
}

func (o *fakeOwner) apply(id string, ev lifecycle.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	i := model.FindCard(o.cards, id)
	if i < 0 {
		return
	}
	next, err := lifecycle.Apply(o.cards[i], ev)
	if err != nil {
		return
	}
	next.Dirty = true
	o.cards[i] = next
}

func (o *fakeOwner) remove(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if i := model.FindCard(o.cards, id); i >= 0 {
		o.cards = append(o.cards[:i], o.cards[i+1:]...)
	}
}

func (o *fakeOwner) statuses() map[model.Status]int {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[model.Status]int)
	for _, c := range o.cards {
		out[c.Status]++
	}
	return out
}

// blockingRunner parks every run until released and tracks peak concurrency.
type blockingRunner struct {
	started chan string
	release chan struct{}
	err     error

	mu        sync.Mutex
	runs      int
	active    int
	maxActive int
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{
		started: make(chan string, 16),
		release: make(chan struct{}),
	}
}

func (r *blockingRunner) Run(ctx context.Context, card model.Card, _ stages.Progress) (lifecycle.Update, error) {
	r.mu.Lock()
	r.runs++
	r.active++
	if r.active > r.maxActive {
		r.maxActive = r.active
	}
	r.mu.Unlock()

	r.started <- card.ID

	select {
	case <-r.release:
	case <-ctx.Done():
	}

	r.mu.Lock()
	r.active--
	r.mu.Unlock()
	return lifecycle.Update{}, r.err
}

func (r *blockingRunner) stats() (runs, maxActive int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs, r.maxActive
}

func awaitStart(t *testing.T, r *blockingRunner) string {
	t.Helper()
	select {
	case id := <-r.started:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a dispatch")
		return ""
	}
}

func assertNoStart(t *testing.T, r *blockingRunner) {
	t.Helper()
	select {
	case id := <-r.started:
		t.Fatalf("unexpected dispatch of %s", id)
	case <-time.After(100 * time.Millisecond):
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func gradingCards(n int) []model.Card {
	cards := make([]model.Card, 0, n)
	for i := 0; i < n; i++ {
		cards = append(cards, model.NewCard("front.jpg", "back.jpg"))
	}
	return cards
}

func TestScheduler_EnforcesConcurrencyCap(t *testing.T) {
	owner := &fakeOwner{cards: gradingCards(3)}
	runner := newBlockingRunner()
	s := New(runner, Hooks{View: owner.view, Apply: owner.apply}, Config{ConcurrencyLimit: 2})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	awaitStart(t, runner)
	awaitStart(t, runner)
	assertNoStart(t, runner)
	assert.Equal(t, 2, s.InFlight())

	// Completing one frees a slot for the third card.
	runner.release <- struct{}{}
	awaitStart(t, runner)

	runner.release <- struct{}{}
	runner.release <- struct{}{}
	eventually(t, func() bool {
		return owner.statuses()[model.StatusNeedsReview] == 3
	}, "all three cards should finish grading")

	_, maxActive := runner.stats()
	assert.LessOrEqual(t, maxActive, 2, "cap is a hard limit")

	cancel()
	s.Wait()
}

func TestScheduler_NeverDoubleDispatches(t *testing.T) {
	owner := &fakeOwner{cards: gradingCards(1)}
	runner := newBlockingRunner()
	s := New(runner, Hooks{View: owner.view, Apply: owner.apply}, Config{ConcurrencyLimit: 2})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	awaitStart(t, runner)

	// Redundant ticks while the card is in flight must not dispatch again.
	s.Tick(ctx)
	s.Tick(ctx)
	s.Notify()
	assertNoStart(t, runner)

	runs, _ := runner.stats()
	require.Equal(t, 1, runs)

	runner.release <- struct{}{}
	cancel()
	s.Wait()
}

func TestScheduler_DiscardsCompletionForDeletedCard(t *testing.T) {
	owner := &fakeOwner{cards: gradingCards(1)}
	runner := newBlockingRunner()
	s := New(runner, Hooks{View: owner.view, Apply: owner.apply}, Config{ConcurrencyLimit: 2})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	id := awaitStart(t, runner)
	owner.remove(id)
	runner.release <- struct{}{}

	eventually(t, func() bool { return s.InFlight() == 0 }, "slot should be released")
	assert.Empty(t, owner.view(), "deleted card stays deleted")

	cancel()
	s.Wait()
}

func TestScheduler_FailureBecomesFailedState(t *testing.T) {
	owner := &fakeOwner{cards: gradingCards(1)}
	runner := newBlockingRunner()
	runner.err = errors.New("analysis unavailable")
	s := New(runner, Hooks{View: owner.view, Apply: owner.apply}, Config{ConcurrencyLimit: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	awaitStart(t, runner)
	runner.release <- struct{}{}

	eventually(t, func() bool {
		return owner.statuses()[model.StatusGradingFailed] == 1
	}, "failed stage should land the card in grading_failed")

	card := owner.view()[0]
	assert.Equal(t, "analysis unavailable", card.ErrorMessage)
	assert.True(t, card.Dirty)

	cancel()
	s.Wait()
}

func TestScheduler_PicksUpUserTransitions(t *testing.T) {
	card := model.NewCard("front.jpg", "back.jpg")
	card.Status = model.StatusNeedsReview
	owner := &fakeOwner{cards: []model.Card{card}}
	runner := newBlockingRunner()
	s := New(runner, Hooks{View: owner.view, Apply: owner.apply}, Config{ConcurrencyLimit: 2})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	// Nothing to do while the card waits on the user.
	assertNoStart(t, runner)

	owner.apply(card.ID, lifecycle.Accept{})
	s.Notify()
	awaitStart(t, runner)

	runner.release <- struct{}{}
	cancel()
	s.Wait()
}

// Package orchestrator owns the live card collection and coordinates the
// other subsystems around it: the scheduler that drives enrichment, the
// lifecycle machine that validates transitions, recovery at load time, and
// the persistence gateway on every mutation.
package orchestrator

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/slabworks/gradepipe/internal/lifecycle"
	"github.com/slabworks/gradepipe/internal/model"
	"github.com/slabworks/gradepipe/internal/persist"
	"github.com/slabworks/gradepipe/internal/recovery"
	"github.com/slabworks/gradepipe/internal/reconcile"
	"github.com/slabworks/gradepipe/internal/scheduler"
	"github.com/slabworks/gradepipe/pkg/remotestore"
	"github.com/slabworks/gradepipe/pkg/sheetfile"
)

// ErrNotFound is returned when an operation names a card that is not in the
// collection.
var ErrNotFound = eris.New("orchestrator: card not found")

// Storage is the slice of the local store the orchestrator needs.
type Storage interface {
	SaveSnapshot(ctx context.Context, cards []model.Card) error
	LoadSnapshot(ctx context.Context) ([]model.Card, error)
}

// Options tune the orchestrator.
type Options struct {
	Concurrency   int
	SweepInterval time.Duration
	Debounce      time.Duration
}

// Orchestrator is the facade the CLI and the API server talk to.
type Orchestrator struct {
	mu    sync.Mutex
	cards []model.Card

	store   Storage
	remote  remotestore.Client
	gateway *persist.Gateway
	sched   *scheduler.Scheduler

	subMu sync.Mutex
	subs  []chan struct{}
}

// New wires an orchestrator. remote may be nil for local-only operation.
func New(storage Storage, remote remotestore.Client, runner scheduler.StageRunner, opts Options) *Orchestrator {
	o := &Orchestrator{
		store:  storage,
		remote: remote,
	}

	var saver persist.RemoteSaver
	if remote != nil {
		saver = remoteSaver{remote}
	}
	o.gateway = persist.NewGateway(storage, saver, opts.Debounce)
	o.gateway.Current = o.Cards
	o.gateway.RemoteSaved = o.clearConfirmedDirty

	o.sched = scheduler.New(runner, scheduler.Hooks{
		View:  o.Cards,
		Apply: o.applyStageEvent,
		Note:  o.setStatusNote,
	}, scheduler.Config{
		ConcurrencyLimit: opts.Concurrency,
		SweepInterval:    opts.SweepInterval,
	})

	return o
}

// remoteSaver narrows a Client to the gateway's RemoteSaver.
type remoteSaver struct {
	client remotestore.Client
}

func (r remoteSaver) Save(ctx context.Context, handle string, cards []model.Card) (string, error) {
	return r.client.Save(ctx, handle, cards)
}

// Load restores the collection: local snapshot, crash recovery, then a merge
// with the remote store. A remote failure degrades to local-only with a
// warning; losing the network must not lose the collection.
func (o *Orchestrator) Load(ctx context.Context) error {
	var (
		cards       []model.Card
		remoteOK    bool
		remoteCards []model.Card
		handle      string
	)

	// Local snapshot and remote blob fetch independently; only the local
	// read can fail the load.
	g, gctx := errgroup.WithContext(ctx)
	if o.store != nil {
		g.Go(func() error {
			loaded, err := o.store.LoadSnapshot(gctx)
			if err != nil {
				return eris.Wrap(err, "orchestrator: load snapshot")
			}
			cards = loaded
			return nil
		})
	}
	if o.remote != nil {
		g.Go(func() error {
			h, rc, err := o.remote.Load(gctx)
			if err != nil {
				zap.L().Warn("remote load failed, continuing local-only", zap.Error(err))
				return nil
			}
			handle, remoteCards, remoteOK = h, rc, true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	cards, reclaimed := recovery.Reclassify(cards)
	dirty := reclaimed > 0
	if reclaimed > 0 {
		zap.L().Info("recovered interrupted cards", zap.Int("count", reclaimed))
	}

	if remoteOK {
		merged := reconcile.Merge(cards, remoteCards, reconcile.MergeOptions{})
		if countChanged(cards, merged) > 0 {
			dirty = true
		}
		cards = merged
		o.gateway.SetHandle(handle)
	}

	o.mu.Lock()
	model.SortCards(cards)
	o.cards = cards
	o.mu.Unlock()

	// Recovery rewrites and remote merges both change the collection; the
	// snapshot must reflect them before the next mutation.
	if dirty {
		if err := o.gateway.SnapshotLocal(ctx, o.Cards()); err != nil {
			return err
		}
	}
	return nil
}

// Start launches the scheduler.
func (o *Orchestrator) Start(ctx context.Context) {
	o.sched.Start(ctx)
}

// Stop waits for in-flight work, flushes pending persistence, and shuts the
// gateway down. Call after cancelling the Start context.
func (o *Orchestrator) Stop() {
	o.sched.Wait()
	o.gateway.Flush()
	o.gateway.Stop()
}

// Cards returns a copy of the collection, newest first.
func (o *Orchestrator) Cards() []model.Card {
	o.mu.Lock()
	defer o.mu.Unlock()
	return model.CloneCards(o.cards)
}

// Card returns one card by id.
func (o *Orchestrator) Card(id string) (model.Card, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if i := model.FindCard(o.cards, id); i >= 0 {
		return o.cards[i], true
	}
	return model.Card{}, false
}

// Subscribe returns a channel that receives a signal after every collection
// change, and a cancel func that releases the subscription. Slow receivers
// coalesce signals. Callers must cancel when done; the events handler takes
// one subscription per long-poll request.
func (o *Orchestrator) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	o.subMu.Lock()
	o.subs = append(o.subs, ch)
	o.subMu.Unlock()

	cancel := func() {
		o.subMu.Lock()
		defer o.subMu.Unlock()
		for i := range o.subs {
			if o.subs[i] == ch {
				o.subs = append(o.subs[:i], o.subs[i+1:]...)
				return
			}
		}
	}
	return ch, cancel
}

// SubscriberCount reports how many subscriptions are live, for health
// reporting.
func (o *Orchestrator) SubscriberCount() int {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	return len(o.subs)
}

// Submit adds a new card and queues it for grading.
func (o *Orchestrator) Submit(ctx context.Context, frontImage, backImage string) (model.Card, error) {
	if frontImage == "" {
		return model.Card{}, eris.New("orchestrator: front image required")
	}
	card := model.NewCard(frontImage, backImage)

	o.mu.Lock()
	o.cards = append([]model.Card{card}, o.cards...)
	snapshot := model.CloneCards(o.cards)
	o.mu.Unlock()

	if err := o.persist(ctx, snapshot); err != nil {
		return model.Card{}, err
	}
	zap.L().Info("card submitted", zap.String("card_id", card.ID))
	return card, nil
}

// Accept approves the proposed grade.
func (o *Orchestrator) Accept(ctx context.Context, id string) (model.Card, error) {
	return o.applyUser(ctx, id, lifecycle.Accept{})
}

// Challenge disputes the proposed grade in a direction.
func (o *Orchestrator) Challenge(ctx context.Context, id string, direction model.Direction) (model.Card, error) {
	return o.applyUser(ctx, id, lifecycle.Challenge{Direction: direction})
}

// Override replaces the grade with the user's own.
func (o *Orchestrator) Override(ctx context.Context, id string, grade float64, label string) (model.Card, error) {
	return o.applyUser(ctx, id, lifecycle.ManualOverride{Grade: grade, Label: label})
}

// Retry re-runs grading on a failed card.
func (o *Orchestrator) Retry(ctx context.Context, id string) (model.Card, error) {
	return o.applyUser(ctx, id, lifecycle.Retry{})
}

// Revalue refreshes the valuation of a reviewed card.
func (o *Orchestrator) Revalue(ctx context.Context, id string) (model.Card, error) {
	return o.applyUser(ctx, id, lifecycle.Revalue{})
}

// Delete removes a card. A card deleted mid-enrichment simply has its stage
// result discarded when it completes.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	o.mu.Lock()
	i := model.FindCard(o.cards, id)
	if i < 0 {
		o.mu.Unlock()
		return ErrNotFound
	}
	o.cards = append(o.cards[:i], o.cards[i+1:]...)
	snapshot := model.CloneCards(o.cards)
	o.mu.Unlock()

	zap.L().Info("card deleted", zap.String("card_id", id))
	return o.persist(ctx, snapshot)
}

// ImportSheet merges rows from an XLSX file into the collection. Returns the
// number of cards added or changed by the merge.
func (o *Orchestrator) ImportSheet(ctx context.Context, path string) (int, error) {
	rows, err := sheetfile.FetchRows(path)
	if err != nil {
		return 0, err
	}

	o.mu.Lock()
	before := o.cards
	merged := reconcile.Merge(before, rows, reconcile.MergeOptions{
		Key:                 reconcile.SheetKey,
		SyntheticTimestamps: true,
	})
	changed := countChanged(before, merged)
	o.cards = merged
	snapshot := model.CloneCards(o.cards)
	o.mu.Unlock()

	if changed > 0 {
		if err := o.persist(ctx, snapshot); err != nil {
			return 0, err
		}
	}
	zap.L().Info("sheet imported",
		zap.String("path", path),
		zap.Int("rows", len(rows)),
		zap.Int("changed", changed),
	)
	return changed, nil
}

// ExportSheet appends the collection to an XLSX file, skipping rows already
// present. Returns the number of rows written.
func (o *Orchestrator) ExportSheet(path string) (int, error) {
	return sheetfile.AppendRows(path, o.Cards())
}

// SyncRemote merges the remote collection in and pushes the result back out
// immediately, bypassing the debounce. Used by the one-shot sync command.
func (o *Orchestrator) SyncRemote(ctx context.Context) error {
	if o.remote == nil {
		return eris.New("orchestrator: no remote store configured")
	}

	handle, remoteCards, err := o.remote.Load(ctx)
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.cards = reconcile.Merge(o.cards, remoteCards, reconcile.MergeOptions{})
	snapshot := model.CloneCards(o.cards)
	o.mu.Unlock()
	o.gateway.SetHandle(handle)

	if err := o.persist(ctx, snapshot); err != nil {
		return err
	}
	o.gateway.Flush()
	return nil
}

// applyUser validates and applies a user transition, then persists.
func (o *Orchestrator) applyUser(ctx context.Context, id string, ev lifecycle.Event) (model.Card, error) {
	o.mu.Lock()
	i := model.FindCard(o.cards, id)
	if i < 0 {
		o.mu.Unlock()
		return model.Card{}, ErrNotFound
	}
	next, err := lifecycle.Apply(o.cards[i], ev)
	if err != nil {
		o.mu.Unlock()
		return model.Card{}, err
	}
	next.Dirty = true
	o.cards[i] = next
	snapshot := model.CloneCards(o.cards)
	o.mu.Unlock()

	if err := o.persist(ctx, snapshot); err != nil {
		return model.Card{}, err
	}
	return next, nil
}

// applyStageEvent lands a stage outcome from the scheduler. Events for
// deleted cards are discarded; an invalid transition is a bug worth logging
// but never a crash.
func (o *Orchestrator) applyStageEvent(id string, ev lifecycle.Event) {
	o.mu.Lock()
	i := model.FindCard(o.cards, id)
	if i < 0 {
		o.mu.Unlock()
		zap.L().Debug("stage result for deleted card discarded", zap.String("card_id", id))
		return
	}
	next, err := lifecycle.Apply(o.cards[i], ev)
	if err != nil {
		o.mu.Unlock()
		zap.L().Error("stage event rejected by lifecycle",
			zap.String("card_id", id),
			zap.Error(err),
		)
		return
	}
	next.Dirty = true
	o.cards[i] = next
	snapshot := model.CloneCards(o.cards)
	o.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.persist(ctx, snapshot); err != nil {
		zap.L().Error("persist after stage event failed", zap.Error(err))
	}
}

// setStatusNote updates transient progress text without touching durable
// persistence.
func (o *Orchestrator) setStatusNote(id, note string) {
	o.mu.Lock()
	if i := model.FindCard(o.cards, id); i >= 0 {
		o.cards[i].StatusNote = note
	}
	o.mu.Unlock()
	o.broadcast()
}

// clearConfirmedDirty is the gateway's confirmation callback: cards whose
// durable content still matches what was written lose their dirty flag. The
// cleared flags are re-snapshotted so a restart does not resurrect them.
func (o *Orchestrator) clearConfirmedDirty(saved []model.Card) {
	byID := make(map[string]model.Card, len(saved))
	for i := range saved {
		byID[saved[i].ID] = saved[i]
	}

	cleared := false
	o.mu.Lock()
	for i := range o.cards {
		savedCard, ok := byID[o.cards[i].ID]
		if !ok {
			continue
		}
		if o.cards[i].Dirty && durableEqual(o.cards[i], savedCard) {
			o.cards[i].Dirty = false
			cleared = true
		}
	}
	snapshot := model.CloneCards(o.cards)
	o.mu.Unlock()

	if cleared {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := o.gateway.SnapshotLocal(ctx, snapshot); err != nil {
			zap.L().Warn("snapshot after remote confirmation failed", zap.Error(err))
		}
	}
	o.broadcast()
}

// durableEqual compares cards ignoring the dirty flag and transient note.
func durableEqual(a, b model.Card) bool {
	a.Dirty, b.Dirty = false, false
	a.StatusNote, b.StatusNote = "", ""
	return reflect.DeepEqual(a, b)
}

// persist writes the local snapshot synchronously, queues the debounced
// remote save, and wakes the scheduler and subscribers.
func (o *Orchestrator) persist(ctx context.Context, snapshot []model.Card) error {
	if err := o.gateway.SnapshotLocal(ctx, snapshot); err != nil {
		return err
	}
	o.gateway.QueueRemote()
	o.sched.Notify()
	o.broadcast()
	return nil
}

func (o *Orchestrator) broadcast() {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	for _, ch := range o.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// countChanged reports how many cards differ between the collections.
func countChanged(before, after []model.Card) int {
	prev := make(map[string]model.Card, len(before))
	for i := range before {
		prev[before[i].ID] = before[i]
	}

	changed := 0
	for i := range after {
		old, ok := prev[after[i].ID]
		if !ok || !reflect.DeepEqual(old, after[i]) {
			changed++
		}
	}
	return changed
}

// Package persist is the persistence gateway: a synchronous write-through to
// the local snapshot store on every mutation, and a debounced, content-gated,
// best-effort writer to the remote blob store.
package persist

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/slabworks/gradepipe/internal/model"
)

// Snapshotter is the slice of the local store the gateway needs.
type Snapshotter interface {
	SaveSnapshot(ctx context.Context, cards []model.Card) error
}

// RemoteSaver writes the whole collection to the remote blob store.
// Overwrites are idempotent; the returned handle supersedes the one passed in.
type RemoteSaver interface {
	Save(ctx context.Context, handle string, cards []model.Card) (string, error)
}

// Gateway owns the two persistence paths. The orchestrator injects a view of
// the live collection (Current) and a callback (RemoteSaved) that clears the
// dirty flags of cards confirmed written, merged against whatever the
// collection looks like by then.
type Gateway struct {
	store  Snapshotter
	remote RemoteSaver

	// Current returns the live collection at flush time, not a stale
	// snapshot from trigger time.
	Current func() []model.Card

	// RemoteSaved is invoked with the cards that were confirmed written.
	RemoteSaved func(saved []model.Card)

	deb *Debouncer

	// mu serializes flushes; the timer goroutine and an explicit Flush can
	// otherwise overlap.
	mu       sync.Mutex
	handle   string
	lastHash string
}

// NewGateway wires a gateway. debounce <= 0 falls back to 4s.
func NewGateway(store Snapshotter, remote RemoteSaver, debounce time.Duration) *Gateway {
	if debounce <= 0 {
		debounce = 4 * time.Second
	}
	g := &Gateway{store: store, remote: remote}
	g.deb = NewDebouncer(debounce, g.flushRemote)
	return g
}

// SetHandle seeds the remote handle obtained from an initial load.
func (g *Gateway) SetHandle(handle string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handle = handle
}

// SnapshotLocal writes the collection to the local store synchronously. This
// runs on every mutation; a failure here is a real error for the caller.
func (g *Gateway) SnapshotLocal(ctx context.Context, cards []model.Card) error {
	if g.store == nil {
		return nil
	}
	if err := g.store.SaveSnapshot(ctx, cards); err != nil {
		return eris.Wrap(err, "persist: local snapshot")
	}
	return nil
}

// QueueRemote schedules a debounced remote save.
func (g *Gateway) QueueRemote() {
	g.deb.Trigger()
}

// Flush forces any pending remote save to run now. Used by one-shot CLI
// commands and shutdown.
func (g *Gateway) Flush() {
	g.deb.Flush()
}

// Stop cancels pending work.
func (g *Gateway) Stop() {
	g.deb.Stop()
}

// flushRemote is the debouncer's trailing-edge callback. Remote persistence
// is best-effort: failures are logged, dirty flags stay set, and the next
// debounce window retries.
func (g *Gateway) flushRemote() {
	if g.remote == nil || g.Current == nil {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	cards := g.Current()

	// Never persist a collection mid-enrichment: recovery would
	// reclassify the in-flight statuses as crashes on the next load.
	for i := range cards {
		if cards[i].Status.AutoDispatch() {
			zap.L().Debug("remote save deferred, cards in flight",
				zap.String("card_id", cards[i].ID),
				zap.String("status", string(cards[i].Status)),
			)
			g.deb.Trigger()
			return
		}
	}

	hash, err := collectionHash(cards)
	if err != nil {
		zap.L().Warn("remote save skipped, hash failed", zap.Error(err))
		return
	}
	if hash == g.lastHash {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	handle, err := g.remote.Save(ctx, g.handle, cards)
	if err != nil {
		zap.L().Warn("remote save failed, will retry next window", zap.Error(err))
		return
	}

	g.handle = handle
	g.lastHash = hash
	zap.L().Info("remote save complete",
		zap.Int("cards", len(cards)),
		zap.String("handle", handle),
	)

	if g.RemoteSaved != nil {
		g.RemoteSaved(cards)
	}
}

// collectionHash fingerprints the durable content of the collection.
// Transient presentation fields and the dirty flag itself are excluded so
// clearing them does not look like new content.
func collectionHash(cards []model.Card) (string, error) {
	canonical := model.CloneCards(cards)
	for i := range canonical {
		canonical[i].Dirty = false
		canonical[i].StatusNote = ""
	}
	model.SortCards(canonical)

	data, err := json.Marshal(canonical)
	if err != nil {
		return "", eris.Wrap(err, "persist: marshal for hash")
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Package remotestore syncs the card collection to a remote blob store. The
// whole collection travels as one JSON document; overwrites are idempotent
// and last-writer-wins, with merge handled by the caller before saving.
package remotestore

import (
	"context"
	"time"

	"github.com/slabworks/gradepipe/internal/model"
)

// Client reads and writes the collection blob. Load on a store that has no
// blob yet returns an empty collection, not an error. The handle returned by
// either call identifies the revision read or written and is passed back to
// Save so implementations that can detect conflicts may do so.
type Client interface {
	Load(ctx context.Context) (handle string, cards []model.Card, err error)
	Save(ctx context.Context, handle string, cards []model.Card) (string, error)
}

// envelope is the wire format of the blob.
type envelope struct {
	Version int          `json:"version"`
	SavedAt time.Time    `json:"saved_at"`
	Cards   []model.Card `json:"cards"`
}

const envelopeVersion = 1

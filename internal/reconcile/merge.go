// Package reconcile combines card collections from independent sources
// (local snapshot, remote store, tabular import) into one deduplicated,
// recency-ordered collection.
package reconcile

import (
	"time"

	"go.uber.org/zap"

	"github.com/slabworks/gradepipe/internal/model"
)

// MergeOptions tune a merge for the incoming source.
type MergeOptions struct {
	// Key is the identity fallback used when ids do not match. Defaults to
	// NaturalKey.
	Key IdentityKey

	// SyntheticTimestamps assigns monotonically decreasing CreatedAt values
	// to incoming cards that lack one, anchored before the oldest real
	// timestamp so the source's row order is preserved without colliding
	// with real cards.
	SyntheticTimestamps bool
}

// Merge folds incoming into primary. Matched entries are merged field-wise
// with incoming values winning only where incoming actually supplies them;
// unmatched incoming entries are appended as new. Re-running the same merge
// is a no-op. The result is ordered newest-first.
func Merge(primary, incoming []model.Card, opts MergeOptions) []model.Card {
	key := opts.Key
	if key == nil {
		key = NaturalKey
	}

	out := model.CloneCards(primary)

	byID := make(map[string]int, len(out))
	byKey := make(map[string]int, len(out))
	for i := range out {
		byID[out[i].ID] = i
		if k := key(out[i]); k != "" {
			// First occurrence wins so repeated merges stay stable.
			if _, exists := byKey[k]; !exists {
				byKey[k] = i
			}
		}
	}

	synthetic := syntheticClock(out, opts)

	for _, in := range incoming {
		idx, matched := byID[in.ID]
		if !matched {
			if k := key(in); k != "" {
				idx, matched = byKey[k]
			}
		}

		if matched {
			out[idx] = mergeCard(out[idx], in)
			continue
		}

		added := in
		if added.CreatedAt.IsZero() {
			if opts.SyntheticTimestamps {
				added.CreatedAt = synthetic()
			} else {
				added.CreatedAt = time.Now().UTC()
			}
		}
		if added.Status == "" || !added.Status.Valid() {
			added.Status = defaultImportStatus(added)
		}
		out = append(out, added)
		byID[added.ID] = len(out) - 1
		if k := key(added); k != "" {
			if _, exists := byKey[k]; !exists {
				byKey[k] = len(out) - 1
			}
		}
	}

	model.SortCards(out)
	return out
}

// mergeCard overlays incoming onto existing. Sparse incoming fields never
// null out populated local ones; the existing card keeps its status, dirty
// flag, and identity unless it has no status at all.
func mergeCard(existing, in model.Card) model.Card {
	merged := existing

	if in.PlayerName != "" {
		merged.PlayerName = in.PlayerName
	}
	if in.Year != "" {
		merged.Year = in.Year
	}
	if in.SetName != "" {
		merged.SetName = in.SetName
	}
	if in.CardNumber != "" {
		merged.CardNumber = in.CardNumber
	}
	if in.Brand != "" {
		merged.Brand = in.Brand
	}
	if in.Variant != "" {
		merged.Variant = in.Variant
	}
	if in.FrontImage != "" {
		merged.FrontImage = in.FrontImage
	}
	if in.BackImage != "" {
		merged.BackImage = in.BackImage
	}
	if in.Grades != nil {
		grades := *in.Grades
		merged.Grades = &grades
	}
	if in.Summary != "" {
		merged.Summary = in.Summary
	}
	if in.Valuation != nil {
		val := *in.Valuation
		merged.Valuation = &val
	}
	if in.SheetRowID != "" {
		merged.SheetRowID = in.SheetRowID
	}
	if merged.CreatedAt.IsZero() && !in.CreatedAt.IsZero() {
		merged.CreatedAt = in.CreatedAt
	}

	if merged.Status == "" || !merged.Status.Valid() {
		if in.Status.Valid() {
			merged.Status = in.Status
		} else {
			merged.Status = defaultImportStatus(merged)
		}
		zap.L().Debug("merge assigned status to statusless card",
			zap.String("card_id", merged.ID),
			zap.String("status", string(merged.Status)),
		)
	}

	return merged
}

// defaultImportStatus places imported rows: graded rows are settled history,
// ungraded rows still need the user's attention.
func defaultImportStatus(card model.Card) model.Status {
	if card.Grades != nil && card.Grades.Overall > 0 {
		return model.StatusReviewed
	}
	return model.StatusNeedsReview
}

// syntheticClock yields strictly decreasing timestamps starting one minute
// before the oldest real CreatedAt in the collection.
func syntheticClock(cards []model.Card, opts MergeOptions) func() time.Time {
	if !opts.SyntheticTimestamps {
		return nil
	}

	anchor := time.Now().UTC()
	for i := range cards {
		if !cards[i].CreatedAt.IsZero() && cards[i].CreatedAt.Before(anchor) {
			anchor = cards[i].CreatedAt
		}
	}
	next := anchor.Add(-time.Minute)

	return func() time.Time {
		t := next
		next = next.Add(-time.Second)
		return t
	}
}

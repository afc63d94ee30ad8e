// Package recovery reclassifies cards left mid-pipeline by a prior crash.
// The in-flight set is never durable, so a card persisted in a pipeline
// status cannot be resumed safely: resuming could double-dispatch or
// resurrect ambiguous partial state. It runs once per session, between
// snapshot load and the scheduler's first tick.
package recovery

import (
	"go.uber.org/zap"

	"github.com/slabworks/gradepipe/internal/model"
)

// InterruptedMessage is the fixed error message applied to reclaimed cards.
const InterruptedMessage = "Interrupted: the app closed while this card was processing. Retry to grade it again."

// Reclassify rewrites every card in an auto-dispatch status to
// grading_failed with the standard recovery message. Cards in resting states
// pass through untouched. Returns the rewritten collection and the number of
// cards reclaimed.
func Reclassify(cards []model.Card) ([]model.Card, int) {
	out := model.CloneCards(cards)
	reclaimed := 0
	for i := range out {
		if !out[i].Status.AutoDispatch() {
			continue
		}
		zap.L().Warn("reclaiming interrupted card",
			zap.String("card_id", out[i].ID),
			zap.String("status", string(out[i].Status)),
		)
		out[i].Status = model.StatusGradingFailed
		out[i].ErrorMessage = InterruptedMessage
		out[i].ErrorKind = model.ErrorKindRecovery
		out[i].PendingDirection = model.DirectionNone
		out[i].StatusNote = ""
		out[i].Dirty = true
		reclaimed++
	}
	return out, reclaimed
}

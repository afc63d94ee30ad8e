// Package lifecycle defines the card state machine: a pure function of
// (current card, event) producing the next card. The scheduler feeds it
// stage outcomes; the orchestrator feeds it user transitions.
package lifecycle

import (
	"github.com/rotisserie/eris"

	"github.com/slabworks/gradepipe/internal/model"
	"github.com/slabworks/gradepipe/internal/resilience"
)

// ErrInvalidTransition is returned when an event is not legal in the card's
// current state.
var ErrInvalidTransition = eris.New("lifecycle: invalid transition")

// Update is a sparse stage result merged into the card on success. Zero
// fields are left untouched so a stage can never erase another stage's
// output.
type Update struct {
	PlayerName string
	Year       string
	SetName    string
	CardNumber string
	Brand      string
	Variant    string

	Grades    *model.GradeReport
	Summary   string
	Valuation *model.Valuation
}

// Event moves a card through the state machine.
type Event interface {
	isEvent()
}

// StageSucceeded reports a completed pipeline stage with its partial update.
type StageSucceeded struct {
	Update Update
}

// StageFailed reports a terminally failed pipeline stage.
type StageFailed struct {
	Err error
}

// Accept is the user accepting a grade from needs_review.
type Accept struct{}

// Challenge is the user disputing a grade in a direction.
type Challenge struct {
	Direction model.Direction
}

// ManualOverride is the user supplying their own grade and label. The grade
// is applied optimistically before the regeneration stage runs.
type ManualOverride struct {
	Grade float64
	Label string
}

// Retry re-enqueues a failed card for a fresh grading pass.
type Retry struct{}

// Revalue re-runs the market valuation lookup on a reviewed card.
type Revalue struct{}

func (StageSucceeded) isEvent() {}
func (StageFailed) isEvent()    {}
func (Accept) isEvent()         {}
func (Challenge) isEvent()      {}
func (ManualOverride) isEvent() {}
func (Retry) isEvent()          {}
func (Revalue) isEvent()        {}

// Apply computes the next card for an event. The input card is not mutated.
func Apply(card model.Card, ev Event) (model.Card, error) {
	switch e := ev.(type) {
	case StageSucceeded:
		return applyStageSuccess(card, e.Update)
	case StageFailed:
		return applyStageFailure(card, e.Err)
	case Accept:
		if card.Status != model.StatusNeedsReview && card.Status != model.StatusGradingFailed {
			return card, eris.Wrapf(ErrInvalidTransition, "accept from %s", card.Status)
		}
		card.Status = model.StatusGeneratingSummary
		card.ErrorMessage = ""
		card.ErrorKind = model.ErrorKindNone
		return card, nil
	case Challenge:
		if card.Status != model.StatusNeedsReview && card.Status != model.StatusGradingFailed {
			return card, eris.Wrapf(ErrInvalidTransition, "challenge from %s", card.Status)
		}
		if e.Direction != model.DirectionHigher && e.Direction != model.DirectionLower {
			return card, eris.Wrap(ErrInvalidTransition, "challenge requires a direction")
		}
		card.Status = model.StatusChallenging
		card.PendingDirection = e.Direction
		card.ErrorMessage = ""
		card.ErrorKind = model.ErrorKindNone
		return card, nil
	case ManualOverride:
		if card.Status != model.StatusNeedsReview && card.Status != model.StatusGradingFailed {
			return card, eris.Wrapf(ErrInvalidTransition, "override from %s", card.Status)
		}
		// Optimistic: the user's grade lands immediately, the stage only
		// justifies it.
		if card.Grades == nil {
			card.Grades = &model.GradeReport{}
		}
		grades := *card.Grades
		grades.Overall = e.Grade
		grades.Label = e.Label
		card.Grades = &grades
		card.Status = model.StatusRegeneratingSummary
		card.ErrorMessage = ""
		card.ErrorKind = model.ErrorKindNone
		return card, nil
	case Retry:
		if card.Status != model.StatusGradingFailed {
			return card, eris.Wrapf(ErrInvalidTransition, "retry from %s", card.Status)
		}
		card.Status = model.StatusGrading
		card.ErrorMessage = ""
		card.ErrorKind = model.ErrorKindNone
		return card, nil
	case Revalue:
		if card.Status != model.StatusReviewed {
			return card, eris.Wrapf(ErrInvalidTransition, "revalue from %s", card.Status)
		}
		card.Status = model.StatusFetchingValue
		return card, nil
	default:
		return card, eris.Wrap(ErrInvalidTransition, "unknown event")
	}
}

func applyStageSuccess(card model.Card, up Update) (model.Card, error) {
	switch card.Status {
	case model.StatusGrading:
		card = mergeUpdate(card, up)
		card.Status = model.StatusNeedsReview
	case model.StatusChallenging:
		card = mergeUpdate(card, up)
		card.Status = model.StatusNeedsReview
		card.PendingDirection = model.DirectionNone
	case model.StatusGeneratingSummary:
		card = mergeUpdate(card, up)
		card.Status = model.StatusFetchingValue
	case model.StatusRegeneratingSummary:
		// Regeneration proceeds to valuation so an overridden card also
		// carries a current value.
		card = mergeUpdate(card, up)
		card.Status = model.StatusFetchingValue
	case model.StatusFetchingValue:
		card = mergeUpdate(card, up)
		card.Status = model.StatusReviewed
	default:
		return card, eris.Wrapf(ErrInvalidTransition, "stage success in %s", card.Status)
	}

	card.ErrorMessage = ""
	card.ErrorKind = model.ErrorKindNone
	card.StatusNote = ""
	return card, nil
}

func applyStageFailure(card model.Card, err error) (model.Card, error) {
	if !card.Status.AutoDispatch() {
		return card, eris.Wrapf(ErrInvalidTransition, "stage failure in %s", card.Status)
	}

	// Valuation failure is absorbed: the card stays reviewed without a
	// value and the user may revalue later.
	if card.Status == model.StatusFetchingValue {
		card.Status = model.StatusReviewed
		card.ErrorMessage = ""
		card.ErrorKind = model.ErrorKindNone
		card.StatusNote = ""
		return card, nil
	}

	card.Status = model.StatusGradingFailed
	card.ErrorMessage = errMessage(err)
	card.ErrorKind = classifyFailure(err)
	card.PendingDirection = model.DirectionNone
	card.StatusNote = ""
	return card, nil
}

func mergeUpdate(card model.Card, up Update) model.Card {
	if up.PlayerName != "" {
		card.PlayerName = up.PlayerName
	}
	if up.Year != "" {
		card.Year = up.Year
	}
	if up.SetName != "" {
		card.SetName = up.SetName
	}
	if up.CardNumber != "" {
		card.CardNumber = up.CardNumber
	}
	if up.Brand != "" {
		card.Brand = up.Brand
	}
	if up.Variant != "" {
		card.Variant = up.Variant
	}
	if up.Grades != nil {
		grades := *up.Grades
		card.Grades = &grades
	}
	if up.Summary != "" {
		card.Summary = up.Summary
	}
	if up.Valuation != nil {
		val := *up.Valuation
		card.Valuation = &val
	}
	return card
}

func errMessage(err error) string {
	if err == nil {
		return "stage failed"
	}
	return err.Error()
}

func classifyFailure(err error) model.ErrorKind {
	switch {
	case resilience.IsCredential(err):
		return model.ErrorKindCredential
	case resilience.IsMalformed(err):
		return model.ErrorKindData
	case resilience.IsExhausted(err):
		return model.ErrorKindTransient
	default:
		return model.ErrorKindTransient
	}
}

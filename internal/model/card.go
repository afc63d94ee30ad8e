package model

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Status represents the current lifecycle state of a card.
type Status string

const (
	// StatusGrading is the initial pipeline state after intake: the card's
	// images are being identified and graded by the analysis service.
	StatusGrading Status = "grading"
	// StatusNeedsReview means grading finished and the result is waiting for
	// the user to accept, challenge, or override it.
	StatusNeedsReview Status = "needs_review"
	// StatusGradingFailed is the terminal failure state for any pipeline
	// stage; the card carries an ErrorMessage and offers retry/override.
	StatusGradingFailed Status = "grading_failed"
	// StatusGeneratingSummary means the accepted grade is being turned into
	// a narrative summary.
	StatusGeneratingSummary Status = "generating_summary"
	// StatusFetchingValue means a market valuation lookup is running.
	StatusFetchingValue Status = "fetching_value"
	// StatusChallenging means a re-grade biased by PendingDirection is running.
	StatusChallenging Status = "challenging"
	// StatusRegeneratingSummary means a manually overridden grade is being
	// justified with a fresh summary.
	StatusRegeneratingSummary Status = "regenerating_summary"
	// StatusReviewed is the resting state of a fully enriched card.
	StatusReviewed Status = "reviewed"
)

var allStatuses = []Status{
	StatusGrading,
	StatusNeedsReview,
	StatusGradingFailed,
	StatusGeneratingSummary,
	StatusFetchingValue,
	StatusChallenging,
	StatusRegeneratingSummary,
	StatusReviewed,
}

// autoDispatchStatuses are the statuses the scheduler picks up without user
// action. Everything else is inert until a user transition moves it.
var autoDispatchStatuses = map[Status]struct{}{
	StatusGrading:             {},
	StatusChallenging:         {},
	StatusGeneratingSummary:   {},
	StatusRegeneratingSummary: {},
	StatusFetchingValue:       {},
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	for _, known := range allStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// AutoDispatch reports whether the scheduler may pick up a card in this state.
func (s Status) AutoDispatch() bool {
	_, ok := autoDispatchStatuses[s]
	return ok
}

// AutoDispatchStatuses returns the pipeline statuses the scheduler services.
func AutoDispatchStatuses() []Status {
	out := make([]Status, 0, len(autoDispatchStatuses))
	for _, s := range allStatuses {
		if s.AutoDispatch() {
			out = append(out, s)
		}
	}
	return out
}

// Direction biases a challenge re-grade.
type Direction string

const (
	DirectionNone   Direction = ""
	DirectionHigher Direction = "higher"
	DirectionLower  Direction = "lower"
)

// ErrorKind distinguishes failure causes so the UI can offer the right
// affordance (a credential failure prompts for a new key, not a bare retry).
type ErrorKind string

const (
	ErrorKindNone       ErrorKind = ""
	ErrorKindTransient  ErrorKind = "transient_exhausted"
	ErrorKindCredential ErrorKind = "credential"
	ErrorKindData       ErrorKind = "malformed_response"
	ErrorKindRecovery   ErrorKind = "recovery"
)

// GradeReport holds the five-category sub-grades plus the overall grade.
type GradeReport struct {
	Centering  float64 `json:"centering"`
	Corners    float64 `json:"corners"`
	Edges      float64 `json:"edges"`
	Surface    float64 `json:"surface"`
	EyeAppeal  float64 `json:"eye_appeal"`
	Overall    float64 `json:"overall"`
	Label      string  `json:"label"`
	Confidence string  `json:"confidence,omitempty"`
}

// Valuation holds market value figures for a graded card.
type Valuation struct {
	LowUSD  float64 `json:"low_usd"`
	MidUSD  float64 `json:"mid_usd"`
	HighUSD float64 `json:"high_usd"`
	Source  string  `json:"source,omitempty"`
}

// Card is the unit of work and the unit of persistence. Fields populated by a
// pipeline stage are never cleared by another stage; only a full re-grade
// (retry or challenge) replaces grading output.
type Card struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`

	// Dirty marks the card as changed locally and not yet confirmed
	// written to the remote store.
	Dirty bool `json:"dirty"`

	ErrorMessage string    `json:"error_message,omitempty"`
	ErrorKind    ErrorKind `json:"error_kind,omitempty"`

	// StatusNote is transient progress text (retry countdowns and the
	// like); never persisted as part of the durable record's meaning.
	StatusNote string `json:"status_note,omitempty"`

	FrontImage string `json:"front_image,omitempty"`
	BackImage  string `json:"back_image,omitempty"`

	// Identification, populated by the grading stage.
	PlayerName string `json:"player_name,omitempty"`
	Year       string `json:"year,omitempty"`
	SetName    string `json:"set_name,omitempty"`
	CardNumber string `json:"card_number,omitempty"`
	Brand      string `json:"brand,omitempty"`
	Variant    string `json:"variant,omitempty"`

	Grades    *GradeReport `json:"grades,omitempty"`
	Summary   string       `json:"summary,omitempty"`
	Valuation *Valuation   `json:"valuation,omitempty"`

	// PendingDirection is set by a challenge and cleared when the
	// challenge stage completes.
	PendingDirection Direction `json:"pending_direction,omitempty"`

	// SheetRowID records provenance for cards imported from a tabular
	// source that has no stable ids of its own.
	SheetRowID string `json:"sheet_row_id,omitempty"`
}

// NewCard creates a card in the initial pipeline state from two images.
func NewCard(frontImage, backImage string) Card {
	return Card{
		ID:         uuid.New().String(),
		Status:     StatusGrading,
		CreatedAt:  time.Now().UTC(),
		Dirty:      true,
		FrontImage: frontImage,
		BackImage:  backImage,
	}
}

// HasFailure reports whether the card is in a failure state.
func (c Card) HasFailure() bool {
	return c.Status == StatusGradingFailed
}

// SortCards orders cards newest-first, with a stable id tiebreak so repeated
// sorts of equal timestamps do not reshuffle.
func SortCards(cards []Card) {
	sort.SliceStable(cards, func(i, j int) bool {
		if !cards[i].CreatedAt.Equal(cards[j].CreatedAt) {
			return cards[i].CreatedAt.After(cards[j].CreatedAt)
		}
		return cards[i].ID < cards[j].ID
	})
}

// CloneCards returns a shallow copy of the slice so callers can treat the
// collection as copy-on-write.
func CloneCards(cards []Card) []Card {
	out := make([]Card, len(cards))
	copy(out, cards)
	return out
}

// FindCard returns the index of the card with the given id, or -1.
func FindCard(cards []Card, id string) int {
	for i := range cards {
		if cards[i].ID == id {
			return i
		}
	}
	return -1
}

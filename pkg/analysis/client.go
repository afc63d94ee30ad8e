// Package analysis is the client for the card analysis service: a stateless
// request/response API that identifies, grades, summarizes, and values
// trading cards from a pair of images plus prior findings.
package analysis

import (
	"context"
)

// Service defines the analysis operations used by the pipeline stages.
type Service interface {
	// GradeCard identifies the card and produces the initial grade from
	// the two images.
	GradeCard(ctx context.Context, req GradeRequest) (*GradeResult, error)

	// ChallengeGrade re-grades with a user-declared bias that the original
	// grade was too low or too high.
	ChallengeGrade(ctx context.Context, req ChallengeRequest) (*GradeResult, error)

	// Summarize produces the narrative summary for an accepted grade.
	Summarize(ctx context.Context, req SummarizeRequest) (*SummaryResult, error)

	// JustifyGrade writes a summary and condition detail consistent with a
	// grade the user supplied manually.
	JustifyGrade(ctx context.Context, req JustifyRequest) (*SummaryResult, error)

	// Valuate looks up market value figures for the identified, graded card.
	Valuate(ctx context.Context, req ValuateRequest) (*ValuationResult, error)
}

// CardFacts carries prior findings into later stages.
type CardFacts struct {
	PlayerName string
	Year       string
	SetName    string
	CardNumber string
	Brand      string
	Variant    string
	Grade      float64
	GradeLabel string
	Summary    string
}

// GradeRequest asks for identification plus grading of a card.
type GradeRequest struct {
	FrontImage string
	BackImage  string
}

// ChallengeRequest asks for a biased re-grade of an already-graded card.
type ChallengeRequest struct {
	FrontImage string
	BackImage  string
	Facts      CardFacts
	// Direction is "higher" or "lower": which way the user believes the
	// grade should move.
	Direction string
}

// SummarizeRequest asks for the narrative summary.
type SummarizeRequest struct {
	Facts CardFacts
}

// JustifyRequest asks for a summary consistent with a manual override.
type JustifyRequest struct {
	Facts         CardFacts
	OverrideGrade float64
	OverrideLabel string
}

// ValuateRequest asks for market value figures.
type ValuateRequest struct {
	Facts CardFacts
}

// GradeResult is the identification and grading output.
type GradeResult struct {
	PlayerName string  `json:"player_name"`
	Year       string  `json:"year"`
	SetName    string  `json:"set_name"`
	CardNumber string  `json:"card_number"`
	Brand      string  `json:"brand"`
	Variant    string  `json:"variant"`
	Centering  float64 `json:"centering"`
	Corners    float64 `json:"corners"`
	Edges      float64 `json:"edges"`
	Surface    float64 `json:"surface"`
	EyeAppeal  float64 `json:"eye_appeal"`
	Overall    float64 `json:"overall"`
	Label      string  `json:"label"`
	Confidence string  `json:"confidence"`
}

// SummaryResult is the narrative output.
type SummaryResult struct {
	Summary string `json:"summary"`
}

// ValuationResult holds market value figures in USD.
type ValuationResult struct {
	LowUSD  float64 `json:"low_usd"`
	MidUSD  float64 `json:"mid_usd"`
	HighUSD float64 `json:"high_usd"`
	Source  string  `json:"source"`
}

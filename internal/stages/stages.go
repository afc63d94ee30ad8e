// Package stages binds each pipeline status to its analysis-service call.
// Every call runs through the retry executor and the service's circuit
// breaker; the scheduler turns the outcome into a lifecycle event.
package stages

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/slabworks/gradepipe/internal/lifecycle"
	"github.com/slabworks/gradepipe/internal/model"
	"github.com/slabworks/gradepipe/internal/resilience"
	"github.com/slabworks/gradepipe/pkg/analysis"
)

// Progress receives human-readable status text during retries. It may be nil.
type Progress func(note string)

// Runner executes the stage handler matching a card's status.
type Runner struct {
	svc     analysis.Service
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// NewRunner wires a stage runner. breaker may be nil in tests.
func NewRunner(svc analysis.Service, retry resilience.RetryConfig, breaker *resilience.CircuitBreaker) *Runner {
	return &Runner{svc: svc, retry: retry, breaker: breaker}
}

// Run dispatches the card to the handler for its current status and returns
// the sparse update to merge on success.
func (r *Runner) Run(ctx context.Context, card model.Card, progress Progress) (lifecycle.Update, error) {
	switch card.Status {
	case model.StatusGrading:
		return r.grade(ctx, card, progress)
	case model.StatusChallenging:
		return r.challenge(ctx, card, progress)
	case model.StatusGeneratingSummary:
		return r.summarize(ctx, card, progress)
	case model.StatusRegeneratingSummary:
		return r.justify(ctx, card, progress)
	case model.StatusFetchingValue:
		return r.valuate(ctx, card, progress)
	default:
		return lifecycle.Update{}, eris.Errorf("stages: no handler for status %s", card.Status)
	}
}

func (r *Runner) grade(ctx context.Context, card model.Card, progress Progress) (lifecycle.Update, error) {
	res, err := run(ctx, r, progress, func(ctx context.Context) (*analysis.GradeResult, error) {
		return r.svc.GradeCard(ctx, analysis.GradeRequest{
			FrontImage: card.FrontImage,
			BackImage:  card.BackImage,
		})
	})
	if err != nil {
		return lifecycle.Update{}, err
	}
	return gradeUpdate(res), nil
}

func (r *Runner) challenge(ctx context.Context, card model.Card, progress Progress) (lifecycle.Update, error) {
	res, err := run(ctx, r, progress, func(ctx context.Context) (*analysis.GradeResult, error) {
		return r.svc.ChallengeGrade(ctx, analysis.ChallengeRequest{
			FrontImage: card.FrontImage,
			BackImage:  card.BackImage,
			Facts:      facts(card),
			Direction:  string(card.PendingDirection),
		})
	})
	if err != nil {
		return lifecycle.Update{}, err
	}
	return gradeUpdate(res), nil
}

func (r *Runner) summarize(ctx context.Context, card model.Card, progress Progress) (lifecycle.Update, error) {
	res, err := run(ctx, r, progress, func(ctx context.Context) (*analysis.SummaryResult, error) {
		return r.svc.Summarize(ctx, analysis.SummarizeRequest{Facts: facts(card)})
	})
	if err != nil {
		return lifecycle.Update{}, err
	}
	return lifecycle.Update{Summary: res.Summary}, nil
}

func (r *Runner) justify(ctx context.Context, card model.Card, progress Progress) (lifecycle.Update, error) {
	var grade float64
	var label string
	if card.Grades != nil {
		grade = card.Grades.Overall
		label = card.Grades.Label
	}
	res, err := run(ctx, r, progress, func(ctx context.Context) (*analysis.SummaryResult, error) {
		return r.svc.JustifyGrade(ctx, analysis.JustifyRequest{
			Facts:         facts(card),
			OverrideGrade: grade,
			OverrideLabel: label,
		})
	})
	if err != nil {
		return lifecycle.Update{}, err
	}
	return lifecycle.Update{Summary: res.Summary}, nil
}

func (r *Runner) valuate(ctx context.Context, card model.Card, progress Progress) (lifecycle.Update, error) {
	res, err := run(ctx, r, progress, func(ctx context.Context) (*analysis.ValuationResult, error) {
		return r.svc.Valuate(ctx, analysis.ValuateRequest{Facts: facts(card)})
	})
	if err != nil {
		return lifecycle.Update{}, err
	}
	return lifecycle.Update{Valuation: &model.Valuation{
		LowUSD:  res.LowUSD,
		MidUSD:  res.MidUSD,
		HighUSD: res.HighUSD,
		Source:  res.Source,
	}}, nil
}

// run wraps a service call with the circuit breaker inside the retry loop,
// so an open circuit is waited out with backoff like any other transient
// condition.
func run[T any](ctx context.Context, r *Runner, progress Progress, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg := r.retry
	cfg.Classify = func(err error) resilience.Class {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return resilience.ClassRetryable
		}
		return resilience.DefaultClassifier(err)
	}
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		if prev := r.retry.OnRetry; prev != nil {
			prev(attempt, delay, err)
		}
		if progress != nil {
			progress(fmt.Sprintf("Analysis service busy, retry %d in %s", attempt, delay.Round(time.Second)))
		}
	}

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (T, error) {
		if r.breaker == nil {
			return fn(ctx)
		}
		return resilience.ExecuteVal(ctx, r.breaker, fn)
	})
}

func gradeUpdate(res *analysis.GradeResult) lifecycle.Update {
	return lifecycle.Update{
		PlayerName: res.PlayerName,
		Year:       res.Year,
		SetName:    res.SetName,
		CardNumber: res.CardNumber,
		Brand:      res.Brand,
		Variant:    res.Variant,
		Grades: &model.GradeReport{
			Centering:  res.Centering,
			Corners:    res.Corners,
			Edges:      res.Edges,
			Surface:    res.Surface,
			EyeAppeal:  res.EyeAppeal,
			Overall:    res.Overall,
			Label:      res.Label,
			Confidence: res.Confidence,
		},
	}
}

func facts(card model.Card) analysis.CardFacts {
	f := analysis.CardFacts{
		PlayerName: card.PlayerName,
		Year:       card.Year,
		SetName:    card.SetName,
		CardNumber: card.CardNumber,
		Brand:      card.Brand,
		Variant:    card.Variant,
		Summary:    card.Summary,
	}
	if card.Grades != nil {
		f.Grade = card.Grades.Overall
		f.GradeLabel = card.Grades.Label
	}
	return f
}

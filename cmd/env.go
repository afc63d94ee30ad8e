package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/slabworks/gradepipe/internal/lifecycle"
	"github.com/slabworks/gradepipe/internal/model"
	"github.com/slabworks/gradepipe/internal/orchestrator"
	"github.com/slabworks/gradepipe/internal/resilience"
	"github.com/slabworks/gradepipe/internal/scheduler"
	"github.com/slabworks/gradepipe/internal/stages"
	"github.com/slabworks/gradepipe/internal/store"
	"github.com/slabworks/gradepipe/pkg/analysis"
	"github.com/slabworks/gradepipe/pkg/remotestore"
)

// appEnv bundles the wired subsystems behind one Close.
type appEnv struct {
	st  store.Store
	orc *orchestrator.Orchestrator
}

// initEnv opens the store, connects the remote when configured, builds the
// stage runner, and loads the collection.
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	var remote remotestore.Client
	if cfg.Remote.Addr != "" {
		client, err := remotestore.NewFTP(cfg.Remote)
		if err != nil {
			st.Close()
			return nil, err
		}
		remote = client
	}

	orc := orchestrator.New(st, remote, newStageRunner(), orchestrator.Options{
		Concurrency:   cfg.Scheduler.Concurrency,
		SweepInterval: cfg.Scheduler.SweepInterval,
		Debounce:      cfg.Persist.Debounce,
	})
	if err := orc.Load(ctx); err != nil {
		st.Close()
		return nil, err
	}

	return &appEnv{st: st, orc: orc}, nil
}

func (e *appEnv) Close() {
	e.orc.Stop()
	if err := e.st.Close(); err != nil {
		zap.L().Warn("store close failed", zap.Error(err))
	}
}

// requireAnalysis guards commands that dispatch enrichment stages.
func requireAnalysis() error {
	if cfg.Analysis.Key == "" {
		return eris.New("analysis key not configured: set GRADEPIPE_ANALYSIS_KEY or analysis.key in gradepipe.yaml")
	}
	return nil
}

// newStageRunner builds the enrichment stage runner from config. Without an
// API key the runner reports the misconfiguration if a stage ever dispatches.
func newStageRunner() scheduler.StageRunner {
	if cfg.Analysis.Key == "" {
		return unconfiguredRunner{}
	}

	svc := analysis.NewService(cfg.Analysis.Key,
		analysis.WithModel(cfg.Analysis.Model),
		analysis.WithRateLimit(float64(cfg.Analysis.RequestsPerMinute)/60),
	)

	retry := resilience.FromRetryConfig(
		cfg.Scheduler.Retry.MaxAttempts,
		cfg.Scheduler.Retry.InitialBackoffMs,
		cfg.Scheduler.Retry.MaxBackoffMs,
		cfg.Scheduler.Retry.Multiplier,
		cfg.Scheduler.Retry.JitterFraction,
	)
	retry.OnRetry = resilience.RetryLogger("analysis", "stage")

	breaker := resilience.NewCircuitBreaker(resilience.FromCircuitConfig(
		cfg.Scheduler.Breaker.FailureThreshold,
		cfg.Scheduler.Breaker.ResetTimeoutSecs,
	))

	return stages.NewRunner(svc, retry, breaker)
}

type unconfiguredRunner struct{}

// Run fails as a credential error so the card surfaces "fix your key", not a
// retryable outage.
func (unconfiguredRunner) Run(context.Context, model.Card, stages.Progress) (lifecycle.Update, error) {
	return lifecycle.Update{}, resilience.NewCredentialError(
		eris.New("analysis service not configured: set GRADEPIPE_ANALYSIS_KEY or analysis.key in gradepipe.yaml"))
}

// runUntilSettled starts the scheduler and blocks until the card leaves the
// pipeline states, then returns its final form. One-shot commands use this
// to carry a transition through its enrichment stages before exiting.
func runUntilSettled(ctx context.Context, env *appEnv, id string) (model.Card, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	env.orc.Start(runCtx)
	ch, unsubscribe := env.orc.Subscribe()
	defer unsubscribe()

	for {
		card, ok := env.orc.Card(id)
		if !ok {
			return model.Card{}, orchestrator.ErrNotFound
		}
		if !card.Status.AutoDispatch() {
			return card, nil
		}

		select {
		case <-ch:
		case <-time.After(500 * time.Millisecond):
		case <-runCtx.Done():
			return card, runCtx.Err()
		}
	}
}

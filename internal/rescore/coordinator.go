// Package rescore coordinates single-evaluation refreshes and bulk
// re-scoring of stale evaluations after profile changes.
package rescore

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/contract-radar/internal/evaluator"
	"github.com/sells-group/contract-radar/internal/model"
	"github.com/sells-group/contract-radar/internal/staleness"
	"github.com/sells-group/contract-radar/internal/store"
)

// cacheWarmer is implemented by evaluators that can pre-warm a shared prompt
// cache before a bulk run.
type cacheWarmer interface {
	WarmCache(ctx context.Context, profile *model.CompanyProfile) error
}

// Config tunes the coordinator.
type Config struct {
	// Workers bounds concurrent evaluator calls during a bulk re-score.
	Workers int

	// EvaluatorTimeout bounds a single evaluator call. An item that times
	// out fails; its stored evaluation is left untouched.
	EvaluatorTimeout time.Duration
}

// Coordinator runs refresh and bulk re-score operations against the store.
type Coordinator struct {
	store  store.Store
	eval   evaluator.Evaluator
	cfg    Config
	flight singleflight.Group
}

// New creates a Coordinator. Zero config fields get sane defaults.
func New(st store.Store, eval evaluator.Evaluator, cfg Config) *Coordinator {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.EvaluatorTimeout <= 0 {
		cfg.EvaluatorTimeout = 60 * time.Second
	}
	return &Coordinator{store: st, eval: eval, cfg: cfg}
}

// StaleCount reports how many of a company's evaluations were scored against
// an older profile version.
func (c *Coordinator) StaleCount(ctx context.Context, companyID string) (*model.StaleCount, error) {
	profile, err := c.store.GetProfile(ctx, companyID)
	if err != nil {
		return nil, err
	}

	evals, err := c.store.ListEvaluations(ctx, companyID)
	if err != nil {
		return nil, err
	}

	sc := staleness.Count(evals, profile.Version)
	return &sc, nil
}

// RefreshOne re-scores a single evaluation against the current profile.
// Concurrent calls for the same evaluation ID share one in-flight run; later
// callers receive the first run's result instead of triggering a duplicate
// evaluator call.
func (c *Coordinator) RefreshOne(ctx context.Context, evaluationID string) (*model.Evaluation, error) {
	v, err, _ := c.flight.Do(evaluationID, func() (interface{}, error) {
		// The run may be shared by several callers, so detach it from the
		// originator's cancellation: one caller disconnecting must not fail
		// everyone waiting on the result. The evaluator timeout still bounds
		// the call.
		return c.refreshOne(context.WithoutCancel(ctx), evaluationID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Evaluation), nil
}

func (c *Coordinator) refreshOne(ctx context.Context, evaluationID string) (*model.Evaluation, error) {
	eval, err := c.store.GetEvaluation(ctx, evaluationID)
	if err != nil {
		return nil, err
	}

	profile, err := c.store.GetProfile(ctx, eval.CompanyID)
	if err != nil {
		return nil, err
	}

	opp, err := c.store.GetOpportunity(ctx, eval.OpportunityID)
	if err != nil {
		return nil, err
	}

	if err := c.rescoreItem(ctx, eval, opp, profile); err != nil {
		return nil, err
	}

	zap.L().Info("evaluation refreshed",
		zap.String("evaluation_id", eval.ID),
		zap.Int64("profile_version", profile.Version),
		zap.Int("fit_score", eval.FitScore),
	)
	return eval, nil
}

// RescoreAllStale re-scores every evaluation that is stale relative to the
// profile version observed at the start of the run. Items run concurrently
// with bounded workers; one item failing never aborts the rest, and a failed
// item keeps its stored state so it stays stale and retryable. Cancellation
// stops new items from starting; items already in flight complete and their
// writes land. Skipped items stay stale for a later run and count as neither
// re-scored nor failed.
func (c *Coordinator) RescoreAllStale(ctx context.Context, companyID string) (*model.RescoreSummary, error) {
	profile, err := c.store.GetProfile(ctx, companyID)
	if err != nil {
		return nil, err
	}

	// Selection snapshot: evaluations created mid-run against the current
	// version are not picked up, and a later profile bump does not grow
	// this run's workload.
	stale, err := c.store.ListStaleEvaluations(ctx, companyID, profile.Version)
	if err != nil {
		return nil, err
	}

	summary := &model.RescoreSummary{TotalStale: len(stale)}
	if len(stale) == 0 {
		zap.L().Info("no stale evaluations", zap.String("company_id", companyID))
		return summary, nil
	}

	if w, ok := c.eval.(cacheWarmer); ok {
		if warmErr := w.WarmCache(ctx, profile); warmErr != nil {
			zap.L().Warn("cache warm failed, continuing", zap.Error(warmErr))
		}
	}

	zap.L().Info("re-scoring stale evaluations",
		zap.String("company_id", companyID),
		zap.Int("stale", len(stale)),
		zap.Int64("profile_version", profile.Version),
		zap.Int("workers", c.cfg.Workers),
	)

	// Each slot is owned by exactly one goroutine, so no locking is needed.
	// A zero slot means the item was never started (cancellation at the
	// dispatch gate); those stay stale and appear in neither count.
	const (
		itemRescored = 1
		itemFailed   = 2
	)
	outcomes := make([]int, len(stale))

	// Items that start run on a cancellation-detached context: once an
	// evaluator call is in flight its result is still written, bounded only
	// by the per-item timeout. Cancellation stops new items from starting.
	itemCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(c.cfg.Workers)

	for i := range stale {
		if ctx.Err() != nil {
			zap.L().Warn("bulk re-score cancelled",
				zap.Int("skipped", len(stale)-i))
			break
		}
		eval := &stale[i]

		g.Go(func() error {
			// The worker slot may free up after cancellation; skip rather
			// than start new work.
			if ctx.Err() != nil {
				return nil
			}

			log := zap.L().With(zap.String("evaluation_id", eval.ID))

			opp, oppErr := c.store.GetOpportunity(itemCtx, eval.OpportunityID)
			if oppErr != nil {
				outcomes[i] = itemFailed
				log.Error("load opportunity failed", zap.Error(oppErr))
				return nil // don't abort the run on individual failure
			}

			if itemErr := c.rescoreItem(itemCtx, eval, opp, profile); itemErr != nil {
				outcomes[i] = itemFailed
				log.Error("re-score failed", zap.Error(itemErr))
				return nil
			}

			outcomes[i] = itemRescored
			log.Debug("re-score complete", zap.Int("fit_score", eval.FitScore))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "rescore: bulk run")
	}

	for i, outcome := range outcomes {
		switch outcome {
		case itemRescored:
			summary.RescoredCount++
		case itemFailed:
			summary.ErrorCount++
			summary.FailedIDs = append(summary.FailedIDs, stale[i].ID)
		}
	}

	zap.L().Info("bulk re-score complete",
		zap.String("company_id", companyID),
		zap.Int("total_stale", summary.TotalStale),
		zap.Int("rescored", summary.RescoredCount),
		zap.Int("errors", summary.ErrorCount),
		zap.Int("skipped", summary.TotalStale-summary.RescoredCount-summary.ErrorCount),
	)
	return summary, nil
}

// rescoreItem runs the evaluator for one pair and persists the result. The
// store is only written after the full result validates; any failure leaves
// the evaluation exactly as it was.
func (c *Coordinator) rescoreItem(ctx context.Context, eval *model.Evaluation, opp *model.Opportunity, profile *model.CompanyProfile) error {
	evalCtx, cancel := context.WithTimeout(ctx, c.cfg.EvaluatorTimeout)
	defer cancel()

	res, err := c.eval.Evaluate(evalCtx, opp, profile)
	if err != nil {
		return &model.EvaluationFailedError{EvaluationID: eval.ID, Err: err}
	}

	eval.ApplyScores(res, profile.Version, time.Now().UTC())

	if err := c.store.UpdateEvaluationScores(ctx, eval); err != nil {
		return &model.EvaluationFailedError{EvaluationID: eval.ID, Err: err}
	}
	return nil
}

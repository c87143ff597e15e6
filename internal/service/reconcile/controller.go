package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"accessledger/internal/adapter"
	"accessledger/internal/domain"
)

// maxConcurrentAdapters bounds the adapter fan-out per run.
const maxConcurrentAdapters = 8

// Lifecycle is the post-close hook applied by the controller. Implemented
// by the lifecycle manager.
type Lifecycle interface {
	Apply(ctx context.Context, run *domain.Run) error
}

// Controller drives the run state machine: Open → Reconciling → Closed or
// ClosedPartial. A closed run is immutable.
type Controller struct {
	runs       domain.RunRepository
	matrix     domain.MatrixRepository
	reconciler *Reconciler
	lifecycle  Lifecycle
	adapters   []adapter.SourceAdapter
	logger     *slog.Logger

	mu       sync.Mutex
	inflight map[string]context.CancelFunc // open run ID → cancel
}

// NewController creates a run controller over the given adapters.
func NewController(
	runs domain.RunRepository,
	matrix domain.MatrixRepository,
	reconciler *Reconciler,
	lifecycle Lifecycle,
	adapters []adapter.SourceAdapter,
	logger *slog.Logger,
) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		runs:       runs,
		matrix:     matrix,
		reconciler: reconciler,
		lifecycle:  lifecycle,
		adapters:   adapters,
		logger:     logger,
		inflight:   make(map[string]context.CancelFunc),
	}
}

// sourceResult is one adapter's outcome for a run.
type sourceResult struct {
	sourceSystemID string
	facts          []domain.ObservedFact
	err            error
}

// Execute runs the full pipeline for one environment and returns the
// closed run. Adapters execute concurrently; reconciliation starts only
// after every adapter has completed or definitively failed, so the fact
// batch is consistent.
//
// Cancelling ctx aborts in-flight adapters (treated as adapter failure)
// and closes the run as partial. Registry touches that already happened
// are idempotent and retained. The close itself runs on a detached context
// so a cancelled run is still durably recorded.
func (c *Controller) Execute(ctx context.Context, environment, triggerType, triggeredBy, description string) (*domain.Run, error) {
	run := &domain.Run{
		ID:          domain.NewID(),
		Status:      domain.RunStatusOpen,
		TriggerType: triggerType,
		TriggeredBy: triggeredBy,
		Description: description,
		Environment: environment,
		StartedAt:   time.Now().UTC(),
	}
	if err := c.runs.Create(ctx, run); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.inflight[run.ID] = cancel
	c.mu.Unlock()
	defer func() {
		cancel()
		c.mu.Lock()
		delete(c.inflight, run.ID)
		c.mu.Unlock()
	}()

	c.logger.Info("run opened",
		"run", run.ID,
		"environment", environment,
		"trigger", triggerType,
		"triggered_by", triggeredBy,
	)

	results := c.fetchAll(ctx, run)

	// Finalization must survive cancellation of the triggering request.
	finCtx := context.WithoutCancel(ctx)

	var facts []domain.ObservedFact
	var failed []string
	for _, res := range results {
		if res.err != nil {
			failed = append(failed, res.sourceSystemID)
			c.logger.Error("adapter failed; snapshot will be partial",
				"run", run.ID,
				"source", res.sourceSystemID,
				"error", res.err,
			)
			continue
		}
		facts = append(facts, res.facts...)
	}
	sort.Strings(failed)
	run.FailedSources = failed

	if err := c.runs.SetStatus(finCtx, run.ID, domain.RunStatusReconciling); err != nil {
		return nil, err
	}
	run.Status = domain.RunStatusReconciling

	entries, discarded, err := c.reconciler.Reconcile(finCtx, run, facts)
	if err != nil {
		// Storage-level failure: the run closes aborted rather than staying
		// open forever, and never masquerades as a clean empty snapshot.
		_ = c.abort(finCtx, run, fmt.Sprintf("reconciliation failed: %v", err))
		return nil, err
	}

	if err := c.matrix.InsertBatch(finCtx, entries); err != nil {
		_ = c.abort(finCtx, run, fmt.Sprintf("snapshot write failed: %v", err))
		return nil, err
	}

	if err := c.close(finCtx, run, description); err != nil {
		return nil, err
	}

	c.logger.Info("run closed",
		"run", run.ID,
		"status", run.Status,
		"entries", len(entries),
		"conflicts_discarded", len(discarded),
		"failed_sources", len(failed),
	)

	if c.lifecycle != nil {
		if err := c.lifecycle.Apply(finCtx, run); err != nil {
			return nil, fmt.Errorf("lifecycle pass: %w", err)
		}
	}

	return run, nil
}

// Cancel aborts an in-flight run. The remaining adapters are treated as
// failed and the run closes as partial.
func (c *Controller) Cancel(runID string) error {
	c.mu.Lock()
	cancel, ok := c.inflight[runID]
	c.mu.Unlock()
	if !ok {
		return domain.ErrNotFound("run %s is not in flight", runID)
	}
	cancel()
	c.logger.Info("run cancellation requested", "run", runID)
	return nil
}

// fetchAll invokes every adapter concurrently and collects per-source
// results. Adapter errors never abort the group; each failure is isolated
// to its source system.
func (c *Controller) fetchAll(ctx context.Context, run *domain.Run) []sourceResult {
	results := make([]sourceResult, len(c.adapters))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentAdapters)

	for i, a := range c.adapters {
		g.Go(func() error {
			raw, err := a.FetchAccessFacts(gctx, run.Environment)

			res := sourceResult{sourceSystemID: a.SourceSystemID(), err: err}
			if err == nil {
				observedAt := time.Now().UTC()
				res.facts = make([]domain.ObservedFact, len(raw))
				for seq, f := range raw {
					res.facts[seq] = domain.ObservedFact{
						RawFact:        f,
						SourceSystemID: a.SourceSystemID(),
						Seq:            seq,
						ObservedAt:     observedAt,
					}
				}
			}

			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// close moves the run to its terminal state. The run is partial when any
// source failed; the failures are recorded on the run so consumers can
// distinguish "not observed: unknown" from "observed: no access".
func (c *Controller) close(ctx context.Context, run *domain.Run, description string) error {
	return c.finalize(ctx, run, description, len(run.FailedSources) > 0)
}

// abort closes a run whose snapshot could not be written. An aborted run is
// always partial: drift consumers must be able to exclude it, and its empty
// snapshot must never read as "complete, no access anywhere".
func (c *Controller) abort(ctx context.Context, run *domain.Run, description string) error {
	return c.finalize(ctx, run, description, true)
}

func (c *Controller) finalize(ctx context.Context, run *domain.Run, description string, partial bool) error {
	status := domain.RunStatusClosed
	if partial {
		status = domain.RunStatusClosedPartial
	}
	if len(run.FailedSources) > 0 {
		if len(description) > 0 {
			description += "; "
		}
		description += fmt.Sprintf("partial snapshot: sources failed [%s]", strings.Join(run.FailedSources, ", "))
	}

	finished := time.Now().UTC()
	if err := c.runs.Close(ctx, run.ID, status, finished, run.FailedSources, description); err != nil {
		return err
	}
	run.Status = status
	run.FinishedAt = &finished
	run.Description = description
	return nil
}

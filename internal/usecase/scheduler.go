package usecase

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shelfmatch/backend/internal/domain"
)

// Scheduler defaults
const (
	defaultConcurrency    = 50
	defaultAdmissionBatch = 10
	defaultAdmissionDelay = 2 * time.Second
	defaultItemTimeout    = 2 * time.Minute
)

// ProcessFunc runs the full pipeline for one item and always returns a
// terminal decision. The scheduler is generic over this function, so every
// batch entry point shares the same scheduling code.
type ProcessFunc func(ctx context.Context, item domain.DetectionItem) domain.MatchDecision

// EventFunc receives progress events in completion order. It is invoked
// from the scheduler loop, never concurrently.
type EventFunc func(domain.ProgressEvent)

// SchedulerConfig holds configuration for the concurrency scheduler
type SchedulerConfig struct {
	Concurrency        int           // hard ceiling on simultaneous in-flight executions
	AdmissionBatch     int           // new executions admitted per cycle during ramp-up
	AdmissionDelay     time.Duration // pause after a full admission sub-batch
	ItemTimeout        time.Duration // individual bound per execution
	EnableDebugLogging bool
}

// Scheduler executes per-item pipelines over a work list under a rolling
// concurrency window. The in-flight pool stays saturated at the ceiling:
// a completed slot is refilled immediately in steady state, while the
// admission throttle (sub-batches of AdmissionBatch with AdmissionDelay
// between them) protects rate-limited dependencies from ramp-up bursts.
type Scheduler struct {
	concurrency    int
	admissionBatch int
	admissionDelay time.Duration
	itemTimeout    time.Duration
	debug          bool
}

// NewScheduler creates a scheduler with the given configuration
func NewScheduler(config SchedulerConfig) *Scheduler {
	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	batch := config.AdmissionBatch
	if batch <= 0 {
		batch = defaultAdmissionBatch
	}
	if batch > concurrency {
		batch = concurrency
	}

	delay := config.AdmissionDelay
	if delay < 0 {
		delay = defaultAdmissionDelay
	}

	timeout := config.ItemTimeout
	if timeout <= 0 {
		timeout = defaultItemTimeout
	}

	return &Scheduler{
		concurrency:    concurrency,
		admissionBatch: batch,
		admissionDelay: delay,
		itemTimeout:    timeout,
		debug:          config.EnableDebugLogging,
	}
}

// RunResult is the terminal outcome of one batch run.
type RunResult struct {
	Decisions []domain.MatchDecision // completion order
	Stats     domain.PipelineRunStats
	Stopped   bool // admissions were halted before the work list was exhausted
}

// Run executes process over every item and blocks until all admitted
// executions have reported. Progress events are delivered to onEvent (which
// may be nil) in completion order.
//
// Stopping: closing stop halts new admissions while in-flight executions
// finish and still report their outcomes. Cancelling ctx additionally
// propagates to in-flight executions, which then resolve to error outcomes
// and still report. Either way no execution is left half-completed.
//
// The only fatal error is a broken concurrency invariant; every other
// failure is scoped to its item and reflected in the per-item decisions.
func (s *Scheduler) Run(
	ctx context.Context,
	items []domain.DetectionItem,
	process ProcessFunc,
	onEvent EventFunc,
	stop <-chan struct{},
) (*RunResult, error) {
	total := len(items)
	stats := NewRunStats()
	decisions := make([]domain.MatchDecision, 0, total)

	// Buffered so a worker can always report, even if the run aborts.
	done := make(chan domain.MatchDecision, total)

	next := 0
	inFlight := 0
	stopped := false

	handle := func(d domain.MatchDecision) {
		inFlight--
		stats.Record(d.Outcome)
		decisions = append(decisions, d)
		if onEvent != nil {
			snap := stats.Snapshot()
			typ := domain.EventProgress
			if d.Outcome == domain.OutcomeError {
				typ = domain.EventError
			}
			onEvent(domain.ProgressEvent{
				Type:      typ,
				Processed: snap.Processed,
				Total:     total,
				Success:   snap.Success,
				NoMatch:   snap.NoMatch,
				Errors:    snap.Errors,
				ItemID:    d.ItemID,
				Stage:     d.Stage,
			})
		}
	}

	shouldStop := func() bool {
		if stopped {
			return true
		}
		if ctx.Err() != nil {
			stopped = true
			return true
		}
		if stop != nil {
			select {
			case <-stop:
				stopped = true
				return true
			default:
			}
		}
		return false
	}

	for next < total || inFlight > 0 {
		if !shouldStop() {
			// Admit up to min(batch, ceiling - in-flight, remaining).
			admitted := 0
			for next < total && inFlight < s.concurrency && admitted < s.admissionBatch {
				s.launch(ctx, items[next], process, done)
				next++
				inFlight++
				admitted++
			}

			if inFlight > s.concurrency {
				return &RunResult{Decisions: decisions, Stats: stats.Snapshot(), Stopped: stopped},
					fmt.Errorf("%w: in-flight %d exceeds ceiling %d",
						domain.ErrSchedulerInvariant, inFlight, s.concurrency)
			}

			if s.debug && admitted > 0 {
				log.Printf("[SCHED] admitted=%d in-flight=%d remaining=%d", admitted, inFlight, total-next)
			}

			// Ramp-up throttle: a full sub-batch was just admitted and work
			// remains, so pause before the next admission check. Completions
			// are still drained during the pause; only admission waits.
			if admitted == s.admissionBatch && next < total && s.admissionDelay > 0 {
				s.coolDown(ctx, stop, done, &inFlight, handle)
				continue
			}
		}

		if inFlight == 0 {
			if stopped {
				break
			}
			continue
		}

		// Wait for any in-flight execution to complete.
		handle(<-done)
	}

	snap := stats.Snapshot()
	if onEvent != nil {
		onEvent(domain.ProgressEvent{
			Type:      domain.EventComplete,
			Processed: snap.Processed,
			Total:     total,
			Success:   snap.Success,
			NoMatch:   snap.NoMatch,
			Errors:    snap.Errors,
		})
	}

	if s.debug {
		log.Printf("[SCHED] run finished: processed=%d success=%d no-match=%d errors=%d stopped=%v",
			snap.Processed, snap.Success, snap.NoMatch, snap.Errors, stopped)
	}

	return &RunResult{Decisions: decisions, Stats: snap, Stopped: stopped}, nil
}

// launch starts one pipeline execution under its individual timeout.
func (s *Scheduler) launch(ctx context.Context, item domain.DetectionItem, process ProcessFunc, done chan<- domain.MatchDecision) {
	go func() {
		itemCtx, cancel := context.WithTimeout(ctx, s.itemTimeout)
		defer cancel()

		decision := s.safeProcess(itemCtx, item, process)
		if decision.ItemID == "" {
			decision.ItemID = item.ID
		}
		done <- decision
	}()
}

// safeProcess guarantees a terminal decision even if process panics, so the
// run always completes for every admitted item.
func (s *Scheduler) safeProcess(ctx context.Context, item domain.DetectionItem, process ProcessFunc) (decision domain.MatchDecision) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[SCHED] item=%s pipeline panic: %v", item.ID, r)
			decision = domain.MatchDecision{
				ItemID:        item.ID,
				Outcome:       domain.OutcomeError,
				FailureReason: fmt.Sprintf("pipeline panic: %v", r),
			}
		}
	}()
	return process(ctx, item)
}

// coolDown waits out the admission delay while continuing to drain
// completions, so the throttle never blocks completion reporting.
// A nil stop channel never fires in the select, which is exactly right.
func (s *Scheduler) coolDown(
	ctx context.Context,
	stop <-chan struct{},
	done <-chan domain.MatchDecision,
	inFlight *int,
	handle func(domain.MatchDecision),
) {
	timer := time.NewTimer(s.admissionDelay)
	defer timer.Stop()

	for {
		if *inFlight > 0 {
			select {
			case d := <-done:
				handle(d)
			case <-timer.C:
				return
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		} else {
			select {
			case <-timer.C:
				return
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}
}

package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shelfmatch/backend/internal/domain"
)

func makeItems(n int) []domain.DetectionItem {
	items := make([]domain.DetectionItem, n)
	for i := range items {
		items[i] = domain.DetectionItem{
			ID:             fmt.Sprintf("item-%d", i),
			ReferenceImage: "https://img.test/ref.jpg",
		}
	}
	return items
}

func autoSaved(itemID string) domain.MatchDecision {
	return domain.MatchDecision{ItemID: itemID, Outcome: domain.OutcomeAutoSaved}
}

func TestNewScheduler(t *testing.T) {
	t.Run("applies defaults for zero values", func(t *testing.T) {
		s := NewScheduler(SchedulerConfig{})
		if s.concurrency != defaultConcurrency {
			t.Errorf("concurrency = %d, want %d", s.concurrency, defaultConcurrency)
		}
		if s.admissionBatch != defaultAdmissionBatch {
			t.Errorf("admissionBatch = %d, want %d", s.admissionBatch, defaultAdmissionBatch)
		}
		if s.itemTimeout != defaultItemTimeout {
			t.Errorf("itemTimeout = %v, want %v", s.itemTimeout, defaultItemTimeout)
		}
	})

	t.Run("clamps batch to the concurrency ceiling", func(t *testing.T) {
		s := NewScheduler(SchedulerConfig{Concurrency: 3, AdmissionBatch: 10})
		if s.admissionBatch != 3 {
			t.Errorf("admissionBatch = %d, want 3", s.admissionBatch)
		}
	})

	t.Run("zero delay disables the throttle", func(t *testing.T) {
		s := NewScheduler(SchedulerConfig{AdmissionDelay: 0})
		if s.admissionDelay != 0 {
			t.Errorf("admissionDelay = %v, want 0", s.admissionDelay)
		}
	})
}

func TestSchedulerProcessesEveryItemOnce(t *testing.T) {
	items := makeItems(25)
	var calls atomic.Int64

	s := NewScheduler(SchedulerConfig{Concurrency: 5, AdmissionBatch: 5, ItemTimeout: 5 * time.Second})
	result, err := s.Run(context.Background(), items,
		func(ctx context.Context, item domain.DetectionItem) domain.MatchDecision {
			calls.Add(1)
			return autoSaved(item.ID)
		}, nil, nil)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 25 {
		t.Errorf("process calls = %d, want 25", calls.Load())
	}
	if len(result.Decisions) != 25 {
		t.Errorf("decisions = %d, want 25", len(result.Decisions))
	}
	if result.Stopped {
		t.Error("Stopped = true, want false")
	}
	if result.Stats.Processed != 25 || result.Stats.Success != 25 {
		t.Errorf("stats = %+v, want 25 processed and 25 success", result.Stats)
	}

	seen := make(map[string]bool)
	for _, d := range result.Decisions {
		if seen[d.ItemID] {
			t.Errorf("item %s reported twice", d.ItemID)
		}
		seen[d.ItemID] = true
	}
}

func TestSchedulerNeverExceedsCeiling(t *testing.T) {
	const ceiling = 4
	items := makeItems(40)

	var inFlight, peak atomic.Int64

	s := NewScheduler(SchedulerConfig{Concurrency: ceiling, AdmissionBatch: 2, ItemTimeout: 5 * time.Second})
	_, err := s.Run(context.Background(), items,
		func(ctx context.Context, item domain.DetectionItem) domain.MatchDecision {
			cur := inFlight.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inFlight.Add(-1)
			return autoSaved(item.ID)
		}, nil, nil)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := peak.Load(); got > ceiling {
		t.Errorf("peak in-flight = %d, want <= %d", got, ceiling)
	}
}

// TestSchedulerRollingWindow verifies the window refills slot by slot: one
// slow item must not hold back the rest of the work list the way fixed
// sequential batches would.
func TestSchedulerRollingWindow(t *testing.T) {
	items := makeItems(6)
	items[0].ID = "slow"

	release := make(chan struct{})
	var fastDone atomic.Int64

	s := NewScheduler(SchedulerConfig{Concurrency: 2, AdmissionBatch: 2, ItemTimeout: 10 * time.Second})
	result, err := s.Run(context.Background(), items,
		func(ctx context.Context, item domain.DetectionItem) domain.MatchDecision {
			if item.ID == "slow" {
				// Finishes only after four other items have already
				// completed through the second slot.
				<-release
				return autoSaved(item.ID)
			}
			if fastDone.Add(1) == 4 {
				close(release)
			}
			return autoSaved(item.ID)
		}, nil, nil)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Decisions) != 6 {
		t.Fatalf("decisions = %d, want 6", len(result.Decisions))
	}
	slowPos := -1
	for i, d := range result.Decisions {
		if d.ItemID == "slow" {
			slowPos = i
		}
	}
	if slowPos < 4 {
		t.Errorf("slow completed at position %d, want after the four fast items", slowPos)
	}
}

func TestSchedulerAdmissionThrottle(t *testing.T) {
	const delay = 30 * time.Millisecond
	items := makeItems(6)

	s := NewScheduler(SchedulerConfig{
		Concurrency:    6,
		AdmissionBatch: 2,
		AdmissionDelay: delay,
		ItemTimeout:    5 * time.Second,
	})

	start := time.Now()
	_, err := s.Run(context.Background(), items,
		func(ctx context.Context, item domain.DetectionItem) domain.MatchDecision {
			return autoSaved(item.ID)
		}, nil, nil)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Full sub-batches complete after admissions one and two; the final
	// sub-batch exhausts the work list and must not pause.
	if elapsed < 2*delay {
		t.Errorf("elapsed = %v, want >= %v (throttle not applied)", elapsed, 2*delay)
	}
}

func TestSchedulerStop(t *testing.T) {
	t.Run("stop before start admits nothing", func(t *testing.T) {
		stop := make(chan struct{})
		close(stop)

		s := NewScheduler(SchedulerConfig{Concurrency: 2, ItemTimeout: time.Second})
		result, err := s.Run(context.Background(), makeItems(10),
			func(ctx context.Context, item domain.DetectionItem) domain.MatchDecision {
				t.Error("process should not run after stop")
				return autoSaved(item.ID)
			}, nil, stop)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.Stopped {
			t.Error("Stopped = false, want true")
		}
		if len(result.Decisions) != 0 {
			t.Errorf("decisions = %d, want 0", len(result.Decisions))
		}
	})

	t.Run("in-flight items finish and report after stop", func(t *testing.T) {
		stop := make(chan struct{})
		gate := make(chan struct{})
		started := make(chan struct{}, 10)

		s := NewScheduler(SchedulerConfig{Concurrency: 2, AdmissionBatch: 2, ItemTimeout: 10 * time.Second})

		var wg sync.WaitGroup
		wg.Add(1)
		var result *RunResult
		var runErr error
		go func() {
			defer wg.Done()
			result, runErr = s.Run(context.Background(), makeItems(10),
				func(ctx context.Context, item domain.DetectionItem) domain.MatchDecision {
					started <- struct{}{}
					<-gate
					return autoSaved(item.ID)
				}, nil, stop)
		}()

		// Wait until the first window is in flight, then stop and unblock.
		<-started
		<-started
		close(stop)
		close(gate)
		wg.Wait()

		if runErr != nil {
			t.Fatalf("unexpected error: %v", runErr)
		}
		if !result.Stopped {
			t.Error("Stopped = false, want true")
		}
		// Only the in-flight window reports; nothing new was admitted.
		if len(result.Decisions) != 2 {
			t.Errorf("decisions = %d, want 2", len(result.Decisions))
		}
		if int(result.Stats.Processed) != len(result.Decisions) {
			t.Errorf("processed = %d, want %d", result.Stats.Processed, len(result.Decisions))
		}
	})
}

func TestSchedulerContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	s := NewScheduler(SchedulerConfig{Concurrency: 2, AdmissionBatch: 2, ItemTimeout: 10 * time.Second})

	started := make(chan struct{}, 10)
	go func() {
		// Cancel once the first window is in flight.
		<-started
		<-started
		cancel()
	}()

	result, err := s.Run(ctx, makeItems(10),
		func(ctx context.Context, item domain.DetectionItem) domain.MatchDecision {
			started <- struct{}{}
			<-ctx.Done()
			return domain.MatchDecision{
				ItemID:        item.ID,
				Outcome:       domain.OutcomeError,
				FailureReason: ctx.Err().Error(),
			}
		}, nil, nil)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Stopped {
		t.Error("Stopped = false, want true")
	}
	if len(result.Decisions) != 2 {
		t.Errorf("decisions = %d, want 2", len(result.Decisions))
	}
	if result.Stats.Errors != 2 {
		t.Errorf("errors = %d, want 2", result.Stats.Errors)
	}
}

func TestSchedulerItemTimeout(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Concurrency: 1, AdmissionBatch: 1, ItemTimeout: 20 * time.Millisecond})

	result, err := s.Run(context.Background(), makeItems(1),
		func(ctx context.Context, item domain.DetectionItem) domain.MatchDecision {
			<-ctx.Done()
			return domain.MatchDecision{
				ItemID:        item.ID,
				Outcome:       domain.OutcomeError,
				FailureReason: ctx.Err().Error(),
			}
		}, nil, nil)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Stats.Errors != 1 {
		t.Errorf("errors = %d, want 1", result.Stats.Errors)
	}
	if result.Stopped {
		t.Error("Stopped = true, want false (timeout is per item, not per run)")
	}
}

func TestSchedulerPanicRecovery(t *testing.T) {
	items := makeItems(3)

	s := NewScheduler(SchedulerConfig{Concurrency: 2, ItemTimeout: time.Second})
	result, err := s.Run(context.Background(), items,
		func(ctx context.Context, item domain.DetectionItem) domain.MatchDecision {
			if item.ID == "item-1" {
				panic("boom")
			}
			return autoSaved(item.ID)
		}, nil, nil)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Decisions) != 3 {
		t.Fatalf("decisions = %d, want 3", len(result.Decisions))
	}
	if result.Stats.Errors != 1 {
		t.Errorf("errors = %d, want 1", result.Stats.Errors)
	}
	for _, d := range result.Decisions {
		if d.ItemID != "item-1" {
			continue
		}
		if d.Outcome != domain.OutcomeError {
			t.Errorf("panicked item outcome = %v, want %v", d.Outcome, domain.OutcomeError)
		}
		if !strings.Contains(d.FailureReason, "panic") {
			t.Errorf("FailureReason = %q, want panic mention", d.FailureReason)
		}
	}
}

func TestSchedulerProgressEvents(t *testing.T) {
	items := makeItems(8)
	var events []domain.ProgressEvent

	s := NewScheduler(SchedulerConfig{Concurrency: 3, AdmissionBatch: 3, ItemTimeout: 5 * time.Second})
	_, err := s.Run(context.Background(), items,
		func(ctx context.Context, item domain.DetectionItem) domain.MatchDecision {
			if item.ID == "item-2" {
				return domain.MatchDecision{ItemID: item.ID, Outcome: domain.OutcomeError}
			}
			return autoSaved(item.ID)
		},
		func(ev domain.ProgressEvent) { events = append(events, ev) },
		nil)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 9 {
		t.Fatalf("events = %d, want 8 progress + 1 complete", len(events))
	}

	last := events[len(events)-1]
	if last.Type != domain.EventComplete {
		t.Errorf("last event type = %v, want %v", last.Type, domain.EventComplete)
	}
	if last.Processed != 8 || last.Total != 8 {
		t.Errorf("terminal counters = %d/%d, want 8/8", last.Processed, last.Total)
	}
	if last.Success != 7 || last.Errors != 1 {
		t.Errorf("terminal success/errors = %d/%d, want 7/1", last.Success, last.Errors)
	}

	var prev int64
	errorEvents := 0
	for _, ev := range events[:len(events)-1] {
		if ev.Processed != prev+1 {
			t.Errorf("processed counter jumped from %d to %d", prev, ev.Processed)
		}
		prev = ev.Processed
		if ev.Type == domain.EventError {
			errorEvents++
			if ev.ItemID != "item-2" {
				t.Errorf("error event item = %s, want item-2", ev.ItemID)
			}
		}
	}
	if errorEvents != 1 {
		t.Errorf("error events = %d, want 1", errorEvents)
	}
}

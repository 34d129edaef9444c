package usecase

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shelfmatch/backend/internal/domain"
)

// RunState describes the lifecycle of a batch run.
type RunState string

const (
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateStopped   RunState = "stopped"
	RunStateFailed    RunState = "failed"
)

// subscriberBuffer bounds the per-subscriber event queue. A subscriber that
// falls this far behind loses events rather than stalling the run.
const subscriberBuffer = 256

// RunOptions override the scheduler defaults for one run.
type RunOptions struct {
	Concurrency    int           `json:"concurrency,omitempty"`
	AdmissionBatch int           `json:"admissionBatch,omitempty"`
	AdmissionDelay time.Duration `json:"admissionDelay,omitempty"`
	ItemTimeout    time.Duration `json:"itemTimeout,omitempty"`
}

// RunStatus is a point-in-time view of one run.
type RunStatus struct {
	ID         string                  `json:"runId"`
	State      RunState                `json:"state"`
	Total      int                     `json:"total"`
	Stats      domain.PipelineRunStats `json:"stats"`
	StartedAt  time.Time               `json:"startedAt"`
	FinishedAt *time.Time              `json:"finishedAt,omitempty"`
	Error      string                  `json:"error,omitempty"`
}

type runHandle struct {
	id        string
	total     int
	startedAt time.Time

	stop     chan struct{}
	stopOnce sync.Once

	mu          sync.RWMutex
	state       RunState
	stats       domain.PipelineRunStats
	decisions   []domain.MatchDecision
	finishedAt  *time.Time
	failure     string
	subscribers map[int]chan domain.ProgressEvent
	nextSubID   int
}

// BatchService owns batch runs: it starts them on the scheduler, tracks
// their state, fans progress events out to subscribers, and serves status
// queries. All methods are safe for concurrent use.
type BatchService struct {
	pipeline  *ItemPipeline
	scheduler *Scheduler

	mu   sync.RWMutex
	runs map[string]*runHandle
}

// NewBatchService creates a batch service around one pipeline and scheduler.
func NewBatchService(pipeline *ItemPipeline, scheduler *Scheduler) *BatchService {
	return &BatchService{
		pipeline:  pipeline,
		scheduler: scheduler,
		runs:      make(map[string]*runHandle),
	}
}

// StartRun admits a new batch run and returns its id immediately; the run
// executes on its own goroutine.
func (s *BatchService) StartRun(ctx context.Context, items []domain.DetectionItem, opts RunOptions) (string, error) {
	if len(items) == 0 {
		return "", domain.ErrInvalidItem
	}

	handle := &runHandle{
		id:          uuid.NewString(),
		total:       len(items),
		startedAt:   time.Now(),
		stop:        make(chan struct{}),
		state:       RunStateRunning,
		subscribers: make(map[int]chan domain.ProgressEvent),
	}

	s.mu.Lock()
	s.runs[handle.id] = handle
	s.mu.Unlock()

	scheduler := s.scheduler
	if opts != (RunOptions{}) {
		scheduler = s.schedulerWith(opts)
	}

	// The caller's context usually ends as soon as this returns (an HTTP
	// request context, say); the run must survive it. StopRun is the only
	// way to halt a started run.
	go s.execute(context.WithoutCancel(ctx), handle, items, scheduler)

	return handle.id, nil
}

// schedulerWith derives a scheduler with per-run overrides applied on top
// of the service defaults.
func (s *BatchService) schedulerWith(opts RunOptions) *Scheduler {
	cfg := SchedulerConfig{
		Concurrency:        s.scheduler.concurrency,
		AdmissionBatch:     s.scheduler.admissionBatch,
		AdmissionDelay:     s.scheduler.admissionDelay,
		ItemTimeout:        s.scheduler.itemTimeout,
		EnableDebugLogging: s.scheduler.debug,
	}
	if opts.Concurrency > 0 {
		cfg.Concurrency = opts.Concurrency
	}
	if opts.AdmissionBatch > 0 {
		cfg.AdmissionBatch = opts.AdmissionBatch
	}
	if opts.AdmissionDelay > 0 {
		cfg.AdmissionDelay = opts.AdmissionDelay
	}
	if opts.ItemTimeout > 0 {
		cfg.ItemTimeout = opts.ItemTimeout
	}
	return NewScheduler(cfg)
}

func (s *BatchService) execute(ctx context.Context, handle *runHandle, items []domain.DetectionItem, scheduler *Scheduler) {
	result, err := scheduler.Run(ctx, items, s.pipeline.Process, handle.publish, handle.stop)

	now := time.Now()
	handle.mu.Lock()
	handle.finishedAt = &now
	switch {
	case err != nil:
		handle.state = RunStateFailed
		handle.failure = err.Error()
		if result != nil {
			handle.stats = result.Stats
			handle.decisions = result.Decisions
		}
		log.Printf("[RUNS] run=%s failed: %v", handle.id, err)
	case result.Stopped:
		handle.state = RunStateStopped
		handle.stats = result.Stats
		handle.decisions = result.Decisions
	default:
		handle.state = RunStateCompleted
		handle.stats = result.Stats
		handle.decisions = result.Decisions
	}
	for _, ch := range handle.subscribers {
		close(ch)
	}
	handle.subscribers = make(map[int]chan domain.ProgressEvent)
	handle.mu.Unlock()
}

// StopRun halts admissions for a running run; in-flight items finish and
// still report.
func (s *BatchService) StopRun(id string) error {
	handle, err := s.handle(id)
	if err != nil {
		return err
	}

	handle.mu.RLock()
	running := handle.state == RunStateRunning
	handle.mu.RUnlock()
	if !running {
		return domain.ErrRunFinished
	}

	handle.stopOnce.Do(func() { close(handle.stop) })
	return nil
}

// GetRun returns the current status of a run.
func (s *BatchService) GetRun(id string) (RunStatus, error) {
	handle, err := s.handle(id)
	if err != nil {
		return RunStatus{}, err
	}

	handle.mu.RLock()
	defer handle.mu.RUnlock()
	return RunStatus{
		ID:         handle.id,
		State:      handle.state,
		Total:      handle.total,
		Stats:      handle.stats,
		StartedAt:  handle.startedAt,
		FinishedAt: handle.finishedAt,
		Error:      handle.failure,
	}, nil
}

// Decisions returns the terminal decisions of a finished run, in
// completion order. For a run still in progress the slice is empty.
func (s *BatchService) Decisions(id string) ([]domain.MatchDecision, error) {
	handle, err := s.handle(id)
	if err != nil {
		return nil, err
	}

	handle.mu.RLock()
	defer handle.mu.RUnlock()
	out := make([]domain.MatchDecision, len(handle.decisions))
	copy(out, handle.decisions)
	return out, nil
}

// Subscribe attaches a progress event listener to a run. The returned
// channel closes when the run finishes or cancel is called. Events to a
// full subscriber queue are dropped, never blocking the scheduler.
func (s *BatchService) Subscribe(id string) (<-chan domain.ProgressEvent, func(), error) {
	handle, err := s.handle(id)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan domain.ProgressEvent, subscriberBuffer)

	handle.mu.Lock()
	if handle.state != RunStateRunning {
		snap := handle.stats
		total := handle.total
		handle.mu.Unlock()
		// Run already finished: deliver a terminal snapshot and close.
		ch <- domain.ProgressEvent{
			Type:      domain.EventComplete,
			Processed: snap.Processed,
			Total:     total,
			Success:   snap.Success,
			NoMatch:   snap.NoMatch,
			Errors:    snap.Errors,
		}
		close(ch)
		return ch, func() {}, nil
	}
	subID := handle.nextSubID
	handle.nextSubID++
	handle.subscribers[subID] = ch
	handle.mu.Unlock()

	cancel := func() {
		handle.mu.Lock()
		if sub, ok := handle.subscribers[subID]; ok {
			delete(handle.subscribers, subID)
			close(sub)
		}
		handle.mu.Unlock()
	}

	return ch, cancel, nil
}

func (s *BatchService) handle(id string) (*runHandle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	handle, ok := s.runs[id]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	return handle, nil
}

// publish records the latest counters and fans the event out. Called from
// the scheduler loop in completion order.
func (h *runHandle) publish(ev domain.ProgressEvent) {
	h.mu.Lock()
	h.stats = domain.PipelineRunStats{
		Processed: ev.Processed,
		Success:   ev.Success,
		NoMatch:   ev.NoMatch,
		Errors:    ev.Errors,
	}
	for _, ch := range h.subscribers {
		select {
		case ch <- ev:
		default: // slow subscriber, drop rather than stall the run
		}
	}
	h.mu.Unlock()
}

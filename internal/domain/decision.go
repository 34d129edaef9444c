package domain

// MatchOutcome is the terminal state of one item's pipeline run.
type MatchOutcome string

const (
	OutcomeAutoSaved    MatchOutcome = "auto_saved"
	OutcomeManualReview MatchOutcome = "needs_manual_review"
	OutcomeNoMatch      MatchOutcome = "no_match"
	OutcomeError        MatchOutcome = "error"
)

// SelectionMethod records how an auto-saved candidate was chosen.
type SelectionMethod string

const (
	SelectionAutoSelect    SelectionMethod = "auto_select"
	SelectionConsolidation SelectionMethod = "consolidation"
	SelectionVisualMatch   SelectionMethod = "visual_matching"
)

// Pipeline stage names recorded on decisions and progress events.
const (
	StageValidate  = "validate"
	StageRetrieve  = "retrieve"
	StagePreFilter = "prefilter"
	StageClassify  = "classify"
	StageDecide    = "decide"
)

// MatchDecision is the single terminal result produced for a DetectionItem.
// Exactly one decision exists per item; it is immutable once produced.
type MatchDecision struct {
	ItemID          string                `json:"itemId"`
	Outcome         MatchOutcome          `json:"outcome"`
	SelectionMethod SelectionMethod       `json:"selectionMethod,omitempty"` // set only when auto_saved
	Selected        *ClassifiedCandidate  `json:"selected,omitempty"`        // singular, only when auto_saved
	Alternatives    []ClassifiedCandidate `json:"alternatives,omitempty"`    // retained for manual review
	Stage           string                `json:"stage,omitempty"`           // pipeline stage the item terminated at
	FailureReason   string                `json:"failureReason,omitempty"`   // set only when outcome is error
}

// ProgressEventType distinguishes the events on the progress stream.
type ProgressEventType string

const (
	EventProgress ProgressEventType = "progress"
	EventComplete ProgressEventType = "complete"
	EventError    ProgressEventType = "error"
)

// ProgressEvent is emitted once per item completion (in completion order)
// plus a final complete event for the run.
type ProgressEvent struct {
	Type      ProgressEventType `json:"type"`
	Processed int64             `json:"processed"`
	Total     int               `json:"total"`
	Success   int64             `json:"cumulativeSuccess"`
	NoMatch   int64             `json:"cumulativeNoMatch"`
	Errors    int64             `json:"cumulativeErrors"`
	ItemID    string            `json:"currentItemId,omitempty"`
	Stage     string            `json:"stage,omitempty"`
}

// PipelineRunStats are cumulative counters for one batch run. All fields are
// monotonically non-decreasing for the duration of the run.
type PipelineRunStats struct {
	Processed int64 `json:"processed"`
	Success   int64 `json:"success"`
	NoMatch   int64 `json:"noMatch"`
	Errors    int64 `json:"errors"`
}

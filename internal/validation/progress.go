package validation

import "github.com/Really-Great-Tech/expense-ai-sub001/internal/models"

// ProgressKind identifies a validation lifecycle event.
type ProgressKind string

const (
	ProgressRunStarted         ProgressKind = "run_started"
	ProgressDimensionStarted   ProgressKind = "dimension_started"
	ProgressJudgeCompleted     ProgressKind = "judge_completed"
	ProgressDimensionCompleted ProgressKind = "dimension_completed"
	ProgressFallbackTriggered  ProgressKind = "fallback_triggered"
	ProgressRunCompleted       ProgressKind = "run_completed"
)

// ProgressEvent is one validation lifecycle event. Fields beyond Kind are
// populated when they apply.
type ProgressEvent struct {
	Kind      ProgressKind
	JobID     string
	Dimension models.EvaluationDimension
	Judge     string
	Succeeded bool
	Err       error
}

// ProgressListener receives lifecycle events. Listeners must be fast and
// must not block; they may be invoked from concurrent worker tasks.
type ProgressListener func(ProgressEvent)

// notify fans one event out to every listener.
func notify(listeners []ProgressListener, event ProgressEvent) {
	for _, l := range listeners {
		l(event)
	}
}

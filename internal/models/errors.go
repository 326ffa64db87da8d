package models

import "fmt"

// InvalidDimensionError indicates an unknown dimension was requested. This is
// a programmer error: the dimension set is closed.
type InvalidDimensionError struct {
	Dimension string
}

func (e *InvalidDimensionError) Error() string {
	return fmt.Sprintf("invalid evaluation dimension %q", e.Dimension)
}

// ConfidenceOutOfRangeError indicates a confidence score outside [0,1] was
// about to be constructed. Scores are never silently clamped: an out-of-range
// value signals a bug in score extraction, not bad model output.
type ConfidenceOutOfRangeError struct {
	Score  float64
	Source string
}

func (e *ConfidenceOutOfRangeError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("confidence score %v from %s is outside [0,1]", e.Score, e.Source)
	}
	return fmt.Sprintf("confidence score %v is outside [0,1]", e.Score)
}

// ValidationTimeoutError indicates the run as a whole could not complete.
type ValidationTimeoutError struct {
	Cause error
}

func (e *ValidationTimeoutError) Error() string {
	return fmt.Sprintf("validation run timed out: %v", e.Cause)
}

func (e *ValidationTimeoutError) Unwrap() error { return e.Cause }

// JudgeUnavailableError indicates a judge's model capability failed before
// producing any text.
type JudgeUnavailableError struct {
	Judge string
	Cause error
}

func (e *JudgeUnavailableError) Error() string {
	return fmt.Sprintf("judge %q unavailable: %v", e.Judge, e.Cause)
}

func (e *JudgeUnavailableError) Unwrap() error { return e.Cause }

// InsufficientDataError indicates fewer than the minimum number of dimensions
// succeeded and sequential fallback was disabled.
type InsufficientDataError struct {
	Succeeded int
	Required  int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %d of %d required dimensions succeeded", e.Succeeded, e.Required)
}

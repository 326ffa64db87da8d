package models

import (
	"github.com/Really-Great-Tech/expense-ai-sub001/internal/statistics"
)

// Issue is one flaw identified in the analysis being judged. Issues are
// extracted from the analysis payload before scoring and are referenced by
// positional index throughout a dimension's evaluation.
type Issue struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// JudgeVerdict is one judge's raw output for one dimension.
type JudgeVerdict struct {
	ModelName       string  `json:"model_name"`
	ConfidenceScore float64 `json:"confidence_score"`
	RawText         string  `json:"raw_text"`
	Succeeded       bool    `json:"succeeded"`
}

// NeutralIssueScore is the fallback when a judge's text cannot be parsed into
// an issue-indexed score. Parse failure is never fatal to the run.
const NeutralIssueScore = 50

// IssueScore is a judge's opinion on a single issue within a single dimension,
// on a 0-100 scale.
type IssueScore struct {
	IssueIndex      int                 `json:"issue_index"`
	ValidationScore int                 `json:"validation_score"`
	Explanation     string              `json:"explanation"`
	Dimension       EvaluationDimension `json:"dimension"`
}

// Reliability is a qualitative summary of score consensus for a dimension or
// a whole run.
type Reliability string

const (
	ReliabilityHigh   Reliability = "high"
	ReliabilityMedium Reliability = "medium"
	ReliabilityLow    Reliability = "low"
)

// Reliability thresholds for [0,1]-scale confidence scores. These are
// calibration constants carried over from production tuning, not derived
// bounds.
const (
	highConfidenceMean = 0.8
	highConfidenceVar  = 0.04
	lowConfidenceMean  = 0.3
	lowConfidenceVar   = 0.25
)

// ReliabilityFromScores derives the reliability label for a set of [0,1]
// confidence scores: high needs a strong mean and tight agreement, low means
// either a weak mean or wide disagreement.
func ReliabilityFromScores(scores []float64) Reliability {
	mean := statistics.Mean(scores)
	variance := statistics.Variance(scores)

	switch {
	case mean >= highConfidenceMean && variance <= highConfidenceVar:
		return ReliabilityHigh
	case mean <= lowConfidenceMean || variance >= lowConfidenceVar:
		return ReliabilityLow
	default:
		return ReliabilityMedium
	}
}

// DimensionResult is the outcome of evaluating one dimension with a panel of
// judges. Immutable after construction via NewDimensionResult.
type DimensionResult struct {
	Dimension       EvaluationDimension `json:"dimension"`
	ConfidenceScore float64             `json:"confidence_score"`
	Issues          []string            `json:"issues"`
	Summary         string              `json:"summary"`
	Reliability     Reliability         `json:"reliability"`
	JudgeDetails    []JudgeVerdict      `json:"judge_details"`
	IssueScores     []IssueScore        `json:"issue_scores,omitempty"`
}

// NewDimensionResult builds a DimensionResult from per-judge verdicts. The
// confidence score is the arithmetic mean over every verdict: failed judges
// contribute 0.0 rather than being excluded, which directly penalizes a
// dimension whose panel partially failed. A verdict score outside [0,1]
// returns ConfidenceOutOfRangeError: it signals an extraction bug and must
// never be clamped.
func NewDimensionResult(
	dimension EvaluationDimension,
	verdicts []JudgeVerdict,
	issues []string,
	summary string,
	issueScores []IssueScore,
) (*DimensionResult, error) {
	if !dimension.Valid() {
		return nil, &InvalidDimensionError{Dimension: string(dimension)}
	}

	scores := make([]float64, 0, len(verdicts))
	for _, v := range verdicts {
		if v.ConfidenceScore < 0.0 || v.ConfidenceScore > 1.0 {
			return nil, &ConfidenceOutOfRangeError{Score: v.ConfidenceScore, Source: v.ModelName}
		}
		scores = append(scores, v.ConfidenceScore)
	}

	return &DimensionResult{
		Dimension:       dimension,
		ConfidenceScore: statistics.Mean(scores),
		Issues:          issues,
		Summary:         summary,
		Reliability:     ReliabilityFromScores(scores),
		JudgeDetails:    verdicts,
		IssueScores:     issueScores,
	}, nil
}

// Succeeded reports whether at least one judge in the panel produced a
// verdict. A dimension where every judge failed counts as a failed dimension
// for the orchestrator's degradation policy.
func (d *DimensionResult) Succeeded() bool {
	for _, v := range d.JudgeDetails {
		if v.Succeeded {
			return true
		}
	}
	return false
}

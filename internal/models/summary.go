package models

import (
	"encoding/json"
	"time"

	"github.com/Really-Great-Tech/expense-ai-sub001/internal/statistics"
)

// Reliability thresholds for [0,100]-scale aggregated issue scores. Like the
// [0,1]-scale thresholds these are calibration constants preserved verbatim.
const (
	issueHighScore = 80.0
	issueHighVar   = 100.0
	issueLowScore  = 30.0
	issueLowVar    = 400.0
)

// AggregatedIssueValidation is one row per issue index: the issue's scores
// across all dimensions rolled into a single 0-100 value using the fixed
// per-dimension priority weights.
type AggregatedIssueValidation struct {
	IssueIndex      int                         `json:"issue_index"`
	OverallScore    float64                     `json:"overall_score"`
	Reliability     Reliability                 `json:"reliability"`
	DimensionScores map[EvaluationDimension]int `json:"dimension_scores"`
	Explanations    []string                    `json:"explanations,omitempty"`
}

// AggregateIssueScores rolls per-dimension issue scores into one row per
// issue index. Each dimension's score is weighted by that dimension's
// priority weight; reliability is derived from the weighted aggregate and the
// unweighted cross-dimension variance.
func AggregateIssueScores(scores []IssueScore) []AggregatedIssueValidation {
	if len(scores) == 0 {
		return nil
	}

	byIssue := make(map[int][]IssueScore)
	maxIndex := 0
	for _, s := range scores {
		byIssue[s.IssueIndex] = append(byIssue[s.IssueIndex], s)
		if s.IssueIndex > maxIndex {
			maxIndex = s.IssueIndex
		}
	}

	var rows []AggregatedIssueValidation
	for idx := 0; idx <= maxIndex; idx++ {
		group, ok := byIssue[idx]
		if !ok {
			continue
		}

		weightedSum := 0.0
		weightTotal := 0.0
		raw := make([]float64, 0, len(group))
		dimScores := make(map[EvaluationDimension]int, len(group))
		var explanations []string

		for _, s := range group {
			w := float64(s.Dimension.PriorityWeight())
			weightedSum += float64(s.ValidationScore) * w
			weightTotal += w
			raw = append(raw, float64(s.ValidationScore))
			dimScores[s.Dimension] = s.ValidationScore
			if s.Explanation != "" {
				explanations = append(explanations, s.Explanation)
			}
		}

		if weightTotal == 0 {
			continue
		}

		overall := weightedSum / weightTotal
		rows = append(rows, AggregatedIssueValidation{
			IssueIndex:      idx,
			OverallScore:    overall,
			Reliability:     issueReliability(overall, statistics.Variance(raw)),
			DimensionScores: dimScores,
			Explanations:    explanations,
		})
	}

	return rows
}

func issueReliability(score, variance float64) Reliability {
	switch {
	case score >= issueHighScore && variance <= issueHighVar:
		return ReliabilityHigh
	case score <= issueLowScore || variance >= issueLowVar:
		return ReliabilityLow
	default:
		return ReliabilityMedium
	}
}

// ValidationSummary is the top-level caller-visible result of one validation
// run. Built fresh per call and never mutated after return.
type ValidationSummary struct {
	JobID              string                           `json:"job_id,omitempty"`
	OverallScore       float64                          `json:"overall_score"`
	OverallReliability Reliability                      `json:"overall_reliability"`
	DimensionResults   []DimensionResult                `json:"dimension_results"`
	CriticalIssues     []string                         `json:"critical_issues"`
	Recommendations    []string                         `json:"recommendations"`
	IssueValidations   []AggregatedIssueValidation      `json:"issue_validations,omitempty"`
	ConfidenceInterval *statistics.ConfidenceInterval   `json:"confidence_interval,omitempty"`
	Mode               string                           `json:"mode"`
	StartedAt          time.Time                        `json:"started_at"`
	DurationMs         int64                            `json:"duration_ms"`
	Metadata           map[string]any                   `json:"metadata,omitempty"`
}

// OverallReliabilityVote derives the run-level reliability label by majority
// vote over dimension reliabilities. Ties break toward the stronger label so
// a split panel reads as high rather than low.
func OverallReliabilityVote(results []DimensionResult) Reliability {
	counts := map[Reliability]int{}
	for _, r := range results {
		counts[r.Reliability]++
	}

	best := ReliabilityLow
	bestCount := -1
	// Order matters: with equal counts the earlier entry wins.
	for _, label := range []Reliability{ReliabilityHigh, ReliabilityMedium, ReliabilityLow} {
		if counts[label] > bestCount {
			best = label
			bestCount = counts[label]
		}
	}
	return best
}

// ToMap converts the summary to a plain nested map for the surrounding
// transport layer.
func (s *ValidationSummary) ToMap() (map[string]any, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

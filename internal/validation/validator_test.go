package validation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Really-Great-Tech/expense-ai-sub001/internal/llm"
	"github.com/Really-Great-Tech/expense-ai-sub001/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goodVerdictText = `CONFIDENCE_SCORE: 85
SUMMARY: The analysis is well grounded in the receipt data.
ISSUES:
- rounding on the total is not called out
ISSUE_0_SCORE: 90
ISSUE_0_EXPLANATION: the VAT number really is absent
ISSUE_1_SCORE: 40
ISSUE_1_EXPLANATION: totals actually reconcile
`

func TestValidate_HappyPath(t *testing.T) {
	judges := []llm.Client{
		llm.NewScriptedClient("model-a", goodVerdictText),
		llm.NewScriptedClient("model-b", goodVerdictText),
		llm.NewScriptedClient("model-c", goodVerdictText),
	}
	v, err := New(judges)
	require.NoError(t, err)

	summary, err := v.Validate(context.Background(), sampleRequest())
	require.NoError(t, err)

	require.Len(t, summary.DimensionResults, 6)
	assert.InDelta(t, 0.85, summary.OverallScore, 1e-9)
	assert.Equal(t, models.ReliabilityHigh, summary.OverallReliability)
	assert.Equal(t, ModeSequential, summary.Mode)
	require.NotNil(t, summary.ConfidenceInterval)

	// Two issues in the payload, so every dimension carries issue scores and
	// the aggregate has one row per index.
	require.Len(t, summary.IssueValidations, 2)
	assert.InDelta(t, 90.0, summary.IssueValidations[0].OverallScore, 1e-9)
	assert.InDelta(t, 40.0, summary.IssueValidations[1].OverallScore, 1e-9)

	// Unanimous high confidence: nothing critical.
	assert.Empty(t, summary.CriticalIssues)
	assert.Empty(t, summary.Recommendations)
}

func TestValidate_FailedJudgeContributesZero(t *testing.T) {
	cause := errors.New("rate limited")
	judges := []llm.Client{
		llm.NewScriptedClient("model-a", goodVerdictText),
		llm.NewFailingClient("model-b", cause),
		llm.NewScriptedClient("model-c", goodVerdictText),
	}
	v, err := New(judges)
	require.NoError(t, err)

	summary, err := v.Validate(context.Background(), sampleRequest())
	require.NoError(t, err)

	dim := summary.DimensionResults[0]
	require.Len(t, dim.JudgeDetails, 3)
	assert.False(t, dim.JudgeDetails[1].Succeeded)
	assert.InDelta(t, (0.85+0+0.85)/3, dim.ConfidenceScore, 1e-9)

	// The failed judge's error surfaces as a dimension issue.
	found := false
	for _, issue := range dim.Issues {
		if issue == "judge model-b failed: rate limited" {
			found = true
		}
	}
	assert.True(t, found, "expected the judge failure recorded as an issue, got %v", dim.Issues)
}

func TestValidate_AllJudgesFail(t *testing.T) {
	cause := errors.New("connection refused")
	judges := []llm.Client{
		llm.NewFailingClient("model-a", cause),
		llm.NewFailingClient("model-b", cause),
	}
	v, err := New(judges)
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), sampleRequest())
	require.Error(t, err)

	var unavailable *models.JudgeUnavailableError
	require.ErrorAs(t, err, &unavailable)
}

func TestJudgeDimension_RetriesThenDefaultsToZero(t *testing.T) {
	client := llm.NewScriptedClient("model-a", "I cannot answer that.")
	v, err := New([]llm.Client{client}, WithExtractionRetries(2))
	require.NoError(t, err)

	verdict, scores := v.JudgeDimension(context.Background(), client, "prompt", models.DimensionFactualGrounding, 0)
	assert.True(t, verdict.Succeeded)
	assert.Equal(t, 0.0, verdict.ConfidenceScore)
	assert.Nil(t, scores)
	// initial ask + 2 retries
	assert.Equal(t, 3, client.CallCount())
}

func TestValidate_MalformedPayloadFailsFast(t *testing.T) {
	v, err := New([]llm.Client{llm.NewScriptedClient("model-a", goodVerdictText)})
	require.NoError(t, err)

	req := sampleRequest()
	req.AIResponseJSON = `{"wrong": "shape"}`
	_, err = v.Validate(context.Background(), req)
	require.Error(t, err)
}

func TestValidate_ProgressEvents(t *testing.T) {
	var events []ProgressEvent
	judges := []llm.Client{
		llm.NewScriptedClient("model-a", goodVerdictText),
		llm.NewScriptedClient("model-b", goodVerdictText),
	}
	v, err := New(judges, WithProgressListener(func(e ProgressEvent) {
		events = append(events, e)
	}))
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), sampleRequest())
	require.NoError(t, err)

	counts := map[ProgressKind]int{}
	for _, e := range events {
		counts[e.Kind]++
	}
	assert.Equal(t, 1, counts[ProgressRunStarted])
	assert.Equal(t, 6, counts[ProgressDimensionStarted])
	assert.Equal(t, 12, counts[ProgressJudgeCompleted])
	assert.Equal(t, 6, counts[ProgressDimensionCompleted])
	assert.Equal(t, 1, counts[ProgressRunCompleted])
}

func TestBuildSummary_CriticalIssuesAndRecommendations(t *testing.T) {
	low, err := models.NewDimensionResult(
		models.DimensionComplianceAccuracy,
		[]models.JudgeVerdict{
			{ModelName: "a", ConfidenceScore: 0.1, Succeeded: true},
			{ModelName: "b", ConfidenceScore: 0.2, Succeeded: true},
		},
		[]string{"compliance call is wrong"}, "weak", nil)
	require.NoError(t, err)

	high, err := models.NewDimensionResult(
		models.DimensionFactualGrounding,
		[]models.JudgeVerdict{
			{ModelName: "a", ConfidenceScore: 0.9, Succeeded: true},
			{ModelName: "b", ConfidenceScore: 0.9, Succeeded: true},
		},
		nil, "solid", nil)
	require.NoError(t, err)

	v, err := New([]llm.Client{llm.NewScriptedClient("a")})
	require.NoError(t, err)

	summary := v.BuildSummary([]models.DimensionResult{*low, *high}, ModeSequential, time.Now())
	assert.Equal(t, []string{"compliance call is wrong"}, summary.CriticalIssues)
	require.Len(t, summary.Recommendations, 1)
	assert.Contains(t, summary.Recommendations[0], "compliance_accuracy")
}

func TestBuildSummary_DeterministicBootstrap(t *testing.T) {
	results := []models.DimensionResult{
		{Dimension: models.DimensionFactualGrounding, ConfidenceScore: 0.8, Reliability: models.ReliabilityHigh},
		{Dimension: models.DimensionComplianceAccuracy, ConfidenceScore: 0.6, Reliability: models.ReliabilityMedium},
	}

	v, err := New([]llm.Client{llm.NewScriptedClient("a")}, WithBootstrapSeed(99))
	require.NoError(t, err)

	s1 := v.BuildSummary(results, ModeSequential, time.Now())
	s2 := v.BuildSummary(results, ModeSequential, time.Now())
	require.NotNil(t, s1.ConfidenceInterval)
	assert.Equal(t, *s1.ConfidenceInterval, *s2.ConfidenceInterval)
}

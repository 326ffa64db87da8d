package orchestration

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Really-Great-Tech/expense-ai-sub001/internal/llm"
	"github.com/Really-Great-Tech/expense-ai-sub001/internal/models"
	"github.com/Really-Great-Tech/expense-ai-sub001/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goodVerdictText = `CONFIDENCE_SCORE: 85
SUMMARY: The analysis is well grounded.
ISSUES:
- rounding on the total is not called out
ISSUE_0_SCORE: 90
ISSUE_0_EXPLANATION: the VAT number really is absent
`

func testRequest() *validation.Request {
	return &validation.Request{
		AIResponseJSON: `{
			"compliance_status": "non_compliant",
			"issues": [{"type": "missing_field", "description": "VAT number absent"}]
		}`,
		Country:             "DE",
		ReceiptType:         "restaurant",
		ComplianceRulesJSON: `{"vat_number_required": true}`,
		ExtractedDataJSON:   `{"total": "84.50"}`,
	}
}

// selectiveJudge succeeds only for dimensions whose instruction contains one
// of the given markers, and fails the model call for every other dimension.
func selectiveJudge(model string, okMarkers ...string) llm.Client {
	return llm.NewFuncClient(model, func(ctx context.Context, messages []llm.Message) (string, error) {
		prompt := messages[len(messages)-1].Content
		for _, marker := range okMarkers {
			if strings.Contains(prompt, marker) {
				return goodVerdictText, nil
			}
		}
		return "", errors.New("model overloaded")
	})
}

func healthyPanel() []llm.Client {
	return []llm.Client{
		llm.NewScriptedClient("model-a", goodVerdictText),
		llm.NewScriptedClient("model-b", goodVerdictText),
		llm.NewScriptedClient("model-c", goodVerdictText),
	}
}

func TestIsReady(t *testing.T) {
	o, err := New(healthyPanel())
	require.NoError(t, err)
	assert.True(t, o.IsReady())

	o, err = New(healthyPanel(), WithParallel(false))
	require.NoError(t, err)
	assert.False(t, o.IsReady())

	o, err = New([]llm.Client{llm.NewScriptedClient("solo", goodVerdictText)})
	require.NoError(t, err)
	assert.False(t, o.IsReady())

	o, err = New(healthyPanel(), WithDimensionConcurrency(1))
	require.NoError(t, err)
	assert.False(t, o.IsReady())

	// Readiness follows runtime limiter changes.
	o, err = New(healthyPanel())
	require.NoError(t, err)
	o.DimensionLimiter().SetLimit(1)
	assert.False(t, o.IsReady())
}

func TestValidate_ParallelHappyPath(t *testing.T) {
	o, err := New(healthyPanel(), WithCallsPerSecond(1000))
	require.NoError(t, err)

	summary, err := o.Validate(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, validation.ModeParallel, summary.Mode)
	require.Len(t, summary.DimensionResults, 6)
	assert.InDelta(t, 0.85, summary.OverallScore, 1e-9)

	// Output order is deterministic regardless of completion order.
	for i, dim := range models.AllDimensions() {
		assert.Equal(t, dim, summary.DimensionResults[i].Dimension)
	}
}

func TestValidate_SequentialWhenNotReady(t *testing.T) {
	o, err := New(healthyPanel(), WithParallel(false), WithCallsPerSecond(1000))
	require.NoError(t, err)

	summary, err := o.Validate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, validation.ModeSequential, summary.Mode)
}

func TestValidate_FallbackMatchesSequential(t *testing.T) {
	// Four of six dimensions fail every judge call, so the parallel run
	// degrades and the fallback output must equal a direct sequential run
	// over the same inputs.
	makeJudges := func() []llm.Client {
		return []llm.Client{
			selectiveJudge("model-a", "FACTUAL GROUNDING", "KNOWLEDGE BASE ADHERENCE"),
			selectiveJudge("model-b", "FACTUAL GROUNDING", "KNOWLEDGE BASE ADHERENCE"),
			selectiveJudge("model-c", "FACTUAL GROUNDING", "KNOWLEDGE BASE ADHERENCE"),
		}
	}

	o, err := New(makeJudges(), WithCallsPerSecond(1000), WithBootstrapSeed(7))
	require.NoError(t, err)

	var sawFallback bool
	oListen, err := New(makeJudges(), WithCallsPerSecond(1000), WithBootstrapSeed(7),
		WithProgressListener(func(e validation.ProgressEvent) {
			if e.Kind == validation.ProgressFallbackTriggered {
				sawFallback = true
			}
		}))
	require.NoError(t, err)

	fromFallback, err := o.Validate(context.Background(), testRequest())
	require.NoError(t, err)
	_, err = oListen.Validate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.True(t, sawFallback)

	sequential, err := validation.New(makeJudges(), validation.WithBootstrapSeed(7))
	require.NoError(t, err)
	direct, err := sequential.Validate(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, validation.ModeSequential, fromFallback.Mode)

	// Timing fields necessarily differ between runs.
	normalize := func(s *models.ValidationSummary) models.ValidationSummary {
		c := *s
		c.StartedAt = direct.StartedAt
		c.DurationMs = direct.DurationMs
		return c
	}
	assert.Equal(t, normalize(direct), normalize(fromFallback))
}

func TestValidate_FallbackEmitsBalancedRunEvents(t *testing.T) {
	var mu sync.Mutex
	counts := map[validation.ProgressKind]int{}

	judges := []llm.Client{
		selectiveJudge("model-a", "FACTUAL GROUNDING", "KNOWLEDGE BASE ADHERENCE"),
		selectiveJudge("model-b", "FACTUAL GROUNDING", "KNOWLEDGE BASE ADHERENCE"),
		selectiveJudge("model-c", "FACTUAL GROUNDING", "KNOWLEDGE BASE ADHERENCE"),
	}
	o, err := New(judges, WithCallsPerSecond(1000),
		WithProgressListener(func(e validation.ProgressEvent) {
			mu.Lock()
			defer mu.Unlock()
			counts[e.Kind]++
		}))
	require.NoError(t, err)

	_, err = o.Validate(context.Background(), testRequest())
	require.NoError(t, err)

	// One Validate call is one run: a single started/completed pair even when
	// the parallel attempt degrades into the sequential pass.
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, counts[validation.ProgressRunStarted])
	assert.Equal(t, 1, counts[validation.ProgressFallbackTriggered])
	assert.Equal(t, 1, counts[validation.ProgressRunCompleted])
	// Both passes ran all six dimensions.
	assert.Equal(t, 12, counts[validation.ProgressDimensionStarted])
}

func TestValidate_SequentialPathEmitsRunEvents(t *testing.T) {
	var mu sync.Mutex
	counts := map[validation.ProgressKind]int{}

	o, err := New(healthyPanel(), WithParallel(false), WithCallsPerSecond(1000),
		WithProgressListener(func(e validation.ProgressEvent) {
			mu.Lock()
			defer mu.Unlock()
			counts[e.Kind]++
		}))
	require.NoError(t, err)

	_, err = o.Validate(context.Background(), testRequest())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, counts[validation.ProgressRunStarted])
	assert.Equal(t, 1, counts[validation.ProgressRunCompleted])
}

func TestNew_RateLimitsJudgesOnEveryPath(t *testing.T) {
	o, err := New(healthyPanel(), WithCallsPerSecond(2))
	require.NoError(t, err)

	// The panel is wrapped once at construction, and the sequential validator
	// shares the wrapped clients, so the fallback path pays the same rate
	// limit as the parallel path.
	require.Len(t, o.validator.Judges(), 3)
	for i, j := range o.validator.Judges() {
		require.IsType(t, &rateLimitedClient{}, j)
		assert.Same(t, o.judges[i], j)
	}
}

func TestValidate_SharedRateLimiterBoundsRun(t *testing.T) {
	// 18 judge calls against a 15-token bucket leave three calls paying the
	// refill interval, so a full parallel run cannot finish instantly.
	o, err := New(healthyPanel(), WithCallsPerSecond(15))
	require.NoError(t, err)

	start := time.Now()
	_, err = o.Validate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestValidate_InsufficientDataWithoutFallback(t *testing.T) {
	judges := []llm.Client{
		selectiveJudge("model-a", "FACTUAL GROUNDING", "KNOWLEDGE BASE ADHERENCE"),
		selectiveJudge("model-b", "FACTUAL GROUNDING", "KNOWLEDGE BASE ADHERENCE"),
	}
	o, err := New(judges, WithFallback(false), WithCallsPerSecond(1000))
	require.NoError(t, err)

	_, err = o.Validate(context.Background(), testRequest())
	require.Error(t, err)

	var insufficient *models.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 2, insufficient.Succeeded)
	assert.Equal(t, 3, insufficient.Required)
}

func TestValidate_CanceledContextReportsTimeout(t *testing.T) {
	o, err := New(healthyPanel(), WithCallsPerSecond(1000))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = o.Validate(ctx, testRequest())
	require.Error(t, err)

	var timeout *models.ValidationTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestValidate_ErrorDimensionCarriesMessage(t *testing.T) {
	// Every dimension fails, fallback disabled but the minimum lowered to
	// zero, so the error dimensions surface in the summary itself.
	judges := []llm.Client{
		llm.NewFailingClient("model-a", errors.New("boom")),
		llm.NewFailingClient("model-b", errors.New("boom")),
	}
	o, err := New(judges, WithFallback(false), WithMinSuccessfulDimensions(0), WithCallsPerSecond(1000))
	require.NoError(t, err)

	summary, err := o.Validate(context.Background(), testRequest())
	require.NoError(t, err)

	for _, dim := range summary.DimensionResults {
		assert.False(t, dim.Succeeded())
		assert.Equal(t, models.ReliabilityLow, dim.Reliability)
		assert.Equal(t, 0.0, dim.ConfidenceScore)
	}
}

func TestValidate_ProgressEventsSerialized(t *testing.T) {
	var mu sync.Mutex
	counts := map[validation.ProgressKind]int{}

	o, err := New(healthyPanel(), WithCallsPerSecond(1000),
		WithProgressListener(func(e validation.ProgressEvent) {
			mu.Lock()
			defer mu.Unlock()
			counts[e.Kind]++
		}))
	require.NoError(t, err)

	_, err = o.Validate(context.Background(), testRequest())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, counts[validation.ProgressRunStarted])
	assert.Equal(t, 6, counts[validation.ProgressDimensionStarted])
	assert.Equal(t, 18, counts[validation.ProgressJudgeCompleted])
	assert.Equal(t, 6, counts[validation.ProgressDimensionCompleted])
	assert.Equal(t, 1, counts[validation.ProgressRunCompleted])
}

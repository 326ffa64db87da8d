package validation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Really-Great-Tech/expense-ai-sub001/internal/extract"
	"github.com/Really-Great-Tech/expense-ai-sub001/internal/llm"
	"github.com/Really-Great-Tech/expense-ai-sub001/internal/models"
	"github.com/Really-Great-Tech/expense-ai-sub001/internal/statistics"
)

// DefaultExtractionRetries is how many times a judge is re-asked the same
// dimension prompt when no confidence score can be extracted from its reply.
const DefaultExtractionRetries = 5

// ModeSequential and ModeParallel label which execution path produced a
// summary.
const (
	ModeSequential = "sequential"
	ModeParallel   = "parallel"
)

// Validator runs the six dimensions strictly one after another, each with the
// same judge panel. It is the baseline the parallel orchestrator falls back
// to.
type Validator struct {
	judges        []llm.Client
	retries       int
	bootstrapSeed int64
	listeners     []ProgressListener
}

// Option configures a Validator.
type Option func(*Validator)

// WithExtractionRetries overrides the re-ask budget for replies with no
// parseable confidence score.
func WithExtractionRetries(n int) Option {
	return func(v *Validator) {
		if n >= 0 {
			v.retries = n
		}
	}
}

// WithBootstrapSeed fixes the seed of the confidence-interval bootstrap so
// repeated runs over the same verdicts reproduce.
func WithBootstrapSeed(seed int64) Option {
	return func(v *Validator) { v.bootstrapSeed = seed }
}

// WithProgressListener subscribes a listener to lifecycle events.
func WithProgressListener(l ProgressListener) Option {
	return func(v *Validator) {
		if l != nil {
			v.listeners = append(v.listeners, l)
		}
	}
}

// New builds a sequential validator over the given judge panel.
func New(judges []llm.Client, opts ...Option) (*Validator, error) {
	if len(judges) == 0 {
		return nil, fmt.Errorf("validator needs at least one judge")
	}

	v := &Validator{
		judges:        judges,
		retries:       DefaultExtractionRetries,
		bootstrapSeed: 1,
	}
	for _, o := range opts {
		o(v)
	}
	return v, nil
}

// Judges returns the panel in configuration order.
func (v *Validator) Judges() []llm.Client { return v.judges }

// Validate evaluates one analysis across all six dimensions sequentially.
// Individual judge failures are recovered into zero-confidence verdicts; the
// only errors returned are a malformed request or a run where no judge ever
// produced a verdict.
func (v *Validator) Validate(ctx context.Context, req *Request) (*models.ValidationSummary, error) {
	prepared, err := Prepare(req)
	if err != nil {
		return nil, fmt.Errorf("sequential validation: %w", err)
	}

	notify(v.listeners, ProgressEvent{Kind: ProgressRunStarted})
	summary, err := v.ValidatePrepared(ctx, prepared)
	if err != nil {
		return nil, err
	}
	notify(v.listeners, ProgressEvent{Kind: ProgressRunCompleted, Succeeded: true})
	return summary, nil
}

// ValidatePrepared runs the sequential pass over an already-prepared request.
// The orchestrator uses this entry point when falling back, so the payload is
// not parsed twice. Run-level events are the caller's to emit: a fallback
// invocation belongs to a run the orchestrator already started, and a second
// run_started would leave listeners with unbalanced lifecycle pairs.
func (v *Validator) ValidatePrepared(ctx context.Context, prepared *Prepared) (*models.ValidationSummary, error) {
	startedAt := time.Now()

	results := make([]models.DimensionResult, 0, len(models.AllDimensions()))
	for _, dim := range models.AllDimensions() {
		notify(v.listeners, ProgressEvent{Kind: ProgressDimensionStarted, Dimension: dim})

		result, err := v.EvaluateDimension(ctx, prepared, dim)
		if err != nil {
			return nil, fmt.Errorf("sequential validation of %s: %w", dim, err)
		}
		results = append(results, *result)

		notify(v.listeners, ProgressEvent{
			Kind:      ProgressDimensionCompleted,
			Dimension: dim,
			Succeeded: result.Succeeded(),
		})
	}

	if !anyJudgeSucceeded(results) {
		return nil, fmt.Errorf("sequential validation: %w",
			&models.JudgeUnavailableError{Judge: "all", Cause: firstVerdictError(results)})
	}

	return v.BuildSummary(results, ModeSequential, startedAt), nil
}

// EvaluateDimension runs the whole panel over one dimension's prompt. Judge
// failures become failed verdicts; the returned error is reserved for
// construction bugs such as an out-of-range score.
func (v *Validator) EvaluateDimension(ctx context.Context, prepared *Prepared, dim models.EvaluationDimension) (*models.DimensionResult, error) {
	prompt, ok := prepared.Prompts[dim]
	if !ok {
		return nil, &models.InvalidDimensionError{Dimension: string(dim)}
	}

	verdicts := make([]models.JudgeVerdict, 0, len(v.judges))
	var issueScores []models.IssueScore
	for _, judge := range v.judges {
		verdict, scores := v.JudgeDimension(ctx, judge, prompt, dim, len(prepared.Analysis.Issues))
		verdicts = append(verdicts, verdict)
		issueScores = append(issueScores, scores...)

		notify(v.listeners, ProgressEvent{
			Kind:      ProgressJudgeCompleted,
			Dimension: dim,
			Judge:     verdict.ModelName,
			Succeeded: verdict.Succeeded,
		})
	}

	return BuildDimensionResult(dim, verdicts, issueScores)
}

// JudgeDimension asks one judge to evaluate one dimension. A transport error
// is recovered into a failed verdict carrying the error text; a reply with no
// parseable confidence score is re-asked up to the retry budget and then
// scored 0. Both paths keep the run alive.
func (v *Validator) JudgeDimension(ctx context.Context, judge llm.Client, prompt string, dim models.EvaluationDimension, issueCount int) (models.JudgeVerdict, []models.IssueScore) {
	messages := []llm.Message{{Role: llm.RoleUser, Content: prompt}}

	var raw string
	for attempt := 0; attempt <= v.retries; attempt++ {
		text, err := judge.Chat(ctx, messages)
		if err != nil {
			slog.WarnContext(ctx, "judge call failed",
				"judge", judge.ModelName(),
				"dimension", dim,
				"error", err)
			return models.JudgeVerdict{
				ModelName: judge.ModelName(),
				RawText:   err.Error(),
			}, nil
		}
		raw = text

		if score, ok := extract.ConfidenceScore(text); ok {
			return models.JudgeVerdict{
				ModelName:       judge.ModelName(),
				ConfidenceScore: score,
				RawText:         raw,
				Succeeded:       true,
			}, extract.IssueScores(text, dim, issueCount)
		}

		slog.DebugContext(ctx, "no confidence score extracted, re-asking",
			"judge", judge.ModelName(),
			"dimension", dim,
			"attempt", attempt+1)
	}

	slog.WarnContext(ctx, "confidence extraction failed after retries, defaulting to 0",
		"judge", judge.ModelName(),
		"dimension", dim,
		"retries", v.retries)
	return models.JudgeVerdict{
		ModelName: judge.ModelName(),
		RawText:   raw,
		Succeeded: true,
	}, extract.IssueScores(raw, dim, issueCount)
}

// BuildDimensionResult assembles a DimensionResult from panel verdicts:
// issues and summary come out of the successful judges' free text, the
// confidence mean and reliability out of NewDimensionResult.
func BuildDimensionResult(dim models.EvaluationDimension, verdicts []models.JudgeVerdict, issueScores []models.IssueScore) (*models.DimensionResult, error) {
	var issues []string
	var summary string
	for _, verdict := range verdicts {
		if !verdict.Succeeded {
			issues = append(issues, fmt.Sprintf("judge %s failed: %s", verdict.ModelName, verdict.RawText))
			continue
		}
		issues = append(issues, extract.Issues(verdict.RawText)...)
		if summary == "" {
			summary = extract.Summary(verdict.RawText)
		}
	}

	return models.NewDimensionResult(dim, verdicts, dedupe(issues), summary, issueScores)
}

// BuildSummary rolls per-dimension results into the caller-visible summary.
func (v *Validator) BuildSummary(results []models.DimensionResult, mode string, startedAt time.Time) *models.ValidationSummary {
	scores := make([]float64, 0, len(results))
	var critical []string
	var recommendations []string
	var issueScores []models.IssueScore

	for _, r := range results {
		scores = append(scores, r.ConfidenceScore)
		issueScores = append(issueScores, r.IssueScores...)

		if r.ConfidenceScore < 0.5 || r.Reliability == models.ReliabilityLow {
			critical = append(critical, r.Issues...)
			recommendations = append(recommendations,
				fmt.Sprintf("Manually review the %s assessment; judge consensus was weak", r.Dimension))
		}
	}

	summary := &models.ValidationSummary{
		OverallScore:       statistics.Mean(scores),
		OverallReliability: models.OverallReliabilityVote(results),
		DimensionResults:   results,
		CriticalIssues:     dedupe(critical),
		Recommendations:    recommendations,
		IssueValidations:   models.AggregateIssueScores(issueScores),
		Mode:               mode,
		StartedAt:          startedAt,
		DurationMs:         time.Since(startedAt).Milliseconds(),
	}

	if len(scores) >= 2 {
		ci := statistics.BootstrapCIWithSeed(scores, 0.95, v.bootstrapSeed)
		summary.ConfidenceInterval = &ci
	}
	return summary
}

// anyJudgeSucceeded reports whether at least one verdict anywhere in the run
// came from a live judge.
func anyJudgeSucceeded(results []models.DimensionResult) bool {
	for _, r := range results {
		if r.Succeeded() {
			return true
		}
	}
	return false
}

// firstVerdictError digs out the first failed verdict's message for the
// wrapped total-failure error.
func firstVerdictError(results []models.DimensionResult) error {
	for _, r := range results {
		for _, verdict := range r.JudgeDetails {
			if !verdict.Succeeded && verdict.RawText != "" {
				return fmt.Errorf("%s", verdict.RawText)
			}
		}
	}
	return nil
}

// dedupe removes duplicates preserving first-seen order.
func dedupe(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

package orchestration

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Really-Great-Tech/expense-ai-sub001/internal/llm"
	"github.com/Really-Great-Tech/expense-ai-sub001/internal/models"
	"github.com/Really-Great-Tech/expense-ai-sub001/internal/validation"
)

// Default limiter bounds.
const (
	DefaultDimensionConcurrency = 3
	DefaultJudgeConcurrency     = 3
	DefaultJobConcurrency       = 2
	DefaultCallsPerSecond       = 10.0
	DefaultMinDimensions        = 3
)

// Orchestrator validates with all dimensions concurrent (level 1) and all
// judges within a dimension concurrent (level 2), every model call gated by
// one shared rate limiter, and falls back to the sequential validator when
// too few dimensions succeed.
type Orchestrator struct {
	judges    []llm.Client
	validator *validation.Validator

	parallel      bool
	dimLimiter    *Limiter
	judgeLimiter  *Limiter
	jobLimiter    *Limiter
	rateLimiter   *rate.Limiter
	fallback      bool
	minDimensions int

	progressMu sync.Mutex
	listeners  []validation.ProgressListener
}

// Option configures an Orchestrator.
type Option func(*settings)

// settings collects option values before the limiters are constructed.
type settings struct {
	parallel       bool
	dimConcurrency int
	judgeCap       int
	jobCap         int
	callsPerSecond float64
	fallback       bool
	minDimensions  int
	retries        int
	bootstrapSeed  int64
	listeners      []validation.ProgressListener
}

// WithParallel switches parallel mode on or off.
func WithParallel(enabled bool) Option {
	return func(s *settings) { s.parallel = enabled }
}

// WithDimensionConcurrency bounds how many dimensions run at once.
func WithDimensionConcurrency(n int) Option {
	return func(s *settings) {
		if n >= 1 {
			s.dimConcurrency = n
		}
	}
}

// WithJudgeConcurrency bounds how many judges run at once within a dimension.
func WithJudgeConcurrency(n int) Option {
	return func(s *settings) {
		if n >= 1 {
			s.judgeCap = n
		}
	}
}

// WithJobConcurrency bounds how many batch jobs run at once.
func WithJobConcurrency(n int) Option {
	return func(s *settings) {
		if n >= 1 {
			s.jobCap = n
		}
	}
}

// WithCallsPerSecond sets the shared outbound-call rate limit across the
// whole run.
func WithCallsPerSecond(cps float64) Option {
	return func(s *settings) {
		if cps > 0 {
			s.callsPerSecond = cps
		}
	}
}

// WithFallback switches the degrade-to-sequential policy on or off. When off,
// an under-populated parallel run raises InsufficientData instead.
func WithFallback(enabled bool) Option {
	return func(s *settings) { s.fallback = enabled }
}

// WithMinSuccessfulDimensions sets how many dimensions must succeed before a
// parallel run's output is accepted.
func WithMinSuccessfulDimensions(n int) Option {
	return func(s *settings) {
		if n >= 0 {
			s.minDimensions = n
		}
	}
}

// WithExtractionRetries overrides the per-judge re-ask budget.
func WithExtractionRetries(n int) Option {
	return func(s *settings) {
		if n >= 0 {
			s.retries = n
		}
	}
}

// WithBootstrapSeed fixes the confidence-interval bootstrap seed.
func WithBootstrapSeed(seed int64) Option {
	return func(s *settings) { s.bootstrapSeed = seed }
}

// WithProgressListener subscribes a listener to lifecycle events. Listeners
// are serialized, so they see events one at a time even during parallel runs.
func WithProgressListener(l validation.ProgressListener) Option {
	return func(s *settings) {
		if l != nil {
			s.listeners = append(s.listeners, l)
		}
	}
}

// New builds an orchestrator over the given judge panel. Every judge is
// wrapped so its calls pass through the shared rate limiter, on the parallel
// and the sequential path alike.
func New(judges []llm.Client, opts ...Option) (*Orchestrator, error) {
	if len(judges) == 0 {
		return nil, fmt.Errorf("orchestrator needs at least one judge")
	}

	s := settings{
		parallel:       true,
		dimConcurrency: DefaultDimensionConcurrency,
		judgeCap:       DefaultJudgeConcurrency,
		jobCap:         DefaultJobConcurrency,
		callsPerSecond: DefaultCallsPerSecond,
		fallback:       true,
		minDimensions:  DefaultMinDimensions,
		retries:        validation.DefaultExtractionRetries,
		bootstrapSeed:  1,
	}
	for _, o := range opts {
		o(&s)
	}

	burst := int(math.Ceil(s.callsPerSecond))
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(s.callsPerSecond), burst)

	wrapped := make([]llm.Client, len(judges))
	for i, j := range judges {
		wrapped[i] = newRateLimitedClient(j, limiter)
	}

	o := &Orchestrator{
		judges:        wrapped,
		parallel:      s.parallel,
		dimLimiter:    NewLimiter(s.dimConcurrency),
		judgeLimiter:  NewLimiter(s.judgeCap),
		jobLimiter:    NewLimiter(s.jobCap),
		rateLimiter:   limiter,
		fallback:      s.fallback,
		minDimensions: s.minDimensions,
		listeners:     s.listeners,
	}

	validatorOpts := []validation.Option{
		validation.WithExtractionRetries(s.retries),
		validation.WithBootstrapSeed(s.bootstrapSeed),
	}
	for _, l := range s.listeners {
		listener := l
		validatorOpts = append(validatorOpts, validation.WithProgressListener(func(e validation.ProgressEvent) {
			o.progressMu.Lock()
			defer o.progressMu.Unlock()
			listener(e)
		}))
	}

	validator, err := validation.New(wrapped, validatorOpts...)
	if err != nil {
		return nil, err
	}
	o.validator = validator
	return o, nil
}

// DimensionLimiter exposes the level-1 limiter for runtime resizing.
func (o *Orchestrator) DimensionLimiter() *Limiter { return o.dimLimiter }

// JudgeLimiter exposes the level-2 limiter for runtime resizing.
func (o *Orchestrator) JudgeLimiter() *Limiter { return o.judgeLimiter }

// JobLimiter exposes the level-3 limiter for runtime resizing.
func (o *Orchestrator) JobLimiter() *Limiter { return o.jobLimiter }

// IsReady reports whether parallel execution is actually usable: parallel
// mode enabled, at least two judges, and dimension concurrency above one.
// Callers should check this before assuming parallel timing.
func (o *Orchestrator) IsReady() bool {
	return o.parallel && len(o.judges) >= 2 && o.dimLimiter.Limit() > 1
}

// Validate evaluates one analysis, choosing the parallel or sequential path
// based on configuration and readiness.
func (o *Orchestrator) Validate(ctx context.Context, req *validation.Request) (*models.ValidationSummary, error) {
	prepared, err := validation.Prepare(req)
	if err != nil {
		return nil, fmt.Errorf("orchestrated validation: %w", err)
	}

	if !o.IsReady() {
		o.notifyProgress(validation.ProgressEvent{Kind: validation.ProgressRunStarted})
		summary, err := o.validator.ValidatePrepared(ctx, prepared)
		if err != nil {
			return nil, err
		}
		o.notifyProgress(validation.ProgressEvent{Kind: validation.ProgressRunCompleted, Succeeded: true})
		return summary, nil
	}
	return o.validateParallel(ctx, prepared)
}

// validateParallel fans the six dimensions out under the dimension limiter,
// then applies the degradation policy to the settled results.
func (o *Orchestrator) validateParallel(ctx context.Context, prepared *validation.Prepared) (*models.ValidationSummary, error) {
	startedAt := time.Now()
	o.notifyProgress(validation.ProgressEvent{Kind: validation.ProgressRunStarted})

	dims := models.AllDimensions()

	type indexed struct {
		index  int
		result models.DimensionResult
	}
	resultChan := make(chan indexed, len(dims))

	var wg sync.WaitGroup
	for i, dim := range dims {
		wg.Add(1)
		go func(idx int, dim models.EvaluationDimension) {
			defer wg.Done()

			if err := o.dimLimiter.Acquire(ctx); err != nil {
				resultChan <- indexed{index: idx, result: errorDimensionResult(dim, err)}
				return
			}
			defer o.dimLimiter.Release()

			o.notifyProgress(validation.ProgressEvent{Kind: validation.ProgressDimensionStarted, Dimension: dim})
			result := o.evaluateDimension(ctx, prepared, dim)
			resultChan <- indexed{index: idx, result: result}
			o.notifyProgress(validation.ProgressEvent{
				Kind:      validation.ProgressDimensionCompleted,
				Dimension: dim,
				Succeeded: result.Succeeded(),
			})
		}(i, dim)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	// Results land by input index, so output ordering is deterministic even
	// though execution order is not.
	results := make([]models.DimensionResult, len(dims))
	for res := range resultChan {
		results[res.index] = res.result
	}

	succeeded := 0
	for _, r := range results {
		if r.Succeeded() {
			succeeded++
		}
	}

	if succeeded < o.minDimensions {
		// A run starved by context expiry could not complete as a whole, and
		// a sequential retry would starve the same way.
		if err := ctx.Err(); err != nil {
			return nil, &models.ValidationTimeoutError{Cause: err}
		}
		if !o.fallback {
			return nil, &models.InsufficientDataError{Succeeded: succeeded, Required: o.minDimensions}
		}
		slog.WarnContext(ctx, "falling back to sequential validation",
			"succeeded_dimensions", succeeded,
			"required", o.minDimensions)
		o.notifyProgress(validation.ProgressEvent{Kind: validation.ProgressFallbackTriggered})
		summary, err := o.validator.ValidatePrepared(ctx, prepared)
		if err != nil {
			return nil, err
		}
		o.notifyProgress(validation.ProgressEvent{Kind: validation.ProgressRunCompleted, Succeeded: true})
		return summary, nil
	}

	summary := o.validator.BuildSummary(results, validation.ModeParallel, startedAt)
	o.notifyProgress(validation.ProgressEvent{Kind: validation.ProgressRunCompleted, Succeeded: true})
	return summary, nil
}

// evaluateDimension fans the judges out under the judge limiter. Failures at
// any point degrade to an error DimensionResult; nothing here aborts sibling
// dimensions.
func (o *Orchestrator) evaluateDimension(ctx context.Context, prepared *validation.Prepared, dim models.EvaluationDimension) models.DimensionResult {
	prompt, ok := prepared.Prompts[dim]
	if !ok {
		return errorDimensionResult(dim, &models.InvalidDimensionError{Dimension: string(dim)})
	}
	issueCount := len(prepared.Analysis.Issues)

	type judged struct {
		index   int
		verdict models.JudgeVerdict
		scores  []models.IssueScore
	}
	verdictChan := make(chan judged, len(o.judges))

	var wg sync.WaitGroup
	for i, judge := range o.judges {
		wg.Add(1)
		go func(idx int, judge llm.Client) {
			defer wg.Done()

			if err := o.judgeLimiter.Acquire(ctx); err != nil {
				verdictChan <- judged{index: idx, verdict: models.JudgeVerdict{
					ModelName: judge.ModelName(),
					RawText:   err.Error(),
				}}
				return
			}
			defer o.judgeLimiter.Release()

			verdict, scores := o.validator.JudgeDimension(ctx, judge, prompt, dim, issueCount)
			verdictChan <- judged{index: idx, verdict: verdict, scores: scores}
			o.notifyProgress(validation.ProgressEvent{
				Kind:      validation.ProgressJudgeCompleted,
				Dimension: dim,
				Judge:     verdict.ModelName,
				Succeeded: verdict.Succeeded,
			})
		}(i, judge)
	}

	go func() {
		wg.Wait()
		close(verdictChan)
	}()

	verdicts := make([]models.JudgeVerdict, len(o.judges))
	scoresByJudge := make([][]models.IssueScore, len(o.judges))
	for v := range verdictChan {
		verdicts[v.index] = v.verdict
		scoresByJudge[v.index] = v.scores
	}

	var issueScores []models.IssueScore
	for _, scores := range scoresByJudge {
		issueScores = append(issueScores, scores...)
	}

	result, err := validation.BuildDimensionResult(dim, verdicts, issueScores)
	if err != nil {
		return errorDimensionResult(dim, err)
	}
	return *result
}

// errorDimensionResult converts a dimension-level failure into a settled
// zero-confidence result carrying the error message as its issue, so one
// dimension's failure never aborts its siblings.
func errorDimensionResult(dim models.EvaluationDimension, err error) models.DimensionResult {
	return models.DimensionResult{
		Dimension:   dim,
		Reliability: models.ReliabilityLow,
		Issues:      []string{err.Error()},
	}
}

func (o *Orchestrator) notifyProgress(event validation.ProgressEvent) {
	o.progressMu.Lock()
	defer o.progressMu.Unlock()
	for _, l := range o.listeners {
		l(event)
	}
}

// Package ensemble combines named scoring components with a weight vector
// and a decision threshold, and tunes both against labeled ground truth.
package ensemble

import (
	"context"
	"fmt"
	"strings"

	"github.com/Really-Great-Tech/expense-ai-sub001/internal/judge"
	"github.com/Really-Great-Tech/expense-ai-sub001/internal/llm"
)

// Scorer is one named scoring component. Components are resolved once at
// ensemble construction time.
type Scorer interface {
	Name() string
	Score(ctx context.Context, prompts, responses []string) ([]float64, error)
}

// judgeScorer adapts a judge into a Scorer.
type judgeScorer struct {
	judge *judge.Judge
}

// FromJudge wraps a judge as an ensemble component.
func FromJudge(j *judge.Judge) Scorer {
	return &judgeScorer{judge: j}
}

func (s *judgeScorer) Name() string { return s.judge.Name() }

func (s *judgeScorer) Score(ctx context.Context, prompts, responses []string) ([]float64, error) {
	set, err := s.judge.Score(ctx, prompts, responses)
	if err != nil {
		return nil, err
	}
	return set.Scores, nil
}

// ScorerFunc adapts a plain function into a named Scorer.
type ScorerFunc struct {
	ScorerName string
	Fn         func(ctx context.Context, prompts, responses []string) ([]float64, error)
}

func (s *ScorerFunc) Name() string { return s.ScorerName }

func (s *ScorerFunc) Score(ctx context.Context, prompts, responses []string) ([]float64, error) {
	return s.Fn(ctx, prompts, responses)
}

// Config is the tunable state of an ensemble. It is mutated only by Tune or
// an explicit SetConfig; scoring treats it as read-only.
type Config struct {
	Weights        []float64 `json:"weights" yaml:"weights"`
	Threshold      float64   `json:"threshold" yaml:"threshold"`
	ComponentNames []string  `json:"component_names" yaml:"component_names"`
}

// NormalizeWeights rescales a weight vector to sum to 1. An empty or
// all-zero vector is an error, never a NaN.
func NormalizeWeights(weights []float64) ([]float64, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("cannot normalize an empty weight vector")
	}

	var sum float64
	for _, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("negative weight %v", w)
		}
		sum += w
	}
	if sum == 0 {
		return nil, fmt.Errorf("cannot normalize an all-zero weight vector")
	}

	normalized := make([]float64, len(weights))
	for i, w := range weights {
		normalized[i] = w / sum
	}
	return normalized, nil
}

// Grader decides whether a generated response matches the expected answer.
type Grader func(response, expected string) bool

// SubstringGrader is the default grader: case-insensitive substring
// containment of the expected answer in the response.
func SubstringGrader(response, expected string) bool {
	return strings.Contains(strings.ToLower(response), strings.ToLower(expected))
}

// Ensemble composes named scorers with normalized weights and a decision
// threshold.
type Ensemble struct {
	components []Scorer
	weights    []float64
	threshold  float64
	generator  llm.Client
}

// Option configures an Ensemble.
type Option func(*Ensemble) error

// WithWeights sets initial component weights; they are normalized to sum
// to 1 at construction.
func WithWeights(weights []float64) Option {
	return func(e *Ensemble) error {
		normalized, err := NormalizeWeights(weights)
		if err != nil {
			return err
		}
		e.weights = normalized
		return nil
	}
}

// WithThreshold sets the decision threshold.
func WithThreshold(threshold float64) Option {
	return func(e *Ensemble) error {
		if threshold < 0 || threshold > 1 {
			return fmt.Errorf("threshold %v outside [0, 1]", threshold)
		}
		e.threshold = threshold
		return nil
	}
}

// WithGenerator sets the model used by GenerateAndScore and Tune to
// produce responses.
func WithGenerator(client llm.Client) Option {
	return func(e *Ensemble) error {
		e.generator = client
		return nil
	}
}

// New builds an ensemble over the given components. Weights default to
// uniform and the threshold to 0.5.
func New(components []Scorer, opts ...Option) (*Ensemble, error) {
	if len(components) == 0 {
		return nil, fmt.Errorf("ensemble needs at least one component")
	}

	weights := make([]float64, len(components))
	for i := range weights {
		weights[i] = 1.0 / float64(len(components))
	}

	e := &Ensemble{
		components: components,
		weights:    weights,
		threshold:  0.5,
	}
	for _, o := range opts {
		if err := o(e); err != nil {
			return nil, err
		}
	}
	if len(e.weights) != len(e.components) {
		return nil, fmt.Errorf("%d weights for %d components", len(e.weights), len(e.components))
	}
	return e, nil
}

// Config returns a copy of the current tunable state.
func (e *Ensemble) Config() Config {
	cfg := Config{
		Weights:        append([]float64(nil), e.weights...),
		Threshold:      e.threshold,
		ComponentNames: make([]string, len(e.components)),
	}
	for i, c := range e.components {
		cfg.ComponentNames[i] = c.Name()
	}
	return cfg
}

// SetConfig replaces weights and threshold explicitly. Weights are
// re-normalized.
func (e *Ensemble) SetConfig(cfg Config) error {
	if len(cfg.Weights) != len(e.components) {
		return fmt.Errorf("%d weights for %d components", len(cfg.Weights), len(e.components))
	}
	normalized, err := NormalizeWeights(cfg.Weights)
	if err != nil {
		return err
	}
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return fmt.Errorf("threshold %v outside [0, 1]", cfg.Threshold)
	}
	e.weights = normalized
	e.threshold = cfg.Threshold
	return nil
}

// Result holds per-component score vectors plus the weighted ensemble
// score and threshold decision per prompt.
type Result struct {
	ComponentNames  []string
	ComponentScores [][]float64
	EnsembleScores  []float64
	Decisions       []bool
}

// Score runs every component over the same (prompt, response) pairs and
// combines the per-prompt scores with the current weights.
func (e *Ensemble) Score(ctx context.Context, prompts, responses []string) (*Result, error) {
	if len(prompts) != len(responses) {
		return nil, fmt.Errorf("ensemble: %d prompts but %d responses", len(prompts), len(responses))
	}

	result := &Result{
		ComponentNames:  make([]string, len(e.components)),
		ComponentScores: make([][]float64, len(e.components)),
	}
	for i, c := range e.components {
		scores, err := c.Score(ctx, prompts, responses)
		if err != nil {
			return nil, fmt.Errorf("ensemble component %q: %w", c.Name(), err)
		}
		if len(scores) != len(prompts) {
			return nil, fmt.Errorf("ensemble component %q returned %d scores for %d prompts", c.Name(), len(scores), len(prompts))
		}
		result.ComponentNames[i] = c.Name()
		result.ComponentScores[i] = scores
	}

	result.EnsembleScores = combine(result.ComponentScores, e.weights, len(prompts))
	result.Decisions = make([]bool, len(prompts))
	for i, s := range result.EnsembleScores {
		result.Decisions[i] = s >= e.threshold
	}
	return result, nil
}

// GenerateAndScore produces one response per prompt with the generator
// model, then scores the pairs.
func (e *Ensemble) GenerateAndScore(ctx context.Context, prompts []string) (*Result, []string, error) {
	if e.generator == nil {
		return nil, nil, fmt.Errorf("ensemble has no generator configured")
	}

	responses := make([]string, len(prompts))
	for i, prompt := range prompts {
		text, err := e.generator.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
		if err != nil {
			return nil, nil, fmt.Errorf("ensemble generating response %d: %w", i, err)
		}
		responses[i] = text
	}

	result, err := e.Score(ctx, prompts, responses)
	if err != nil {
		return nil, nil, err
	}
	return result, responses, nil
}

// Tune generates and scores responses for the prompts, grades each response
// against its expected answer, then searches weight and threshold space with
// the tuner. The optimized values are adopted and returned.
func (e *Ensemble) Tune(ctx context.Context, prompts, expected []string, grader Grader, tuner *Tuner) (Config, error) {
	if len(prompts) != len(expected) {
		return Config{}, fmt.Errorf("ensemble: %d prompts but %d expected answers", len(prompts), len(expected))
	}
	if grader == nil {
		grader = SubstringGrader
	}
	if tuner == nil {
		tuner = NewTuner()
	}

	result, responses, err := e.GenerateAndScore(ctx, prompts)
	if err != nil {
		return Config{}, fmt.Errorf("ensemble tuning: %w", err)
	}

	labels := make([]bool, len(prompts))
	for i := range prompts {
		labels[i] = grader(responses[i], expected[i])
	}

	weights, threshold, err := tuner.Tune(&Observations{
		ComponentScores: result.ComponentScores,
		Labels:          labels,
	}, e.weights)
	if err != nil {
		return Config{}, err
	}

	e.weights = weights
	e.threshold = threshold
	return e.Config(), nil
}

// combine computes the weighted sum per prompt index.
func combine(componentScores [][]float64, weights []float64, numPrompts int) []float64 {
	out := make([]float64, numPrompts)
	for i := 0; i < numPrompts; i++ {
		var sum float64
		for j := range componentScores {
			sum += weights[j] * componentScores[j][i]
		}
		out[i] = sum
	}
	return out
}

// Package judge implements the judge and panel abstractions: a judge wraps
// one model endpoint plus scoring templates and turns (prompt, response)
// pairs into [0,1] correctness scores; a panel runs a fixed set of judges
// over the same inputs and aggregates.
package judge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Really-Great-Tech/expense-ai-sub001/internal/llm"
	"github.com/Really-Great-Tech/expense-ai-sub001/internal/statistics"
)

// DefaultExtractionRetries is how many times a judge re-asks the same prompt
// when no score can be extracted from the reply, before defaulting to 0.
// Parsing failure is never fatal to the batch.
const DefaultExtractionRetries = 5

// Judge wraps one model endpoint plus scoring templates.
type Judge struct {
	name      string
	client    llm.Client
	templates []Template
	retries   int
}

// Option configures a Judge.
type Option func(*Judge)

// WithExtractionRetries overrides the re-ask budget for unparseable replies.
func WithExtractionRetries(n int) Option {
	return func(j *Judge) {
		if n >= 0 {
			j.retries = n
		}
	}
}

// New builds a judge scoring with the given templates. With no templates it
// uses the continuous template.
func New(name string, client llm.Client, templates []Template, opts ...Option) (*Judge, error) {
	if name == "" {
		return nil, fmt.Errorf("judge name is required")
	}
	if client == nil {
		return nil, fmt.Errorf("judge %q: client is required", name)
	}
	if len(templates) == 0 {
		templates = []Template{MustTemplate(TemplateContinuous)}
	}

	j := &Judge{
		name:      name,
		client:    client,
		templates: templates,
		retries:   DefaultExtractionRetries,
	}
	for _, o := range opts {
		o(j)
	}
	return j, nil
}

// Name returns the judge identifier.
func (j *Judge) Name() string { return j.name }

// ModelName returns the underlying model identifier.
func (j *Judge) ModelName() string { return j.client.ModelName() }

// ScoreSet is the result of scoring a batch of (prompt, response) pairs.
type ScoreSet struct {
	// Scores holds one [0,1] score per input pair.
	Scores []float64
	// RawResponses holds the judge's last raw reply per pair.
	RawResponses []string
}

// Score evaluates each (prompt, response) pair with every template and
// returns the per-pair mean across templates. A transport error aborts the
// batch; an unparseable reply does not. Unparseable replies are re-asked up
// to the retry budget and then scored 0.
func (j *Judge) Score(ctx context.Context, prompts, responses []string) (*ScoreSet, error) {
	if len(prompts) != len(responses) {
		return nil, fmt.Errorf("judge %q: %d prompts but %d responses", j.name, len(prompts), len(responses))
	}

	result := &ScoreSet{
		Scores:       make([]float64, len(prompts)),
		RawResponses: make([]string, len(prompts)),
	}

	for i := range prompts {
		templateScores := make([]float64, 0, len(j.templates))
		for _, tmpl := range j.templates {
			score, raw, err := j.scoreOne(ctx, tmpl, prompts[i], responses[i])
			if err != nil {
				return nil, fmt.Errorf("judge %q scoring pair %d: %w", j.name, i, err)
			}
			templateScores = append(templateScores, score)
			result.RawResponses[i] = raw
		}
		result.Scores[i] = statistics.Mean(templateScores)
	}

	return result, nil
}

// scoreOne asks the model to score one pair, re-asking the identical prompt
// when extraction fails. After the retry budget the score defaults to 0.
func (j *Judge) scoreOne(ctx context.Context, tmpl Template, prompt, response string) (float64, string, error) {
	messages := []llm.Message{
		{Role: llm.RoleUser, Content: tmpl.Render(prompt, response)},
	}

	var raw string
	for attempt := 0; attempt <= j.retries; attempt++ {
		text, err := j.client.Chat(ctx, messages)
		if err != nil {
			return 0, raw, err
		}
		raw = text

		if score, ok := tmpl.ExtractScore(text); ok {
			return score, raw, nil
		}

		slog.DebugContext(ctx, "no score extracted, re-asking",
			"judge", j.name,
			"template", tmpl.Kind(),
			"attempt", attempt+1)
	}

	slog.WarnContext(ctx, "score extraction failed after retries, defaulting to 0",
		"judge", j.name,
		"template", tmpl.Kind(),
		"retries", j.retries)
	return 0, raw, nil
}

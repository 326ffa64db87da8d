package judge

import (
	"context"
	"fmt"

	"github.com/Really-Great-Tech/expense-ai-sub001/internal/llm"
	"github.com/Really-Great-Tech/expense-ai-sub001/internal/statistics"
)

// Panel runs a fixed set of judges over the same prompts. There is no
// panel-level retry beyond what each judge already does.
type Panel struct {
	judges    []*Judge
	generator llm.Client
}

// PanelOption configures a Panel.
type PanelOption func(*Panel)

// WithGenerator sets the model used by GenerateAndScore to produce responses.
func WithGenerator(client llm.Client) PanelOption {
	return func(p *Panel) {
		p.generator = client
	}
}

// NewPanel builds a panel from one client per judge and a parallel array of
// per-judge template kinds. Construction is rejected when the two arrays
// differ in length.
func NewPanel(clients []llm.Client, templateKinds [][]TemplateKind, opts ...PanelOption) (*Panel, error) {
	if len(clients) == 0 {
		return nil, fmt.Errorf("panel needs at least one judge")
	}
	if len(clients) != len(templateKinds) {
		return nil, fmt.Errorf("panel has %d judges but %d template sets", len(clients), len(templateKinds))
	}

	p := &Panel{}
	for i, client := range clients {
		templates := make([]Template, 0, len(templateKinds[i]))
		for _, kind := range templateKinds[i] {
			tmpl, err := NewTemplate(kind)
			if err != nil {
				return nil, fmt.Errorf("judge %d: %w", i, err)
			}
			templates = append(templates, tmpl)
		}

		j, err := New(fmt.Sprintf("judge-%d-%s", i, client.ModelName()), client, templates)
		if err != nil {
			return nil, err
		}
		p.judges = append(p.judges, j)
	}

	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Judges returns the panel members in construction order.
func (p *Panel) Judges() []*Judge { return p.judges }

// PanelResult holds per-judge score vectors plus per-prompt aggregates
// across judges.
type PanelResult struct {
	PerJudgeScores map[string][]float64
	RawResponses   map[string][]string
	Avg            []float64
	Min            []float64
	Max            []float64
	Median         []float64
}

// Score runs every judge over the same (prompt, response) pairs.
func (p *Panel) Score(ctx context.Context, prompts, responses []string) (*PanelResult, error) {
	if len(prompts) != len(responses) {
		return nil, fmt.Errorf("panel: %d prompts but %d responses", len(prompts), len(responses))
	}

	result := &PanelResult{
		PerJudgeScores: make(map[string][]float64, len(p.judges)),
		RawResponses:   make(map[string][]string, len(p.judges)),
	}

	for _, j := range p.judges {
		set, err := j.Score(ctx, prompts, responses)
		if err != nil {
			return nil, fmt.Errorf("panel: %w", err)
		}
		result.PerJudgeScores[j.Name()] = set.Scores
		result.RawResponses[j.Name()] = set.RawResponses
	}

	p.aggregate(result, len(prompts))
	return result, nil
}

// GenerateAndScore produces a response per prompt with the generator model,
// then scores the pairs. The aggregate math is identical to Score: only the
// response-production path differs.
func (p *Panel) GenerateAndScore(ctx context.Context, prompts []string) (*PanelResult, []string, error) {
	if p.generator == nil {
		return nil, nil, fmt.Errorf("panel has no generator configured")
	}

	responses := make([]string, len(prompts))
	for i, prompt := range prompts {
		text, err := p.generator.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
		if err != nil {
			return nil, nil, fmt.Errorf("panel generating response %d: %w", i, err)
		}
		responses[i] = text
	}

	result, err := p.Score(ctx, prompts, responses)
	if err != nil {
		return nil, nil, err
	}
	return result, responses, nil
}

// aggregate fills per-prompt aggregates across judges by index.
func (p *Panel) aggregate(result *PanelResult, numPrompts int) {
	result.Avg = make([]float64, numPrompts)
	result.Min = make([]float64, numPrompts)
	result.Max = make([]float64, numPrompts)
	result.Median = make([]float64, numPrompts)

	for i := 0; i < numPrompts; i++ {
		column := make([]float64, 0, len(p.judges))
		for _, j := range p.judges {
			column = append(column, result.PerJudgeScores[j.Name()][i])
		}
		result.Avg[i] = statistics.Mean(column)
		result.Min[i] = statistics.Min(column)
		result.Max[i] = statistics.Max(column)
		result.Median[i] = statistics.Median(column)
	}
}

package judge

import (
	"fmt"
	"strings"

	"github.com/Really-Great-Tech/expense-ai-sub001/internal/extract"
)

// TemplateKind identifies a scoring instruction template.
type TemplateKind string

const (
	// TemplateBinary asks for a flat correct/incorrect verdict.
	TemplateBinary TemplateKind = "binary"
	// TemplateTernary adds an explicit "uncertain" middle ground.
	TemplateTernary TemplateKind = "ternary"
	// TemplateContinuous asks for a 0-100 confidence value.
	TemplateContinuous TemplateKind = "continuous"
	// TemplateLikert asks for a 1-5 agreement rating.
	TemplateLikert TemplateKind = "likert"
)

var binaryKeywords = map[string]float64{
	"correct":   1.0,
	"incorrect": 0.0,
	"wrong":     0.0,
	"yes":       1.0,
	"no":        0.0,
}

var ternaryKeywords = map[string]float64{
	"correct":           1.0,
	"incorrect":         0.0,
	"wrong":             0.0,
	"uncertain":         0.5,
	"unsure":            0.5,
	"partially correct": 0.5,
}

// Template pairs a scoring instruction with the matching score extractor.
type Template struct {
	kind        TemplateKind
	instruction string
	keywords    map[string]float64
}

// NewTemplate builds the template for the given kind.
func NewTemplate(kind TemplateKind) (Template, error) {
	switch kind {
	case TemplateBinary:
		return Template{
			kind:        kind,
			instruction: "Decide whether the response correctly answers the prompt. Answer with exactly one word: CORRECT or INCORRECT.",
			keywords:    binaryKeywords,
		}, nil
	case TemplateTernary:
		return Template{
			kind:        kind,
			instruction: "Decide whether the response correctly answers the prompt. Answer with exactly one word: CORRECT, INCORRECT, or UNCERTAIN.",
			keywords:    ternaryKeywords,
		}, nil
	case TemplateContinuous:
		return Template{
			kind:        kind,
			instruction: "Rate how confident you are that the response correctly answers the prompt, from 0 (certainly wrong) to 100 (certainly right). Answer with the number first.",
		}, nil
	case TemplateLikert:
		return Template{
			kind:        kind,
			instruction: "Rate your agreement that the response correctly answers the prompt on a scale of 1 (strongly disagree) to 5 (strongly agree). Answer with the number first.",
		}, nil
	default:
		return Template{}, fmt.Errorf("unknown template kind %q", kind)
	}
}

// MustTemplate is NewTemplate that panics, for package-level defaults.
func MustTemplate(kind TemplateKind) Template {
	t, err := NewTemplate(kind)
	if err != nil {
		panic(err)
	}
	return t
}

// Kind returns the template kind.
func (t Template) Kind() TemplateKind { return t.kind }

// Render builds the full scoring prompt for one (prompt, response) pair.
func (t Template) Render(prompt, response string) string {
	var b strings.Builder
	b.WriteString(t.instruction)
	b.WriteString("\n\nPROMPT:\n")
	b.WriteString(prompt)
	b.WriteString("\n\nRESPONSE:\n")
	b.WriteString(response)
	return b.String()
}

// ExtractScore parses a [0,1] score from the model's raw answer. Categorical
// templates match keywords (longest match wins); numeric templates parse the
// leading number and normalize. Out-of-range numbers report not-found so the
// judge re-asks instead of clamping.
func (t Template) ExtractScore(text string) (float64, bool) {
	switch t.kind {
	case TemplateBinary, TemplateTernary:
		return extract.Keyword(text, t.keywords)
	case TemplateContinuous:
		v, ok := extract.LeadingNumber(text)
		if !ok || v < 0 || v > 100 {
			return 0, false
		}
		return v / 100.0, true
	case TemplateLikert:
		v, ok := extract.LeadingNumber(text)
		if !ok || v < 1 || v > 5 {
			return 0, false
		}
		return (v - 1) / 4.0, true
	default:
		return 0, false
	}
}

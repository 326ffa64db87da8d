package judge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTemplate_UnknownKind(t *testing.T) {
	_, err := NewTemplate("vibes")
	require.Error(t, err)
}

func TestTemplateRender(t *testing.T) {
	tmpl := MustTemplate(TemplateBinary)
	out := tmpl.Render("what is 2+2?", "4")
	assert.True(t, strings.Contains(out, "PROMPT:\nwhat is 2+2?"))
	assert.True(t, strings.Contains(out, "RESPONSE:\n4"))
	assert.True(t, strings.Contains(out, "CORRECT or INCORRECT"))
}

func TestExtractScore_Binary(t *testing.T) {
	tmpl := MustTemplate(TemplateBinary)

	score, ok := tmpl.ExtractScore("CORRECT")
	require.True(t, ok)
	assert.Equal(t, 1.0, score)

	// "incorrect" contains "correct": the longer keyword must win.
	score, ok = tmpl.ExtractScore("That is incorrect.")
	require.True(t, ok)
	assert.Equal(t, 0.0, score)

	_, ok = tmpl.ExtractScore("hard to say")
	assert.False(t, ok)
}

func TestExtractScore_Ternary(t *testing.T) {
	tmpl := MustTemplate(TemplateTernary)

	score, ok := tmpl.ExtractScore("I am UNCERTAIN about this one")
	require.True(t, ok)
	assert.Equal(t, 0.5, score)
}

func TestExtractScore_Continuous(t *testing.T) {
	tmpl := MustTemplate(TemplateContinuous)

	tests := []struct {
		text string
		want float64
		ok   bool
	}{
		{"85", 0.85, true},
		{"0", 0.0, true},
		{"100, no doubt", 1.0, true},
		{"150", 0, false},
		{"-10", 0, false},
		{"not a number", 0, false},
	}
	for _, tt := range tests {
		got, ok := tmpl.ExtractScore(tt.text)
		assert.Equal(t, tt.ok, ok, "text %q", tt.text)
		assert.InDelta(t, tt.want, got, 1e-9, "text %q", tt.text)
	}
}

func TestExtractScore_Likert(t *testing.T) {
	tmpl := MustTemplate(TemplateLikert)

	tests := []struct {
		text string
		want float64
		ok   bool
	}{
		{"1", 0.0, true},
		{"3", 0.5, true},
		{"5 - strongly agree", 1.0, true},
		{"6", 0, false},
		{"0", 0, false},
	}
	for _, tt := range tests {
		got, ok := tmpl.ExtractScore(tt.text)
		assert.Equal(t, tt.ok, ok, "text %q", tt.text)
		assert.InDelta(t, tt.want, got, 1e-9, "text %q", tt.text)
	}
}

package extract

import (
	"testing"

	"github.com/Really-Great-Tech/expense-ai-sub001/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeadingNumber(t *testing.T) {
	tests := []struct {
		text string
		want float64
		ok   bool
	}{
		{"85", 85, true},
		{"4 out of 5", 4, true},
		{"Score: 0.73 because...", 0.73, true},
		{"-2 is my answer", -2, true},
		{"no digits here", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := LeadingNumber(tt.text)
		if ok != tt.ok || got != tt.want {
			t.Errorf("LeadingNumber(%q) = (%v, %v), want (%v, %v)", tt.text, got, ok, tt.want, tt.ok)
		}
	}
}

func TestKeyword_LongestMatchWins(t *testing.T) {
	table := map[string]float64{
		"correct":   1.0,
		"incorrect": 0.0,
		"uncertain": 0.5,
	}

	got, ok := Keyword("The answer is INCORRECT.", table)
	require.True(t, ok)
	// "incorrect" contains "correct"; the longer keyword must win.
	assert.Equal(t, 0.0, got)

	got, ok = Keyword("Looks correct to me", table)
	require.True(t, ok)
	assert.Equal(t, 1.0, got)

	_, ok = Keyword("no verdict given", table)
	assert.False(t, ok)
}

func TestConfidenceScore(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
		ok   bool
	}{
		{"unit scale", "CONFIDENCE_SCORE: 0.85", 0.85, true},
		{"percent scale normalized", "CONFIDENCE_SCORE: 85", 0.85, true},
		{"case insensitive", "confidence_score: 0.4", 0.4, true},
		{"equals separator", "CONFIDENCE_SCORE = 0.6", 0.6, true},
		{"embedded in output", "ANALYSIS: fine\nCONFIDENCE_SCORE: 0.9\nSUMMARY: ok", 0.9, true},
		{"integer one is percent scale", "CONFIDENCE_SCORE: 1", 0.01, true},
		{"fractional one passes through", "CONFIDENCE_SCORE: 1.0", 1.0, true},
		{"integer zero", "CONFIDENCE_SCORE: 0", 0, true},
		{"above 100 rejected", "CONFIDENCE_SCORE: 250", 0, false},
		{"negative rejected", "CONFIDENCE_SCORE: -5", 0, false},
		{"missing", "I feel pretty confident", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ConfidenceScore(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestIssueScores(t *testing.T) {
	text := `ISSUE_0_SCORE: 90
ISSUE_0_EXPLANATION: receipt total matches the claim
ISSUE_1_SCORE: 40
ISSUE_1_EXPLANATION: category looks wrong`

	scores := IssueScores(text, models.DimensionComplianceAccuracy, 2)
	require.Len(t, scores, 2)
	assert.Equal(t, 90, scores[0].ValidationScore)
	assert.Equal(t, "receipt total matches the claim", scores[0].Explanation)
	assert.Equal(t, 40, scores[1].ValidationScore)
	assert.Equal(t, models.DimensionComplianceAccuracy, scores[1].Dimension)
}

func TestIssueScores_NeutralFallback(t *testing.T) {
	// Index 1 is missing and index 2 is out of range: both fall back to 50.
	text := `ISSUE_0_SCORE: 70
ISSUE_2_SCORE: 400`

	scores := IssueScores(text, models.DimensionFactualGrounding, 3)
	require.Len(t, scores, 3)
	assert.Equal(t, 70, scores[0].ValidationScore)
	assert.Equal(t, models.NeutralIssueScore, scores[1].ValidationScore)
	assert.Equal(t, models.NeutralIssueScore, scores[2].ValidationScore)
}

func TestIssueScores_AbsentSection(t *testing.T) {
	assert.Nil(t, IssueScores("CONFIDENCE_SCORE: 0.8", models.DimensionFactualGrounding, 2))
	assert.Nil(t, IssueScores("ISSUE_0_SCORE: 80", models.DimensionFactualGrounding, 0))
}

func TestSummary(t *testing.T) {
	assert.Equal(t, "analysis holds up", Summary("CONFIDENCE_SCORE: 0.9\nSUMMARY: analysis holds up"))
	assert.Equal(t, "", Summary("no labeled fields"))
}

func TestIssues(t *testing.T) {
	text := `SUMMARY: mostly fine
ISSUES:
- missing tax breakdown
- unclear merchant name

Additional notes follow.`

	issues := Issues(text)
	require.Len(t, issues, 2)
	assert.Equal(t, "missing tax breakdown", issues[0])
	assert.Equal(t, "unclear merchant name", issues[1])

	assert.Nil(t, Issues("SUMMARY: no issues section"))
	assert.Nil(t, Issues("ISSUES:\nnot a bullet"))
}

func TestJSONBlock(t *testing.T) {
	fenced := "Here you go:\n```json\n{\"score\": 0.9}\n```\nanything after"
	assert.Equal(t, `{"score": 0.9}`, JSONBlock(fenced))

	bare := `{"score": 0.5}`
	assert.Equal(t, bare, JSONBlock(bare))

	inline := "```json\n{\"a\": 1}\n```"
	assert.Equal(t, `{"a": 1}`, JSONBlock(inline))
}

// Package extract parses structured fields out of free-text model output.
// Every field has a defined grammar and a documented fallback so parsing
// behavior never varies by call site.
package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Really-Great-Tech/expense-ai-sub001/internal/models"
)

var (
	numberRe           = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	confidenceRe       = regexp.MustCompile(`(?im)^\s*CONFIDENCE_SCORE\s*[:=]\s*(-?\d+(?:\.\d+)?)`)
	issueScoreRe       = regexp.MustCompile(`(?im)^\s*ISSUE_(\d+)_SCORE\s*[:=]\s*(-?\d+(?:\.\d+)?)`)
	issueExplanationRe = regexp.MustCompile(`(?im)^\s*ISSUE_(\d+)_EXPLANATION\s*[:=]\s*(.+)$`)
	summaryRe          = regexp.MustCompile(`(?im)^\s*SUMMARY\s*[:=]\s*(.+)$`)
)

// LeadingNumber returns the first number appearing in text. Used by the
// continuous and Likert scoring templates, whose instructions ask the model
// to answer with a number first.
func LeadingNumber(text string) (float64, bool) {
	match := numberRe.FindString(text)
	if match == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Keyword matches text against a keyword-to-score table. The longest keyword
// present in the text wins, so "incorrect" beats "correct" when both match.
// Matching is case-insensitive.
func Keyword(text string, table map[string]float64) (float64, bool) {
	lower := strings.ToLower(text)
	best := ""
	var bestScore float64
	for kw, score := range table {
		if strings.Contains(lower, strings.ToLower(kw)) && len(kw) > len(best) {
			best = kw
			bestScore = score
		}
	}
	if best == "" {
		return 0, false
	}
	return bestScore, true
}

// ConfidenceScore extracts a labeled CONFIDENCE_SCORE field. The prompt asks
// for a 0-100 value, so integers are read on that scale: a literal "1" is
// 1/100, not a perfect score. Only fractional literals in [0,1] (they contain
// a decimal point) pass through as already normalized. Anything else
// (negative, above 100, missing) reports not-found rather than clamping; the
// caller decides the fallback.
func ConfidenceScore(text string) (float64, bool) {
	m := confidenceRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	switch {
	case v >= 0 && v <= 1 && strings.Contains(m[1], "."):
		return v, true
	case v >= 0 && v <= 100:
		return v / 100.0, true
	default:
		return 0, false
	}
}

// IssueScores extracts ISSUE_<n>_SCORE fields (0-100 scale) plus their
// optional ISSUE_<n>_EXPLANATION lines for issue indexes [0, issueCount).
// When the text contains no issue-score fields at all, it returns nil. When
// it contains some, every requested index gets a row: indexes whose value is
// missing or outside 0-100 fall back to the neutral score 50. Parse failure
// never fails the run.
func IssueScores(text string, dimension models.EvaluationDimension, issueCount int) []models.IssueScore {
	if issueCount <= 0 {
		return nil
	}

	matches := issueScoreRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	parsed := make(map[int]int, len(matches))
	for _, m := range matches {
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		v, err := strconv.ParseFloat(m[2], 64)
		if err != nil || v < 0 || v > 100 {
			continue
		}
		if _, seen := parsed[idx]; !seen {
			parsed[idx] = int(v)
		}
	}

	explanations := make(map[int]string)
	for _, m := range issueExplanationRe.FindAllStringSubmatch(text, -1) {
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if _, seen := explanations[idx]; !seen {
			explanations[idx] = strings.TrimSpace(m[2])
		}
	}

	scores := make([]models.IssueScore, 0, issueCount)
	for i := 0; i < issueCount; i++ {
		score, ok := parsed[i]
		if !ok {
			score = models.NeutralIssueScore
		}
		scores = append(scores, models.IssueScore{
			IssueIndex:      i,
			ValidationScore: score,
			Explanation:     explanations[i],
			Dimension:       dimension,
		})
	}
	return scores
}

// Summary extracts the labeled SUMMARY field, or "" when absent.
func Summary(text string) string {
	m := summaryRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// Issues extracts the bullet list following an ISSUES: label. The list ends
// at the first non-bullet line. Returns nil when the label is absent or the
// list is empty.
func Issues(text string) []string {
	lines := strings.Split(text, "\n")
	var out []string
	inList := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !inList {
			upper := strings.ToUpper(trimmed)
			if upper == "ISSUES:" || upper == "ISSUES" {
				inList = true
			}
			continue
		}
		if strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "*") {
			item := strings.TrimSpace(strings.TrimLeft(trimmed, "-*"))
			if item != "" {
				out = append(out, item)
			}
			continue
		}
		break
	}
	return out
}

// JSONBlock extracts a JSON body out of a ```json fenced block, falling back
// to the whole text with any stray fences stripped. Models frequently wrap
// structured answers in markdown fences even when told not to.
func JSONBlock(text string) string {
	lines := strings.Split(text, "\n")
	var b strings.Builder
	inBlock := false
	found := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !inBlock && trimmed == "```json" {
			inBlock = true
			found = true
			continue
		}
		if inBlock && trimmed == "```" {
			break
		}
		if inBlock {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(line)
		}
	}

	if found {
		return strings.TrimSpace(b.String())
	}

	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

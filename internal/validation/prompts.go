package validation

import (
	"fmt"
	"strings"

	"github.com/Really-Great-Tech/expense-ai-sub001/internal/models"
)

// dimensionInstructions tells the judge what to assess for each dimension.
var dimensionInstructions = map[models.EvaluationDimension]string{
	models.DimensionFactualGrounding: "Assess FACTUAL GROUNDING: is every factual claim in the " +
		"analysis traceable to the extracted receipt data? Claims about amounts, dates, vendors " +
		"or tax fields that do not appear in the extracted data lower the score.",
	models.DimensionKnowledgeBaseAdherence: "Assess KNOWLEDGE BASE ADHERENCE: does the analysis " +
		"apply the provided compliance rules and ICP context, and only those? Conclusions that " +
		"ignore an applicable rule or rely on rules not provided lower the score.",
	models.DimensionComplianceAccuracy: "Assess COMPLIANCE ACCURACY: is the compliance " +
		"determination correct for this country and receipt type given the rules? A wrong " +
		"compliant/non-compliant call is the most serious possible defect.",
	models.DimensionIssueCategorization: "Assess ISSUE CATEGORIZATION: is each identified issue " +
		"typed correctly and described accurately? Mislabeled, duplicated or vague issues lower " +
		"the score.",
	models.DimensionRecommendationValidity: "Assess RECOMMENDATION VALIDITY: are the " +
		"recommendations actionable, justified by the identified issues, and consistent with the " +
		"compliance rules?",
	models.DimensionHallucinationDetection: "Assess HALLUCINATION DETECTION: does the analysis " +
		"invent facts, rules or receipt fields that appear in neither the extracted data nor the " +
		"compliance rules? Any fabricated detail lowers the score sharply.",
}

// BuildPrompt renders the judge prompt for one dimension: shared case
// material, the dimension instruction, then the required reply format.
func BuildPrompt(dim models.EvaluationDimension, req *Request, analysis *Analysis) string {
	var b strings.Builder

	b.WriteString("You are auditing an AI-generated expense-receipt compliance analysis.\n\n")

	fmt.Fprintf(&b, "COUNTRY: %s\n", req.Country)
	fmt.Fprintf(&b, "RECEIPT TYPE: %s\n\n", req.ReceiptType)

	if strings.TrimSpace(req.ICPContext) != "" {
		fmt.Fprintf(&b, "ICP CONTEXT:\n%s\n\n", req.ICPContext)
	}
	if strings.TrimSpace(req.ComplianceRulesJSON) != "" {
		fmt.Fprintf(&b, "COMPLIANCE RULES:\n%s\n\n", req.ComplianceRulesJSON)
	}
	if strings.TrimSpace(req.ExtractedDataJSON) != "" {
		fmt.Fprintf(&b, "EXTRACTED RECEIPT DATA:\n%s\n\n", req.ExtractedDataJSON)
	}

	fmt.Fprintf(&b, "ANALYSIS UNDER REVIEW:\n%s\n\n", req.AIResponseJSON)

	if len(analysis.Issues) > 0 {
		b.WriteString("ISSUES IDENTIFIED BY THE ANALYSIS (referenced by index below):\n")
		for i, issue := range analysis.Issues {
			fmt.Fprintf(&b, "%d. [%s] %s\n", i, issue.Type, issue.Description)
		}
		b.WriteString("\n")
	}

	b.WriteString(dimensionInstructions[dim])
	b.WriteString("\n\n")

	b.WriteString("Reply using exactly this format:\n")
	b.WriteString("CONFIDENCE_SCORE: <0-100, how well the analysis holds up on this dimension>\n")
	b.WriteString("SUMMARY: <one short paragraph justifying the score>\n")
	b.WriteString("ISSUES:\n")
	b.WriteString("- <each problem you found with the analysis, one per line; omit the list if none>\n")

	if len(analysis.Issues) > 0 {
		b.WriteString("\nAdditionally, for each numbered issue above:\n")
		fmt.Fprintf(&b, "ISSUE_<n>_SCORE: <0-100, how valid issue n is on this dimension>\n")
		fmt.Fprintf(&b, "ISSUE_<n>_EXPLANATION: <one line>\n")
	}

	return b.String()
}

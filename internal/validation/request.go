// Package validation implements the dimension layer: it turns one AI-generated
// expense-compliance analysis into per-dimension judge prompts, runs a judge
// panel per dimension, and rolls the verdicts into a ValidationSummary.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/Really-Great-Tech/expense-ai-sub001/internal/extract"
	"github.com/Really-Great-Tech/expense-ai-sub001/internal/models"
)

// analysisSchemaJSON is the structural contract for the incoming AI analysis
// payload. A payload that fails it would produce six garbage prompts, so it
// is rejected up front instead.
const analysisSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["compliance_status"],
  "properties": {
    "compliance_status": {"type": "string", "minLength": 1},
    "summary": {"type": "string"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "issues": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type", "description"],
        "properties": {
          "type": {"type": "string", "minLength": 1},
          "description": {"type": "string", "minLength": 1},
          "severity": {"type": "string"}
        }
      }
    },
    "recommendations": {
      "type": "array",
      "items": {"type": "string"}
    }
  }
}`

// analysisSchema is the compiled JSON Schema for AI analysis payloads.
var analysisSchema *jsonschema.Schema

func init() {
	analysisSchema = mustCompileSchema(analysisSchemaJSON, "analysis.schema.json")
}

func mustCompileSchema(raw string, name string) *jsonschema.Schema {
	var schemaDoc any
	if err := json.Unmarshal([]byte(raw), &schemaDoc); err != nil {
		panic(fmt.Sprintf("failed to parse embedded %s: %v", name, err))
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, schemaDoc); err != nil {
		panic(fmt.Sprintf("failed to add %s resource: %v", name, err))
	}

	sch, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("failed to compile %s: %v", name, err))
	}
	return sch
}

// Request carries everything one validation job needs: the AI analysis being
// judged plus the source material the judges compare it against.
type Request struct {
	AIResponseJSON      string `json:"ai_response_json"`
	Country             string `json:"country"`
	ReceiptType         string `json:"receipt_type"`
	ICPContext          string `json:"icp_context"`
	ComplianceRulesJSON string `json:"compliance_rules_json"`
	ExtractedDataJSON   string `json:"extracted_data_json"`
}

// Analysis is the parsed AI analysis payload.
type Analysis struct {
	ComplianceStatus string         `json:"compliance_status"`
	Summary          string         `json:"summary,omitempty"`
	Confidence       float64        `json:"confidence,omitempty"`
	Issues           []models.Issue `json:"issues,omitempty"`
	Recommendations  []string       `json:"recommendations,omitempty"`
}

// Prepared is a request whose analysis payload has been parsed and
// schema-validated, with one prompt built per dimension. Building it is the
// only part of a run whose failure aborts the whole validation.
type Prepared struct {
	Request  *Request
	Analysis *Analysis
	Prompts  map[models.EvaluationDimension]string
}

// Prepare parses and schema-validates the analysis payload, then builds the
// per-dimension prompts.
func Prepare(req *Request) (*Prepared, error) {
	if req == nil {
		return nil, fmt.Errorf("validation request is nil")
	}
	if strings.TrimSpace(req.AIResponseJSON) == "" {
		return nil, fmt.Errorf("validation request has no AI analysis payload")
	}

	// Upstream analyses come out of an LLM and sometimes arrive wrapped in a
	// markdown code fence.
	raw := extract.JSONBlock(req.AIResponseJSON)

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("parsing AI analysis payload: %w", err)
	}
	if err := analysisSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("AI analysis payload failed schema validation: %w", err)
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(raw), &analysis); err != nil {
		return nil, fmt.Errorf("decoding AI analysis payload: %w", err)
	}

	prepared := &Prepared{
		Request:  req,
		Analysis: &analysis,
		Prompts:  make(map[models.EvaluationDimension]string, len(models.AllDimensions())),
	}
	for _, dim := range models.AllDimensions() {
		prepared.Prompts[dim] = BuildPrompt(dim, req, &analysis)
	}
	return prepared, nil
}

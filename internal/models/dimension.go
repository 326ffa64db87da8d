package models

// EvaluationDimension is one fixed axis of compliance evaluation. The set is
// closed; validators iterate AllDimensions rather than accepting arbitrary
// dimension names.
type EvaluationDimension string

const (
	DimensionFactualGrounding       EvaluationDimension = "factual_grounding"
	DimensionKnowledgeBaseAdherence EvaluationDimension = "knowledge_base_adherence"
	DimensionComplianceAccuracy     EvaluationDimension = "compliance_accuracy"
	DimensionIssueCategorization    EvaluationDimension = "issue_categorization"
	DimensionRecommendationValidity EvaluationDimension = "recommendation_validity"
	DimensionHallucinationDetection EvaluationDimension = "hallucination_detection"
)

// AllDimensions returns the six dimensions in their canonical evaluation order.
func AllDimensions() []EvaluationDimension {
	return []EvaluationDimension{
		DimensionFactualGrounding,
		DimensionKnowledgeBaseAdherence,
		DimensionComplianceAccuracy,
		DimensionIssueCategorization,
		DimensionRecommendationValidity,
		DimensionHallucinationDetection,
	}
}

// Valid reports whether d is one of the six known dimensions.
func (d EvaluationDimension) Valid() bool {
	switch d {
	case DimensionFactualGrounding, DimensionKnowledgeBaseAdherence,
		DimensionComplianceAccuracy, DimensionIssueCategorization,
		DimensionRecommendationValidity, DimensionHallucinationDetection:
		return true
	}
	return false
}

// ParseDimension converts a string to an EvaluationDimension.
func ParseDimension(s string) (EvaluationDimension, error) {
	d := EvaluationDimension(s)
	if !d.Valid() {
		return "", &InvalidDimensionError{Dimension: s}
	}
	return d, nil
}

func (d EvaluationDimension) String() string {
	return string(d)
}

// priorityWeights are the fixed per-dimension weights used when rolling
// per-issue scores across dimensions. Compliance accuracy carries the most
// weight, recommendation validity the least. These are calibration constants
// and are not derived from any statistical principle.
var priorityWeights = map[EvaluationDimension]int{
	DimensionComplianceAccuracy:     10,
	DimensionHallucinationDetection: 9,
	DimensionFactualGrounding:       8,
	DimensionKnowledgeBaseAdherence: 7,
	DimensionIssueCategorization:    6,
	DimensionRecommendationValidity: 5,
}

// PriorityWeight returns the aggregation weight for d, or 0 for an unknown
// dimension.
func (d EvaluationDimension) PriorityWeight() int {
	return priorityWeights[d]
}

package types

// Operator is the comparison a filter applies
type Operator string

const (
	OpGreaterOrEqual Operator = "GREATER_OR_EQUAL"
	OpLesserOrEqual  Operator = "LESSER_OR_EQUAL"
	OpContains       Operator = "CONTAINS"
	OpEquals         Operator = "EQUALS"
)

// ValueType tells how a filter value string is interpreted
type ValueType string

const (
	ValueString      ValueType = "STRING"
	ValueFloat       ValueType = "FLOAT"
	ValueDate        ValueType = "DATE"
	ValueArrayString ValueType = "ARRAY_STRING" // Comma-joined list
)

// Filter is a structured search filter as received from callers
type Filter struct {
	Name      string    `json:"name"`
	Operator  Operator  `json:"operator"`
	Value     string    `json:"value"`
	ValueType ValueType `json:"valueType"`
}

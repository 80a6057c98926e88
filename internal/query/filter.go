package query

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dshills/marketplace-discovery/pkg/types"
)

// FilterClause is a validated filter. The set of implementations is closed:
// RangeFilter, EqualsFilter and ContainsAnyFilter.
type FilterClause interface {
	// Query returns the inclusion clause for the filter
	Query() Query
	isFilterClause()
}

// RangeDirection says which side of the bound matches
type RangeDirection int

const (
	AtLeast RangeDirection = iota // field >= bound
	AtMost                        // field <= bound
)

// RangeFilter keeps documents whose field is on one side of Bound (inclusive)
type RangeFilter struct {
	Field     string
	Bound     any // float64 for FLOAT, string for DATE
	Direction RangeDirection
}

func (f RangeFilter) Query() Query {
	if f.Direction == AtMost {
		return RangeQuery{Field: f.Field, Lte: f.Bound}
	}
	return RangeQuery{Field: f.Field, Gte: f.Bound}
}

func (RangeFilter) isFilterClause() {}

// EqualsFilter keeps documents whose field holds exactly Value
type EqualsFilter struct {
	Field string
	Value any
}

func (f EqualsFilter) Query() Query {
	return TermQuery{Field: f.Field, Value: f.Value}
}

func (EqualsFilter) isFilterClause() {}

// ContainsAnyFilter keeps documents whose array field holds at least one of Values
type ContainsAnyFilter struct {
	Field  string
	Values []string
}

func (f ContainsAnyFilter) Query() Query {
	should := make([]Query, len(f.Values))
	for i, v := range f.Values {
		should[i] = TermQuery{Field: f.Field, Value: v}
	}
	return &BoolQuery{Should: should, MinimumShouldMatch: 1}
}

func (ContainsAnyFilter) isFilterClause() {}

// ParseFilter validates a boundary filter and converts it to its clause type.
// Operator and value type combinations outside the supported set fail with
// types.ErrInvalidFilter.
func ParseFilter(f types.Filter) (FilterClause, error) {
	field := strings.TrimSpace(f.Name)
	if field == "" {
		return nil, fmt.Errorf("%w: name is required", types.ErrInvalidFilter)
	}

	switch f.Operator {
	case types.OpGreaterOrEqual, types.OpLesserOrEqual:
		bound, err := rangeBound(f)
		if err != nil {
			return nil, err
		}
		direction := AtLeast
		if f.Operator == types.OpLesserOrEqual {
			direction = AtMost
		}
		return RangeFilter{Field: field, Bound: bound, Direction: direction}, nil

	case types.OpEquals:
		value, err := equalsValue(f)
		if err != nil {
			return nil, err
		}
		return EqualsFilter{Field: field, Value: value}, nil

	case types.OpContains:
		if f.ValueType != types.ValueArrayString {
			return nil, unsupported(f)
		}
		values := splitList(f.Value)
		if len(values) == 0 {
			return nil, fmt.Errorf("%w: %s needs at least one value", types.ErrInvalidFilter, field)
		}
		return ContainsAnyFilter{Field: field, Values: values}, nil
	}

	return nil, unsupported(f)
}

// ParseFilters converts every filter, failing on the first invalid one
func ParseFilters(filters []types.Filter) ([]FilterClause, error) {
	clauses := make([]FilterClause, 0, len(filters))
	for i, f := range filters {
		clause, err := ParseFilter(f)
		if err != nil {
			return nil, fmt.Errorf("filter %d: %w", i, err)
		}
		clauses = append(clauses, clause)
	}
	return clauses, nil
}

func rangeBound(f types.Filter) (any, error) {
	switch f.ValueType {
	case types.ValueFloat:
		return parseFloat(f)
	case types.ValueDate:
		if strings.TrimSpace(f.Value) == "" {
			return nil, fmt.Errorf("%w: %s has an empty date", types.ErrInvalidFilter, f.Name)
		}
		return strings.TrimSpace(f.Value), nil
	}
	return nil, unsupported(f)
}

func equalsValue(f types.Filter) (any, error) {
	switch f.ValueType {
	case types.ValueFloat:
		return parseFloat(f)
	case types.ValueString, types.ValueDate:
		return f.Value, nil
	}
	return nil, unsupported(f)
}

func parseFloat(f types.Filter) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(f.Value), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s value %q is not a finite number", types.ErrInvalidFilter, f.Name, f.Value)
	}
	return v, nil
}

func splitList(value string) []string {
	var values []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}

func unsupported(f types.Filter) error {
	return fmt.Errorf("%w: operator %s does not accept value type %s", types.ErrInvalidFilter, f.Operator, f.ValueType)
}

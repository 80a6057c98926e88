package query

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/marketplace-discovery/pkg/types"
)

// toJSON renders a query the way it is sent to the index
func toJSON(t *testing.T, q Query) string {
	t.Helper()
	b, err := json.Marshal(q.Source())
	require.NoError(t, err)
	return string(b)
}

const visibilityJSON = `[
	{"term": {"status": "withdrawn"}},
	{"term": {"valid": false}},
	{"terms": {"scoreTags": ["Hide", "Delete"]}}
]`

func TestBuildEmptyQuery(t *testing.T) {
	built, err := Build("", nil)
	require.NoError(t, err)

	assert.JSONEq(t, `{"bool": {
		"must": [{"match_all": {}}],
		"must_not": `+visibilityJSON+`
	}}`, toJSON(t, built.Ranked))
	assert.JSONEq(t, toJSON(t, built.Ranked), toJSON(t, built.Aggregation))
}

func TestBuildWhitespaceQueryIsEmpty(t *testing.T) {
	built, err := Build("   ", nil)
	require.NoError(t, err)

	require.Len(t, built.Ranked.Must, 1)
	assert.Equal(t, MatchAllQuery{}, built.Ranked.Must[0])
	assert.Empty(t, built.Ranked.Should)
}

func TestBuildTextQuery(t *testing.T) {
	built, err := Build(" road bike ", nil)
	require.NoError(t, err)

	assert.JSONEq(t, `{"bool": {
		"must": [{"match": {"all_text": {"query": "road bike", "fuzziness": "AUTO"}}}],
		"should": [
			{"match": {"title": {"query": "road bike", "fuzziness": "AUTO", "boost": 2}}},
			{"match_phrase": {"all_text": {"query": "road bike", "slop": 50}}}
		],
		"must_not": `+visibilityJSON+`
	}}`, toJSON(t, built.Ranked))
}

func TestBuildAggregationDropsRankingClauses(t *testing.T) {
	filters := []types.Filter{
		{Name: "price.amount", Operator: types.OpGreaterOrEqual, Value: "5", ValueType: types.ValueFloat},
		{Name: "category", Operator: types.OpEquals, Value: "schema.forSale", ValueType: types.ValueString},
	}
	built, err := Build("bike", filters)
	require.NoError(t, err)

	assert.Len(t, built.Ranked.Should, 2)
	assert.Empty(t, built.Aggregation.Should)
	assert.Equal(t, built.Ranked.Must, built.Aggregation.Must)
	assert.Equal(t, built.Ranked.MustNot, built.Aggregation.MustNot)
	assert.Equal(t, built.Ranked.Filter, built.Aggregation.Filter)

	// The aggregation tree is independent of the ranked one
	built.Aggregation.Filter[0] = MatchAllQuery{}
	assert.IsType(t, RangeQuery{}, built.Ranked.Filter[0])
}

func TestBuildFilters(t *testing.T) {
	filters := []types.Filter{
		{Name: "price.amount", Operator: types.OpGreaterOrEqual, Value: "5", ValueType: types.ValueFloat},
		{Name: "price.amount", Operator: types.OpLesserOrEqual, Value: "99.5", ValueType: types.ValueFloat},
		{Name: "category", Operator: types.OpEquals, Value: "schema.forSale", ValueType: types.ValueString},
		{Name: "listingType", Operator: types.OpContains, Value: "unit,fractional", ValueType: types.ValueArrayString},
	}
	built, err := Build("", filters)
	require.NoError(t, err)

	assert.JSONEq(t, `{"bool": {
		"must": [{"match_all": {}}],
		"must_not": `+visibilityJSON+`,
		"filter": [
			{"range": {"price.amount": {"gte": 5}}},
			{"range": {"price.amount": {"lte": 99.5}}},
			{"term": {"category": "schema.forSale"}},
			{"bool": {"should": [
				{"term": {"listingType": "unit"}},
				{"term": {"listingType": "fractional"}}
			], "minimum_should_match": 1}}
		]
	}}`, toJSON(t, built.Ranked))
}

func TestBuildRejectsInvalidFilter(t *testing.T) {
	_, err := Build("bike", []types.Filter{
		{Name: "category", Operator: "STARTS_WITH", Value: "x", ValueType: types.ValueString},
	})
	assert.ErrorIs(t, err, types.ErrInvalidFilter)
}

func TestVisibilityRulesAlwaysPresent(t *testing.T) {
	inputs := []struct {
		text    string
		filters []types.Filter
	}{
		{"", nil},
		{"bike", nil},
		{"bike", []types.Filter{{Name: "status", Operator: types.OpEquals, Value: "withdrawn", ValueType: types.ValueString}}},
	}
	for _, in := range inputs {
		built, err := Build(in.text, in.filters)
		require.NoError(t, err)
		for _, q := range []*BoolQuery{built.Ranked, built.Aggregation} {
			assert.Contains(t, q.MustNot, TermQuery{Field: StatusField, Value: types.StatusWithdrawn})
			assert.Contains(t, q.MustNot, TermQuery{Field: ValidField, Value: false})
			assert.Contains(t, q.MustNot, TermsQuery{Field: ScoreTagsField, Values: []string{"Hide", "Delete"}})
		}
	}
}

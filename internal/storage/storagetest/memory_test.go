package storagetest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/marketplace-discovery/internal/query"
	"github.com/dshills/marketplace-discovery/internal/rates"
	"github.com/dshills/marketplace-discovery/internal/storage"
	"github.com/dshills/marketplace-discovery/pkg/types"
)

func listing(id, title, description string, amount string, currency types.CurrencyKey) *types.Listing {
	return &types.Listing{
		ID:          id,
		Title:       title,
		Description: description,
		Category:    "schema.forSale",
		Price:       types.Price{Amount: amount, Currency: currency},
		Status:      types.StatusActive,
		Valid:       true,
	}
}

func ids(res *storage.SearchResponse) []string {
	out := make([]string, len(res.Hits))
	for i, h := range res.Hits {
		out[i] = h.ID
	}
	return out
}

func search(t *testing.T, idx *MemoryIndex, req storage.SearchRequest) *storage.SearchResponse {
	t.Helper()
	if req.Size == 0 {
		req.Size = 100
	}
	res, err := idx.Search(context.Background(), req)
	require.NoError(t, err)
	return res
}

func TestMatchFuzziness(t *testing.T) {
	idx := NewMemoryIndex(
		listing("a", "Vintage bicycle", "", "1", "fiat-USD"),
		listing("b", "Bicycel pump", "", "1", "fiat-USD"),
		listing("c", "Garden chair", "", "1", "fiat-USD"),
	)

	res := search(t, idx, storage.SearchRequest{
		Query: query.MatchQuery{Field: query.AllTextField, Text: "bicycle", Fuzziness: query.Fuzziness},
	})
	assert.Equal(t, []string{"a", "b"}, ids(res), "exact match outranks the one-typo match")

	res = search(t, idx, storage.SearchRequest{
		Query: query.MatchQuery{Field: query.AllTextField, Text: "bicycle"},
	})
	assert.Equal(t, []string{"a"}, ids(res), "no fuzziness means exact terms only")
}

func TestShortTermsAreNotFuzzy(t *testing.T) {
	assert.Equal(t, 0, allowedEdits("tv", query.Fuzziness))
	assert.Equal(t, 1, allowedEdits("chair", query.Fuzziness))
	assert.Equal(t, 2, allowedEdits("bicycle", query.Fuzziness))
}

func TestMatchScoreEditBudget(t *testing.T) {
	tokens := []token{{text: "bicylce", pos: 0}, {text: "chiar", pos: 1}}

	assert.Equal(t, 0.5, matchScore(tokens, []string{"bicycle"}, query.Fuzziness), "a swap is two edits, within budget for long terms")
	assert.Equal(t, 0.0, matchScore(tokens, []string{"chair"}, query.Fuzziness), "a swap exceeds the one-edit budget of a five-rune term")
	assert.Equal(t, 0.0, matchScore(tokens, []string{"bicycle"}, ""))
}

func TestMatchPhraseSlop(t *testing.T) {
	idx := NewMemoryIndex(
		listing("near", "red road bike", "", "1", "fiat-USD"),
		listing("far", "red "+repeat("very ", 60)+"bike", "", "1", "fiat-USD"),
		listing("split", "red", "bike", "1", "fiat-USD"),
	)

	res := search(t, idx, storage.SearchRequest{
		Query: query.MatchPhraseQuery{Field: query.AllTextField, Text: "red bike", Slop: query.PhraseSlop},
	})
	// Values copied into all_text sit far apart, so a phrase never spans title and description
	assert.Equal(t, []string{"near"}, ids(res))
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}

func TestFiltersAndVisibility(t *testing.T) {
	withdrawn := listing("withdrawn", "Bike", "", "1", "fiat-USD")
	withdrawn.Status = types.StatusWithdrawn
	invalid := listing("invalid", "Bike", "", "1", "fiat-USD")
	invalid.Valid = false
	hidden := listing("hidden", "Bike", "", "1", "fiat-USD")
	hidden.ScoreTags = []string{types.TagHide}

	idx := NewMemoryIndex(
		listing("cheap", "Bike", "", "5", "fiat-USD"),
		listing("dear", "Bike", "", "500", "fiat-USD"),
		withdrawn, invalid, hidden,
	)

	built, err := query.Build("", []types.Filter{
		{Name: "price.amount", Operator: types.OpLesserOrEqual, Value: "100", ValueType: types.ValueFloat},
	})
	require.NoError(t, err)

	res := search(t, idx, storage.SearchRequest{Query: built.Ranked})
	assert.Equal(t, []string{"cheap"}, ids(res))
}

func TestRangeSkipsMalformedValues(t *testing.T) {
	idx := NewMemoryIndex(
		listing("ok", "Bike", "", "5", "fiat-USD"),
		listing("bad", "Bike", "", "five", "fiat-USD"),
	)

	res := search(t, idx, storage.SearchRequest{
		Query: query.RangeQuery{Field: query.PriceAmountField, Lte: 10.0},
	})
	assert.Equal(t, []string{"ok"}, ids(res))
}

func TestRangeOnDates(t *testing.T) {
	old := listing("old", "Bike", "", "1", "fiat-USD")
	oldTs := time.Date(2018, 6, 1, 0, 0, 0, 0, time.UTC).Unix()
	old.CreatedAt = &oldTs
	recent := listing("recent", "Bike", "", "1", "fiat-USD")
	recentTs := time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC).Unix()
	recent.CreatedAt = &recentTs

	idx := NewMemoryIndex(old, recent)
	res := search(t, idx, storage.SearchRequest{
		Query: query.RangeQuery{Field: query.CreatedAtField, Gte: "2019-01-01"},
	})
	assert.Equal(t, []string{"recent"}, ids(res))
}

func TestFunctionScore(t *testing.T) {
	now := time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC)
	created := now.Add(-9 * 24 * time.Hour).Unix()
	two := 2.0

	l := listing("a", "Bike", "", "1", "fiat-USD")
	l.CreatedAt = &created
	l.ScoreMultiplier = &two
	plain := listing("b", "Bike", "", "1", "fiat-USD")

	idx := NewMemoryIndex(l, plain)
	res := search(t, idx, storage.SearchRequest{Query: query.Rank(query.MatchAllQuery{}, now)})

	require.Len(t, res.Hits, 2)
	assert.Equal(t, "a", res.Hits[0].ID)
	assert.InDelta(t, 2.5, res.Hits[0].Score, 1e-9)
	assert.InDelta(t, 1.0, res.Hits[1].Score, 1e-9)
}

func TestUnknownScriptRejected(t *testing.T) {
	idx := NewMemoryIndex(listing("a", "Bike", "", "1", "fiat-USD"))

	_, err := idx.Search(context.Background(), storage.SearchRequest{
		Query: &query.FunctionScoreQuery{
			Query:     query.MatchAllQuery{},
			Functions: []query.ScoreFunction{query.ScriptScore{Script: query.Script{Source: "return 2;"}}},
		},
		Size: 10,
	})
	assert.Error(t, err)

	_, err = idx.Search(context.Background(), storage.SearchRequest{
		Query: query.MatchAllQuery{},
		Sort:  []query.Sorter{&query.ScriptSort{Type: "number", Order: "asc", Script: query.Script{Source: "return 1;"}}},
		Size:  10,
	})
	assert.Error(t, err)
}

func TestPriceSortAndSentinel(t *testing.T) {
	idx := NewMemoryIndex(
		listing("eth", "Bike", "", "0.1", "token-ETH"),
		listing("usd", "Bike", "", "10", "fiat-USD"),
		listing("broken", "Bike", "", "ten", "fiat-USD"),
		listing("norate", "Bike", "", "1", "fiat-KRW"),
	)
	table := rates.Table{"fiat-USD": "1", "token-ETH": "200"}

	asc := search(t, idx, storage.SearchRequest{
		Query: query.MatchAllQuery{},
		Sort:  []query.Sorter{query.PriceSort(table, query.OrderAsc)},
	})
	assert.Equal(t, []string{"usd", "eth", "broken", "norate"}, ids(asc))
	assert.Zero(t, asc.Hits[0].Score)

	desc := search(t, idx, storage.SearchRequest{
		Query: query.MatchAllQuery{},
		Sort:  []query.Sorter{query.PriceSort(table, query.OrderDesc)},
	})
	assert.Equal(t, []string{"eth", "usd", "broken", "norate"}, ids(desc))
}

func TestAggregations(t *testing.T) {
	idx := NewMemoryIndex(
		listing("a", "Bike", "", "5", "fiat-USD"),
		listing("b", "Bike", "", "50.5", "fiat-USD"),
		listing("c", "Bike", "", "oops", "fiat-USD"),
	)
	aggs := map[string]query.Aggregation{
		"min": query.MetricAggregation{Kind: "min", Field: query.PriceAmountField},
		"max": query.MetricAggregation{Kind: "max", Field: query.PriceAmountField},
	}

	res := search(t, idx, storage.SearchRequest{Query: query.MatchAllQuery{}, Aggregations: aggs})
	require.NotNil(t, res.Aggregations["min"])
	assert.Equal(t, 5.0, *res.Aggregations["min"])
	assert.Equal(t, 50.5, *res.Aggregations["max"])

	empty := search(t, idx, storage.SearchRequest{
		Query:        query.TermQuery{Field: "category", Value: "nothing"},
		Aggregations: aggs,
	})
	assert.Nil(t, empty.Aggregations["min"])
	assert.Nil(t, empty.Aggregations["max"])
	assert.Zero(t, empty.Total)
}

func TestPagingAndProjection(t *testing.T) {
	idx := NewMemoryIndex()
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		require.NoError(t, idx.Put(context.Background(), id, listing(id, "Bike "+id, "desc", "1", "fiat-USD")))
	}

	res := search(t, idx, storage.SearchRequest{
		Query:  query.MatchAllQuery{},
		From:   3,
		Size:   10,
		Source: types.ListingViewFields,
	})
	assert.Equal(t, int64(5), res.Total)
	assert.Equal(t, []string{"4", "5"}, ids(res))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(res.Hits[0].Source, &doc))
	assert.Contains(t, doc, "title")
	assert.NotContains(t, doc, "status")
	assert.NotContains(t, doc, "valid")
}

func TestGetPutUpdate(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(listing("a", "Bike", "", "1", "fiat-USD"))

	_, err := idx.Get(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, idx.Update(ctx, "missing", map[string]any{"title": "x"}), storage.ErrNotFound)

	require.NoError(t, idx.Update(ctx, "a", map[string]any{
		"scoreTags":       []string{"Featured"},
		"scoreMultiplier": 3.0,
	}))

	got, err := idx.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Bike", got.Title, "update keeps other fields")
	assert.Equal(t, []string{"Featured"}, got.ScoreTags)
	assert.Equal(t, 3.0, got.Multiplier())

	// Returned listings are copies
	got.Title = "changed"
	again, err := idx.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Bike", again.Title)
}

func TestFailSearchesAndClose(t *testing.T) {
	idx := NewMemoryIndex(listing("a", "Bike", "", "1", "fiat-USD"))
	boom := errors.New("boom")
	idx.FailSearches(func(req storage.SearchRequest) error {
		if req.Size == 0 {
			return boom
		}
		return nil
	})

	_, err := idx.Search(context.Background(), storage.SearchRequest{Query: query.MatchAllQuery{}})
	assert.ErrorIs(t, err, boom)
	_, err = idx.Search(context.Background(), storage.SearchRequest{Query: query.MatchAllQuery{}, Size: 1})
	assert.NoError(t, err)
	assert.Len(t, idx.Requests(), 2)

	require.NoError(t, idx.Close())
	_, err = idx.Get(context.Background(), "a")
	assert.Error(t, err)
}

package searcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dshills/marketplace-discovery/internal/query"
	"github.com/dshills/marketplace-discovery/internal/rates"
	"github.com/dshills/marketplace-discovery/internal/storage"
	"github.com/dshills/marketplace-discovery/internal/storage/storagetest"
	"github.com/dshills/marketplace-discovery/pkg/types"
)

var testNow = time.Date(2019, 3, 1, 12, 0, 0, 0, time.UTC)

// staticRates is a rate provider with a fixed table
type staticRates rates.Table

func (r staticRates) Rates(ctx context.Context, currencies []types.CurrencyKey) rates.Table {
	return rates.Table(r)
}

func newListing(id, title string, amount string, currency types.CurrencyKey) *types.Listing {
	return &types.Listing{
		ID:          id,
		Title:       title,
		Description: "A listing for " + title,
		Category:    "schema.forSale",
		Price:       types.Price{Amount: amount, Currency: currency},
		Status:      types.StatusActive,
		Valid:       true,
	}
}

func newSearcher(idx storage.Index) *Searcher {
	sorter := query.NewSortResolver(staticRates{"fiat-USD": "1", "token-ETH": "200"}, nil)
	return New(idx, sorter, nil, WithClock(func() time.Time { return testNow }))
}

func listingIDs(res *types.SearchResult) []string {
	ids := make([]string, len(res.Listings))
	for i, l := range res.Listings {
		ids[i] = l.ID
	}
	return ids
}

func ptr[T any](v T) *T { return &v }

func TestExcludedListingsNeverReturned(t *testing.T) {
	withdrawn := newListing("withdrawn", "Road bike", "10", "fiat-USD")
	withdrawn.Status = types.StatusWithdrawn
	invalid := newListing("invalid", "Road bike", "10", "fiat-USD")
	invalid.Valid = false
	hidden := newListing("hidden", "Road bike", "10", "fiat-USD")
	hidden.ScoreTags = []string{types.TagHide}
	deleted := newListing("deleted", "Road bike", "10", "fiat-USD")
	deleted.ScoreTags = []string{types.TagLowQuality, types.TagDelete}

	idx := storagetest.NewMemoryIndex(
		newListing("visible", "Road bike", "10", "fiat-USD"),
		withdrawn, invalid, hidden, deleted,
	)
	s := newSearcher(idx)

	requests := []Request{
		{PageSize: 10},
		{Query: "road bike", PageSize: 10},
		{Query: "bike", Sort: "price.amount", Order: "asc", PageSize: 10},
		{PageSize: 10, Filters: []types.Filter{
			{Name: "status", Operator: types.OpEquals, Value: types.StatusWithdrawn, ValueType: types.ValueString},
		}},
	}
	for _, req := range requests {
		res, err := s.Search(context.Background(), req)
		require.NoError(t, err)
		for _, l := range res.Listings {
			assert.Equal(t, "visible", l.ID, "request %+v", req)
		}
	}
}

func TestEmptyQueryReturnsVisibleListingsInRankingOrder(t *testing.T) {
	recent := newListing("recent", "Desk lamp", "10", "fiat-USD")
	recent.CreatedAt = ptr(testNow.Add(-9 * 24 * time.Hour).Unix()) // boost 1.25
	featured := newListing("featured", "Armchair", "10", "fiat-USD")
	featured.ScoreMultiplier = ptr(3.0)
	weak := newListing("weak", "Stool", "10", "fiat-USD")
	weak.ScoreMultiplier = ptr(0.1)
	plain := newListing("plain", "Table", "10", "fiat-USD")

	idx := storagetest.NewMemoryIndex(weak, plain, recent, featured)
	res, err := newSearcher(idx).Search(context.Background(), Request{Query: "   ", PageSize: 10})
	require.NoError(t, err)

	assert.Equal(t, []string{"featured", "recent", "plain", "weak"}, listingIDs(res))
	assert.Equal(t, int64(4), res.Stats.TotalNumberOfListings)
}

func TestTextQueryRanking(t *testing.T) {
	idx := storagetest.NewMemoryIndex()
	for _, l := range []*types.Listing{
		{ID: "desc-only", Title: "Vintage frame", Description: "fits any bike", Status: types.StatusActive, Valid: true},
		{ID: "title", Title: "Road bike", Description: "light", Status: types.StatusActive, Valid: true},
		{ID: "other", Title: "Garden chair", Description: "wood", Status: types.StatusActive, Valid: true},
	} {
		require.NoError(t, idx.Put(context.Background(), l.ID, l))
	}

	res, err := newSearcher(idx).Search(context.Background(), Request{Query: "bike", PageSize: 10})
	require.NoError(t, err)

	// The boosted title match ranks first; unrelated listings do not match at all
	assert.Equal(t, []string{"title", "desc-only"}, listingIDs(res))
}

func TestContainsFilterMatchesAnyValue(t *testing.T) {
	a := newListing("a", "Lamp", "10", "fiat-USD")
	a.ScoreTags = []string{"Featured"}
	b := newListing("b", "Chair", "10", "fiat-USD")
	b.ScoreTags = []string{"Reviewed", "LowQuality"}
	c := newListing("c", "Table", "10", "fiat-USD")
	c.ScoreTags = []string{"Reviewed"}
	d := newListing("d", "Stool", "10", "fiat-USD")

	idx := storagetest.NewMemoryIndex(a, b, c, d)
	res, err := newSearcher(idx).Search(context.Background(), Request{
		PageSize: 10,
		Filters: []types.Filter{
			{Name: "scoreTags", Operator: types.OpContains, Value: "Featured,LowQuality,Boosted", ValueType: types.ValueArrayString},
		},
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"a", "b"}, listingIDs(res))
}

func TestRangeFilters(t *testing.T) {
	idx := storagetest.NewMemoryIndex(
		newListing("cheap", "Lamp", "5", "fiat-USD"),
		newListing("mid", "Lamp", "50", "fiat-USD"),
		newListing("dear", "Lamp", "500", "fiat-USD"),
	)
	res, err := newSearcher(idx).Search(context.Background(), Request{
		Query:    "lamp",
		PageSize: 10,
		Filters: []types.Filter{
			{Name: "price.amount", Operator: types.OpGreaterOrEqual, Value: "10", ValueType: types.ValueFloat},
			{Name: "price.amount", Operator: types.OpLesserOrEqual, Value: "100", ValueType: types.ValueFloat},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"mid"}, listingIDs(res))
	assert.Equal(t, 50.0, res.Stats.MinPrice)
	assert.Equal(t, 50.0, res.Stats.MaxPrice)
}

func TestLegacyPageSize(t *testing.T) {
	idx := storagetest.NewMemoryIndex()
	for i := 0; i < LegacyPageSize+5; i++ {
		id := fmt.Sprintf("l-%04d", i)
		require.NoError(t, idx.Put(context.Background(), id, newListing(id, "Lamp", "1", "fiat-USD")))
	}

	res, err := newSearcher(idx).Search(context.Background(), Request{PageSize: -1})
	require.NoError(t, err)

	assert.Len(t, res.Listings, LegacyPageSize)
	assert.Equal(t, int64(LegacyPageSize+5), res.Stats.TotalNumberOfListings)
}

func TestPaging(t *testing.T) {
	idx := storagetest.NewMemoryIndex()
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("l-%d", i)
		require.NoError(t, idx.Put(context.Background(), id, newListing(id, "Lamp", fmt.Sprint(i+1), "fiat-USD")))
	}

	res, err := newSearcher(idx).Search(context.Background(), Request{PageSize: 2, Offset: 2})
	require.NoError(t, err)

	assert.Equal(t, []string{"l-2", "l-3"}, listingIDs(res))
	// Stats cover the whole population, not the page
	assert.Equal(t, 1.0, res.Stats.MinPrice)
	assert.Equal(t, 5.0, res.Stats.MaxPrice)
	assert.Equal(t, int64(5), res.Stats.TotalNumberOfListings)
}

func TestZeroMatchStats(t *testing.T) {
	idx := storagetest.NewMemoryIndex(newListing("a", "Lamp", "10", "fiat-USD"))

	res, err := newSearcher(idx).Search(context.Background(), Request{
		Query:    "submarine",
		PageSize: 10,
	})
	require.NoError(t, err)

	assert.NotNil(t, res.Listings)
	assert.Empty(t, res.Listings)
	assert.Equal(t, types.PriceStats{MinPrice: 0, MaxPrice: 0, TotalNumberOfListings: 0}, res.Stats)
}

func TestSortByConvertedPrice(t *testing.T) {
	idx := storagetest.NewMemoryIndex(
		newListing("eth", "Lamp", "0.1", "token-ETH"),
		newListing("usd", "Lamp", "10", "fiat-USD"),
		newListing("broken", "Lamp", "n/a", "fiat-USD"),
	)
	s := newSearcher(idx)

	asc, err := s.Search(context.Background(), Request{Sort: "price.amount", Order: "asc", PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"usd", "eth", "broken"}, listingIDs(asc))

	desc, err := s.Search(context.Background(), Request{Sort: "price.amount", Order: "desc", PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"eth", "usd", "broken"}, listingIDs(desc))
}

func TestRejectedSortFallsBackToRelevance(t *testing.T) {
	featured := newListing("featured", "Lamp", "100", "fiat-USD")
	featured.ScoreMultiplier = ptr(3.0)
	idx := storagetest.NewMemoryIndex(newListing("plain", "Lamp", "1", "fiat-USD"), featured)

	core, logs := observer.New(zap.WarnLevel)
	sorter := query.NewSortResolver(staticRates{}, zap.New(core))
	s := New(idx, sorter, nil, WithClock(func() time.Time { return testNow }))

	res, err := s.Search(context.Background(), Request{Sort: "bogus", Order: "asc", PageSize: 10})
	require.NoError(t, err)

	assert.Equal(t, []string{"featured", "plain"}, listingIDs(res))
	assert.Equal(t, 1, logs.FilterField(zap.String("event", "sort.rejected")).Len())
}

func TestInvalidRequests(t *testing.T) {
	s := newSearcher(storagetest.NewMemoryIndex())

	tests := []struct {
		name string
		req  Request
	}{
		{"ZeroPageSize", Request{PageSize: 0}},
		{"NegativePageSize", Request{PageSize: -2}},
		{"NegativeOffset", Request{PageSize: 10, Offset: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Search(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}

	t.Run("UnknownFilterOperator", func(t *testing.T) {
		_, err := s.Search(context.Background(), Request{
			PageSize: 10,
			Filters:  []types.Filter{{Name: "category", Operator: "LIKE", Value: "x", ValueType: types.ValueString}},
		})
		assert.ErrorIs(t, err, ErrInvalidRequest)
		assert.ErrorIs(t, err, types.ErrInvalidFilter)
	})
}

func TestIndexFailureFailsSearch(t *testing.T) {
	boom := errors.New("index unavailable")

	t.Run("aggregation", func(t *testing.T) {
		idx := storagetest.NewMemoryIndex(newListing("a", "Lamp", "1", "fiat-USD"))
		idx.FailSearches(func(req storage.SearchRequest) error {
			if len(req.Aggregations) > 0 {
				return boom
			}
			return nil
		})
		_, err := newSearcher(idx).Search(context.Background(), Request{PageSize: 10})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("ranked", func(t *testing.T) {
		idx := storagetest.NewMemoryIndex(newListing("a", "Lamp", "1", "fiat-USD"))
		idx.FailSearches(func(req storage.SearchRequest) error {
			if len(req.Aggregations) == 0 {
				return boom
			}
			return nil
		})
		_, err := newSearcher(idx).Search(context.Background(), Request{PageSize: 10})
		assert.ErrorIs(t, err, boom)
	})
}

func TestRankedAndAggregationRunConcurrently(t *testing.T) {
	idx := storagetest.NewMemoryIndex(newListing("a", "Lamp", "1", "fiat-USD"))

	var (
		mu       sync.Mutex
		inFlight int
		both     = make(chan struct{})
	)
	idx.FailSearches(func(req storage.SearchRequest) error {
		mu.Lock()
		inFlight++
		if inFlight == 2 {
			close(both)
		}
		mu.Unlock()

		select {
		case <-both:
			return nil
		case <-time.After(2 * time.Second):
			return errors.New("ranked search and aggregation did not overlap")
		}
	})

	res, err := newSearcher(idx).Search(context.Background(), Request{PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, listingIDs(res))
}

func TestSearchRequestsSentToIndex(t *testing.T) {
	idx := storagetest.NewMemoryIndex(newListing("a", "Lamp", "1", "fiat-USD"))
	_, err := newSearcher(idx).Search(context.Background(), Request{Query: "lamp", PageSize: 7, Offset: 3})
	require.NoError(t, err)

	reqs := idx.Requests()
	require.Len(t, reqs, 2)

	var ranked, stats storage.SearchRequest
	for _, r := range reqs {
		if len(r.Aggregations) > 0 {
			stats = r
		} else {
			ranked = r
		}
	}

	assert.Equal(t, 7, ranked.Size)
	assert.Equal(t, 3, ranked.From)
	assert.Equal(t, types.ListingViewFields, ranked.Source)
	assert.True(t, ranked.TrackTotalHits)
	assert.IsType(t, &query.FunctionScoreQuery{}, ranked.Query)

	assert.Equal(t, 0, stats.Size)
	bq, ok := stats.Query.(*query.BoolQuery)
	require.True(t, ok)
	assert.Empty(t, bq.Should, "statistics ignore ranking clauses")
}

func TestSearchTimeout(t *testing.T) {
	idx := storagetest.NewMemoryIndex(newListing("a", "Lamp", "1", "fiat-USD"))
	idx.FailSearches(func(req storage.SearchRequest) error {
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	s := New(idx, nil, nil, WithTimeout(5*time.Millisecond))

	_, err := s.Search(context.Background(), Request{PageSize: 10})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

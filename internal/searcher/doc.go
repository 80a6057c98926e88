// Package searcher implements listing search: a ranked page of listings plus
// price statistics over everything the query selects.
//
// # Basic Usage
//
//	sorter := query.NewSortResolver(rateProvider, logger)
//	s := searcher.New(index, sorter, logger, searcher.WithTimeout(5*time.Second))
//
//	result, err := s.Search(ctx, searcher.Request{
//	    Query:    "road bike",
//	    Filters:  filters,
//	    Sort:     "price.amount",
//	    Order:    "asc",
//	    PageSize: 20,
//	})
//	if errors.Is(err, searcher.ErrInvalidRequest) {
//	    // bad paging or filters
//	}
//
//	for _, l := range result.Listings {
//	    fmt.Println(l.ID, l.Title, l.Price.Amount, l.Price.Currency)
//	}
//
// # Execution
//
// Each search issues two index calls concurrently:
//   - Ranked: the function_score wrapped query, paged and projected to the
//     ListingView fields, counting every match
//   - Statistics: the same query without ranking clauses, size 0, with
//     min and max aggregations on price.amount
//
// If either call fails the whole search fails and the other call is cancelled.
// The whole search runs under one timeout (DefaultTimeout unless WithTimeout).
//
// # Paging
//
// PageSize must be at least 1, or -1 which means LegacyPageSize (1000) items.
// Offset must not be negative. TotalNumberOfListings is the ranked search's
// full hit count, independent of paging.
//
// # Sorting
//
// Without a sort, results come in relevance order. The only explicit sort is
// price.amount in asc or desc order, resolved by the Sorter into a
// currency-normalized script sort. Any other sort request is logged and
// ignored.
package searcher

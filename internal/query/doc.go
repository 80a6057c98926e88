// Package query builds the document index requests for listing search.
//
// It owns the small query DSL the service sends to the index (bool, match,
// term, range, function_score, script sorts and metric aggregations), the
// translation of free text and filters into that DSL, the ranking function and
// the currency-normalized price sort.
//
// # Basic Usage
//
//	built, err := query.Build("road bike", filters)
//	if err != nil {
//	    return err // wraps types.ErrInvalidFilter
//	}
//
//	ranked := query.Rank(built.Ranked, time.Now())
//	sort := resolver.Resolve(ctx, "price.amount", "asc") // nil means relevance order
//
// # Query Shape
//
// The ranked tree always carries the visibility rules as must_not clauses:
//   - status = withdrawn
//   - valid = false
//   - scoreTags in {Hide, Delete}
//
// Text queries add a fuzzy match on all_text (must), and a boosted title match
// plus a sloppy phrase match (should). Filters go to the filter clause list,
// which narrows the population without touching the score.
//
// The aggregation tree is the ranked tree without its should clauses, so price
// statistics describe the same population the results page is drawn from.
//
// # Scripts
//
// The recency boost and the price sort run inside the index engine as painless
// scripts. Each script is a versioned constant with a Go counterpart
// (RecencyBoost, ConvertedPrice) that tests and the in-memory engine use.
// Bump RankingScriptVersion or SortScriptVersion when changing a script.
package query

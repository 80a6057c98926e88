// Package indexer writes marketplace listings to the search index together
// with their quality multiplier.
//
// # Basic Usage
//
//	policy := scoring.NewPolicy(scoring.NewCache(cfg.ScoringCacheSize))
//	idx := indexer.New(index, policy, logger, indexer.WithTimeout(cfg.IndexTimeout))
//
//	id, err := idx.Index(ctx, "0x42-7", listing)
//
//	// Moderation: hide a listing from every later search
//	updated, err := idx.UpdateScoreTags(ctx, id, []string{types.TagHide})
//	if errors.Is(err, storage.ErrNotFound) {
//	    // no such listing
//	}
//
// # Full Writes
//
// Index writes the whole document. Before the write it:
//
//  1. Copies the listing, leaving the caller's value untouched
//  2. Drops Availability and IPFS, and each offer's Schedule and Payload
//  3. Recomputes scoreMultiplier with the scoring policy, ignoring any
//     value the caller supplied
//
// # Tag Updates
//
// UpdateScoreTags loads the stored document, replaces its tags, recomputes the
// multiplier from the full document and writes back only scoreTags and
// scoreMultiplier. There is no transaction: two concurrent updates of the same
// listing keep whichever write lands last. Writes wait for an index refresh, so
// the next search already sees the new tags.
//
// # Batch Reindexing
//
// IndexBatch writes many listings through a bounded worker pool:
//
//	stats, err := idx.IndexBatch(ctx, listings, &indexer.BatchConfig{Workers: 8})
//	if errors.Is(err, indexer.ErrIndexingInProgress) {
//	    // another batch is running
//	}
//	fmt.Printf("indexed %d, failed %d in %v\n", stats.Indexed, stats.Failed, stats.Duration)
//
// Only one batch runs at a time; a second caller gets ErrIndexingInProgress
// immediately instead of waiting. A listing that fails is counted in
// Statistics.Failed and described in Statistics.ErrorMessages while the rest
// of the batch continues. Cancelling the context stops the batch and returns
// the context error.
package indexer

// Package storage provides access to the listings document index.
//
// The Index interface covers what the service needs from the index engine:
//   - Search: one query with paging, explicit sorts, field projection and
//     metric aggregations
//   - Get: fetch a full listing document
//   - Put: write a full listing document
//   - Update: merge a subset of fields into an existing document
//
// ElasticsearchIndex implements Index against an Elasticsearch 7/8 cluster.
// storagetest.MemoryIndex implements it in memory for tests.
//
// # Basic Usage
//
//	idx, err := storage.NewElasticsearchIndex(storage.ElasticsearchConfig{
//	    Addresses: []string{"http://localhost:9200"},
//	    Index:     "listings",
//	}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer idx.Close()
//
//	if err := idx.ApplyMigrations(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := idx.Search(ctx, storage.SearchRequest{
//	    Query: query.MatchAllQuery{},
//	    Size:  20,
//	})
//
// # Writes
//
// Put and Update wait for the index refresh before returning, so a search
// issued afterwards sees the change. Update of a missing document returns
// ErrNotFound.
//
// # Mapping Migrations
//
// The index mapping is versioned with semantic versions recorded in the
// mapping _meta.schema_version field. ApplyMigrations creates the index with
// the full mapping when it does not exist, and otherwise adds the fields of
// every migration newer than the recorded version.
//
// # Retries
//
// Transport failures and 429/502/503/504 responses are retried with
// exponential backoff inside the per-call timeout. Other error responses fail
// immediately.
package storage

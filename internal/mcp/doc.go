// Package mcp implements the Model Context Protocol (MCP) server for
// marketplace listing discovery.
//
// The server exposes five tools:
//   - search_listings: Ranked listing search with filters, price sort and price statistics
//   - index_listing: Write one full listing document
//   - index_listings: Reindex many listings concurrently
//   - update_score_tags: Replace a listing's moderation tags
//   - get_exchange_rates: USD rates used for price sorting
//
// # Protocol Overview
//
// MCP is JSON-RPC 2.0 over stdio. Stdout carries protocol messages only; all
// logging goes to stderr.
//
// # Basic Usage
//
//	cfg, _ := config.Load()
//	log, _ := logging.New(cfg.LogLevel)
//
//	server, err := mcp.NewServer(cfg, log)
//	if err != nil {
//	    return err
//	}
//	return server.Serve(ctx) // applies index migrations, then serves stdio
//
// # Tool: search_listings
//
//	Request:
//	{
//	  "name": "search_listings",
//	  "arguments": {
//	    "query": "road bike",
//	    "filters": [
//	      {"name": "price.amount", "operator": "LESSER_OR_EQUAL", "value": "500", "valueType": "FLOAT"},
//	      {"name": "category", "operator": "CONTAINS", "value": "schema.forSale,schema.forRent", "valueType": "ARRAY_STRING"}
//	    ],
//	    "sort": "price.amount",
//	    "order": "asc",
//	    "page_size": 20,
//	    "offset": 0
//	  }
//	}
//
//	Response:
//	{
//	  "listings": [
//	    {"id": "0x42-7", "title": "Road bike", "category": "schema.forSale", ...}
//	  ],
//	  "stats": {"minPrice": 120, "maxPrice": 480, "totalNumberOfListings": 37}
//	}
//
// page_size defaults to 20; -1 asks for up to 1000 listings.
//
// # Tool: update_score_tags
//
//	Request:
//	{"name": "update_score_tags", "arguments": {"id": "0x42-7", "tags": ["Hide"]}}
//
//	Response:
//	{"id": "0x42-7", "scoreTags": ["Hide"], "scoreMultiplier": 0, "hidden": true}
//
// # Error Codes
//
//	-32602  Invalid params (bad paging, unknown filter operator or value type, invalid listing)
//	-32603  Internal error (index or rate source failure)
//	-32001  Listing not found
//	-32002  Batch indexing already in progress
//
// An unknown sort or order is not an error: the search keeps relevance order.
package mcp

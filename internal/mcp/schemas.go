package mcp

import (
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/marketplace-discovery/internal/searcher"
	"github.com/dshills/marketplace-discovery/pkg/types"
)

// Default page size for search_listings when none is given
const defaultPageSize = 20

// filterSchema describes one structured search filter
func filterSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Document field, e.g. price.amount, category, createdAt",
			},
			"operator": map[string]interface{}{
				"type": "string",
				"enum": []string{
					string(types.OpGreaterOrEqual), string(types.OpLesserOrEqual),
					string(types.OpEquals), string(types.OpContains),
				},
			},
			"value": map[string]interface{}{
				"type":        "string",
				"description": "Value as a string; ARRAY_STRING values are comma-joined",
			},
			"valueType": map[string]interface{}{
				"type": "string",
				"enum": []string{
					string(types.ValueString), string(types.ValueFloat),
					string(types.ValueDate), string(types.ValueArrayString),
				},
			},
		},
		"required": []string{"name", "operator", "value", "valueType"},
	}
}

// listingSchema describes the listing document accepted for indexing
func listingSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"description": "Full listing document; volatile fields (availability, ipfs, offer schedule and payload) are dropped",
		"properties": map[string]interface{}{
			"id":          map[string]interface{}{"type": "string"},
			"title":       map[string]interface{}{"type": "string"},
			"description": map[string]interface{}{"type": "string"},
			"category":    map[string]interface{}{"type": "string"},
			"subCategory": map[string]interface{}{"type": "string"},
			"price": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"amount":   map[string]interface{}{"type": "string", "description": "Decimal string"},
					"currency": map[string]interface{}{"type": "string", "description": "Currency key, e.g. fiat-USD or token-ETH"},
				},
			},
			"status":    map[string]interface{}{"type": "string", "enum": []string{types.StatusActive, types.StatusWithdrawn}},
			"valid":     map[string]interface{}{"type": "boolean"},
			"createdAt": map[string]interface{}{"type": "integer", "description": "Unix seconds"},
			"scoreTags": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		},
	}
}

// searchListingsTool returns the tool definition for search_listings
func searchListingsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_listings",
		Description: "Search marketplace listings with free text, filters and price sorting; returns one ranked page plus price statistics",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Free text; empty matches every visible listing",
				},
				"sort": map[string]interface{}{
					"type":        "string",
					"description": "Sort field; only price.amount is supported, anything else keeps relevance order",
				},
				"order": map[string]interface{}{
					"type": "string",
					"enum": []string{"asc", "desc"},
				},
				"filters": map[string]interface{}{
					"type":  "array",
					"items": filterSchema(),
				},
				"page_size": map[string]interface{}{
					"type":        "integer",
					"description": "Listings per page (>= 1), or -1 for up to " + strconv.Itoa(searcher.LegacyPageSize),
					"default":     defaultPageSize,
					"minimum":     -1,
				},
				"offset": map[string]interface{}{
					"type":    "integer",
					"default": 0,
					"minimum": 0,
				},
			},
		},
	}
}

// indexListingTool returns the tool definition for index_listing
func indexListingTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_listing",
		Description: "Write a full listing document to the index and compute its score multiplier",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": map[string]interface{}{
					"type":        "string",
					"description": "Listing ID; defaults to listing.id",
				},
				"listing": listingSchema(),
			},
			Required: []string{"listing"},
		},
	}
}

// indexListingsTool returns the tool definition for index_listings
func indexListingsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_listings",
		Description: "Reindex many listings concurrently; only one batch runs at a time",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"listings": map[string]interface{}{
					"type":  "array",
					"items": listingSchema(),
				},
				"workers": map[string]interface{}{
					"type":        "integer",
					"description": "Concurrent writes (default: number of CPUs)",
					"minimum":     1,
				},
			},
			Required: []string{"listings"},
		},
	}
}

// updateScoreTagsTool returns the tool definition for update_score_tags
func updateScoreTagsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "update_score_tags",
		Description: "Replace the moderation tags of a listing and recompute its score multiplier",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": map[string]interface{}{
					"type": "string",
				},
				"tags": map[string]interface{}{
					"type":        "array",
					"description": "New tag set; Hide or Delete remove the listing from search",
					"items": map[string]interface{}{
						"type": "string",
						"enum": []string{types.TagHide, types.TagDelete, types.TagLowQuality, types.TagFeatured},
					},
				},
			},
			Required: []string{"id", "tags"},
		},
	}
}

// getExchangeRatesTool returns the tool definition for get_exchange_rates
func getExchangeRatesTool() mcp.Tool {
	keys := types.SupportedCurrencies()
	enum := make([]string, len(keys))
	for i, k := range keys {
		enum[i] = string(k)
	}

	return mcp.Tool{
		Name:        "get_exchange_rates",
		Description: "USD exchange rates used for price sorting",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"currencies": map[string]interface{}{
					"type":        "array",
					"description": "Currency keys; defaults to every supported currency",
					"items":       map[string]interface{}{"type": "string", "enum": enum},
				},
			},
		},
	}
}

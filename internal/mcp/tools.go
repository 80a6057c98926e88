package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dshills/marketplace-discovery/internal/indexer"
	"github.com/dshills/marketplace-discovery/internal/searcher"
	"github.com/dshills/marketplace-discovery/internal/storage"
	"github.com/dshills/marketplace-discovery/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeListingNotFound    = -32001 // No listing with the given ID
	ErrorCodeIndexingInProgress = -32002 // Another batch is already running
)

// Maximum number of batch error messages echoed back
const maxReportedErrors = 5

// handleSearchListings handles the search_listings tool invocation
func (s *Server) handleSearchListings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		args = map[string]interface{}{}
	}

	var filters []types.Filter
	if raw, present := args["filters"]; present && raw != nil {
		if err := decodeArg(raw, &filters); err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid filters", map[string]interface{}{
				"param":  "filters",
				"reason": err.Error(),
			})
		}
	}

	req := searcher.Request{
		Query:    getStringDefault(args, "query", ""),
		Sort:     getStringDefault(args, "sort", ""),
		Order:    getStringDefault(args, "order", ""),
		Filters:  filters,
		PageSize: getIntDefault(args, "page_size", defaultPageSize),
		Offset:   getIntDefault(args, "offset", 0),
	}

	result, err := s.searcher.Search(ctx, req)
	if errors.Is(err, searcher.ErrInvalidRequest) {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid search request", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if err != nil {
		s.log.Error("search failed", zap.Error(err))
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleIndexListing handles the index_listing tool invocation
func (s *Server) handleIndexListing(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	raw, ok := args["listing"].(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "listing parameter is required", map[string]interface{}{
			"param":  "listing",
			"reason": "missing or not an object",
		})
	}

	var listing types.Listing
	if err := decodeArg(raw, &listing); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid listing", map[string]interface{}{
			"param":  "listing",
			"reason": err.Error(),
		})
	}

	id, err := s.indexer.Index(ctx, getStringDefault(args, "id", ""), &listing)
	if errors.Is(err, indexer.ErrMissingID) || errors.Is(err, indexer.ErrInvalidListing) {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid listing", map[string]interface{}{
			"param":  "listing",
			"reason": err.Error(),
		})
	}
	if err != nil {
		s.log.Error("index failed", zap.Error(err))
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"indexed": true,
		"id":      id,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleIndexListings handles the index_listings tool invocation
func (s *Server) handleIndexListings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	raw, ok := args["listings"].([]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "listings parameter is required", map[string]interface{}{
			"param":  "listings",
			"reason": "missing or not an array",
		})
	}

	var listings []*types.Listing
	if err := decodeArg(raw, &listings); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid listings", map[string]interface{}{
			"param":  "listings",
			"reason": err.Error(),
		})
	}

	workers := getIntDefault(args, "workers", 0)
	if workers < 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "workers must be positive", map[string]interface{}{
			"param": "workers",
			"value": workers,
		})
	}

	stats, err := s.indexer.IndexBatch(ctx, listings, &indexer.BatchConfig{Workers: workers})
	if errors.Is(err, indexer.ErrIndexingInProgress) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "batch indexing already in progress", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "batch indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"indexed":     stats.Indexed,
		"failed":      stats.Failed,
		"duration_ms": stats.Duration.Milliseconds(),
	}
	if n := len(stats.ErrorMessages); n > 0 {
		if n > maxReportedErrors {
			response["errors"] = stats.ErrorMessages[:maxReportedErrors]
			response["error_count"] = n
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleUpdateScoreTags handles the update_score_tags tool invocation
func (s *Server) handleUpdateScoreTags(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	id, ok := args["id"].(string)
	if !ok || id == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "id parameter is required", map[string]interface{}{
			"param":  "id",
			"reason": "missing or empty",
		})
	}

	if _, present := args["tags"]; !present {
		return nil, newMCPError(ErrorCodeInvalidParams, "tags parameter is required", map[string]interface{}{
			"param":  "tags",
			"reason": "missing; pass an empty array to clear tags",
		})
	}
	tags, err := getStringSlice(args, "tags")
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid tags", map[string]interface{}{
			"param":  "tags",
			"reason": err.Error(),
		})
	}

	listing, err := s.indexer.UpdateScoreTags(ctx, id, tags)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newMCPError(ErrorCodeListingNotFound, "listing not found", map[string]interface{}{
			"id": id,
		})
	}
	if err != nil {
		s.log.Error("score tag update failed", zap.String("id", id), zap.Error(err))
		return nil, newMCPError(ErrorCodeInternalError, "score tag update failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"id":              listing.ID,
		"scoreTags":       listing.ScoreTags,
		"scoreMultiplier": listing.Multiplier(),
		"hidden":          listing.IsHidden(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetExchangeRates handles the get_exchange_rates tool invocation
func (s *Server) handleGetExchangeRates(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		args = map[string]interface{}{}
	}

	names, err := getStringSlice(args, "currencies")
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid currencies", map[string]interface{}{
			"param":  "currencies",
			"reason": err.Error(),
		})
	}

	currencies := types.SupportedCurrencies()
	if len(names) > 0 {
		currencies = make([]types.CurrencyKey, 0, len(names))
		for _, name := range names {
			key, err := types.ParseCurrencyKey(name)
			if err != nil {
				return nil, newMCPError(ErrorCodeInvalidParams, "unsupported currency", map[string]interface{}{
					"param": "currencies",
					"value": name,
				})
			}
			currencies = append(currencies, key)
		}
	}

	table := s.rates.Rates(ctx, currencies)

	rates := make(map[string]string, len(table))
	missing := make([]string, 0)
	for _, c := range currencies {
		rate, ok := table[c]
		if !ok {
			missing = append(missing, string(c))
			continue
		}
		// Normalize so "1.500" and "1.5" read the same
		if d, err := decimal.NewFromString(rate); err == nil {
			rate = d.String()
		}
		rates[string(c)] = rate
	}

	response := map[string]interface{}{
		"quote":   types.QuoteCurrency,
		"rates":   rates,
		"missing": missing,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a response as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// decodeArg converts a decoded JSON argument into a typed value
func decodeArg(raw interface{}, dst interface{}) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts an optional array of strings
func getStringSlice(args map[string]interface{}, key string) ([]string, error) {
	raw, present := args[key]
	if !present || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("item %d is not a string", i)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, errors.New("must be an array of strings")
	}
}

package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dshills/marketplace-discovery/internal/query"
	"github.com/dshills/marketplace-discovery/pkg/types"
)

// ErrNotFound is returned when a listing ID has no document in the index
var ErrNotFound = errors.New("listing not found")

// Index defines the document index operations the service depends on
type Index interface {
	// Search operations
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)

	// Document operations
	Get(ctx context.Context, id string) (*types.Listing, error)
	Put(ctx context.Context, id string, listing *types.Listing) error
	Update(ctx context.Context, id string, fields map[string]any) error

	Close() error
}

// SearchRequest is one search against the listings index
type SearchRequest struct {
	Query          query.Query
	From           int
	Size           int
	Sort           []query.Sorter               // Empty means relevance order
	Source         []string                     // Returned document fields; nil returns the whole document
	Aggregations   map[string]query.Aggregation // Keyed by result name
	TrackTotalHits bool                         // Count every match instead of stopping at 10k
}

// Body returns the JSON request body for the search API
func (r SearchRequest) Body() map[string]any {
	body := map[string]any{
		"from": r.From,
		"size": r.Size,
	}
	if r.Query != nil {
		body["query"] = r.Query.Source()
	}
	if len(r.Sort) > 0 {
		sorts := make([]any, len(r.Sort))
		for i, s := range r.Sort {
			sorts[i] = s.Source()
		}
		body["sort"] = sorts
	}
	if r.Source != nil {
		body["_source"] = r.Source
	}
	if len(r.Aggregations) > 0 {
		aggs := make(map[string]any, len(r.Aggregations))
		for name, agg := range r.Aggregations {
			aggs[name] = agg.Source()
		}
		body["aggs"] = aggs
	}
	if r.TrackTotalHits {
		body["track_total_hits"] = true
	}
	return body
}

// Hit is one matched document
type Hit struct {
	ID     string
	Score  float64 // Zero when the request sorts explicitly
	Source json.RawMessage
}

// SearchResponse contains the page of hits and any metric aggregation values
type SearchResponse struct {
	Total        int64
	Hits         []Hit
	Aggregations map[string]*float64 // Nil value when no document had the field
}

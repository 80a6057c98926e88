package searcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/marketplace-discovery/internal/query"
	"github.com/dshills/marketplace-discovery/internal/storage"
	"github.com/dshills/marketplace-discovery/pkg/types"
)

const (
	// LegacyPageSize is the page size used when a request asks for PageSize -1
	LegacyPageSize = 1000

	// DefaultTimeout bounds a whole search including both index calls
	DefaultTimeout = 10 * time.Second

	// Aggregation result names
	minPriceAgg = "min_price"
	maxPriceAgg = "max_price"
)

// ErrInvalidRequest is returned for requests that fail validation
var ErrInvalidRequest = errors.New("invalid search request")

// Request contains parameters for a search operation
type Request struct {
	Query    string         `json:"query"`
	Sort     string         `json:"sort,omitempty"`
	Order    string         `json:"order,omitempty"`
	Filters  []types.Filter `json:"filters,omitempty"`
	PageSize int            `json:"pageSize" validate:"min=-1,ne=0"` // -1 asks for LegacyPageSize
	Offset   int            `json:"offset" validate:"gte=0"`
}

// Sorter resolves a requested sort to a sort clause, nil meaning relevance order
type Sorter interface {
	Resolve(ctx context.Context, field, order string) *query.ScriptSort
}

// Option configures a Searcher
type Option func(*Searcher)

// WithTimeout sets the bound on a whole search
func WithTimeout(d time.Duration) Option {
	return func(s *Searcher) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock sets the time source used for the recency boost
func WithClock(now func() time.Time) Option {
	return func(s *Searcher) {
		s.now = now
	}
}

// Searcher runs ranked listing searches with price statistics
type Searcher struct {
	index    storage.Index
	sorter   Sorter
	log      *zap.Logger
	validate *validator.Validate
	timeout  time.Duration
	now      func() time.Time
}

// New creates a Searcher. A nil sorter always uses relevance order.
func New(index storage.Index, sorter Sorter, log *zap.Logger, opts ...Option) *Searcher {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Searcher{
		index:    index,
		sorter:   sorter,
		log:      log,
		validate: validator.New(),
		timeout:  DefaultTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search returns one page of ranked listings and the price statistics of
// everything the query and filters select.
func (s *Searcher) Search(ctx context.Context, req Request) (*types.SearchResult, error) {
	startTime := time.Now()

	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	built, err := query.Build(req.Query, req.Filters)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	size := req.PageSize
	if size == -1 {
		size = LegacyPageSize
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var sorts []query.Sorter
	if s.sorter != nil {
		if sort := s.sorter.Resolve(ctx, req.Sort, req.Order); sort != nil {
			sorts = append(sorts, sort)
		}
	}

	ranked := storage.SearchRequest{
		Query:          query.Rank(built.Ranked, s.now()),
		From:           req.Offset,
		Size:           size,
		Sort:           sorts,
		Source:         types.ListingViewFields,
		TrackTotalHits: true,
	}
	stats := storage.SearchRequest{
		Query: built.Aggregation,
		Size:  0,
		Aggregations: map[string]query.Aggregation{
			minPriceAgg: query.MetricAggregation{Kind: "min", Field: query.PriceAmountField},
			maxPriceAgg: query.MetricAggregation{Kind: "max", Field: query.PriceAmountField},
		},
	}

	// Both calls share gctx, so the first failure cancels the other
	var rankedRes, statsRes *storage.SearchResponse
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := s.index.Search(gctx, ranked)
		if err != nil {
			return fmt.Errorf("ranked search failed: %w", err)
		}
		rankedRes = res
		return nil
	})
	g.Go(func() error {
		res, err := s.index.Search(gctx, stats)
		if err != nil {
			return fmt.Errorf("price aggregation failed: %w", err)
		}
		statsRes = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result, err := assemble(rankedRes, statsRes)
	if err != nil {
		return nil, err
	}

	s.log.Debug("search completed",
		zap.String("query", req.Query),
		zap.Int("filters", len(req.Filters)),
		zap.Bool("sorted", len(sorts) > 0),
		zap.Int("results", len(result.Listings)),
		zap.Int64("total", result.Stats.TotalNumberOfListings),
		zap.Duration("duration", time.Since(startTime)))

	return result, nil
}

// assemble projects the ranked hits and reads the price statistics
func assemble(ranked, stats *storage.SearchResponse) (*types.SearchResult, error) {
	result := &types.SearchResult{
		Listings: make([]types.ListingView, 0, len(ranked.Hits)),
		Stats: types.PriceStats{
			MinPrice:              aggValue(stats, minPriceAgg),
			MaxPrice:              aggValue(stats, maxPriceAgg),
			TotalNumberOfListings: ranked.Total,
		},
	}

	for _, hit := range ranked.Hits {
		var view types.ListingView
		if err := json.Unmarshal(hit.Source, &view); err != nil {
			return nil, fmt.Errorf("failed to decode listing %s: %w", hit.ID, err)
		}
		if view.ID == "" {
			view.ID = hit.ID
		}
		result.Listings = append(result.Listings, view)
	}

	return result, nil
}

// aggValue returns a metric value, 0 when no document had the field
func aggValue(res *storage.SearchResponse, name string) float64 {
	if v := res.Aggregations[name]; v != nil {
		return *v
	}
	return 0
}

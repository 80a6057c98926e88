package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dshills/marketplace-discovery/internal/config"
	"github.com/dshills/marketplace-discovery/internal/indexer"
	"github.com/dshills/marketplace-discovery/internal/query"
	"github.com/dshills/marketplace-discovery/internal/rates"
	"github.com/dshills/marketplace-discovery/internal/scoring"
	"github.com/dshills/marketplace-discovery/internal/searcher"
	"github.com/dshills/marketplace-discovery/internal/storage"
	"github.com/dshills/marketplace-discovery/pkg/types"
)

const (
	// ServerName is the MCP server name
	ServerName = "marketplace-discovery"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// RateProvider resolves USD exchange rates
type RateProvider interface {
	Rates(ctx context.Context, currencies []types.CurrencyKey) rates.Table
}

// migrator is implemented by indexes that manage their own mapping
type migrator interface {
	ApplyMigrations(ctx context.Context) error
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	index    storage.Index
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
	rates    RateProvider
	closers  []io.Closer
	log      *zap.Logger
}

// Options tunes the components built by newServer
type Options struct {
	SearchTimeout    time.Duration // Zero keeps the component default
	IndexTimeout     time.Duration
	ScoringCacheSize int
}

// NewServer creates a new MCP server backed by Elasticsearch and Redis
func NewServer(cfg *config.Config, log *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	index, err := storage.NewElasticsearchIndex(storage.ElasticsearchConfig{
		Addresses: cfg.ElasticsearchURLs,
		Username:  cfg.ElasticsearchUsername,
		Password:  cfg.ElasticsearchPassword,
		Index:     cfg.ListingsIndex,
		Timeout:   cfg.IndexTimeout,
		Retry:     storage.DefaultRetryConfig(),
	}, log.Named("storage"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize index client: %w", err)
	}

	// Rate lookups and the scoring cache are shared by every request
	source := rates.NewRedisSource(rates.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	provider := rates.NewProvider(source, log.Named("rates"), rates.WithLookupTimeout(cfg.RateTimeout))

	s := newServer(index, provider, log, Options{
		SearchTimeout:    cfg.SearchTimeout,
		IndexTimeout:     cfg.IndexTimeout,
		ScoringCacheSize: cfg.ScoringCacheSize,
	})
	s.closers = append(s.closers, source)

	return s, nil
}

// newServer wires the search and index components around an index and a rate
// provider and registers the tools
func newServer(index storage.Index, provider RateProvider, log *zap.Logger, opts Options) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	policy := scoring.NewPolicy(scoring.NewCache(opts.ScoringCacheSize))
	sorter := query.NewSortResolver(provider, log.Named("sort"))

	s := &Server{
		mcp:   server.NewMCPServer(ServerName, ServerVersion),
		index: index,
		searcher: searcher.New(index, sorter, log.Named("searcher"),
			searcher.WithTimeout(opts.SearchTimeout)),
		indexer: indexer.New(index, policy, log.Named("indexer"),
			indexer.WithTimeout(opts.IndexTimeout)),
		rates: provider,
		log:   log,
	}

	s.registerTools()
	return s
}

// Serve brings the index mapping up to date, then serves MCP on stdio until
// the client disconnects
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.Close() }()

	if m, ok := s.index.(migrator); ok {
		if err := m.ApplyMigrations(ctx); err != nil {
			return fmt.Errorf("failed to migrate index: %w", err)
		}
	}

	s.log.Info("serving MCP on stdio", zap.String("server", ServerName), zap.String("version", ServerVersion))
	return server.ServeStdio(s.mcp)
}

// Close releases the index client and the rate source
func (s *Server) Close() error {
	errs := []error{s.index.Close()}
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(searchListingsTool(), s.handleSearchListings)
	s.mcp.AddTool(indexListingTool(), s.handleIndexListing)
	s.mcp.AddTool(indexListingsTool(), s.handleIndexListings)
	s.mcp.AddTool(updateScoreTagsTool(), s.handleUpdateScoreTags)
	s.mcp.AddTool(getExchangeRatesTool(), s.handleGetExchangeRates)
}

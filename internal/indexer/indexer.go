package indexer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/marketplace-discovery/internal/scoring"
	"github.com/dshills/marketplace-discovery/internal/storage"
	"github.com/dshills/marketplace-discovery/pkg/types"
)

// DefaultTimeout bounds a single index write or tag update
const DefaultTimeout = 10 * time.Second

var (
	// ErrIndexingInProgress is returned when a batch starts while another runs
	ErrIndexingInProgress = errors.New("batch indexing already in progress")

	// ErrMissingID is returned when neither the call nor the listing names an ID
	ErrMissingID = errors.New("listing ID is required")

	// ErrInvalidListing wraps validation failures of a listing to be indexed
	ErrInvalidListing = errors.New("invalid listing")
)

// Scorer computes the quality multiplier stored with a listing
type Scorer interface {
	Score(l *types.Listing) float64
}

// Indexer writes listings to the index with their score multiplier
type Indexer struct {
	index   storage.Index
	scorer  Scorer
	log     *zap.Logger
	timeout time.Duration
	lock    IndexLock
}

// Option configures an Indexer
type Option func(*Indexer)

// WithTimeout sets the bound on each index call
func WithTimeout(d time.Duration) Option {
	return func(idx *Indexer) {
		if d > 0 {
			idx.timeout = d
		}
	}
}

// BatchConfig contains configuration for IndexBatch
type BatchConfig struct {
	Workers int // Concurrent writes (default: runtime.NumCPU())
}

// Statistics contains statistics about a batch run
type Statistics struct {
	Indexed       int
	Failed        int
	Duration      time.Duration
	ErrorMessages []string
}

// New creates an Indexer. A nil scorer uses an uncached scoring.Policy.
func New(index storage.Index, scorer Scorer, log *zap.Logger, opts ...Option) *Indexer {
	if scorer == nil {
		scorer = scoring.NewPolicy(nil)
	}
	if log == nil {
		log = zap.NewNop()
	}
	idx := &Indexer{
		index:   index,
		scorer:  scorer,
		log:     log,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Index writes the full listing document under id and returns the ID used.
// Volatile fields are stripped and the score multiplier is recomputed; the
// caller's listing is not modified.
func (idx *Indexer) Index(ctx context.Context, id string, listing *types.Listing) (string, error) {
	if listing == nil {
		return "", fmt.Errorf("%w: listing is required", ErrInvalidListing)
	}
	if id == "" {
		id = listing.ID
	}
	if id == "" {
		return "", ErrMissingID
	}

	doc := prepare(listing)
	doc.ID = id
	if err := doc.Validate(); err != nil {
		return "", fmt.Errorf("%w %s: %w", ErrInvalidListing, id, err)
	}

	score := idx.scorer.Score(doc)
	doc.ScoreMultiplier = &score

	ctx, cancel := context.WithTimeout(ctx, idx.timeout)
	defer cancel()

	if err := idx.index.Put(ctx, id, doc); err != nil {
		return "", fmt.Errorf("failed to index listing %s: %w", id, err)
	}

	idx.log.Debug("listing indexed",
		zap.String("id", id),
		zap.Strings("scoreTags", doc.ScoreTags),
		zap.Float64("scoreMultiplier", score))
	return id, nil
}

// UpdateScoreTags replaces the moderation tags of a stored listing and writes
// the multiplier recomputed from the full document. It is a plain
// read-modify-write; concurrent updates of one listing keep the last write.
func (idx *Indexer) UpdateScoreTags(ctx context.Context, id string, tags []string) (*types.Listing, error) {
	if id == "" {
		return nil, ErrMissingID
	}

	ctx, cancel := context.WithTimeout(ctx, idx.timeout)
	defer cancel()

	current, err := idx.index.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load listing %s: %w", id, err)
	}

	if tags == nil {
		tags = []string{}
	}
	current.ScoreTags = tags
	score := idx.scorer.Score(current)
	current.ScoreMultiplier = &score

	fields := map[string]any{
		"scoreTags":       tags,
		"scoreMultiplier": score,
	}
	if err := idx.index.Update(ctx, id, fields); err != nil {
		return nil, fmt.Errorf("failed to update score tags of %s: %w", id, err)
	}

	idx.log.Info("score tags updated",
		zap.String("id", id),
		zap.Strings("scoreTags", tags),
		zap.Float64("scoreMultiplier", score),
		zap.Bool("hidden", current.IsHidden()))
	return current, nil
}

// IndexBatch reindexes listings concurrently. Individual failures are counted
// and reported in Statistics; only cancellation fails the whole batch.
func (idx *Indexer) IndexBatch(ctx context.Context, listings []*types.Listing, config *BatchConfig) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	defer idx.lock.Release()

	workers := runtime.NumCPU()
	if config != nil && config.Workers > 0 {
		workers = config.Workers
	}

	startTime := time.Now()
	stats := &Statistics{ErrorMessages: make([]string, 0)}

	var (
		indexed int32
		failed  int32
		mu      sync.Mutex // Protects stats.ErrorMessages
	)
	semaphore := make(chan struct{}, workers)

	g, gctx := errgroup.WithContext(ctx)
	for i, listing := range listings {
		select {
		case <-gctx.Done():
			_ = g.Wait()
			return nil, gctx.Err()
		case semaphore <- struct{}{}:
		}

		g.Go(func() error {
			defer func() { <-semaphore }()

			var id string
			if listing != nil {
				id = listing.ID
			}
			if _, err := idx.Index(gctx, id, listing); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				atomic.AddInt32(&failed, 1)
				mu.Lock()
				stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("listing %d (%s): %v", i, id, err))
				mu.Unlock()
				return nil
			}
			atomic.AddInt32(&indexed, 1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.Indexed = int(indexed)
	stats.Failed = int(failed)
	stats.Duration = time.Since(startTime)

	idx.log.Info("batch indexed",
		zap.Int("indexed", stats.Indexed),
		zap.Int("failed", stats.Failed),
		zap.Duration("duration", stats.Duration))
	return stats, nil
}

// Busy reports whether a batch run holds the lock
func (idx *Indexer) Busy() bool {
	return idx.lock.Held()
}

// prepare copies the listing without the fields that change too often to index
func prepare(l *types.Listing) *types.Listing {
	doc := *l
	doc.Availability = nil
	doc.IPFS = nil
	doc.ScoreTags = append([]string(nil), l.ScoreTags...)
	doc.Media = append([]types.Media(nil), l.Media...)

	if l.Offers != nil {
		doc.Offers = make([]types.Offer, len(l.Offers))
		for i, o := range l.Offers {
			o.Schedule = nil
			o.Payload = nil
			doc.Offers[i] = o
		}
	}
	return &doc
}

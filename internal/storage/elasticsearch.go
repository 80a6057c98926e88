package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"

	"github.com/dshills/marketplace-discovery/pkg/types"
)

const (
	// DefaultCallTimeout bounds a single index call including retries
	DefaultCallTimeout = 10 * time.Second

	// refreshWaitFor makes writes visible to the next search before returning
	refreshWaitFor = "wait_for"

	maxErrorBody = 4096
)

// ElasticsearchConfig configures the Elasticsearch index client
type ElasticsearchConfig struct {
	Addresses []string
	Username  string
	Password  string
	Index     string        // Listings index or alias name
	Timeout   time.Duration // Per call; zero uses DefaultCallTimeout
	Retry     RetryConfig   // Zero value uses DefaultRetryConfig
	Transport http.RoundTripper
}

// ElasticsearchIndex implements Index against an Elasticsearch 7/8 cluster
type ElasticsearchIndex struct {
	client    *elasticsearch.Client
	transport http.RoundTripper
	index     string
	timeout   time.Duration
	retry     RetryConfig
	log       *zap.Logger
}

var _ Index = (*ElasticsearchIndex)(nil)

// NewElasticsearchIndex creates a client for the configured cluster.
// It does not contact the cluster; the first call does.
func NewElasticsearchIndex(cfg ElasticsearchConfig, log *zap.Logger) (*ElasticsearchIndex, error) {
	if len(cfg.Addresses) == 0 {
		return nil, errors.New("at least one Elasticsearch address is required")
	}
	if cfg.Index == "" {
		return nil, errors.New("index name is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}

	// Retries are handled here so they share the call timeout and backoff policy
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    cfg.Addresses,
		Username:     cfg.Username,
		Password:     cfg.Password,
		Transport:    transport,
		DisableRetry: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultCallTimeout
	}
	retry := cfg.Retry
	if retry.MaxRetries == 0 {
		retry = DefaultRetryConfig()
	}

	return &ElasticsearchIndex{
		client:    client,
		transport: transport,
		index:     cfg.Index,
		timeout:   timeout,
		retry:     retry,
		log:       log,
	}, nil
}

// Search runs a search request against the listings index
func (e *ElasticsearchIndex) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	payload, err := json.Marshal(req.Body())
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}

	var out *SearchResponse
	err = e.perform(ctx, "search",
		func(ctx context.Context) (*esapi.Response, error) {
			return e.client.Search(
				e.client.Search.WithContext(ctx),
				e.client.Search.WithIndex(e.index),
				e.client.Search.WithBody(bytes.NewReader(payload)),
			)
		},
		func(res *esapi.Response) error {
			if res.IsError() {
				return statusError("search", res)
			}
			var body searchResponseBody
			if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
				return fmt.Errorf("failed to decode search response: %w", err)
			}
			out = body.response()
			return nil
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get fetches a full listing document
func (e *ElasticsearchIndex) Get(ctx context.Context, id string) (*types.Listing, error) {
	var listing *types.Listing
	err := e.perform(ctx, "get",
		func(ctx context.Context) (*esapi.Response, error) {
			return e.client.Get(e.index, id, e.client.Get.WithContext(ctx))
		},
		func(res *esapi.Response) error {
			if res.StatusCode == http.StatusNotFound {
				return fmt.Errorf("%w: %s", ErrNotFound, id)
			}
			if res.IsError() {
				return statusError("get", res)
			}
			var body struct {
				Found  bool          `json:"found"`
				Source types.Listing `json:"_source"`
			}
			if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
				return fmt.Errorf("failed to decode listing %s: %w", id, err)
			}
			if !body.Found {
				return fmt.Errorf("%w: %s", ErrNotFound, id)
			}
			listing = &body.Source
			return nil
		})
	if err != nil {
		return nil, err
	}
	return listing, nil
}

// Put writes the full listing document, replacing any previous version
func (e *ElasticsearchIndex) Put(ctx context.Context, id string, listing *types.Listing) error {
	payload, err := json.Marshal(listing)
	if err != nil {
		return fmt.Errorf("failed to encode listing %s: %w", id, err)
	}

	return e.perform(ctx, "index",
		func(ctx context.Context) (*esapi.Response, error) {
			return e.client.Index(e.index, bytes.NewReader(payload),
				e.client.Index.WithContext(ctx),
				e.client.Index.WithDocumentID(id),
				e.client.Index.WithRefresh(refreshWaitFor),
			)
		},
		func(res *esapi.Response) error {
			if res.IsError() {
				return statusError("index", res)
			}
			return nil
		})
}

// Update merges fields into an existing document
func (e *ElasticsearchIndex) Update(ctx context.Context, id string, fields map[string]any) error {
	payload, err := json.Marshal(map[string]any{"doc": fields})
	if err != nil {
		return fmt.Errorf("failed to encode update for %s: %w", id, err)
	}

	return e.perform(ctx, "update",
		func(ctx context.Context) (*esapi.Response, error) {
			return e.client.Update(e.index, id, bytes.NewReader(payload),
				e.client.Update.WithContext(ctx),
				e.client.Update.WithRefresh(refreshWaitFor),
			)
		},
		func(res *esapi.Response) error {
			if res.StatusCode == http.StatusNotFound {
				return fmt.Errorf("%w: %s", ErrNotFound, id)
			}
			if res.IsError() {
				return statusError("update", res)
			}
			return nil
		})
}

// Close releases idle connections held by the client
func (e *ElasticsearchIndex) Close() error {
	if t, ok := e.transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	return nil
}

// perform runs one index call under the call timeout and retry policy.
// call is invoked once per attempt so request bodies are rebuilt; handle reads the
// response before the call context is released. Errors from handle are not retried.
func (e *ElasticsearchIndex) perform(
	ctx context.Context,
	op string,
	call func(context.Context) (*esapi.Response, error),
	handle func(*esapi.Response) error,
) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	_, err := retryWithBackoff(ctx, e.retry, func() (struct{}, error) {
		res, err := call(ctx)
		if err != nil {
			e.log.Warn("index call failed", zap.String("op", op), zap.Error(err))
			return struct{}{}, fmt.Errorf("%s request failed: %w", op, err)
		}
		defer res.Body.Close()

		if retryableStatus(res.StatusCode) {
			e.log.Warn("index call rejected", zap.String("op", op), zap.Int("status", res.StatusCode))
			return struct{}{}, statusError(op, res)
		}
		if err := handle(res); err != nil {
			return struct{}{}, permanent(err)
		}
		return struct{}{}, nil
	})
	return err
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func statusError(op string, res *esapi.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	return fmt.Errorf("%s failed: %s: %s", op, res.Status(), bytes.TrimSpace(body))
}

// searchResponseBody is the subset of the search API response the service reads
type searchResponseBody struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string          `json:"_id"`
			Score  *float64        `json:"_score"`
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]struct {
		Value *float64 `json:"value"`
	} `json:"aggregations"`
}

func (b *searchResponseBody) response() *SearchResponse {
	out := &SearchResponse{
		Total: b.Hits.Total.Value,
		Hits:  make([]Hit, 0, len(b.Hits.Hits)),
	}
	for _, h := range b.Hits.Hits {
		hit := Hit{ID: h.ID, Source: h.Source}
		if h.Score != nil {
			hit.Score = *h.Score
		}
		out.Hits = append(out.Hits, hit)
	}
	if len(b.Aggregations) > 0 {
		out.Aggregations = make(map[string]*float64, len(b.Aggregations))
		for name, agg := range b.Aggregations {
			out.Aggregations[name] = agg.Value
		}
	}
	return out
}

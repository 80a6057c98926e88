package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Masterminds/semver/v3"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"
)

const (
	// CurrentMappingVersion tracks the listings index mapping version
	CurrentMappingVersion = "1.1.0"

	// schemaVersionMeta is the mapping _meta key holding the applied version
	schemaVersionMeta = "schema_version"
)

// Migration adds fields to the listings index mapping.
// Mappings only grow, so there is no down step.
type Migration struct {
	Version    string
	Properties map[string]any
}

// AllMigrations contains all mapping migrations in order
var AllMigrations = []Migration{
	{
		Version:    "1.0.0",
		Properties: baseMapping,
	},
	{
		Version:    "1.1.0",
		Properties: scoringMapping,
	},
}

// baseMapping is the listing document. Free text fields are copied into
// all_text, which text queries target.
var baseMapping = map[string]any{
	"id":          map[string]any{"type": "keyword"},
	"title":       map[string]any{"type": "text", "copy_to": "all_text"},
	"description": map[string]any{"type": "text", "copy_to": "all_text"},
	"category":    map[string]any{"type": "keyword", "copy_to": "all_text"},
	"subCategory": map[string]any{"type": "keyword", "copy_to": "all_text"},
	"all_text":    map[string]any{"type": "text"},
	"price": map[string]any{
		"properties": map[string]any{
			// Malformed amounts are kept in _source but get no doc value
			"amount":   map[string]any{"type": "double", "ignore_malformed": true},
			"currency": map[string]any{"type": "keyword"},
		},
	},
	"commissionPerUnit": map[string]any{"type": "keyword", "index": false},
	"media":             map[string]any{"type": "object", "enabled": false},
	"offers":            map[string]any{"type": "object", "enabled": false},
	"status":            map[string]any{"type": "keyword"},
	"valid":             map[string]any{"type": "boolean"},
	"createdAt":         map[string]any{"type": "long"},
}

// scoringMapping adds the moderation and ranking fields
var scoringMapping = map[string]any{
	"scoreTags":       map[string]any{"type": "keyword"},
	"scoreMultiplier": map[string]any{"type": "float"},
}

// ApplyMigrations creates the listings index when missing and applies every
// mapping migration newer than the recorded version.
func (e *ElasticsearchIndex) ApplyMigrations(ctx context.Context) error {
	exists, err := e.indexExists(ctx)
	if err != nil {
		return err
	}

	if !exists {
		if err := e.createIndex(ctx); err != nil {
			return err
		}
		e.log.Info("created listings index",
			zap.String("index", e.index),
			zap.String("version", CurrentMappingVersion))
		return nil
	}

	currentVersion, err := e.MappingVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range AllMigrations {
		migrationVersion, err := semver.NewVersion(migration.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", migration.Version, err)
		}

		// Skip if already applied
		if !currentVersion.LessThan(migrationVersion) {
			continue
		}

		if err := e.putMapping(ctx, migration); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}
		e.log.Info("applied mapping migration",
			zap.String("index", e.index),
			zap.String("version", migration.Version))

		currentVersion = migrationVersion
	}

	return nil
}

// MappingVersion returns the mapping version recorded on the index, 0.0.0 if none
func (e *ElasticsearchIndex) MappingVersion(ctx context.Context) (*semver.Version, error) {
	var raw string
	err := e.perform(ctx, "get mapping",
		func(ctx context.Context) (*esapi.Response, error) {
			return e.client.Indices.GetMapping(
				e.client.Indices.GetMapping.WithContext(ctx),
				e.client.Indices.GetMapping.WithIndex(e.index),
			)
		},
		func(res *esapi.Response) error {
			if res.IsError() {
				return statusError("get mapping", res)
			}
			// Keyed by concrete index name, which differs from e.index for aliases
			var body map[string]struct {
				Mappings struct {
					Meta map[string]any `json:"_meta"`
				} `json:"mappings"`
			}
			if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
				return fmt.Errorf("failed to decode mapping: %w", err)
			}
			for _, idx := range body {
				if v, ok := idx.Mappings.Meta[schemaVersionMeta].(string); ok {
					raw = v
				}
			}
			return nil
		})
	if err != nil {
		return nil, err
	}

	if raw == "" {
		return semver.MustParse("0.0.0"), nil
	}
	version, err := semver.NewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid current mapping version %s: %w", raw, err)
	}
	return version, nil
}

func (e *ElasticsearchIndex) indexExists(ctx context.Context) (bool, error) {
	var exists bool
	err := e.perform(ctx, "index exists",
		func(ctx context.Context) (*esapi.Response, error) {
			return e.client.Indices.Exists([]string{e.index}, e.client.Indices.Exists.WithContext(ctx))
		},
		func(res *esapi.Response) error {
			switch res.StatusCode {
			case http.StatusOK:
				exists = true
			case http.StatusNotFound:
				exists = false
			default:
				return statusError("index exists", res)
			}
			return nil
		})
	return exists, err
}

func (e *ElasticsearchIndex) createIndex(ctx context.Context) error {
	properties := map[string]any{}
	for _, m := range AllMigrations {
		for field, def := range m.Properties {
			properties[field] = def
		}
	}

	payload, err := json.Marshal(map[string]any{
		"mappings": map[string]any{
			"_meta":      map[string]any{schemaVersionMeta: CurrentMappingVersion},
			"properties": properties,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to encode index definition: %w", err)
	}

	return e.perform(ctx, "create index",
		func(ctx context.Context) (*esapi.Response, error) {
			return e.client.Indices.Create(e.index,
				e.client.Indices.Create.WithContext(ctx),
				e.client.Indices.Create.WithBody(bytes.NewReader(payload)),
			)
		},
		func(res *esapi.Response) error {
			if res.IsError() {
				return statusError("create index", res)
			}
			return nil
		})
}

func (e *ElasticsearchIndex) putMapping(ctx context.Context, m Migration) error {
	payload, err := json.Marshal(map[string]any{
		"_meta":      map[string]any{schemaVersionMeta: m.Version},
		"properties": m.Properties,
	})
	if err != nil {
		return fmt.Errorf("failed to encode mapping: %w", err)
	}

	return e.perform(ctx, "put mapping",
		func(ctx context.Context) (*esapi.Response, error) {
			return e.client.Indices.PutMapping([]string{e.index}, bytes.NewReader(payload),
				e.client.Indices.PutMapping.WithContext(ctx),
			)
		},
		func(res *esapi.Response) error {
			if res.IsError() {
				return statusError("put mapping", res)
			}
			return nil
		})
}

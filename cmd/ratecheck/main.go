// Command ratecheck checks the backends the discovery server depends on: it
// pings Redis, prints the exchange rates a price sort would use and reports
// the listings index mapping version.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/marketplace-discovery/internal/config"
	"github.com/dshills/marketplace-discovery/internal/rates"
	"github.com/dshills/marketplace-discovery/internal/storage"
	"github.com/dshills/marketplace-discovery/pkg/types"
)

func main() {
	envFile := flag.String("env", "", "Optional .env file to load")
	skipIndex := flag.Bool("skip-index", false, "Do not contact Elasticsearch")
	timeout := flag.Duration("timeout", 10*time.Second, "Overall timeout")
	flag.Parse()

	log.SetOutput(os.Stderr)

	var files []string
	if *envFile != "" {
		files = append(files, *envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	ok := checkRates(ctx, cfg)
	if !*skipIndex {
		ok = checkIndex(ctx, cfg) && ok
	}

	if !ok {
		os.Exit(1)
	}
	fmt.Println("\nAll checks passed")
}

func checkRates(ctx context.Context, cfg *config.Config) bool {
	fmt.Printf("Redis %s (db %d)\n", cfg.RedisAddr, cfg.RedisDB)

	source := rates.NewRedisSource(rates.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = source.Close() }()

	reachable := true
	if err := source.Ping(ctx); err != nil {
		fmt.Printf("  ✗ ping failed: %v (searches will use fallback rates)\n", err)
		reachable = false
	} else {
		fmt.Println("  ✓ reachable")
	}

	provider := rates.NewProvider(source, zap.NewNop(), rates.WithLookupTimeout(cfg.RateTimeout))
	table := provider.Rates(ctx, types.SupportedCurrencies())

	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	fmt.Println("  Rates (USD):")
	for _, k := range keys {
		fmt.Printf("    %-10s %s\n", k, table[types.CurrencyKey(k)])
	}
	for _, c := range types.SupportedCurrencies() {
		if _, found := table[c]; !found {
			fmt.Printf("    %-10s missing (%s); listings in it sort last\n", c, rates.Key(c))
		}
	}

	return reachable
}

func checkIndex(ctx context.Context, cfg *config.Config) bool {
	fmt.Printf("\nElasticsearch %v index %q\n", cfg.ElasticsearchURLs, cfg.ListingsIndex)

	index, err := storage.NewElasticsearchIndex(storage.ElasticsearchConfig{
		Addresses: cfg.ElasticsearchURLs,
		Username:  cfg.ElasticsearchUsername,
		Password:  cfg.ElasticsearchPassword,
		Index:     cfg.ListingsIndex,
		Timeout:   cfg.IndexTimeout,
	}, zap.NewNop())
	if err != nil {
		fmt.Printf("  ✗ client: %v\n", err)
		return false
	}
	defer func() { _ = index.Close() }()

	current, err := index.MappingVersion(ctx)
	if err != nil {
		fmt.Printf("  ✗ mapping: %v\n", err)
		return false
	}

	fmt.Printf("  ✓ mapping version %s (server expects %s)\n", current, storage.CurrentMappingVersion)
	if current.String() != storage.CurrentMappingVersion {
		fmt.Println("  ! migrations pending; they run when the server starts")
	}
	return true
}

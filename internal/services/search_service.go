package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"shopmart-pipeline/internal/config"
	"shopmart-pipeline/internal/models"
	"shopmart-pipeline/internal/pkg/logger"

	"github.com/cespare/xxhash/v2"
)

// ListingSource is the always-available synthetic source.
type ListingSource interface {
	Generate(query string) []models.CandidateResult
}

// LiveSource is the best-effort scraped source; it never errors, a failed
// lookup is an empty slice.
type LiveSource interface {
	Lookup(ctx context.Context, query string) []models.CandidateResult
}

type cacheEntry struct {
	results  []models.CandidateResult
	storedAt time.Time
}

// SearchService runs the fetch + reconcile pipeline for a round's query set
// and memoizes the outcome per query set. The cache has no eviction beyond
// the TTL check on read; unbounded growth over a process lifetime is a known
// limitation.
type SearchService struct {
	catalog ListingSource
	live    LiveSource
	config  config.SearchConfig
	logger  *logger.Logger

	mu    sync.RWMutex
	cache map[uint64]cacheEntry
}

func NewSearchService(catalog ListingSource, live LiveSource, cfg config.SearchConfig, log *logger.Logger) *SearchService {
	return &SearchService{
		catalog: catalog,
		live:    live,
		config:  cfg,
		logger:  log,
		cache:   make(map[uint64]cacheEntry),
	}
}

// SearchMultipleSources fetches candidates for every query in the batch,
// pools them and reconciles the pool into a deduplicated, relevance-ranked
// list. Identical query sets within the TTL window are served from cache
// without touching the sources.
func (service *SearchService) SearchMultipleSources(ctx context.Context, queries []string) []models.CandidateResult {
	startTime := time.Now()
	key := cacheKey(queries)

	service.mu.RLock()
	entry, ok := service.cache[key]
	service.mu.RUnlock()
	if ok && time.Since(entry.storedAt) < service.config.CacheTTL {
		service.logger.Debug("Returning cached results", "queries", queries)
		return entry.results
	}

	pool := service.fetchAll(ctx, queries)
	unique := DeduplicateResults(pool)
	ranked := RankResults(unique, queries)

	service.mu.Lock()
	service.cache[key] = cacheEntry{results: ranked, storedAt: time.Now()}
	service.mu.Unlock()

	service.logger.LogService("search", "search_multiple_sources", time.Since(startTime), map[string]interface{}{
		"queries":        len(queries),
		"pooled_results": len(pool),
		"final_results":  len(ranked),
	}, nil)

	return ranked
}

// fetchAll runs the catalog source for every query and, for at most the
// first LiveLookupsPerCall queries, a concurrent live lookup. Live failures
// are isolated per call and never abort the batch.
func (service *SearchService) fetchAll(ctx context.Context, queries []string) []models.CandidateResult {
	var pool []models.CandidateResult
	for _, query := range queries {
		pool = append(pool, service.catalog.Generate(query)...)
	}

	liveCount := service.config.LiveLookupsPerCall
	if liveCount > len(queries) {
		liveCount = len(queries)
	}
	if liveCount == 0 || service.live == nil {
		return pool
	}

	liveResults := make([][]models.CandidateResult, liveCount)
	var wg sync.WaitGroup
	for i := 0; i < liveCount; i++ {
		wg.Add(1)
		go func(index int, query string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					service.logger.Error("Panic in live lookup", "panic", r, "query", query)
				}
			}()
			liveResults[index] = service.live.Lookup(ctx, query)
		}(i, queries[i])
	}
	wg.Wait()

	for _, results := range liveResults {
		if len(results) > service.config.LiveResultsPerCall {
			results = results[:service.config.LiveResultsPerCall]
		}
		pool = append(pool, results...)
	}
	return pool
}

// resultSignature is the dedup identity of one candidate: its lower-cased
// title word set, price and source.
type resultSignature struct {
	words  map[string]struct{}
	price  float64
	source string
}

func signatureOf(result models.CandidateResult) resultSignature {
	words := make(map[string]struct{})
	for _, word := range strings.Fields(strings.ToLower(result.Title)) {
		words[word] = struct{}{}
	}
	sig := resultSignature{words: words, source: result.Source}
	if result.Price != nil {
		sig.price = *result.Price
	}
	return sig
}

// duplicates reports whether two signatures describe the same listing:
// title word overlap above 0.7 combined with a relative price difference
// under 0.1. A missing price counts as 0 in the numerator; the denominator
// floors at 1 to avoid dividing by zero.
func (sig resultSignature) duplicates(other resultSignature) bool {
	longest := len(sig.words)
	if len(other.words) > longest {
		longest = len(other.words)
	}
	if longest == 0 {
		return false
	}

	shared := 0
	for word := range sig.words {
		if _, ok := other.words[word]; ok {
			shared++
		}
	}
	overlap := float64(shared) / float64(longest)

	priceA, priceB := sig.price, other.price
	denom := priceA
	if priceA == 0 {
		denom = 1
	}
	if priceB > denom {
		denom = priceB
	}
	diff := priceA - priceB
	if diff < 0 {
		diff = -diff
	}

	return overlap > 0.7 && diff/denom < 0.1
}

// DeduplicateResults drops near-identical listings, keeping the first seen.
// Comparison is pairwise against every accepted signature; batches stay
// small enough that the quadratic walk is fine.
func DeduplicateResults(results []models.CandidateResult) []models.CandidateResult {
	if len(results) == 0 {
		return nil
	}

	unique := make([]models.CandidateResult, 0, len(results))
	accepted := make([]resultSignature, 0, len(results))

	for _, result := range results {
		sig := signatureOf(result)
		isDuplicate := false
		for _, seen := range accepted {
			if sig.duplicates(seen) {
				isDuplicate = true
				break
			}
		}
		if !isDuplicate {
			accepted = append(accepted, sig)
			unique = append(unique, result)
		}
	}
	return unique
}

var recognizedBrands = map[string]struct{}{
	"Apple":   {},
	"Samsung": {},
	"Sony":    {},
	"Bose":    {},
	"Dyson":   {},
}

// RelevanceScore scores one result against the round's sub-query list.
func RelevanceScore(result models.CandidateResult, queries []string) float64 {
	score := 0.0

	loweredTitle := strings.ToLower(result.Title)
	for _, query := range queries {
		if strings.Contains(loweredTitle, strings.ToLower(query)) {
			score += 10
		}
	}

	if result.Rating != nil {
		score += *result.Rating * 2
	}
	if result.Availability {
		score += 5
	}
	if _, ok := recognizedBrands[result.Brand]; ok {
		score += 3
	}
	if result.DiscountPercentage != nil && *result.DiscountPercentage > 10 {
		score += 2
	}
	return score
}

// RankResults orders results by descending relevance. The sort is stable:
// equal scores keep their encounter order.
func RankResults(results []models.CandidateResult, queries []string) []models.CandidateResult {
	type scored struct {
		result models.CandidateResult
		score  float64
	}

	entries := make([]scored, len(results))
	for i, result := range results {
		entries[i] = scored{result: result, score: RelevanceScore(result, queries)}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].score > entries[j].score
	})

	ranked := make([]models.CandidateResult, len(entries))
	for i, entry := range entries {
		ranked[i] = entry.result
	}
	return ranked
}

// cacheKey hashes the exact ordered sub-query list. Order and case both
// matter: any textual difference is a different round.
func cacheKey(queries []string) uint64 {
	digest := xxhash.New()
	for _, query := range queries {
		_, _ = digest.WriteString(query)
		_, _ = digest.Write([]byte{0})
	}
	return digest.Sum64()
}

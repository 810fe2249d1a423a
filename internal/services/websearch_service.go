package services

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"shopmart-pipeline/internal/config"
	"shopmart-pipeline/internal/models"
	"shopmart-pipeline/internal/pkg/logger"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"
)

// WebSearchService is the best-effort live data source. It scrapes the
// DuckDuckGo HTML endpoint for shopping results and never surfaces an error:
// any network, parse or timeout failure reduces to zero results.
type WebSearchService struct {
	collector *colly.Collector
	limiter   *rate.Limiter
	config    config.ScraperConfig
	logger    *logger.Logger
}

const duckDuckGoEndpoint = "https://html.duckduckgo.com/html/"

func NewWebSearchService(cfg config.ScraperConfig, limiter *rate.Limiter, log *logger.Logger) *WebSearchService {
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
	)
	collector.SetRequestTimeout(cfg.Timeout)

	service := &WebSearchService{
		collector: collector,
		limiter:   limiter,
		config:    cfg,
		logger:    log,
	}

	log.Info("Web search service initialized",
		"endpoint", duckDuckGoEndpoint,
		"timeout", cfg.Timeout,
		"max_results", cfg.MaxResults)

	return service
}

// Lookup fetches candidate listings for one query. The shared process-wide
// throttle is acquired before any network activity; acquisition blocks until
// a token is available or the context is cancelled.
func (service *WebSearchService) Lookup(ctx context.Context, query string) []models.CandidateResult {
	startTime := time.Now()

	if err := service.limiter.Wait(ctx); err != nil {
		service.logger.WithError(err).Warn("Rate limiter wait aborted", "query", query)
		return nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, service.config.Timeout)
	defer cancel()

	searchURL := fmt.Sprintf("%s?q=%s", duckDuckGoEndpoint,
		url.QueryEscape(query+" buy online store price"))

	category := CategorizeQuery(query)
	var results []models.CandidateResult

	c := service.collector.Clone()
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		r.Headers.Set("Connection", "keep-alive")
	})

	c.OnHTML("div.result", func(e *colly.HTMLElement) {
		if len(results) >= service.config.MaxResults {
			return
		}
		if result, ok := parseSearchResult(e.DOM, query, category); ok {
			results = append(results, result)
		}
	})

	var visitErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		visitErr = c.Visit(searchURL)
	}()

	select {
	case <-done:
	case <-lookupCtx.Done():
		service.logger.Warn("Live lookup timed out",
			"query", query,
			"duration", time.Since(startTime))
		return nil
	}

	if visitErr != nil {
		service.logger.WithError(visitErr).Warn("Live lookup failed, continuing without it", "query", query)
		return nil
	}

	service.logger.LogService("websearch", "lookup", time.Since(startTime), map[string]interface{}{
		"query":         query,
		"results_found": len(results),
	}, nil)

	return results
}

// parseSearchResult extracts one listing from a DuckDuckGo result node.
// Entries without a title are skipped; a missing price falls back to the
// keyword estimate.
func parseSearchResult(selection *goquery.Selection, query, category string) (models.CandidateResult, bool) {
	link := selection.Find("a.result__a").First()
	title := strings.TrimSpace(link.Text())
	if title == "" {
		return models.CandidateResult{}, false
	}

	resultURL, _ := link.Attr("href")
	description := strings.TrimSpace(selection.Find("a.result__snippet").First().Text())

	price, ok := ExtractPrice(title + " " + description)
	if !ok {
		price = estimateBasePrice(query)
	}

	rating := round1(3.5 + rand.Float64()*1.3)
	reviewCount := 50 + rand.Intn(1951)

	return models.CandidateResult{
		Title:        title,
		Price:        floatPtr(price),
		Currency:     "USD",
		Source:       sourceFromURL(resultURL),
		URL:          resultURL,
		ImageURL:     categoryImage(category, rand.Intn(4)),
		Description:  description,
		Rating:       floatPtr(rating),
		ReviewCount:  intPtr(reviewCount),
		Availability: true,
		Category:     category,
		Brand:        pickBrand(category),
		Features:     sampleFeatures(category, "Standard"),
	}, true
}

func sourceFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return "Web Store"
	}
	return parsed.Host
}

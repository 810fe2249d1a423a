package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"shopmart-pipeline/internal/config"
	"shopmart-pipeline/internal/models"
	"shopmart-pipeline/internal/pkg/logger"
)

// LLMCapability is what the orchestrator needs from the language model.
type LLMCapability interface {
	AnalyzeQuery(ctx context.Context, query string) (models.QueryAnalysis, error)
	GenerateSearchQueries(ctx context.Context, analysis models.QueryAnalysis, roundNum int) ([]string, error)
	EvaluateResults(ctx context.Context, query string, results []models.CandidateResult, priorRounds int) (models.ResultEvaluation, error)
	SummarizeRounds(ctx context.Context, rounds []models.SearchRound) (models.ProductSummary, error)
	Converse(ctx context.Context, session *models.SearchSession, message string) (string, error)
}

// ResultSearcher runs one round's query batch through fetch and reconcile.
type ResultSearcher interface {
	SearchMultipleSources(ctx context.Context, queries []string) []models.CandidateResult
}

// SessionStore persists sessions, history and the product catalog.
type SessionStore interface {
	StoreSession(ctx context.Context, session *models.SearchSession) error
	GetSession(ctx context.Context, searchID string) (*models.SearchSession, error)
	GetHistory(ctx context.Context, userID int) ([]models.HistoryEntry, error)
	UpsertProducts(ctx context.Context, products []models.ProductEntry) (int, error)
}

const maxAllowedRounds = 5

// Orchestrator drives the iterative research loop: analyze, then up to
// maxRounds of generate/fetch/evaluate, then summarize. Individual LLM steps
// degrade to deterministic fallbacks; only summarization is terminal.
type Orchestrator struct {
	llm      LLMCapability
	searcher ResultSearcher
	catalog  ListingSource
	store    SessionStore

	config config.SearchConfig
	logger *logger.Logger

	startTime time.Time
}

func NewOrchestrator(
	llm LLMCapability,
	searcher ResultSearcher,
	catalog ListingSource,
	store SessionStore,
	cfg config.SearchConfig,
	log *logger.Logger) *Orchestrator {

	orchestrator := &Orchestrator{
		llm:       llm,
		searcher:  searcher,
		catalog:   catalog,
		store:     store,
		config:    cfg,
		logger:    log,
		startTime: time.Now(),
	}

	log.Info("Orchestrator initialized",
		"default_max_rounds", cfg.DefaultMaxRounds,
		"cache_ttl", cfg.CacheTTL)

	return orchestrator
}

// ExecuteSearch runs one full research session and returns the materialized
// response. A failed query analysis switches to the degraded single-round
// path instead of erroring.
func (orchestrator *Orchestrator) ExecuteSearch(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	startTime := time.Now()
	maxRounds := orchestrator.boundedRounds(req.MaxRounds)

	orchestrator.logger.Info("Search started",
		"query", req.Query,
		"user_id", req.UserID,
		"max_rounds", maxRounds)

	analysis, err := orchestrator.llm.AnalyzeQuery(ctx, req.Query)
	if err != nil {
		orchestrator.logger.WithError(err).Warn("Query analysis unavailable, running degraded search", "query", req.Query)
		return orchestrator.runDegraded(ctx, req)
	}

	session := models.NewSearchSession(req.Query, req.UserID, analysis)

	var accumulated []models.CandidateResult
	for round := 1; round <= maxRounds; round++ {
		queries, err := orchestrator.llm.GenerateSearchQueries(ctx, analysis, round)
		if err != nil {
			orchestrator.logger.WithError(err).Warn("Query generation failed, using fallback queries",
				"search_id", session.ID,
				"round", round)
			queries = fallbackQueries(analysis.ProductName)
		}

		results := orchestrator.searcher.SearchMultipleSources(ctx, queries)
		accumulated = append(accumulated, results...)

		session.AppendRound(models.SearchRound{
			Query:     models.RoundQueryLabel(round, queries),
			Results:   results,
			Reasoning: roundTheme(round),
		})

		needsMore := true
		evaluation, err := orchestrator.llm.EvaluateResults(ctx, req.Query, accumulated, round)
		if err != nil {
			orchestrator.logger.WithError(err).Warn("Result evaluation failed, using round-count heuristic",
				"search_id", session.ID,
				"round", round)
			needsMore = round < 2
		} else {
			needsMore = evaluation.NeedsMoreRounds
		}

		// Early stop only once the minimum of two rounds is in.
		if !needsMore && round >= 2 {
			break
		}
	}

	summary, err := orchestrator.llm.SummarizeRounds(ctx, session.Rounds)
	if err != nil {
		orchestrator.logger.LogSearch(session.ID, req.UserID, "search_failed", time.Since(startTime), err)
		return nil, err
	}
	session.Summary = summary

	orchestrator.finishSession(ctx, session)

	orchestrator.logger.LogSearch(session.ID, req.UserID, "search_completed", time.Since(startTime), nil)
	return session.Response(), nil
}

// runDegraded serves a single round of synthetic listings when the analysis
// capability is down. The session is still stored so follow-up chat works.
func (orchestrator *Orchestrator) runDegraded(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	startTime := time.Now()

	session := models.NewSearchSession(req.Query, req.UserID, models.DefaultQueryAnalysis(req.Query))
	session.Degraded = true

	results := orchestrator.catalog.Generate(req.Query)
	session.AppendRound(models.SearchRound{
		Query:     models.RoundQueryLabel(1, []string{req.Query}),
		Results:   results,
		Reasoning: "Direct product lookup without query analysis",
	})
	session.Summary = summaryFromResults(req.Query, results)

	orchestrator.finishSession(ctx, session)

	orchestrator.logger.LogSearch(session.ID, req.UserID, "search_completed_degraded", time.Since(startTime), nil)
	return session.Response(), nil
}

// finishSession stores the session and kicks off product persistence in the
// background. Neither failure is allowed to fail the search: the response is
// already materialized.
func (orchestrator *Orchestrator) finishSession(ctx context.Context, session *models.SearchSession) {
	if err := orchestrator.store.StoreSession(ctx, session); err != nil {
		orchestrator.logger.WithError(err).Error("Failed to store search session", "search_id", session.ID)
	}

	products := session.Summary.Products
	if len(products) == 0 {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				orchestrator.logger.Error("Panic in product persistence", "panic", r)
			}
		}()
		bgCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := orchestrator.store.UpsertProducts(bgCtx, products); err != nil {
			orchestrator.logger.WithError(err).Warn("Background product persistence failed", "search_id", session.ID)
		}
	}()
}

// Chat answers a follow-up question against a stored session. Conversation
// failures fall back to canned answers built from the stored summary.
func (orchestrator *Orchestrator) Chat(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error) {
	startTime := time.Now()

	session, err := orchestrator.store.GetSession(ctx, req.SearchID)
	if err != nil {
		return nil, err
	}

	answer, err := orchestrator.llm.Converse(ctx, session, req.Message)
	if err != nil {
		orchestrator.logger.WithError(err).Warn("Conversation capability unavailable, using canned answer",
			"search_id", req.SearchID)
		answer = cannedAnswer(session, req.Message)
	}

	orchestrator.logger.LogSearch(session.ID, req.UserID, "chat_completed", time.Since(startTime), nil)

	return &models.ChatResponse{
		Response: answer,
		SearchID: session.ID,
		Query:    session.Query,
	}, nil
}

// GetSearch returns one stored session as its response shape.
func (orchestrator *Orchestrator) GetSearch(ctx context.Context, searchID string) (*models.SearchResponse, error) {
	session, err := orchestrator.store.GetSession(ctx, searchID)
	if err != nil {
		return nil, err
	}
	return session.Response(), nil
}

// History lists the user's recent searches.
func (orchestrator *Orchestrator) History(ctx context.Context, userID int) ([]models.HistoryEntry, error) {
	return orchestrator.store.GetHistory(ctx, userID)
}

func (orchestrator *Orchestrator) boundedRounds(requested int) int {
	if requested < 1 {
		return orchestrator.config.DefaultMaxRounds
	}
	if requested > maxAllowedRounds {
		return maxAllowedRounds
	}
	return requested
}

func fallbackQueries(productName string) []string {
	return []string{
		fmt.Sprintf("%s price comparison", productName),
		fmt.Sprintf("best %s reviews", productName),
		fmt.Sprintf("%s specifications features", productName),
		fmt.Sprintf("where to buy %s online", productName),
	}
}

func roundTheme(round int) string {
	switch round {
	case 1:
		return "Basic product info, prices, popular retailers"
	case 2:
		return "Technical specs, reviews, comparisons"
	default:
		return "Deals, alternatives, user experiences"
	}
}

// summaryFromResults builds the degraded-path summary directly from raw
// listings, with the same aggregates the summarizer would compute.
func summaryFromResults(query string, results []models.CandidateResult) models.ProductSummary {
	products := make([]models.ProductEntry, 0, len(results))
	var lowest, highest, total float64
	priced := 0
	bestDeal := ""

	for _, result := range results {
		price := 0.0
		if result.Price != nil {
			price = *result.Price
		}
		rating := 0.0
		if result.Rating != nil {
			rating = *result.Rating
		}
		reviewCount := 0
		if result.ReviewCount != nil {
			reviewCount = *result.ReviewCount
		}

		products = append(products, models.ProductEntry{
			Name:         result.Title,
			Brand:        result.Brand,
			Price:        price,
			Currency:     result.Currency,
			Source:       result.Source,
			SourceURL:    result.URL,
			ImageURL:     result.ImageURL,
			KeyFeatures:  result.Features,
			Pros:         []string{"Widely available", "Established retailer"},
			Cons:         []string{"Limited analysis available"},
			Rating:       rating,
			ReviewCount:  reviewCount,
			Availability: result.Availability,
		})

		if price > 0 {
			if lowest == 0 || price < lowest {
				lowest = price
				bestDeal = result.Source
			}
			if price > highest {
				highest = price
			}
			total += price
			priced++
		}
	}

	// Average over priced listings only, keeping lowest <= average <= highest.
	average := 0.0
	if priced > 0 {
		average = round2(total / float64(priced))
	}

	return models.ProductSummary{
		Products: products,
		PriceAnalysis: models.PriceAnalysis{
			LowestPrice:  lowest,
			HighestPrice: highest,
			AveragePrice: average,
			BestDeal:     bestDeal,
		},
		CategoryInsights:     fmt.Sprintf("Here are popular %s options from major retailers. Detailed analysis is temporarily unavailable.", query),
		BuyingRecommendation: "Compare prices across the listed retailers and check current availability before purchasing.",
	}
}

// cannedAnswer serves follow-up questions from the stored summary when the
// conversation capability is down. Topic checks run in priority order.
func cannedAnswer(session *models.SearchSession, message string) string {
	lowered := strings.ToLower(message)
	analysis := session.Summary.PriceAnalysis

	switch {
	case strings.Contains(lowered, "price"):
		return fmt.Sprintf("Prices for %s range from $%.2f to $%.2f, averaging $%.2f. The best deal was found at %s.",
			session.Query, analysis.LowestPrice, analysis.HighestPrice, analysis.AveragePrice, analysis.BestDeal)
	case strings.Contains(lowered, "recommend"):
		if session.Summary.BuyingRecommendation != "" {
			return session.Summary.BuyingRecommendation
		}
		return fmt.Sprintf("Based on your search for %s, compare the top-rated options and pick the one matching your budget.", session.Query)
	case strings.Contains(lowered, "compare"):
		return fmt.Sprintf("Your search for %s found %d products across multiple retailers. Check the ratings, prices and features side by side in the results.",
			session.Query, len(session.Summary.Products))
	default:
		return fmt.Sprintf("I can help you with questions about your search for %s. Ask me about prices, recommendations or product comparisons.", session.Query)
	}
}

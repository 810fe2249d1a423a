package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"shopmart-pipeline/internal/config"
	"shopmart-pipeline/internal/models"
	"shopmart-pipeline/internal/pkg/logger"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"
)

// LLMService talks to an OpenRouter-compatible chat-completion API. Every
// capability call goes through the same retry/breaker path; callers decide
// whether a failure degrades gracefully or is terminal.
type LLMService struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	config  config.LLMConfig
	logger  *logger.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
	Stream      bool          `json:"stream"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func NewLLMService(cfg config.LLMConfig, log *logger.Logger) *LLMService {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "llm",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	service := &LLMService{
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
		config:  cfg,
		logger:  log,
	}

	log.Info("LLM service initialized",
		"base_url", cfg.BaseURL,
		"model", cfg.Model,
		"max_retries", cfg.MaxRetries)

	return service
}

// callLLM performs one chat completion with retries. Retries use exponential
// backoff capped by the configured delay; HTTP 4xx responses are not retried.
func (service *LLMService) callLLM(ctx context.Context, messages []chatMessage, maxTokens int) (string, error) {
	startTime := time.Now()

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = service.config.RetryBaseDelay
	expBackoff.MaxInterval = service.config.RetryMaxDelay

	content, err := backoff.Retry(ctx, func() (string, error) {
		result, err := service.breaker.Execute(func() (interface{}, error) {
			return service.makeCompletionRequest(ctx, messages, maxTokens)
		})
		if err != nil {
			return "", err
		}
		return result.(string), nil
	}, backoff.WithBackOff(expBackoff), backoff.WithMaxTries(uint(service.config.MaxRetries)))

	duration := time.Since(startTime)
	if err != nil {
		service.logger.LogService("llm", "chat_completion", duration, map[string]interface{}{
			"messages":   len(messages),
			"max_tokens": maxTokens,
		}, err)
		if errors.Is(err, gobreaker.ErrOpenState) {
			return "", models.NewProviderError("LLM_CIRCUIT_OPEN", "Language model temporarily unavailable").WithCause(err)
		}
		return "", models.NewProviderError("LLM_CALL_FAILED", "Language model call failed").WithCause(err)
	}

	service.logger.LogService("llm", "chat_completion", duration, map[string]interface{}{
		"messages":        len(messages),
		"response_length": len(content),
	}, nil)

	return content, nil
}

func (service *LLMService) makeCompletionRequest(ctx context.Context, messages []chatMessage, maxTokens int) (string, error) {
	if maxTokens == 0 {
		maxTokens = service.config.MaxTokens
	}

	payload, err := json.Marshal(completionRequest{
		Model:       service.config.Model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: service.config.Temperature,
		TopP:        service.config.TopP,
		Stream:      false,
	})
	if err != nil {
		return "", backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		service.config.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+service.config.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("HTTP-Referer", service.config.Referer)
	req.Header.Set("X-Title", service.config.AppTitle)

	resp, err := service.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return "", backoff.Permanent(fmt.Errorf("llm request rejected: HTTP %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm request failed: HTTP %d", resp.StatusCode)
	}

	var parsed completionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}

// AnalyzeQuery interprets the raw shopping query. A malformed response is
// treated the same as a transport failure: the caller falls back to the
// deterministic default analysis.
func (service *LLMService) AnalyzeQuery(ctx context.Context, query string) (models.QueryAnalysis, error) {
	messages := []chatMessage{
		{Role: "system", Content: analyzeQuerySystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Analyze this shopping query: %s", query)},
	}

	response, err := service.callLLM(ctx, messages, 0)
	if err != nil {
		return models.QueryAnalysis{}, err
	}

	var analysis models.QueryAnalysis
	if err := json.Unmarshal([]byte(stripCodeFences(response)), &analysis); err != nil {
		return models.QueryAnalysis{}, models.NewProviderError("LLM_MALFORMED_RESPONSE", "Query analysis response was not valid JSON").WithCause(err)
	}

	if analysis.ProductName == "" {
		analysis.ProductName = query
	}
	if analysis.Category == "" {
		analysis.Category = "general"
	}
	if analysis.KeyFeatures == nil {
		analysis.KeyFeatures = []string{}
	}
	if len(analysis.SearchKeywords) == 0 {
		analysis.SearchKeywords = []string{query}
	}
	if analysis.PriceRange.Min > analysis.PriceRange.Max {
		analysis.PriceRange.Min, analysis.PriceRange.Max = analysis.PriceRange.Max, analysis.PriceRange.Min
	}

	return analysis, nil
}

// GenerateSearchQueries asks for 3+roundNum queries tailored to the round's
// theme. The orchestrator supplies deterministic fallbacks on failure.
func (service *LLMService) GenerateSearchQueries(ctx context.Context, analysis models.QueryAnalysis, roundNum int) ([]string, error) {
	analysisJSON, err := json.Marshal(analysis)
	if err != nil {
		return nil, models.NewInternalError("ANALYSIS_ENCODE_FAILED", "Failed to encode query analysis").WithCause(err)
	}

	messages := []chatMessage{
		{Role: "system", Content: fmt.Sprintf(generateQueriesSystemPrompt, 3+roundNum, roundNum)},
		{Role: "user", Content: fmt.Sprintf("Product analysis: %s\nGenerate search queries for round %d", analysisJSON, roundNum)},
	}

	response, err := service.callLLM(ctx, messages, 0)
	if err != nil {
		return nil, err
	}

	var queries []string
	if err := json.Unmarshal([]byte(stripCodeFences(response)), &queries); err != nil {
		return nil, models.NewProviderError("LLM_MALFORMED_RESPONSE", "Query generation response was not a JSON array").WithCause(err)
	}
	if len(queries) == 0 {
		return nil, models.NewProviderError("LLM_EMPTY_RESPONSE", "Query generation returned no queries")
	}

	return queries, nil
}

// EvaluateResults judges the accumulated results and whether another round
// is warranted.
func (service *LLMService) EvaluateResults(ctx context.Context, query string, results []models.CandidateResult, priorRounds int) (models.ResultEvaluation, error) {
	sample := results
	if len(sample) > 5 {
		sample = sample[:5]
	}
	resultsJSON, err := json.Marshal(sample)
	if err != nil {
		return models.ResultEvaluation{}, models.NewInternalError("RESULTS_ENCODE_FAILED", "Failed to encode search results").WithCause(err)
	}

	messages := []chatMessage{
		{Role: "system", Content: evaluateResultsSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Original query: %s\nSearch results: %s\nPrevious rounds: %d", query, resultsJSON, priorRounds)},
	}

	response, err := service.callLLM(ctx, messages, 0)
	if err != nil {
		return models.ResultEvaluation{}, err
	}

	var evaluation models.ResultEvaluation
	if err := json.Unmarshal([]byte(stripCodeFences(response)), &evaluation); err != nil {
		return models.ResultEvaluation{}, models.NewProviderError("LLM_MALFORMED_RESPONSE", "Result evaluation response was not valid JSON").WithCause(err)
	}

	return evaluation, nil
}

// SummarizeRounds synthesizes the final product comparison from the full
// ordered round sequence. There is no fallback at this step.
func (service *LLMService) SummarizeRounds(ctx context.Context, rounds []models.SearchRound) (models.ProductSummary, error) {
	roundsJSON, err := json.Marshal(rounds)
	if err != nil {
		return models.ProductSummary{}, models.NewInternalError("ROUNDS_ENCODE_FAILED", "Failed to encode search rounds").WithCause(err)
	}

	messages := []chatMessage{
		{Role: "system", Content: summarizeSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Analyze these search results and create a product summary: %s", roundsJSON)},
	}

	response, err := service.callLLM(ctx, messages, 3000)
	if err != nil {
		return models.ProductSummary{}, err
	}

	var summary models.ProductSummary
	if err := json.Unmarshal([]byte(stripCodeFences(response)), &summary); err != nil {
		return models.ProductSummary{}, models.NewProviderError("LLM_MALFORMED_RESPONSE", "Product summary response was not valid JSON").WithCause(err)
	}
	if summary.Products == nil {
		summary.Products = []models.ProductEntry{}
	}

	return summary, nil
}

// Converse answers a follow-up question about a stored search session.
func (service *LLMService) Converse(ctx context.Context, session *models.SearchSession, message string) (string, error) {
	contextJSON, err := json.Marshal(map[string]interface{}{
		"original_query": session.Query,
		"search_results": session.Summary,
		"user_message":   message,
	})
	if err != nil {
		return "", models.NewInternalError("CONTEXT_ENCODE_FAILED", "Failed to encode chat context").WithCause(err)
	}

	messages := []chatMessage{
		{Role: "system", Content: converseSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Search context: %s\n\nUser question: %s", contextJSON, message)},
	}

	return service.callLLM(ctx, messages, 0)
}

func (service *LLMService) HealthCheck(ctx context.Context) error {
	testCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	messages := []chatMessage{
		{Role: "user", Content: "Respond with 'OK' if you can process this request"},
	}

	response, err := service.callLLM(testCtx, messages, 10)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if response == "" {
		return fmt.Errorf("health check returned empty response")
	}
	return nil
}

// stripCodeFences removes the ```json fencing some models wrap around JSON
// responses despite instructions.
func stripCodeFences(response string) string {
	response = strings.TrimSpace(response)
	if strings.HasPrefix(response, "```json") {
		response = strings.TrimPrefix(response, "```json")
		response = strings.TrimSuffix(response, "```")
	} else if strings.HasPrefix(response, "```") {
		response = strings.TrimPrefix(response, "```")
		response = strings.TrimSuffix(response, "```")
	}
	return strings.TrimSpace(response)
}

const analyzeQuerySystemPrompt = `You are a shopping assistant AI. Analyze the user's query to understand what product they're looking for.

Extract and return in JSON format:
{
    "product_name": "main product name",
    "category": "product category",
    "key_features": ["feature1", "feature2"],
    "price_range": {"min": 0, "max": 1000},
    "search_keywords": ["keyword1", "keyword2"],
    "intent": "compare|buy|research|browse",
    "specificity": "high|medium|low"
}

Respond with only the JSON object, no markdown formatting.`

const generateQueriesSystemPrompt = `You are a shopping research expert. Generate %d diverse search queries to find comprehensive information about a product.

For round %d, focus on:
- Round 1: Basic product info, prices, popular retailers
- Round 2: Technical specs, reviews, comparisons
- Round 3: Deals, alternatives, user experiences

Return a JSON array of search query strings, nothing else.`

const evaluateResultsSystemPrompt = `You are a shopping research analyst. Analyze search results and determine:

1. Quality and completeness of information
2. Whether additional search rounds are needed
3. Key insights found
4. Missing information that should be searched for

Return JSON:
{
    "quality_score": 0.8,
    "completeness": "high|medium|low",
    "key_insights": ["insight1", "insight2"],
    "missing_info": ["missing1", "missing2"],
    "needs_more_rounds": true,
    "recommended_next_queries": ["query1", "query2"]
}

Respond with only the JSON object, no markdown formatting.`

const summarizeSystemPrompt = `You are a shopping expert. Create a comprehensive product summary from search results.

Return JSON with:
{
    "products": [
        {
            "name": "Product Name",
            "brand": "Brand",
            "price": 99.99,
            "currency": "USD",
            "source": "retailer name",
            "source_url": "url",
            "image_url": "image_url",
            "key_features": ["feature1", "feature2"],
            "pros": ["pro1", "pro2"],
            "cons": ["con1", "con2"],
            "rating": 4.5,
            "review_count": 1234,
            "availability": true
        }
    ],
    "price_analysis": {
        "lowest_price": 89.99,
        "highest_price": 129.99,
        "average_price": 104.99,
        "best_deal": "retailer with best value"
    },
    "category_insights": "insights about this product category",
    "buying_recommendation": "expert recommendation"
}

Respond with only the JSON object, no markdown formatting.`

const converseSystemPrompt = `You are a helpful shopping assistant. The user is asking about their previous search results.
Provide helpful, specific advice based on the search results. You can:
- Answer questions about specific products
- Compare products from the search results
- Provide buying advice
- Clarify product features
- Suggest alternatives from the results

Be conversational and helpful.`

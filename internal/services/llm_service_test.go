package services_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"shopmart-pipeline/internal/config"
	"shopmart-pipeline/internal/models"
	"shopmart-pipeline/internal/services"
)

func llmConfig(baseURL string) config.LLMConfig {
	return config.LLMConfig{
		APIKey:         "test-key",
		BaseURL:        baseURL,
		Model:          "test-model",
		MaxTokens:      500,
		Temperature:    0.7,
		TopP:           0.9,
		Timeout:        5 * time.Second,
		MaxRetries:     3,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  5 * time.Millisecond,
	}
}

func completionHandler(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": content}},
			},
		}
		json.NewEncoder(w).Encode(response)
	}
}

func TestAnalyzeQueryParsesFencedJSON(t *testing.T) {
	content := "```json\n" + `{
		"product_name": "wireless headphones",
		"category": "audio",
		"key_features": ["noise cancellation"],
		"price_range": {"min": 100, "max": 400},
		"search_keywords": ["headphones"],
		"intent": "compare",
		"specificity": "high"
	}` + "\n```"

	server := httptest.NewServer(completionHandler(content))
	defer server.Close()

	service := services.NewLLMService(llmConfig(server.URL), testLogger())
	analysis, err := service.AnalyzeQuery(context.Background(), "wireless headphones")
	if err != nil {
		t.Fatalf("AnalyzeQuery failed: %v", err)
	}
	if analysis.Category != "audio" {
		t.Errorf("category = %q, want audio", analysis.Category)
	}
	if analysis.PriceRange.Min != 100 || analysis.PriceRange.Max != 400 {
		t.Errorf("price range = %+v, want [100, 400]", analysis.PriceRange)
	}
}

func TestAnalyzeQueryMalformedResponse(t *testing.T) {
	server := httptest.NewServer(completionHandler("I cannot answer that in JSON, sorry."))
	defer server.Close()

	service := services.NewLLMService(llmConfig(server.URL), testLogger())
	_, err := service.AnalyzeQuery(context.Background(), "widget")
	if err == nil {
		t.Fatal("expected error for non-JSON response")
	}
	if !models.IsProviderError(err) {
		t.Errorf("malformed response should be a provider error, got %v", err)
	}
}

func TestAnalyzeQuerySwapsInvertedPriceRange(t *testing.T) {
	content := `{"product_name": "widget", "category": "general", "key_features": [], "price_range": {"min": 500, "max": 100}, "search_keywords": ["widget"], "intent": "research", "specificity": "low"}`

	server := httptest.NewServer(completionHandler(content))
	defer server.Close()

	service := services.NewLLMService(llmConfig(server.URL), testLogger())
	analysis, err := service.AnalyzeQuery(context.Background(), "widget")
	if err != nil {
		t.Fatalf("AnalyzeQuery failed: %v", err)
	}
	if analysis.PriceRange.Min > analysis.PriceRange.Max {
		t.Errorf("inverted price range not normalized: %+v", analysis.PriceRange)
	}
}

func TestGenerateSearchQueries(t *testing.T) {
	server := httptest.NewServer(completionHandler(`["widget deals", "widget reviews", "widget specs"]`))
	defer server.Close()

	service := services.NewLLMService(llmConfig(server.URL), testLogger())
	queries, err := service.GenerateSearchQueries(context.Background(), models.DefaultQueryAnalysis("widget"), 1)
	if err != nil {
		t.Fatalf("GenerateSearchQueries failed: %v", err)
	}
	if len(queries) != 3 {
		t.Errorf("got %d queries, want 3", len(queries))
	}
}

func TestCallRetriesOnServerError(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			http.Error(w, "upstream overloaded", http.StatusBadGateway)
			return
		}
		completionHandler(`["widget deals"]`)(w, r)
	}))
	defer server.Close()

	service := services.NewLLMService(llmConfig(server.URL), testLogger())
	_, err := service.GenerateSearchQueries(context.Background(), models.DefaultQueryAnalysis("widget"), 1)
	if err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

func TestClientErrorNotRetried(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer server.Close()

	service := services.NewLLMService(llmConfig(server.URL), testLogger())
	_, err := service.GenerateSearchQueries(context.Background(), models.DefaultQueryAnalysis("widget"), 1)
	if err == nil {
		t.Fatal("expected error for HTTP 401")
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("attempts = %d, want 1 (4xx must not retry)", got)
	}
}

func TestCircuitBreakerStopsHammeringFailedProvider(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		http.Error(w, "upstream down", http.StatusInternalServerError)
	}))
	defer server.Close()

	service := services.NewLLMService(llmConfig(server.URL), testLogger())
	analysis := models.DefaultQueryAnalysis("widget")

	// Two failing calls at 3 tries each reach the 5-consecutive-failure
	// trip threshold; the breaker opens mid-way through the second call.
	for i := 0; i < 2; i++ {
		if _, err := service.GenerateSearchQueries(context.Background(), analysis, 1); err == nil {
			t.Fatal("expected failure while provider is down")
		}
	}
	if got := atomic.LoadInt32(&attempts); got != 5 {
		t.Fatalf("attempts = %d, want 5 before the breaker opens", got)
	}

	_, err := service.GenerateSearchQueries(context.Background(), analysis, 1)
	if err == nil {
		t.Fatal("expected failure with the breaker open")
	}
	if !models.IsProviderError(err) {
		t.Errorf("open breaker should surface a provider error, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 5 {
		t.Errorf("attempts = %d, open breaker must not reach the provider", got)
	}
}

func TestCallSendsAuthAndModel(t *testing.T) {
	var gotAuth, gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var payload struct {
			Model string `json:"model"`
		}
		json.NewDecoder(r.Body).Decode(&payload)
		gotModel = payload.Model
		completionHandler(`["q"]`)(w, r)
	}))
	defer server.Close()

	service := services.NewLLMService(llmConfig(server.URL), testLogger())
	if _, err := service.GenerateSearchQueries(context.Background(), models.DefaultQueryAnalysis("widget"), 1); err != nil {
		t.Fatalf("GenerateSearchQueries failed: %v", err)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("authorization header = %q", gotAuth)
	}
	if gotModel != "test-model" {
		t.Errorf("model = %q, want test-model", gotModel)
	}
}

func TestSummarizeRounds(t *testing.T) {
	summary := models.ProductSummary{
		Products: []models.ProductEntry{
			{Name: "Widget Pro", Price: 199.99, Source: "Amazon", Rating: 4.5},
		},
		PriceAnalysis:        models.PriceAnalysis{LowestPrice: 199.99, HighestPrice: 199.99, AveragePrice: 199.99, BestDeal: "Amazon"},
		CategoryInsights:     "insights",
		BuyingRecommendation: "buy it",
	}
	payload, _ := json.Marshal(summary)

	server := httptest.NewServer(completionHandler(fmt.Sprintf("```\n%s\n```", payload)))
	defer server.Close()

	service := services.NewLLMService(llmConfig(server.URL), testLogger())
	got, err := service.SummarizeRounds(context.Background(), []models.SearchRound{{Query: "Round 1: widget"}})
	if err != nil {
		t.Fatalf("SummarizeRounds failed: %v", err)
	}
	if len(got.Products) != 1 || got.Products[0].Name != "Widget Pro" {
		t.Errorf("unexpected summary products: %+v", got.Products)
	}
}

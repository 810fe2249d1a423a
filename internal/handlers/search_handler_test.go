package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"shopmart-pipeline/internal/handlers"
	"shopmart-pipeline/internal/models"
	"shopmart-pipeline/internal/pkg/logger"

	"github.com/gin-gonic/gin"
)

type mockOrchestrator struct {
	searchErr error
	chatErr   error
	getErr    error
}

func (m *mockOrchestrator) ExecuteSearch(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return &models.SearchResponse{
		Query:           req.Query,
		RoundsCompleted: 2,
		SearchID:        "search-123",
		Products:        []models.ProductEntry{},
	}, nil
}

func (m *mockOrchestrator) Chat(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error) {
	if m.chatErr != nil {
		return nil, m.chatErr
	}
	return &models.ChatResponse{Response: "answer", SearchID: req.SearchID, Query: "widget"}, nil
}

func (m *mockOrchestrator) GetSearch(ctx context.Context, searchID string) (*models.SearchResponse, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return &models.SearchResponse{SearchID: searchID, Query: "widget"}, nil
}

func (m *mockOrchestrator) History(ctx context.Context, userID int) ([]models.HistoryEntry, error) {
	return []models.HistoryEntry{{ID: "search-123", Query: "widget"}}, nil
}

func setupRouter(orchestrator *mockOrchestrator) *gin.Engine {
	gin.SetMode(gin.TestMode)

	handler := handlers.NewSearchHandler(orchestrator, logger.New(logger.Options{Level: "error"}))

	router := gin.New()
	router.POST("/api/search", handler.ExecuteSearch)
	router.POST("/api/search/chat", handler.Chat)
	router.GET("/api/search/history", handler.History)
	router.GET("/api/search/:search_id", handler.GetSearch)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Buffer
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewBuffer(payload)
	} else {
		reader = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestExecuteSearchEndpoint(t *testing.T) {
	router := setupRouter(&mockOrchestrator{})

	w := doJSON(t, router, http.MethodPost, "/api/search", models.SearchRequest{Query: "wireless headphones"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var response models.SearchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.SearchID != "search-123" {
		t.Errorf("search_id = %q, want search-123", response.SearchID)
	}
}

func TestExecuteSearchRejectsEmptyQuery(t *testing.T) {
	router := setupRouter(&mockOrchestrator{})

	w := doJSON(t, router, http.MethodPost, "/api/search", map[string]interface{}{"user_id": 1})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for missing query", w.Code)
	}
}

func TestExecuteSearchProviderFailure(t *testing.T) {
	router := setupRouter(&mockOrchestrator{
		searchErr: models.NewProviderError("LLM_CALL_FAILED", "Language model call failed"),
	})

	w := doJSON(t, router, http.MethodPost, "/api/search", models.SearchRequest{Query: "widget"})
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502 for provider failure", w.Code)
	}
}

func TestExecuteSearchInternalFailureHidesDetail(t *testing.T) {
	router := setupRouter(&mockOrchestrator{
		searchErr: models.NewInternalError("REDIS_STORE_FAILED", "redis exploded at 10.0.0.5"),
	})

	w := doJSON(t, router, http.MethodPost, "/api/search", models.SearchRequest{Query: "widget"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if bytes.Contains(w.Body.Bytes(), []byte("10.0.0.5")) {
		t.Error("internal error detail leaked to the client")
	}
}

func TestChatEndpoint(t *testing.T) {
	router := setupRouter(&mockOrchestrator{})

	w := doJSON(t, router, http.MethodPost, "/api/search/chat", models.ChatRequest{SearchID: "search-123", Message: "price?"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestChatUnknownSearch(t *testing.T) {
	router := setupRouter(&mockOrchestrator{chatErr: models.ErrSearchNotFound})

	w := doJSON(t, router, http.MethodPost, "/api/search/chat", models.ChatRequest{SearchID: "missing", Message: "hi"})
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestChatRejectsMissingMessage(t *testing.T) {
	router := setupRouter(&mockOrchestrator{})

	w := doJSON(t, router, http.MethodPost, "/api/search/chat", map[string]interface{}{"search_id": "search-123"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for missing message", w.Code)
	}
}

func TestGetSearchEndpoint(t *testing.T) {
	router := setupRouter(&mockOrchestrator{})

	w := doJSON(t, router, http.MethodGet, "/api/search/search-123", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	router := setupRouter(&mockOrchestrator{})

	w := doJSON(t, router, http.MethodGet, "/api/search/history?user_id=7", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("search-123")) {
		t.Error("history response missing entries")
	}
}

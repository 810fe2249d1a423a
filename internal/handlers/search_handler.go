package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"shopmart-pipeline/internal/models"
	"shopmart-pipeline/internal/pkg/logger"

	"github.com/gin-gonic/gin"
)

// SearchOrchestrator is the handler-facing surface of the research pipeline.
type SearchOrchestrator interface {
	ExecuteSearch(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error)
	Chat(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error)
	GetSearch(ctx context.Context, searchID string) (*models.SearchResponse, error)
	History(ctx context.Context, userID int) ([]models.HistoryEntry, error)
}

type SearchHandler struct {
	orchestrator SearchOrchestrator
	logger       *logger.Logger
}

func NewSearchHandler(orchestrator SearchOrchestrator, log *logger.Logger) *SearchHandler {
	return &SearchHandler{
		orchestrator: orchestrator,
		logger:       log,
	}
}

// ExecuteSearch handles POST /api/search.
func (handler *SearchHandler) ExecuteSearch(c *gin.Context) {
	startTime := time.Now()

	var req models.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	response, err := handler.orchestrator.ExecuteSearch(c.Request.Context(), &req)
	if err != nil {
		handler.logger.WithError(err).Error("Search execution failed",
			"query", req.Query,
			"duration", time.Since(startTime))
		c.JSON(models.HTTPStatus(err), gin.H{"error": models.PublicMessage(err)})
		return
	}

	c.JSON(http.StatusOK, response)
}

// Chat handles POST /api/search/chat.
func (handler *SearchHandler) Chat(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	response, err := handler.orchestrator.Chat(c.Request.Context(), &req)
	if err != nil {
		if !models.IsNotFound(err) {
			handler.logger.WithError(err).Error("Chat failed", "search_id", req.SearchID)
		}
		c.JSON(models.HTTPStatus(err), gin.H{"error": models.PublicMessage(err)})
		return
	}

	c.JSON(http.StatusOK, response)
}

// GetSearch handles GET /api/search/:search_id.
func (handler *SearchHandler) GetSearch(c *gin.Context) {
	searchID := c.Param("search_id")

	response, err := handler.orchestrator.GetSearch(c.Request.Context(), searchID)
	if err != nil {
		if !models.IsNotFound(err) {
			handler.logger.WithError(err).Error("Search lookup failed", "search_id", searchID)
		}
		c.JSON(models.HTTPStatus(err), gin.H{"error": models.PublicMessage(err)})
		return
	}

	c.JSON(http.StatusOK, response)
}

// History handles GET /api/search/history.
func (handler *SearchHandler) History(c *gin.Context) {
	userID, err := strconv.Atoi(c.DefaultQuery("user_id", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user_id"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}

	entries, err := handler.orchestrator.History(c.Request.Context(), userID)
	if err != nil {
		handler.logger.WithError(err).Error("History lookup failed", "user_id", userID)
		c.JSON(models.HTTPStatus(err), gin.H{"error": models.PublicMessage(err)})
		return
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	c.JSON(http.StatusOK, gin.H{"searches": entries})
}

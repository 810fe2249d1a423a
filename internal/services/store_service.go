package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"shopmart-pipeline/internal/config"
	"shopmart-pipeline/internal/models"
	"shopmart-pipeline/internal/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// StoreService persists finished search sessions and the per-user history
// index in Redis. Sessions are write-once; only the history list and the
// product dedup set accrete.
type StoreService struct {
	client *redis.Client
	logger *logger.Logger
	config config.RedisConfig
}

func NewStoreService(cfg config.RedisConfig, log *logger.Logger) (*StoreService, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}

	opt.PoolSize = cfg.PoolSize
	opt.DialTimeout = cfg.DialTimeout
	opt.ReadTimeout = cfg.ReadTimeout
	opt.WriteTimeout = cfg.WriteTimeout

	service := &StoreService{
		client: redis.NewClient(opt),
		logger: log,
		config: cfg,
	}

	if err := service.testConnection(); err != nil {
		return nil, fmt.Errorf("connection to Redis failed: %w", err)
	}

	log.Info("Store service initialized",
		"url", cfg.URL,
		"pool_size", cfg.PoolSize,
		"session_ttl", cfg.SessionTTL)

	return service, nil
}

func (service *StoreService) testConnection() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := service.client.Ping(ctx).Err(); err != nil {
		return err
	}
	return nil
}

func (service *StoreService) Close() error {
	service.logger.Info("Closing store service")
	return service.client.Close()
}

func sessionKey(searchID string) string {
	return fmt.Sprintf("search:%s", searchID)
}

func historyKey(userID int) string {
	return fmt.Sprintf("user:%d:searches", userID)
}

// StoreSession writes the materialized session and pushes its ID onto the
// owner's history list. History is trimmed to the configured limit; both
// keys share the session TTL.
func (service *StoreService) StoreSession(ctx context.Context, session *models.SearchSession) error {
	startTime := time.Now()
	key := sessionKey(session.ID)

	sessionJSON, err := json.Marshal(session)
	if err != nil {
		return models.NewInternalError("SERIALIZATION_FAILED", "Failed to serialize search session").WithCause(err)
	}

	pipe := service.client.Pipeline()
	pipe.Set(ctx, key, sessionJSON, service.config.SessionTTL)
	if session.UserID != 0 {
		listKey := historyKey(session.UserID)
		pipe.LPush(ctx, listKey, session.ID)
		pipe.LTrim(ctx, listKey, 0, int64(service.config.HistoryLimit-1))
		pipe.Expire(ctx, listKey, service.config.SessionTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		service.logger.LogService("store", "store_session", time.Since(startTime), map[string]interface{}{
			"search_id": session.ID,
			"user_id":   session.UserID,
		}, err)
		return models.NewInternalError("REDIS_STORE_FAILED", "Failed to store search session").WithCause(err)
	}

	service.logger.LogService("store", "store_session", time.Since(startTime), map[string]interface{}{
		"search_id": session.ID,
		"rounds":    session.RoundsCompleted(),
		"products":  len(session.Summary.Products),
	}, nil)

	return nil
}

// GetSession loads one stored session. A missing or expired key maps to
// ErrSearchNotFound.
func (service *StoreService) GetSession(ctx context.Context, searchID string) (*models.SearchSession, error) {
	startTime := time.Now()
	key := sessionKey(searchID)

	sessionJSON, err := service.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, models.ErrSearchNotFound.WithMetadata("search_id", searchID)
		}
		service.logger.LogService("store", "get_session", time.Since(startTime), map[string]interface{}{
			"search_id": searchID,
		}, err)
		return nil, models.NewInternalError("REDIS_GET_FAILED", "Failed to load search session").WithCause(err)
	}

	var session models.SearchSession
	if err := json.Unmarshal([]byte(sessionJSON), &session); err != nil {
		return nil, models.NewInternalError("DESERIALIZATION_FAILED", "Failed to deserialize search session").WithCause(err)
	}

	service.logger.LogService("store", "get_session", time.Since(startTime), map[string]interface{}{
		"search_id": searchID,
	}, nil)

	return &session, nil
}

// GetHistory returns the user's recent searches, newest first. Sessions that
// expired out from under the history list are skipped silently.
func (service *StoreService) GetHistory(ctx context.Context, userID int) ([]models.HistoryEntry, error) {
	startTime := time.Now()
	listKey := historyKey(userID)

	ids, err := service.client.LRange(ctx, listKey, 0, int64(service.config.HistoryLimit-1)).Result()
	if err != nil {
		service.logger.LogService("store", "get_history", time.Since(startTime), map[string]interface{}{
			"user_id": userID,
		}, err)
		return nil, models.NewInternalError("REDIS_GET_FAILED", "Failed to load search history").WithCause(err)
	}

	entries := make([]models.HistoryEntry, 0, len(ids))
	for _, id := range ids {
		session, err := service.GetSession(ctx, id)
		if err != nil {
			if models.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		entries = append(entries, models.HistoryEntry{
			ID:           session.ID,
			Query:        session.Query,
			CreatedAt:    session.CreatedAt,
			SearchRounds: session.RoundsCompleted(),
			ResultsCount: len(session.Summary.Products),
		})
	}

	service.logger.LogService("store", "get_history", time.Since(startTime), map[string]interface{}{
		"user_id": userID,
		"entries": len(entries),
	}, nil)

	return entries, nil
}

// UpsertProducts records the summary's products into the shared catalog,
// deduplicated on normalized name plus source. Existing entries win; this
// runs on a background context after the response has been sent, so failures
// are logged and swallowed by the caller.
func (service *StoreService) UpsertProducts(ctx context.Context, products []models.ProductEntry) (int, error) {
	startTime := time.Now()
	stored := 0

	for _, product := range products {
		key := fmt.Sprintf("product:%s:%s",
			normalizeProductKey(product.Name),
			normalizeProductKey(product.Source))

		productJSON, err := json.Marshal(product)
		if err != nil {
			service.logger.WithError(err).Warn("Failed to serialize product", "name", product.Name)
			continue
		}

		created, err := service.client.SetNX(ctx, key, productJSON, service.config.SessionTTL).Result()
		if err != nil {
			service.logger.LogService("store", "upsert_products", time.Since(startTime), map[string]interface{}{
				"products": len(products),
				"stored":   stored,
			}, err)
			return stored, models.NewInternalError("REDIS_STORE_FAILED", "Failed to store products").WithCause(err)
		}
		if created {
			stored++
		}
	}

	service.logger.LogService("store", "upsert_products", time.Since(startTime), map[string]interface{}{
		"products": len(products),
		"stored":   stored,
	}, nil)

	return stored, nil
}

func normalizeProductKey(value string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), " ", "-")
}

func (service *StoreService) HealthCheck(ctx context.Context) error {
	if err := service.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection unhealthy: %w", err)
	}
	return nil
}

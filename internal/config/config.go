package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	HTTP        HTTPConfig
	LLM         LLMConfig
	Search      SearchConfig
	Scraper     ScraperConfig
	Redis       RedisConfig
	Log         LogConfig
}

type HTTPConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LLMConfig drives the OpenRouter-compatible chat-completion client.
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	AppTitle       string
	MaxTokens      int
	Temperature    float64
	TopP           float64
	Timeout        time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

type SearchConfig struct {
	DefaultMaxRounds   int
	CacheTTL           time.Duration
	RatePerSecond      int
	LiveLookupsPerCall int
	LiveResultsPerCall int
}

type ScraperConfig struct {
	Timeout    time.Duration
	MaxResults int
	UserAgent  string
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	SessionTTL   time.Duration
	HistoryLimit int
}

type LogConfig struct {
	Level      string
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func Load() (*Config, error) {
	// .env is optional outside local development
	_ = godotenv.Load()

	port, err := strconv.Atoi(getEnv("PORT", "8000"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	maxRounds, err := strconv.Atoi(getEnv("SEARCH_MAX_ROUNDS", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid SEARCH_MAX_ROUNDS: %w", err)
	}

	cacheTTL, err := strconv.Atoi(getEnv("SEARCH_CACHE_TTL_SECONDS", "300"))
	if err != nil {
		return nil, fmt.Errorf("invalid SEARCH_CACHE_TTL_SECONDS: %w", err)
	}

	ratePerSecond, err := strconv.Atoi(getEnv("SEARCH_RATE_PER_SECOND", "15"))
	if err != nil {
		return nil, fmt.Errorf("invalid SEARCH_RATE_PER_SECOND: %w", err)
	}

	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		HTTP: HTTPConfig{
			Port:            port,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
		LLM: LLMConfig{
			APIKey:         os.Getenv("OPENROUTER_API_KEY"),
			BaseURL:        getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
			Model:          getEnv("LLM_MODEL", "deepseek/deepseek-r1"),
			Referer:        getEnv("LLM_HTTP_REFERER", "https://shopmart.app"),
			AppTitle:       getEnv("LLM_APP_TITLE", "ShopMart"),
			MaxTokens:      2000,
			Temperature:    0.7,
			TopP:           0.9,
			Timeout:        60 * time.Second,
			MaxRetries:     3,
			RetryBaseDelay: 4 * time.Second,
			RetryMaxDelay:  10 * time.Second,
		},
		Search: SearchConfig{
			DefaultMaxRounds:   maxRounds,
			CacheTTL:           time.Duration(cacheTTL) * time.Second,
			RatePerSecond:      ratePerSecond,
			LiveLookupsPerCall: 2,
			LiveResultsPerCall: 2,
		},
		Scraper: ScraperConfig{
			Timeout:    15 * time.Second,
			MaxResults: 3,
			UserAgent:  getEnv("SCRAPER_USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", "redis://localhost:6379/0"),
			PoolSize:     10,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			SessionTTL:   7 * 24 * time.Hour,
			HistoryLimit: 50,
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			FilePath:   os.Getenv("LOG_FILE"),
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}, nil
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}

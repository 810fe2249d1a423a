package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type SearchRequest struct {
	Query     string `json:"query" binding:"required"`
	UserID    int    `json:"user_id,omitempty"`
	MaxRounds int    `json:"max_rounds,omitempty"`
}

type SearchResponse struct {
	Query                string         `json:"query"`
	RoundsCompleted      int            `json:"rounds_completed"`
	TotalResults         int            `json:"total_results"`
	SearchAnalysis       QueryAnalysis  `json:"search_analysis"`
	Products             []ProductEntry `json:"products"`
	PriceAnalysis        PriceAnalysis  `json:"price_analysis"`
	CategoryInsights     string         `json:"category_insights"`
	BuyingRecommendation string         `json:"buying_recommendation"`
	SearchID             string         `json:"search_id"`
}

type ChatRequest struct {
	SearchID string `json:"search_id" binding:"required"`
	Message  string `json:"message" binding:"required"`
	UserID   int    `json:"user_id,omitempty"`
}

type ChatResponse struct {
	Response string `json:"response"`
	SearchID string `json:"search_id"`
	Query    string `json:"query"`
}

type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// QueryAnalysis is the one-shot interpretation of the raw query. It is
// immutable for the lifetime of a session; when the analysis capability is
// unavailable DefaultQueryAnalysis stands in.
type QueryAnalysis struct {
	ProductName    string     `json:"product_name"`
	Category       string     `json:"category"`
	KeyFeatures    []string   `json:"key_features"`
	PriceRange     PriceRange `json:"price_range"`
	SearchKeywords []string   `json:"search_keywords"`
	Intent         string     `json:"intent"`
	Specificity    string     `json:"specificity"`
}

func DefaultQueryAnalysis(query string) QueryAnalysis {
	return QueryAnalysis{
		ProductName:    query,
		Category:       "general",
		KeyFeatures:    []string{},
		PriceRange:     PriceRange{Min: 0, Max: 1000},
		SearchKeywords: []string{query},
		Intent:         "research",
		Specificity:    "medium",
	}
}

// CandidateResult is one listing produced by a source for one sub-query.
// Optional fields are pointers: not every source yields a parseable price,
// rating or review count.
type CandidateResult struct {
	Title              string   `json:"title"`
	Price              *float64 `json:"price"`
	Currency           string   `json:"currency"`
	Source             string   `json:"source"`
	URL                string   `json:"url"`
	ImageURL           string   `json:"image_url,omitempty"`
	Description        string   `json:"description"`
	Rating             *float64 `json:"rating,omitempty"`
	ReviewCount        *int     `json:"review_count,omitempty"`
	Availability       bool     `json:"availability"`
	Category           string   `json:"category,omitempty"`
	Brand              string   `json:"brand,omitempty"`
	Features           []string `json:"features,omitempty"`
	DiscountPercentage *float64 `json:"discount_percentage,omitempty"`
}

// SearchRound is one completed iteration of the research loop. Rounds are
// appended in order and never mutated afterwards.
type SearchRound struct {
	Query     string            `json:"query"`
	Results   []CandidateResult `json:"results"`
	Reasoning string            `json:"reasoning"`
}

type ResultEvaluation struct {
	QualityScore           float64  `json:"quality_score"`
	Completeness           string   `json:"completeness"`
	KeyInsights            []string `json:"key_insights"`
	MissingInfo            []string `json:"missing_info"`
	NeedsMoreRounds        bool     `json:"needs_more_rounds"`
	RecommendedNextQueries []string `json:"recommended_next_queries"`
}

type ProductEntry struct {
	Name         string   `json:"name"`
	Brand        string   `json:"brand"`
	Price        float64  `json:"price"`
	Currency     string   `json:"currency"`
	Source       string   `json:"source"`
	SourceURL    string   `json:"source_url"`
	ImageURL     string   `json:"image_url,omitempty"`
	KeyFeatures  []string `json:"key_features"`
	Pros         []string `json:"pros"`
	Cons         []string `json:"cons"`
	Rating       float64  `json:"rating"`
	ReviewCount  int      `json:"review_count"`
	Availability bool     `json:"availability"`
}

type PriceAnalysis struct {
	LowestPrice  float64 `json:"lowest_price"`
	HighestPrice float64 `json:"highest_price"`
	AveragePrice float64 `json:"average_price"`
	BestDeal     string  `json:"best_deal"`
}

type ProductSummary struct {
	Products             []ProductEntry `json:"products"`
	PriceAnalysis        PriceAnalysis  `json:"price_analysis"`
	CategoryInsights     string         `json:"category_insights"`
	BuyingRecommendation string         `json:"buying_recommendation"`
}

// SearchSession is the top-level aggregate for one search request. It is
// owned by the orchestrating goroutine until fully materialized, then handed
// to the store and treated as read-only.
type SearchSession struct {
	ID        string         `json:"id"`
	UserID    int            `json:"user_id,omitempty"`
	Query     string         `json:"query"`
	Analysis  QueryAnalysis  `json:"analysis"`
	Rounds    []SearchRound  `json:"rounds"`
	Summary   ProductSummary `json:"summary"`
	Degraded  bool           `json:"degraded,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func NewSearchSession(query string, userID int, analysis QueryAnalysis) *SearchSession {
	return &SearchSession{
		ID:        uuid.New().String(),
		UserID:    userID,
		Query:     query,
		Analysis:  analysis,
		Rounds:    []SearchRound{},
		CreatedAt: time.Now(),
	}
}

func (s *SearchSession) AppendRound(round SearchRound) {
	s.Rounds = append(s.Rounds, round)
}

func (s *SearchSession) RoundsCompleted() int {
	return len(s.Rounds)
}

func (s *SearchSession) Response() *SearchResponse {
	return &SearchResponse{
		Query:                s.Query,
		RoundsCompleted:      len(s.Rounds),
		TotalResults:         len(s.Summary.Products),
		SearchAnalysis:       s.Analysis,
		Products:             s.Summary.Products,
		PriceAnalysis:        s.Summary.PriceAnalysis,
		CategoryInsights:     s.Summary.CategoryInsights,
		BuyingRecommendation: s.Summary.BuyingRecommendation,
		SearchID:             s.ID,
	}
}

// HistoryEntry is the per-user listing shape returned by the history endpoint.
type HistoryEntry struct {
	ID           string    `json:"id"`
	Query        string    `json:"query"`
	CreatedAt    time.Time `json:"created_at"`
	SearchRounds int       `json:"search_rounds"`
	ResultsCount int       `json:"results_count"`
}

// RoundQueryLabel renders the composite human-readable query recorded on a
// round, e.g. "Round 2: q1, q2, q3".
func RoundQueryLabel(roundNum int, queries []string) string {
	return fmt.Sprintf("Round %d: %s", roundNum, strings.Join(queries, ", "))
}

func GenerateRequestID() string {
	return uuid.New().String()
}

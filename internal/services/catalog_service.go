package services

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"shopmart-pipeline/internal/models"
	"shopmart-pipeline/internal/pkg/logger"
)

// CatalogService synthesizes plausible retail listings for a query. It is the
// guaranteed-available data source: it backs every fetch and the degraded
// path when the analysis capability is down.
type CatalogService struct {
	logger *logger.Logger
}

type productVariant struct {
	suffix          string
	priceMultiplier float64
	ratingBoost     float64
}

type retailSource struct {
	name        string
	reliability float64
	priceFactor float64
}

// Only the first usedVariants entries are emitted per query; Mini stays
// defined for parity with the source taxonomy but unused.
var productVariants = []productVariant{
	{"Pro", 1.5, 0.2},
	{"Standard", 1.0, 0.0},
	{"Lite", 0.7, -0.1},
	{"Max", 1.8, 0.3},
	{"Mini", 0.6, -0.05},
}

const usedVariants = 4

var retailSources = []retailSource{
	{"Amazon", 0.95, 1.0},
	{"Best Buy", 0.9, 1.05},
	{"Walmart", 0.85, 0.95},
	{"Target", 0.88, 1.02},
	{"eBay", 0.75, 0.85},
	{"Newegg", 0.9, 1.03},
}

var categoryFeaturePools = map[string][]string{
	"electronics": {"Fast Processor", "Long Battery Life", "HD Display", "Wireless Charging", "Water Resistant"},
	"audio":       {"Noise Cancellation", "Wireless", "High-Fi Sound", "Long Battery", "Comfortable Fit"},
	"gaming":      {"4K Gaming", "Backwards Compatible", "Online Multiplayer", "Exclusive Games", "Fast Loading"},
	"home":        {"Energy Efficient", "Easy Setup", "Smart Controls", "Quiet Operation", "Large Capacity"},
	"general":     {"High Quality", "Durable", "User Friendly", "Great Value", "Fast Shipping"},
}

var categoryBrandPools = map[string][]string{
	"electronics": {"Apple", "Samsung", "Google", "Sony", "LG"},
	"audio":       {"Bose", "Sony", "Apple", "Sennheiser", "Audio-Technica"},
	"gaming":      {"Sony", "Microsoft", "Nintendo", "Razer", "Logitech"},
	"home":        {"Dyson", "Shark", "Bissell", "Black+Decker", "Hoover"},
	"general":     {"TechCorp", "Innovation Labs", "Quality Brand", "Premium Co", "Smart Solutions"},
}

var categoryImagePools = map[string][]string{
	"electronics": {
		"https://images.unsplash.com/photo-1511707171634-5f897ff02aa9?w=100&h=100&fit=crop",
		"https://images.unsplash.com/photo-1517336714731-489689fd1ca8?w=100&h=100&fit=crop",
		"https://images.unsplash.com/photo-1526738549149-8e07eca6c147?w=100&h=100&fit=crop",
		"https://images.unsplash.com/photo-1560472354-b33ff0c44a43?w=100&h=100&fit=crop",
	},
	"audio": {
		"https://images.unsplash.com/photo-1572569511254-d8f925fe2cbb?w=100&h=100&fit=crop",
		"https://images.unsplash.com/photo-1505740420928-5e560c06d30e?w=100&h=100&fit=crop",
		"https://images.unsplash.com/photo-1583394838336-acd977736f90?w=100&h=100&fit=crop",
		"https://images.unsplash.com/photo-1484704849700-f032a568e944?w=100&h=100&fit=crop",
	},
	"gaming": {
		"https://images.unsplash.com/photo-1493711662062-fa541adb3fc8?w=100&h=100&fit=crop",
		"https://images.unsplash.com/photo-1550745165-9bc0b252726f?w=100&h=100&fit=crop",
		"https://images.unsplash.com/photo-1592840221661-2a4dd0c7b9f7?w=100&h=100&fit=crop",
		"https://images.unsplash.com/photo-1606318721529-79d95cf6bb32?w=100&h=100&fit=crop",
	},
	"home": {
		"https://images.unsplash.com/photo-1558618047-3c8c76ca7d13?w=100&h=100&fit=crop",
		"https://images.unsplash.com/photo-1441986300917-64674bd600d8?w=100&h=100&fit=crop",
		"https://images.unsplash.com/photo-1472851294608-062f824d29cc?w=100&h=100&fit=crop",
		"https://images.unsplash.com/photo-1507003211169-0a1dd7228f2d?w=100&h=100&fit=crop",
	},
}

func NewCatalogService(log *logger.Logger) *CatalogService {
	return &CatalogService{logger: log}
}

// Generate produces the fixed set of variant listings for one query. It
// never fails.
func (service *CatalogService) Generate(query string) []models.CandidateResult {
	category := CategorizeQuery(query)
	basePrice := estimateBasePrice(query)

	results := make([]models.CandidateResult, 0, usedVariants)
	for i, variant := range productVariants[:usedVariants] {
		source := retailSources[i%len(retailSources)]

		variantPrice := round2(basePrice * variant.priceMultiplier * source.priceFactor)
		originalPrice := variantPrice * (1.1 + rand.Float64()*0.3)
		discountPct := (originalPrice - variantPrice) / originalPrice * 100

		rating := 4.0 + variant.ratingBoost + (source.reliability-0.8)*2
		rating += -0.2 + rand.Float64()*0.4
		rating = round1(math.Min(5.0, math.Max(3.0, rating)))

		reviewCount := 100 + rand.Intn(4901)

		result := models.CandidateResult{
			Title:        fmt.Sprintf("%s %s", query, variant.suffix),
			Price:        floatPtr(variantPrice),
			Currency:     "USD",
			Source:       source.name,
			URL:          fmt.Sprintf("https://%s.com/product%d", strings.ToLower(strings.ReplaceAll(source.name, " ", "")), i+1),
			ImageURL:     categoryImage(category, i),
			Description:  fmt.Sprintf("High-quality %s %s with premium features and excellent performance", query, variant.suffix),
			Rating:       floatPtr(rating),
			ReviewCount:  intPtr(reviewCount),
			Availability: rand.Intn(4) != 3,
			Category:     category,
			Brand:        pickBrand(category),
			Features:     sampleFeatures(category, variant.suffix),
		}
		if discountPct > 5 {
			result.DiscountPercentage = floatPtr(math.Round(discountPct))
		}
		results = append(results, result)
	}

	service.logger.Debug("Generated catalog listings",
		"query", query,
		"category", category,
		"count", len(results))

	return results
}

func sampleFeatures(category, variant string) []string {
	pool, ok := categoryFeaturePools[category]
	if !ok {
		pool = categoryFeaturePools["general"]
	}

	features := make([]string, 0, len(pool)+2)
	switch variant {
	case "Pro":
		features = append(features, "Professional Grade", "Advanced Features")
	case "Max":
		features = append(features, "Maximum Performance", "Premium Build")
	case "Lite":
		features = append(features, "Lightweight", "Budget Friendly")
	}
	features = append(features, pool...)

	rand.Shuffle(len(features), func(i, j int) {
		features[i], features[j] = features[j], features[i]
	})
	if len(features) > 3 {
		features = features[:3]
	}
	return features
}

func pickBrand(category string) string {
	pool, ok := categoryBrandPools[category]
	if !ok {
		pool = categoryBrandPools["general"]
	}
	return pool[rand.Intn(len(pool))]
}

func categoryImage(category string, index int) string {
	pool, ok := categoryImagePools[category]
	if !ok {
		pool = categoryImagePools["electronics"]
	}
	return pool[index%len(pool)]
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func round1(value float64) float64 {
	return math.Round(value*10) / 10
}

func floatPtr(value float64) *float64 {
	return &value
}

func intPtr(value int) *int {
	return &value
}

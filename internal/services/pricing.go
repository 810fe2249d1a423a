package services

import (
	"math/rand"
	"regexp"
	"strconv"
	"strings"
)

const (
	minPlausiblePrice = 5.0
	maxPlausiblePrice = 20000.0
)

// pricePatterns are tried in order; the first match wins.
var pricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\$\s*(\d{1,4}(?:,\d{3})*(?:\.\d{2})?)`),
	regexp.MustCompile(`(?i)(\d{1,4}(?:,\d{3})*(?:\.\d{2})?)\s*dollars?`),
	regexp.MustCompile(`(?i)USD\s*(\d{1,4}(?:,\d{3})*(?:\.\d{2})?)`),
	regexp.MustCompile(`(?i)Price:?\s*\$?(\d{1,4}(?:,\d{3})*(?:\.\d{2})?)`),
}

// ExtractPrice pulls a numeric price out of free text. Values outside the
// plausible [5, 20000] range are rejected.
func ExtractPrice(text string) (float64, bool) {
	for _, pattern := range pricePatterns {
		match := pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		price, err := strconv.ParseFloat(strings.ReplaceAll(match[1], ",", ""), 64)
		if err != nil {
			continue
		}
		if price >= minPlausiblePrice && price <= maxPlausiblePrice {
			return price, true
		}
	}
	return 0, false
}

type categoryKeywords struct {
	name     string
	keywords []string
}

// categoryTaxonomy is ordered: the first category with a keyword hit wins.
var categoryTaxonomy = []categoryKeywords{
	{"electronics", []string{"phone", "smartphone", "iphone", "android", "tablet", "ipad", "laptop", "computer", "pc", "macbook", "tv", "monitor"}},
	{"audio", []string{"headphones", "earbuds", "airpods", "speaker", "audio", "music", "sound"}},
	{"gaming", []string{"gaming", "xbox", "playstation", "nintendo", "switch", "console", "game"}},
	{"home", []string{"vacuum", "cleaner", "dyson", "kitchen", "appliance", "home"}},
	{"fashion", []string{"clothing", "shoes", "shirt", "dress", "pants", "jacket"}},
	{"health", []string{"fitness", "health", "supplement", "vitamin", "exercise"}},
	{"books", []string{"book", "novel", "textbook", "reading"}},
	{"tools", []string{"tool", "hardware", "drill", "hammer", "repair"}},
}

// CategorizeQuery maps a free-text query onto the fixed category taxonomy.
// Keywords match whole words only, so "headphones" is audio rather than a
// substring hit on the electronics keyword "phone".
func CategorizeQuery(query string) string {
	words := make(map[string]struct{})
	for _, word := range strings.Fields(strings.ToLower(query)) {
		words[word] = struct{}{}
	}
	for _, category := range categoryTaxonomy {
		for _, keyword := range category.keywords {
			if _, ok := words[keyword]; ok {
				return category.name
			}
		}
	}
	return "general"
}

type keywordPrice struct {
	keyword string
	price   float64
}

var basePriceTable = []keywordPrice{
	{"iphone", 800}, {"ipad", 500}, {"macbook", 1200}, {"airpods", 180},
	{"laptop", 600}, {"computer", 800}, {"phone", 400}, {"tablet", 300},
	{"headphones", 150}, {"speaker", 200}, {"tv", 500}, {"monitor", 300},
	{"xbox", 400}, {"playstation", 450}, {"nintendo", 300}, {"switch", 280},
	{"vacuum", 200}, {"watch", 250}, {"camera", 400}, {"drone", 300},
}

// estimateBasePrice looks the query up in the keyword price table with ±20%
// jitter, defaulting to a uniform [50,500] draw for unknown products.
func estimateBasePrice(query string) float64 {
	lowered := strings.ToLower(query)
	for _, entry := range basePriceTable {
		if strings.Contains(lowered, entry.keyword) {
			return entry.price * (0.8 + rand.Float64()*0.4)
		}
	}
	return 50 + rand.Float64()*450
}

package services_test

import (
	"strings"
	"testing"

	"shopmart-pipeline/internal/pkg/logger"
	"shopmart-pipeline/internal/services"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{Level: "error"})
}

func TestCatalogGenerateVariants(t *testing.T) {
	catalog := services.NewCatalogService(testLogger())

	results := catalog.Generate("wireless headphones")
	if len(results) != 4 {
		t.Fatalf("expected 4 variant listings, got %d", len(results))
	}

	wantSuffixes := []string{"Pro", "Standard", "Lite", "Max"}
	for i, result := range results {
		if !strings.HasSuffix(result.Title, wantSuffixes[i]) {
			t.Errorf("result %d title = %q, want suffix %q", i, result.Title, wantSuffixes[i])
		}
		if result.Category != "audio" {
			t.Errorf("result %d category = %q, want audio", i, result.Category)
		}
		if result.Currency != "USD" {
			t.Errorf("result %d currency = %q, want USD", i, result.Currency)
		}
		if result.Price == nil || *result.Price <= 0 {
			t.Errorf("result %d has no positive price", i)
		}
		if result.Source == "" || result.URL == "" {
			t.Errorf("result %d missing source or url", i)
		}
		if len(result.Features) == 0 || len(result.Features) > 3 {
			t.Errorf("result %d has %d features, want 1-3", i, len(result.Features))
		}
	}
}

func TestCatalogGenerateRatingBounds(t *testing.T) {
	catalog := services.NewCatalogService(testLogger())

	// Ratings include jitter; run a few batches to exercise the clamp.
	for i := 0; i < 20; i++ {
		for _, result := range catalog.Generate("gaming console") {
			if result.Rating == nil {
				t.Fatal("expected a rating on every catalog listing")
			}
			if *result.Rating < 3.0 || *result.Rating > 5.0 {
				t.Fatalf("rating %v outside [3, 5]", *result.Rating)
			}
			if result.ReviewCount == nil || *result.ReviewCount < 100 || *result.ReviewCount > 5000 {
				t.Fatalf("review count outside [100, 5000]")
			}
		}
	}
}

func TestCatalogGenerateDiscounts(t *testing.T) {
	catalog := services.NewCatalogService(testLogger())

	for i := 0; i < 10; i++ {
		for _, result := range catalog.Generate("iphone 15") {
			if result.DiscountPercentage == nil {
				continue
			}
			if *result.DiscountPercentage <= 5 {
				t.Fatalf("surfaced discount %v should exceed 5%%", *result.DiscountPercentage)
			}
		}
	}
}

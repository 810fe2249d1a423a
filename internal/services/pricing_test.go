package services_test

import (
	"testing"

	"shopmart-pipeline/internal/services"
)

func TestExtractPrice(t *testing.T) {
	cases := []struct {
		name  string
		text  string
		want  float64
		found bool
	}{
		{"dollar sign", "Great deal at $299.99 today", 299.99, true},
		{"thousands separator", "MacBook Pro $1,299.00 in stock", 1299.00, true},
		{"dollars word", "only 450 dollars with shipping", 450, true},
		{"usd prefix", "listed at USD 89.50", 89.50, true},
		{"price label", "Price: $159", 159, true},
		{"below plausible range", "charging cable $3.00", 0, false},
		{"above plausible range", "$25,000 luxury bundle", 0, false},
		{"no price", "free shipping on all orders", 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, found := services.ExtractPrice(tc.text)
			if found != tc.found {
				t.Fatalf("ExtractPrice(%q) found = %v, want %v", tc.text, found, tc.found)
			}
			if found && got != tc.want {
				t.Errorf("ExtractPrice(%q) = %v, want %v", tc.text, got, tc.want)
			}
		})
	}
}

func TestCategorizeQuery(t *testing.T) {
	cases := []struct {
		query string
		want  string
	}{
		{"wireless headphones", "audio"},
		{"iPhone 15 Pro", "electronics"},
		{"Nintendo Switch OLED", "gaming"},
		{"Dyson cordless vacuum", "home"},
		{"running shoes for men", "fashion"},
		{"protein supplement", "health"},
		{"mystery novel paperback", "books"},
		{"cordless drill set", "tools"},
		{"something unrecognizable", "general"},
		// Whole-word matching: "phone" must not substring-match inside
		// "headphones" or "microphone".
		{"noise cancelling headphones", "audio"},
		{"microphone stand", "general"},
		{"budget phone", "electronics"},
	}

	for _, tc := range cases {
		if got := services.CategorizeQuery(tc.query); got != tc.want {
			t.Errorf("CategorizeQuery(%q) = %q, want %q", tc.query, got, tc.want)
		}
	}
}

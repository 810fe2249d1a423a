package services

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

const resultHTML = `
<div class="result">
  <a class="result__a" href="https://www.bestbuy.com/headphones">Sony WH-1000XM5 Wireless Headphones - $349.99</a>
  <a class="result__snippet">Industry-leading noise cancellation, 30 hour battery.</a>
</div>
<div class="result">
  <a class="result__a" href="https://example.com/empty"></a>
</div>`

func TestParseSearchResult(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resultHTML))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}

	nodes := doc.Find("div.result")
	if nodes.Length() != 2 {
		t.Fatalf("fixture has %d result nodes, want 2", nodes.Length())
	}

	result, ok := parseSearchResult(nodes.First(), "sony headphones", "audio")
	if !ok {
		t.Fatal("expected a parsed result")
	}
	if !strings.Contains(result.Title, "Sony WH-1000XM5") {
		t.Errorf("title = %q", result.Title)
	}
	if result.Price == nil || *result.Price != 349.99 {
		t.Errorf("price = %v, want 349.99 from the listing text", result.Price)
	}
	if result.Source != "www.bestbuy.com" {
		t.Errorf("source = %q, want www.bestbuy.com", result.Source)
	}
	if result.Category != "audio" {
		t.Errorf("category = %q, want audio", result.Category)
	}

	if _, ok := parseSearchResult(nodes.Last(), "sony headphones", "audio"); ok {
		t.Error("title-less result node should be skipped")
	}
}

package keyword

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/otasuke/internal/models"
)

func sampleChunks() []*models.KnowledgeChunk {
	return []*models.KnowledgeChunk{
		{ID: "ship_0", DocumentID: "shipping", Title: "shipping_policy.txt", Section: "Shipping Policy",
			Content: "Standard Shipping: 5-7 business days. Free shipping on orders over $50."},
		{ID: "ret_0", DocumentID: "returns", Title: "return_policy.txt", Section: "Return Policy",
			Content: "We offer a 30-day return policy. Refunds are processed within 5-7 business days."},
		{ID: "faq_0", DocumentID: "faq", Title: "faq.txt",
			Content: "We accept Visa, MasterCard, American Express, PayPal, and Apple Pay."},
	}
}

func newIndex(t *testing.T, path string) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex(path)
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	return idx
}

func TestBleveIndex_SearchFindsContent(t *testing.T) {
	idx := newIndex(t, "")
	defer idx.Close()
	ctx := context.Background()
	if err := idx.IndexChunks(ctx, sampleChunks()); err != nil {
		t.Fatalf("IndexChunks: %v", err)
	}

	results, err := idx.Search(ctx, "paypal", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "faq_0" {
		t.Fatalf("results = %+v, want faq_0", results)
	}

	// No stemming: "refunds" matches the literal word only.
	results, _ = idx.Search(ctx, "refunds", 10, nil)
	if len(results) != 1 || results[0].ID != "ret_0" {
		t.Errorf("results = %+v, want ret_0", results)
	}
}

func TestBleveIndex_Fuzziness(t *testing.T) {
	idx := newIndex(t, "")
	defer idx.Close()
	ctx := context.Background()
	_ = idx.IndexChunks(ctx, sampleChunks())

	exact, _ := idx.Search(ctx, "mastercrd", 10, nil)
	if len(exact) != 0 {
		t.Errorf("exact search for a typo should miss, got %+v", exact)
	}
	fuzzy, err := idx.Search(ctx, "mastercrd", 10, &SearchOptions{Fuzziness: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(fuzzy) == 0 || fuzzy[0].ID != "faq_0" {
		t.Errorf("fuzzy results = %+v, want faq_0", fuzzy)
	}
}

func TestBleveIndex_HeadingBoost(t *testing.T) {
	idx := newIndex(t, "")
	defer idx.Close()
	ctx := context.Background()
	_ = idx.IndexChunks(ctx, sampleChunks())

	// Only the return chunk says "policy" in its content; the shipping chunk has it
	// in its title and section heading.
	plain, _ := idx.Search(ctx, "policy", 10, nil)
	if len(plain) != 1 || plain[0].ID != "ret_0" {
		t.Errorf("content-only results = %+v, want [ret_0]", plain)
	}
	boosted, err := idx.Search(ctx, "policy", 10, &SearchOptions{HeadingBoost: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(boosted) != 2 {
		t.Errorf("boosted results = %+v, want ret_0 and ship_0", boosted)
	}
}

func TestBleveIndex_ReopenKeepsChunks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "keyword")
	idx := newIndex(t, path)
	ctx := context.Background()
	_ = idx.IndexChunks(ctx, sampleChunks())
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("index path should exist: %v", err)
	}

	reopened := newIndex(t, path)
	defer reopened.Close()
	n, err := reopened.DocCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("DocCount = %d, want 3", n)
	}
}

func TestBleveIndex_DeleteChunks(t *testing.T) {
	idx := newIndex(t, "")
	defer idx.Close()
	ctx := context.Background()
	_ = idx.IndexChunks(ctx, sampleChunks())

	if err := idx.DeleteChunks(ctx, []string{"faq_0"}); err != nil {
		t.Fatalf("DeleteChunks: %v", err)
	}
	results, _ := idx.Search(ctx, "paypal", 10, nil)
	if len(results) != 0 {
		t.Errorf("expected 0 results after delete, got %d", len(results))
	}
	if err := idx.DeleteChunks(ctx, nil); err != nil {
		t.Errorf("DeleteChunks(nil): %v", err)
	}
}

func TestBleveIndex_EmptyQuery(t *testing.T) {
	idx := newIndex(t, "")
	defer idx.Close()
	results, err := idx.Search(context.Background(), "   ", 10, nil)
	if err != nil || len(results) != 0 {
		t.Errorf("empty query = %+v, %v", results, err)
	}
}

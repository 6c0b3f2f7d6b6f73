package retrieval

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"testing"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/memory"
)

func result(id string, score float32, payload map[string]any) memory.SearchResult {
	return memory.SearchResult{ID: id, Score: score, Point: memory.Point{ID: id, Payload: payload}}
}

func TestMergeJoinsOnKeyField(t *testing.T) {
	text := []memory.SearchResult{
		result("t1", 0.9, map[string]any{"sku": "A", "text": "red shoe"}),
		result("t2", 0.5, map[string]any{"sku": "B"}),
	}
	image := []memory.SearchResult{
		result("i1", 0.8, map[string]any{"sku": "A", "image": "a.png"}),
	}
	rows := Merge(text, image, MergeOptions{KeyField: "sku", Weights: EqualWeights})
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	first := rows[0]
	if first.Key != "A" {
		t.Fatalf("expected A first, got %s", first.Key)
	}
	if math.Abs(first.Weighted-0.15) > 1e-6 {
		t.Fatalf("weighted = %v, want 0.15", first.Weighted)
	}
	if first.Metadata["image"] != "a.png" || first.Metadata["text"] != "red shoe" {
		t.Fatalf("metadata not combined: %v", first.Metadata)
	}
	if rows[1].ImageDistance != MissingDistance {
		t.Fatalf("missing image distance should be filled, got %v", rows[1].ImageDistance)
	}
}

func TestMergeFallsBackToID(t *testing.T) {
	rows := Merge(
		[]memory.SearchResult{result("p1", 1, nil)},
		[]memory.SearchResult{result("p1", 1, nil), result("p2", 1, nil)},
		MergeOptions{KeyField: "sku", Weights: TextHeavyWeights},
	)
	if len(rows) != 2 || rows[0].Key != "p1" || rows[0].Weighted != 0 {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestMergeKeepsClosestDuplicate(t *testing.T) {
	near := map[string]any{"sku": "A", "page": 1}
	far := map[string]any{"sku": "A", "page": 2}
	tests := []struct {
		name      string
		text      []memory.SearchResult
		image     []memory.SearchResult
		wantText  float64
		wantImage float64
	}{
		{"text best first", []memory.SearchResult{result("t1", 0.9, near), result("t2", 0.2, far)}, nil, 0.1, MissingDistance},
		{"text best last", []memory.SearchResult{result("t2", 0.2, far), result("t1", 0.9, near)}, nil, 0.1, MissingDistance},
		{"image best last", nil, []memory.SearchResult{result("i2", 0.25, far), result("i1", 0.75, near)}, MissingDistance, 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := Merge(tt.text, tt.image, MergeOptions{KeyField: "sku", Weights: EqualWeights})
			if len(rows) != 1 {
				t.Fatalf("expected 1 row, got %d", len(rows))
			}
			if math.Abs(rows[0].TextDistance-tt.wantText) > 1e-6 {
				t.Errorf("text distance = %v, want %v", rows[0].TextDistance, tt.wantText)
			}
			if math.Abs(rows[0].ImageDistance-tt.wantImage) > 1e-6 {
				t.Errorf("image distance = %v, want %v", rows[0].ImageDistance, tt.wantImage)
			}
		})
	}
}

func TestMergeStableOnTies(t *testing.T) {
	text := []memory.SearchResult{result("a", 0.5, nil), result("b", 0.5, nil), result("c", 0.5, nil)}
	rows := Merge(text, nil, MergeOptions{Weights: EqualWeights})
	for i, want := range []string{"a", "b", "c"} {
		if rows[i].Key != want {
			t.Fatalf("row %d = %s, want %s", i, rows[i].Key, want)
		}
	}
}

func TestWeightedDistanceMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, w := range []Weights{EqualWeights, TextHeavyWeights, {Text: 1}} {
		for i := 0; i < 200; i++ {
			dt := rng.Float64()*4 - 2
			di := rng.Float64()*4 - 2
			step := rng.Float64()
			base := w.Distance(dt, di)
			if got := w.Distance(math.Abs(dt)+step, di); got < base {
				t.Fatalf("not monotonic in text distance: %v < %v", got, base)
			}
			if got := w.Distance(dt, math.Abs(di)+step); got < base {
				t.Fatalf("not monotonic in image distance: %v < %v", got, base)
			}
		}
	}
}

func TestFormatContext(t *testing.T) {
	rows := []Row{
		{Key: "A", Weighted: 0.1, Metadata: map[string]any{"text": "red shoe", "price": 10}},
		{Key: "B", Weighted: 0.2},
	}
	out := FormatContext(rows, 1)
	if !strings.HasPrefix(out, "1. [A] (distance 0.1000) red shoe price=10") {
		t.Fatalf("unexpected context %q", out)
	}
	if strings.Contains(out, "[B]") {
		t.Fatalf("limit not applied")
	}
}

type vecEmbedder map[string][]float32

func (v vecEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return v[text], nil
}

func seedStore(t *testing.T) *memory.InMemoryStore {
	t.Helper()
	ctx := context.Background()
	store := memory.NewInMemoryStore()
	for _, c := range []string{"text", "image"} {
		if err := store.CreateCollection(ctx, c, 2); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	err := store.Upsert(ctx, "text", []memory.Point{
		{ID: "t1", Vector: []float32{1, 0}, Payload: map[string]any{"sku": "A", "text": "red shoe"}},
		{ID: "t2", Vector: []float32{0, 1}, Payload: map[string]any{"sku": "B", "text": "blue hat"}},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	err = store.Upsert(ctx, "image", []memory.Point{
		{ID: "i1", Vector: []float32{1, 0}, Payload: map[string]any{"sku": "A"}},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	return store
}

func TestSearcherSearch(t *testing.T) {
	s := &Searcher{
		Embedder:        vecEmbedder{"shoe": {1, 0}},
		Store:           seedStore(t),
		TextCollection:  "text",
		ImageCollection: "image",
		KeyField:        "sku",
	}
	rows, err := s.Search(context.Background(), "shoe")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(rows) != 2 || rows[0].Key != "A" || rows[0].Weighted > 1e-6 {
		t.Fatalf("unexpected rows %+v", rows)
	}

	text, err := s.SearchContext(context.Background(), "shoe", 1)
	if err != nil || !strings.Contains(text, "red shoe") {
		t.Fatalf("unexpected context %q (%v)", text, err)
	}
}

func TestSearcherDegradesOnOneIndex(t *testing.T) {
	s := &Searcher{
		Embedder:        vecEmbedder{"shoe": {1, 0}},
		Store:           seedStore(t),
		TextCollection:  "text",
		ImageCollection: "missing",
		KeyField:        "sku",
	}
	rows, err := s.Search(context.Background(), "shoe")
	if err != nil {
		t.Fatalf("one failing index should degrade, got %v", err)
	}
	if len(rows) != 2 || rows[0].ImageDistance != MissingDistance {
		t.Fatalf("unexpected rows %+v", rows)
	}

	s.TextCollection = "also_missing"
	if _, err := s.Search(context.Background(), "shoe"); !kerrors.Is(err, kerrors.CodeNotFound) {
		t.Fatalf("expected not found when both fail, got %v", err)
	}
}

func TestSearcherRejectsEmptyQuery(t *testing.T) {
	s := &Searcher{Embedder: vecEmbedder{}, Store: memory.NewInMemoryStore(), TextCollection: "text"}
	if _, err := s.Search(context.Background(), " "); !kerrors.Is(err, kerrors.CodeInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

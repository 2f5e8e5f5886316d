package memory

import (
	"context"
	"testing"

	"github.com/noble1911/butler/internal/models"
	"github.com/noble1911/butler/internal/storage"
)

type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return make([]float32, models.EmbeddingDimension), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Name() string      { return "fake" }
func (f *fakeEmbedder) Dimension() int    { return models.EmbeddingDimension }
func (f *fakeEmbedder) MaxBatchSize() int { return 100 }

func unitVector(dims int, hot int) []float32 {
	v := make([]float32, dims)
	v[hot] = 1
	return v
}

func TestRememberCreatesUserAndFactWithoutEmbedder(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	fs := NewFactStore(store.Users, store.Facts, nil)

	fact, err := fs.Remember(ctx, "u1", "likes coffee", models.FactPreference, 0.8, models.FactSourceConversation)
	if err != nil {
		t.Fatalf("Remember: %v", err)
	}
	if len(fact.Embedding) != 0 {
		t.Errorf("expected no embedding without a provider, got %d floats", len(fact.Embedding))
	}

	user, err := store.Users.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.ID != "u1" {
		t.Errorf("user id = %q, want u1", user.ID)
	}
}

func TestRememberDoesNotOverwriteExistingUser(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	if err := store.Users.Create(ctx, &models.User{ID: "u1", DisplayName: "Sam"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	fs := NewFactStore(store.Users, store.Facts, nil)

	if _, err := fs.Remember(ctx, "u1", "likes tea", models.FactPreference, 0.5, models.FactSourceExplicit); err != nil {
		t.Fatalf("Remember: %v", err)
	}

	user, err := store.Users.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.DisplayName != "Sam" {
		t.Errorf("expected existing display name preserved, got %q", user.DisplayName)
	}
}

func TestRememberEmbedsWhenProviderConfigured(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"likes coffee": unitVector(models.EmbeddingDimension, 0),
	}}
	fs := NewFactStore(store.Users, store.Facts, embedder)

	fact, err := fs.Remember(ctx, "u1", "likes coffee", models.FactPreference, 0.8, models.FactSourceConversation)
	if err != nil {
		t.Fatalf("Remember: %v", err)
	}
	if len(fact.Embedding) != models.EmbeddingDimension {
		t.Errorf("expected embedding of dimension %d, got %d", models.EmbeddingDimension, len(fact.Embedding))
	}
}

func TestRemeberDiscardsEmbeddingOnDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"likes coffee": {1, 2, 3},
	}}
	fs := NewFactStore(store.Users, store.Facts, embedder)

	fact, err := fs.Remember(ctx, "u1", "likes coffee", models.FactPreference, 0.8, models.FactSourceConversation)
	if err != nil {
		t.Fatalf("Remember: %v", err)
	}
	if len(fact.Embedding) != 0 {
		t.Errorf("expected embedding discarded on dimension mismatch, got %d floats", len(fact.Embedding))
	}
}

func TestRecallWithoutQueryOrdersByConfidenceThenRecency(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	fs := NewFactStore(store.Users, store.Facts, nil)

	if _, err := fs.Remember(ctx, "u1", "low", models.FactOther, 0.2, models.FactSourceExplicit); err != nil {
		t.Fatalf("remember: %v", err)
	}
	if _, err := fs.Remember(ctx, "u1", "high", models.FactPreference, 0.9, models.FactSourceExplicit); err != nil {
		t.Fatalf("remember: %v", err)
	}

	results, err := fs.Recall(ctx, "u1", RecallOptions{})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Fact.Fact != "high" {
		t.Errorf("expected highest-confidence fact first, got %q", results[0].Fact.Fact)
	}
}

func TestRecallFiltersByCategory(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	fs := NewFactStore(store.Users, store.Facts, nil)

	if _, err := fs.Remember(ctx, "u1", "work fact", models.FactWork, 0.5, models.FactSourceExplicit); err != nil {
		t.Fatalf("remember: %v", err)
	}
	if _, err := fs.Remember(ctx, "u1", "health fact", models.FactHealth, 0.5, models.FactSourceExplicit); err != nil {
		t.Fatalf("remember: %v", err)
	}

	results, err := fs.Recall(ctx, "u1", RecallOptions{Category: models.FactHealth})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(results) != 1 || results[0].Fact.Fact != "health fact" {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestRecallWithQueryRanksByCosineSimilarity(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"likes espresso": unitVector(models.EmbeddingDimension, 0),
		"owns a cat":     unitVector(models.EmbeddingDimension, 1),
		"espresso":       unitVector(models.EmbeddingDimension, 0),
	}}
	fs := NewFactStore(store.Users, store.Facts, embedder)

	if _, err := fs.Remember(ctx, "u1", "likes espresso", models.FactPreference, 0.5, models.FactSourceExplicit); err != nil {
		t.Fatalf("remember: %v", err)
	}
	if _, err := fs.Remember(ctx, "u1", "owns a cat", models.FactOther, 0.5, models.FactSourceExplicit); err != nil {
		t.Fatalf("remember: %v", err)
	}

	results, err := fs.Recall(ctx, "u1", RecallOptions{Query: "espresso"})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(results) == 0 || results[0].Fact.Fact != "likes espresso" {
		t.Fatalf("expected matching fact ranked first, got %+v", results)
	}
	if results[0].Relevance <= 0 {
		t.Errorf("expected positive relevance score, got %v", results[0].Relevance)
	}
}

func TestRecallExcludesFactsWithoutEmbeddingWhenQueryGiven(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"espresso": unitVector(models.EmbeddingDimension, 0),
	}}
	fs := NewFactStore(store.Users, store.Facts, nil)
	if _, err := fs.Remember(ctx, "u1", "no embedding here", models.FactOther, 0.5, models.FactSourceExplicit); err != nil {
		t.Fatalf("remember: %v", err)
	}
	fs2 := NewFactStore(store.Users, store.Facts, embedder)

	results, err := fs2.Recall(ctx, "u1", RecallOptions{Query: "espresso"})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results for a fact with no embedding, got %+v", results)
	}
}

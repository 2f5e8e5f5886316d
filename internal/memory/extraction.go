package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/noble1911/butler/internal/memory/embeddings"
	"github.com/noble1911/butler/internal/models"
	"github.com/noble1911/butler/internal/storage"
)

// FactStore implements spec §4.3's fact store: remember(user, fact, ...) and
// recall(user, query?, ...), with embedding similarity degrading silently to
// category/confidence ordering when no embedding provider is configured.
type FactStore struct {
	users    storage.UserStore
	facts    storage.UserFactStore
	embedder embeddings.Provider
}

// NewFactStore builds a FactStore. embedder may be nil, in which case recall
// always falls back to confidence/recency ordering.
func NewFactStore(users storage.UserStore, facts storage.UserFactStore, embedder embeddings.Provider) *FactStore {
	return &FactStore{users: users, facts: facts, embedder: embedder}
}

// Remember upserts the user row (leaving existing attributes untouched if
// the user already exists) and inserts a new fact row, embedding it if a
// provider is configured. Embedding failures or dimension mismatches are
// discarded silently; the fact is still stored without a vector.
func (s *FactStore) Remember(ctx context.Context, userID, fact string, category models.FactCategory, confidence float64, source models.FactSource) (*models.UserFact, error) {
	if err := s.ensureUser(ctx, userID); err != nil {
		return nil, err
	}

	row := &models.UserFact{
		ID:         uuid.NewString(),
		UserID:     userID,
		Fact:       fact,
		Category:   category,
		Confidence: confidence,
		Source:     source,
		CreatedAt:  time.Now().UTC(),
	}

	if s.embedder != nil {
		if vec, err := s.embedder.Embed(ctx, fact); err == nil && len(vec) == models.EmbeddingDimension {
			row.Embedding = vec
		}
	}

	if err := s.facts.CreateFact(ctx, row); err != nil {
		return nil, fmt.Errorf("create fact: %w", err)
	}
	return row, nil
}

// ensureUser creates a bare user row if one doesn't already exist, leaving
// any existing row (and its soul/preferences) untouched.
func (s *FactStore) ensureUser(ctx context.Context, userID string) error {
	if s.users == nil {
		return nil
	}
	if _, err := s.users.Get(ctx, userID); err == nil {
		return nil
	} else if err != storage.ErrNotFound {
		return fmt.Errorf("get user: %w", err)
	}

	now := time.Now().UTC()
	err := s.users.Create(ctx, &models.User{
		ID:        userID,
		Role:      models.RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil && err != storage.ErrAlreadyExists {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// RecallOptions narrows and bounds a recall query.
type RecallOptions struct {
	Query    string
	Category models.FactCategory
	Limit    int
}

// RecalledFact pairs a fact with the relevance score recall produced for it.
// Relevance is only meaningful when Query was set and embedding succeeded;
// otherwise it is zero.
type RecalledFact struct {
	Fact      *models.UserFact
	Relevance float64
}

// Recall implements spec §4.3's recall(user, query?, category?, limit): when
// a query embeds successfully, facts are ranked by cosine similarity; facts
// without an embedding or past their expiry are excluded. Otherwise facts
// are ordered by (confidence desc, created desc), optionally filtered by
// category.
func (s *FactStore) Recall(ctx context.Context, userID string, opts RecallOptions) ([]RecalledFact, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	now := time.Now().UTC()
	all, err := s.facts.ListByUser(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}

	if opts.Query != "" && s.embedder != nil {
		if queryVec, err := s.embedder.Embed(ctx, opts.Query); err == nil && len(queryVec) == models.EmbeddingDimension {
			return s.recallByEmbedding(all, queryVec, opts.Category, limit), nil
		}
	}

	return s.recallByRanking(all, opts.Category, limit), nil
}

func (s *FactStore) recallByEmbedding(facts []*models.UserFact, queryVec []float32, category models.FactCategory, limit int) []RecalledFact {
	out := make([]RecalledFact, 0, len(facts))
	for _, f := range facts {
		if len(f.Embedding) != len(queryVec) {
			continue
		}
		if category != "" && f.Category != category {
			continue
		}
		distance := cosineDistance(f.Embedding, queryVec)
		relevance := 100 * (1 - distance)
		out = append(out, RecalledFact{Fact: f, Relevance: relevance})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Relevance > out[j].Relevance })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *FactStore) recallByRanking(facts []*models.UserFact, category models.FactCategory, limit int) []RecalledFact {
	filtered := make([]*models.UserFact, 0, len(facts))
	for _, f := range facts {
		if category != "" && f.Category != category {
			continue
		}
		filtered = append(filtered, f)
	}
	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].Confidence != filtered[j].Confidence {
			return filtered[i].Confidence > filtered[j].Confidence
		}
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	out := make([]RecalledFact, len(filtered))
	for i, f := range filtered {
		out[i] = RecalledFact{Fact: f}
	}
	return out
}

// cosineDistance returns 1 - cosine similarity between two equal-length
// vectors, in [0, 2].
func cosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return 1 - similarity
}

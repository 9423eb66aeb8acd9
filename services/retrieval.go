package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/hyeonsu/sagebook/backend/repository"
)

// RetrievalK is how many document chunks are folded into the system prompt
const RetrievalK = 4

// RetrievalService ranks analyzed document chunks against a chat query by
// cosine similarity of their embeddings.
type RetrievalService struct {
	repo *repository.GORMRepository
	llm  *LLMClient
}

func NewRetrievalService(repo *repository.GORMRepository, llm *LLMClient) *RetrievalService {
	return &RetrievalService{repo: repo, llm: llm}
}

type scoredChunk struct {
	content string
	score   float64
}

// Retrieve returns the top-k most similar chunk texts for the query. An empty
// result is not an error; callers continue without context.
func (s *RetrievalService) Retrieve(ctx context.Context, query string, k int) ([]string, error) {
	queryVec, err := s.llm.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	chunks, err := s.repo.GetCompletedChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	scored := make([]scoredChunk, 0, len(chunks))
	for _, chunk := range chunks {
		var vec []float64
		if err := json.Unmarshal(chunk.Embedding, &vec); err != nil {
			slog.Warn("Skipping chunk with unreadable embedding", "chunk_id", chunk.ID, "error", err)
			continue
		}
		score, ok := cosineSimilarity(queryVec, vec)
		if !ok {
			continue
		}
		scored = append(scored, scoredChunk{content: chunk.Content, score: score})
	}

	sort.Slice(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	if k > len(scored) {
		k = len(scored)
	}
	passages := make([]string, 0, k)
	for _, sc := range scored[:k] {
		passages = append(passages, sc.content)
	}

	slog.Info("Retrieved context chunks", "candidates", len(scored), "selected", len(passages))
	return passages, nil
}

// cosineSimilarity reports false for mismatched dimensions or zero vectors
func cosineSimilarity(a, b []float64) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}

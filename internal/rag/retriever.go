package rag

import (
	"context"
	"fmt"
	"strings"
)

// DefaultTopK is the number of chunks retrieved when the caller passes 0.
const DefaultTopK = 4

// DefaultRetriever embeds the query at retrieval time and delegates
// similarity search to a session's index.
type DefaultRetriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder

	// defaultTopK is the number of results to return when the caller passes 0.
	defaultTopK int
}

// NewRetriever constructs a DefaultRetriever from the given Embedder.
// defaultTopK sets the fallback result count when Retrieve is called with topK=0.
func NewRetriever(embedder Embedder, defaultTopK int) (*DefaultRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	return &DefaultRetriever{
		embedder:    embedder,
		defaultTopK: defaultTopK,
	}, nil
}

// Retrieve embeds the query once and returns the top-k most similar chunks of
// idx in descending similarity order.
func (r *DefaultRetriever) Retrieve(ctx context.Context, idx Index, query string, topK int) ([]ScoredChunk, error) {
	if idx == nil {
		return nil, fmt.Errorf("rag: index must not be nil")
	}
	if topK <= 0 {
		topK = r.defaultTopK
	}

	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("rag: embedder returned empty result for query")
	}

	chunks, err := idx.Search(ctx, embeddings[0], topK)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}
	if len(chunks) > topK {
		chunks = chunks[:topK]
	}
	return chunks, nil
}

// Sources returns the distinct source URLs of chunks in first-seen order.
func Sources(chunks []ScoredChunk) []string {
	seen := make(map[string]bool, len(chunks))
	var out []string
	for _, c := range chunks {
		if c.Source == "" || seen[c.Source] {
			continue
		}
		seen[c.Source] = true
		out = append(out, c.Source)
	}
	return out
}

// FormatContext renders retrieved chunks as a numbered, source-attributed
// block for display. The answer prompt does not use it.
func FormatContext(chunks []ScoredChunk) string {
	var sb strings.Builder
	for i, c := range chunks {
		fmt.Fprintf(&sb, "[%d] %s (score %.3f)\n%s\n\n", i+1, c.Source, c.Score, c.Text)
	}
	return strings.TrimRight(sb.String(), "\n")
}

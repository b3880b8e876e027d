// Package rag defines the typed records and interfaces for retrieval:
// documents, chunks, embedding, and the per-session nearest-neighbour index.
// Concrete backends (in-memory, Qdrant) satisfy these interfaces so the
// orchestration layer never depends on a specific library's return shapes.
package rag

import (
	"context"
)

// Document is the plain-text content extracted from one fetched URL.
// It is immutable and discarded once chunked.
type Document struct {
	// SourceURL is the URL the document was fetched from.
	SourceURL string

	// Title is the page title, when the page declared one.
	Title string

	// Text is the extracted plain text.
	Text string
}

// Chunk is a bounded-length segment of a Document and the unit of retrieval.
type Chunk struct {
	// ID is a deterministic identifier derived from Source and Position.
	ID string

	// Text is the chunk content, a substring of the source document text.
	Text string

	// Source is the source document URL.
	Source string

	// DocIndex is the position of the source Document in the loaded batch.
	DocIndex int

	// Position is the zero-based order of this chunk within its document.
	Position int

	// Start and End are the byte offsets of Text within the document text.
	Start int
	End   int
}

// ScoredChunk is a Chunk returned by a similarity search.
type ScoredChunk struct {
	Chunk

	// Score is the cosine similarity to the query (higher is closer).
	Score float32
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Index is an immutable nearest-neighbour index over a fixed set of chunks.
// Implementations must be safe for concurrent Search calls.
type Index interface {
	// Search returns up to topK chunks ordered by descending similarity to
	// queryEmbedding.
	Search(ctx context.Context, queryEmbedding []float32, topK int) ([]ScoredChunk, error)

	// Len returns the number of chunks in the index.
	Len() int

	// Close releases any resources held by the index.
	Close(ctx context.Context) error
}

// IndexBuilder constructs a complete Index from chunks and their embeddings.
// vectors must be parallel to chunks. A failed build leaves nothing behind.
type IndexBuilder interface {
	Build(ctx context.Context, chunks []Chunk, vectors [][]float32) (Index, error)
}

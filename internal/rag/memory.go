package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/viant/vec/search"
)

// ErrZeroQuery is returned by MemoryIndex.Search for an all-zero query vector.
var ErrZeroQuery = errors.New("rag: memory index: zero-magnitude query vector")

// MemoryBuilder builds brute-force cosine similarity indexes held entirely in
// process memory. It is the default backend.
type MemoryBuilder struct{}

// NewMemoryBuilder returns a MemoryBuilder.
func NewMemoryBuilder() *MemoryBuilder { return &MemoryBuilder{} }

// Build validates the vectors and returns a MemoryIndex. Vectors are copied
// and their magnitudes computed once so Search only needs a dot product per
// chunk.
func (MemoryBuilder) Build(_ context.Context, chunks []Chunk, vectors [][]float32) (Index, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("rag: memory index: %d chunks but %d vectors", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("rag: memory index: no chunks to index")
	}

	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("rag: memory index: empty embedding vector")
	}

	idx := &MemoryIndex{
		dim:    dim,
		chunks: append([]Chunk(nil), chunks...),
		vecs:   make([]search.Float32s, len(vectors)),
		mags:   make([]float32, len(vectors)),
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("rag: memory index: vector %d has dimension %d, want %d", i, len(v), dim)
		}
		idx.vecs[i] = append(search.Float32s(nil), v...)
		idx.mags[i] = idx.vecs[i].Magnitude()
	}
	return idx, nil
}

// MemoryIndex is an immutable in-memory index. Chunks whose vector has zero
// magnitude are kept for Len but are never returned by Search.
type MemoryIndex struct {
	// dim is the embedding dimension shared by every vector.
	dim int
	// chunks, vecs and mags are parallel.
	chunks []Chunk
	vecs   []search.Float32s
	mags   []float32
}

// Len returns the number of indexed chunks.
func (m *MemoryIndex) Len() int { return len(m.chunks) }

// Search scores every chunk by cosine similarity (1 - cosine distance) and
// returns the topK best. Ties keep index order so results are deterministic.
// A zero-magnitude query has no direction and is rejected.
func (m *MemoryIndex) Search(_ context.Context, queryEmbedding []float32, topK int) ([]ScoredChunk, error) {
	if len(queryEmbedding) != m.dim {
		return nil, fmt.Errorf("rag: memory index: query dimension %d, want %d", len(queryEmbedding), m.dim)
	}
	q := search.Float32s(queryEmbedding)
	qm := q.Magnitude()
	if qm == 0 {
		return nil, ErrZeroQuery
	}

	type scored struct {
		idx   int
		score float32
	}
	scoreds := make([]scored, 0, len(m.vecs))
	for i, v := range m.vecs {
		if m.mags[i] == 0 {
			continue
		}
		s := 1 - cosineDistanceWithMagnitude(q, v, qm, m.mags[i])
		if math.IsNaN(float64(s)) {
			continue
		}
		scoreds = append(scoreds, scored{idx: i, score: s})
	}
	sort.SliceStable(scoreds, func(a, b int) bool { return scoreds[a].score > scoreds[b].score })

	if topK <= 0 || topK > len(scoreds) {
		topK = len(scoreds)
	}
	out := make([]ScoredChunk, topK)
	for n := range topK {
		out[n] = ScoredChunk{Chunk: m.chunks[scoreds[n].idx], Score: scoreds[n].score}
	}
	return out, nil
}

// Close is a no-op; the index is reclaimed by the garbage collector.
func (m *MemoryIndex) Close(context.Context) error { return nil }

package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// DefaultCollectionPrefix is prepended to every per-build collection name.
const DefaultCollectionPrefix = "scout"

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// CollectionPrefix names the per-build collections "<prefix>-<uuid>".
	CollectionPrefix string

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantBuilder builds indexes backed by a Qdrant server. Every Build creates
// a fresh collection; closing the returned index drops it.
type QdrantBuilder struct {
	// client is the shared Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration.
	cfg QdrantConfig

	// upsert writes points into a collection; replaced in tests.
	upsert func(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
}

// NewQdrantBuilder connects to Qdrant and returns a builder.
func NewQdrantBuilder(cfg QdrantConfig) (*QdrantBuilder, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.CollectionPrefix == "" {
		cfg.CollectionPrefix = DefaultCollectionPrefix
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}
	return &QdrantBuilder{client: client, cfg: cfg, upsert: client.Upsert}, nil
}

// Name implements the readiness Pinger interface.
func (b *QdrantBuilder) Name() string { return "qdrant" }

// Ping checks that the Qdrant server is reachable.
func (b *QdrantBuilder) Ping(ctx context.Context) error {
	if _, err := b.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Build creates a new collection sized to the vectors and upserts every chunk.
// On any failure the collection is dropped before returning.
func (b *QdrantBuilder) Build(ctx context.Context, chunks []Chunk, vectors [][]float32) (_ Index, err error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("qdrant: %d chunks but %d vectors", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("qdrant: no chunks to index")
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim || dim == 0 {
			return nil, fmt.Errorf("qdrant: vector %d has dimension %d, want %d", i, len(v), dim)
		}
	}

	name := b.cfg.CollectionPrefix + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")
	err = b.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create collection %q: %w", name, err)
	}
	defer func() {
		if err != nil {
			_ = b.client.DeleteCollection(context.WithoutCancel(ctx), name)
		}
	}()

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i, c := range chunks {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(uint64(i)),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				"chunk_id": c.ID,
				"content":  c.Text,
				"source":   c.Source,
			}),
		})
	}

	wait := true
	_, err = b.upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: upsert into %q failed: %w", name, err)
	}

	return &QdrantIndex{
		client:     b.client,
		collection: name,
		chunks:     append([]Chunk(nil), chunks...),
	}, nil
}

// Close closes the underlying Qdrant gRPC connection.
func (b *QdrantBuilder) Close() error {
	return b.client.Close()
}

// QdrantIndex is bound to one collection. Point IDs are positions in chunks,
// so search results are resolved locally rather than from the payload.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	chunks     []Chunk
}

// Len returns the number of indexed chunks.
func (q *QdrantIndex) Len() int { return len(q.chunks) }

// Search performs a cosine similarity search and returns the top-k results.
func (q *QdrantIndex) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]ScoredChunk, error) {
	if topK <= 0 || topK > len(q.chunks) {
		topK = len(q.chunks)
	}
	limit := uint64(topK)
	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(false),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	out := make([]ScoredChunk, 0, len(results))
	for _, r := range results {
		n := r.GetId().GetNum()
		if n >= uint64(len(q.chunks)) {
			return nil, fmt.Errorf("qdrant: unknown point id %d in %q", n, q.collection)
		}
		out = append(out, ScoredChunk{Chunk: q.chunks[n], Score: r.GetScore()})
	}
	return out, nil
}

// Close drops the backing collection.
func (q *QdrantIndex) Close(ctx context.Context) error {
	if err := q.client.DeleteCollection(ctx, q.collection); err != nil {
		return fmt.Errorf("qdrant: failed to drop collection %q: %w", q.collection, err)
	}
	return nil
}

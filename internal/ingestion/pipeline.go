// Package ingestion turns a batch of user-supplied URLs into a searchable
// index: it fetches each page, extracts its text, chunks it, embeds every
// chunk and hands the vectors to an index builder. It is invoked by the
// process action and by the `scout chunks` CLI command.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/54b3r/insight-scout/internal/chunker"
	"github.com/54b3r/insight-scout/internal/logging"
	"github.com/54b3r/insight-scout/internal/rag"
)

// DefaultEmbedBatchSize is the number of chunks sent per embedding request.
const DefaultEmbedBatchSize = 32

// Stage names the pipeline step a failure happened in.
type Stage string

const (
	// StageLoad covers fetching and text extraction.
	StageLoad Stage = "load"
	// StageChunk covers splitting documents into chunks.
	StageChunk Stage = "chunk"
	// StageEmbed covers embedding chunk text.
	StageEmbed Stage = "embed"
	// StageIndex covers building the nearest-neighbour index.
	StageIndex Stage = "index"
)

// StageError wraps a pipeline failure with the stage it occurred in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("ingestion: %s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// StageOf returns the stage of a pipeline error, or "" if err did not come
// from a Pipeline.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// DocumentLoader fetches URLs and returns their text, one Document per URL
// in input order.
type DocumentLoader interface {
	Load(ctx context.Context, urls []string) ([]rag.Document, error)
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// EmbedBatchSize is the number of chunks per embedding request.
	// Defaults to 32 if zero.
	EmbedBatchSize int
}

// Result is the output of a successful Build.
type Result struct {
	// Index holds every chunk of the batch.
	Index rag.Index

	// Documents are the loaded pages, in input order.
	Documents []rag.Document

	// Chunks are the indexed chunks.
	Chunks []rag.Chunk
}

// Sources returns the URLs of the loaded documents in input order.
func (r *Result) Sources() []string {
	out := make([]string, len(r.Documents))
	for i, d := range r.Documents {
		out[i] = d.SourceURL
	}
	return out
}

// Pipeline orchestrates the load → chunk → embed → index flow.
type Pipeline struct {
	// loader fetches and extracts pages.
	loader DocumentLoader

	// splitter cuts documents into chunks.
	splitter *chunker.Splitter

	// embedder converts chunk text into dense vector embeddings.
	embedder rag.Embedder

	// builder turns chunks and vectors into an index.
	builder rag.IndexBuilder

	// cfg holds the resolved pipeline configuration.
	cfg Config
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(loader DocumentLoader, splitter *chunker.Splitter, embedder rag.Embedder, builder rag.IndexBuilder, cfg Config) (*Pipeline, error) {
	if loader == nil {
		return nil, fmt.Errorf("ingestion: loader must not be nil")
	}
	if splitter == nil {
		return nil, fmt.Errorf("ingestion: splitter must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if builder == nil {
		return nil, fmt.Errorf("ingestion: index builder must not be nil")
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = DefaultEmbedBatchSize
	}
	return &Pipeline{
		loader:   loader,
		splitter: splitter,
		embedder: embedder,
		builder:  builder,
		cfg:      cfg,
	}, nil
}

// Chunk loads the URLs and splits them without embedding anything.
func (p *Pipeline) Chunk(ctx context.Context, urls []string) ([]rag.Document, []rag.Chunk, error) {
	docs, err := p.loader.Load(ctx, urls)
	if err != nil {
		return nil, nil, &StageError{Stage: StageLoad, Err: err}
	}
	chunks := p.splitter.Split(docs)
	if len(chunks) == 0 {
		return nil, nil, &StageError{Stage: StageChunk, Err: ErrNoContent}
	}
	return docs, chunks, nil
}

// Build runs the whole pipeline and returns a ready index. Any failure
// aborts the build; nothing is returned that the caller must clean up.
// Progress is reported via the optional progress callback.
func (p *Pipeline) Build(ctx context.Context, urls []string, progress func(msg string)) (*Result, error) {
	if progress == nil {
		progress = func(string) {}
	}
	log := logging.FromContext(ctx)
	start := time.Now()

	progress("Fetching content from URLs...")
	docs, chunks, err := p.Chunk(ctx, urls)
	if err != nil {
		return nil, err
	}
	progress(fmt.Sprintf("Content loaded successfully! %d documents split into %d chunks.", len(docs), len(chunks)))

	vectors, err := p.embed(ctx, chunks)
	if err != nil {
		return nil, &StageError{Stage: StageEmbed, Err: err}
	}

	idx, err := p.builder.Build(ctx, chunks, vectors)
	if err != nil {
		return nil, &StageError{Stage: StageIndex, Err: err}
	}
	progress("Documents processed and stored in memory.")

	log.Info("ingestion: index built",
		slog.Int("documents", len(docs)),
		slog.Int("chunks", len(chunks)),
		slog.Int("dimensions", len(vectors[0])),
		slog.Duration("duration", time.Since(start)),
	)
	return &Result{Index: idx, Documents: docs, Chunks: chunks}, nil
}

// embed embeds chunk text in batches and checks the vectors line up.
func (p *Pipeline) embed(ctx context.Context, chunks []rag.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += p.cfg.EmbedBatchSize {
		end := min(start+p.cfg.EmbedBatchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}
		batch, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embedding chunks %d-%d: %w", start, end-1, err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(batch), len(texts))
		}
		vectors = append(vectors, batch...)
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 || len(v) != dim {
			return nil, fmt.Errorf("chunk %d has embedding dimension %d, want %d", i, len(v), dim)
		}
	}
	return vectors, nil
}

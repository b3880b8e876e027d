package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OllamaEmbedder implements rag.Embedder with the Ollama /api/embed
// endpoint. No API key is needed. It is safe for concurrent use.
type OllamaEmbedder struct {
	// endpoint is the full /api/embed URL.
	endpoint string
	// model is the embedding model name (e.g. "all-minilm").
	model string
	// keepAlive is forwarded as keep_alive when set.
	keepAlive string
	// client is shared by all calls; a full article batch can be slow.
	client *http.Client
}

// OllamaConfig holds the settings for constructing an OllamaEmbedder.
type OllamaConfig struct {
	// Host is the Ollama server base URL (e.g. "http://localhost:11434").
	Host string
	// Model is the embedding model name (e.g. "all-minilm").
	Model string
	// KeepAlive keeps the model loaded between batches (e.g. "5m").
	// Empty leaves the server default.
	KeepAlive string
}

// NewOllamaEmbedder constructs an OllamaEmbedder from the given config.
func NewOllamaEmbedder(cfg *OllamaConfig) *OllamaEmbedder {
	return &OllamaEmbedder{
		endpoint:  strings.TrimRight(cfg.Host, "/") + "/api/embed",
		model:     cfg.Model,
		keepAlive: cfg.KeepAlive,
		client:    &http.Client{Timeout: 60 * time.Second},
	}
}

type ollamaEmbedRequest struct {
	Model     string   `json:"model"`
	Input     []string `json:"input"`
	Truncate  bool     `json:"truncate"`
	KeepAlive string   `json:"keep_alive,omitempty"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// Embed returns one vector per text, in input order. Inputs longer than the
// model's context are truncated by the server.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	req := ollamaEmbedRequest{
		Model:     e.model,
		Input:     texts,
		Truncate:  true,
		KeepAlive: e.keepAlive,
	}
	var resp ollamaEmbedResponse
	if err := postJSON(ctx, e.client, e.endpoint, nil, req, &resp, ollamaMessage); err != nil {
		return nil, fmt.Errorf("ollama embedder: model %q: %w", e.model, err)
	}
	if err := checkBatch(len(texts), resp.Embeddings); err != nil {
		return nil, fmt.Errorf("ollama embedder: %w", err)
	}
	return resp.Embeddings, nil
}

func ollamaMessage(body []byte) string {
	var r ollamaEmbedResponse
	if json.Unmarshal(body, &r) == nil {
		return r.Error
	}
	return ""
}

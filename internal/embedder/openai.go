// Package embedder provides implementations of the rag.Embedder interface for
// converting chunk and question text into dense vector embeddings. Ollama and
// OpenAI-style backends are spoken to over their REST APIs; Gemini goes
// through the google.golang.org/genai client.
package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// OpenAIEmbedder implements rag.Embedder with the OpenAI embeddings API, or
// the Azure OpenAI deployment route of the same API. It is safe for
// concurrent use.
type OpenAIEmbedder struct {
	// endpoint is the resolved embeddings URL.
	endpoint string
	// header carries the credentials.
	header http.Header
	// model is the model (OpenAI) or deployment (Azure) name.
	model string
	// dimensions is the requested vector length; 0 keeps the model default.
	dimensions int
	// client is shared by all calls.
	client *http.Client
}

// OpenAIConfig holds the settings for constructing an OpenAIEmbedder.
type OpenAIConfig struct {
	// BaseURL is the API base URL. For OpenAI: "https://api.openai.com/v1".
	// For Azure: "https://<resource>.openai.azure.com/openai".
	BaseURL string
	// APIKey is the authentication key.
	APIKey string
	// Model is the embedding model name (e.g. "text-embedding-3-small"). On
	// Azure it is the deployment name.
	Model string
	// Dimensions is the desired vector length (0 = model default).
	Dimensions int
	// Azure enables Azure OpenAI mode (api-key header + api-version param).
	Azure bool
	// APIVersion is the Azure OpenAI API version. Ignored when Azure is false.
	APIVersion string
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder from the given config.
func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder {
	base := strings.TrimRight(cfg.BaseURL, "/")
	e := &OpenAIEmbedder{
		endpoint:   base + "/embeddings",
		header:     http.Header{},
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
	if cfg.Azure {
		e.endpoint = base + "/deployments/" + url.PathEscape(cfg.Model) +
			"/embeddings?api-version=" + url.QueryEscape(cfg.APIVersion)
		e.header.Set("api-key", cfg.APIKey)
	} else {
		e.header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	return e
}

type openaiEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed returns one vector per text, in input order. The API may list
// results out of order; they are placed by their index field.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	req := openaiEmbedRequest{Input: texts, Model: e.model, Dimensions: e.dimensions}
	var resp openaiEmbedResponse
	if err := postJSON(ctx, e.client, e.endpoint, e.header, req, &resp, openaiMessage); err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("openai embedder: index %d out of range [0, %d)", d.Index, len(texts))
		}
		out[d.Index] = d.Embedding
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embedder: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}
	if err := checkBatch(len(texts), out); err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}
	return out, nil
}

func openaiMessage(body []byte) string {
	var r openaiEmbedResponse
	if json.Unmarshal(body, &r) == nil && r.Error != nil {
		return r.Error.Message
	}
	return ""
}

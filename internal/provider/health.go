package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// HealthChecker probes a backend without consuming tokens.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// httpHealthCheck issues a GET against a cheap listing endpoint.
type httpHealthCheck struct {
	url    string
	header http.Header
	client *http.Client
}

// HealthCheck returns nil when the endpoint answers with a 2xx status.
func (h *httpHealthCheck) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return fmt.Errorf("provider: build health request: %w", err)
	}
	for k, vs := range h.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("provider: health request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("provider: health endpoint returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// HealthCheck returns a token-free probe for the selected backend, or nil
// when the backend has no suitable endpoint. Callers fall back to a minimal
// Generate call when nil is returned.
func (c *Config) HealthCheck(client *http.Client) HealthChecker {
	if client == nil {
		client = http.DefaultClient
	}
	switch c.Backend {
	case BackendOllama:
		return &httpHealthCheck{
			url:    strings.TrimRight(c.Ollama.Host, "/") + "/api/tags",
			client: client,
		}
	case BackendOpenAI:
		base := c.OpenAI.BaseURL
		if base == "" {
			base = "https://api.openai.com/v1"
		}
		h := http.Header{}
		h.Set("Authorization", "Bearer "+c.OpenAI.APIKey)
		return &httpHealthCheck{url: strings.TrimRight(base, "/") + "/models", header: h, client: client}
	case BackendAzure:
		h := http.Header{}
		h.Set("api-key", c.AzureOpenAI.APIKey)
		url := strings.TrimRight(c.AzureOpenAI.Endpoint, "/") + "/openai/models?api-version=" + c.AzureOpenAI.APIVersion
		return &httpHealthCheck{url: url, header: h, client: client}
	}
	return nil
}

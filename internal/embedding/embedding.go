// Package embedding adapts text to fixed-dimension vectors via the
// external Embedding Provider (C2), consumed by the synchronizer (C5) and
// by the router's SEARCH_TOOLS query embedding (C10).
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aci-labs/mcp-gateway/internal/config"
)

// Adapter turns text into embeddings. "none" providers (tests, local dev
// without a provider key) return nil vectors, which SearchTools treats as
// "no query vector" / sorts those tools last.
type Adapter interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dim() int
}

// NewAdapter builds the Adapter configured for cfg.Provider.
func NewAdapter(cfg config.EmbeddingConfig, httpClient *http.Client) Adapter {
	switch cfg.Provider {
	case "none", "":
		return noopAdapter{dim: cfg.Dim}
	default:
		if httpClient == nil {
			httpClient = &http.Client{
				Timeout:   30 * time.Second,
				Transport: otelhttp.NewTransport(http.DefaultTransport),
			}
		}
		return &httpAdapter{cfg: cfg, client: httpClient}
	}
}

type noopAdapter struct{ dim int }

func (n noopAdapter) Embed(_ context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

func (n noopAdapter) Dim() int { return n.dim }

// httpAdapter calls an OpenAI-compatible /embeddings endpoint. No example
// in the corpus imports a dedicated embeddings SDK with a stable v1 API
// (the teacher's openai-go usage targets chat completions, and its module
// isn't even pinned in go.mod), so this stays a thin net/http client —
// see DESIGN.md.
type httpAdapter struct {
	cfg    config.EmbeddingConfig
	client *http.Client
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (a *httpAdapter) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embeddingRequest{Model: a.cfg.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("embedding: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedding: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		// Providers vary in error shape (OpenAI nests under "error.message",
		// others put it at top level); gjson picks either without a
		// provider-specific struct.
		msg := gjson.GetBytes(errBody, "error.message")
		if !msg.Exists() {
			msg = gjson.GetBytes(errBody, "message")
		}
		if msg.Exists() {
			return nil, fmt.Errorf("embedding: provider returned status %d: %s", resp.StatusCode, msg.String())
		}
		return nil, fmt.Errorf("embedding: provider returned status %d", resp.StatusCode)
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("embedding: decode response: %w", err)
	}

	out := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = d.Embedding
		}
	}
	return out, nil
}

func (a *httpAdapter) Dim() int { return a.cfg.Dim }

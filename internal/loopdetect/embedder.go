package loopdetect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Embedder turns text into a vector. The gateway must not hard-depend on
// one vendor, so the detector takes this capability interface at
// construction; any OpenAI-compatible endpoint (or a test double) works.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// HTTPEmbedderOptions configure an OpenAI-compatible embeddings client.
type HTTPEmbedderOptions struct {
	Endpoint string // base URL, e.g. https://api.openai.com/v1
	Model    string
	APIKey   string
	Timeout  time.Duration
}

// HTTPEmbedder calls POST {endpoint}/embeddings.
type HTTPEmbedder struct {
	opts   HTTPEmbedderOptions
	client *http.Client
}

// NewHTTPEmbedder creates an embeddings client with its own bounded timeout
// so a slow embedding backend can never stall the request path.
func NewHTTPEmbedder(opts HTTPEmbedderOptions) *HTTPEmbedder {
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	return &HTTPEmbedder{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
	}
}

type embeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed implements Embedder.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(embeddingRequest{Input: text, Model: e.opts.Model})
	if err != nil {
		return nil, err
	}

	url := strings.TrimRight(e.opts.Endpoint, "/") + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.opts.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding provider returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedding response carried no vector")
	}
	return parsed.Data[0].Embedding, nil
}

// StaticEmbedder maps exact texts to fixed vectors. Used in tests and demos
// where deterministic similarity is needed without a live provider.
type StaticEmbedder struct {
	Vectors map[string][]float32
}

// Embed implements Embedder. Unknown texts are an error, which exercises
// the detector's degraded path.
func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := e.Vectors[text]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("no static vector for text")
}

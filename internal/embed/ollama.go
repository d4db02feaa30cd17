package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/hpungsan/arag/internal/errors"
)

// Ollama defaults.
const (
	DefaultOllamaModel    = "all-minilm"
	DefaultOllamaEndpoint = "http://localhost:11434"
)

// ollama calls the /api/embeddings endpoint of an Ollama server.
type ollama struct {
	model    string
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
}

func newOllama(opts Options) *ollama {
	o := &ollama{
		model:    opts.Model,
		endpoint: strings.TrimRight(opts.Endpoint, "/"),
		client:   opts.HTTPClient,
		limiter:  newLimiter(opts.RequestsPerSecond),
	}
	if o.model == "" {
		o.model = DefaultOllamaModel
	}
	if o.endpoint == "" {
		o.endpoint = DefaultOllamaEndpoint
	}
	return o
}

func (o *ollama) Method() string   { return MethodOllama }
func (o *ollama) Model() string    { return o.model }
func (o *ollama) Endpoint() string { return o.endpoint }

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float64 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}

func (o *ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := wait(ctx, o.limiter); err != nil {
		return nil, err
	}

	body, err := json.Marshal(ollamaRequest{Model: o.model, Prompt: text})
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewUnsupportedConfiguration(fmt.Sprintf("invalid ollama endpoint %q: %v", o.endpoint, err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.NewCancelled("embedding request")
		}
		return nil, errors.NewProviderUnavailable(MethodOllama, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, errors.NewProviderError(err)
	}

	var out ollamaResponse
	if err := json.Unmarshal(data, &out); err != nil && resp.StatusCode == http.StatusOK {
		return nil, errors.NewProviderError(fmt.Errorf("decode response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		msg := out.Error
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		return nil, errors.NewProviderError(fmt.Errorf("ollama returned %d: %s", resp.StatusCode, msg))
	}
	if len(out.Embedding) == 0 {
		return nil, errors.NewProviderError(fmt.Errorf("ollama returned an empty embedding for model %s", o.model))
	}

	vec := make([]float32, len(out.Embedding))
	for i, v := range out.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// Package embed turns text into vectors. Providers are selected by method
// name: a local Ollama server, the OpenAI API (or any compatible endpoint),
// or an offline feature-hashing embedder.
package embed

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hpungsan/arag/internal/config"
	"github.com/hpungsan/arag/internal/corpus"
	"github.com/hpungsan/arag/internal/errors"
)

// Method names.
const (
	MethodOllama = "ollama"
	MethodOpenAI = "openai"
	MethodHash   = "hash"

	// methodLocal is accepted for build specs written for the original tool,
	// whose local backend served the same MiniLM model.
	methodLocal = "local"
)

// Provider produces embeddings for text.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Method() string
	Model() string
	// Endpoint is empty for providers that make no network calls.
	Endpoint() string
}

// Options configures a provider. Zero values select method defaults.
type Options struct {
	Method            string
	Model             string
	Endpoint          string
	APIKey            string
	Dimensions        int
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// OptionsFromConfig maps application config to provider options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Method:            cfg.EmbedMethod,
		Model:             cfg.EmbedModel,
		Endpoint:          cfg.EmbedEndpoint,
		APIKey:            cfg.OpenAIAPIKey,
		Dimensions:        cfg.EmbedDimensions,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}
}

// OptionsFromMeta rebuilds the options that produced an index, so queries
// are embedded by the same provider as the stored vectors. Credentials and
// throttling still come from cfg.
func OptionsFromMeta(m *corpus.Meta, cfg *config.Config) Options {
	opts := OptionsFromConfig(cfg)
	opts.Method = m.Method
	opts.Model = m.Model
	opts.Endpoint = m.Endpoint
	opts.Dimensions = m.VectorSize
	return opts
}

// New returns the provider for opts.Method.
func New(opts Options) (Provider, error) {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}

	method := strings.ToLower(strings.TrimSpace(opts.Method))
	switch method {
	case "", MethodOllama, methodLocal:
		return newOllama(opts), nil
	case MethodOpenAI:
		return newOpenAI(opts)
	case MethodHash:
		return newHash(opts), nil
	default:
		return nil, errors.NewUnsupportedConfiguration(
			fmt.Sprintf("unsupported embedding method %q (use ollama, openai or hash)", opts.Method))
	}
}

// newLimiter returns nil when throttling is disabled.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func wait(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	if err := l.Wait(ctx); err != nil {
		return errors.NewCancelled("embedding request")
	}
	return nil
}

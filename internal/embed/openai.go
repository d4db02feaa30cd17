package embed

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/hpungsan/arag/internal/errors"
)

// OpenAI defaults.
const (
	DefaultOpenAIModel    = string(openai.SmallEmbedding3)
	DefaultOpenAIEndpoint = "https://api.openai.com/v1"
)

// openAI calls the embeddings endpoint of the OpenAI API or a compatible server.
type openAI struct {
	client     *openai.Client
	model      string
	endpoint   string
	dimensions int
	limiter    *rate.Limiter
}

func newOpenAI(opts Options) (*openAI, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.NewAuthenticationMissing(MethodOpenAI)
	}

	o := &openAI{
		model:      opts.Model,
		endpoint:   strings.TrimRight(opts.Endpoint, "/"),
		dimensions: opts.Dimensions,
		limiter:    newLimiter(opts.RequestsPerSecond),
	}
	if o.model == "" {
		o.model = DefaultOpenAIModel
	}
	if o.endpoint == "" {
		o.endpoint = DefaultOpenAIEndpoint
	}

	clientCfg := openai.DefaultConfig(opts.APIKey)
	clientCfg.BaseURL = o.endpoint
	clientCfg.HTTPClient = opts.HTTPClient
	o.client = openai.NewClientWithConfig(clientCfg)
	return o, nil
}

func (o *openAI) Method() string   { return MethodOpenAI }
func (o *openAI) Model() string    { return o.model }
func (o *openAI) Endpoint() string { return o.endpoint }

func (o *openAI) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := wait(ctx, o.limiter); err != nil {
		return nil, err
	}

	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(o.model),
	}
	// Only text-embedding-3 models accept a dimensions parameter.
	if o.dimensions > 0 && strings.HasPrefix(o.model, "text-embedding-3") {
		req.Dimensions = o.dimensions
	}

	resp, err := o.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, classifyOpenAIError(ctx, err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.NewProviderError(fmt.Errorf("no embedding data returned"))
	}
	return resp.Data[0].Embedding, nil
}

func classifyOpenAIError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errors.NewCancelled("embedding request")
	}

	var apiErr *openai.APIError
	if stderrors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusUnauthorized {
			return errors.NewAuthenticationMissing(MethodOpenAI)
		}
		return errors.NewProviderError(err)
	}
	var reqErr *openai.RequestError
	if stderrors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == http.StatusUnauthorized {
			return errors.NewAuthenticationMissing(MethodOpenAI)
		}
		if reqErr.HTTPStatusCode >= 500 {
			return errors.NewProviderUnavailable(MethodOpenAI, err)
		}
		return errors.NewProviderError(err)
	}
	var urlErr *url.Error
	if stderrors.As(err, &urlErr) {
		return errors.NewProviderUnavailable(MethodOpenAI, err)
	}
	return errors.NewProviderError(err)
}

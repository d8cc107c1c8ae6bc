package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/eeslabs/embedding-core/internal/eeserrors"
)

const defaultOpenAIEndpoint = "https://api.openai.com/v1/embeddings"

var openAIModels = []ModelInfo{
	{Name: "text-embedding-3-small", DisplayName: "text-embedding-3-small", Dimensions: 1536, MaxInputTokens: 8191, PricePer1MTokens: 0.02},
	{Name: "text-embedding-3-large", DisplayName: "text-embedding-3-large", Dimensions: 3072, MaxInputTokens: 8191, PricePer1MTokens: 0.13},
	{Name: "text-embedding-ada-002", DisplayName: "text-embedding-ada-002", Dimensions: 1536, MaxInputTokens: 8191, PricePer1MTokens: 0.10},
}

const openAIDefaultModel = "text-embedding-3-small"

// OpenAICompatible talks to OpenAI's /v1/embeddings wire shape, also usable
// against Azure OpenAI and any other OpenAI-schema-compatible endpoint
// (hence the "openai-compatible" tag rather than "openai").
type OpenAICompatible struct {
	apiKey       string
	endpoint     string
	defaultModel string
	client       *http.Client
}

// NewOpenAICompatible constructs the provider. endpoint and defaultModel
// may be empty to use the OpenAI default endpoint and model.
func NewOpenAICompatible(apiKey, endpoint, defaultModel string) *OpenAICompatible {
	if endpoint == "" {
		endpoint = defaultOpenAIEndpoint
	}
	return &OpenAICompatible{
		apiKey:       apiKey,
		endpoint:     endpoint,
		defaultModel: defaultModel,
		client:       &http.Client{Timeout: defaultProviderTimeout},
	}
}

func (p *OpenAICompatible) Tag() string { return "openai-compatible" }

func (p *OpenAICompatible) ListModels() []ModelInfo { return openAIModels }

func (p *OpenAICompatible) DefaultModel() string {
	return resolveModelName("", p.defaultModel, openAIDefaultModel)
}

func (p *OpenAICompatible) GetModelInfo(name string) (ModelInfo, bool) {
	for _, m := range openAIModels {
		if m.Name == name {
			return m, true
		}
	}
	return ModelInfo{}, false
}

func (p *OpenAICompatible) IsModelAvailable(name string) bool {
	_, ok := p.GetModelInfo(name)
	return ok
}

type openAIRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (p *OpenAICompatible) GenerateEmbedding(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if p.apiKey == "" {
		return nil, &eeserrors.ProviderError{
			Kind: eeserrors.ProviderAuthentication, Provider: p.Tag(), Model: req.ModelName,
			Message: "no API key configured",
		}
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, &eeserrors.ProviderError{
			Kind: eeserrors.ProviderModel, Provider: p.Tag(), Model: req.ModelName,
			Message: "text must not be empty",
		}
	}

	model := resolveModelName(req.ModelName, p.defaultModel, openAIDefaultModel)
	if !p.IsModelAvailable(model) {
		return nil, &eeserrors.ProviderError{
			Kind: eeserrors.ProviderModel, Provider: p.Tag(), Model: model,
			Message: fmt.Sprintf("model %q is not recognized by provider %s", model, p.Tag()),
		}
	}

	body, err := json.Marshal(openAIRequest{Model: model, Input: []string{req.Text}})
	if err != nil {
		return nil, &eeserrors.ProviderError{Kind: eeserrors.ProviderConnection, Provider: p.Tag(), Model: model, Message: "failed to marshal request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &eeserrors.ProviderError{Kind: eeserrors.ProviderConnection, Provider: p.Tag(), Model: model, Message: "failed to build request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &eeserrors.ProviderError{Kind: eeserrors.ProviderConnection, Provider: p.Tag(), Model: model, Message: "transport error", Cause: err}
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &eeserrors.ProviderError{Kind: eeserrors.ProviderConnection, Provider: p.Tag(), Model: model, Message: "failed to read response body", Cause: err}
	}

	if httpResp.StatusCode == http.StatusUnauthorized {
		return nil, &eeserrors.ProviderError{Kind: eeserrors.ProviderAuthentication, Provider: p.Tag(), Model: model, Message: string(raw)}
	}
	if httpResp.StatusCode == http.StatusTooManyRequests {
		var retryAfter *time.Duration
		if ra := httpResp.Header.Get("Retry-After"); ra != "" {
			if secs, perr := time.ParseDuration(ra + "s"); perr == nil {
				retryAfter = &secs
			}
		}
		return nil, &eeserrors.ProviderError{Kind: eeserrors.ProviderRateLimit, Provider: p.Tag(), Model: model, Message: string(raw), RetryAfter: retryAfter}
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, &eeserrors.ProviderError{Kind: eeserrors.ProviderConnection, Provider: p.Tag(), Model: model, Message: fmt.Sprintf("unexpected status %d: %s", httpResp.StatusCode, string(raw))}
	}

	var parsed openAIResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &eeserrors.ProviderError{Kind: eeserrors.ProviderConnection, Provider: p.Tag(), Model: model, Message: "malformed response body", Cause: err}
	}
	if parsed.Error != nil {
		return nil, &eeserrors.ProviderError{Kind: eeserrors.ProviderModel, Provider: p.Tag(), Model: model, Message: parsed.Error.Message}
	}
	if len(parsed.Data) == 0 {
		return nil, &eeserrors.ProviderError{Kind: eeserrors.ProviderConnection, Provider: p.Tag(), Model: model, Message: "no embedding data in response"}
	}

	return &GenerateResponse{
		Vector:        parsed.Data[0].Embedding,
		ResolvedModel: model,
		ProviderTag:   p.Tag(),
		Dimensions:    len(parsed.Data[0].Embedding),
		TokensUsed:    parsed.Usage.TotalTokens,
	}, nil
}

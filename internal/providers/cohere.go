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

const defaultCohereEndpoint = "https://api.cohere.ai/v1/embed"

var cohereModels = []ModelInfo{
	{Name: "embed-english-v3.0", DisplayName: "Embed English v3", Dimensions: 1024, MaxInputTokens: 512, PricePer1MTokens: 0.10,
		SupportedTasks: []TaskType{TaskTypeRetrievalQuery, TaskTypeRetrievalDocument, TaskTypeClassification, TaskTypeClustering}},
	{Name: "embed-multilingual-v3.0", DisplayName: "Embed Multilingual v3", Dimensions: 1024, MaxInputTokens: 512, PricePer1MTokens: 0.10,
		SupportedTasks: []TaskType{TaskTypeRetrievalQuery, TaskTypeRetrievalDocument, TaskTypeClassification, TaskTypeClustering}},
}

const cohereDefaultModel = "embed-english-v3.0"

// CohereLike talks to Cohere's /v1/embed wire shape: a "texts" array in,
// an "embeddings" array out, with an explicit "input_type" distinguishing
// query vs document embeddings.
type CohereLike struct {
	apiKey       string
	endpoint     string
	defaultModel string
	client       *http.Client
}

func NewCohereLike(apiKey, endpoint, defaultModel string) *CohereLike {
	if endpoint == "" {
		endpoint = defaultCohereEndpoint
	}
	return &CohereLike{apiKey: apiKey, endpoint: endpoint, defaultModel: defaultModel, client: &http.Client{Timeout: defaultProviderTimeout}}
}

func (p *CohereLike) Tag() string          { return "cohere-like" }
func (p *CohereLike) ListModels() []ModelInfo { return cohereModels }
func (p *CohereLike) DefaultModel() string { return resolveModelName("", p.defaultModel, cohereDefaultModel) }

func (p *CohereLike) GetModelInfo(name string) (ModelInfo, bool) {
	for _, m := range cohereModels {
		if m.Name == name {
			return m, true
		}
	}
	return ModelInfo{}, false
}

func (p *CohereLike) IsModelAvailable(name string) bool {
	_, ok := p.GetModelInfo(name)
	return ok
}

type cohereRequest struct {
	Texts     []string `json:"texts"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type"`
}

type cohereResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Meta       struct {
		BilledUnits struct {
			InputTokens int `json:"input_tokens"`
		} `json:"billed_units"`
	} `json:"meta"`
	Message string `json:"message"`
}

func cohereInputType(t TaskType) string {
	switch t {
	case TaskTypeRetrievalQuery:
		return "search_query"
	case TaskTypeRetrievalDocument:
		return "search_document"
	case TaskTypeClassification:
		return "classification"
	case TaskTypeClustering:
		return "clustering"
	default:
		return "search_document"
	}
}

func (p *CohereLike) GenerateEmbedding(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if p.apiKey == "" {
		return nil, &eeserrors.ProviderError{Kind: eeserrors.ProviderAuthentication, Provider: p.Tag(), Model: req.ModelName, Message: "no API key configured"}
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, &eeserrors.ProviderError{Kind: eeserrors.ProviderModel, Provider: p.Tag(), Model: req.ModelName, Message: "text must not be empty"}
	}

	model := resolveModelName(req.ModelName, p.defaultModel, cohereDefaultModel)
	if !p.IsModelAvailable(model) {
		return nil, &eeserrors.ProviderError{Kind: eeserrors.ProviderModel, Provider: p.Tag(), Model: model, Message: fmt.Sprintf("model %q is not recognized by provider %s", model, p.Tag())}
	}

	body, _ := json.Marshal(cohereRequest{Texts: []string{req.Text}, Model: model, InputType: cohereInputType(req.TaskType)})

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

	switch httpResp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, &eeserrors.ProviderError{Kind: eeserrors.ProviderAuthentication, Provider: p.Tag(), Model: model, Message: string(raw)}
	case http.StatusTooManyRequests:
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

	var parsed cohereResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &eeserrors.ProviderError{Kind: eeserrors.ProviderConnection, Provider: p.Tag(), Model: model, Message: "malformed response body", Cause: err}
	}
	if len(parsed.Embeddings) == 0 {
		msg := parsed.Message
		if msg == "" {
			msg = "no embeddings in response"
		}
		return nil, &eeserrors.ProviderError{Kind: eeserrors.ProviderConnection, Provider: p.Tag(), Model: model, Message: msg}
	}

	return &GenerateResponse{
		Vector:        parsed.Embeddings[0],
		ResolvedModel: model,
		ProviderTag:   p.Tag(),
		Dimensions:    len(parsed.Embeddings[0]),
		TokensUsed:    parsed.Meta.BilledUnits.InputTokens,
	}, nil
}

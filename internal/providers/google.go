package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/eeslabs/embedding-core/internal/eeserrors"
)

const defaultGoogleEndpoint = "https://generativelanguage.googleapis.com/v1beta/models"

var googleModels = []ModelInfo{
	{Name: "text-embedding-004", DisplayName: "text-embedding-004", Dimensions: 768, MaxInputTokens: 2048, PricePer1MTokens: 0.0},
	{Name: "embedding-001", DisplayName: "embedding-001", Dimensions: 768, MaxInputTokens: 2048, PricePer1MTokens: 0.0,
		SupportedTasks: []TaskType{TaskTypeRetrievalQuery, TaskTypeRetrievalDocument, TaskTypeSemanticSimilarity, TaskTypeClassification, TaskTypeClustering}},
}

const googleDefaultModel = "text-embedding-004"

// GoogleAI talks to Google's Generative Language embedContent wire shape:
// POST {endpoint}/{model}:embedContent?key=API_KEY.
type GoogleAI struct {
	apiKey       string
	endpoint     string
	defaultModel string
	client       *http.Client
}

func NewGoogleAI(apiKey, endpoint, defaultModel string) *GoogleAI {
	if endpoint == "" {
		endpoint = defaultGoogleEndpoint
	}
	return &GoogleAI{apiKey: apiKey, endpoint: endpoint, defaultModel: defaultModel, client: &http.Client{Timeout: defaultProviderTimeout}}
}

func (p *GoogleAI) Tag() string             { return "google-ai" }
func (p *GoogleAI) ListModels() []ModelInfo { return googleModels }
func (p *GoogleAI) DefaultModel() string    { return resolveModelName("", p.defaultModel, googleDefaultModel) }

func (p *GoogleAI) GetModelInfo(name string) (ModelInfo, bool) {
	for _, m := range googleModels {
		if m.Name == name {
			return m, true
		}
	}
	return ModelInfo{}, false
}

func (p *GoogleAI) IsModelAvailable(name string) bool {
	_, ok := p.GetModelInfo(name)
	return ok
}

type googleEmbedRequest struct {
	Model   string `json:"model"`
	Content struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"content"`
	TaskType string `json:"taskType,omitempty"`
}

type googleEmbedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
	Error *struct {
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func googleTaskType(t TaskType) string {
	switch t {
	case TaskTypeRetrievalQuery:
		return "RETRIEVAL_QUERY"
	case TaskTypeRetrievalDocument:
		return "RETRIEVAL_DOCUMENT"
	case TaskTypeSemanticSimilarity:
		return "SEMANTIC_SIMILARITY"
	case TaskTypeClassification:
		return "CLASSIFICATION"
	case TaskTypeClustering:
		return "CLUSTERING"
	default:
		return ""
	}
}

func (p *GoogleAI) GenerateEmbedding(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if p.apiKey == "" {
		return nil, &eeserrors.ProviderError{Kind: eeserrors.ProviderAuthentication, Provider: p.Tag(), Model: req.ModelName, Message: "no API key configured"}
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, &eeserrors.ProviderError{Kind: eeserrors.ProviderModel, Provider: p.Tag(), Model: req.ModelName, Message: "text must not be empty"}
	}

	model := resolveModelName(req.ModelName, p.defaultModel, googleDefaultModel)
	if !p.IsModelAvailable(model) {
		return nil, &eeserrors.ProviderError{Kind: eeserrors.ProviderModel, Provider: p.Tag(), Model: model, Message: fmt.Sprintf("model %q is not recognized by provider %s", model, p.Tag())}
	}

	reqBody := googleEmbedRequest{Model: "models/" + model, TaskType: googleTaskType(req.TaskType)}
	reqBody.Content.Parts = []struct {
		Text string `json:"text"`
	}{{Text: req.Text}}
	body, _ := json.Marshal(reqBody)

	reqURL := fmt.Sprintf("%s/%s:embedContent?key=%s", p.endpoint, model, url.QueryEscape(p.apiKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, &eeserrors.ProviderError{Kind: eeserrors.ProviderConnection, Provider: p.Tag(), Model: model, Message: "failed to build request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

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

	var parsed googleEmbedResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &eeserrors.ProviderError{Kind: eeserrors.ProviderConnection, Provider: p.Tag(), Model: model, Message: "malformed response body", Cause: err}
	}
	if parsed.Error != nil {
		return nil, &eeserrors.ProviderError{Kind: eeserrors.ProviderModel, Provider: p.Tag(), Model: model, Message: parsed.Error.Message}
	}
	if len(parsed.Embedding.Values) == 0 {
		return nil, &eeserrors.ProviderError{Kind: eeserrors.ProviderConnection, Provider: p.Tag(), Model: model, Message: "no embedding values in response"}
	}

	return &GenerateResponse{
		Vector:        parsed.Embedding.Values,
		ResolvedModel: model,
		ProviderTag:   p.Tag(),
		Dimensions:    len(parsed.Embedding.Values),
	}, nil
}

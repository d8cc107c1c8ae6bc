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

	"github.com/golang-jwt/jwt/v4"

	"github.com/eeslabs/embedding-core/internal/eeserrors"
)

var localRuntimeModels = []ModelInfo{
	{Name: "all-minilm-l6-v2", DisplayName: "all-MiniLM-L6-v2", Dimensions: 384, MaxInputTokens: 256, PricePer1MTokens: 0},
	{Name: "bge-small-en", DisplayName: "bge-small-en", Dimensions: 384, MaxInputTokens: 512, PricePer1MTokens: 0},
}

const localRuntimeDefaultModel = "all-minilm-l6-v2"

// LocalHTTPRuntime talks to a self-hosted, OpenAI-schema-compatible
// embeddings endpoint (e.g. an in-cluster inference server). Token cost is
// always zero: the catalogue reports PricePer1MTokens: 0 for every model.
//
// When jwtSecret is non-empty, each request carries a short-lived signed
// service token instead of a static API key, matching deployments that
// front the runtime behind an authenticating sidecar.
type LocalHTTPRuntime struct {
	endpoint     string
	defaultModel string
	jwtSecret    string
	client       *http.Client
}

func NewLocalHTTPRuntime(endpoint, defaultModel, jwtSecret string) *LocalHTTPRuntime {
	return &LocalHTTPRuntime{endpoint: endpoint, defaultModel: defaultModel, jwtSecret: jwtSecret, client: &http.Client{Timeout: defaultProviderTimeout}}
}

func (p *LocalHTTPRuntime) Tag() string             { return "local-http-runtime" }
func (p *LocalHTTPRuntime) ListModels() []ModelInfo { return localRuntimeModels }
func (p *LocalHTTPRuntime) DefaultModel() string {
	return resolveModelName("", p.defaultModel, localRuntimeDefaultModel)
}

func (p *LocalHTTPRuntime) GetModelInfo(name string) (ModelInfo, bool) {
	for _, m := range localRuntimeModels {
		if m.Name == name {
			return m, true
		}
	}
	return ModelInfo{}, false
}

func (p *LocalHTTPRuntime) IsModelAvailable(name string) bool {
	_, ok := p.GetModelInfo(name)
	return ok
}

// serviceToken signs a short-lived HS256 token authorizing this process to
// call the local runtime, when a shared secret is configured.
func (p *LocalHTTPRuntime) serviceToken() (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    "embedding-core",
		Subject:   "local-http-runtime",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(p.jwtSecret))
}

type localRuntimeRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type localRuntimeResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error string `json:"error,omitempty"`
}

func (p *LocalHTTPRuntime) GenerateEmbedding(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if p.endpoint == "" {
		return nil, &eeserrors.ProviderError{Kind: eeserrors.ProviderConnection, Provider: p.Tag(), Model: req.ModelName, Message: "no endpoint configured"}
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, &eeserrors.ProviderError{Kind: eeserrors.ProviderModel, Provider: p.Tag(), Model: req.ModelName, Message: "text must not be empty"}
	}

	model := resolveModelName(req.ModelName, p.defaultModel, localRuntimeDefaultModel)
	if !p.IsModelAvailable(model) {
		return nil, &eeserrors.ProviderError{Kind: eeserrors.ProviderModel, Provider: p.Tag(), Model: model, Message: fmt.Sprintf("model %q is not recognized by provider %s", model, p.Tag())}
	}

	body, _ := json.Marshal(localRuntimeRequest{Model: model, Input: []string{req.Text}})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &eeserrors.ProviderError{Kind: eeserrors.ProviderConnection, Provider: p.Tag(), Model: model, Message: "failed to build request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if p.jwtSecret != "" {
		token, err := p.serviceToken()
		if err != nil {
			return nil, &eeserrors.ProviderError{Kind: eeserrors.ProviderAuthentication, Provider: p.Tag(), Model: model, Message: "failed to sign service token", Cause: err}
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

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
	if httpResp.StatusCode != http.StatusOK {
		return nil, &eeserrors.ProviderError{Kind: eeserrors.ProviderConnection, Provider: p.Tag(), Model: model, Message: fmt.Sprintf("unexpected status %d: %s", httpResp.StatusCode, string(raw))}
	}

	var parsed localRuntimeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &eeserrors.ProviderError{Kind: eeserrors.ProviderConnection, Provider: p.Tag(), Model: model, Message: "malformed response body", Cause: err}
	}
	if parsed.Error != "" {
		return nil, &eeserrors.ProviderError{Kind: eeserrors.ProviderModel, Provider: p.Tag(), Model: model, Message: parsed.Error}
	}
	if len(parsed.Data) == 0 {
		return nil, &eeserrors.ProviderError{Kind: eeserrors.ProviderConnection, Provider: p.Tag(), Model: model, Message: "no embedding data in response"}
	}

	return &GenerateResponse{
		Vector:        parsed.Data[0].Embedding,
		ResolvedModel: model,
		ProviderTag:   p.Tag(),
		Dimensions:    len(parsed.Data[0].Embedding),
	}, nil
}

package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eeslabs/embedding-core/internal/eeserrors"
)

func testEmbedding(dims int) []float32 {
	v := make([]float32, dims)
	for i := range v {
		v[i] = float32(i) / float32(dims)
	}
	return v
}

func TestOpenAICompatible_GenerateEmbedding_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIRequest
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, []string{"hello world"}, req.Input)
		assert.Equal(t, "text-embedding-3-small", req.Model)

		resp := openAIResponse{Data: []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{{Embedding: testEmbedding(1536), Index: 0}}}
		resp.Usage.TotalTokens = 4
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := NewOpenAICompatible("test-key", server.URL, "")
	resp, err := p.GenerateEmbedding(context.Background(), GenerateRequest{Text: "hello world"})
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", resp.ResolvedModel)
	assert.Equal(t, "openai-compatible", resp.ProviderTag)
	assert.Len(t, resp.Vector, 1536)
	assert.Equal(t, 4, resp.TokensUsed)
}

func TestOpenAICompatible_GenerateEmbedding_MissingAPIKey(t *testing.T) {
	p := NewOpenAICompatible("", "", "")
	_, err := p.GenerateEmbedding(context.Background(), GenerateRequest{Text: "x"})
	require.Error(t, err)

	var perr *eeserrors.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, eeserrors.ProviderAuthentication, perr.Kind)
}

func TestOpenAICompatible_GenerateEmbedding_UnknownModel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("server should not be called for an unrecognized model")
	}))
	defer server.Close()

	p := NewOpenAICompatible("test-key", server.URL, "")
	_, err := p.GenerateEmbedding(context.Background(), GenerateRequest{Text: "hi", ModelName: "not-a-model"})
	require.Error(t, err)

	var perr *eeserrors.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, eeserrors.ProviderModel, perr.Kind)
}

func TestOpenAICompatible_GenerateEmbedding_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer server.Close()

	p := NewOpenAICompatible("test-key", server.URL, "")
	_, err := p.GenerateEmbedding(context.Background(), GenerateRequest{Text: "hi"})
	require.Error(t, err)

	var perr *eeserrors.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, eeserrors.ProviderRateLimit, perr.Kind)
	require.NotNil(t, perr.RetryAfter)
	assert.True(t, perr.IsRetryable())
}

func TestOpenAICompatible_GenerateEmbedding_EmptyText(t *testing.T) {
	p := NewOpenAICompatible("test-key", "http://unused", "")
	_, err := p.GenerateEmbedding(context.Background(), GenerateRequest{Text: "   "})
	require.Error(t, err)

	var perr *eeserrors.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, eeserrors.ProviderModel, perr.Kind)
}

func TestResolveModelName(t *testing.T) {
	assert.Equal(t, "a", resolveModelName("a", "b", "c"))
	assert.Equal(t, "b", resolveModelName("", "b", "c"))
	assert.Equal(t, "c", resolveModelName("", "", "c"))
}

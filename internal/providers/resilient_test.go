package providers

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eeslabs/embedding-core/internal/eeserrors"
	"github.com/eeslabs/embedding-core/internal/observability"
)

func testMetrics() *observability.Metrics {
	return observability.NewMetrics(prometheus.NewRegistry())
}

type stubProvider struct {
	tag       string
	responses []*GenerateResponse
	errs      []error
	calls     int
}

func (s *stubProvider) Tag() string                              { return s.tag }
func (s *stubProvider) ListModels() []ModelInfo                   { return nil }
func (s *stubProvider) IsModelAvailable(string) bool               { return true }
func (s *stubProvider) GetModelInfo(string) (ModelInfo, bool)      { return ModelInfo{}, false }
func (s *stubProvider) DefaultModel() string                       { return "stub-model" }

func (s *stubProvider) GenerateEmbedding(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return &GenerateResponse{ProviderTag: s.tag}, nil
}

func TestResilient_RetriesConnectionErrors(t *testing.T) {
	stub := &stubProvider{
		tag: "stub",
		errs: []error{
			&eeserrors.ProviderError{Kind: eeserrors.ProviderConnection, Provider: "stub", Message: "boom"},
			&eeserrors.ProviderError{Kind: eeserrors.ProviderConnection, Provider: "stub", Message: "boom again"},
		},
		responses: []*GenerateResponse{nil, nil, {ProviderTag: "stub", ResolvedModel: "stub-model"}},
	}

	r := NewResilient(stub, observability.NoopLogger{}, testMetrics())
	resp, err := r.GenerateEmbedding(context.Background(), GenerateRequest{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "stub-model", resp.ResolvedModel)
	assert.Equal(t, 3, stub.calls)
}

func TestResilient_DoesNotRetryAuthenticationErrors(t *testing.T) {
	stub := &stubProvider{
		tag:  "stub",
		errs: []error{&eeserrors.ProviderError{Kind: eeserrors.ProviderAuthentication, Provider: "stub", Message: "bad key"}},
	}

	r := NewResilient(stub, observability.NoopLogger{}, testMetrics())
	_, err := r.GenerateEmbedding(context.Background(), GenerateRequest{Text: "hi"})
	require.Error(t, err)
	assert.Equal(t, 1, stub.calls)

	var perr *eeserrors.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, eeserrors.ProviderAuthentication, perr.Kind)
}

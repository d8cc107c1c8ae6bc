package providers

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eeslabs/embedding-core/internal/config"
	"github.com/eeslabs/embedding-core/internal/observability"
)

func testConfig() *config.Config {
	return &config.Config{
		DefaultProvider: "local-http-runtime",
		Providers: map[string]config.ProviderConfig{
			"local-http-runtime": {BaseURL: "http://127.0.0.1:9999"},
			"openai-compatible":  {APIKey: "k"},
			"cohere-like":        {APIKey: "k"},
			"google-ai":          {APIKey: "k"},
		},
	}
}

func TestNewRegistry_BuildsAllConfiguredProviders(t *testing.T) {
	reg, err := NewRegistry(testConfig(), observability.NoopLogger{}, observability.NewMetrics(prometheus.NewRegistry()))
	require.NoError(t, err)

	for _, tag := range []string{"local-http-runtime", "openai-compatible", "cohere-like", "google-ai"} {
		p, ok := reg.Get(tag)
		require.True(t, ok, "expected provider %q to be registered", tag)
		assert.Equal(t, tag, p.Tag())
	}
	assert.Equal(t, "local-http-runtime", reg.Default().Tag())
}

func TestNewRegistry_RejectsUnknownDefaultProvider(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultProvider = "does-not-exist"
	_, err := NewRegistry(cfg, observability.NoopLogger{}, observability.NewMetrics(prometheus.NewRegistry()))
	require.Error(t, err)
}

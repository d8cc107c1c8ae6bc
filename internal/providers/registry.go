package providers

import (
	"fmt"

	"github.com/eeslabs/embedding-core/internal/config"
	"github.com/eeslabs/embedding-core/internal/observability"
)

// Registry holds every configured provider, keyed by tag, each wrapped in
// Resilient so callers never talk to a raw transport directly.
type Registry struct {
	providers map[string]Provider
	defaultTag string
}

// NewRegistry builds one concrete provider per entry in cfg.Providers and
// wraps each with circuit-breaking and retry. A provider with no base URL
// or API key configured is still registered: its zero-value fields simply
// make every call fail with a ProviderAuthentication or ProviderConnection
// error, which mirrors how the teacher's provider factory handles
// unconfigured backends rather than omitting them from the set.
func NewRegistry(cfg *config.Config, logger observability.Logger, metrics *observability.Metrics) (*Registry, error) {
	if _, ok := cfg.Providers[cfg.DefaultProvider]; !ok {
		return nil, fmt.Errorf("config: default provider %q has no matching provider configuration", cfg.DefaultProvider)
	}

	reg := &Registry{providers: make(map[string]Provider, len(cfg.Providers)), defaultTag: cfg.DefaultProvider}

	for tag, pc := range cfg.Providers {
		var base Provider
		switch tag {
		case "local-http-runtime":
			base = NewLocalHTTPRuntime(pc.BaseURL, pc.DefaultModel, cfg.LocalRuntimeJWTSecret)
		case "openai-compatible":
			base = NewOpenAICompatible(pc.APIKey, pc.BaseURL, pc.DefaultModel)
		case "cohere-like":
			base = NewCohereLike(pc.APIKey, pc.BaseURL, pc.DefaultModel)
		case "google-ai":
			base = NewGoogleAI(pc.APIKey, pc.BaseURL, pc.DefaultModel)
		default:
			return nil, fmt.Errorf("config: unrecognized provider tag %q", tag)
		}
		if cfg.ProviderTimeout > 0 {
			switch p := base.(type) {
			case *LocalHTTPRuntime:
				p.client.Timeout = cfg.ProviderTimeout
			case *OpenAICompatible:
				p.client.Timeout = cfg.ProviderTimeout
			case *CohereLike:
				p.client.Timeout = cfg.ProviderTimeout
			case *GoogleAI:
				p.client.Timeout = cfg.ProviderTimeout
			}
		}
		reg.providers[tag] = NewResilient(base, logger.WithPrefix("provider."+tag), metrics)
	}

	return reg, nil
}

// Get returns the provider registered under tag, or false if it is not a
// recognized provider type.
func (r *Registry) Get(tag string) (Provider, bool) {
	p, ok := r.providers[tag]
	return p, ok
}

// Default returns the configured default provider.
func (r *Registry) Default() Provider {
	return r.providers[r.defaultTag]
}

// Tags lists every registered provider tag.
func (r *Registry) Tags() []string {
	tags := make([]string, 0, len(r.providers))
	for tag := range r.providers {
		tags = append(tags, tag)
	}
	return tags
}

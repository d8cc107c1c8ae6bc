// Package config loads the embedding core's process configuration from
// EES_-prefixed environment variables, following the teacher's viper-based
// loader pattern (pkg/config/loader.go) generalized to this spec's
// provider set.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ProviderConfig is the per-provider-type binding read from
// EES_<PROVIDER>_BASE_URL / _API_KEY / _DEFAULT_MODEL.
type ProviderConfig struct {
	BaseURL      string
	APIKey       string
	DefaultModel string
}

// Config is the fully resolved process configuration.
type Config struct {
	DefaultProvider string
	DatabaseURL     string

	Providers map[string]ProviderConfig

	ProviderTimeout       time.Duration
	HTTPAddr              string
	BatchConcurrency      int
	LogLevel              string
	RedisURL              string
	LocalRuntimeJWTSecret string
	Dimensions            int
	ShutdownTimeout       time.Duration
}

// providerTags is the closed set of provider type tags spec.md §3 names.
var providerTags = []string{
	"local-http-runtime",
	"openai-compatible",
	"cohere-like",
	"google-ai",
}

// envKeyForProvider turns a provider tag into the env-variable-safe
// fragment used for its per-provider settings, e.g. "openai-compatible"
// -> "OPENAI_COMPATIBLE".
func envKeyForProvider(tag string) string {
	return strings.ToUpper(strings.ReplaceAll(tag, "-", "_"))
}

// Load reads configuration from the environment. Unset optional values
// fall back to documented defaults rather than erroring; only a handful
// of invariants (non-empty default provider) are validated here, the rest
// is left to the components that consume each field.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("EES")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("default_provider", "local-http-runtime")
	v.SetDefault("database_url", ":memory:")
	v.SetDefault("provider_timeout", 30*time.Second)
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("batch_concurrency", 4)
	v.SetDefault("log_level", "INFO")
	v.SetDefault("dimensions", 1536)
	v.SetDefault("shutdown_timeout", 30*time.Second)

	cfg := &Config{
		DefaultProvider:       v.GetString("default_provider"),
		DatabaseURL:           v.GetString("database_url"),
		ProviderTimeout:       v.GetDuration("provider_timeout"),
		HTTPAddr:              v.GetString("http_addr"),
		BatchConcurrency:      v.GetInt("batch_concurrency"),
		LogLevel:              v.GetString("log_level"),
		RedisURL:              v.GetString("redis_url"),
		LocalRuntimeJWTSecret: v.GetString("local_http_runtime_jwt_secret"),
		Dimensions:            v.GetInt("dimensions"),
		ShutdownTimeout:       v.GetDuration("shutdown_timeout"),
		Providers:             make(map[string]ProviderConfig, len(providerTags)),
	}

	if cfg.DefaultProvider == "" {
		return nil, fmt.Errorf("config: EES_DEFAULT_PROVIDER must not be empty")
	}

	for _, tag := range providerTags {
		prefix := envKeyForProvider(tag)
		cfg.Providers[tag] = ProviderConfig{
			BaseURL:      v.GetString(prefix + "_base_url"),
			APIKey:       v.GetString(prefix + "_api_key"),
			DefaultModel: v.GetString(prefix + "_default_model"),
		}
	}

	return cfg, nil
}

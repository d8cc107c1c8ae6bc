package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eeslabs/embedding-core/internal/config"
	"github.com/eeslabs/embedding-core/internal/observability"
)

func TestCompatibilityCache_FallsBackToLRUWhenNoRedisURL(t *testing.T) {
	cfg := &config.Config{RedisURL: ""}
	cache, err := compatibilityCache(cfg, observability.NoopLogger{})
	require.NoError(t, err)
	assert.NotNil(t, cache)
}

func TestCompatibilityCache_FallsBackToLRUOnUnparseableRedisURL(t *testing.T) {
	cfg := &config.Config{RedisURL: "not-a-url"}
	cache, err := compatibilityCache(cfg, observability.NoopLogger{})
	require.NoError(t, err)
	assert.NotNil(t, cache)
}
